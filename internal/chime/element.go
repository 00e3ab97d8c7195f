// ABOUTME: Runtime-independent description of a page media element
// ABOUTME: Mirrors the DOM properties the chime classifier and interceptor look at

package chime

import "strings"

// Style is the subset of an element's computed style the classifier reads.
type Style struct {
	Display    string `json:"display,omitempty"`
	Visibility string `json:"visibility,omitempty"`
	Opacity    string `json:"opacity,omitempty"` // CSS value; empty means 1
}

// Element describes an <audio> element (or any node containing one).
type Element struct {
	Tag        string            `json:"tag"`
	ID         string            `json:"id,omitempty"`
	Class      string            `json:"class,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
	Controls   bool              `json:"controls,omitempty"`
	Style      Style             `json:"style,omitempty"`
	Width      float64           `json:"width"`
	Height     float64           `json:"height"`
	Src        string            `json:"src,omitempty"`
	CurrentSrc string            `json:"current_src,omitempty"`
	Children   []*Element        `json:"children,omitempty"`

	// Loads counts reloads triggered by source rewrites.
	Loads int `json:"-"`
}

// NewAudio returns a bare <audio> element with the given source.
func NewAudio(src string) *Element {
	return &Element{Tag: "audio", Src: src}
}

// IsAudio reports whether e is an <audio> element.
func (e *Element) IsAudio() bool {
	return e != nil && strings.EqualFold(e.Tag, "audio")
}

// Attr returns the value of attribute name, or "".
func (e *Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// SetAttr sets attribute name.
func (e *Element) SetAttr(name, value string) {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[name] = value
}

// EffectiveSrc is the source the element would play: currentSrc, else src.
func (e *Element) EffectiveSrc() string {
	if e.CurrentSrc != "" {
		return e.CurrentSrc
	}
	return e.Src
}

// Descendants returns every element below e with the given tag, depth first.
func (e *Element) Descendants(tag string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c == nil {
			continue
		}
		if strings.EqualFold(c.Tag, tag) {
			out = append(out, c)
		}
		out = append(out, c.Descendants(tag)...)
	}
	return out
}

// SetAllSources points every nested <source> and the element itself at url,
// reloading once if anything changed. It reports whether a reload happened.
func (e *Element) SetAllSources(url string) bool {
	changed := false
	for _, s := range e.Descendants("source") {
		if s.Src != url {
			s.Src = url
			changed = true
		}
	}
	if e.Src != url {
		e.Src = url
		changed = true
	}
	if changed {
		e.Loads++
		e.CurrentSrc = url
	}
	return changed
}
