// ABOUTME: Heuristic classifier deciding whether an audio element is a system chime
// ABOUTME: The Policy is tunable and is published to the browser script as JSON

package chime

import (
	"strconv"
	"strings"
)

// Rule names the classifier rule that matched.
type Rule string

// Classifier rules, in evaluation order.
const (
	RuleNone     Rule = ""
	RuleKeyword  Rule = "keyword"
	RuleMarker   Rule = "marker"
	RuleHidden   Rule = "hidden"
	RuleTiny     Rule = "tiny"
	RuleAssetSrc Rule = "asset-source"
)

// MarkerAttr tags audio elements as sound elements.
const MarkerAttr = "data-sound"

// Policy holds the tunable classification parameters.
type Policy struct {
	// Keywords matched case-insensitively against id and class.
	Keywords []string `json:"keywords"`
	// AssetFolders are path segments of the host's built-in sound assets.
	AssetFolders []string `json:"asset_folders"`
	// MarkerAttr is the attribute that marks an element as a sound element.
	MarkerAttr string `json:"marker_attr"`
	// MinSize: elements narrower AND shorter than this are treated as chimes.
	MinSize float64 `json:"min_size"`
}

// DefaultPolicy returns the stock classification policy.
func DefaultPolicy() Policy {
	return Policy{
		Keywords:     []string{"sound", "chime", "notify", "newmail"},
		AssetFolders: []string{"resources", "skins", "sounds"},
		MarkerAttr:   MarkerAttr,
		MinSize:      4,
	}
}

// Override returns a copy of p with every non-empty argument replacing the
// corresponding field.
func (p Policy) Override(keywords, assetFolders []string, minSize float64) Policy {
	if len(keywords) > 0 {
		p.Keywords = append([]string(nil), keywords...)
	}
	if len(assetFolders) > 0 {
		p.AssetFolders = append([]string(nil), assetFolders...)
	}
	if minSize > 0 {
		p.MinSize = minSize
	}
	return p
}

func (p Policy) marker() string {
	if p.MarkerAttr == "" {
		return MarkerAttr
	}
	return p.MarkerAttr
}

// Classify reports whether e looks like system chime audio and which rule
// decided it. Rules are applied in order; the first match wins.
func (p Policy) Classify(e *Element) (bool, Rule) {
	if !e.IsAudio() {
		return false, RuleNone
	}

	id := strings.ToLower(e.ID)
	class := strings.ToLower(e.Class)
	for _, kw := range p.Keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(id, kw) || strings.Contains(class, kw) {
			return true, RuleKeyword
		}
	}

	if e.Attr(p.marker()) != "" {
		return true, RuleMarker
	}

	if isHidden(e) {
		return true, RuleHidden
	}

	if e.Width < p.MinSize && e.Height < p.MinSize {
		return true, RuleTiny
	}

	if p.LooksLikeAsset(e.EffectiveSrc()) {
		return true, RuleAssetSrc
	}

	return false, RuleNone
}

func isHidden(e *Element) bool {
	if !e.Controls {
		return true
	}
	if strings.EqualFold(e.Style.Display, "none") || strings.EqualFold(e.Style.Visibility, "hidden") {
		return true
	}
	if e.Style.Opacity != "" {
		if v, err := strconv.ParseFloat(strings.TrimSpace(e.Style.Opacity), 64); err == nil && v == 0 {
			return true
		}
	}
	return false
}

// LooksLikeAsset reports whether src points into one of the host's built-in
// asset folders. Folders match whole path segments only.
func (p Policy) LooksLikeAsset(src string) bool {
	if src == "" {
		return false
	}
	s := strings.ToLower(src)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	for _, folder := range p.AssetFolders {
		folder = strings.Trim(strings.ToLower(folder), "/")
		if folder == "" {
			continue
		}
		if strings.Contains(s, "/"+folder+"/") {
			return true
		}
	}
	return false
}
