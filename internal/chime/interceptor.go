// ABOUTME: Explicit-state model of the browser audio interception layer
// ABOUTME: Patches play and the audio constructor once, and re-applies on host lifecycle events

package chime

import "slices"

// Host lifecycle events after which patches and preview bindings are re-applied.
const (
	EventInit          = "init"
	EventResponseAfter = "responseafter"
)

// Sink performs a playback attempt. A returned error is a rejected playback
// (for example blocked autoplay) and is always swallowed by callers.
type Sink func(url string) error

// Info is the debug snapshot exposed to the page as __chime_info.
type Info struct {
	CustomURL          string `json:"custom_url"`
	PlayPatched        bool   `json:"play_patched"`
	ConstructorPatched bool   `json:"constructor_patched"`
	Observing          bool   `json:"observing"`
}

// Interceptor redirects system chime playback to a custom URL.
// It models a single page context and is not safe for concurrent use.
type Interceptor struct {
	policy    Policy
	customURL string
	sink      Sink

	playPatched bool
	ctorPatched bool
	observing   bool

	previews []*PreviewLink
}

// NewInterceptor creates an Interceptor. An empty customURL makes every
// install step a no-op.
func NewInterceptor(policy Policy, customURL string, sink Sink) *Interceptor {
	if sink == nil {
		sink = func(string) error { return nil }
	}
	return &Interceptor{policy: policy, customURL: customURL, sink: sink}
}

// CustomURL returns the configured replacement URL.
func (ic *Interceptor) CustomURL() string { return ic.customURL }

// Install patches play and the audio constructor. Each patch is applied at
// most once per page context. It reports whether anything new was installed.
func (ic *Interceptor) Install() bool {
	if ic.customURL == "" {
		return false
	}
	installed := false
	if !ic.playPatched {
		ic.playPatched = true
		installed = true
	}
	if !ic.ctorPatched {
		ic.ctorPatched = true
		installed = true
	}
	return installed
}

// StartObserver begins tagging inserted audio elements. Idempotent.
func (ic *Interceptor) StartObserver() {
	ic.observing = true
}

// Lifecycle handles a host lifecycle event, re-installing patches and
// binding previews after partial reloads. links are preview links found in
// the reloaded markup. Unknown events are ignored.
func (ic *Interceptor) Lifecycle(event string, links ...*PreviewLink) {
	switch event {
	case EventInit, EventResponseAfter:
		ic.Install()
		all := append(slices.Clone(ic.previews), links...)
		for _, l := range all {
			l.Bind(ic)
		}
	}
}

// Play is the patched play(): a chime element whose source differs from the
// custom URL is rewritten (nested sources included) and reloaded first.
// It returns the URL handed to the native player.
func (ic *Interceptor) Play(e *Element) string {
	if ic.playPatched && e.IsAudio() {
		if ok, _ := ic.policy.Classify(e); ok && e.EffectiveSrc() != ic.customURL {
			e.SetAllSources(ic.customURL)
		}
	}
	url := e.EffectiveSrc()
	_ = ic.sink(url)
	return url
}

// NewAudio is the patched Audio constructor: an empty source or one under a
// built-in asset folder is replaced with the custom URL.
func (ic *Interceptor) NewAudio(src string) *Element {
	a := NewAudio("")
	if ic.ctorPatched && (src == "" || ic.policy.LooksLikeAsset(src)) {
		a.SetAllSources(ic.customURL)
		return a
	}
	if src != "" {
		a.SetAllSources(src)
	}
	return a
}

// Observe is the mutation observer callback for inserted nodes: audio
// elements without controls, at any depth, get the marker attribute.
func (ic *Interceptor) Observe(nodes ...*Element) {
	if !ic.observing {
		return
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if n.IsAudio() {
			if !n.Controls {
				n.SetAttr(ic.policy.marker(), "1")
			}
			continue
		}
		for _, a := range n.Descendants("audio") {
			if !a.Controls {
				a.SetAttr(ic.policy.marker(), "1")
			}
		}
	}
}

// Info returns the debug snapshot.
func (ic *Interceptor) Info() Info {
	return Info{
		CustomURL:          ic.customURL,
		PlayPatched:        ic.playPatched,
		ConstructorPatched: ic.ctorPatched,
		Observing:          ic.observing,
	}
}
