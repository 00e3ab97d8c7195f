package chime

// Event is a click dispatched to a PreviewLink.
type Event struct {
	DefaultPrevented   bool
	PropagationStopped bool
}

// PreventDefault suppresses navigation.
func (ev *Event) PreventDefault() { ev.DefaultPrevented = true }

// StopImmediatePropagation keeps every later listener from running.
func (ev *Event) StopImmediatePropagation() { ev.PropagationStopped = true }

type listener struct {
	capture bool
	fn      func(*Event)
}

// PreviewLink is the settings page's "play" link.
type PreviewLink struct {
	Href string
	// OnClick is an inline attribute handler present in the markup, if any.
	OnClick func(*Event)

	listeners []listener
	bound     bool
}

// AddEventListener registers a click listener.
func (l *PreviewLink) AddEventListener(fn func(*Event), capture bool) {
	l.listeners = append(l.listeners, listener{capture: capture, fn: fn})
}

// Bound reports whether the preview handler is attached.
func (l *PreviewLink) Bound() bool { return l.bound }

// Bind attaches the single-play preview handler. It is a no-op when already
// bound or when no custom URL is configured, and reports whether it bound.
func (l *PreviewLink) Bind(ic *Interceptor) bool {
	if l.bound || ic.customURL == "" {
		return false
	}
	l.OnClick = nil
	url := ic.customURL
	l.AddEventListener(func(ev *Event) {
		ev.PreventDefault()
		ev.StopImmediatePropagation()
		ic.Play(ic.NewAudio(url))
	}, true)
	l.bound = true
	if !ic.tracks(l) {
		ic.previews = append(ic.previews, l)
	}
	return true
}

// Click dispatches a click: capture listeners first, then the inline handler,
// then bubbling listeners, stopping as soon as propagation is stopped.
func (l *PreviewLink) Click() *Event {
	ev := &Event{}
	for _, li := range l.listeners {
		if li.capture {
			li.fn(ev)
			if ev.PropagationStopped {
				return ev
			}
		}
	}
	if l.OnClick != nil {
		l.OnClick(ev)
		if ev.PropagationStopped {
			return ev
		}
	}
	for _, li := range l.listeners {
		if !li.capture {
			li.fn(ev)
			if ev.PropagationStopped {
				return ev
			}
		}
	}
	return ev
}

func (ic *Interceptor) tracks(l *PreviewLink) bool {
	for _, p := range ic.previews {
		if p == l {
			return true
		}
	}
	return false
}
