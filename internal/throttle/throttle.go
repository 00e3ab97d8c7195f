// ABOUTME: Thread-safe, size-bounded failure counter with a sliding time window
// ABOUTME: Used by the login form to slow down password guessing per user and address

package throttle

import (
	"container/list"
	"sync"
	"time"
)

// entry tracks failures for one key inside the current window.
type entry struct {
	failures int
	first    time.Time
	element  *list.Element
}

// Limiter counts failures per key and blocks a key once it reaches the limit
// within the window. The oldest key is evicted when maxKeys is reached.
type Limiter struct {
	mu      sync.Mutex
	keys    map[string]*entry
	order   *list.List // keys in last-touched order (oldest at front)
	limit   int
	window  time.Duration
	maxKeys int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a Limiter allowing limit failures per key within window.
// A background goroutine drops expired keys until Close is called.
func New(limit int, window time.Duration, maxKeys int) *Limiter {
	l := newLimiter(limit, window, maxKeys, time.Now)
	go l.cleanup()
	return l
}

func newLimiter(limit int, window time.Duration, maxKeys int, now func() time.Time) *Limiter {
	if limit < 1 {
		limit = 1
	}
	if maxKeys < 1 {
		maxKeys = 1
	}
	return &Limiter{
		keys:    make(map[string]*entry),
		order:   list.New(),
		limit:   limit,
		window:  window,
		maxKeys: maxKeys,
		now:     now,
		done:    make(chan struct{}),
	}
}

// Allow reports whether key may attempt again.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.keys[key]
	if !ok {
		return true
	}
	if l.expired(e, l.now()) {
		l.removeLocked(key, e)
		return true
	}
	return e.failures < l.limit
}

// Fail records a failed attempt for key and returns the failures counted in
// the current window.
func (l *Limiter) Fail(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.keys[key]; ok {
		if l.expired(e, now) {
			e.failures = 0
			e.first = now
		}
		e.failures++
		l.order.MoveToBack(e.element)
		return e.failures
	}

	if len(l.keys) >= l.maxKeys {
		l.evictOldest()
	}
	l.keys[key] = &entry{
		failures: 1,
		first:    now,
		element:  l.order.PushBack(key),
	}
	return 1
}

// Reset forgets key, typically after a successful attempt.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.keys[key]; ok {
		l.removeLocked(key, e)
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

func (l *Limiter) expired(e *entry, now time.Time) bool {
	return now.Sub(e.first) >= l.window
}

// removeLocked must be called with mu held.
func (l *Limiter) removeLocked(key string, e *entry) {
	l.order.Remove(e.element)
	delete(l.keys, key)
}

// evictOldest must be called with mu held.
func (l *Limiter) evictOldest() {
	front := l.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	l.order.Remove(front)
	delete(l.keys, key)
}

// cleanup periodically removes expired keys.
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, e := range l.keys {
		if l.expired(e, now) {
			l.removeLocked(key, e)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		close(l.done)
		l.closed = true
	}
}
