// Package visibility reports whether the chat view is currently shown to the
// user. Hosts own a Notifier and hand it to the session controller, which
// pauses polling while the view is hidden.
package visibility

import "sync"

// Notifier reports view visibility and its changes.
type Notifier interface {
	Visible() bool
	// Subscribe registers fn to be called on every change. The returned
	// function removes the subscription and is safe to call more than once.
	Subscribe(fn func(visible bool)) (unsubscribe func())
}

// Manual is a Notifier driven by explicit SetVisible calls. The zero value is
// not ready for use; call NewManual.
type Manual struct {
	mu        sync.Mutex
	visible   bool
	nextID    int
	listeners map[int]func(bool)
}

var _ Notifier = (*Manual)(nil)

// NewManual creates a Manual notifier with the given initial visibility.
func NewManual(visible bool) *Manual {
	return &Manual{
		visible:   visible,
		listeners: make(map[int]func(bool)),
	}
}

// Visible implements Notifier.
func (m *Manual) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// Subscribe implements Notifier.
func (m *Manual) Subscribe(fn func(bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// SetVisible updates visibility. Listeners run synchronously on the calling
// goroutine, and only when the value actually changes.
func (m *Manual) SetVisible(visible bool) {
	m.mu.Lock()
	if m.visible == visible {
		m.mu.Unlock()
		return
	}
	m.visible = visible
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(visible)
	}
}

// Subscribers returns the number of active subscriptions.
func (m *Manual) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}
