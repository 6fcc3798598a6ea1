package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Handler receives the decoded arguments of one event
type Handler func(args ...json.RawMessage)

// Subscription identifies one registered handler. Go funcs are not
// comparable, so removal goes through the handle returned by On/Once.
type Subscription struct {
	id      uint64
	event   string
	once    bool
	handler Handler
	active  atomic.Bool
}

// Event returns the subscribed event name
func (s *Subscription) Event() string {
	return s.event
}

// Active reports whether the handler is still registered
func (s *Subscription) Active() bool {
	return s != nil && s.active.Load()
}

// HandlerMap manages event handlers
type HandlerMap struct {
	mu       sync.RWMutex
	handlers map[string][]*Subscription // event -> handlers in registration order
	seq      uint64
}

// NewHandlerMap creates a new HandlerMap
func NewHandlerMap() *HandlerMap {
	return &HandlerMap{
		handlers: make(map[string][]*Subscription),
	}
}

// Register registers a handler
func (m *HandlerMap) Register(event string, h Handler, once bool) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	sub := &Subscription{id: m.seq, event: event, once: once, handler: h}
	sub.active.Store(true)
	m.handlers[event] = append(m.handlers[event], sub)
	return sub
}

// Unregister unregisters a handler; it reports false if it was already gone
func (m *HandlerMap) Unregister(sub *Subscription) bool {
	if sub == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !sub.active.CompareAndSwap(true, false) {
		return false
	}

	subs := m.handlers[sub.event]
	kept := make([]*Subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != sub.id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(m.handlers, sub.event)
	} else {
		m.handlers[sub.event] = kept
	}
	return true
}

// GetAll gets all handlers for an event
func (m *HandlerMap) GetAll(event string) []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy so handlers may subscribe or unsubscribe while being called
	subs := make([]*Subscription, len(m.handlers[event]))
	copy(subs, m.handlers[event])
	return subs
}

// Count returns the number of handlers for an event
func (m *HandlerMap) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Clear removes every handler
func (m *HandlerMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, subs := range m.handlers {
		for _, s := range subs {
			s.active.Store(false)
		}
	}
	m.handlers = make(map[string][]*Subscription)
}

// Dispatch calls the handlers of event in registration order. A handler
// removed by an earlier handler of the same dispatch is skipped; a once
// handler runs at most one time.
func (m *HandlerMap) Dispatch(event string, args ...json.RawMessage) int {
	called := 0
	for _, sub := range m.GetAll(event) {
		if sub.once {
			if !m.Unregister(sub) {
				continue
			}
		} else if !sub.active.Load() {
			continue
		}
		sub.handler(args...)
		called++
	}
	return called
}
