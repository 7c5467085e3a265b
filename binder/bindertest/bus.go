// Package bindertest provides a recording binder.EventBus for tests.
package bindertest

import (
	"sync"

	"github.com/ehabterra/eventbinder/binder"
)

// Bus records handlers per key and delivers events synchronously.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[binder.Key][]registered
}

type registered struct {
	id int
	fn binder.HandlerFunc
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[binder.Key][]registered)}
}

// AddHandler implements binder.EventBus.
func (b *Bus) AddHandler(key binder.Key, handler binder.HandlerFunc) binder.Registration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[key] = append(b.handlers[key], registered{id: id, fn: handler})

	return binder.RegistrationFunc(func() { b.remove(key, id) })
}

func (b *Bus) remove(key binder.Key, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.handlers[key]
	for i, h := range hs {
		if h.id == id {
			b.handlers[key] = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(b.handlers[key]) == 0 {
		delete(b.handlers, key)
	}
}

// Fire delivers event to every handler registered for key, in registration
// order, and returns how many handlers ran.
func (b *Bus) Fire(key binder.Key, event any) int {
	b.mu.Lock()
	hs := make([]registered, len(b.handlers[key]))
	copy(hs, b.handlers[key])
	b.mu.Unlock()

	for _, h := range hs {
		h.fn(event)
	}
	return len(hs)
}

// Handlers returns the number of live handlers for key.
func (b *Bus) Handlers(key binder.Key) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[key])
}

// Len returns the number of live handlers across all keys.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, hs := range b.handlers {
		n += len(hs)
	}
	return n
}

// Fire is a typed shorthand for bus.Fire(binder.KeyOf[E](), event).
func Fire[E any](bus *Bus, event E) int {
	return bus.Fire(binder.KeyOf[E](), event)
}
