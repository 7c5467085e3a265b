// Package binder is the runtime half of eventbinder. Generated code builds a
// Binder for every type that carries //eventbinder:handler methods, and
// callers connect an owner value to their event bus with BindEventHandlers.
//
// The package does not ship an event bus. Any bus that can register a
// handler for a Key and hand back a Registration satisfies EventBus.
package binder

import (
	"fmt"
	"strings"
	"sync"
)

// Key identifies an event type. Keys are comparable and two keys are equal
// exactly when they were produced by KeyOf with the same type argument.
type Key struct {
	t any
}

// KeyOf returns the Key of event type E.
func KeyOf[E any]() Key {
	return Key{t: (*E)(nil)}
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k.t == nil
}

// String returns the Go type name the key stands for, for logs and errors.
func (k Key) String() string {
	if k.t == nil {
		return "<nil>"
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", k.t), "*")
}

// HandlerFunc receives one fired event. The dynamic type of event is the
// type the handler was registered for.
type HandlerFunc func(event any)

// Registration removes a previously added handler.
type Registration interface {
	RemoveHandler()
}

// EventBus is the part of an event bus a Binder needs.
type EventBus interface {
	AddHandler(key Key, handler HandlerFunc) Registration
}

// RegistrationFunc adapts a plain function to Registration.
type RegistrationFunc func()

// RemoveHandler calls f.
func (f RegistrationFunc) RemoveHandler() { f() }

// Entry is one handler method of owner type T bound to one event type.
type Entry[T any] struct {
	Method string
	Key    Key
	call   func(owner T, event any)
}

// Handle returns the entry that routes events of type E to fn. method names
// the handler method fn calls and is only used for inspection.
func Handle[T, E any](method string, fn func(owner T, event E)) Entry[T] {
	if fn == nil {
		panic("binder: Handle called with nil func for " + method)
	}
	return Entry[T]{
		Method: method,
		Key:    KeyOf[E](),
		call: func(owner T, event any) {
			fn(owner, event.(E))
		},
	}
}

// Binder connects the handler methods of an owner of type T to an EventBus.
// A Binder is immutable and may be shared between goroutines.
type Binder[T any] struct {
	entries []Entry[T]
}

// New builds a Binder from entries, in order.
func New[T any](entries ...Entry[T]) *Binder[T] {
	b := &Binder[T]{entries: make([]Entry[T], 0, len(entries))}
	for _, e := range entries {
		if e.call == nil {
			panic("binder: entry " + e.Method + " was not created with Handle")
		}
		b.entries = append(b.entries, e)
	}
	return b
}

// BindEventHandlers registers every entry of b for owner on bus. The returned
// Registration removes all of them.
func (b *Binder[T]) BindEventHandlers(owner T, bus EventBus) Registration {
	if bus == nil {
		panic("binder: BindEventHandlers called with nil EventBus")
	}

	regs := make([]Registration, 0, len(b.entries))
	for _, e := range b.entries {
		call := e.call
		regs = append(regs, bus.AddHandler(e.Key, func(event any) {
			call(owner, event)
		}))
	}
	return &multiRegistration{regs: regs}
}

// Entries returns a copy of the entries of b.
func (b *Binder[T]) Entries() []Entry[T] {
	out := make([]Entry[T], len(b.entries))
	copy(out, b.entries)
	return out
}

// Keys returns the distinct event keys of b in first-seen order.
func (b *Binder[T]) Keys() []Key {
	seen := make(map[Key]bool, len(b.entries))
	var keys []Key
	for _, e := range b.entries {
		if !seen[e.Key] {
			seen[e.Key] = true
			keys = append(keys, e.Key)
		}
	}
	return keys
}

type multiRegistration struct {
	once sync.Once
	regs []Registration
}

func (m *multiRegistration) RemoveHandler() {
	m.once.Do(func() {
		for _, r := range m.regs {
			if r != nil {
				r.RemoveHandler()
			}
		}
		m.regs = nil
	})
}
