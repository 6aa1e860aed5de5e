// Package pubsub provides a small multicast notification bus used for the
// conflict-detected, conflict-resolved, sync-trigger, and recovery-result
// channels. Delivery is fire-and-forget: every current subscriber receives
// every published value independently, and nothing is buffered for
// subscribers that attach later.
package pubsub

import "sync"

// Bus fans published values out to all registered handlers. Handlers run on
// their own goroutines so a slow or panicking subscriber cannot stall
// publishing or other subscribers.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   map[int]func(T)
	nextID int
	closed bool
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]func(T))}
}

// Subscribe registers a handler and returns a function that removes it.
// Subscribing to a closed bus returns a no-op unsubscribe and the handler
// is never invoked.
func (b *Bus[T]) Subscribe(handler func(T)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers v to every current subscriber. Panics inside a handler
// are recovered so one misbehaving subscriber cannot take the process down.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	handlers := make([]func(T), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(T)) {
			defer func() {
				_ = recover()
			}()
			h(v)
		}(handler)
	}
}

// SubscriberCount returns the number of registered handlers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes all subscribers and rejects future subscriptions.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[int]func(T))
}
