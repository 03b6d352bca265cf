// Package bus provides the in-process publish/subscribe fan-out that
// decouples the room transport from its consumers.
package bus

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler receives published events. Handlers run sequentially on the
// publisher's goroutine; a panicking handler is recovered and logged so it
// never blocks delivery to the remaining subscribers.
type Handler[T any] func(event T)

// Bus is a minimal fan-out for one event type. Construct one per bus kind
// at startup and inject it; there are no package-level instances.
type Bus[T any] struct {
	name   string
	logger *logrus.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler[T]
}

func New[T any](name string, logger *logrus.Logger) *Bus[T] {
	return &Bus[T]{
		name:   name,
		logger: logger,
		subs:   make(map[int]Handler[T]),
	}
}

// Subscribe registers a handler and returns its cancel function.
func (b *Bus[T]) Subscribe(fn Handler[T]) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers event to every subscriber. Subscriber failures are
// isolated: delivery continues past a panicking handler.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	handlers := make([]Handler[T], 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.deliver(fn, event)
	}
}

func (b *Bus[T]) deliver(fn Handler[T], event T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"bus":   b.name,
				"panic": r,
			}).Error("Bus subscriber panicked, continuing delivery")
		}
	}()
	fn(event)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
