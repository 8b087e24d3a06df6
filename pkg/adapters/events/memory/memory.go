package memory

import (
	"context"
	"sync"

	"github.com/aescanero/taskdag/pkg/ports"
	"go.uber.org/zap"
)

// subscription pairs a handler with an identifier so it can be removed
// individually when its subscriber's context ends.
type subscription struct {
	id      uint64
	handler ports.EventHandler
}

// EventBus implements ports.EventBus with in-process handler dispatch.
// Handlers run asynchronously so a slow subscriber never blocks the
// publisher; a failing handler never affects delivery to the others.
type EventBus struct {
	subscribers map[string][]subscription
	nextID      uint64
	logger      *zap.Logger
	mu          sync.RWMutex
}

// NewEventBus creates a new in-memory event bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]subscription),
		logger:      logger,
	}
}

// Publish delivers an event to every subscriber of the topic.
func (e *EventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	e.mu.RLock()
	handlers := make([]ports.EventHandler, 0, len(e.subscribers[topic]))
	for _, sub := range e.subscribers[topic] {
		handlers = append(handlers, sub.handler)
	}
	e.mu.RUnlock()

	for _, handler := range handlers {
		go func(h ports.EventHandler) {
			if err := h(ctx, event); err != nil {
				e.logger.Warn("event handler error",
					zap.String("topic", topic),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}(handler)
	}

	return nil
}

// Subscribe registers a handler for events on a topic. The subscription is
// removed when ctx is cancelled, so per-connection subscribers do not
// accumulate after their connections close.
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subscribers[topic] = append(e.subscribers[topic], subscription{id: id, handler: handler})
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(topic, id)
	}()

	return nil
}

// Unsubscribe removes all subscriptions from a topic.
func (e *EventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subscribers, topic)
	return nil
}

// Close drops all subscribers.
func (e *EventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscribers = make(map[string][]subscription)
	return nil
}

// remove drops a single subscription from a topic.
func (e *EventBus) remove(topic string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[topic]
	for i, sub := range subs {
		if sub.id == id {
			e.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}
