package events

import (
	"context"
	"log/slog"
	"sync"
)

// Handler receives events synchronously on Publish.
type Handler func(event Event)

// MemoryBus is an in-process Publisher with subscription support. It backs
// the service when no Kafka brokers are configured and drives assertions in
// tests through its history.
type MemoryBus struct {
	mu       sync.Mutex
	logger   *slog.Logger
	handlers map[string][]Handler
	history  []Event
}

func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	return &MemoryBus{
		logger:   logger,
		handlers: map[string][]Handler{},
	}
}

// Subscribe registers a handler for one event name.
func (b *MemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	b.mu.Lock()
	b.history = append(b.history, event)
	handlers := make([]Handler, len(b.handlers[event.Name]))
	copy(handlers, b.handlers[event.Name])
	b.mu.Unlock()

	b.logger.InfoContext(ctx, "event published",
		"event", event.Name,
		"transaction_id", event.TransactionID,
		"request_id", event.CorrelationID,
		"handler_count", len(handlers),
	)

	for _, handler := range handlers {
		handler(event)
	}
	return nil
}

func (b *MemoryBus) Close(context.Context) error {
	return nil
}

// History returns every published event in order.
func (b *MemoryBus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}
