package audit

import "context"

// ChannelStore decouples audit appends from the request path. Append hands
// the event to a buffered channel drained by a Worker; when the buffer is
// full the append falls through to the backing store synchronously so no
// event is ever dropped. Reads always hit the backing store.
type ChannelStore struct {
	backing Store
	outbox  chan Event
}

// NewChannelStore wraps backing with an async append path. The returned
// channel is the worker's inbox.
func NewChannelStore(backing Store, buffer int) (*ChannelStore, <-chan Event) {
	if buffer <= 0 {
		buffer = 256
	}
	cs := &ChannelStore{backing: backing, outbox: make(chan Event, buffer)}
	return cs, cs.outbox
}

func (c *ChannelStore) Append(ctx context.Context, event Event) error {
	select {
	case c.outbox <- event:
		return nil
	default:
		return c.backing.Append(ctx, event)
	}
}

func (c *ChannelStore) ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	return c.backing.ListByEntity(ctx, entityType, entityID)
}

func (c *ChannelStore) ListByCorrelation(ctx context.Context, correlationID string) ([]Event, error) {
	return c.backing.ListByCorrelation(ctx, correlationID)
}
