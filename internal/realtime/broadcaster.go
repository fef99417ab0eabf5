package realtime

import (
	"log/slog"
)

// Broadcaster fans typed events out to rooms or to a single identity's
// connection set. Publishing is synchronous and fire-and-forget: it
// iterates a snapshot of the target's current connections, a failed or
// slow connection is logged and skipped, and nothing is retried or
// persisted for recipients that are not registered at publish time.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

// NewBroadcaster creates a new Broadcaster over a registry
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   logger,
	}
}

// ToRoom publishes an event to every connection in a room
func (b *Broadcaster) ToRoom(room Room, event Event) {
	b.deliver(b.registry.ConnectionsByRoom(room), event, slog.String("room", string(room)))
}

// ToIdentity publishes an event to every connection an identity holds
func (b *Broadcaster) ToIdentity(userID string, event Event) {
	b.deliver(b.registry.ConnectionsByIdentity(userID), event, slog.String("user_id", userID))
}

func (b *Broadcaster) deliver(conns []Conn, event Event, target slog.Attr) {
	for _, conn := range conns {
		if err := conn.Send(event); err != nil {
			// Isolated per connection; the rest of the set still gets
			// the event
			b.logger.Warn("dropped realtime event",
				slog.String("event_type", string(event.Type)),
				slog.String("connection_id", conn.ID()),
				slog.Any("error", err),
				target)
		}
	}
}
