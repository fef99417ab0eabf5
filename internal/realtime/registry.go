package realtime

import (
	"log/slog"
	"sync"
)

// Conn is one live transport link for one identity. An identity may hold
// several concurrently (multiple tabs or devices).
type Conn interface {
	ID() string
	UserID() string
	Send(event Event) error
	Close()
}

// Registry maps authenticated identities to their live connections and
// rooms to their subscribers. It is process-local state owned by the
// server instance and injected where needed, never a package global.
//
// Both indexes are sync.Maps of entries carrying their own mutex, so
// connect/disconnect traffic for unrelated identities and rooms never
// serializes on a shared lock.
type Registry struct {
	identities sync.Map // userID -> *connGroup
	rooms      sync.Map // Room -> *connGroup
	logger     *slog.Logger
}

// connGroup is a mutable set of connections guarded by its own mutex.
// A drained group is flagged dead and removed from its index; lookups
// that race the removal retry against a fresh entry.
type connGroup struct {
	mu    sync.Mutex
	conns map[string]Conn
	dead  bool
}

// NewRegistry creates an empty connection registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a connection to its identity's set and reports whether
// it is the identity's first live connection.
func (r *Registry) Register(conn Conn) bool {
	group, unlock := r.group(&r.identities, conn.UserID())
	defer unlock()

	first := len(group.conns) == 0
	group.conns[conn.ID()] = conn

	r.logger.Debug("connection registered",
		slog.String("connection_id", conn.ID()),
		slog.String("user_id", conn.UserID()))

	return first
}

// Unregister removes a connection from its identity's set and from every
// room it joined, and reports whether the identity has no connections
// left. A drained identity entry is removed entirely; no empty sets
// linger in the registry.
func (r *Registry) Unregister(conn Conn, joined []Room) bool {
	for _, room := range joined {
		r.removeFrom(&r.rooms, roomKey(room), conn.ID())
	}

	last := r.removeFrom(&r.identities, conn.UserID(), conn.ID())

	r.logger.Debug("connection unregistered",
		slog.String("connection_id", conn.ID()),
		slog.String("user_id", conn.UserID()))

	return last
}

// Join subscribes a connection to a room. Authorization happens in the
// room router before this is called.
func (r *Registry) Join(conn Conn, room Room) {
	group, unlock := r.group(&r.rooms, roomKey(room))
	defer unlock()

	group.conns[conn.ID()] = conn
}

// Leave unsubscribes a connection from a room
func (r *Registry) Leave(conn Conn, room Room) {
	r.removeFrom(&r.rooms, roomKey(room), conn.ID())
}

// ConnectionsByIdentity returns a snapshot of an identity's live
// connections. Connections registered after the snapshot simply miss
// whatever is sent to it.
func (r *Registry) ConnectionsByIdentity(userID string) []Conn {
	return r.snapshot(&r.identities, userID)
}

// ConnectionsByRoom returns a snapshot of a room's subscribers
func (r *Registry) ConnectionsByRoom(room Room) []Conn {
	return r.snapshot(&r.rooms, roomKey(room))
}

// CloseAll closes every registered connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.identities.Range(func(_, value interface{}) bool {
		group := value.(*connGroup)
		group.mu.Lock()
		conns := make([]Conn, 0, len(group.conns))
		for _, c := range group.conns {
			conns = append(conns, c)
		}
		group.mu.Unlock()

		for _, c := range conns {
			c.Close()
		}
		return true
	})
}

// group returns the locked entry for key, creating it if absent. The
// caller must invoke the returned unlock function.
func (r *Registry) group(index *sync.Map, key interface{}) (*connGroup, func()) {
	for {
		value, _ := index.LoadOrStore(key, &connGroup{conns: make(map[string]Conn)})
		group := value.(*connGroup)
		group.mu.Lock()
		if group.dead {
			// Lost a race with removal; retry against a fresh entry
			group.mu.Unlock()
			continue
		}
		return group, group.mu.Unlock
	}
}

// removeFrom deletes a connection id from an index entry, dropping the
// entry itself once empty. Reports whether the entry was drained.
func (r *Registry) removeFrom(index *sync.Map, key interface{}, connID string) bool {
	value, ok := index.Load(key)
	if !ok {
		return false
	}

	group := value.(*connGroup)
	group.mu.Lock()
	defer group.mu.Unlock()

	delete(group.conns, connID)
	if len(group.conns) == 0 && !group.dead {
		group.dead = true
		index.Delete(key)
		return true
	}
	return false
}

func (r *Registry) snapshot(index *sync.Map, key interface{}) []Conn {
	value, ok := index.Load(key)
	if !ok {
		return nil
	}

	group := value.(*connGroup)
	group.mu.Lock()
	defer group.mu.Unlock()

	conns := make([]Conn, 0, len(group.conns))
	for _, c := range group.conns {
		conns = append(conns, c)
	}
	return conns
}

// roomKey normalizes a Room for use as a sync.Map key
func roomKey(room Room) string {
	return string(room)
}
