package realtime

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeConn implements Conn for tests, recording sent events
type fakeConn struct {
	id     string
	userID string

	mu     sync.Mutex
	events []Event
	closed bool
	fail   error
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestRegistry_RegisterReportsFirstConnection(t *testing.T) {
	registry := NewRegistry(testLogger())

	first := registry.Register(newFakeConn("c1", "user-1"))
	second := registry.Register(newFakeConn("c2", "user-1"))

	assert.True(t, first)
	assert.False(t, second)
	assert.Len(t, registry.ConnectionsByIdentity("user-1"), 2)
}

func TestRegistry_UnregisterReportsLastConnection(t *testing.T) {
	registry := NewRegistry(testLogger())

	c1 := newFakeConn("c1", "user-1")
	c2 := newFakeConn("c2", "user-1")
	registry.Register(c1)
	registry.Register(c2)

	assert.False(t, registry.Unregister(c1, nil))
	assert.True(t, registry.Unregister(c2, nil))
	assert.Empty(t, registry.ConnectionsByIdentity("user-1"))
}

func TestRegistry_UnregisterLeavesJoinedRooms(t *testing.T) {
	registry := NewRegistry(testLogger())

	conn := newFakeConn("c1", "user-1")
	registry.Register(conn)

	room := ProjectRoom("p1")
	registry.Join(conn, room)
	assert.Len(t, registry.ConnectionsByRoom(room), 1)

	registry.Unregister(conn, []Room{room})
	assert.Empty(t, registry.ConnectionsByRoom(room))
}

func TestRegistry_RoomMembershipIsPerConnection(t *testing.T) {
	registry := NewRegistry(testLogger())

	c1 := newFakeConn("c1", "user-1")
	c2 := newFakeConn("c2", "user-1")
	registry.Register(c1)
	registry.Register(c2)

	room := ProjectRoom("p1")
	registry.Join(c1, room)
	registry.Join(c2, room)

	registry.Leave(c1, room)

	// The identity's other connection stays subscribed
	subscribers := registry.ConnectionsByRoom(room)
	assert.Len(t, subscribers, 1)
	assert.Equal(t, "c2", subscribers[0].ID())
}

func TestRegistry_SnapshotOfUnknownKeyIsEmpty(t *testing.T) {
	registry := NewRegistry(testLogger())

	assert.Empty(t, registry.ConnectionsByIdentity("nobody"))
	assert.Empty(t, registry.ConnectionsByRoom(ProjectRoom("no-project")))
}

func TestRegistry_CloseAllClosesEveryConnection(t *testing.T) {
	registry := NewRegistry(testLogger())

	conns := []*fakeConn{
		newFakeConn("c1", "user-1"),
		newFakeConn("c2", "user-1"),
		newFakeConn("c3", "user-2"),
	}
	for _, c := range conns {
		registry.Register(c)
	}

	registry.CloseAll()

	for _, c := range conns {
		assert.True(t, c.isClosed())
	}
}

func TestRegistry_ConcurrentChurnKeepsIndexConsistent(t *testing.T) {
	registry := NewRegistry(testLogger())
	room := ProjectRoom("p1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("c%d", n), "user-1")
			registry.Register(conn)
			registry.Join(conn, room)
			registry.Leave(conn, room)
			registry.Unregister(conn, nil)
		}(i)
	}
	wg.Wait()

	assert.Empty(t, registry.ConnectionsByIdentity("user-1"))
	assert.Empty(t, registry.ConnectionsByRoom(room))

	// A drained entry must not leave a dead group behind that swallows
	// later registrations
	assert.True(t, registry.Register(newFakeConn("fresh", "user-1")))
	assert.Len(t, registry.ConnectionsByIdentity("user-1"), 1)
}
