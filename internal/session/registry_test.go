// ABOUTME: Tests for the session registry and derived presence transitions
// ABOUTME: Validates duplicate detection, idempotent deregistration, and multi-session presence

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhouse/chat-gateway/internal/protocol"
)

// recordingListener captures presence transitions for assertions.
type recordingListener struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (l *recordingListener) UserOnline(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.online = append(l.online, userID)
}

func (l *recordingListener) UserOffline(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offline = append(l.offline, userID)
}

func (l *recordingListener) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.online), len(l.offline)
}

func testConn(userID string) *Conn {
	return NewConn(ConnParams{
		UserID:       userID,
		EgressBuffer: 8,
		DedupeTTL:    time.Minute,
		DedupeSize:   100,
	})
}

func TestRegister_DuplicateConnection(t *testing.T) {
	reg := NewRegistry(nil)

	conn := testConn("alice")
	require.NoError(t, reg.Register(conn))

	err := reg.Register(conn)
	assert.ErrorIs(t, err, ErrDuplicateConnection)
}

func TestDeregister_Idempotent(t *testing.T) {
	reg := NewRegistry(nil)

	conn := testConn("alice")
	require.NoError(t, reg.Register(conn))

	assert.NotNil(t, reg.Deregister(conn.ID))
	assert.Nil(t, reg.Deregister(conn.ID), "second deregister must be a no-op")
	assert.Nil(t, reg.Deregister("never-registered"))
}

func TestPresence_MultiSessionUser(t *testing.T) {
	reg := NewRegistry(nil)
	listener := &recordingListener{}
	reg.SetPresenceListener(listener)

	c1 := testConn("alice")
	c2 := testConn("alice")

	require.NoError(t, reg.Register(c1))
	require.NoError(t, reg.Register(c2))

	online, offline := listener.counts()
	assert.Equal(t, 1, online, "only the 0->1 transition emits user-online")
	assert.Equal(t, 0, offline)
	assert.True(t, reg.IsOnline("alice"))

	reg.Deregister(c1.ID)
	assert.True(t, reg.IsOnline("alice"), "user with one remaining session stays online")
	_, offline = listener.counts()
	assert.Equal(t, 0, offline)

	reg.Deregister(c2.ID)
	assert.False(t, reg.IsOnline("alice"))
	online, offline = listener.counts()
	assert.Equal(t, 1, online)
	assert.Equal(t, 1, offline, "exactly one user-offline fires, not two")
}

func TestPresence_ListenerObservesCommittedState(t *testing.T) {
	reg := NewRegistry(nil)

	var sawOnline bool
	reg.SetPresenceListener(&funcListener{
		online: func(userID string) {
			// The registry mutation must be visible from inside the callback.
			sawOnline = reg.IsOnline(userID)
		},
		offline: func(userID string) {},
	})

	require.NoError(t, reg.Register(testConn("alice")))
	assert.True(t, sawOnline)
}

type funcListener struct {
	online  func(string)
	offline func(string)
}

func (l *funcListener) UserOnline(userID string)  { l.online(userID) }
func (l *funcListener) UserOffline(userID string) { l.offline(userID) }

func TestConnections_And_Get(t *testing.T) {
	reg := NewRegistry(nil)

	a1 := testConn("alice")
	a2 := testConn("alice")
	b1 := testConn("bob")
	require.NoError(t, reg.Register(a1))
	require.NoError(t, reg.Register(a2))
	require.NoError(t, reg.Register(b1))

	assert.Len(t, reg.Connections("alice"), 2)
	assert.Len(t, reg.Connections("bob"), 1)
	assert.Empty(t, reg.Connections("carol"))
	assert.Equal(t, 3, reg.Len())

	got, ok := reg.Get(a1.ID)
	require.True(t, ok)
	assert.Equal(t, a1, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestDeregister_ClosesConnection(t *testing.T) {
	reg := NewRegistry(nil)

	conn := testConn("alice")
	require.NoError(t, reg.Register(conn))

	reg.Deregister(conn.ID)
	assert.True(t, conn.Closed())

	// Events channel must be closed so the transport write pump exits.
	_, open := <-conn.Events()
	assert.False(t, open)
}

func TestConn_Deliver_DeduplicatesByEnvelopeID(t *testing.T) {
	conn := testConn("alice")
	defer conn.Close()

	env := &protocol.MessageEnvelope{
		ID:       "msg-1",
		ThreadID: "alice|bob",
		SenderID: "bob",
		Content:  "hello",
		Kind:     protocol.KindText,
	}

	assert.True(t, conn.Deliver(env), "first delivery queues the event")
	assert.False(t, conn.Deliver(env), "redelivery of the same id is a no-op")

	ev := <-conn.Events()
	assert.Equal(t, protocol.EventNewMessage, ev.Type)

	select {
	case extra := <-conn.Events():
		t.Fatalf("unexpected second event: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConn_Enqueue_DropsWhenFull(t *testing.T) {
	conn := NewConn(ConnParams{
		UserID:       "alice",
		EgressBuffer: 1,
		DedupeTTL:    time.Minute,
		DedupeSize:   10,
	})
	defer conn.Close()

	assert.True(t, conn.Enqueue(protocol.NewServerEvent(protocol.EventUserOnline, nil)))
	assert.False(t, conn.Enqueue(protocol.NewServerEvent(protocol.EventUserOnline, nil)),
		"second enqueue exceeds the buffer and is dropped, not blocked")
}

func TestConn_EnqueueAfterClose(t *testing.T) {
	conn := testConn("alice")
	conn.Close()
	conn.Close() // idempotent

	assert.False(t, conn.Enqueue(protocol.NewServerEvent(protocol.EventUserOnline, nil)))
	assert.False(t, conn.Deliver(&protocol.MessageEnvelope{ID: "msg-1"}))
}
