// ABOUTME: Tests for message fan-out and read-receipt coordination
// ABOUTME: Uses the real registry and room manager with a stubbed store

package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhouse/chat-gateway/internal/protocol"
	"github.com/guildhouse/chat-gateway/internal/room"
	"github.com/guildhouse/chat-gateway/internal/session"
	"github.com/guildhouse/chat-gateway/internal/thread"
)

func testConn(t *testing.T, reg *session.Registry, userID string) *session.Conn {
	t.Helper()
	conn := session.NewConn(session.ConnParams{
		UserID:       userID,
		EgressBuffer: 8,
		DedupeTTL:    time.Minute,
		DedupeSize:   100,
	})
	require.NoError(t, reg.Register(conn))
	return conn
}

func drainOne(t *testing.T, conn *session.Conn) *protocol.ServerEvent {
	t.Helper()
	select {
	case ev := <-conn.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, conn *session.Conn) {
	t.Helper()
	select {
	case ev := <-conn.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatch_FansOutToRoomMembersExceptSender(t *testing.T) {
	reg := session.NewRegistry(nil)
	rooms := room.NewManager(nil)
	d := NewDispatcher(rooms, reg, nil)

	alice := testConn(t, reg, "alice")
	bob := testConn(t, reg, "bob")
	carol := testConn(t, reg, "carol")

	tid, err := thread.Resolve("alice", "bob")
	require.NoError(t, err)
	rooms.Join(alice.ID, tid)
	rooms.Join(bob.ID, tid)
	// carol never joins.

	env := &protocol.MessageEnvelope{
		ID:       "msg-1",
		ThreadID: string(tid),
		SenderID: "alice",
		Content:  "hello",
		Kind:     protocol.KindText,
	}

	delivered := d.Dispatch(env, alice.ID)
	assert.Equal(t, 1, delivered)

	ev := drainOne(t, bob)
	assert.Equal(t, protocol.EventNewMessage, ev.Type)
	got, ok := ev.Data.(*protocol.MessageEnvelope)
	require.True(t, ok)
	assert.Equal(t, "msg-1", got.ID)

	assertNoEvent(t, alice)
	assertNoEvent(t, carol)
}

func TestDispatch_RedeliveryIsIdempotent(t *testing.T) {
	reg := session.NewRegistry(nil)
	rooms := room.NewManager(nil)
	d := NewDispatcher(rooms, reg, nil)

	bob := testConn(t, reg, "bob")
	tid, err := thread.Resolve("alice", "bob")
	require.NoError(t, err)
	rooms.Join(bob.ID, tid)

	env := &protocol.MessageEnvelope{ID: "msg-1", ThreadID: string(tid), SenderID: "alice", Content: "x", Kind: protocol.KindText}

	assert.Equal(t, 1, d.Dispatch(env, ""))
	assert.Equal(t, 0, d.Dispatch(env, ""), "same envelope id must not be queued twice")

	drainOne(t, bob)
	assertNoEvent(t, bob)
}

func TestDispatch_SkipsDisconnectedMembers(t *testing.T) {
	reg := session.NewRegistry(nil)
	rooms := room.NewManager(nil)
	d := NewDispatcher(rooms, reg, nil)

	bob := testConn(t, reg, "bob")
	tid, err := thread.Resolve("alice", "bob")
	require.NoError(t, err)
	rooms.Join(bob.ID, tid)

	// Simulate a disconnect that raced the fan-out: the room still lists the
	// connection but the registry no longer does.
	reg.Deregister(bob.ID)

	env := &protocol.MessageEnvelope{ID: "msg-1", ThreadID: string(tid), SenderID: "alice", Content: "x", Kind: protocol.KindText}
	assert.Equal(t, 0, d.Dispatch(env, ""))
}

func TestBroadcast_SuppressesOrigin(t *testing.T) {
	reg := session.NewRegistry(nil)
	rooms := room.NewManager(nil)
	d := NewDispatcher(rooms, reg, nil)

	alice := testConn(t, reg, "alice")
	bob := testConn(t, reg, "bob")
	tid, err := thread.Resolve("alice", "bob")
	require.NoError(t, err)
	rooms.Join(alice.ID, tid)
	rooms.Join(bob.ID, tid)

	ev := protocol.NewServerEvent(protocol.EventTypingStart, &protocol.TypingSignal{
		ThreadID: string(tid),
		UserID:   "alice",
	})
	assert.Equal(t, 1, d.Broadcast(tid, ev, alice.ID))

	got := drainOne(t, bob)
	assert.Equal(t, protocol.EventTypingStart, got.Type)
	assertNoEvent(t, alice)
}

// fakeStore records MarkRead calls and can be told to fail.
type fakeStore struct {
	markErr   error
	markCalls int
}

func (s *fakeStore) Append(ctx context.Context, threadID, senderID, content, kind string) (*protocol.MessageEnvelope, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStore) MarkRead(ctx context.Context, threadID, readerID, upToMessageID string) error {
	s.markCalls++
	return s.markErr
}

func (s *fakeStore) Messages(ctx context.Context, threadID string, since time.Time, limit int) ([]*protocol.MessageEnvelope, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

func TestMarkRead_NotifiesCounterpartOnly(t *testing.T) {
	reg := session.NewRegistry(nil)
	st := &fakeStore{}
	c := NewReceiptCoordinator(st, reg, nil)

	alice := testConn(t, reg, "alice")
	bob1 := testConn(t, reg, "bob")
	bob2 := testConn(t, reg, "bob")

	tid, err := thread.Resolve("alice", "bob")
	require.NoError(t, err)

	receipt, err := c.MarkRead(context.Background(), tid, "alice", "msg-9")
	require.NoError(t, err)
	assert.Equal(t, "alice", receipt.ReaderID)
	assert.Equal(t, "msg-9", receipt.ReadUpToMessageID)
	assert.Equal(t, 1, st.markCalls)

	for _, conn := range []*session.Conn{bob1, bob2} {
		ev := drainOne(t, conn)
		assert.Equal(t, protocol.EventMessagesRead, ev.Type)
		got, ok := ev.Data.(*protocol.ReadReceipt)
		require.True(t, ok)
		assert.Equal(t, string(tid), got.ThreadID)
	}
	assertNoEvent(t, alice)
}

func TestMarkRead_StoreFailureSuppressesBroadcast(t *testing.T) {
	reg := session.NewRegistry(nil)
	st := &fakeStore{markErr: errors.New("disk full")}
	c := NewReceiptCoordinator(st, reg, nil)

	bob := testConn(t, reg, "bob")
	tid, err := thread.Resolve("alice", "bob")
	require.NoError(t, err)

	_, err = c.MarkRead(context.Background(), tid, "alice", "msg-9")
	require.Error(t, err)
	assertNoEvent(t, bob)
}

func TestMarkRead_NonParticipant(t *testing.T) {
	reg := session.NewRegistry(nil)
	c := NewReceiptCoordinator(&fakeStore{}, reg, nil)

	tid, err := thread.Resolve("alice", "bob")
	require.NoError(t, err)

	_, err = c.MarkRead(context.Background(), tid, "mallory", "msg-1")
	assert.Error(t, err)
}
