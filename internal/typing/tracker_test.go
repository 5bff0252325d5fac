// ABOUTME: Tests for the typing tracker's edge semantics and timer expiry
// ABOUTME: Covers refresh-without-edge, lapse callbacks, and explicit stops

package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildhouse/chat-gateway/internal/thread"
)

type lapseRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *lapseRecorder) record(threadID thread.ID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, string(threadID)+"/"+userID)
}

func (r *lapseRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func testThreadID(t *testing.T) thread.ID {
	t.Helper()
	id, err := thread.Resolve("alice", "bob")
	require.NoError(t, err)
	return id
}

func TestSignal_StartEdgeOnlyOnce(t *testing.T) {
	tr := NewTracker(time.Minute, nil, nil)
	defer tr.Close()
	tid := testThreadID(t)

	assert.Equal(t, EdgeStarted, tr.Signal(tid, "alice", true))
	assert.Equal(t, EdgeNone, tr.Signal(tid, "alice", true), "repeat start refreshes silently")
	assert.Equal(t, EdgeNone, tr.Signal(tid, "alice", true))
	assert.True(t, tr.IsTyping(tid, "alice"))
}

func TestSignal_StopEdge(t *testing.T) {
	tr := NewTracker(time.Minute, nil, nil)
	defer tr.Close()
	tid := testThreadID(t)

	assert.Equal(t, EdgeNone, tr.Signal(tid, "alice", false), "stop while not typing is a no-op")

	tr.Signal(tid, "alice", true)
	assert.Equal(t, EdgeStopped, tr.Signal(tid, "alice", false))
	assert.False(t, tr.IsTyping(tid, "alice"))
	assert.Equal(t, EdgeNone, tr.Signal(tid, "alice", false))
}

func TestSignal_IndependentPerUserAndThread(t *testing.T) {
	tr := NewTracker(time.Minute, nil, nil)
	defer tr.Close()
	tid := testThreadID(t)
	other, err := thread.Resolve("alice", "carol")
	require.NoError(t, err)

	tr.Signal(tid, "alice", true)
	assert.False(t, tr.IsTyping(tid, "bob"))
	assert.False(t, tr.IsTyping(other, "alice"))
}

func TestExpiry_FiresOnceAfterWindow(t *testing.T) {
	rec := &lapseRecorder{}
	tr := NewTracker(30*time.Millisecond, rec.record, nil)
	defer tr.Close()
	tid := testThreadID(t)

	tr.Signal(tid, "alice", true)

	assert.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 5*time.Millisecond)
	assert.False(t, tr.IsTyping(tid, "alice"))

	// No further lapses after the state is gone.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestExpiry_RefreshPostponesLapse(t *testing.T) {
	rec := &lapseRecorder{}
	tr := NewTracker(50*time.Millisecond, rec.record, nil)
	defer tr.Close()
	tid := testThreadID(t)

	tr.Signal(tid, "alice", true)
	time.Sleep(30 * time.Millisecond)
	tr.Signal(tid, "alice", true) // refresh

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, rec.count(), "refreshed state must not lapse on the original schedule")
	assert.True(t, tr.IsTyping(tid, "alice"))
}

func TestLapse_LosingRaceAgainstRefreshIsIgnored(t *testing.T) {
	rec := &lapseRecorder{}
	tr := NewTracker(time.Minute, rec.record, nil)
	defer tr.Close()
	tid := testThreadID(t)
	key := pairKey{threadID: tid, userID: "alice"}

	tr.Signal(tid, "alice", true)
	assert.Equal(t, EdgeNone, tr.Signal(tid, "alice", true), "refresh is silent")

	// A timer callback queued before the refresh ran arrives late. The
	// deadline has moved, so it must neither clear the state nor emit a stop.
	tr.lapse(key)

	assert.True(t, tr.IsTyping(tid, "alice"), "refreshed state survives a stale lapse")
	assert.Zero(t, rec.count())
}

func TestLapse_FromBeforeStopThenRestartIsIgnored(t *testing.T) {
	rec := &lapseRecorder{}
	tr := NewTracker(time.Minute, rec.record, nil)
	defer tr.Close()
	tid := testThreadID(t)
	key := pairKey{threadID: tid, userID: "alice"}

	tr.Signal(tid, "alice", true)
	tr.Signal(tid, "alice", false)
	tr.Signal(tid, "alice", true)

	// Stale callback held over from the first start. The re-created state
	// has its own deadline and must be left alone.
	tr.lapse(key)

	assert.True(t, tr.IsTyping(tid, "alice"))
	assert.Zero(t, rec.count())
}

func TestExplicitStop_CancelsExpiry(t *testing.T) {
	rec := &lapseRecorder{}
	tr := NewTracker(30*time.Millisecond, rec.record, nil)
	defer tr.Close()
	tid := testThreadID(t)

	tr.Signal(tid, "alice", true)
	tr.Signal(tid, "alice", false)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, rec.count(), "explicit stop must suppress the lapse callback")
}

func TestStopAll(t *testing.T) {
	tr := NewTracker(time.Minute, nil, nil)
	defer tr.Close()
	t1 := testThreadID(t)
	t2, err := thread.Resolve("alice", "carol")
	require.NoError(t, err)

	tr.Signal(t1, "alice", true)
	tr.Signal(t2, "alice", true)
	tr.Signal(t1, "bob", true)

	stopped := tr.StopAll("alice")
	assert.ElementsMatch(t, []thread.ID{t1, t2}, stopped)
	assert.False(t, tr.IsTyping(t1, "alice"))
	assert.True(t, tr.IsTyping(t1, "bob"), "other users' state is untouched")
}

func TestClose_SuppressesPendingLapses(t *testing.T) {
	rec := &lapseRecorder{}
	tr := NewTracker(20*time.Millisecond, rec.record, nil)
	tid := testThreadID(t)

	tr.Signal(tid, "alice", true)
	tr.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.count())
	assert.Equal(t, EdgeNone, tr.Signal(tid, "alice", true), "closed tracker ignores signals")
}
