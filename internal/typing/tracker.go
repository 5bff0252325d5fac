// ABOUTME: Typing state machine with per-user debounce timers
// ABOUTME: Emits edges only; repeated starts refresh the expiry silently

package typing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/guildhouse/chat-gateway/internal/thread"
)

// Edge is the observable transition produced by a typing signal. Repeated
// signals in the same state produce EdgeNone so counterparts only hear about
// actual changes.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeStarted
	EdgeStopped
)

// ExpireFunc is invoked when a typing state lapses without an explicit stop.
// It runs on a timer goroutine; implementations must not call back into the
// Tracker synchronously while holding their own locks shared with Signal
// callers.
type ExpireFunc func(threadID thread.ID, userID string)

type pairKey struct {
	threadID thread.ID
	userID   string
}

// pairState carries the debounce timer for one active (thread, user) pair.
// The deadline is the authoritative expiry: a lapse callback that observes a
// deadline still in the future lost a race against a refresh (or against a
// stop-then-start that re-created the state) and must not clear anything.
type pairState struct {
	timer    *time.Timer
	deadline time.Time
}

// Tracker holds per-(thread, user) typing state. Each active state carries a
// debounce timer; a fresh start refreshes the timer without producing an
// edge, and the timer firing is equivalent to an explicit stop.
type Tracker struct {
	mu     sync.Mutex
	active map[pairKey]*pairState
	window time.Duration
	expire ExpireFunc
	closed bool
	logger *slog.Logger
}

// NewTracker creates a tracker whose typing states lapse after window unless
// refreshed. expire is called for timer-driven stops only; explicit stops
// return EdgeStopped from Signal instead.
func NewTracker(window time.Duration, expire ExpireFunc, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		active: make(map[pairKey]*pairState),
		window: window,
		expire: expire,
		logger: logger.With("component", "typing"),
	}
}

// Signal records a typing-start or typing-stop from a participant and
// returns the resulting edge. Starts while already typing refresh the expiry
// timer and return EdgeNone; stops while not typing return EdgeNone.
func (t *Tracker) Signal(threadID thread.ID, userID string, typing bool) Edge {
	key := pairKey{threadID: threadID, userID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return EdgeNone
	}

	st, isTyping := t.active[key]

	if typing {
		if isTyping {
			// Reset reschedules the callback even when the timer already
			// fired; a callback queued from the old deadline sees the new
			// one and backs off.
			st.deadline = time.Now().Add(t.window)
			st.timer.Reset(t.window)
			return EdgeNone
		}
		st = &pairState{deadline: time.Now().Add(t.window)}
		st.timer = time.AfterFunc(t.window, func() {
			t.lapse(key)
		})
		t.active[key] = st
		return EdgeStarted
	}

	if !isTyping {
		return EdgeNone
	}
	st.timer.Stop()
	delete(t.active, key)
	return EdgeStopped
}

// lapse handles a debounce timer firing. The callback may race an explicit
// stop or a refresh: the map entry plus its deadline are the source of truth,
// never the timer that happened to fire.
func (t *Tracker) lapse(key pairKey) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	st, isTyping := t.active[key]
	if !isTyping || time.Now().Before(st.deadline) {
		t.mu.Unlock()
		return
	}
	delete(t.active, key)
	expire := t.expire
	t.mu.Unlock()

	t.logger.Debug("typing state lapsed", "thread_id", key.threadID, "user_id", key.userID)
	if expire != nil {
		expire(key.threadID, key.userID)
	}
}

// IsTyping reports whether the user is currently typing in the thread.
func (t *Tracker) IsTyping(threadID thread.ID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[pairKey{threadID: threadID, userID: userID}]
	return ok
}

// StopAll clears every typing state held by the user and returns the threads
// they were typing in. No ExpireFunc calls are made; the caller emits any
// departure side effects itself.
func (t *Tracker) StopAll(userID string) []thread.ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stopped []thread.ID
	for key, st := range t.active {
		if key.userID != userID {
			continue
		}
		st.timer.Stop()
		delete(t.active, key)
		stopped = append(stopped, key.threadID)
	}
	return stopped
}

// Close stops all timers and disables the tracker. Pending lapse callbacks
// that already fired become no-ops.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for key, st := range t.active {
		st.timer.Stop()
		delete(t.active, key)
	}
}
