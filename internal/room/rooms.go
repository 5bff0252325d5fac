// ABOUTME: Room membership tracking which connections are joined to which thread
// ABOUTME: Scopes broadcasts to participants; cleared automatically on disconnect

package room

import (
	"log/slog"
	"sync"

	"github.com/guildhouse/chat-gateway/internal/thread"
)

// Manager tracks which connections are currently joined to which thread's
// room. Join and Leave are idempotent; LeaveAll is wired into the disconnect
// path so a dead connection can never linger in a member set. Safe for
// concurrent use.
type Manager struct {
	mu      sync.RWMutex
	members map[thread.ID]map[string]struct{} // thread -> conn ids
	joined  map[string]map[thread.ID]struct{} // conn id -> threads, for LeaveAll
	logger  *slog.Logger
}

// NewManager creates an empty membership manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		members: make(map[thread.ID]map[string]struct{}),
		joined:  make(map[string]map[thread.ID]struct{}),
		logger:  logger.With("component", "rooms"),
	}
}

// Join subscribes a connection to a thread's room. Joining twice is a no-op.
func (m *Manager) Join(connID string, threadID thread.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.members[threadID]
	if !ok {
		conns = make(map[string]struct{})
		m.members[threadID] = conns
	}
	if _, already := conns[connID]; already {
		return
	}
	conns[connID] = struct{}{}

	threads, ok := m.joined[connID]
	if !ok {
		threads = make(map[thread.ID]struct{})
		m.joined[connID] = threads
	}
	threads[threadID] = struct{}{}

	m.logger.Debug("connection joined room", "conn_id", connID, "thread_id", threadID)
}

// Leave unsubscribes a connection from a thread's room. Leaving a room the
// connection is not in is a no-op.
func (m *Manager) Leave(connID string, threadID thread.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(connID, threadID)
}

// leaveLocked must be called with mu held.
func (m *Manager) leaveLocked(connID string, threadID thread.ID) {
	if conns, ok := m.members[threadID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(m.members, threadID)
		}
	}
	if threads, ok := m.joined[connID]; ok {
		delete(threads, threadID)
		if len(threads) == 0 {
			delete(m.joined, connID)
		}
	}
}

// LeaveAll removes the connection from every room it joined and returns the
// threads it left. Invoked by the disconnect path.
func (m *Manager) LeaveAll(connID string) []thread.ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	threads := m.joined[connID]
	left := make([]thread.ID, 0, len(threads))
	for threadID := range threads {
		left = append(left, threadID)
	}
	for _, threadID := range left {
		m.leaveLocked(connID, threadID)
	}

	if len(left) > 0 {
		m.logger.Debug("connection left all rooms", "conn_id", connID, "rooms", len(left))
	}
	return left
}

// MembersOf returns the ids of all connections currently in the thread's room.
func (m *Manager) MembersOf(threadID thread.ID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := m.members[threadID]
	ids := make([]string, 0, len(conns))
	for connID := range conns {
		ids = append(ids, connID)
	}
	return ids
}

// Contains reports whether the connection is a member of the thread's room.
func (m *Manager) Contains(connID string, threadID thread.ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.members[threadID][connID]
	return ok
}

// ThreadsInvolving returns the threads with at least one live room member
// that have userID as a participant. Used to scope presence notifications to
// the rooms where the user's counterpart is actually listening.
func (m *Manager) ThreadsInvolving(userID string) []thread.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []thread.ID
	for threadID := range m.members {
		if thread.HasParticipant(threadID, userID) {
			ids = append(ids, threadID)
		}
	}
	return ids
}

// ThreadsOf returns the threads a connection is currently joined to.
func (m *Manager) ThreadsOf(connID string) []thread.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	threads := m.joined[connID]
	ids := make([]thread.ID, 0, len(threads))
	for threadID := range threads {
		ids = append(ids, threadID)
	}
	return ids
}
