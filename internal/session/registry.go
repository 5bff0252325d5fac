// ABOUTME: Registry of live connections keyed by connection id and user id
// ABOUTME: Derives presence from live-connection counts and reports transitions

package session

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrDuplicateConnection indicates a connection with the same id is already
// registered.
var ErrDuplicateConnection = errors.New("connection already registered")

// PresenceListener is notified of presence transitions. UserOnline fires on
// a user's 0->1 live-connection transition, UserOffline on 1->0. Callbacks
// run after the registry mutation has committed, so a listener querying the
// registry always observes the post-transition state.
type PresenceListener interface {
	UserOnline(userID string)
	UserOffline(userID string)
}

// Registry owns every live connection. Presence is derived, not stored: a
// user is online iff they have at least one registered connection.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Conn            // conn id -> conn
	users    map[string]map[string]*Conn // user id -> conn id -> conn
	listener PresenceListener
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]*Conn),
		users:  make(map[string]map[string]*Conn),
		logger: logger.With("component", "session-registry"),
	}
}

// SetPresenceListener wires the presence transition listener. Must be called
// before the first Register; transitions are not replayed.
func (r *Registry) SetPresenceListener(l PresenceListener) {
	r.listener = l
}

// Register adds a connection. Returns ErrDuplicateConnection if a connection
// with the same id already exists.
func (r *Registry) Register(conn *Conn) error {
	r.mu.Lock()
	if _, exists := r.conns[conn.ID]; exists {
		r.mu.Unlock()
		return ErrDuplicateConnection
	}

	r.conns[conn.ID] = conn
	userConns, ok := r.users[conn.UserID]
	if !ok {
		userConns = make(map[string]*Conn)
		r.users[conn.UserID] = userConns
	}
	wentOnline := len(userConns) == 0
	userConns[conn.ID] = conn
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Info("connection registered",
		"conn_id", conn.ID,
		"user_id", conn.UserID,
		"total_connections", total,
	)

	if wentOnline && r.listener != nil {
		r.listener.UserOnline(conn.UserID)
	}
	return nil
}

// Deregister removes a connection and closes it. It is a no-op (not an
// error) if the id is unknown; disconnect handling must be idempotent
// because a network-level drop and an explicit close can race. Returns the
// removed connection, or nil.
func (r *Registry) Deregister(connID string) *Conn {
	r.mu.Lock()
	conn, exists := r.conns[connID]
	if !exists {
		r.mu.Unlock()
		return nil
	}

	delete(r.conns, connID)
	wentOffline := false
	if userConns, ok := r.users[conn.UserID]; ok {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(r.users, conn.UserID)
			wentOffline = true
		}
	}
	total := len(r.conns)
	r.mu.Unlock()

	conn.Close()
	r.logger.Info("connection deregistered",
		"conn_id", connID,
		"user_id", conn.UserID,
		"total_connections", total,
	)

	if wentOffline && r.listener != nil {
		r.listener.UserOffline(conn.UserID)
	}
	return conn
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Get retrieves a connection by id.
func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// Connections returns all live connections of a user.
func (r *Registry) Connections(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns := r.users[userID]
	conns := make([]*Conn, 0, len(userConns))
	for _, c := range userConns {
		conns = append(conns, c)
	}
	return conns
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
