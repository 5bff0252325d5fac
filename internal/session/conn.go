// ABOUTME: Represents a single live client connection and its outbound event queue
// ABOUTME: Owns per-connection de-duplication of delivered message envelopes

package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guildhouse/chat-gateway/internal/dedupe"
	"github.com/guildhouse/chat-gateway/internal/protocol"
)

// Conn represents one live bidirectional channel belonging to exactly one
// user. A user may hold several Conns at once (tabs, devices). The transport
// layer drains Events() onto the wire; everything else references the
// connection only by ID through the registry.
type Conn struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	egress chan *protocol.ServerEvent
	seen   *dedupe.Cache
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// ConnParams configures a new connection.
type ConnParams struct {
	UserID       string
	EgressBuffer int
	DedupeTTL    time.Duration
	DedupeSize   int
	Logger       *slog.Logger
}

// NewConn creates a connection with a fresh id and an empty seen-id cache.
func NewConn(p ConnParams) *Conn {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	id := uuid.New().String()
	return &Conn{
		ID:        id,
		UserID:    p.UserID,
		CreatedAt: time.Now().UTC(),
		egress:    make(chan *protocol.ServerEvent, p.EgressBuffer),
		seen:      dedupe.New(p.DedupeTTL, p.DedupeSize),
		logger:    p.Logger.With("conn_id", id, "user_id", p.UserID),
	}
}

// Events returns the outbound event channel. It is closed when the
// connection closes.
func (c *Conn) Events() <-chan *protocol.ServerEvent {
	return c.egress
}

// Enqueue offers an event to the connection's outbound queue without
// blocking. If the connection is closed or its queue is full the event is
// dropped and false is returned; a reconnecting client resynchronizes via
// the history read path rather than through buffered redelivery.
func (c *Conn) Enqueue(ev *protocol.ServerEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.egress <- ev:
		return true
	default:
		c.logger.Debug("egress full, dropping event", "event_type", ev.Type)
		return false
	}
}

// Deliver enqueues a new-message event for the envelope unless this
// connection has already seen the envelope id. Returns true only when the
// event was actually queued. Redelivering an already-seen id is a no-op,
// which makes at-least-once fan-out observably idempotent.
func (c *Conn) Deliver(env *protocol.MessageEnvelope) bool {
	if c.seen.CheckAndMark(env.ID) {
		c.logger.Debug("duplicate envelope suppressed", "message_id", env.ID)
		return false
	}
	return c.Enqueue(protocol.NewServerEvent(protocol.EventNewMessage, env))
}

// Close shuts the outbound queue. Safe to call more than once; Enqueue and
// Deliver become no-ops afterwards.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.egress)
	c.seen.Close()
}

// Closed reports whether the connection has been closed.
func (c *Conn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
