// ABOUTME: Fan-out of message envelopes and room-scoped events to live connections
// ABOUTME: Copies the target set under read lock, then delivers without blocking

package dispatch

import (
	"log/slog"

	"github.com/guildhouse/chat-gateway/internal/protocol"
	"github.com/guildhouse/chat-gateway/internal/session"
	"github.com/guildhouse/chat-gateway/internal/thread"
)

// Members resolves the connections currently joined to a thread's room.
type Members interface {
	MembersOf(threadID thread.ID) []string
}

// ConnLookup resolves a connection id to a live connection.
type ConnLookup interface {
	Get(connID string) (*session.Conn, bool)
}

// Dispatcher fans events out to the members of a thread's room. Delivery is
// at-least-once per live connection: a slow consumer's event is dropped
// rather than blocking the fan-out, and the per-connection seen cache absorbs
// any redelivery of the same message id.
type Dispatcher struct {
	members Members
	conns   ConnLookup
	logger  *slog.Logger
}

// NewDispatcher wires the fan-out against room membership and the connection
// registry.
func NewDispatcher(members Members, conns ConnLookup, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		members: members,
		conns:   conns,
		logger:  logger.With("component", "dispatcher"),
	}
}

// Dispatch delivers a persisted message envelope to every member of its
// thread's room except suppressConnID (the sender's own connection, which
// receives a message-sent ack instead). Returns the number of connections
// the envelope was queued to.
func (d *Dispatcher) Dispatch(env *protocol.MessageEnvelope, suppressConnID string) int {
	targets := d.members.MembersOf(thread.ID(env.ThreadID))

	delivered := 0
	for _, connID := range targets {
		if connID == suppressConnID {
			continue
		}
		conn, ok := d.conns.Get(connID)
		if !ok {
			continue // raced a disconnect
		}
		if conn.Deliver(env) {
			delivered++
		} else {
			d.logger.Warn("message not queued",
				"message_id", env.ID,
				"conn_id", connID,
				"thread_id", env.ThreadID,
			)
		}
	}

	d.logger.Debug("message dispatched",
		"message_id", env.ID,
		"thread_id", env.ThreadID,
		"delivered", delivered,
	)
	return delivered
}

// Broadcast queues an arbitrary server event to every member of the thread's
// room except suppressConnID. Used for room-scoped notifications that carry
// no de-duplication id.
func (d *Dispatcher) Broadcast(threadID thread.ID, ev *protocol.ServerEvent, suppressConnID string) int {
	targets := d.members.MembersOf(threadID)

	queued := 0
	for _, connID := range targets {
		if connID == suppressConnID {
			continue
		}
		conn, ok := d.conns.Get(connID)
		if !ok {
			continue
		}
		if conn.Enqueue(ev) {
			queued++
		}
	}
	return queued
}

// BroadcastExceptUser queues a server event to every room member not owned
// by exceptUserID. Typing edges and presence changes use this: a user's own
// devices already know their state, only the counterpart needs telling.
func (d *Dispatcher) BroadcastExceptUser(threadID thread.ID, ev *protocol.ServerEvent, exceptUserID string) int {
	targets := d.members.MembersOf(threadID)

	queued := 0
	for _, connID := range targets {
		conn, ok := d.conns.Get(connID)
		if !ok {
			continue
		}
		if conn.UserID == exceptUserID {
			continue
		}
		if conn.Enqueue(ev) {
			queued++
		}
	}
	return queued
}
