// ABOUTME: Read-receipt coordination: durable mark-read then counterpart notification
// ABOUTME: The broadcast happens only after the store acknowledges the write

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guildhouse/chat-gateway/internal/protocol"
	"github.com/guildhouse/chat-gateway/internal/session"
	"github.com/guildhouse/chat-gateway/internal/store"
	"github.com/guildhouse/chat-gateway/internal/thread"
)

// UserConns resolves a user id to all of their live connections.
type UserConns interface {
	Connections(userID string) []*session.Conn
}

// ReceiptCoordinator persists read marks and notifies the thread counterpart.
// The receipt is broadcast only after the store write succeeds, so a
// messages-read event always reflects durable state.
type ReceiptCoordinator struct {
	marks  store.MessageStore
	users  UserConns
	logger *slog.Logger
}

// NewReceiptCoordinator wires receipt handling against the message store and
// the connection registry.
func NewReceiptCoordinator(marks store.MessageStore, users UserConns, logger *slog.Logger) *ReceiptCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptCoordinator{
		marks:  marks,
		users:  users,
		logger: logger.With("component", "receipts"),
	}
}

// MarkRead records that readerID has read the thread up to upToMessageID and
// pushes a messages-read event to every connection of the thread counterpart.
// The reader's own connections are never notified; their client already knows.
func (c *ReceiptCoordinator) MarkRead(ctx context.Context, threadID thread.ID, readerID, upToMessageID string) (*protocol.ReadReceipt, error) {
	counterpart, err := thread.Counterpart(threadID, readerID)
	if err != nil {
		return nil, err
	}

	if err := c.marks.MarkRead(ctx, string(threadID), readerID, upToMessageID); err != nil {
		return nil, fmt.Errorf("persisting read mark: %w", err)
	}

	receipt := &protocol.ReadReceipt{
		ThreadID:          string(threadID),
		ReaderID:          readerID,
		ReadUpToMessageID: upToMessageID,
		ReadAt:            time.Now().UTC(),
	}

	ev := protocol.NewServerEvent(protocol.EventMessagesRead, receipt)
	notified := 0
	for _, conn := range c.users.Connections(counterpart) {
		if conn.Enqueue(ev) {
			notified++
		}
	}

	c.logger.Debug("read receipt recorded",
		"thread_id", threadID,
		"reader_id", readerID,
		"up_to", upToMessageID,
		"notified", notified,
	)
	return receipt, nil
}
