// ABOUTME: MessageStore interface for the persistence boundary of the chat core
// ABOUTME: Dispatch only ever follows a confirmed append through this interface

package store

import (
	"context"
	"errors"
	"time"

	"github.com/guildhouse/chat-gateway/internal/protocol"
)

// ErrNotFound is returned when a referenced message does not exist in the
// given thread.
var ErrNotFound = errors.New("not found")

// MessageStore is the durable persistence boundary consumed by the core.
// The coordination layer never fans a message out on the sender's say-so
// alone: Append must succeed first, and the envelope it returns (carrying
// the store-assigned id) is what gets dispatched.
type MessageStore interface {
	// Append durably persists a message and returns its envelope with the
	// store-assigned id and timestamp.
	Append(ctx context.Context, threadID, senderID, content, kind string) (*protocol.MessageEnvelope, error)

	// MarkRead records that readerID has read the thread up to and including
	// upToMessageID. Returns ErrNotFound if that message is not part of the
	// thread.
	MarkRead(ctx context.Context, threadID, readerID, upToMessageID string) error

	// Messages returns messages of a thread in creation order, at or after
	// since, capped at limit. Reconnecting clients use this read path to
	// resynchronize missed history instead of relying on buffered redelivery.
	Messages(ctx context.Context, threadID string, since time.Time, limit int) ([]*protocol.MessageEnvelope, error)

	// Close releases the underlying resources.
	Close() error
}
