// ABOUTME: Wire event envelope and payload types for the client event channel
// ABOUTME: Defines client->server and server->client event names and JSON shapes

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownEvent is returned when a client sends an event type the server
// does not recognize.
var ErrUnknownEvent = errors.New("unknown event type")

// ErrInvalidPayload is returned when an event payload fails validation.
var ErrInvalidPayload = errors.New("invalid event payload")

// Client-originated event types.
const (
	EventJoinThread    = "join-thread"
	EventLeaveThread   = "leave-thread"
	EventTypingStart   = "typing-start"
	EventTypingStop    = "typing-stop"
	EventSendMessage   = "send-message"
	EventMarkRead      = "mark-read"
	EventWatchPresence = "watch-presence"
)

// Server-originated event types.
const (
	EventNewMessage   = "new-message"
	EventMessagesRead = "messages-read"
	EventUserOnline   = "user-online"
	EventUserOffline  = "user-offline"
	EventThreadJoined = "thread-joined"
	EventMessageSent  = "message-sent"
	EventError        = "error"
)

// Error codes carried by EventError payloads.
const (
	CodeProtocolError = "protocol_error"
	CodeStoreError    = "store_error"
	CodeNotDelivered  = "not_delivered"
)

// Message kinds.
const (
	KindText  = "text"
	KindImage = "image"
)

// ClientEvent is the envelope for every client-to-server event.
// Ref is an optional client-chosen correlation id echoed back in replies.
type ClientEvent struct {
	Type string          `json:"type"`
	Ref  string          `json:"ref,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is the envelope for every server-to-client event.
type ServerEvent struct {
	Type      string    `json:"type"`
	Ref       string    `json:"ref,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewServerEvent builds a stamped server event.
func NewServerEvent(eventType string, data any) *ServerEvent {
	return &ServerEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// MessageEnvelope is the unit fanned out to room members after a message has
// been durably appended. ID is assigned by the persistence layer and is the
// de-duplication key: consumers must treat redelivery of an already-seen ID
// as a no-op.
type MessageEnvelope struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReadReceipt is broadcast when a participant marks a thread read.
// Receipts are monotonic per (threadId, readerId): consumers must discard a
// receipt whose readUpToMessageId is older than the latest one they have
// already applied, since network delivery order is not guaranteed.
type ReadReceipt struct {
	ThreadID          string    `json:"threadId"`
	ReaderID          string    `json:"readerId"`
	ReadUpToMessageID string    `json:"readUpToMessageId"`
	ReadAt            time.Time `json:"readAt"`
}

// ThreadRef is the payload for join-thread and leave-thread.
type ThreadRef struct {
	ThreadID string `json:"threadId"`
}

// TypingSignal is the payload for typing-start and typing-stop, both inbound
// (UserID empty) and outbound (UserID set to the typing participant).
type TypingSignal struct {
	ThreadID string `json:"threadId"`
	UserID   string `json:"userId,omitempty"`
}

// SendMessage is the payload for send-message.
type SendMessage struct {
	ThreadID string `json:"threadId"`
	Content  string `json:"content"`
	Kind     string `json:"kind,omitempty"`
}

// MarkRead is the payload for mark-read.
type MarkRead struct {
	ThreadID          string `json:"threadId"`
	ReadUpToMessageID string `json:"readUpToMessageId"`
}

// WatchPresence is the payload for watch-presence.
type WatchPresence struct {
	UserID string `json:"userId"`
}

// PresenceChange is the payload for user-online and user-offline.
type PresenceChange struct {
	UserID string `json:"userId"`
}

// ThreadJoined is the ack payload for a successful join-thread. It carries
// the counterpart's current presence and typing state so a freshly joined
// client can render without an extra round trip.
type ThreadJoined struct {
	ThreadID          string `json:"threadId"`
	CounterpartID     string `json:"counterpartId"`
	CounterpartOnline bool   `json:"counterpartOnline"`
	CounterpartTyping bool   `json:"counterpartTyping"`
}

// ErrorPayload is the payload for error events. Ref correlates the failure
// to the client event that caused it.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

// DecodeThreadRef parses and validates a ThreadRef payload.
func DecodeThreadRef(data json.RawMessage) (*ThreadRef, error) {
	var p ThreadRef
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.ThreadID == "" {
		return nil, fmt.Errorf("%w: threadId is required", ErrInvalidPayload)
	}
	return &p, nil
}

// DecodeTypingSignal parses and validates a TypingSignal payload.
func DecodeTypingSignal(data json.RawMessage) (*TypingSignal, error) {
	var p TypingSignal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.ThreadID == "" {
		return nil, fmt.Errorf("%w: threadId is required", ErrInvalidPayload)
	}
	return &p, nil
}

// DecodeSendMessage parses and validates a SendMessage payload.
// An empty kind defaults to KindText.
func DecodeSendMessage(data json.RawMessage) (*SendMessage, error) {
	var p SendMessage
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.ThreadID == "" {
		return nil, fmt.Errorf("%w: threadId is required", ErrInvalidPayload)
	}
	if p.Content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidPayload)
	}
	if p.Kind == "" {
		p.Kind = KindText
	}
	if p.Kind != KindText && p.Kind != KindImage {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, p.Kind)
	}
	return &p, nil
}

// DecodeMarkRead parses and validates a MarkRead payload.
func DecodeMarkRead(data json.RawMessage) (*MarkRead, error) {
	var p MarkRead
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.ThreadID == "" {
		return nil, fmt.Errorf("%w: threadId is required", ErrInvalidPayload)
	}
	if p.ReadUpToMessageID == "" {
		return nil, fmt.Errorf("%w: readUpToMessageId is required", ErrInvalidPayload)
	}
	return &p, nil
}

// DecodeWatchPresence parses and validates a WatchPresence payload.
func DecodeWatchPresence(data json.RawMessage) (*WatchPresence, error) {
	var p WatchPresence
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidPayload)
	}
	return &p, nil
}
