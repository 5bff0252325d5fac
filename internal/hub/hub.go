// ABOUTME: Central coordinator translating client events into registry, room,
// ABOUTME: typing, store, and dispatch operations, and distributing presence

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/guildhouse/chat-gateway/internal/auth"
	"github.com/guildhouse/chat-gateway/internal/config"
	"github.com/guildhouse/chat-gateway/internal/dispatch"
	"github.com/guildhouse/chat-gateway/internal/protocol"
	"github.com/guildhouse/chat-gateway/internal/room"
	"github.com/guildhouse/chat-gateway/internal/session"
	"github.com/guildhouse/chat-gateway/internal/store"
	"github.com/guildhouse/chat-gateway/internal/thread"
	"github.com/guildhouse/chat-gateway/internal/typing"
)

// Hub wires the session registry, room membership, typing tracker, message
// store, and dispatcher into one event-handling surface. The transport layer
// feeds it decoded client events; everything the hub emits goes out through
// per-connection egress queues.
type Hub struct {
	cfg      *config.Config
	registry *session.Registry
	rooms    *room.Manager
	typing   *typing.Tracker
	dispatch *dispatch.Dispatcher
	receipts *dispatch.ReceiptCoordinator
	messages store.MessageStore
	auth     auth.SessionAuthenticator
	logger   *slog.Logger

	// baseCtx outlives individual requests; per-connection contexts derive
	// from it so store operations survive the handshake request returning.
	baseCtx context.Context
	cancel  context.CancelFunc

	watchMu  sync.Mutex
	watchers map[string]map[string]struct{} // watched user -> watching conn ids
	watching map[string]map[string]struct{} // conn id -> watched users
}

// New assembles a hub. The hub installs itself as the registry's presence
// listener and owns the typing tracker's expiry callback.
func New(cfg *config.Config, messages store.MessageStore, authenticator auth.SessionAuthenticator, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	registry := session.NewRegistry(logger)
	rooms := room.NewManager(logger)
	dispatcher := dispatch.NewDispatcher(rooms, registry, logger)
	baseCtx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		cfg:      cfg,
		registry: registry,
		rooms:    rooms,
		dispatch: dispatcher,
		receipts: dispatch.NewReceiptCoordinator(messages, registry, logger),
		messages: messages,
		auth:     authenticator,
		logger:   logger.With("component", "hub"),
		baseCtx:  baseCtx,
		cancel:   cancel,
		watchers: make(map[string]map[string]struct{}),
		watching: make(map[string]map[string]struct{}),
	}
	h.typing = typing.NewTracker(cfg.Typing.DebounceWindow, h.typingLapsed, logger)
	registry.SetPresenceListener(h)
	return h
}

// Registry exposes the session registry for transport and HTTP handlers.
func (h *Hub) Registry() *session.Registry {
	return h.registry
}

// Connect registers a fresh connection for an authenticated user.
func (h *Hub) Connect(userID string) (*session.Conn, error) {
	conn := session.NewConn(session.ConnParams{
		UserID:       userID,
		EgressBuffer: h.cfg.Connection.EgressBuffer,
		DedupeTTL:    h.cfg.Dedupe.TTL,
		DedupeSize:   h.cfg.Dedupe.MaxEntries,
		Logger:       h.logger,
	})
	if err := h.registry.Register(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Disconnect tears a connection down: it leaves every room, drops presence
// watches, and deregisters. Idempotent; the read and write pumps both call it
// on their way out.
func (h *Hub) Disconnect(connID string) {
	conn := h.registry.Deregister(connID)
	if conn == nil {
		return
	}
	h.rooms.LeaveAll(connID)
	h.unwatchAll(connID)
}

// Close releases hub-owned resources and cancels in-flight event handling.
// Live connections are closed through the registry by their transports.
func (h *Hub) Close() {
	h.cancel()
	h.typing.Close()
}

// Handle processes one decoded client event on behalf of conn. Failures are
// reported to the client as error events; the connection stays open.
func (h *Hub) Handle(ctx context.Context, conn *session.Conn, ev *protocol.ClientEvent) {
	switch ev.Type {
	case protocol.EventJoinThread:
		h.handleJoin(conn, ev)
	case protocol.EventLeaveThread:
		h.handleLeave(conn, ev)
	case protocol.EventTypingStart:
		h.handleTyping(conn, ev, true)
	case protocol.EventTypingStop:
		h.handleTyping(conn, ev, false)
	case protocol.EventSendMessage:
		h.handleSend(ctx, conn, ev)
	case protocol.EventMarkRead:
		h.handleMarkRead(ctx, conn, ev)
	case protocol.EventWatchPresence:
		h.handleWatchPresence(conn, ev)
	default:
		err := fmt.Errorf("%w: %q", protocol.ErrUnknownEvent, ev.Type)
		h.sendError(conn, protocol.CodeProtocolError, err.Error(), ev.Ref)
	}
}

func (h *Hub) handleJoin(conn *session.Conn, ev *protocol.ClientEvent) {
	ref, threadID, ok := h.decodeThreadRef(conn, ev)
	if !ok {
		return
	}
	counterpart, err := thread.Counterpart(threadID, conn.UserID)
	if err != nil {
		h.sendError(conn, protocol.CodeProtocolError, err.Error(), ref)
		return
	}

	h.rooms.Join(conn.ID, threadID)

	ack := protocol.NewServerEvent(protocol.EventThreadJoined, &protocol.ThreadJoined{
		ThreadID:          string(threadID),
		CounterpartID:     counterpart,
		CounterpartOnline: h.registry.IsOnline(counterpart),
		CounterpartTyping: h.typing.IsTyping(threadID, counterpart),
	})
	ack.Ref = ref
	conn.Enqueue(ack)
}

func (h *Hub) handleLeave(conn *session.Conn, ev *protocol.ClientEvent) {
	_, threadID, ok := h.decodeThreadRef(conn, ev)
	if !ok {
		return
	}
	h.rooms.Leave(conn.ID, threadID)
}

func (h *Hub) handleTyping(conn *session.Conn, ev *protocol.ClientEvent, start bool) {
	payload, err := protocol.DecodeTypingSignal(ev.Data)
	if err != nil {
		h.sendError(conn, protocol.CodeProtocolError, err.Error(), ev.Ref)
		return
	}
	threadID := thread.ID(payload.ThreadID)
	if !thread.HasParticipant(threadID, conn.UserID) {
		h.sendError(conn, protocol.CodeProtocolError,
			fmt.Sprintf("not a participant of thread %q", payload.ThreadID), ev.Ref)
		return
	}

	edge := h.typing.Signal(threadID, conn.UserID, start)
	switch edge {
	case typing.EdgeStarted:
		h.broadcastTyping(threadID, conn.UserID, protocol.EventTypingStart)
	case typing.EdgeStopped:
		h.broadcastTyping(threadID, conn.UserID, protocol.EventTypingStop)
	}
}

// typingLapsed runs when a typing state expires without an explicit stop.
func (h *Hub) typingLapsed(threadID thread.ID, userID string) {
	h.broadcastTyping(threadID, userID, protocol.EventTypingStop)
}

func (h *Hub) broadcastTyping(threadID thread.ID, userID, eventType string) {
	ev := protocol.NewServerEvent(eventType, &protocol.TypingSignal{
		ThreadID: string(threadID),
		UserID:   userID,
	})
	h.dispatch.BroadcastExceptUser(threadID, ev, userID)
}

func (h *Hub) handleSend(ctx context.Context, conn *session.Conn, ev *protocol.ClientEvent) {
	payload, err := protocol.DecodeSendMessage(ev.Data)
	if err != nil {
		h.sendError(conn, protocol.CodeProtocolError, err.Error(), ev.Ref)
		return
	}
	threadID := thread.ID(payload.ThreadID)
	if !thread.HasParticipant(threadID, conn.UserID) {
		h.sendError(conn, protocol.CodeProtocolError,
			fmt.Sprintf("not a participant of thread %q", payload.ThreadID), ev.Ref)
		return
	}

	env, err := h.messages.Append(ctx, payload.ThreadID, conn.UserID, payload.Content, payload.Kind)
	if err != nil {
		// A send that never reached durable storage is reported as
		// undelivered; nothing was fanned out, so nothing is retried.
		h.logger.Error("message append failed", "thread_id", threadID, "error", err)
		h.sendError(conn, protocol.CodeNotDelivered, "message not delivered", ev.Ref)
		return
	}

	ack := protocol.NewServerEvent(protocol.EventMessageSent, env)
	ack.Ref = ev.Ref
	conn.Enqueue(ack)

	// The sender's connection gets the ack above instead of an echo; their
	// other devices still receive new-message like any counterpart.
	h.dispatch.Dispatch(env, conn.ID)
}

func (h *Hub) handleMarkRead(ctx context.Context, conn *session.Conn, ev *protocol.ClientEvent) {
	payload, err := protocol.DecodeMarkRead(ev.Data)
	if err != nil {
		h.sendError(conn, protocol.CodeProtocolError, err.Error(), ev.Ref)
		return
	}
	threadID := thread.ID(payload.ThreadID)
	if !thread.HasParticipant(threadID, conn.UserID) {
		h.sendError(conn, protocol.CodeProtocolError,
			fmt.Sprintf("not a participant of thread %q", payload.ThreadID), ev.Ref)
		return
	}

	if _, err := h.receipts.MarkRead(ctx, threadID, conn.UserID, payload.ReadUpToMessageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.sendError(conn, protocol.CodeProtocolError,
				fmt.Sprintf("message %q is not part of thread %q", payload.ReadUpToMessageID, payload.ThreadID), ev.Ref)
			return
		}
		h.logger.Error("mark-read failed", "thread_id", threadID, "error", err)
		h.sendError(conn, protocol.CodeStoreError, "read mark could not be stored", ev.Ref)
	}
}

func (h *Hub) handleWatchPresence(conn *session.Conn, ev *protocol.ClientEvent) {
	payload, err := protocol.DecodeWatchPresence(ev.Data)
	if err != nil {
		h.sendError(conn, protocol.CodeProtocolError, err.Error(), ev.Ref)
		return
	}

	h.watchMu.Lock()
	if h.watchers[payload.UserID] == nil {
		h.watchers[payload.UserID] = make(map[string]struct{})
	}
	h.watchers[payload.UserID][conn.ID] = struct{}{}
	if h.watching[conn.ID] == nil {
		h.watching[conn.ID] = make(map[string]struct{})
	}
	h.watching[conn.ID][payload.UserID] = struct{}{}
	h.watchMu.Unlock()

	// Answer with the current state so the watcher needs no separate query.
	eventType := protocol.EventUserOffline
	if h.registry.IsOnline(payload.UserID) {
		eventType = protocol.EventUserOnline
	}
	snapshot := protocol.NewServerEvent(eventType, &protocol.PresenceChange{UserID: payload.UserID})
	snapshot.Ref = ev.Ref
	conn.Enqueue(snapshot)
}

func (h *Hub) unwatchAll(connID string) {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()

	for userID := range h.watching[connID] {
		delete(h.watchers[userID], connID)
		if len(h.watchers[userID]) == 0 {
			delete(h.watchers, userID)
		}
	}
	delete(h.watching, connID)
}

// UserOnline implements session.PresenceListener.
func (h *Hub) UserOnline(userID string) {
	h.distributePresence(userID, protocol.EventUserOnline)
}

// UserOffline implements session.PresenceListener. A user going fully
// offline also clears their typing states silently: the offline event
// supersedes any typing indicator on the counterpart's screen.
func (h *Hub) UserOffline(userID string) {
	h.typing.StopAll(userID)
	h.distributePresence(userID, protocol.EventUserOffline)
}

// distributePresence notifies the rooms whose counterpart is listening and
// any explicit presence watchers.
func (h *Hub) distributePresence(userID, eventType string) {
	ev := protocol.NewServerEvent(eventType, &protocol.PresenceChange{UserID: userID})

	for _, threadID := range h.rooms.ThreadsInvolving(userID) {
		h.dispatch.BroadcastExceptUser(threadID, ev, userID)
	}

	h.watchMu.Lock()
	watcherIDs := make([]string, 0, len(h.watchers[userID]))
	for connID := range h.watchers[userID] {
		watcherIDs = append(watcherIDs, connID)
	}
	h.watchMu.Unlock()

	for _, connID := range watcherIDs {
		if conn, ok := h.registry.Get(connID); ok {
			conn.Enqueue(ev)
		}
	}
}

// decodeThreadRef parses a ThreadRef payload and checks the caller is a
// participant of the referenced thread.
func (h *Hub) decodeThreadRef(conn *session.Conn, ev *protocol.ClientEvent) (ref string, threadID thread.ID, ok bool) {
	payload, err := protocol.DecodeThreadRef(ev.Data)
	if err != nil {
		h.sendError(conn, protocol.CodeProtocolError, err.Error(), ev.Ref)
		return ev.Ref, "", false
	}
	threadID = thread.ID(payload.ThreadID)
	if _, _, err := thread.Participants(threadID); err != nil {
		h.sendError(conn, protocol.CodeProtocolError, err.Error(), ev.Ref)
		return ev.Ref, "", false
	}
	if !thread.HasParticipant(threadID, conn.UserID) {
		h.sendError(conn, protocol.CodeProtocolError,
			fmt.Sprintf("not a participant of thread %q", payload.ThreadID), ev.Ref)
		return ev.Ref, "", false
	}
	return ev.Ref, threadID, true
}

func (h *Hub) sendError(conn *session.Conn, code, message, ref string) {
	ev := protocol.NewServerEvent(protocol.EventError, &protocol.ErrorPayload{
		Code:    code,
		Message: message,
		Ref:     ref,
	})
	conn.Enqueue(ev)
}

// HandleRaw decodes a raw inbound frame and dispatches it. Malformed JSON is
// reported as a protocol error without dropping the connection.
func (h *Hub) HandleRaw(ctx context.Context, conn *session.Conn, data []byte) {
	var ev protocol.ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		h.sendError(conn, protocol.CodeProtocolError, "malformed event frame", "")
		return
	}
	if ev.Type == "" {
		h.sendError(conn, protocol.CodeProtocolError, "event type is required", ev.Ref)
		return
	}
	h.Handle(ctx, conn, &ev)
}
