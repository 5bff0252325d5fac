// ABOUTME: REST surface for history resynchronization after reconnects
// ABOUTME: Serves a thread's persisted messages to authenticated participants

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guildhouse/chat-gateway/internal/protocol"
	"github.com/guildhouse/chat-gateway/internal/thread"
)

// threadMessagesResponse is the JSON body of the history endpoint.
type threadMessagesResponse struct {
	ThreadID string                      `json:"threadId"`
	Messages []*protocol.MessageEnvelope `json:"messages"`
}

// handleThreadMessages serves GET /api/threads/{threadID}/messages.
// Query parameters: since (RFC3339, default zero time) and limit.
// Only thread participants may read history.
func (g *Gateway) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.authenticate(w, r)
	if !ok {
		return
	}

	threadID := thread.ID(chi.URLParam(r, "threadID"))
	if _, _, err := thread.Participants(threadID); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed thread id")
		return
	}
	if !thread.HasParticipant(threadID, userID) {
		writeJSONError(w, http.StatusForbidden, "not a participant of this thread")
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	messages, err := g.store.Messages(r.Context(), string(threadID), since, limit)
	if err != nil {
		g.logger.Error("history query failed", "thread_id", threadID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if messages == nil {
		messages = []*protocol.MessageEnvelope{}
	}

	writeJSON(w, http.StatusOK, &threadMessagesResponse{
		ThreadID: string(threadID),
		Messages: messages,
	})
}

// authenticate resolves the caller's identity from a bearer token or the
// token query parameter. Writes a 401 and returns false on failure.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing credentials")
		return "", false
	}

	userID, err := g.auth.Validate(token)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
