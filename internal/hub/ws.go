// ABOUTME: WebSocket transport: handshake authentication plus read/write pumps
// ABOUTME: Bridges gorilla/websocket frames to hub event handling and egress queues

package hub

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guildhouse/chat-gateway/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The gateway fronts first-party clients only; origin policy is enforced
	// by the reverse proxy in front of it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS authenticates the handshake and upgrades it to a live connection.
// Credentials come from the token query parameter or a bearer Authorization
// header; rejection happens before the upgrade so clients get a proper HTTP
// status.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := credentialsFrom(r)
	if token == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}
	userID, err := h.auth.Validate(token)
	if err != nil {
		h.logger.Warn("handshake rejected", "error", err)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn, err := h.Connect(userID)
	if err != nil {
		h.logger.Error("connection registration failed", "user_id", userID, "error", err)
		_ = ws.Close()
		return
	}

	h.logger.Info("websocket connected", "conn_id", conn.ID, "user_id", userID)
	go h.writePump(ws, conn)
	go h.readPump(ws, conn)
}

// credentialsFrom extracts the client token from the request.
func credentialsFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// readPump consumes inbound frames until the socket dies, then tears the
// connection down. Both pumps call Disconnect; it is idempotent.
//
// Events run under a connection-scoped context derived from the hub's
// lifetime, not the upgrade request's: net/http cancels the request context
// as soon as ServeWS returns, which is long before the connection dies.
func (h *Hub) readPump(ws *websocket.Conn, conn *session.Conn) {
	ctx, cancel := context.WithCancel(h.baseCtx)
	defer func() {
		cancel()
		h.Disconnect(conn.ID)
		_ = ws.Close()
	}()

	ws.SetReadLimit(int64(h.cfg.Connection.MaxMessageBytes))
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.Connection.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.Connection.PongTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				h.logger.Warn("websocket read failed", "conn_id", conn.ID, "error", err)
			}
			return
		}
		h.HandleRaw(ctx, conn, data)
	}
}

// writePump drains the connection's egress queue onto the wire and keeps the
// socket alive with pings. It exits when the queue closes (deregistration) or
// a write fails.
func (h *Hub) writePump(ws *websocket.Conn, conn *session.Conn) {
	ticker := time.NewTicker(h.cfg.Connection.PingInterval())
	defer func() {
		ticker.Stop()
		h.Disconnect(conn.ID)
		_ = ws.Close()
	}()

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				deadline := time.Now().Add(h.cfg.Connection.WriteTimeout)
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.Connection.WriteTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				h.logger.Warn("websocket write failed", "conn_id", conn.ID, "error", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.Connection.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
