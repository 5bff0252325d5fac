// Package gateway assembles and runs the chat-gateway server.
//
// New wires the SQLite message store, the handshake authenticator, and the
// coordination hub onto one HTTP server:
//
//	GET /ws                                 websocket event channel
//	GET /health                             liveness
//	GET /health/ready                       readiness (store reachable)
//	GET /api/threads/{threadID}/messages    history resynchronization
//
// Run blocks until the context is canceled, then shuts the HTTP server,
// live connections, and the store down gracefully.
package gateway
