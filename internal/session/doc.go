// Package session owns the lifecycle of live client connections.
//
// # Registry
//
// The Registry tracks every connection by id and groups them by user:
//
//	reg := session.NewRegistry(logger)
//
// Key operations:
//
//   - Register(conn): add a connection, ErrDuplicateConnection on id reuse
//   - Deregister(connID): remove and close a connection, idempotent
//   - IsOnline(userID): whether the user has any live connection
//   - Connections(userID): all live connections of a user
//
// # Presence
//
// Presence is derived from live-connection counts rather than stored
// separately. The registry reports 0->1 and 1->0 transitions to a
// PresenceListener after the underlying mutation commits, so a user with
// two tabs open stays online until the last tab disconnects and exactly one
// offline transition fires.
//
// # Connection ownership
//
// Conn instances are owned exclusively by the Registry once registered;
// other components address them by id. Each Conn carries a bounded outbound
// queue and a seen-id cache making message delivery idempotent per
// connection.
package session
