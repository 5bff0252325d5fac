// Package store provides the MessageStore persistence boundary and its
// SQLite implementation.
//
// The coordination core treats persistence as an external collaborator:
// messages are appended here before any fan-out, and read marks are written
// here before any read receipt is broadcast. The SQLite implementation uses
// modernc.org/sqlite (pure Go, no cgo) with WAL mode and creates its schema
// on first open.
package store
