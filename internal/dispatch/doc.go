// Package dispatch routes persisted messages and room-scoped events to live
// connections.
//
// The Dispatcher fans a message envelope out to the members of its thread's
// room. The sender's own connection is suppressed (it receives a message-sent
// ack from the transport instead), and each receiving connection's seen cache
// makes redelivery of an already-queued message id a no-op. Slow consumers
// lose events rather than stalling the fan-out.
//
// The ReceiptCoordinator handles mark-read: it writes the read mark through
// the message store first and broadcasts messages-read to the counterpart's
// connections only once the write has been acknowledged.
package dispatch
