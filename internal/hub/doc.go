// Package hub is the coordination core of the gateway.
//
// Each WebSocket upgrade produces a registered session.Conn plus a read pump
// and a write pump. The read pump decodes client event frames and hands them
// to Handle, which routes by event type:
//
//   - join-thread / leave-thread: room membership, with a thread-joined ack
//     carrying the counterpart's live presence and typing state
//   - typing-start / typing-stop: typing tracker edges relayed to the
//     counterpart's connections in the room
//   - send-message: durable append, message-sent ack to the sender, fan-out
//     to the other room members
//   - mark-read: durable read mark, messages-read pushed to the counterpart
//   - watch-presence: subscribe to a user's online/offline transitions,
//     answered immediately with the current state
//
// Failures surface as error events carrying the client's ref; the connection
// itself stays open. Presence transitions reported by the registry are
// distributed to the rooms that involve the user and to explicit watchers.
package hub
