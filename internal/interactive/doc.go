// Package interactive runs one robot session against the interactive service.
//
// Ownership boundary:
// - handshake sequencing (identity, join, transport connect)
// - the reconnect loop and its attempt budget
// - the receive loop and dispatch of inbound packets
// - outbound updates (send, state label, tactile helpers)
//
// A Client owns its session state. Handlers run on the session's receive
// goroutine (or on one dedicated handler goroutine in HandlersQueued mode)
// and may call Send.
package interactive
