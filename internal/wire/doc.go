// Package wire owns the interactive packet catalogue and its byte encoding.
//
// Ownership boundary:
// - packet ids and names
// - varint id prefix framing
// - protobuf field encoding of packet bodies
//
// One websocket binary message carries exactly one packet:
//
//	varint(packet id) || protobuf(packet body)
//
// Packets with an id outside the catalogue decode to ErrUnknownPacket so the
// receive loop can report and skip them.
package wire
