// Package update owns the outbound update model.
//
// Ownership boundary:
// - typed tactile/joystick/screen element updates
// - present/absent optional fields
// - validation and coercion rules
// - decoding from untyped mappings and JSON
//
// Elements may be built incrementally; ranges are only checked by Validate,
// which runs once per send. Absent optional fields mean "leave unchanged at
// the receiver" and are never encoded.
package update
