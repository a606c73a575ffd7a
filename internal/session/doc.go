// Package session drives one training-run state machine per session ID.
//
// Updates are applied in arrival order. The server is the source of truth
// for stage ordering, so stage moves are applied as received, but progress
// never regresses within a run: a lower value for the same or a later stage
// is ignored as a duplicate or out-of-order delivery. Progress resets only
// when the server genuinely walks the pipeline backward or when a session
// is explicitly reset.
//
// Once a session completes or fails it is immutable; late updates are still
// appended to its history for audit but cannot move stage or progress.
package session
