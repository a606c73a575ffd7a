// Package connection owns the single duplex WebSocket connection to the
// prediction server and its lifecycle: connect, disconnect, and automatic
// reconnection with bounded exponential backoff.
//
// The Manager exposes a phase state machine (idle, connecting, connected,
// disconnected, reconnecting, failed), rolling reliability metrics for the
// health scorer, and phase-change hooks used by the room tracker to restore
// subscriptions after a reconnect. Transport errors are recorded in the
// connection state and drive the backoff path; they are never returned to
// callers of Connect or Disconnect.
package connection
