// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - WebSocket connection state and reconnect counters
//   - Frame, parse-error and update rates
//   - Progress regressions flagged by the session state machine
//   - Connection health score
package metrics
