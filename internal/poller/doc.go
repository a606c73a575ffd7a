// Package poller implements the REST status fallback.
//
// The Status Poller:
//   - Polls the training status endpoint while the WebSocket is down
//   - Synthesizes canonical updates so displayed progress keeps moving
//   - Uses bounded concurrent requests
//   - Skips cycles entirely while the realtime feed is connected
package poller
