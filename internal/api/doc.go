// Package api provides access to the prediction server's REST endpoints.
//
// These are plain request/response calls feeding the realtime core: starting
// a training run yields the session_id used to join its room, and the status
// endpoint backs the poller fallback while the WebSocket is down. Retryable
// failures (5xx, 429) are retried with jittered exponential backoff.
package api
