// Package room tracks which server-side rooms the application wants
// subscribed versus which are confirmed joined on the current connection.
//
// Desired membership survives disconnects; joined membership is cleared the
// moment the connection leaves the connected phase and rebuilt by re-sending
// joins when it returns. Joins are idempotent: a room already joined sends
// nothing.
package room
