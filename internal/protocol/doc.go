// Package protocol translates between the prediction server's wire formats
// and the canonical model types.
//
// Two inbound schemas coexist on the wire. The unified schema carries
// session_id, phase, event, timestamp and data; the legacy schema carries
// type (or data_type) with loosely nested fields. Normalize collapses both
// into a model.Update so downstream code matches a single shape. Malformed
// frames degrade to a StageUnknown update carrying the raw text rather than
// being dropped.
//
// Outbound messages are small JSON envelopes for joining and leaving
// training and prediction rooms.
package protocol
