// Package model defines the shared types that flow between the realtime
// components: the canonical training stage vocabulary, the canonical update
// emitted by the protocol normalizer, and per-session snapshots.
package model
