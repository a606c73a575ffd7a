package model

import "time"

// Update is the canonical training event every downstream consumer sees,
// regardless of which wire schema produced it.
type Update struct {
	// Stage is the canonical stage, never empty (StageUnknown at worst).
	Stage Stage

	// SessionID identifies the training job. Empty when the server omitted
	// it entirely; such updates are applied to the active session.
	SessionID string

	// Timestamp is the server timestamp when present, otherwise the local
	// receive time.
	Timestamp time.Time

	// Progress is a value in [0,100], nil when the update carried none.
	Progress *float64

	// Payload carries the update's data object unchanged, with metrics and
	// series sub-objects normalized to keyed-numeric mappings.
	Payload map[string]any

	// Terminal is true for updates that end the run (completion or error).
	Terminal bool
}

// ProgressValue returns the progress or -1 when absent.
func (u Update) ProgressValue() float64 {
	if u.Progress == nil {
		return -1
	}
	return *u.Progress
}
