package model

import "time"

// SessionSnapshot is a point-in-time copy of one training session's state,
// safe for callers to retain.
type SessionSnapshot struct {
	SessionID string  `json:"session_id"`
	Stage     Stage   `json:"stage"`
	Progress  float64 `json:"progress"`

	// History is the append-only log of received updates, oldest first,
	// bounded by the tracker's history limit.
	History []Update `json:"-"`

	// CompletedAt and FailedAt are mutually exclusive and set exactly once.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the session reached a terminal state.
func (s SessionSnapshot) Terminal() bool {
	return s.CompletedAt != nil || s.FailedAt != nil
}
