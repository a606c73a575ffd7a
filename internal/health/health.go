// Package health scores connection reliability for the dashboard.
//
// Score is a pure function of the connection manager's metrics; it keeps no
// state of its own. Recommendations are a diagnostic side channel for the
// UI, never used for control flow.
package health

import (
	"time"

	"github.com/mehanisik/crypto-predict-sub000/internal/connection"
)

// Quality buckets the numeric score for display.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// Snapshot is one health assessment.
type Snapshot struct {
	Score           int      `json:"score"`
	Quality         Quality  `json:"quality"`
	Recommendations []string `json:"recommendations,omitempty"`
}

const slowReconnectThreshold = 5 * time.Second

// Score computes a health snapshot from connection metrics. The score starts
// at 100 and deductions are clamped to [0,100].
func Score(m connection.Metrics) Snapshot {
	score := 100.0

	attemptPenalty := float64(m.Attempt) * 5
	if attemptPenalty > 20 {
		attemptPenalty = 20
	}
	score -= attemptPenalty

	total := m.TotalConnections
	if total < 1 {
		total = 1
	}
	failureRate := float64(m.FailedConnections) / float64(total)
	score -= failureRate * 30

	if m.AverageReconnectTime > slowReconnectThreshold {
		over := m.AverageReconnectTime - slowReconnectThreshold
		penalty := float64(over) / float64(time.Second)
		if penalty > 15 {
			penalty = 15
		}
		score -= penalty
	}

	if m.HasError {
		score -= 10
	}
	if m.Phase == connection.PhaseConnecting {
		score -= 5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	s := Snapshot{Score: int(score)}
	s.Quality = quality(s.Score)
	s.Recommendations = recommendations(m, s.Quality)
	return s
}

func quality(score int) Quality {
	switch {
	case score >= 90:
		return QualityExcellent
	case score >= 75:
		return QualityGood
	case score >= 50:
		return QualityFair
	default:
		return QualityPoor
	}
}

func recommendations(m connection.Metrics, q Quality) []string {
	var recs []string
	if m.FailedConnections > 0 {
		recs = append(recs, "connection failures observed, verify the prediction server is reachable")
	}
	if m.AverageReconnectTime > slowReconnectThreshold {
		recs = append(recs, "reconnects are slow, check network latency to the server")
	}
	if m.Attempt > 2 {
		recs = append(recs, "multiple reconnect attempts in a row, the server may be down")
	}
	if q == QualityPoor {
		recs = append(recs, "connection quality is poor, consider a manual reconnect")
	}
	if m.HasError {
		recs = append(recs, "a transport error is active, see the connection state for details")
	}
	return recs
}
