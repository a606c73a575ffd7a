package api

import "encoding/json"

// HealthStatus is the response of the health-check endpoint.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Version   string `json:"version,omitempty"`
}

// TrainingRequest starts a new training run.
type TrainingRequest struct {
	Ticker       string  `json:"ticker"`
	ModelType    string  `json:"model_type"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Lookback     int     `json:"lookback"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
}

// TrainingResponse acknowledges a started training run. SessionID is the
// room to join for its realtime updates.
type TrainingResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// TrainingProgress is the server-side progress summary in a status response.
type TrainingProgress struct {
	Percentage float64 `json:"percentage"`
	Stage      string  `json:"stage"`
}

// TrainingStatus is the response of the training status endpoint.
type TrainingStatus struct {
	SessionID string           `json:"session_id"`
	Status    string           `json:"status"`
	Progress  TrainingProgress `json:"progress"`
	Details   json.RawMessage  `json:"details,omitempty"`
}

// CancelResponse is the response of the training cancel endpoint.
type CancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RunningTrainings lists in-progress training sessions.
type RunningTrainings struct {
	RunningTrainings []TrainingSessionInfo `json:"running_trainings"`
	Count            int                   `json:"count"`
	MaxSessions      int                   `json:"max_sessions"`
}

// TrainingSessionInfo is one running session's record.
type TrainingSessionInfo struct {
	SessionID string  `json:"session_id"`
	Ticker    string  `json:"ticker"`
	ModelType string  `json:"model_type"`
	Status    string  `json:"status"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// PredictionRequest asks for a price prediction.
type PredictionRequest struct {
	Ticker    string `json:"ticker"`
	StartDate string `json:"start_date"`
	Days      int    `json:"days"`
}

// PredictionResponse carries the prediction result or, for async serving,
// the request_id whose room streams it.
type PredictionResponse struct {
	RequestID string         `json:"request_id"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// MarketData is one bar of the read-only market feed.
type MarketData struct {
	Ticker    string  `json:"ticker"`
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}
