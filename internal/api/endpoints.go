package api

import (
	"context"
	"fmt"
	"net/url"
)

// GetHealth checks server liveness.
func (c *Client) GetHealth(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartTraining starts a new training run and returns the session to join.
func (c *Client) StartTraining(ctx context.Context, req TrainingRequest) (*TrainingResponse, error) {
	var out TrainingResponse
	if err := c.post(ctx, "/train", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTrainingStatus fetches one session's server-side status.
func (c *Client) GetTrainingStatus(ctx context.Context, sessionID string) (*TrainingStatus, error) {
	var out TrainingStatus
	path := fmt.Sprintf("/train/%s/status", url.PathEscape(sessionID))
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelTraining cancels a running session.
func (c *Client) CancelTraining(ctx context.Context, sessionID string) (*CancelResponse, error) {
	var out CancelResponse
	path := fmt.Sprintf("/train/%s/cancel", url.PathEscape(sessionID))
	if err := c.post(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRunningTrainings lists in-progress sessions.
func (c *Client) ListRunningTrainings(ctx context.Context) (*RunningTrainings, error) {
	var out RunningTrainings
	if err := c.get(ctx, "/train/running", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestPrediction asks for a price prediction.
func (c *Client) RequestPrediction(ctx context.Context, req PredictionRequest) (*PredictionResponse, error) {
	var out PredictionResponse
	if err := c.post(ctx, "/predict", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMarketData fetches recent bars from the read-only market feed.
func (c *Client) GetMarketData(ctx context.Context, ticker string, limit int) ([]MarketData, error) {
	query := url.Values{}
	query.Set("ticker", ticker)
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}

	var out struct {
		Data []MarketData `json:"data"`
	}
	if err := c.get(ctx, "/api/market-data", query, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}
