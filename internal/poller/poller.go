package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mehanisik/crypto-predict-sub000/internal/api"
	"github.com/mehanisik/crypto-predict-sub000/internal/connection"
	"github.com/mehanisik/crypto-predict-sub000/internal/model"
)

// SessionSource provides the training sessions to poll.
type SessionSource interface {
	DesiredTraining() []string
}

// UpdateHandler receives updates synthesized from REST status responses.
type UpdateHandler interface {
	Apply(u model.Update) (model.SessionSnapshot, bool)
}

// PhaseFunc reports the current connection phase.
type PhaseFunc func() connection.Phase

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 30s)
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// StatusPoller periodically fetches training status via REST while the
// WebSocket is down, so displayed progress keeps moving during an outage.
type StatusPoller struct {
	cfg      Config
	client   *api.Client
	sessions SessionSource
	handler  UpdateHandler
	phase    PhaseFunc
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new StatusPoller.
func New(cfg Config, client *api.Client, sessions SessionSource, handler UpdateHandler, phase PhaseFunc, logger *slog.Logger) *StatusPoller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &StatusPoller{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		handler:  handler,
		phase:    phase,
		logger:   logger,
	}
}

// Start begins the polling loop.
func (p *StatusPoller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("status poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *StatusPoller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("status poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *StatusPoller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll fetches status for all desired sessions concurrently. While the
// WebSocket is connected the realtime feed is authoritative and the cycle is
// skipped.
func (p *StatusPoller) pollAll() {
	if p.phase() == connection.PhaseConnected {
		return
	}

	start := time.Now()

	sessions := p.sessions.DesiredTraining()
	if len(sessions) == 0 {
		p.logger.Debug("no sessions to poll")
		return
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var fetched, errors atomic.Int64

	for _, sessionID := range sessions {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if err := p.pollSession(id); err != nil {
				p.logger.Warn("failed to poll session",
					"session_id", id,
					"err", err,
				)
				errors.Add(1)
				return
			}

			fetched.Add(1)
		}(sessionID)
	}

	wg.Wait()

	p.logger.Info("poll cycle complete",
		"sessions", len(sessions),
		"fetched", fetched.Load(),
		"errors", errors.Load(),
		"duration", time.Since(start),
	)
}

// pollSession fetches one session's status and applies a synthesized update.
func (p *StatusPoller) pollSession(id string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	status, err := p.client.GetTrainingStatus(ctx, id)
	if err != nil {
		return err
	}

	p.handler.Apply(synthesize(status))
	return nil
}

// synthesize maps a REST status response to a canonical update.
func synthesize(status *api.TrainingStatus) model.Update {
	progress := status.Progress.Percentage
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	stage := stageFor(status)

	return model.Update{
		Stage:     stage,
		SessionID: status.SessionID,
		Timestamp: time.Now(),
		Progress:  &progress,
		Payload: map[string]any{
			"source": "status_poll",
			"status": status.Status,
		},
		Terminal: stage == model.StageTrainingCompleted || stage == model.StageError,
	}
}

func stageFor(status *api.TrainingStatus) model.Stage {
	switch status.Status {
	case "completed":
		return model.StageTrainingCompleted
	case "failed", "cancelled":
		return model.StageError
	case "in_progress":
		return model.StageTrainingProgress
	case "pending":
		return model.StageStarting
	default:
		return model.StageUnknown
	}
}
