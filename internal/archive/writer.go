// Package archive persists applied session updates to PostgreSQL in batches
// so completed runs survive a monitor restart.
package archive

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/mehanisik/crypto-predict-sub000/internal/config"
	"github.com/mehanisik/crypto-predict-sub000/internal/metrics"
	"github.com/mehanisik/crypto-predict-sub000/internal/model"
	"github.com/mehanisik/crypto-predict-sub000/internal/session"
)

// Metrics counts writer activity.
type Metrics struct {
	Inserts int64
	Dropped int64
	Flushes int64
	Errors  int64
}

// Writer subscribes to the session tracker and archives every applied
// update.
type Writer struct {
	cfg    config.ArchiveConfig
	db     *pgxpool.Pool
	logger *slog.Logger

	input       chan model.SessionSnapshot
	unsubscribe func()

	batch   []updateRow
	batchMu sync.Mutex
	m       Metrics

	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
}

type updateRow struct {
	SessionID  string
	Stage      string
	Progress   float64
	Terminal   bool
	ObservedAt time.Time
	Payload    []byte
}

// NewWriter creates an archive writer.
func NewWriter(cfg config.ArchiveConfig, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan model.SessionSnapshot, cfg.BufferSize),
		batch:  make([]updateRow, 0, cfg.BatchSize),
	}
}

// Start subscribes to the tracker and begins batching.
func (w *Writer) Start(ctx context.Context, tracker session.Tracker) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.g, _ = errgroup.WithContext(w.ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// The tracker callback must never block its caller.
	w.unsubscribe = tracker.Subscribe(func(snap model.SessionSnapshot) {
		select {
		case w.input <- snap:
		default:
			w.batchMu.Lock()
			w.m.Dropped++
			w.batchMu.Unlock()
			w.logger.Warn("archive buffer full, dropping snapshot",
				"session_id", snap.SessionID)
		}
	})

	w.g.Go(w.consumeLoop)
	w.g.Go(w.flushLoop)

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop unsubscribes, drains the loops and flushes the final batch.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	if w.unsubscribe != nil {
		w.unsubscribe()
	}
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		if w.g != nil {
			w.g.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("archive writer stopped")
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.m
}

func (w *Writer) consumeLoop() error {
	for {
		select {
		case <-w.ctx.Done():
			return nil
		case snap := <-w.input:
			w.handleSnapshot(snap)
		}
	}
}

func (w *Writer) flushLoop() error {
	for {
		select {
		case <-w.ctx.Done():
			return nil
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *Writer) handleSnapshot(snap model.SessionSnapshot) {
	row := transform(snap)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform flattens a snapshot to its archivable row. The newest history
// entry is the update that produced the snapshot.
func transform(snap model.SessionSnapshot) updateRow {
	row := updateRow{
		SessionID:  snap.SessionID,
		Stage:      string(snap.Stage),
		Progress:   snap.Progress,
		Terminal:   snap.Terminal(),
		ObservedAt: snap.UpdatedAt,
	}

	if n := len(snap.History); n > 0 {
		last := snap.History[n-1]
		if last.Payload != nil {
			if data, err := json.Marshal(last.Payload); err == nil {
				row.Payload = data
			}
		}
	}
	if row.Payload == nil {
		row.Payload = []byte("{}")
	}

	return row
}

// flush writes the current batch to the database.
func (w *Writer) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]updateRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	// A fresh context here lets the final flush after Stop still reach the
	// database.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.m.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.m.Inserts += int64(len(batch))
	w.m.Flushes++
	w.batchMu.Unlock()

	metrics.ArchivedUpdates.Add(float64(len(batch)))

	w.logger.Debug("flushed session updates",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert writes rows using pgx.Batch.
func (w *Writer) batchInsert(ctx context.Context, rows []updateRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO session_updates (session_id, stage, progress, terminal, observed_at, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.SessionID, r.Stage, r.Progress, r.Terminal, r.ObservedAt, r.Payload)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
