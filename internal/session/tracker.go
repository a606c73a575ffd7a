package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mehanisik/crypto-predict-sub000/internal/metrics"
	"github.com/mehanisik/crypto-predict-sub000/internal/model"
)

// DefaultHistoryLimit bounds the per-session update history.
const DefaultHistoryLimit = 512

// Tracker holds the state machines for all observed training sessions.
type Tracker interface {
	// Apply routes an update to its session, creating the session lazily.
	// Updates without a session ID go to the active session. The returned
	// bool is false when no session could be resolved.
	Apply(u model.Update) (model.SessionSnapshot, bool)

	// Get returns a snapshot of one session.
	Get(sessionID string) (model.SessionSnapshot, bool)

	// Sessions returns snapshots of all sessions, oldest first.
	Sessions() []model.SessionSnapshot

	// SetActive names the session that receives broadcast updates.
	SetActive(sessionID string)

	// Reset returns a session to idle with zero progress and empty history.
	Reset(sessionID string)

	// Subscribe registers a callback invoked with a snapshot after every
	// applied update. The returned func unsubscribes.
	Subscribe(fn func(model.SessionSnapshot)) func()
}

type trackedSession struct {
	snap        model.SessionSnapshot
	maxRank     int
	regressions int
}

type tracker struct {
	logger       *slog.Logger
	historyLimit int

	mu       sync.Mutex
	sessions map[string]*trackedSession
	active   string

	subs    map[int]func(model.SessionSnapshot)
	nextSub int
}

// NewTracker creates a session tracker. historyLimit <= 0 selects the
// default.
func NewTracker(historyLimit int, logger *slog.Logger) Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &tracker{
		logger:       logger,
		historyLimit: historyLimit,
		sessions:     make(map[string]*trackedSession),
		subs:         make(map[int]func(model.SessionSnapshot)),
	}
}

func (t *tracker) Apply(u model.Update) (model.SessionSnapshot, bool) {
	t.mu.Lock()

	id := u.SessionID
	if id == "" {
		id = t.active
		if id == "" {
			t.mu.Unlock()
			t.logger.Warn("update dropped, no session resolvable", "stage", u.Stage)
			metrics.UpdatesDropped.Inc()
			return model.SessionSnapshot{}, false
		}
		t.logger.Debug("broadcast update adopted by active session",
			"session_id", id, "stage", u.Stage)
	}

	s, ok := t.sessions[id]
	if !ok {
		s = &trackedSession{
			snap: model.SessionSnapshot{
				SessionID: id,
				Stage:     model.StageIdle,
				CreatedAt: time.Now(),
			},
		}
		t.sessions[id] = s
	}

	s.snap.History = append(s.snap.History, u)
	if len(s.snap.History) > t.historyLimit {
		s.snap.History = s.snap.History[len(s.snap.History)-t.historyLimit:]
	}

	if !s.snap.Terminal() {
		t.applyLocked(s, u)
	}

	s.snap.UpdatedAt = time.Now()
	snap := snapshotCopy(s.snap)

	subs := make([]func(model.SessionSnapshot), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	metrics.UpdatesApplied.WithLabelValues(string(u.Stage)).Inc()
	for _, fn := range subs {
		fn(snap)
	}

	return snap, true
}

// applyLocked mutates a non-terminal session with one update.
func (t *tracker) applyLocked(s *trackedSession, u model.Update) {
	rank, ranked := u.Stage.Rank()

	switch {
	case ranked && rank < s.maxRank:
		// Genuine stage regression: the server walked the pipeline backward.
		// Progress restarts from the update's value.
		s.snap.Stage = u.Stage
		s.maxRank = rank
		if u.Progress != nil {
			s.snap.Progress = *u.Progress
		} else {
			s.snap.Progress = 0
		}
		t.logger.Info("stage regressed, progress reset",
			"session_id", s.snap.SessionID, "stage", u.Stage)

	case ranked:
		s.snap.Stage = u.Stage
		if rank > s.maxRank {
			s.maxRank = rank
		}
		if u.Progress != nil {
			if *u.Progress < s.snap.Progress {
				s.regressions++
				metrics.ProgressRegressions.Inc()
				t.logger.Debug("progress regression ignored",
					"session_id", s.snap.SessionID,
					"stored", s.snap.Progress,
					"received", *u.Progress)
			} else {
				s.snap.Progress = *u.Progress
			}
		}

	default:
		// Unranked (unknown) stages land in history but do not move the
		// machine. Their progress still obeys monotonicity.
		if u.Progress != nil && *u.Progress > s.snap.Progress {
			s.snap.Progress = *u.Progress
		}
	}

	now := time.Now()
	switch u.Stage {
	case model.StageTrainingCompleted:
		s.snap.CompletedAt = &now
	case model.StageError:
		s.snap.Stage = model.StageFailed
		s.snap.FailedAt = &now
	}
}

func (t *tracker) Get(sessionID string) (model.SessionSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return model.SessionSnapshot{}, false
	}
	return snapshotCopy(s.snap), true
}

func (t *tracker) Sessions() []model.SessionSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.SessionSnapshot, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, snapshotCopy(s.snap))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (t *tracker) SetActive(sessionID string) {
	t.mu.Lock()
	t.active = sessionID
	t.mu.Unlock()
}

func (t *tracker) Reset(sessionID string) {
	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	s.snap = model.SessionSnapshot{
		SessionID: sessionID,
		Stage:     model.StageIdle,
		CreatedAt: s.snap.CreatedAt,
		UpdatedAt: time.Now(),
	}
	s.maxRank = 0
	s.regressions = 0
	snap := snapshotCopy(s.snap)

	subs := make([]func(model.SessionSnapshot), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	t.logger.Info("session reset", "session_id", sessionID)
	for _, fn := range subs {
		fn(snap)
	}
}

func (t *tracker) Subscribe(fn func(model.SessionSnapshot)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

func snapshotCopy(s model.SessionSnapshot) model.SessionSnapshot {
	out := s
	out.History = make([]model.Update, len(s.History))
	copy(out.History, s.History)
	if s.CompletedAt != nil {
		v := *s.CompletedAt
		out.CompletedAt = &v
	}
	if s.FailedAt != nil {
		v := *s.FailedAt
		out.FailedAt = &v
	}
	return out
}
