package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mehanisik/crypto-predict-sub000/internal/api"
	"github.com/mehanisik/crypto-predict-sub000/internal/connection"
	"github.com/mehanisik/crypto-predict-sub000/internal/model"
)

// mockSessionSource returns a fixed list of sessions.
type mockSessionSource struct {
	sessions []string
}

func (m *mockSessionSource) DesiredTraining() []string {
	return m.sessions
}

// mockHandler counts applied updates.
type mockHandler struct {
	count   atomic.Int32
	updates chan model.Update
}

func newMockHandler() *mockHandler {
	return &mockHandler{updates: make(chan model.Update, 64)}
}

func (m *mockHandler) Apply(u model.Update) (model.SessionSnapshot, bool) {
	m.count.Add(1)
	select {
	case m.updates <- u:
	default:
	}
	return model.SessionSnapshot{SessionID: u.SessionID}, true
}

func disconnected() connection.Phase { return connection.PhaseDisconnected }
func connected() connection.Phase    { return connection.PhaseConnected }

func statusServer(t *testing.T, status string, percentage float64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		// /train/<id>/status
		id := parts[2]
		json.NewEncoder(w).Encode(api.TrainingStatus{
			SessionID: id,
			Status:    status,
			Progress:  api.TrainingProgress{Percentage: percentage, Stage: "training"},
		})
	}))
}

func TestPoller_PollAll(t *testing.T) {
	server := statusServer(t, "in_progress", 40)
	defer server.Close()

	client := api.NewClient(server.URL, "", api.WithTimeout(5*time.Second))
	sessions := &mockSessionSource{sessions: []string{"s1", "s2", "s3"}}
	handler := newMockHandler()

	cfg := Config{
		Interval:    time.Hour, // Long interval, we'll trigger manually.
		Concurrency: 10,
		Timeout:     5 * time.Second,
	}

	p := New(cfg, client, sessions, handler, disconnected, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.ctx = ctx

	p.pollAll()

	if got := handler.count.Load(); got != 3 {
		t.Errorf("applied updates = %d, want 3", got)
	}

	u := <-handler.updates
	if u.Stage != model.StageTrainingProgress {
		t.Errorf("Stage = %q, want training_progress", u.Stage)
	}
	if u.ProgressValue() != 40 {
		t.Errorf("Progress = %v, want 40", u.ProgressValue())
	}
	if u.Payload["source"] != "status_poll" {
		t.Errorf("Payload source = %v", u.Payload["source"])
	}
}

func TestPoller_SkipsWhileConnected(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(api.TrainingStatus{})
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "")
	sessions := &mockSessionSource{sessions: []string{"s1"}}
	handler := newMockHandler()

	p := New(Config{Interval: time.Hour, Concurrency: 2}, client, sessions, handler, connected, nil)
	p.ctx = context.Background()

	p.pollAll()

	if got := calls.Load(); got != 0 {
		t.Errorf("server called %d times, want 0 while connected", got)
	}
}

func TestPoller_TerminalStatus(t *testing.T) {
	server := statusServer(t, "completed", 100)
	defer server.Close()

	client := api.NewClient(server.URL, "")
	sessions := &mockSessionSource{sessions: []string{"s1"}}
	handler := newMockHandler()

	p := New(Config{Interval: time.Hour, Concurrency: 2, Timeout: 5 * time.Second}, client, sessions, handler, disconnected, nil)
	p.ctx = context.Background()

	p.pollAll()

	u := <-handler.updates
	if u.Stage != model.StageTrainingCompleted {
		t.Errorf("Stage = %q, want training_completed", u.Stage)
	}
	if !u.Terminal {
		t.Error("Terminal = false, want true")
	}
}

func TestPoller_StartStop(t *testing.T) {
	server := statusServer(t, "in_progress", 10)
	defer server.Close()

	client := api.NewClient(server.URL, "")
	sessions := &mockSessionSource{sessions: []string{"s1"}}
	handler := newMockHandler()

	cfg := Config{
		Interval:    50 * time.Millisecond,
		Concurrency: 2,
		Timeout:     5 * time.Second,
	}

	p := New(cfg, client, sessions, handler, disconnected, nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for at least one poll.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && handler.count.Load() == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if handler.count.Load() == 0 {
		t.Error("handler was never called")
	}
}

func TestPoller_Concurrency(t *testing.T) {
	var inFlight atomic.Int32
	var maxInFlight atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			old := maxInFlight.Load()
			if current <= old || maxInFlight.CompareAndSwap(old, current) {
				break
			}
		}

		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(api.TrainingStatus{Status: "in_progress"})
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "")

	var list []string
	for i := 0; i < 20; i++ {
		list = append(list, "session-"+string(rune('a'+i)))
	}
	sessions := &mockSessionSource{sessions: list}
	handler := newMockHandler()

	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 5, // Limit to 5 concurrent.
		Timeout:     5 * time.Second,
	}

	p := New(cfg, client, sessions, handler, disconnected, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p.ctx = ctx

	p.pollAll()

	if got := maxInFlight.Load(); got > 5 {
		t.Errorf("maxInFlight = %d, want <= 5", got)
	}
}
