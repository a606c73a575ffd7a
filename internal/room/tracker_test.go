package room

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/mehanisik/crypto-predict-sub000/internal/connection"
	"github.com/mehanisik/crypto-predict-sub000/internal/protocol"
)

// stubSender records outbound envelopes.
type stubSender struct {
	mu   sync.Mutex
	sent []protocol.Envelope
	err  error
}

func (s *stubSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, v.(protocol.Envelope))
	return nil
}

func (s *stubSender) envelopes() []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Envelope, len(s.sent))
	copy(out, s.sent)
	return out
}

func connectedTracker(t *testing.T) (Tracker, *stubSender) {
	t.Helper()
	sender := &stubSender{}
	tr := NewTracker(sender, nil)
	tr.HandlePhaseChange(connection.PhaseConnecting, connection.PhaseConnected)
	return tr, sender
}

func sessionIDs(rooms []Room) []string {
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestTracker_JoinSendsWhenConnected(t *testing.T) {
	tr, sender := connectedTracker(t)

	tr.JoinTraining("abc")

	sent := sender.envelopes()
	if len(sent) != 1 {
		t.Fatalf("sent %d envelopes, want 1", len(sent))
	}
	if sent[0].Event != "join_training" || sent[0].SessionID != "abc" {
		t.Errorf("envelope = %+v", sent[0])
	}
	if got := sessionIDs(tr.Joined()); len(got) != 1 || got[0] != "abc" {
		t.Errorf("Joined = %v, want [abc]", got)
	}
	if tr.ActiveSession() != "abc" {
		t.Errorf("ActiveSession = %q, want abc", tr.ActiveSession())
	}
}

func TestTracker_JoinIdempotent(t *testing.T) {
	tr, sender := connectedTracker(t)

	tr.JoinTraining("abc")
	tr.JoinTraining("abc")

	if got := len(sender.envelopes()); got != 1 {
		t.Errorf("sent %d envelopes, want exactly 1", got)
	}
	if got := len(tr.Joined()); got != 1 {
		t.Errorf("Joined has %d entries, want 1", got)
	}
}

func TestTracker_JoinDeferredWhenDisconnected(t *testing.T) {
	sender := &stubSender{}
	tr := NewTracker(sender, nil)

	tr.JoinTraining("abc")

	if got := len(sender.envelopes()); got != 0 {
		t.Errorf("sent %d envelopes while disconnected, want 0", got)
	}
	if got := len(tr.Desired()); got != 1 {
		t.Errorf("Desired has %d entries, want 1", got)
	}
	if got := len(tr.Joined()); got != 0 {
		t.Errorf("Joined has %d entries, want 0", got)
	}

	// Connect flushes the deferred join.
	tr.HandlePhaseChange(connection.PhaseConnecting, connection.PhaseConnected)

	sent := sender.envelopes()
	if len(sent) != 1 || sent[0].SessionID != "abc" {
		t.Fatalf("sent = %+v, want single join for abc", sent)
	}
	if got := sessionIDs(tr.Joined()); len(got) != 1 || got[0] != "abc" {
		t.Errorf("Joined = %v, want [abc]", got)
	}
}

func TestTracker_RejoinAfterReconnect(t *testing.T) {
	tr, sender := connectedTracker(t)

	tr.JoinTraining("abc")
	tr.JoinPrediction("r1")

	// Transport drops.
	tr.HandlePhaseChange(connection.PhaseConnected, connection.PhaseDisconnected)

	if got := len(tr.Joined()); got != 0 {
		t.Errorf("Joined has %d entries after disconnect, want 0", got)
	}
	if got := len(tr.Desired()); got != 2 {
		t.Errorf("Desired has %d entries after disconnect, want 2", got)
	}

	// Reconnect restores every desired room.
	tr.HandlePhaseChange(connection.PhaseConnecting, connection.PhaseConnected)

	if got, want := len(sender.envelopes()), 4; got != want {
		t.Errorf("sent %d envelopes, want %d (2 joins + 2 rejoins)", got, want)
	}
	if got := len(tr.Joined()); got != 2 {
		t.Errorf("Joined has %d entries after reconnect, want 2", got)
	}
}

func TestTracker_JoinedMatchesDesiredWhenConnected(t *testing.T) {
	tr, _ := connectedTracker(t)

	tr.JoinTraining("a")
	tr.JoinTraining("b")
	tr.LeaveTraining("a")
	tr.HandlePhaseChange(connection.PhaseConnected, connection.PhaseDisconnected)
	tr.JoinTraining("c")
	tr.HandlePhaseChange(connection.PhaseReconnecting, connection.PhaseConnected)

	desired := sessionIDs(tr.Desired())
	joined := sessionIDs(tr.Joined())
	if len(desired) != len(joined) {
		t.Fatalf("desired = %v, joined = %v", desired, joined)
	}
	for i := range desired {
		if desired[i] != joined[i] {
			t.Fatalf("desired = %v, joined = %v", desired, joined)
		}
	}
}

func TestTracker_LeaveSendsAndClearsActive(t *testing.T) {
	tr, sender := connectedTracker(t)

	tr.JoinTraining("abc")
	tr.LeaveTraining("abc")

	sent := sender.envelopes()
	if len(sent) != 2 || sent[1].Event != "leave_training" {
		t.Fatalf("sent = %+v", sent)
	}
	if tr.ActiveSession() != "" {
		t.Errorf("ActiveSession = %q, want empty", tr.ActiveSession())
	}
	if got := len(tr.Desired()); got != 0 {
		t.Errorf("Desired has %d entries, want 0", got)
	}
}

func TestTracker_ActiveFallsBackToRemaining(t *testing.T) {
	tr, _ := connectedTracker(t)

	tr.JoinTraining("a")
	tr.JoinTraining("b")
	tr.LeaveTraining("b")

	if got := tr.ActiveSession(); got != "a" {
		t.Errorf("ActiveSession = %q, want a", got)
	}
}

// hookSender runs a callback on each envelope before recording it.
type hookSender struct {
	stubSender
	onSend func(protocol.Envelope)
}

func (s *hookSender) Send(v any) error {
	if s.onSend != nil {
		s.onSend(v.(protocol.Envelope))
	}
	return s.stubSender.Send(v)
}

func TestTracker_LeaveDuringJoinKeepsJoinedSubsetOfDesired(t *testing.T) {
	sender := &hookSender{}
	tr := NewTracker(sender, nil)
	tr.HandlePhaseChange(connection.PhaseConnecting, connection.PhaseConnected)

	// The room is abandoned while its join envelope is in flight; the
	// tracker must not resurrect it in joined afterwards.
	sender.onSend = func(env protocol.Envelope) {
		if env.Event == "join_training" {
			sender.onSend = nil
			tr.LeaveTraining("abc")
		}
	}

	tr.JoinTraining("abc")

	if got := len(tr.Desired()); got != 0 {
		t.Errorf("Desired has %d entries, want 0 after mid-join leave", got)
	}
	if got := len(tr.Joined()); got != 0 {
		t.Errorf("Joined has %d entries, want 0 after mid-join leave", got)
	}
}

func TestTracker_SendFailureKeepsRoomDesired(t *testing.T) {
	sender := &stubSender{err: errors.New("write: broken pipe")}
	tr := NewTracker(sender, nil)
	tr.HandlePhaseChange(connection.PhaseConnecting, connection.PhaseConnected)

	tr.JoinTraining("abc")

	if got := len(tr.Joined()); got != 0 {
		t.Errorf("Joined has %d entries after failed send, want 0", got)
	}
	if got := len(tr.Desired()); got != 1 {
		t.Errorf("Desired has %d entries, want 1 (retry on next connect)", got)
	}
}

func TestTracker_DesiredTraining(t *testing.T) {
	tr, _ := connectedTracker(t)

	tr.JoinTraining("a")
	tr.JoinPrediction("r1")

	ids := tr.DesiredTraining()
	if len(ids) != 1 || ids[0] != "a" {
		t.Errorf("DesiredTraining = %v, want [a]", ids)
	}
}
