package room

import (
	"log/slog"
	"sync"

	"github.com/mehanisik/crypto-predict-sub000/internal/connection"
	"github.com/mehanisik/crypto-predict-sub000/internal/protocol"
)

// Kind distinguishes the two room namespaces the server exposes.
type Kind string

const (
	KindTraining   Kind = "training"
	KindPrediction Kind = "prediction"
)

// Room is one server-side broadcast channel.
type Room struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (r Room) joinEnvelope() protocol.Envelope {
	if r.Kind == KindPrediction {
		return protocol.JoinPrediction(r.ID)
	}
	return protocol.JoinTraining(r.ID)
}

func (r Room) leaveEnvelope() protocol.Envelope {
	if r.Kind == KindPrediction {
		return protocol.LeavePrediction(r.ID)
	}
	return protocol.LeaveTraining(r.ID)
}

// Sender sends outbound messages on the active connection. Satisfied by the
// connection manager.
type Sender interface {
	Send(v any) error
}

// Tracker maintains desired versus joined room membership.
type Tracker interface {
	// JoinTraining subscribes to a training session's room and marks it the
	// active session. Deferred until connect when not currently connected.
	JoinTraining(sessionID string)

	// LeaveTraining unsubscribes from a training session's room.
	LeaveTraining(sessionID string)

	// JoinPrediction subscribes to a prediction request's room.
	JoinPrediction(requestID string)

	// LeavePrediction unsubscribes from a prediction request's room.
	LeavePrediction(requestID string)

	// Desired returns the rooms the application wants subscribed.
	Desired() []Room

	// Joined returns the rooms confirmed subscribed on this connection.
	Joined() []Room

	// DesiredTraining returns the session IDs of desired training rooms.
	DesiredTraining() []string

	// ActiveSession returns the most recently joined training session ID, or
	// empty. Updates without a session ID are applied to it.
	ActiveSession() string

	// HandlePhaseChange reacts to connection phase transitions. Register it
	// with the connection manager's OnPhaseChange.
	HandlePhaseChange(old, new connection.Phase)
}

type tracker struct {
	sender Sender
	logger *slog.Logger

	mu        sync.Mutex
	desired   map[Room]struct{}
	joined    map[Room]struct{}
	connected bool
	active    string
}

// NewTracker creates a room tracker sending through the given sender.
func NewTracker(sender Sender, logger *slog.Logger) Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &tracker{
		sender:  sender,
		logger:  logger,
		desired: make(map[Room]struct{}),
		joined:  make(map[Room]struct{}),
	}
}

func (t *tracker) JoinTraining(sessionID string) {
	t.mu.Lock()
	t.active = sessionID
	t.mu.Unlock()
	t.join(Room{Kind: KindTraining, ID: sessionID})
}

func (t *tracker) LeaveTraining(sessionID string) {
	t.leave(Room{Kind: KindTraining, ID: sessionID})

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == sessionID {
		t.active = ""
		// Fall back to any remaining desired training room.
		for r := range t.desired {
			if r.Kind == KindTraining {
				t.active = r.ID
				break
			}
		}
	}
}

func (t *tracker) JoinPrediction(requestID string) {
	t.join(Room{Kind: KindPrediction, ID: requestID})
}

func (t *tracker) LeavePrediction(requestID string) {
	t.leave(Room{Kind: KindPrediction, ID: requestID})
}

func (t *tracker) join(r Room) {
	t.mu.Lock()
	if _, ok := t.joined[r]; ok {
		t.mu.Unlock()
		return
	}
	t.desired[r] = struct{}{}
	if !t.connected {
		t.mu.Unlock()
		t.logger.Debug("join deferred until connect", "kind", r.Kind, "id", r.ID)
		return
	}
	t.mu.Unlock()

	if err := t.sender.Send(r.joinEnvelope()); err != nil {
		t.logger.Warn("join send failed", "kind", r.Kind, "id", r.ID, "error", err)
		return
	}

	// A concurrent leave during the send may have removed the room from
	// desired; joined must stay a subset of desired.
	t.mu.Lock()
	_, stillDesired := t.desired[r]
	if t.connected && stillDesired {
		t.joined[r] = struct{}{}
	}
	t.mu.Unlock()

	t.logger.Info("room joined", "kind", r.Kind, "id", r.ID)
}

func (t *tracker) leave(r Room) {
	t.mu.Lock()
	delete(t.desired, r)
	_, wasJoined := t.joined[r]
	delete(t.joined, r)
	connected := t.connected
	t.mu.Unlock()

	if connected && wasJoined {
		if err := t.sender.Send(r.leaveEnvelope()); err != nil {
			t.logger.Warn("leave send failed", "kind", r.Kind, "id", r.ID, "error", err)
		}
	}
}

func (t *tracker) Desired() []Room {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Room, 0, len(t.desired))
	for r := range t.desired {
		out = append(out, r)
	}
	return out
}

func (t *tracker) Joined() []Room {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Room, 0, len(t.joined))
	for r := range t.joined {
		out = append(out, r)
	}
	return out
}

func (t *tracker) DesiredTraining() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.desired))
	for r := range t.desired {
		if r.Kind == KindTraining {
			out = append(out, r.ID)
		}
	}
	return out
}

func (t *tracker) ActiveSession() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *tracker) HandlePhaseChange(old, new connection.Phase) {
	switch {
	case new == connection.PhaseConnected:
		t.rejoinAll()
	case old == connection.PhaseConnected:
		t.mu.Lock()
		t.connected = false
		t.joined = make(map[Room]struct{})
		t.mu.Unlock()
	}
}

// rejoinAll re-sends a join for every desired room. Subscriptions on the
// server died with the previous connection.
func (t *tracker) rejoinAll() {
	t.mu.Lock()
	t.connected = true
	rooms := make([]Room, 0, len(t.desired))
	for r := range t.desired {
		rooms = append(rooms, r)
	}
	t.mu.Unlock()

	for _, r := range rooms {
		if err := t.sender.Send(r.joinEnvelope()); err != nil {
			t.logger.Warn("rejoin send failed", "kind", r.Kind, "id", r.ID, "error", err)
			continue
		}
		t.mu.Lock()
		_, stillDesired := t.desired[r]
		if t.connected && stillDesired {
			t.joined[r] = struct{}{}
		}
		t.mu.Unlock()
	}

	if len(rooms) > 0 {
		t.logger.Info("rooms rejoined", "count", len(rooms))
	}
}
