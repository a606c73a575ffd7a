package connection

import (
	"errors"
	"time"
)

// Phase is the connection lifecycle state. Exactly one phase is active at a
// time.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseDisconnected Phase = "disconnected"
	PhaseReconnecting Phase = "reconnecting"
	PhaseFailed       Phase = "failed"
)

// Sentinel errors.
var (
	ErrNotConnected    = errors.New("websocket not connected")
	ErrAlreadyClosed   = errors.New("websocket already closed")
	ErrStaleConnection = errors.New("no server activity within liveness timeout")
)

// ConnError records the last transport error for UI display.
type ConnError struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// State is a read-only snapshot of the manager's connection state.
type State struct {
	Phase Phase `json:"phase"`

	// Err is the last transport error; cleared on the next successful
	// connect.
	Err *ConnError `json:"error,omitempty"`

	// LastConnectedAt and LastDisconnectedAt are zero until the first
	// transition and only ever move forward.
	LastConnectedAt    time.Time `json:"last_connected_at,omitzero"`
	LastDisconnectedAt time.Time `json:"last_disconnected_at,omitzero"`

	// Attempt counts scheduled reconnect attempts since the last successful
	// connect or manual reconnect.
	Attempt int `json:"attempt"`

	// ManualDisconnect suppresses automatic reconnection until a manual
	// Reconnect clears it.
	ManualDisconnect bool `json:"manual_disconnect"`
}

// Metrics is the rolling reliability accumulator consumed by the health
// scorer. It is a copy; reads do not require further synchronization.
type Metrics struct {
	Phase                Phase
	Attempt              int
	HasError             bool
	TotalConnections     int
	FailedConnections    int
	AverageReconnectTime time.Duration
}

// RawMessage is one inbound frame with its local receive timestamp.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a single WebSocket client.
type ClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// LivenessTimeout closes the connection as stale when no frame or ping
	// arrives within the window. Zero disables the watchdog.
	LivenessTimeout time.Duration

	// BufferSize is the inbound message channel capacity.
	BufferSize int
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	URL string

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// ReconnectBaseDelay doubles per attempt up to ReconnectMaxDelay.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// MaxReconnectAttempts bounds automatic retries; once exhausted the
	// phase settles to failed until a manual Reconnect.
	MaxReconnectAttempts int

	LivenessTimeout   time.Duration
	MessageBufferSize int
}

// DefaultManagerConfig returns production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DialTimeout:          10 * time.Second,
		WriteTimeout:         5 * time.Second,
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 8,
		LivenessTimeout:      90 * time.Second,
		MessageBufferSize:    1000,
	}
}

func (c ManagerConfig) clientConfig() ClientConfig {
	return ClientConfig{
		URL:              c.URL,
		HandshakeTimeout: c.DialTimeout,
		WriteTimeout:     c.WriteTimeout,
		LivenessTimeout:  c.LivenessTimeout,
		BufferSize:       c.MessageBufferSize,
	}
}
