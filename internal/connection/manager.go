package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Manager owns the connection lifecycle: a single active client, automatic
// reconnection with bounded exponential backoff, and phase-change hooks.
type Manager interface {
	// Connect begins establishing the connection. It is a no-op when already
	// connected or connecting. Dial failures do not surface here; they drive
	// the reconnect path and are readable via State.
	Connect(ctx context.Context)

	// Disconnect tears the connection down and suppresses automatic
	// reconnection until Reconnect is called.
	Disconnect()

	// Reconnect forces a fresh connection cycle with reset backoff. It clears
	// a manual disconnect and recovers from the failed phase.
	Reconnect(ctx context.Context)

	// Send marshals v to JSON and writes it to the active connection.
	Send(v any) error

	// Messages returns the fan-in channel of raw inbound frames. It survives
	// reconnects; callers range over it once.
	Messages() <-chan RawMessage

	// State returns a snapshot of the connection state.
	State() State

	// Metrics returns a snapshot of the reliability accumulators.
	Metrics() Metrics

	// OnPhaseChange registers a hook fired on every phase transition. The
	// returned func unregisters it.
	OnPhaseChange(fn func(old, new Phase)) func()

	// DropTransport simulates a transport failure on the active connection.
	DropTransport() error

	// Stop shuts the manager down. The messages channel is closed once all
	// internal goroutines drain.
	Stop()
}

type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	// newClient is swappable for tests.
	newClient func(ClientConfig, *slog.Logger) Client

	messages chan RawMessage

	mu     sync.Mutex
	state  State
	client Client

	// gen increments whenever the active client changes; pump goroutines
	// carry the gen they were started with and stale ones are ignored.
	gen int

	// pumpStop belongs to the current pump goroutine. Closing it releases a
	// pump whose client was torn down without its channels ever settling.
	pumpStop chan struct{}

	reconnectTimer *time.Timer

	totalConns     int
	failedConns    int
	reconnectTotal time.Duration
	reconnectCount int
	droppedAt      time.Time

	hooks    map[int]func(old, new Phase)
	nextHook int

	wg      sync.WaitGroup
	stopped bool
}

// NewManager creates a connection manager. Zero-value config fields fall back
// to DefaultManagerConfig.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultManagerConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.MessageBufferSize <= 0 {
		cfg.MessageBufferSize = def.MessageBufferSize
	}

	return &manager{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		messages:  make(chan RawMessage, cfg.MessageBufferSize),
		state:     State{Phase: PhaseIdle},
		hooks:     make(map[int]func(old, new Phase)),
	}
}

func (m *manager) Connect(ctx context.Context) {
	m.mu.Lock()
	if m.stopped || m.state.Phase == PhaseConnected || m.state.Phase == PhaseConnecting {
		m.mu.Unlock()
		return
	}
	m.cancelTimerLocked()
	m.state.ManualDisconnect = false
	fire := m.setPhaseLocked(PhaseConnecting)
	m.wg.Add(1)
	m.mu.Unlock()
	fire()

	go m.dialAndRun(ctx)
}

func (m *manager) Disconnect() {
	m.mu.Lock()
	m.cancelTimerLocked()
	m.state.ManualDisconnect = true
	m.gen++
	m.stopPumpLocked()
	client := m.client
	m.client = nil
	now := time.Now()
	if m.state.Phase == PhaseConnected {
		m.state.LastDisconnectedAt = now
	}
	fire := m.setPhaseLocked(PhaseDisconnected)
	m.mu.Unlock()

	if client != nil {
		client.Close()
	}
	fire()
}

func (m *manager) Reconnect(ctx context.Context) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.cancelTimerLocked()
	m.state.ManualDisconnect = false
	m.state.Attempt = 0
	m.gen++
	m.stopPumpLocked()
	client := m.client
	m.client = nil
	if m.state.Phase == PhaseConnected {
		m.state.LastDisconnectedAt = time.Now()
	}
	fire := m.setPhaseLocked(PhaseConnecting)
	m.wg.Add(1)
	m.mu.Unlock()

	if client != nil {
		client.Close()
	}
	fire()

	go m.dialAndRun(ctx)
}

func (m *manager) Send(v any) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return client.Send(data)
}

func (m *manager) Messages() <-chan RawMessage {
	return m.messages
}

func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	if m.state.Err != nil {
		e := *m.state.Err
		s.Err = &e
	}
	return s
}

func (m *manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg time.Duration
	if m.reconnectCount > 0 {
		avg = m.reconnectTotal / time.Duration(m.reconnectCount)
	}

	return Metrics{
		Phase:                m.state.Phase,
		Attempt:              m.state.Attempt,
		HasError:             m.state.Err != nil,
		TotalConnections:     m.totalConns,
		FailedConnections:    m.failedConns,
		AverageReconnectTime: avg,
	}
}

func (m *manager) OnPhaseChange(fn func(old, new Phase)) func() {
	m.mu.Lock()
	id := m.nextHook
	m.nextHook++
	m.hooks[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.hooks, id)
		m.mu.Unlock()
	}
}

func (m *manager) DropTransport() error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return ErrNotConnected
	}
	return client.ForceDisconnect()
}

func (m *manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.cancelTimerLocked()
	m.gen++
	m.stopPumpLocked()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client != nil {
		client.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		m.logger.Warn("timeout waiting for connection goroutines to stop")
	}

	close(m.messages)
}

// setPhaseLocked changes the phase and returns a func that fires the
// registered hooks; callers invoke it after releasing the lock.
func (m *manager) setPhaseLocked(p Phase) func() {
	old := m.state.Phase
	if old == p {
		return func() {}
	}
	m.state.Phase = p

	hooks := make([]func(old, new Phase), 0, len(m.hooks))
	for _, fn := range m.hooks {
		hooks = append(hooks, fn)
	}

	return func() {
		for _, fn := range hooks {
			fn(old, p)
		}
	}
}

func (m *manager) cancelTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *manager) stopPumpLocked() {
	if m.pumpStop != nil {
		close(m.pumpStop)
		m.pumpStop = nil
	}
}

// dialAndRun dials a fresh client and, on success, starts the pump that
// forwards its frames into the shared messages channel.
func (m *manager) dialAndRun(ctx context.Context) {
	defer m.wg.Done()

	client := m.newClient(m.cfg.clientConfig(), m.logger)

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	err := client.Connect(dialCtx)
	cancel()

	m.mu.Lock()
	if m.stopped || m.state.ManualDisconnect {
		m.mu.Unlock()
		client.Close()
		return
	}

	m.totalConns++

	if err != nil {
		m.failedConns++
		m.state.Err = &ConnError{Message: err.Error(), At: time.Now()}
		m.logger.Warn("connect failed", "url", m.cfg.URL, "error", err)
		fire := m.scheduleReconnectLocked(ctx)
		m.mu.Unlock()
		fire()
		return
	}

	m.gen++
	gen := m.gen
	m.stopPumpLocked()
	m.pumpStop = make(chan struct{})
	stop := m.pumpStop
	m.client = client
	now := time.Now()
	m.state.LastConnectedAt = now
	m.state.Err = nil
	wasReconnect := m.state.Attempt > 0
	m.state.Attempt = 0
	if wasReconnect && !m.droppedAt.IsZero() {
		m.reconnectTotal += now.Sub(m.droppedAt)
		m.reconnectCount++
	}
	m.droppedAt = time.Time{}
	fire := m.setPhaseLocked(PhaseConnected)
	m.wg.Add(1)
	m.mu.Unlock()
	fire()

	m.logger.Info("connected", "url", m.cfg.URL, "reconnect", wasReconnect)

	go m.pump(ctx, client, gen, stop)
}

// pump forwards client frames into the shared messages channel and watches
// for transport errors. It exits when the client's channels settle or when
// the manager supersedes its generation.
func (m *manager) pump(ctx context.Context, client Client, gen int, stop <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			select {
			case m.messages <- msg:
			default:
				m.logger.Warn("manager buffer full, dropping message")
			}
		case err, ok := <-client.Errors():
			if !ok {
				return
			}
			m.connectionDropped(ctx, gen, err)
			return
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// connectionDropped handles an unsolicited transport failure.
func (m *manager) connectionDropped(ctx context.Context, gen int, err error) {
	m.mu.Lock()
	if m.stopped || gen != m.gen || m.state.ManualDisconnect {
		m.mu.Unlock()
		return
	}

	m.logger.Warn("connection dropped", "error", err)

	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.gen++
	m.stopPumpLocked()
	now := time.Now()
	m.state.LastDisconnectedAt = now
	m.state.Err = &ConnError{Message: err.Error(), At: now}
	m.droppedAt = now
	fireDisc := m.setPhaseLocked(PhaseDisconnected)
	m.mu.Unlock()
	fireDisc()

	m.mu.Lock()
	if m.stopped || m.state.ManualDisconnect || m.state.Phase != PhaseDisconnected {
		m.mu.Unlock()
		return
	}
	fire := m.scheduleReconnectLocked(ctx)
	m.mu.Unlock()
	fire()
}

// scheduleReconnectLocked arms the backoff timer for the next attempt, or
// settles to failed once attempts are exhausted. Caller holds the lock and
// must invoke the returned hook func after releasing it.
func (m *manager) scheduleReconnectLocked(ctx context.Context) func() {
	if m.state.Attempt >= m.cfg.MaxReconnectAttempts {
		m.logger.Error("reconnect attempts exhausted",
			"attempts", m.state.Attempt,
			"url", m.cfg.URL,
		)
		m.state.Err = &ConnError{
			Message: "reconnect attempts exhausted",
			At:      time.Now(),
		}
		return m.setPhaseLocked(PhaseFailed)
	}

	delay := m.cfg.ReconnectBaseDelay << uint(m.state.Attempt)
	if delay > m.cfg.ReconnectMaxDelay {
		delay = m.cfg.ReconnectMaxDelay
	}
	m.state.Attempt++

	m.logger.Info("reconnect scheduled",
		"attempt", m.state.Attempt,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
	)

	m.cancelTimerLocked()
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.retry(ctx)
	})

	return m.setPhaseLocked(PhaseReconnecting)
}

// retry fires when the backoff timer expires.
func (m *manager) retry(ctx context.Context) {
	m.mu.Lock()
	if m.stopped || m.state.ManualDisconnect || m.state.Phase != PhaseReconnecting {
		m.mu.Unlock()
		return
	}
	select {
	case <-ctx.Done():
		m.mu.Unlock()
		return
	default:
	}
	m.reconnectTimer = nil
	fire := m.setPhaseLocked(PhaseConnecting)
	m.wg.Add(1)
	m.mu.Unlock()
	fire()

	go m.dialAndRun(ctx)
}
