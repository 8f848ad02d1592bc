package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nkkko/verse/internal/metrics"
	"github.com/nkkko/verse/pkg/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by Send while the channel is down
var ErrNotConnected = errors.New("realtime channel not connected")

// State is the connection state of the push channel
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config contains realtime channel configuration
type Config struct {
	// API base URL the push-channel URL is derived from
	BaseURL string

	// Interval between liveness pings while connected
	PingInterval time.Duration

	// Fixed delay before each reconnect attempt
	ReconnectDelay time.Duration

	// Reconnect attempts allowed after a failure before giving up; zero
	// means the default
	MaxReconnectAttempts int

	// Give up on the first failure instead of reconnecting
	DisableReconnect bool

	// Timeout for the opening handshake
	HandshakeTimeout time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:              "http://127.0.0.1:8080",
		PingInterval:         30 * time.Second,
		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     10 * time.Second,
	}
}

// Option configures a Manager
type Option func(*Manager)

// WithDialer replaces the WebSocket dialer
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithClock replaces the clock driving the ping and reconnect timers
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// Manager owns the single push-channel connection: it reconnects with a
// bounded retry budget, pings while connected and fans inbound frames out to
// topic callbacks.
type Manager struct {
	config   Config
	dialer   Dialer
	clock    clock.Clock
	registry *Registry
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	mu             sync.Mutex
	state          State
	conn           Conn
	token          string
	generation     uint64
	attempts       int
	pingTicker     *clock.Ticker
	pingStop       chan struct{}
	reconnectTimer *clock.Timer

	// serializes frame writes; gorilla connections allow one writer
	writeMu sync.Mutex

	// bumped under mu on every state change
	stateSeq uint64

	observersMu  sync.Mutex
	observers    map[uint64]func(State)
	nextObserver uint64

	// notifyMu guards the pending queue; one goroutine drains it at a time
	notifyMu    sync.Mutex
	notifyQueue []stateNote
	notifying   bool
	notified    uint64
}

// stateNote is a state change waiting to be delivered to observers
type stateNote struct {
	state State
	seq   uint64
}

// NewManager creates a disconnected manager
func NewManager(config Config, opts ...Option) *Manager {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = defaults.ReconnectDelay
	}
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = defaults.MaxReconnectAttempts
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaults.HandshakeTimeout
	}

	m := &Manager{
		config:    config,
		clock:     clock.New(),
		registry:  NewRegistry(),
		logger:    log.With().Str("component", "realtime").Logger(),
		metrics:   metrics.GetMetrics(),
		observers: make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = NewWebsocketDialer(config.HandshakeTimeout, nil)
	}
	return m
}

// Connect opens the channel with token. It returns immediately; the dial
// happens in the background. A no-op while connecting or connected.
func (m *Manager) Connect(token string) {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		m.logger.Debug().Str("state", m.State().String()).Msg("Connect ignored, channel already active")
		return
	}
	m.token = token
	m.stopReconnectLocked()
	gen := m.beginDialLocked()
	note := m.noteLocked()
	m.mu.Unlock()

	m.notifyState(note)
	go m.dial(gen, token)
}

// Disconnect stops the ping loop and any pending reconnect, closes the
// connection and leaves the manager Disconnected. The retry counter is
// left as is.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.generation++
	m.stopPingLocked()
	m.stopReconnectLocked()
	conn := m.conn
	m.conn = nil
	changed := m.setStateLocked(StateDisconnected)
	note := m.noteLocked()
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug().Err(err).Msg("Error closing connection")
		}
		m.logger.Info().Msg("Realtime channel disconnected")
	}
	if changed {
		m.notifyState(note)
	}
}

// On registers cb for topic
func (m *Manager) On(topic proto.Topic, cb Callback) Handle {
	return m.registry.On(topic, cb)
}

// Off removes a callback registered with On. Unknown pairs are ignored.
func (m *Manager) Off(topic proto.Topic, h Handle) {
	m.registry.Off(topic, h)
}

// IsConnected reports whether the channel is open
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// State returns the current connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the reconnect attempts used since the last successful open
func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// OnStateChange registers fn to observe connection state transitions.
// The returned func unregisters it.
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.observersMu.Lock()
	m.nextObserver++
	id := m.nextObserver
	m.observers[id] = fn
	m.observersMu.Unlock()

	return func() {
		m.observersMu.Lock()
		delete(m.observers, id)
		m.observersMu.Unlock()
	}
}

// Send writes an envelope to the server
func (m *Manager) Send(topic proto.Topic, payload interface{}) error {
	env := proto.Envelope{Type: topic}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Payload = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return m.write(conn, frame)
}

// beginDialLocked fences older connections and moves to Connecting
func (m *Manager) beginDialLocked() uint64 {
	m.generation++
	m.setStateLocked(StateConnecting)
	return m.generation
}

func (m *Manager) dial(gen uint64, token string) {
	url, err := BuildURL(m.config.BaseURL, token)
	var conn Conn
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.HandshakeTimeout)
		conn, err = m.dialer.Dial(ctx, url)
		cancel()
	}

	m.mu.Lock()
	if gen != m.generation {
		// Disconnect ran while dialing
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		m.metrics.RealtimeConnectsTotal.WithLabelValues("failure").Inc()
		m.logger.Warn().Err(err).Str("url", redact(url)).Msg("Failed to connect realtime channel")
		m.setStateLocked(StateDisconnected)
		note := m.noteLocked()
		exhausted, attempts := m.scheduleReconnectLocked()
		m.mu.Unlock()

		m.notifyState(note)
		if exhausted {
			m.exhausted(attempts)
		}
		return
	}

	m.conn = conn
	m.attempts = 0
	m.setStateLocked(StateConnected)
	m.startPingLocked(conn)
	note := m.noteLocked()
	m.mu.Unlock()

	m.metrics.RealtimeConnectsTotal.WithLabelValues("success").Inc()
	m.logger.Info().Str("url", redact(url)).Msg("Realtime channel connected")
	m.notifyState(note)

	go m.readLoop(gen, conn)
}

// reconnect is fired by the reconnect timer
func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	token := m.token
	attempt := m.attempts
	next := m.beginDialLocked()
	note := m.noteLocked()
	m.mu.Unlock()

	m.logger.Info().
		Int("attempt", attempt).
		Int("max_attempts", m.config.MaxReconnectAttempts).
		Msg("Attempting to reconnect")
	m.notifyState(note)
	m.dial(next, token)
}

func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, conn, err)
			return
		}
		m.dispatch(data)
	}
}

func (m *Manager) handleClose(gen uint64, conn Conn, cause error) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.stopPingLocked()
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	note := m.noteLocked()
	exhausted, attempts := m.scheduleReconnectLocked()
	m.mu.Unlock()

	conn.Close()
	m.logger.Warn().Err(cause).Msg("Realtime channel closed")
	m.notifyState(note)
	if exhausted {
		m.exhausted(attempts)
	}
}

// scheduleReconnectLocked arms the reconnect timer, or reports that the
// retry budget is spent
func (m *Manager) scheduleReconnectLocked() (bool, int) {
	if m.config.DisableReconnect || m.attempts >= m.config.MaxReconnectAttempts {
		return true, m.attempts
	}
	m.attempts++
	gen := m.generation
	m.stopReconnectLocked()
	m.reconnectTimer = m.clock.AfterFunc(m.config.ReconnectDelay, func() {
		m.reconnect(gen)
	})
	m.metrics.RealtimeReconnectsTotal.Inc()
	return false, m.attempts
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) reconnectPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectTimer != nil
}

func (m *Manager) exhausted(attempts int) {
	m.metrics.RealtimeExhaustedTotal.Inc()
	m.logger.Warn().
		Int("attempts", attempts).
		Msg("Max reconnect attempts reached, realtime channel stays down")

	payload, _ := json.Marshal(struct {
		Attempts int `json:"attempts"`
	}{Attempts: attempts})
	m.registry.Dispatch(proto.TopicConnectionExhausted, payload)
}

var pingFrame = []byte(`{"type":"ping"}`)

func (m *Manager) startPingLocked(conn Conn) {
	m.stopPingLocked()

	ticker := m.clock.Ticker(m.config.PingInterval)
	stop := make(chan struct{})
	m.pingTicker = ticker
	m.pingStop = stop

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.ping(conn)
			}
		}
	}()
}

func (m *Manager) stopPingLocked() {
	if m.pingTicker != nil {
		m.pingTicker.Stop()
		close(m.pingStop)
		m.pingTicker = nil
		m.pingStop = nil
	}
}

// ping sends a liveness frame if conn is still the open connection
func (m *Manager) ping(conn Conn) {
	m.mu.Lock()
	current := m.conn == conn && m.state == StateConnected
	m.mu.Unlock()
	if !current {
		return
	}

	if err := m.write(conn, pingFrame); err != nil {
		m.logger.Debug().Err(err).Msg("Failed to send ping")
		return
	}
	m.metrics.RealtimePingsTotal.Inc()
}

func (m *Manager) write(conn Conn, frame []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(frame)
}

// dispatch decodes one inbound frame and delivers it. Malformed frames are dropped.
func (m *Manager) dispatch(data []byte) {
	var env proto.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.metrics.RealtimeFramesTotal.WithLabelValues("malformed").Inc()
		m.logger.Debug().Err(err).Int("bytes", len(data)).Msg("Dropping malformed frame")
		return
	}

	if n := m.registry.Dispatch(env.Type, env.Payload); n == 0 {
		m.metrics.RealtimeFramesTotal.WithLabelValues("unhandled").Inc()
		m.logger.Debug().Str("type", string(env.Type)).Msg("No listeners for frame")
		return
	}
	m.metrics.RealtimeFramesTotal.WithLabelValues("delivered").Inc()
}

// setStateLocked records s and reports whether it changed
func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	m.stateSeq++
	if s == StateConnected {
		m.metrics.RealtimeConnected.Set(1)
	} else {
		m.metrics.RealtimeConnected.Set(0)
	}
	return true
}

func (m *Manager) noteLocked() stateNote {
	return stateNote{state: m.state, seq: m.stateSeq}
}

// notifyState queues note for observers. Notes are delivered one at a time
// in the order the changes happened; a note older than one already
// delivered is dropped. Observers may call back into the manager.
func (m *Manager) notifyState(note stateNote) {
	m.notifyMu.Lock()
	m.notifyQueue = append(m.notifyQueue, note)
	if m.notifying {
		m.notifyMu.Unlock()
		return
	}
	m.notifying = true
	for len(m.notifyQueue) > 0 {
		next := m.notifyQueue[0]
		m.notifyQueue = m.notifyQueue[1:]
		if next.seq <= m.notified {
			continue
		}
		m.notified = next.seq
		m.notifyMu.Unlock()
		m.deliverState(next.state)
		m.notifyMu.Lock()
	}
	m.notifying = false
	m.notifyMu.Unlock()
}

func (m *Manager) deliverState(s State) {
	m.observersMu.Lock()
	fns := make([]func(State), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.observersMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
