// ABOUTME: Manager runs the websocket lifecycle and connection state machine.
// ABOUTME: Transport failures become observable state, never send-path errors.

package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ogleapp/chat/internal/stomp"
)

// State is the connection state. Exactly one Manager exists per session.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNotConnected is returned by Send when the state machine is not in
// CONNECTED. The caller decides whether to retry or inform the user; nothing
// is queued here.
var ErrNotConnected = errors.New("not connected")

// Buffer sizes for the outward channels. Frame delivery is non-blocking;
// a consumer that stalls for 64 frames starts losing them (logged).
const (
	frameBufferSize = 64
	stateBufferSize = 16
)

// Config holds connection parameters.
type Config struct {
	// URL is the websocket endpoint, e.g. "wss://api.example.com/ws".
	URL string

	// InboundQueue is the user's private inbound destination, subscribed
	// automatically once the server acknowledges the connection.
	InboundQueue string

	// AcceptVersion and HeartBeat are the CONNECT negotiation values.
	// Empty values use the protocol defaults.
	AcceptVersion string
	HeartBeat     string

	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration

	// Reconnect enables delayed reconnection after a transport failure.
	// Off by default; an explicit Disconnect never reconnects.
	Reconnect      bool
	ReconnectDelay time.Duration
}

// Manager owns the socket. Connect and Disconnect drive the state machine
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> DISCONNECTED | ERROR
//
// and every transition is published on the state channel. The inbound frame
// stream is continuous for the life of the Manager; frames from a replaced
// connection generation are discarded.
type Manager struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
	token string
	gen   int // connection generation; bumped by Connect and Disconnect

	wmu sync.Mutex // serializes writes to the socket

	frames chan *stomp.Frame
	states chan State
}

// NewManager creates a manager. Pass nil logger for default.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	return &Manager{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		logger: logger.With("component", "wsconn"),
		state:  StateDisconnected,
		frames: make(chan *stomp.Frame, frameBufferSize),
		states: make(chan State, stateBufferSize),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// States is the observable channel of state transitions.
func (m *Manager) States() <-chan State {
	return m.states
}

// Frames is the inbound stream of decoded frames.
func (m *Manager) Frames() <-chan *stomp.Frame {
	return m.frames
}

// Connect opens the transport and authenticates. The credential is carried
// both on the upgrade request and in the CONNECT frame. Calling Connect
// while CONNECTING or CONNECTED is a no-op. The dial happens in the
// background; failures surface as a transition to ERROR on the state
// channel, not as an error here.
func (m *Manager) Connect(ctx context.Context, token string) {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.logger.Debug("connect ignored, already active", "state", m.state.String())
		m.mu.Unlock()
		return
	}
	m.token = token
	m.gen++
	gen := m.gen
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go m.dial(ctx, token, gen)
}

// Disconnect sends a DISCONNECT frame best-effort, closes the transport and
// transitions to DISCONNECTED regardless of whether the frame send
// succeeded.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++ // invalidates any in-flight dial or scheduled reconnect
	conn := m.conn
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn == nil {
		return
	}

	m.wmu.Lock()
	_ = conn.WriteMessage(websocket.TextMessage, stomp.EncodeDisconnect())
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "user disconnect"))
	m.wmu.Unlock()
	_ = conn.Close()

	m.logger.Info("disconnected")
}

// Send serializes payload as JSON and writes a SEND frame. It does not wait
// for delivery confirmation; the echo, if any, arrives later on the inbound
// stream. Returns ErrNotConnected unless the state machine is CONNECTED.
func (m *Manager) Send(destination string, payload any) error {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	conn := m.conn
	m.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	m.wmu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, stomp.EncodeSend(destination, body))
	m.wmu.Unlock()
	if err != nil {
		// Transport faults are absorbed into observable state: the read
		// loop sees the broken socket and transitions to ERROR.
		m.logger.Error("write failed", "destination", destination, "error", err)
	}
	return nil
}

// dial performs the handshake and runs the read loop for one generation.
func (m *Manager) dial(ctx context.Context, token string, gen int) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := m.dialer.DialContext(ctx, m.cfg.URL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
		m.logger.Error("websocket dial failed",
			"url", m.cfg.URL,
			"status", status,
			"error", err)
		m.fail(ctx, gen, nil)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		// Superseded by a Disconnect or a newer Connect while dialing.
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.mu.Unlock()

	m.logger.Debug("websocket open, authenticating", "url", m.cfg.URL)

	m.wmu.Lock()
	err = conn.WriteMessage(websocket.TextMessage,
		stomp.EncodeConnect(token, m.cfg.AcceptVersion, m.cfg.HeartBeat))
	m.wmu.Unlock()
	if err != nil {
		m.logger.Error("connect frame failed", "error", err)
		m.fail(ctx, gen, conn)
		return
	}

	m.readLoop(ctx, conn, gen)
}

// readLoop decodes inbound frames until the socket dies or the generation
// is replaced. The stream is not restartable within a generation.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			superseded := gen != m.gen
			m.mu.Unlock()
			if superseded {
				return // explicit disconnect already handled the state
			}
			m.logger.Error("websocket closed", "error", err)
			m.fail(ctx, gen, conn)
			return
		}

		f, err := stomp.Decode(data)
		if err != nil {
			continue // bare newline heart-beat
		}

		if f.Command == stomp.CommandConnected {
			if err := m.subscribe(conn); err != nil {
				m.logger.Error("subscribe failed", "error", err)
				m.fail(ctx, gen, conn)
				return
			}
			m.setStateIfCurrent(gen, StateConnected)
			m.logger.Info("connected", "queue", m.cfg.InboundQueue)
		}

		m.deliver(f)
	}
}

// subscribe issues the SUBSCRIBE frame for the private inbound queue.
// Outbound sends are only meaningful once this has been written, so the
// CONNECTED state is entered after it.
func (m *Manager) subscribe(conn *websocket.Conn) error {
	id := "sub-" + uuid.New().String()
	m.wmu.Lock()
	defer m.wmu.Unlock()
	return conn.WriteMessage(websocket.TextMessage,
		stomp.EncodeSubscribe(id, m.cfg.InboundQueue))
}

// deliver pushes a frame to the consumer without blocking the read loop.
func (m *Manager) deliver(f *stomp.Frame) {
	select {
	case m.frames <- f:
	default:
		m.logger.Warn("frame buffer full, dropping frame", "command", string(f.Command))
	}
}

// fail tears down the current generation into ERROR and, when enabled,
// schedules a delayed reconnect with the last credential.
func (m *Manager) fail(ctx context.Context, gen int, conn *websocket.Conn) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.setStateLocked(StateError)
	token := m.token
	m.mu.Unlock()

	if !m.cfg.Reconnect || ctx.Err() != nil {
		return
	}

	m.logger.Info("reconnecting after delay", "delay", m.cfg.ReconnectDelay.String())
	go func() {
		t := time.NewTimer(m.cfg.ReconnectDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		m.mu.Lock()
		stale := m.gen != gen || m.state != StateError
		m.mu.Unlock()
		if stale {
			return // a Disconnect or manual Connect happened meanwhile
		}
		m.Connect(ctx, token)
	}()
}

// setStateIfCurrent transitions only if gen is still the live generation.
func (m *Manager) setStateIfCurrent(gen int, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.setStateLocked(s)
}

// setStateLocked records the state and publishes it. Must be called with mu
// held. Publication never blocks; a slow observer misses intermediate
// transitions, not the latest state (it can poll State()).
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	select {
	case m.states <- s:
	default:
		m.logger.Debug("state buffer full, dropping transition", "state", s.String())
	}
}
