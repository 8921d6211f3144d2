package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"chatsync/internal/events"
	"chatsync/internal/loop"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	dialTimeout    = 15 * time.Second
)

var (
	reconnectKey = loop.Key{Purpose: loop.PurposeReconnect}
	snapshotKey  = loop.Key{Purpose: loop.PurposePresenceSnapshot}
)

// Handlers receive connection events on the event loop.
type Handlers struct {
	OnOpen         func()
	OnFrame        func(data []byte)
	OnClose        func(code int, reconnecting bool)
	OnUnauthorized func()
}

type Options struct {
	ReconnectDelay time.Duration
	SnapshotDelay  time.Duration
	SendBuffer     int
	PingPeriod     time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 3000 * time.Millisecond
	}
	if o.SnapshotDelay <= 0 {
		o.SnapshotDelay = 500 * time.Millisecond
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = pingPeriod
	}
	return o
}

// connection is one dialed socket and its pumps.
type connection struct {
	gen      uint64
	sock     Socket
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func (c *connection) shutdown(code int) {
	c.stopOnce.Do(func() {
		if code != 0 {
			msg := websocket.FormatCloseMessage(code, "")
			_ = c.sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		close(c.done)
		_ = c.sock.Close()
	})
}

// Manager owns the single websocket. All methods must run on the event loop.
type Manager struct {
	exec     loop.Executor
	sched    loop.Scheduler
	dialer   Dialer
	opts     Options
	handlers Handlers
	log      *logger.Component

	state State
	token string
	gen   uint64
	conn  *connection
}

func NewManager(exec loop.Executor, sched loop.Scheduler, dialer Dialer, opts Options, log *logger.Logger) *Manager {
	return &Manager{
		exec:   exec,
		sched:  sched,
		dialer: dialer,
		opts:   opts.withDefaults(),
		log:    log.Component("transport"),
	}
}

// Handle installs the event callbacks. Call before Connect.
func (m *Manager) Handle(h Handlers) {
	m.handlers = h
}

func (m *Manager) State() State {
	return m.state
}

// Connect replaces any current socket with a fresh one authenticated by token.
func (m *Manager) Connect(token string) {
	m.token = token
	m.sched.Cancel(reconnectKey)
	m.sched.Cancel(snapshotKey)
	if m.conn != nil {
		m.state = StateClosing
		m.conn.shutdown(websocket.CloseNormalClosure)
		m.conn = nil
	}
	m.dial()
}

// Close is the deliberate close path: normal closure, no reconnect.
func (m *Manager) Close() {
	m.sched.Cancel(reconnectKey)
	m.sched.Cancel(snapshotKey)
	// invalidate pumps and any in-flight dial
	m.gen++
	if m.conn != nil {
		m.state = StateClosing
		m.conn.shutdown(websocket.CloseNormalClosure)
		m.conn = nil
		m.log.Info("connection_closed", zap.Int("code", websocket.CloseNormalClosure))
	}
	m.state = StateDisconnected
}

// Send queues an envelope for the write pump. It reports false when the
// socket is not connected or the outbound buffer is full.
func (m *Manager) Send(env events.Envelope) bool {
	if m.state != StateConnected || m.conn == nil {
		m.log.Debug("send_dropped_not_connected", zap.String("type", env.Type))
		return false
	}
	data, err := env.Encode()
	if err != nil {
		m.log.Error("encode_envelope_failed", err, zap.String("type", env.Type))
		return false
	}
	select {
	case m.conn.send <- data:
		return true
	default:
		m.log.Warn("send_buffer_full", zap.String("type", env.Type))
		return false
	}
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen
	token := m.token
	m.state = StateConnecting
	m.log.Info("connecting", zap.Uint64("generation", gen))

	m.exec.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		sock, err := m.dialer.Dial(ctx, token)
		m.exec.Post(func() {
			m.handleDial(gen, sock, err)
		})
	})
}

func (m *Manager) handleDial(gen uint64, sock Socket, err error) {
	if gen != m.gen {
		if sock != nil {
			_ = sock.Close()
		}
		return
	}
	if err != nil {
		if errors.Is(err, chatsync_errors.ErrUnauthorized) {
			m.state = StateDisconnected
			m.log.Warn("handshake_unauthorized")
			if m.handlers.OnUnauthorized != nil {
				m.handlers.OnUnauthorized()
			}
			return
		}
		m.log.Error("dial_failed", err)
		m.disconnected(websocket.CloseAbnormalClosure)
		return
	}

	c := &connection{
		gen:  gen,
		sock: sock,
		send: make(chan []byte, m.opts.SendBuffer),
		done: make(chan struct{}),
	}
	m.conn = c
	m.state = StateConnected
	m.log.Info("connected", zap.Uint64("generation", gen))

	go m.readPump(c)
	go m.writePump(c)

	m.sched.Schedule(snapshotKey, m.opts.SnapshotDelay, func() {
		if m.state == StateConnected {
			m.Send(events.GetOnlineUsers())
		}
	})
	if m.handlers.OnOpen != nil {
		m.handlers.OnOpen()
	}
}

func (m *Manager) handleFrame(c *connection, data []byte) {
	if c.gen != m.gen || m.state != StateConnected {
		return
	}
	if m.handlers.OnFrame != nil {
		m.handlers.OnFrame(data)
	}
}

func (m *Manager) handleClosed(c *connection, code int) {
	if c.gen != m.gen {
		return
	}
	c.shutdown(0)
	m.conn = nil
	m.disconnected(code)
}

// disconnected applies the reconnect policy for a close we did not ask for.
func (m *Manager) disconnected(code int) {
	m.state = StateDisconnected
	m.sched.Cancel(snapshotKey)

	reconnecting := code != websocket.CloseNormalClosure && code != websocket.CloseGoingAway
	if reconnecting {
		m.sched.Schedule(reconnectKey, m.opts.ReconnectDelay, func() {
			if m.state == StateDisconnected {
				m.dial()
			}
		})
	}
	m.log.Info("disconnected", zap.Int("code", code), zap.Bool("reconnecting", reconnecting))
	if m.handlers.OnClose != nil {
		m.handlers.OnClose(code, reconnecting)
	}
}
