// Package channel maintains the live websocket subscription to the audit
// backend. A Manager keeps at most one connection open for its current
// target and reconnects after unexpected closure.
package channel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auditwatch/auditwatch/internal/metrics"
)

// DefaultReconnectDelay is the pause between an unexpected closure and the
// next connection attempt
const DefaultReconnectDelay = 5 * time.Second

// Handler receives frames and state changes. Both methods run on the
// manager's goroutine, one call at a time, and must not call back into the
// Manager.
type Handler interface {
	HandleFrame(data []byte)
	HandleState(s State)
}

// TargetHandler is implemented by handlers that want to know when the
// target changes. HandleTarget runs after the old connection is released
// and before the new one is dialled, so no frame from either target can
// interleave with it.
type TargetHandler interface {
	HandleTarget(target string)
}

// HandlerFuncs adapts optional functions to the Handler interface
type HandlerFuncs struct {
	Frame func(data []byte)
	State func(s State)
}

func (h HandlerFuncs) HandleFrame(data []byte) {
	if h.Frame != nil {
		h.Frame(data)
	}
}

func (h HandlerFuncs) HandleState(s State) {
	if h.State != nil {
		h.State(s)
	}
}

// ErrorObserver is told about transport and configuration errors. Errors
// never stop the manager; this is for display only.
type ErrorObserver func(err error)

// Options configure a Manager
type Options struct {
	BaseURL        string
	Path           string
	Enabled        bool
	AutoReconnect  bool
	ReconnectDelay time.Duration
	Dialer         Dialer
	Logger         *zap.Logger
	Metrics        *metrics.Channel
	OnError        ErrorObserver
}

type eventKind int

const (
	evDialed eventKind = iota
	evFrame
	evClosed
)

type event struct {
	kind eventKind
	gen  uint64
	conn Conn
	data []byte
	err  error
}

// Manager owns one live connection. All state lives on a single goroutine;
// the exported methods hand work to it and wait for it to be applied.
type Manager struct {
	cmds   chan func()
	events chan event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	opts    Options
	handler Handler
	logger  *zap.Logger

	// Owned by the loop goroutine
	target    string
	enabled   bool
	autoRecon bool
	reconnect bool
	state     State
	gen       uint64
	conn      Conn
	cancel    context.CancelFunc
	timer     *time.Timer
	timerC    <-chan time.Time
}

// Open starts a manager for target. Nothing is dialled unless opts.Enabled
// is set; a disabled manager stays inert until SetEnabled(true).
func Open(target string, handler Handler, opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}

	m := &Manager{
		cmds:      make(chan func()),
		events:    make(chan event, 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		opts:      opts,
		handler:   handler,
		logger:    opts.Logger.Named("channel"),
		target:    target,
		enabled:   opts.Enabled,
		autoRecon: opts.AutoReconnect,
		reconnect: opts.AutoReconnect,
	}
	m.opts.Metrics.SetState(Disconnected.String(), stateNames())

	go m.run()
	return m
}

// Connected reports whether a connection is currently established
func (m *Manager) Connected() bool {
	var c bool
	m.do(func() { c = m.state == Connected })
	return c
}

// State returns the current state
func (m *Manager) State() State {
	var s State
	m.do(func() { s = m.state })
	return s
}

// Target returns the current subscription target
func (m *Manager) Target() string {
	var t string
	m.do(func() { t = m.target })
	return t
}

// Connect drops any current connection and dials again. It has no effect
// while the manager is disabled. Reconnection stays off after Disconnect
// until SetAutoReconnect or SetEnabled turns it back on.
func (m *Manager) Connect() {
	m.do(func() {
		if !m.enabled {
			m.logger.Debug("connect ignored while disabled")
			return
		}
		m.drop()
		m.dial()
	})
}

// Disconnect closes the connection, cancels any pending reconnect and turns
// automatic reconnection off.
func (m *Manager) Disconnect() {
	m.do(func() {
		m.reconnect = false
		m.drop()
		m.setState(Disconnected)
		m.logger.Info("channel disconnected", zap.String("target", m.target))
	})
}

// SetTarget changes the subscription target. A live or in-flight
// connection is closed at once and replaced by one for the new target; a
// pending reconnect simply picks the new target up when it fires.
func (m *Manager) SetTarget(target string) {
	m.do(func() {
		if target == m.target {
			return
		}
		m.logger.Info("channel target changed", zap.String("from", m.target), zap.String("to", target))
		m.target = target
		active := m.state == Connected || m.state == Connecting
		if active {
			m.drop()
		}
		if th, ok := m.handler.(TargetHandler); ok {
			th.HandleTarget(target)
		}
		if active {
			m.dial()
		}
	})
}

// SetEnabled turns the manager on or off. Disabling tears the connection
// down; enabling starts a fresh attempt and restores automatic
// reconnection to its configured value.
func (m *Manager) SetEnabled(enabled bool) {
	m.do(func() {
		if enabled == m.enabled {
			return
		}
		m.enabled = enabled
		if !enabled {
			m.drop()
			m.setState(Disconnected)
			return
		}
		m.reconnect = m.autoRecon
		m.dial()
	})
}

// SetAutoReconnect changes whether unexpected closure schedules a reconnect
func (m *Manager) SetAutoReconnect(auto bool) {
	m.do(func() {
		m.autoRecon = auto
		m.reconnect = auto
		if !auto && m.state == ReconnectPending {
			m.stopTimer()
			m.setState(Disconnected)
		}
	})
}

// Close stops the manager and releases its connection. It is safe to call
// more than once.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.quit) })
	<-m.done
}

// do runs fn on the loop goroutine and waits for it. After Close it
// returns without running fn.
func (m *Manager) do(fn func()) {
	ran := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(ran) }:
	case <-m.done:
		return
	}
	select {
	case <-ran:
	case <-m.done:
	}
}

func (m *Manager) run() {
	defer close(m.done)

	if m.enabled {
		m.dial()
	}

	for {
		select {
		case <-m.quit:
			m.drop()
			m.setState(Disconnected)
			return
		case fn := <-m.cmds:
			fn()
		case ev := <-m.events:
			m.handleEvent(ev)
		case <-m.timerC:
			m.timer, m.timerC = nil, nil
			if m.state == ReconnectPending {
				m.logger.Info("reconnecting", zap.String("target", m.target))
				m.dial()
			}
		}
	}
}

// dial starts a connection attempt under a new generation
func (m *Manager) dial() {
	m.stopTimer()

	url, err := URL(m.opts.BaseURL, m.opts.Path, m.target)
	if err != nil {
		m.logger.Error("cannot open channel", zap.Error(err))
		m.observe(err)
		m.setState(Disconnected)
		return
	}

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.setState(Connecting)
	m.logger.Debug("dialing", zap.String("url", url), zap.Uint64("gen", gen))

	dialer := m.opts.Dialer
	go func() {
		conn, err := dialer.Dial(ctx, url)
		m.send(event{kind: evDialed, gen: gen, conn: conn, err: err})
	}()
}

// drop invalidates the current generation and releases everything tied to
// it. Late events from the dropped connection are ignored by generation.
func (m *Manager) drop() {
	m.stopTimer()
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// lost handles the end of the current connection or attempt
func (m *Manager) lost() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.conn = nil
	if !m.enabled || !m.reconnect {
		m.setState(Disconnected)
		return
	}
	m.setState(ReconnectPending)
	m.timer = time.NewTimer(m.opts.ReconnectDelay)
	m.timerC = m.timer.C
	m.opts.Metrics.ReconnectScheduled()
	m.logger.Info("reconnect scheduled", zap.Duration("delay", m.opts.ReconnectDelay))
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer, m.timerC = nil, nil
}

func (m *Manager) handleEvent(ev event) {
	if ev.gen != m.gen {
		if ev.conn != nil {
			m.opts.Metrics.Dial("superseded")
			ev.conn.Close()
		}
		return
	}

	switch ev.kind {
	case evDialed:
		if m.state != Connecting {
			if ev.conn != nil {
				ev.conn.Close()
			}
			return
		}
		if ev.err != nil {
			m.opts.Metrics.Dial("error")
			m.logger.Warn("channel dial failed", zap.String("target", m.target), zap.Error(ev.err))
			m.observe(ev.err)
			m.lost()
			return
		}
		m.opts.Metrics.Dial("ok")
		m.conn = ev.conn
		m.cancel()
		m.cancel = nil
		m.setState(Connected)
		m.logger.Info("channel connected", zap.String("target", m.target))
		go m.read(ev.gen, ev.conn)

	case evFrame:
		if m.state == Connected {
			m.handler.HandleFrame(ev.data)
		}

	case evClosed:
		if m.state != Connected {
			return
		}
		m.logger.Info("channel closed", zap.String("target", m.target), zap.Error(ev.err))
		if ev.err != nil {
			m.observe(ev.err)
		}
		m.conn.Close()
		m.lost()
	}
}

// read pumps frames from conn until it fails
func (m *Manager) read(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.send(event{kind: evClosed, gen: gen, err: err})
			return
		}
		if !m.send(event{kind: evFrame, gen: gen, data: data}) {
			return
		}
	}
}

// send delivers an event to the loop, or discards it once the loop has
// exited. A connection carried by a discarded event is closed.
func (m *Manager) send(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		if ev.conn != nil {
			ev.conn.Close()
		}
		return false
	}
}

func (m *Manager) setState(s State) {
	if s == m.state {
		return
	}
	m.state = s
	m.opts.Metrics.SetState(s.String(), stateNames())
	m.opts.Metrics.SetConnected(s == Connected)
	m.handler.HandleState(s)
}

func (m *Manager) observe(err error) {
	if m.opts.OnError != nil {
		m.opts.OnError(err)
	}
}
