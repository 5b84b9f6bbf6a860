// Package watch binds a live channel to a project snapshot. A Session is
// what the TUI and the tail command hold on to: it follows one project at a
// time and tells its consumer when anything worth redrawing has changed.
package watch

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auditwatch/auditwatch/internal/channel"
	"github.com/auditwatch/auditwatch/internal/envelope"
	"github.com/auditwatch/auditwatch/internal/metrics"
	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/snapshot"
)

// Options configure a Session
type Options struct {
	// Project is the initial subscription target; empty means unscoped.
	Project string
	Channel channel.Options
	Logger  *zap.Logger
	Metrics *metrics.Channel
	// OnEnvelope, when set, sees every decoded envelope after it has been
	// applied. It runs on the channel goroutine.
	OnEnvelope snapshot.Notify
}

// Session follows one project over the live channel
type Session struct {
	logger   *zap.Logger
	mgr      *channel.Manager
	dispatch *snapshot.Dispatcher
	changes  chan struct{}
	auto     bool

	mu      sync.Mutex
	pending *snapshot.Snapshot
	conn    models.ConnectionState
}

// New opens the channel and returns a session around it
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		logger:  logger.Named("watch"),
		changes: make(chan struct{}, 1),
		auto:    opts.Channel.AutoReconnect,
		conn:    models.ConnectionState{Project: opts.Project},
	}

	onEnvelope := opts.OnEnvelope
	s.dispatch = snapshot.NewDispatcher(snapshot.New(opts.Project), logger, opts.Metrics,
		func(e envelope.Envelope, changed bool) {
			if onEnvelope != nil {
				onEnvelope(e, changed)
			}
			if changed {
				s.signal()
			}
		})

	chOpts := opts.Channel
	if chOpts.Logger == nil {
		chOpts.Logger = logger
	}
	if chOpts.Metrics == nil {
		chOpts.Metrics = opts.Metrics
	}
	observe := chOpts.OnError
	chOpts.OnError = func(err error) {
		s.mu.Lock()
		s.conn.LastError = err.Error()
		s.mu.Unlock()
		if observe != nil {
			observe(err)
		}
		s.signal()
	}

	s.mgr = channel.Open(opts.Project, handler{s}, chOpts)
	return s
}

// Watch switches the session to project. The previous snapshot is
// discarded; seed, when given, becomes the starting point for the new one.
func (s *Session) Watch(project string, seed *models.ProjectDetail) {
	next := snapshot.New(project)
	if seed != nil {
		next = snapshot.FromDetail(*seed)
	}

	if project == s.mgr.Target() {
		s.dispatch.Reset(next)
		s.signal()
		return
	}

	s.mu.Lock()
	s.pending = next
	s.mu.Unlock()

	s.mgr.SetTarget(project)
	s.signal()
}

// Seed replaces the current snapshot with a freshly fetched project detail
func (s *Session) Seed(detail models.ProjectDetail) {
	s.dispatch.Reset(snapshot.FromDetail(detail))
	s.signal()
}

// Project returns the project being followed
func (s *Session) Project() string {
	return s.mgr.Target()
}

// Snapshot returns a copy of the current project state
func (s *Session) Snapshot() *snapshot.Snapshot {
	return s.dispatch.Snapshot()
}

// Changes delivers a signal whenever the snapshot or the connection state
// changes. Signals coalesce; read Snapshot after receiving one.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Connected reports the last connectivity seen by the session
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Connected
}

// ConnState returns a copy of the connection bookkeeping
func (s *Session) ConnState() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// SetEnabled turns the live channel on or off
func (s *Session) SetEnabled(enabled bool) {
	s.mgr.SetEnabled(enabled)
}

// Disconnect closes the channel and stops automatic reconnection
func (s *Session) Disconnect() {
	s.mgr.Disconnect()
}

// Reconnect re-arms automatic reconnection and dials again
func (s *Session) Reconnect() {
	s.mgr.SetAutoReconnect(s.auto)
	s.mgr.Connect()
}

// Close shuts the channel down
func (s *Session) Close() {
	s.mgr.Close()
}

func (s *Session) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// handler keeps the channel callbacks off the Session's exported API
type handler struct {
	s *Session
}

func (h handler) HandleFrame(data []byte) {
	h.s.mu.Lock()
	h.s.conn.FramesTotal++
	h.s.mu.Unlock()
	h.s.dispatch.HandleFrame(data)
}

func (h handler) HandleState(state channel.State) {
	s := h.s
	s.mu.Lock()
	s.conn.Connected = state == channel.Connected
	s.conn.LastChange = time.Now()
	switch state {
	case channel.Connected:
		s.conn.LastError = ""
	case channel.ReconnectPending:
		s.conn.Reconnects++
	}
	s.mu.Unlock()
	s.logger.Debug("channel state", zap.Stringer("state", state))
	s.signal()
}

func (h handler) HandleTarget(target string) {
	s := h.s
	s.mu.Lock()
	next := s.pending
	s.pending = nil
	s.conn.Project = target
	s.mu.Unlock()

	if next == nil || (next.Project() != "" && next.Project() != target) {
		next = snapshot.New(target)
	}
	s.dispatch.Reset(next)
}
