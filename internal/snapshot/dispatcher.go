package snapshot

import (
	"sync"

	"go.uber.org/zap"

	"github.com/auditwatch/auditwatch/internal/envelope"
	"github.com/auditwatch/auditwatch/internal/metrics"
)

// Notify is called after every decoded envelope with whether it changed the
// snapshot. It runs on the goroutine that delivered the frame.
type Notify func(e envelope.Envelope, changed bool)

// Dispatcher owns a Snapshot and applies raw frames to it. Frames are
// expected from a single goroutine; readers on other goroutines get copies.
type Dispatcher struct {
	mu      sync.RWMutex
	snap    *Snapshot
	logger  *zap.Logger
	metrics *metrics.Channel
	notify  Notify
}

// NewDispatcher creates a dispatcher around snap. logger, m and notify may be nil.
func NewDispatcher(snap *Snapshot, logger *zap.Logger, m *metrics.Channel, notify Notify) *Dispatcher {
	if snap == nil {
		snap = New("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		snap:    snap,
		logger:  logger.Named("dispatch"),
		metrics: m,
		notify:  notify,
	}
}

// HandleFrame parses raw and applies it. Malformed frames and unknown tags
// are logged and dropped; neither is an error for the caller.
func (d *Dispatcher) HandleFrame(raw []byte) {
	e, err := envelope.Parse(raw)
	if err != nil {
		d.metrics.FrameMalformed()
		d.logger.Warn("dropping malformed frame", zap.Error(err), zap.ByteString("raw", truncate(raw, 256)))
		return
	}
	if u, ok := e.(envelope.Unknown); ok {
		d.metrics.FrameUnknown(string(u.Type))
		d.logger.Info("ignoring unknown envelope", zap.String("tag", string(u.Type)))
		return
	}
	d.Apply(e)
}

// Apply folds a decoded envelope into the snapshot
func (d *Dispatcher) Apply(e envelope.Envelope) bool {
	d.mu.Lock()
	changed := d.snap.Apply(e)
	d.mu.Unlock()

	d.metrics.FrameApplied(string(e.Tag()), changed)
	d.logger.Debug("applied envelope", zap.String("tag", string(e.Tag())), zap.Bool("changed", changed))

	if d.notify != nil {
		d.notify(e, changed)
	}
	return changed
}

// Snapshot returns a copy of the current snapshot
func (d *Dispatcher) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap.Clone()
}

// Reset replaces the owned snapshot wholesale
func (d *Dispatcher) Reset(snap *Snapshot) {
	if snap == nil {
		snap = New("")
	}
	d.mu.Lock()
	d.snap = snap
	d.mu.Unlock()
}

func truncate(raw []byte, n int) []byte {
	if len(raw) <= n {
		return raw
	}
	return raw[:n]
}
