package channel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditwatch/auditwatch/internal/metrics"
)

const (
	testDelay   = 80 * time.Millisecond
	waitFor     = 2 * time.Second
	pollEvery   = 5 * time.Millisecond
	quietPeriod = 3 * testDelay
)

type fakeConn struct {
	url     string
	frames  chan []byte
	closed  chan struct{}
	dropped chan struct{}

	closeOnce sync.Once
	dropOnce  sync.Once
	onClose   func()
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, errors.New("use of closed network connection")
	case <-c.dropped:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	case f := <-c.frames:
		return websocket.TextMessage, f, nil
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.onClose()
	})
	return nil
}

// drop simulates the server going away
func (c *fakeConn) drop() {
	c.dropOnce.Do(func() { close(c.dropped) })
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	urls  []string

	// fail returns the error for the nth dial (1-based), or nil
	fail func(n int) error
	// hold blocks the first dial until closed, ignoring cancellation
	hold chan struct{}

	open    atomic.Int32
	maxOpen atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	n := len(d.urls)
	d.mu.Unlock()

	if n == 1 && d.hold != nil {
		<-d.hold
	}
	if d.fail != nil {
		if err := d.fail(n); err != nil {
			return nil, err
		}
	}

	c := &fakeConn{
		url:     url,
		frames:  make(chan []byte, 16),
		closed:  make(chan struct{}),
		dropped: make(chan struct{}),
		onClose: func() { d.open.Add(-1) },
	}
	if open := d.open.Add(1); open > d.maxOpen.Load() {
		d.maxOpen.Store(open)
	}

	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) url(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[i]
}

type recorder struct {
	mu     sync.Mutex
	frames []string
	states []State
}

func (r *recorder) HandleFrame(data []byte) {
	r.mu.Lock()
	r.frames = append(r.frames, string(data))
	r.mu.Unlock()
}

func (r *recorder) HandleState(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func testOptions(d Dialer) Options {
	return Options{
		BaseURL:        "ws://audit.test",
		Enabled:        true,
		AutoReconnect:  true,
		ReconnectDelay: testDelay,
		Dialer:         d,
	}
}

func openTest(t *testing.T, target string, opts Options) (*Manager, *recorder) {
	t.Helper()
	rec := &recorder{}
	m := Open(target, rec, opts)
	t.Cleanup(m.Close)
	return m, rec
}

func waitConnected(t *testing.T, m *Manager) {
	t.Helper()
	require.Eventually(t, m.Connected, waitFor, pollEvery)
}

func TestConnectsWhenEnabled(t *testing.T) {
	d := &fakeDialer{}
	m, rec := openTest(t, "proj1", testOptions(d))

	waitConnected(t, m)
	assert.Equal(t, "ws://audit.test/ws?projectName=proj1", d.url(0))
	assert.Equal(t, "proj1", m.Target())
	assert.Equal(t, []State{Connecting, Connected}, rec.States())
}

func TestInertWhileDisabled(t *testing.T) {
	d := &fakeDialer{}
	opts := testOptions(d)
	opts.Enabled = false
	m, _ := openTest(t, "proj1", opts)

	m.Connect()
	assert.Never(t, func() bool { return d.dials() > 0 }, quietPeriod, pollEvery)
	assert.Equal(t, Disconnected, m.State())

	m.SetEnabled(true)
	waitConnected(t, m)
	assert.Equal(t, 1, d.dials())
}

func TestFramesDeliveredInOrder(t *testing.T) {
	d := &fakeDialer{}
	m, rec := openTest(t, "proj1", testOptions(d))
	waitConnected(t, m)

	c := d.conn(0)
	c.frames <- []byte(`{"type":"string","data":"one"}`)
	c.frames <- []byte(`{not json`)
	c.frames <- []byte(`{"type":"string","data":"two"}`)

	require.Eventually(t, func() bool { return len(rec.Frames()) == 3 }, waitFor, pollEvery)
	assert.Equal(t, `{not json`, rec.Frames()[1])
	assert.True(t, m.Connected(), "bad frames are the handler's concern and keep the connection")
	assert.False(t, c.isClosed())
}

func TestReconnectAfterUnexpectedClose(t *testing.T) {
	d := &fakeDialer{}
	m, _ := openTest(t, "proj1", testOptions(d))
	waitConnected(t, m)

	start := time.Now()
	d.conn(0).drop()

	require.Eventually(t, func() bool { return m.State() == ReconnectPending }, waitFor, pollEvery)
	assert.False(t, m.Connected())
	assert.Equal(t, 1, d.dials(), "no attempt before the delay elapses")

	require.Eventually(t, func() bool { return d.dials() == 2 }, waitFor, pollEvery)
	assert.GreaterOrEqual(t, time.Since(start), testDelay)
	waitConnected(t, m)

	assert.Equal(t, "ws://audit.test/ws?projectName=proj1", d.url(1))
	assert.EqualValues(t, 1, d.maxOpen.Load(), "never two live connections")
	assert.True(t, d.conn(0).isClosed())
}

func TestNoReconnectWhenAutoReconnectOff(t *testing.T) {
	d := &fakeDialer{}
	opts := testOptions(d)
	opts.AutoReconnect = false
	m, _ := openTest(t, "proj1", opts)
	waitConnected(t, m)

	d.conn(0).drop()

	require.Eventually(t, func() bool { return m.State() == Disconnected }, waitFor, pollEvery)
	assert.Never(t, func() bool { return d.dials() > 1 }, quietPeriod, pollEvery)
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	d := &fakeDialer{}
	m, rec := openTest(t, "proj1", testOptions(d))
	waitConnected(t, m)

	m.Disconnect()

	assert.False(t, m.Connected())
	assert.Equal(t, Disconnected, m.State())
	assert.True(t, d.conn(0).isClosed())
	assert.Never(t, func() bool { return d.dials() > 1 }, quietPeriod, pollEvery)
	assert.Equal(t, Disconnected, rec.States()[len(rec.States())-1])
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{}
	m, _ := openTest(t, "proj1", testOptions(d))
	waitConnected(t, m)

	d.conn(0).drop()
	require.Eventually(t, func() bool { return m.State() == ReconnectPending }, waitFor, pollEvery)

	m.Disconnect()
	assert.Never(t, func() bool { return d.dials() > 1 }, quietPeriod, pollEvery)
}

func TestConnectAfterDisconnectDoesNotRearmReconnect(t *testing.T) {
	d := &fakeDialer{}
	m, _ := openTest(t, "proj1", testOptions(d))
	waitConnected(t, m)

	m.Disconnect()
	m.Connect()
	waitConnected(t, m)

	d.conn(1).drop()
	require.Eventually(t, func() bool { return m.State() == Disconnected }, waitFor, pollEvery)
	assert.Never(t, func() bool { return d.dials() > 2 }, quietPeriod, pollEvery)

	m.SetAutoReconnect(true)
	m.Connect()
	waitConnected(t, m)
	d.conn(2).drop()
	require.Eventually(t, func() bool { return d.dials() == 4 }, waitFor, pollEvery)
}

func TestTargetChangeReplacesConnection(t *testing.T) {
	d := &fakeDialer{}
	m, _ := openTest(t, "proj1", testOptions(d))
	waitConnected(t, m)

	m.SetTarget("proj2")

	assert.True(t, d.conn(0).isClosed())
	waitConnected(t, m)
	require.Equal(t, 2, d.dials())
	assert.True(t, strings.HasSuffix(d.url(1), "projectName=proj2"))

	// The old connection's late close must not trigger a reconnect
	assert.Never(t, func() bool { return d.dials() > 2 || !m.Connected() }, quietPeriod, pollEvery)
}

func TestFramesFromReplacedConnectionAreDropped(t *testing.T) {
	d := &fakeDialer{}
	m, rec := openTest(t, "proj1", testOptions(d))
	waitConnected(t, m)
	old := d.conn(0)

	m.SetTarget("proj2")
	waitConnected(t, m)

	select {
	case old.frames <- []byte("stale"):
	default:
	}
	d.conn(1).frames <- []byte("fresh")

	require.Eventually(t, func() bool { return len(rec.Frames()) >= 1 }, waitFor, pollEvery)
	assert.Never(t, func() bool {
		for _, f := range rec.Frames() {
			if f == "stale" {
				return true
			}
		}
		return false
	}, quietPeriod, pollEvery)
	assert.Equal(t, []string{"fresh"}, rec.Frames())
}

func TestTargetChangeWhilePendingUsesNewTarget(t *testing.T) {
	d := &fakeDialer{}
	m, _ := openTest(t, "proj1", testOptions(d))
	waitConnected(t, m)

	d.conn(0).drop()
	require.Eventually(t, func() bool { return m.State() == ReconnectPending }, waitFor, pollEvery)
	m.SetTarget("proj2")
	assert.Equal(t, ReconnectPending, m.State())

	require.Eventually(t, func() bool { return d.dials() == 2 }, waitFor, pollEvery)
	assert.True(t, strings.HasSuffix(d.url(1), "projectName=proj2"))
}

func TestSupersededDialIsClosed(t *testing.T) {
	d := &fakeDialer{hold: make(chan struct{})}
	m, _ := openTest(t, "proj1", testOptions(d))

	require.Eventually(t, func() bool { return d.dials() == 1 }, waitFor, pollEvery)
	assert.Equal(t, Connecting, m.State())

	m.SetTarget("proj2")
	waitConnected(t, m)

	close(d.hold)
	require.Eventually(t, func() bool {
		c := d.conn(1)
		return c != nil && c.isClosed()
	}, waitFor, pollEvery)

	// conns are recorded in completion order: the proj2 dial finished first
	assert.True(t, strings.HasSuffix(d.conn(0).url, "projectName=proj2"))
	assert.True(t, strings.HasSuffix(d.conn(1).url, "projectName=proj1"))
	assert.True(t, m.Connected())
}

func TestDialFailureSchedulesReconnect(t *testing.T) {
	errRefused := errors.New("connection refused")
	d := &fakeDialer{fail: func(n int) error {
		if n == 1 {
			return errRefused
		}
		return nil
	}}
	var observed []error
	var mu sync.Mutex
	opts := testOptions(d)
	opts.OnError = func(err error) {
		mu.Lock()
		observed = append(observed, err)
		mu.Unlock()
	}
	m, _ := openTest(t, "proj1", opts)

	waitConnected(t, m)
	assert.Equal(t, 2, d.dials())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 1)
	assert.ErrorIs(t, observed[0], errRefused)
}

func TestMissingAddressIsNotRetried(t *testing.T) {
	d := &fakeDialer{}
	errs := make(chan error, 1)
	opts := testOptions(d)
	opts.BaseURL = ""
	opts.OnError = func(err error) { errs <- err }
	m, _ := openTest(t, "proj1", opts)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrNoAddress)
	case <-time.After(waitFor):
		t.Fatal("no error observed")
	}
	assert.Equal(t, Disconnected, m.State())
	assert.Never(t, func() bool { return d.dials() > 0 || m.State() != Disconnected }, quietPeriod, pollEvery)
}

func TestSetEnabledFalseTearsDown(t *testing.T) {
	d := &fakeDialer{}
	m, _ := openTest(t, "proj1", testOptions(d))
	waitConnected(t, m)

	m.SetEnabled(false)
	assert.Equal(t, Disconnected, m.State())
	assert.True(t, d.conn(0).isClosed())
	assert.Never(t, func() bool { return d.dials() > 1 }, quietPeriod, pollEvery)

	m.SetEnabled(true)
	waitConnected(t, m)
	assert.Equal(t, 2, d.dials())
}

func TestCloseIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	m := Open("proj1", nil, testOptions(d))
	waitConnected(t, m)

	m.Close()
	m.Close()

	assert.True(t, d.conn(0).isClosed())
	assert.False(t, m.Connected())
	assert.Equal(t, "", m.Target())
	m.SetTarget("proj2")
	m.Disconnect()
}

func TestManagerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := &fakeDialer{}
	opts := testOptions(d)
	opts.Metrics = metrics.NewChannel(reg)
	m, _ := openTest(t, "proj1", opts)
	waitConnected(t, m)

	d.conn(0).drop()
	require.Eventually(t, func() bool { return m.State() == ReconnectPending }, waitFor, pollEvery)

	assert.Equal(t, 1.0, gathered(t, reg, "auditwatch_reconnects_scheduled_total"))
	assert.Equal(t, 0.0, gathered(t, reg, "auditwatch_connected"))

	waitConnected(t, m)
	assert.Equal(t, 2.0, gathered(t, reg, "auditwatch_dials_total"))
	assert.Equal(t, 1.0, gathered(t, reg, "auditwatch_connected"))
}

// gathered sums every series of the named metric
func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			total += metric.GetCounter().GetValue() + metric.GetGauge().GetValue()
		}
	}
	return total
}

type targetRecorder struct {
	recorder
	targets []string
}

func (r *targetRecorder) HandleTarget(target string) {
	r.mu.Lock()
	r.targets = append(r.targets, target)
	r.mu.Unlock()
}

func TestTargetHandlerSeesChangeBetweenConnections(t *testing.T) {
	d := &fakeDialer{}
	rec := &targetRecorder{}
	m := Open("proj1", rec, testOptions(d))
	t.Cleanup(m.Close)
	waitConnected(t, m)

	m.SetTarget("proj2")
	m.SetTarget("proj2")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"proj2"}, rec.targets)
	assert.True(t, d.conn(0).isClosed(), "old connection is released before the handler runs")
}
