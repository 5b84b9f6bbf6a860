package snapshot

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/auditwatch/auditwatch/internal/envelope"
	"github.com/auditwatch/auditwatch/internal/metrics"
	"github.com/auditwatch/auditwatch/internal/models"
)

type notified struct {
	tag     envelope.Tag
	changed bool
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *observer.ObservedLogs, *[]notified) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	var got []notified
	d := NewDispatcher(New("proj1"), zap.New(core), nil, func(e envelope.Envelope, changed bool) {
		got = append(got, notified{e.Tag(), changed})
	})
	return d, logs, &got
}

func TestHandleFrameAppliesKnownEnvelopes(t *testing.T) {
	d, _, got := newTestDispatcher(t)

	d.HandleFrame([]byte(`{"type":"VulnAdd","data":{"vuln_id":"v1","title":"SQLi","status":"待验证"}}`))
	d.HandleFrame([]byte(`{"type":"VulnStatus","data":{"vuln_id":"v1","status":"已确认"}}`))
	d.HandleFrame([]byte(`{"type":"VulnStatus","data":{"vuln_id":"v1","status":"已确认"}}`))

	v, ok := d.Snapshot().Vuln("v1")
	require.True(t, ok)
	assert.Equal(t, "已确认", v.Status)
	assert.Equal(t, []notified{
		{envelope.TagVulnAdd, true},
		{envelope.TagVulnStatus, true},
		{envelope.TagVulnStatus, false},
	}, *got)
}

func TestHandleFrameDropsMalformed(t *testing.T) {
	d, logs, got := newTestDispatcher(t)
	before := d.Snapshot()

	d.HandleFrame([]byte(`{not json`))
	d.HandleFrame([]byte(`{"type":"VulnAdd","data":"oops"}`))

	assert.Equal(t, before, d.Snapshot())
	assert.Empty(t, *got)
	assert.Equal(t, 2, logs.FilterMessage("dropping malformed frame").Len())
}

func TestHandleFrameIgnoresUnknownTag(t *testing.T) {
	d, logs, got := newTestDispatcher(t)

	d.HandleFrame([]byte(`{"type":"ScanProgress","data":{"pct":40}}`))

	assert.Equal(t, New("proj1"), d.Snapshot())
	assert.Empty(t, *got)
	entries := logs.FilterMessage("ignoring unknown envelope").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ScanProgress", entries[0].ContextMap()["tag"])
}

func TestDispatcherMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewChannel(reg)
	d := NewDispatcher(New("proj1"), nil, m, nil)

	d.HandleFrame([]byte(`{"type":"string","data":"hello"}`))
	d.HandleFrame([]byte(`{"type":"ProjectStatus","data":"运行中"}`))
	d.HandleFrame([]byte(`{"type":"ProjectStatus","data":"运行中"}`))
	d.HandleFrame([]byte(`garbage`))
	d.HandleFrame([]byte(`{"type":"Mystery","data":{}}`))

	count, err := testutil.GatherAndCount(reg, "auditwatch_frames_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.True(t, d.Snapshot().Running())
}

func TestSnapshotReturnsCopy(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil)
	d.Apply(envelope.ContainerAdd{Container: models.Container{ID: "c1"}})

	s := d.Snapshot()
	s.Apply(envelope.ContainerRemove{ContainerRemove: models.ContainerRemove{ContainerID: "c1"}})

	assert.Len(t, d.Snapshot().Containers(), 1)
}

func TestReset(t *testing.T) {
	d := NewDispatcher(New("old"), nil, nil, nil)
	d.Apply(envelope.EventLog{Line: "x"})

	d.Reset(FromDetail(models.ProjectDetail{ProjectName: "new", Status: models.StatusCompleted}))

	s := d.Snapshot()
	assert.Equal(t, "new", s.Project())
	assert.Empty(t, s.Logs())
	assert.Equal(t, models.StatusCompleted, s.Status())
}
