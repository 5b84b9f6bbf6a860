package ui

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditwatch/auditwatch/internal/config"
	"github.com/auditwatch/auditwatch/internal/envelope"
	"github.com/auditwatch/auditwatch/internal/gateway"
	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/snapshot"
	"github.com/auditwatch/auditwatch/internal/state"
)

type fakeBackend struct {
	mu      sync.Mutex
	details map[string]*models.ProjectDetail
	started []models.StartType
	cancels int
}

func (b *fakeBackend) Summaries(context.Context) ([]models.ProjectSummary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.ProjectSummary
	for name, d := range b.details {
		out = append(out, models.ProjectSummary{Name: name, Status: d.Status, VulnCount: len(d.VulnList)})
	}
	return out, nil
}

func (b *fakeBackend) ProjectDetail(_ context.Context, name string) (*models.ProjectDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.details[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (b *fakeBackend) StartProject(_ context.Context, name string, st models.StartType) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, st)
	return "项目已启动", nil
}

func (b *fakeBackend) CancelProject(context.Context, string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancels++
	return "项目已取消", nil
}

func (b *fakeBackend) ReportContent(_ context.Context, name, id string) (string, error) {
	return "# " + id, nil
}

type fakeLive struct {
	mu         sync.Mutex
	snap       *snapshot.Snapshot
	conn       models.ConnectionState
	changes    chan struct{}
	watched    []string
	enabled    []bool
	reconnects int
}

func newFakeLive() *fakeLive {
	return &fakeLive{snap: snapshot.New(""), changes: make(chan struct{}, 1)}
}

func (l *fakeLive) Watch(project string, seed *models.ProjectDetail) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.watched = append(l.watched, project)
	if seed != nil {
		l.snap = snapshot.FromDetail(*seed)
	} else {
		l.snap = snapshot.New(project)
	}
}

func (l *fakeLive) Project() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap.Project()
}

func (l *fakeLive) Snapshot() *snapshot.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap.Clone()
}

func (l *fakeLive) Changes() <-chan struct{} { return l.changes }

func (l *fakeLive) ConnState() models.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

func (l *fakeLive) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = append(l.enabled, enabled)
}

func (l *fakeLive) Reconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reconnects++
}

func (l *fakeLive) apply(e envelope.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap.Apply(e)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestApp(t *testing.T) (*App, *fakeBackend, *fakeLive) {
	t.Helper()
	backend := &fakeBackend{details: map[string]*models.ProjectDetail{
		"shop-api": {
			ProjectName: "shop-api",
			Status:      models.StatusRunning,
			VulnList:    []models.Vuln{{ID: "v1", Title: "SQLi", Status: models.VulnPending}},
			EventLog:    []string{"开始代码分析"},
			ReportList:  models.ReportList{},
		},
		"blog": {ProjectName: "blog", Status: models.StatusCompleted},
	}}
	live := newFakeLive()
	app := NewApp(config.DefaultConfig(), state.DefaultState(), backend, live, nil)
	app.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	app.Update(gateway.ProjectsMsg{Projects: []models.ProjectSummary{
		{Name: "blog", Status: models.StatusCompleted},
		{Name: "shop-api", Status: models.StatusRunning, VulnCount: 1},
	}})
	return app, backend, live
}

// selectProject highlights name and presses enter, delivering the detail
func selectProject(t *testing.T, app *App, name string) {
	t.Helper()
	app.focusedPane = PaneProjects
	for app.projects[app.selected].Name != name {
		app.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	msg := cmd()
	detail, ok := msg.(gateway.DetailMsg)
	require.True(t, ok, "expected DetailMsg, got %T", msg)
	app.Update(detail)
}

func TestSelectingProjectWatchesIt(t *testing.T) {
	app, _, live := newTestApp(t)

	selectProject(t, app, "shop-api")

	assert.Equal(t, []string{"shop-api"}, live.watched)
	assert.Equal(t, "shop-api", app.project)
	assert.False(t, app.loading)
	assert.Equal(t, PaneDetails, app.focusedPane)
	// Running projects get a live channel
	assert.Equal(t, []bool{true}, live.enabled)
	assert.Equal(t, []string{"开始代码分析"}, app.events.Visible())
}

func TestLiveChannelDisabledWhenProjectStops(t *testing.T) {
	app, _, live := newTestApp(t)
	selectProject(t, app, "shop-api")

	live.apply(envelope.EventLog{Line: "审计完成"})
	live.apply(envelope.ProjectStatus{Status: models.StatusCompleted})
	app.Update(gateway.SnapshotMsg{Project: "shop-api"})

	assert.Equal(t, []bool{true, false}, live.enabled)
	assert.Equal(t, models.StatusCompleted, app.snap.Status())
	assert.Len(t, app.events.Visible(), 2)
	for _, p := range app.projects {
		if p.Name == "shop-api" {
			assert.Equal(t, models.StatusCompleted, p.Status)
		}
	}
}

func TestIdleProjectStaysOffline(t *testing.T) {
	app, _, live := newTestApp(t)
	selectProject(t, app, "blog")

	assert.Empty(t, live.enabled)
	assert.Contains(t, app.View(), "[OFFLINE]")
}

func TestStaleDetailIgnored(t *testing.T) {
	app, backend, live := newTestApp(t)
	selectProject(t, app, "blog")

	app.Update(gateway.DetailMsg{Project: "shop-api", Detail: backend.details["shop-api"]})
	assert.Equal(t, []string{"blog"}, live.watched)
	assert.Equal(t, "blog", app.snap.Project())
}

func TestConnectivityIndicator(t *testing.T) {
	app, _, live := newTestApp(t)
	selectProject(t, app, "shop-api")

	live.mu.Lock()
	live.conn = models.ConnectionState{Connected: true, Project: "shop-api"}
	live.mu.Unlock()
	app.Update(gateway.SnapshotMsg{Project: "shop-api"})

	assert.Contains(t, app.View(), "[LIVE]")
	assert.Equal(t, "live channel connected", app.flash)
}

func TestStartAndCancelActions(t *testing.T) {
	app, backend, _ := newTestApp(t)
	selectProject(t, app, "blog")

	_, cmd := app.Update(runes("a"))
	require.NotNil(t, cmd)
	msg, ok := cmd().(gateway.ActionMsg)
	require.True(t, ok)
	assert.Equal(t, "analysis", msg.Action)
	assert.Equal(t, []models.StartType{models.StartAnalysisOnly}, backend.started)

	_, cmd = app.Update(msg)
	require.NotNil(t, cmd)
	assert.True(t, app.loading)
	assert.Contains(t, app.flash, "项目已启动")

	// blog is not running, so there is nothing to cancel
	_, cmd = app.Update(runes("c"))
	assert.Nil(t, cmd)
	assert.Contains(t, app.flash, "not running")
	assert.Zero(t, backend.cancels)
}

func TestCancelRunningProject(t *testing.T) {
	app, backend, _ := newTestApp(t)
	selectProject(t, app, "shop-api")

	_, cmd := app.Update(runes("s"))
	assert.Nil(t, cmd)
	assert.Contains(t, app.flash, "already running")

	_, cmd = app.Update(runes("c"))
	require.NotNil(t, cmd)
	msg := cmd().(gateway.ActionMsg)
	assert.NoError(t, msg.Err)
	assert.Equal(t, 1, backend.cancels)
}

func TestActionWithoutProject(t *testing.T) {
	app, _, _ := newTestApp(t)
	_, cmd := app.Update(runes("s"))
	assert.Nil(t, cmd)
	assert.Equal(t, "select a project first", app.flash)
}

func TestEventFilter(t *testing.T) {
	app, _, live := newTestApp(t)
	selectProject(t, app, "shop-api")
	live.apply(envelope.EventLog{Line: "动态验证 v1"})
	live.apply(envelope.EventLog{Line: "error: container exited"})
	app.Update(gateway.SnapshotMsg{})

	app.Update(runes("/"))
	assert.Equal(t, ModeSearch, app.mode)
	assert.Equal(t, TabEvents, app.activeTab)
	app.Update(runes("error"))
	app.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, ModeNormal, app.mode)
	assert.Equal(t, []string{"error: container exited"}, app.events.Visible())

	app.Update(runes("/"))
	app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Len(t, app.events.Visible(), 3)
}

func TestReportPreview(t *testing.T) {
	app, _, live := newTestApp(t)
	selectProject(t, app, "shop-api")
	live.apply(envelope.ReportAdd{Reports: models.ReportList{"r1": "audit.md"}})
	app.Update(gateway.SnapshotMsg{})

	app.Update(runes("5"))
	assert.Equal(t, TabReports, app.activeTab)
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	app.Update(cmd())
	assert.True(t, app.reports.IsOpen())

	app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, app.reports.IsOpen())
}

func TestReconnectOnlyWhileLive(t *testing.T) {
	app, _, live := newTestApp(t)
	selectProject(t, app, "blog")
	app.Update(runes("R"))
	assert.Zero(t, live.reconnects)

	selectProject(t, app, "shop-api")
	app.Update(runes("R"))
	assert.Equal(t, 1, live.reconnects)
}

func TestWaitForChange(t *testing.T) {
	app, _, live := newTestApp(t)
	selectProject(t, app, "shop-api")

	live.changes <- struct{}{}
	msg := app.waitForChange()()
	assert.Equal(t, gateway.SnapshotMsg{Project: "shop-api"}, msg)
}

func TestHelpOverlay(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.Update(runes("?"))
	assert.Contains(t, app.View(), "auditwatch Help")
	app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ModeNormal, app.mode)
}

func TestGetStateRoundTrip(t *testing.T) {
	app, _, _ := newTestApp(t)
	selectProject(t, app, "shop-api")
	app.Update(runes("2"))
	app.Update(runes("f"))

	st := app.GetState()
	assert.Equal(t, "shop-api", st.LastProject)
	assert.Equal(t, int(TabVulns), st.ActiveTab)
	assert.False(t, st.EventFollow)
	assert.Equal(t, 140, st.WindowWidth)

	restored := NewApp(config.DefaultConfig(), st, &fakeBackend{}, newFakeLive(), nil)
	assert.Equal(t, TabVulns, restored.activeTab)
	assert.Equal(t, "shop-api", restored.project)
}

func TestTabNames(t *testing.T) {
	assert.Equal(t, "Overview", TabOverview.String())
	assert.Equal(t, "Env", TabEnv.String())
	assert.Equal(t, "Unknown", Tab(42).String())
}
