package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/auditwatch/auditwatch/internal/config"
	"github.com/auditwatch/auditwatch/internal/gateway"
	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/snapshot"
	"github.com/auditwatch/auditwatch/internal/state"
	"github.com/auditwatch/auditwatch/internal/ui/keys"
	"github.com/auditwatch/auditwatch/internal/ui/styles"
	"github.com/auditwatch/auditwatch/internal/ui/views"
)

// AppMode represents the current mode of the application
type AppMode int

const (
	ModeNormal AppMode = iota
	ModeHelp
	ModeSearch
)

// FocusedPane represents which pane has focus
type FocusedPane int

const (
	PaneProjects FocusedPane = iota
	PaneDetails
)

// Tab represents the available detail tabs
type Tab int

const (
	TabOverview Tab = iota
	TabVulns
	TabContainers
	TabEvents
	TabReports
	TabEnv
)

var allTabs = []Tab{TabOverview, TabVulns, TabContainers, TabEvents, TabReports, TabEnv}

func (t Tab) String() string {
	names := []string{"Overview", "Vulns", "Containers", "Events", "Reports", "Env"}
	if int(t) >= 0 && int(t) < len(names) {
		return names[t]
	}
	return "Unknown"
}

// requestTimeout bounds every REST call the dashboard makes
const requestTimeout = 30 * time.Second

// Backend is the REST surface the dashboard drives. *gateway.Client
// satisfies it.
type Backend interface {
	Summaries(ctx context.Context) ([]models.ProjectSummary, error)
	ProjectDetail(ctx context.Context, name string) (*models.ProjectDetail, error)
	StartProject(ctx context.Context, name string, startType models.StartType) (string, error)
	CancelProject(ctx context.Context, name string) (string, error)
	ReportContent(ctx context.Context, name, id string) (string, error)
}

// Live is the live project view. *watch.Session satisfies it.
type Live interface {
	Watch(project string, seed *models.ProjectDetail)
	Project() string
	Snapshot() *snapshot.Snapshot
	Changes() <-chan struct{}
	ConnState() models.ConnectionState
	SetEnabled(enabled bool)
	Reconnect()
}

// App is the main application model
type App struct {
	// Configuration
	config *config.Config
	logger *zap.Logger

	// UI state
	mode        AppMode
	focusedPane FocusedPane
	activeTab   Tab
	width       int
	height      int
	selected    int // Currently highlighted project index

	// Keys
	keys keys.KeyMap

	// Sub-models
	searchInput textinput.Model
	spinner     spinner.Model
	events      *views.EventsView
	vulns       *views.VulnsView
	reports     *views.ReportsView

	backend Backend
	live    Live

	// Current project state
	projects    []models.ProjectSummary
	project     string
	snap        *snapshot.Snapshot
	conn        models.ConnectionState
	liveEnabled bool
	loading     bool

	// One-line feedback in the bottom bar
	flash    string
	flashErr bool
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, uiState *state.State, backend Backend, live Live, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "Filter events..."
	ti.CharLimit = 100

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Primary

	tab := Tab(uiState.ActiveTab)
	if tab < TabOverview || tab > TabEnv {
		tab = TabOverview
	}

	app := &App{
		config:      cfg,
		logger:      logger.Named("ui"),
		mode:        ModeNormal,
		focusedPane: FocusedPane(uiState.FocusedPane),
		activeTab:   tab,
		keys:        keys.DefaultKeyMap(),
		searchInput: ti,
		spinner:     sp,
		events:      views.NewEventsView(80, 20, cfg.UI.LogTailLines),
		vulns:       views.NewVulnsView(),
		reports:     views.NewReportsView(80, 20),
		backend:     backend,
		live:        live,
		project:     uiState.LastProject,
		snap:        snapshot.New(uiState.LastProject),
	}
	app.events.SetFollow(uiState.EventFollow)
	if uiState.EventFilter != "" {
		app.events.SetFilter(uiState.EventFilter)
	}
	return app
}

// GetState returns the current UI state for persistence
func (a *App) GetState() *state.State {
	return &state.State{
		LastProject:  a.project,
		ActiveTab:    int(a.activeTab),
		FocusedPane:  int(a.focusedPane),
		EventFilter:  a.events.Filter(),
		EventFollow:  a.events.IsFollowing(),
		WindowWidth:  a.width,
		WindowHeight: a.height,
	}
}

// RefreshTickMsg triggers periodic project list refresh
type RefreshTickMsg struct{}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		a.spinner.Tick,
		a.fetchProjects(),
		a.waitForChange(),
		a.scheduleRefresh(),
	}
	if a.project != "" {
		a.loading = true
		cmds = append(cmds, a.fetchDetail(a.project))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.updateViewportSizes()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case gateway.ProjectsMsg:
		if msg.Err != nil {
			a.setError("list projects", msg.Err)
			break
		}
		a.setProjects(msg.Projects)

	case gateway.DetailMsg:
		// A reply for a project the user has since moved away from
		if msg.Project != a.project {
			break
		}
		a.loading = false
		if msg.Err != nil {
			a.setError("load "+msg.Project, msg.Err)
			break
		}
		a.live.Watch(msg.Project, msg.Detail)
		a.applySnapshot()

	case gateway.SnapshotMsg:
		a.applySnapshot()
		cmds = append(cmds, a.waitForChange())

	case gateway.ActionMsg:
		if msg.Err != nil {
			a.setError(msg.Action+" "+msg.Project, msg.Err)
			break
		}
		a.setFlash(fmt.Sprintf("%s %s: %s", msg.Action, msg.Project, msg.Result))
		cmds = append(cmds, a.fetchProjects())
		if msg.Project == a.project {
			a.loading = true
			cmds = append(cmds, a.fetchDetail(msg.Project))
		}

	case gateway.ReportMsg:
		if msg.Project != a.project {
			break
		}
		if msg.Err != nil {
			a.reports.Close()
			a.setError("report "+msg.ID, msg.Err)
			break
		}
		a.reports.Open(msg.ID, msg.Content)

	case RefreshTickMsg:
		cmds = append(cmds, a.fetchProjects(), a.scheduleRefresh())
	}

	return a, tea.Batch(cmds...)
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	// Handle help mode
	if a.mode == ModeHelp {
		if key.Matches(msg, a.keys.Escape) || key.Matches(msg, a.keys.Help) || msg.String() == "q" {
			a.mode = ModeNormal
		}
		return nil
	}

	// Handle search mode
	if a.mode == ModeSearch {
		switch {
		case key.Matches(msg, a.keys.Escape):
			a.mode = ModeNormal
			a.searchInput.Reset()
			a.events.ClearFilter()
			return nil
		case key.Matches(msg, a.keys.Enter):
			a.mode = ModeNormal
			a.events.SetFilter(strings.TrimSpace(a.searchInput.Value()))
			a.searchInput.Blur()
			return nil
		}
		var cmd tea.Cmd
		a.searchInput, cmd = a.searchInput.Update(msg)
		return cmd
	}

	// Normal mode keybindings
	switch {
	case key.Matches(msg, a.keys.Quit):
		return tea.Quit

	case key.Matches(msg, a.keys.Help):
		a.mode = ModeHelp

	case key.Matches(msg, a.keys.Search):
		a.mode = ModeSearch
		a.activeTab = TabEvents
		a.searchInput.SetValue(a.events.Filter())
		a.searchInput.Focus()
		return textinput.Blink

	case key.Matches(msg, a.keys.Tab), key.Matches(msg, a.keys.ShiftTab):
		if a.focusedPane == PaneProjects {
			a.focusedPane = PaneDetails
		} else {
			a.focusedPane = PaneProjects
		}

	case key.Matches(msg, a.keys.Tab1):
		a.activeTab = TabOverview
	case key.Matches(msg, a.keys.Tab2):
		a.activeTab = TabVulns
	case key.Matches(msg, a.keys.Tab3):
		a.activeTab = TabContainers
	case key.Matches(msg, a.keys.Tab4):
		a.activeTab = TabEvents
	case key.Matches(msg, a.keys.Tab5):
		a.activeTab = TabReports
	case key.Matches(msg, a.keys.Tab6):
		a.activeTab = TabEnv

	case key.Matches(msg, a.keys.ToggleFollow):
		a.events.ToggleFollow()

	case key.Matches(msg, a.keys.Refresh):
		cmds := []tea.Cmd{a.fetchProjects()}
		if a.project != "" {
			a.loading = true
			cmds = append(cmds, a.fetchDetail(a.project))
		}
		return tea.Batch(cmds...)

	case key.Matches(msg, a.keys.Reconnect):
		if a.liveEnabled {
			a.live.Reconnect()
			a.setFlash("reconnecting live channel")
		} else {
			a.setFlash("live channel is idle until an audit runs")
		}

	case key.Matches(msg, a.keys.Start):
		return a.runAction("start", models.StartFull)
	case key.Matches(msg, a.keys.Analysis):
		return a.runAction("analysis", models.StartAnalysisOnly)
	case key.Matches(msg, a.keys.Cancel):
		return a.runAction("cancel", 0)

	case key.Matches(msg, a.keys.Up):
		a.move(-1)
	case key.Matches(msg, a.keys.Down):
		a.move(1)

	case key.Matches(msg, a.keys.PageUp), key.Matches(msg, a.keys.PageDown),
		key.Matches(msg, a.keys.Home), key.Matches(msg, a.keys.End):
		return a.scroll(msg)

	case key.Matches(msg, a.keys.Enter):
		if a.focusedPane == PaneProjects {
			return a.selectProject()
		}
		if a.activeTab == TabReports && !a.reports.IsOpen() {
			return a.openReport()
		}

	case key.Matches(msg, a.keys.Escape):
		if a.reports.IsOpen() {
			a.reports.Close()
		} else {
			a.flash = ""
		}
	}
	return nil
}

// move handles up/down for whichever list has focus
func (a *App) move(delta int) {
	if a.focusedPane == PaneProjects {
		next := a.selected + delta
		if next >= 0 && next < len(a.projects) {
			a.selected = next
		}
		return
	}

	switch a.activeTab {
	case TabVulns:
		if delta < 0 {
			a.vulns.Up()
		} else {
			a.vulns.Down()
		}
	case TabReports:
		if a.reports.IsOpen() {
			if delta < 0 {
				a.reports.Update(tea.KeyMsg{Type: tea.KeyUp})
			} else {
				a.reports.Update(tea.KeyMsg{Type: tea.KeyDown})
			}
			return
		}
		if delta < 0 {
			a.reports.Up()
		} else {
			a.reports.Down()
		}
	case TabEvents:
		if delta < 0 {
			a.events.Update(tea.KeyMsg{Type: tea.KeyUp})
		} else {
			a.events.Update(tea.KeyMsg{Type: tea.KeyDown})
		}
	}
}

func (a *App) scroll(msg tea.KeyMsg) tea.Cmd {
	switch {
	case a.activeTab == TabEvents:
		return a.events.Update(msg)
	case a.activeTab == TabReports && a.reports.IsOpen():
		return a.reports.Update(msg)
	}
	return nil
}

// selectProject switches the live view to the highlighted project
func (a *App) selectProject() tea.Cmd {
	if a.selected < 0 || a.selected >= len(a.projects) {
		return nil
	}
	name := a.projects[a.selected].Name
	a.focusedPane = PaneDetails
	if name == a.project && !a.loading {
		return nil
	}
	a.project = name
	a.loading = true
	a.reports.Close()
	return a.fetchDetail(name)
}

func (a *App) openReport() tea.Cmd {
	id, ok := a.reports.Selected()
	if !ok || a.project == "" {
		return nil
	}
	a.reports.Loading(id)
	project := a.project
	backend := a.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		content, err := backend.ReportContent(ctx, project, id)
		return gateway.ReportMsg{Project: project, ID: id, Content: content, Err: err}
	}
}

func (a *App) runAction(action string, startType models.StartType) tea.Cmd {
	project := a.project
	if project == "" {
		a.setFlash("select a project first")
		return nil
	}
	running := a.snap.Running()
	if action == "cancel" && !running {
		a.setFlash(project + " is not running")
		return nil
	}
	if action != "cancel" && running {
		a.setFlash(project + " is already running")
		return nil
	}

	backend := a.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		var (
			result string
			err    error
		)
		if action == "cancel" {
			result, err = backend.CancelProject(ctx, project)
		} else {
			result, err = backend.StartProject(ctx, project, startType)
		}
		return gateway.ActionMsg{Project: project, Action: action, Result: result, Err: err}
	}
}

// applySnapshot pulls the live view into the UI and keeps the channel
// enabled exactly while the project is running
func (a *App) applySnapshot() {
	snap := a.live.Snapshot()
	if a.project != "" && snap.Project() != "" && snap.Project() != a.project {
		// Still showing the previous project until its detail arrives
		return
	}
	a.snap = snap

	conn := a.live.ConnState()
	if conn.Connected != a.conn.Connected {
		if conn.Connected {
			a.setFlash("live channel connected")
		} else if a.liveEnabled {
			a.setFlash("live channel lost, reconnecting")
		}
	}
	a.conn = conn

	a.events.SetLines(snap.Logs())
	a.vulns.SetVulns(snap.Vulns())
	a.reports.SetReports(snap.Reports())

	for i := range a.projects {
		if a.projects[i].Name == snap.Project() {
			a.projects[i].Status = snap.Status()
			a.projects[i].VulnCount = len(snap.Vulns())
		}
	}

	if running := snap.Running(); running != a.liveEnabled {
		a.liveEnabled = running
		a.live.SetEnabled(running)
		a.logger.Debug("live channel toggled", zap.String("project", snap.Project()), zap.Bool("enabled", running))
	}
}

func (a *App) setProjects(projects []models.ProjectSummary) {
	var current string
	if a.selected >= 0 && a.selected < len(a.projects) {
		current = a.projects[a.selected].Name
	} else {
		current = a.project
	}
	a.projects = projects
	a.selected = 0
	for i, p := range projects {
		if p.Name == current {
			a.selected = i
			break
		}
	}
}

func (a *App) setFlash(msg string) {
	a.flash = msg
	a.flashErr = false
}

func (a *App) setError(what string, err error) {
	a.logger.Warn(what, zap.Error(err))
	a.flash = what + ": " + err.Error()
	a.flashErr = true
}

// View implements tea.Model
func (a *App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	// Help overlay
	if a.mode == ModeHelp {
		return a.renderHelp()
	}

	// Main layout
	return a.renderMainLayout()
}

func (a *App) renderMainLayout() string {
	// Calculate dimensions
	leftWidth := 28
	rightWidth := a.width - leftWidth - 4 // Account for borders
	contentHeight := a.height - 4         // Account for bottom bar and borders

	leftPane := a.renderProjectsPane(leftWidth, contentHeight)
	rightPane := a.renderDetailsPane(rightWidth, contentHeight)
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	bottomBar := a.renderBottomBar()

	// Search bar if active
	if a.mode == ModeSearch {
		return lipgloss.JoinVertical(lipgloss.Left, mainContent, a.renderSearchBar(), bottomBar)
	}

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, bottomBar)
}

func (a *App) renderProjectsPane(width, height int) string {
	style := styles.PaneBorder
	if a.focusedPane == PaneProjects {
		style = styles.FocusedPaneBorder
	}
	style = style.Width(width).Height(height)

	title := styles.TitleStyle.Render("Projects")

	var lines []string
	if len(a.projects) == 0 {
		lines = append(lines, styles.Muted.Render("No projects"))
	}
	for i, p := range a.projects {
		marker := " "
		if p.Name == a.project {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s %s", marker, projectBadge(p.Status), p.Name)
		if p.VulnCount > 0 {
			line += styles.Muted.Render(fmt.Sprintf(" (%d)", p.VulnCount))
		}
		if i == a.selected {
			lines = append(lines, styles.SelectedItem.Render(line))
		} else {
			lines = append(lines, styles.UnselectedItem.Render(line))
		}
	}

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

// projectBadge is the compact status marker of the project list
func projectBadge(status string) string {
	switch {
	case models.IsRunning(status):
		return styles.StatusDegraded.Render("[RUN]")
	case status == models.StatusCompleted || status == models.StatusFinished:
		return styles.StatusOK.Render("[OK]")
	case status == models.StatusError:
		return styles.StatusDown.Render("[ERR]")
	case status == models.StatusCancelled:
		return styles.Muted.Render("[CXL]")
	default:
		return styles.Muted.Render("[---]")
	}
}

func (a *App) renderDetailsPane(width, height int) string {
	style := styles.PaneBorder
	if a.focusedPane == PaneDetails {
		style = styles.FocusedPaneBorder
	}
	style = style.Width(width).Height(height)

	header := a.renderHeader()
	tabs := a.renderTabs()

	// Render tab content
	contentWidth := width - 2
	var content string
	switch a.activeTab {
	case TabOverview:
		content = views.RenderOverview(a.snap, a.conn, contentWidth)
	case TabVulns:
		content = a.vulns.View(contentWidth, height-4)
	case TabContainers:
		content = views.RenderContainers(a.snap.Containers(), contentWidth)
	case TabEvents:
		content = a.events.View()
	case TabReports:
		content = a.reports.View(contentWidth)
	case TabEnv:
		content = views.RenderEnv(a.snap.Env(), contentWidth)
	default:
		content = styles.Muted.Render("Tab not implemented")
	}

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, header, tabs, content))
}

func (a *App) renderHeader() string {
	if a.project == "" {
		return styles.TitleStyle.Render("auditwatch")
	}
	parts := []string{
		styles.TitleStyle.Render(a.project),
		styles.Connectivity(a.conn.Connected),
	}
	if a.loading {
		parts = append(parts, a.spinner.View())
	}
	return strings.Join(parts, " ")
}

func (a *App) renderTabs() string {
	var tabs []string
	for _, t := range allTabs {
		label := fmt.Sprintf("%d %s", int(t)+1, t)
		if t == a.activeTab {
			tabs = append(tabs, styles.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, styles.InactiveTab.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (a *App) renderBottomBar() string {
	if a.flash != "" {
		style := styles.HintDesc
		if a.flashErr {
			style = styles.LogError
		}
		return styles.BottomBar.Width(a.width).Render(style.Render(a.flash))
	}

	hints := []string{
		styles.HintKey.Render("q") + styles.HintDesc.Render(":quit"),
		styles.HintKey.Render("?") + styles.HintDesc.Render(":help"),
		styles.HintKey.Render("1-6") + styles.HintDesc.Render(":tabs"),
		styles.HintKey.Render("s/a") + styles.HintDesc.Render(":start"),
		styles.HintKey.Render("c") + styles.HintDesc.Render(":cancel"),
		styles.HintKey.Render("r") + styles.HintDesc.Render(":refresh"),
	}
	if a.events.IsFollowing() {
		hints = append(hints, styles.Secondary.Render("follow"))
	}
	if f := a.events.Filter(); f != "" {
		hints = append(hints, styles.HintDesc.Render("filter: "+f))
	}

	return styles.BottomBar.Width(a.width).Render(lipgloss.JoinHorizontal(lipgloss.Left, joinWithSeparator(hints, "  ")...))
}

func (a *App) renderSearchBar() string {
	prompt := styles.InputPrompt.Render("Filter: ")
	return prompt + a.searchInput.View()
}

func (a *App) renderHelp() string {
	help := styles.HelpTitle.Render("auditwatch Help") + "\n\n"

	help += styles.HelpSection.Render("Navigation") + "\n"
	help += "  tab/shift+tab  Switch between panes\n"
	help += "  j/k or arrows  Navigate lists\n"
	help += "  enter          Watch project / open report\n"
	help += "  esc            Close preview/cancel\n\n"

	help += styles.HelpSection.Render("Tabs") + "\n"
	help += "  1  Overview    - Status and live channel\n"
	help += "  2  Vulns       - Findings and their verification\n"
	help += "  3  Containers  - Verification containers\n"
	help += "  4  Events      - Audit event log\n"
	help += "  5  Reports     - Generated reports\n"
	help += "  6  Env         - Target environment\n\n"

	help += styles.HelpSection.Render("Actions") + "\n"
	help += "  s              Start full audit\n"
	help += "  a              Start code analysis only\n"
	help += "  c              Cancel running audit\n"
	help += "  r              Refresh from backend\n"
	help += "  R              Reconnect live channel\n"
	help += "  f              Toggle event follow\n"
	help += "  /              Filter events\n"
	help += "  ?              Show this help\n"
	help += "  q              Quit\n\n"

	help += styles.Muted.Render("Press esc or ? to close")

	// Center the help overlay
	overlay := styles.HelpOverlay.Render(help)
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, overlay)
}

func (a *App) updateViewportSizes() {
	w := a.width - 28 - 6
	h := a.height - 8
	if w < 10 {
		w = 10
	}
	if h < 3 {
		h = 3
	}
	a.events.SetSize(w, h)
	a.reports.SetSize(w, h-1)
}

func (a *App) fetchProjects() tea.Cmd {
	backend := a.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		projects, err := backend.Summaries(ctx)
		return gateway.ProjectsMsg{Projects: projects, Err: err}
	}
}

func (a *App) fetchDetail(project string) tea.Cmd {
	backend := a.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		detail, err := backend.ProjectDetail(ctx, project)
		return gateway.DetailMsg{Project: project, Detail: detail, Err: err}
	}
}

// waitForChange blocks until the live view changes
func (a *App) waitForChange() tea.Cmd {
	live := a.live
	return func() tea.Msg {
		<-live.Changes()
		return gateway.SnapshotMsg{Project: live.Project()}
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(a.config.RefreshInterval(), func(t time.Time) tea.Msg {
		return RefreshTickMsg{}
	})
}

func joinWithSeparator(items []string, sep string) []string {
	result := make([]string, 0, len(items)*2)
	for i, item := range items {
		if i > 0 {
			result = append(result, sep)
		}
		result = append(result, item)
	}
	return result
}
