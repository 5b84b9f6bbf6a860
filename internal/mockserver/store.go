package mockserver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/auditwatch/auditwatch/internal/envelope"
	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/snapshot"
)

const timeLayout = "2006-01-02 15:04:05"

type project struct {
	snap      *snapshot.Snapshot
	startTime string
	endTime   string
	archive   string
	// stop ends a running simulation; nil when idle
	stop func()
}

// store keeps every project's state. Backend state is itself a snapshot:
// everything the simulator publishes is folded in with the same reducer
// the clients use.
type store struct {
	mu       sync.Mutex
	projects map[string]*project
}

func newStore() *store {
	return &store{projects: make(map[string]*project)}
}

func (s *store) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.projects))
	for name := range s.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *store) create(name, archive string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[name]; ok {
		return fmt.Errorf("项目已存在: %s", name)
	}
	snap := snapshot.FromDetail(models.ProjectDetail{ProjectName: name, Status: models.StatusNotRunning})
	s.projects[name] = &project{snap: snap, archive: archive}
	return nil
}

func (s *store) seed(d models.ProjectDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[d.ProjectName] = &project{
		snap:      snapshot.FromDetail(d),
		startTime: d.StartTime,
		endTime:   d.EndTime,
	}
}

func (s *store) detail(name string) (models.ProjectDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[name]
	if !ok {
		return models.ProjectDetail{}, false
	}
	d := p.snap.Detail()
	d.StartTime = p.startTime
	d.EndTime = p.endTime
	if d.VulnList == nil {
		d.VulnList = []models.Vuln{}
	}
	if d.ContainerList == nil {
		d.ContainerList = []models.Container{}
	}
	if d.EventLog == nil {
		d.EventLog = []string{}
	}
	return d, true
}

// apply folds e into the named project and reports whether it exists
func (s *store) apply(name string, e envelope.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[name]
	if !ok {
		return false
	}
	p.snap.Apply(e)
	if st, ok := e.(envelope.ProjectStatus); ok && !models.IsRunning(st.Status) && st.Status != models.StatusNotRunning {
		p.endTime = time.Now().Format(timeLayout)
	}
	return true
}

// begin marks name as running with stop as its cancel hook
func (s *store) begin(name string, stop func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[name]
	if !ok {
		return errNotFound(name)
	}
	if p.stop != nil {
		return fmt.Errorf("项目正在运行: %s", name)
	}
	p.stop = stop
	p.startTime = time.Now().Format(timeLayout)
	p.endTime = ""
	return nil
}

// finish clears the running mark and returns the stop hook, if any
func (s *store) finish(name string) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[name]
	if !ok {
		return nil
	}
	stop := p.stop
	p.stop = nil
	return stop
}

func (s *store) remove(name string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[name]
	if !ok {
		return nil, false
	}
	delete(s.projects, name)
	return p.stop, true
}

// report renders one report as markdown from the project's findings
func (s *store) report(name, id string) (string, string, bool) {
	d, ok := s.detail(name)
	if !ok {
		return "", "", false
	}
	title, ok := d.ReportList[id]
	if !ok {
		return "", "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Project: %s\n- Status: %s\n- Findings: %d\n\n", d.ProjectName, d.Status, len(d.VulnList))
	for _, v := range d.VulnList {
		fmt.Fprintf(&b, "## %s (%s)\n\n- Type: %s\n- Confidence: %s\n- Location: %s %s\n- Status: %s\n\n",
			v.Title, v.ID, v.Type, v.Confidence, v.File, v.FunctionOrMethod, v.Status)
	}
	return title, b.String(), true
}

func errNotFound(name string) error {
	return fmt.Errorf("项目不存在: %s", name)
}
