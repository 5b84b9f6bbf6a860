// Package snapshot holds the client-side view of one audit project and the
// reducer that folds live envelopes into it.
package snapshot

import (
	"reflect"

	"github.com/auditwatch/auditwatch/internal/envelope"
	"github.com/auditwatch/auditwatch/internal/models"
)

// Snapshot is the reconstructed state of one project. It is not safe for
// concurrent use; Dispatcher serialises access to the snapshot it owns.
type Snapshot struct {
	project   string
	status    string
	startTime string
	endTime   string

	vulns   []models.Vuln
	vulnIdx map[string]int

	containers []models.Container
	reports    models.ReportList
	logs       []string
	env        *models.EnvInfo
}

// New returns an empty snapshot for project
func New(project string) *Snapshot {
	return &Snapshot{
		project: project,
		vulnIdx: make(map[string]int),
		reports: make(models.ReportList),
	}
}

// FromDetail seeds a snapshot from a REST project detail. Duplicate
// vulnerability ids in the detail keep their first occurrence.
func FromDetail(d models.ProjectDetail) *Snapshot {
	s := New(d.ProjectName)
	s.status = d.Status
	s.startTime = d.StartTime
	s.endTime = d.EndTime

	for _, v := range d.VulnList {
		s.addVuln(v)
	}
	s.containers = append(s.containers, d.ContainerList...)
	for id, name := range d.ReportList {
		s.reports[id] = name
	}
	s.logs = append(s.logs, d.EventLog...)
	if d.EnvInfo != nil {
		s.env = cloneEnv(d.EnvInfo)
	}
	return s
}

// Apply folds one envelope into the snapshot and reports whether anything
// changed. EventLog and ContainerAdd always append; every other variant is
// idempotent.
func (s *Snapshot) Apply(e envelope.Envelope) bool {
	switch v := e.(type) {
	case envelope.EventLog:
		s.logs = append(s.logs, v.Line)
		return true

	case envelope.ReportAdd:
		changed := false
		for id, name := range v.Reports {
			if cur, ok := s.reports[id]; ok && cur == name {
				continue
			}
			s.reports[id] = name
			changed = true
		}
		return changed

	case envelope.VulnAdd:
		return s.addVuln(v.Vuln)

	case envelope.VulnStatus:
		i, ok := s.vulnIdx[v.VulnID]
		if !ok || s.vulns[i].Status == v.Status {
			return false
		}
		s.vulns[i].Status = v.Status
		return true

	case envelope.ContainerAdd:
		c := v.Container
		c.WebPort = append([]string(nil), c.WebPort...)
		s.containers = append(s.containers, c)
		return true

	case envelope.ContainerRemove:
		kept := s.containers[:0]
		for _, c := range s.containers {
			if c.ID != v.ContainerID {
				kept = append(kept, c)
			}
		}
		removed := len(kept) != len(s.containers)
		s.containers = kept
		return removed

	case envelope.EnvInfo:
		env := cloneEnv(&v.Env)
		if s.env != nil && reflect.DeepEqual(s.env, env) {
			return false
		}
		s.env = env
		return true

	case envelope.ProjectStatus:
		if s.status == v.Status {
			return false
		}
		s.status = v.Status
		return true

	case envelope.ProjectName:
		if s.project != "" {
			return false
		}
		s.project = v.Name
		return true

	default:
		return false
	}
}

func (s *Snapshot) addVuln(v models.Vuln) bool {
	if _, ok := s.vulnIdx[v.ID]; ok {
		return false
	}
	s.vulnIdx[v.ID] = len(s.vulns)
	s.vulns = append(s.vulns, v)
	return true
}

// Clone returns a deep copy
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		project:    s.project,
		status:     s.status,
		startTime:  s.startTime,
		endTime:    s.endTime,
		vulns:      append([]models.Vuln(nil), s.vulns...),
		vulnIdx:    make(map[string]int, len(s.vulnIdx)),
		containers: cloneContainers(s.containers),
		reports:    s.Reports(),
		logs:       append([]string(nil), s.logs...),
		env:        cloneEnv(s.env),
	}
	for id, i := range s.vulnIdx {
		c.vulnIdx[id] = i
	}
	return c
}

// Detail renders the snapshot in the shape of a REST project detail
func (s *Snapshot) Detail() models.ProjectDetail {
	return models.ProjectDetail{
		ProjectName:   s.project,
		ContainerList: s.Containers(),
		EventLog:      s.Logs(),
		VulnList:      s.Vulns(),
		ReportList:    s.Reports(),
		Status:        s.status,
		StartTime:     s.startTime,
		EndTime:       s.endTime,
		EnvInfo:       s.Env(),
	}
}

// Project returns the project name
func (s *Snapshot) Project() string { return s.project }

// Status returns the project status
func (s *Snapshot) Status() string { return s.status }

// Running reports whether the project status is a running state
func (s *Snapshot) Running() bool { return models.IsRunning(s.status) }

// StartTime returns the start time reported by the backend
func (s *Snapshot) StartTime() string { return s.startTime }

// EndTime returns the end time reported by the backend
func (s *Snapshot) EndTime() string { return s.endTime }

// Vulns returns the vulnerabilities in arrival order
func (s *Snapshot) Vulns() []models.Vuln {
	return append([]models.Vuln(nil), s.vulns...)
}

// Vuln looks up a vulnerability by id
func (s *Snapshot) Vuln(id string) (models.Vuln, bool) {
	i, ok := s.vulnIdx[id]
	if !ok {
		return models.Vuln{}, false
	}
	return s.vulns[i], true
}

// Containers returns the container list in arrival order
func (s *Snapshot) Containers() []models.Container {
	return cloneContainers(s.containers)
}

// Reports returns a copy of the report mapping
func (s *Snapshot) Reports() models.ReportList {
	out := make(models.ReportList, len(s.reports))
	for id, name := range s.reports {
		out[id] = name
	}
	return out
}

// Logs returns the event log lines in arrival order
func (s *Snapshot) Logs() []string {
	return append([]string(nil), s.logs...)
}

// Env returns the current environment info, or nil
func (s *Snapshot) Env() *models.EnvInfo {
	return cloneEnv(s.env)
}

// VulnCounts tallies vulnerabilities by status
func (s *Snapshot) VulnCounts() map[string]int {
	counts := make(map[string]int)
	for _, v := range s.vulns {
		counts[v.Status]++
	}
	return counts
}

func cloneContainers(in []models.Container) []models.Container {
	if in == nil {
		return nil
	}
	out := make([]models.Container, len(in))
	for i, c := range in {
		c.WebPort = append([]string(nil), c.WebPort...)
		out[i] = c
	}
	return out
}

func cloneEnv(e *models.EnvInfo) *models.EnvInfo {
	if e == nil {
		return nil
	}
	c := *e
	if e.LoginInfo != nil {
		li := *e.LoginInfo
		c.LoginInfo = &li
	}
	if e.DBInfo != nil {
		db := *e.DBInfo
		c.DBInfo = &db
	}
	c.RouteInfo = append([]string(nil), e.RouteInfo...)
	return &c
}
