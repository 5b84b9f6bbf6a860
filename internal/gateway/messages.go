package gateway

import "github.com/auditwatch/auditwatch/internal/models"

// SnapshotMsg is sent when the live snapshot has changed
type SnapshotMsg struct {
	Project string
}

// ProjectsMsg carries a refreshed project list
type ProjectsMsg struct {
	Projects []models.ProjectSummary
	Err      error
}

// DetailMsg carries a project detail fetched over REST
type DetailMsg struct {
	Project string
	Detail  *models.ProjectDetail
	Err     error
}

// ActionMsg reports the outcome of a start or cancel request
type ActionMsg struct {
	Project string
	Action  string
	Result  string
	Err     error
}

// ReportMsg carries the text of one report for preview
type ReportMsg struct {
	Project string
	ID      string
	Content string
	Err     error
}
