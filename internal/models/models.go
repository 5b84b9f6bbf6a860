package models

import (
	"regexp"
	"strings"
	"time"
)

// Project status values as reported by the audit backend
const (
	StatusNotRunning = "未运行"
	StatusRunning    = "运行中"
	StatusRunningAlt = "正在运行"
	StatusCompleted  = "已完成"
	StatusFinished   = "运行结束"
	StatusCancelled  = "已取消"
	StatusError      = "错误"
)

// Vulnerability status values
const (
	VulnPending       = "待验证"
	VulnConfirmed     = "已确认"
	VulnFalsePositive = "误报"
	VulnFixed         = "已修复"
)

// IsRunning reports whether a project status means the audit job is live.
// The backend uses two spellings for the running state.
func IsRunning(status string) bool {
	return status == StatusRunning || status == StatusRunningAlt
}

// projectNamePattern guards project names, which the backend uses as path
// segments
var projectNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ArchiveExtensions lists the source archive formats the backend accepts
var ArchiveExtensions = []string{".zip", ".tar.gz", ".tgz", ".tar"}

// ValidProjectName reports whether name is safe to use as a project name
func ValidProjectName(name string) bool {
	return projectNamePattern.MatchString(name)
}

// ValidArchive reports whether filename has a supported archive extension
func ValidArchive(filename string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range ArchiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// StartType selects which pipeline the backend runs for a project
type StartType int

const (
	StartFull         StartType = 0 // Full audit (analysis + dynamic verification)
	StartAnalysisOnly StartType = 1 // Code analysis only
)

func (s StartType) String() string {
	if s == StartAnalysisOnly {
		return "analysis"
	}
	return "full"
}

// ============================================================================
// Audit records (shapes shared by the REST API and the live event stream)
// ============================================================================

// Vuln represents a single finding produced by the audit
type Vuln struct {
	ID               string `json:"vuln_id" yaml:"vuln_id"`
	Title            string `json:"title" yaml:"title"`
	Type             string `json:"type" yaml:"type"`
	Confidence       string `json:"confidence" yaml:"confidence"`
	Status           string `json:"status" yaml:"status"`
	File             string `json:"file" yaml:"file"`
	FunctionOrMethod string `json:"function_or_method" yaml:"function_or_method"`
	RouteOrEndpoint  string `json:"route_or_endpoint" yaml:"route_or_endpoint"`
	Params           string `json:"params" yaml:"params"`
	PayloadIdea      string `json:"payload_idea" yaml:"payload_idea"`
	ExpectedImpact   string `json:"expected_impact" yaml:"expected_impact"`
}

// Container represents a container the backend started for dynamic verification
type Container struct {
	ID      string   `json:"containerId"`
	IP      string   `json:"containerIP"`
	Image   string   `json:"image"`
	WebPort []string `json:"webPort"`
}

// ReportList maps report id to report name
type ReportList map[string]string

// LoginInfo holds credentials discovered for the target application
type LoginInfo struct {
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	LoginURL    string `json:"loginURL,omitempty"`
	Credentials string `json:"credentials,omitempty"`
}

// DBInfo holds database connection details for the target environment
type DBInfo struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Host     string `json:"Host,omitempty"`
	Base     string `json:"Base,omitempty"`
}

// EnvInfo describes the environment the audit is running against
type EnvInfo struct {
	ContainerID string     `json:"containerId,omitempty"`
	LoginInfo   *LoginInfo `json:"loginInfo,omitempty"`
	DBInfo      *DBInfo    `json:"dbInfo,omitempty"`
	RouteInfo   []string   `json:"routeInfo,omitempty"`
}

// VulnStatusUpdate changes the status of an existing vulnerability
type VulnStatusUpdate struct {
	VulnID string `json:"vuln_id"`
	Status string `json:"status"`
}

// ContainerRemove removes every container with the given id
type ContainerRemove struct {
	ContainerID string `json:"containerId"`
}

// ProjectDetail is the full project record returned by GET /projects/{name}
type ProjectDetail struct {
	ProjectName   string      `json:"projectName"`
	ContainerList []Container `json:"containerList"`
	EventLog      []string    `json:"eventLog"`
	VulnList      []Vuln      `json:"vulnList"`
	ReportList    ReportList  `json:"reportList"`
	Status        string      `json:"status"`
	StartTime     string      `json:"startTime"`
	EndTime       string      `json:"endTime"`
	EnvInfo       *EnvInfo    `json:"EnvInfo,omitempty"`
}

// ProjectSummary is one row of the projects list
type ProjectSummary struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	VulnCount int    `json:"vulnCount"`
}

// APIResponse is the envelope every REST endpoint answers with
type APIResponse[T any] struct {
	Success bool    `json:"success"`
	Result  *T      `json:"result"`
	Error   *string `json:"error"`
}

// ErrorMessage returns the error text or an empty string
func (r APIResponse[T]) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// ============================================================================
// Client-side state
// ============================================================================

// ConnectionState tracks the live channel as seen by the presentation layer
type ConnectionState struct {
	Connected   bool
	Project     string
	LastChange  time.Time
	LastError   string
	Reconnects  int
	FramesTotal int
}
