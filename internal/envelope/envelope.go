// Package envelope decodes the frames sent over the live audit event stream.
//
// Every frame is a JSON object {"type": <tag>, "data": <payload>} where the
// payload shape is fixed by the tag. Parse turns a frame into one of the
// concrete Envelope variants below; callers switch on the variant type.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/auditwatch/auditwatch/internal/models"
)

// ErrMalformedFrame is wrapped by every Parse failure
var ErrMalformedFrame = errors.New("malformed frame")

// Tag is the discriminant carried in a frame's "type" field
type Tag string

const (
	TagEventLog        Tag = "string"
	TagReportAdd       Tag = "ReportAdd"
	TagVulnStatus      Tag = "VulnStatus"
	TagVulnAdd         Tag = "VulnAdd"
	TagContainerAdd    Tag = "ContainerAdd"
	TagContainerRemove Tag = "ContainerRemove"
	TagEnvInfo         Tag = "EnvInfo"
	TagProjectName     Tag = "projectName"
	TagProjectStatus   Tag = "ProjectStatus"
)

// Tags lists the closed set of known tags
var Tags = []Tag{
	TagEventLog,
	TagReportAdd,
	TagVulnStatus,
	TagVulnAdd,
	TagContainerAdd,
	TagContainerRemove,
	TagEnvInfo,
	TagProjectName,
	TagProjectStatus,
}

// Frame is the wire shape of one message
type Frame struct {
	Type Tag             `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Envelope is one decoded message. The set of implementations is closed.
type Envelope interface {
	Tag() Tag
	envelope()
}

// EventLog is one line of the job's event log
type EventLog struct {
	Line string
}

// ReportAdd announces one or more generated reports
type ReportAdd struct {
	Reports models.ReportList
}

// VulnAdd announces a new vulnerability
type VulnAdd struct {
	Vuln models.Vuln
}

// VulnStatus changes the status of a known vulnerability
type VulnStatus struct {
	models.VulnStatusUpdate
}

// ContainerAdd announces a started container
type ContainerAdd struct {
	Container models.Container
}

// ContainerRemove announces a stopped container
type ContainerRemove struct {
	models.ContainerRemove
}

// EnvInfo replaces the environment description
type EnvInfo struct {
	Env models.EnvInfo
}

// ProjectName acknowledges the subscription target
type ProjectName struct {
	Name string
}

// ProjectStatus replaces the project status
type ProjectStatus struct {
	Status string
}

// Unknown carries a frame whose tag is not in Tags
type Unknown struct {
	Type Tag
	Data json.RawMessage
}

func (EventLog) Tag() Tag        { return TagEventLog }
func (ReportAdd) Tag() Tag       { return TagReportAdd }
func (VulnAdd) Tag() Tag         { return TagVulnAdd }
func (VulnStatus) Tag() Tag      { return TagVulnStatus }
func (ContainerAdd) Tag() Tag    { return TagContainerAdd }
func (ContainerRemove) Tag() Tag { return TagContainerRemove }
func (EnvInfo) Tag() Tag         { return TagEnvInfo }
func (ProjectName) Tag() Tag     { return TagProjectName }
func (ProjectStatus) Tag() Tag   { return TagProjectStatus }
func (u Unknown) Tag() Tag       { return u.Type }

func (EventLog) envelope()        {}
func (ReportAdd) envelope()       {}
func (VulnAdd) envelope()         {}
func (VulnStatus) envelope()      {}
func (ContainerAdd) envelope()    {}
func (ContainerRemove) envelope() {}
func (EnvInfo) envelope()         {}
func (ProjectName) envelope()     {}
func (ProjectStatus) envelope()   {}
func (Unknown) envelope()         {}

// Parse decodes one raw frame. An unrecognised tag yields Unknown and a nil
// error; everything else that cannot be decoded wraps ErrMalformedFrame.
func Parse(raw []byte) (Envelope, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch f.Type {
	case TagEventLog:
		var line string
		if err := decode(f, &line); err != nil {
			return nil, err
		}
		return EventLog{Line: line}, nil
	case TagReportAdd:
		var reports models.ReportList
		if err := decode(f, &reports); err != nil {
			return nil, err
		}
		return ReportAdd{Reports: reports}, nil
	case TagVulnAdd:
		var v models.Vuln
		if err := decode(f, &v); err != nil {
			return nil, err
		}
		if v.ID == "" {
			return nil, fmt.Errorf("%w: %s without vuln_id", ErrMalformedFrame, f.Type)
		}
		return VulnAdd{Vuln: v}, nil
	case TagVulnStatus:
		var u models.VulnStatusUpdate
		if err := decode(f, &u); err != nil {
			return nil, err
		}
		return VulnStatus{VulnStatusUpdate: u}, nil
	case TagContainerAdd:
		var c models.Container
		if err := decode(f, &c); err != nil {
			return nil, err
		}
		return ContainerAdd{Container: c}, nil
	case TagContainerRemove:
		var r models.ContainerRemove
		if err := decode(f, &r); err != nil {
			return nil, err
		}
		return ContainerRemove{ContainerRemove: r}, nil
	case TagEnvInfo:
		var e models.EnvInfo
		if err := decode(f, &e); err != nil {
			return nil, err
		}
		return EnvInfo{Env: e}, nil
	case TagProjectName:
		var name string
		if err := decode(f, &name); err != nil {
			return nil, err
		}
		return ProjectName{Name: name}, nil
	case TagProjectStatus:
		var status string
		if err := decode(f, &status); err != nil {
			return nil, err
		}
		return ProjectStatus{Status: status}, nil
	default:
		return Unknown{Type: f.Type, Data: f.Data}, nil
	}
}

func decode(f Frame, v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformedFrame, f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, f.Type, err)
	}
	return nil
}

// Encode renders an envelope back into its wire form
func Encode(e Envelope) ([]byte, error) {
	var data any
	switch v := e.(type) {
	case EventLog:
		data = v.Line
	case ReportAdd:
		data = v.Reports
	case VulnAdd:
		data = v.Vuln
	case VulnStatus:
		data = v.VulnStatusUpdate
	case ContainerAdd:
		data = v.Container
	case ContainerRemove:
		data = v.ContainerRemove
	case EnvInfo:
		data = v.Env
	case ProjectName:
		data = v.Name
	case ProjectStatus:
		data = v.Status
	case Unknown:
		return json.Marshal(Frame{Type: v.Type, Data: v.Data})
	default:
		return nil, fmt.Errorf("cannot encode %T", e)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: e.Tag(), Data: raw})
}
