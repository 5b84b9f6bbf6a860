package mockserver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/auditwatch/auditwatch/internal/envelope"
	"github.com/auditwatch/auditwatch/internal/models"
)

// script is the sequence of events a simulated audit run emits after it
// has been marked running. Analysis-only runs skip dynamic verification.
func script(name string, startType models.StartType) []envelope.Envelope {
	containerID := fmt.Sprintf("%s-web-1", name)
	v1 := models.Vuln{
		ID:               name + "-v1",
		Title:            "SQL injection in login handler",
		Type:             "SQLi",
		Confidence:       "high",
		Status:           models.VulnPending,
		File:             "app/controllers/auth.php",
		FunctionOrMethod: "login",
		RouteOrEndpoint:  "/login",
		Params:           "username",
		PayloadIdea:      "' OR '1'='1",
		ExpectedImpact:   "authentication bypass",
	}
	v2 := models.Vuln{
		ID:               name + "-v2",
		Title:            "Reflected XSS in search",
		Type:             "XSS",
		Confidence:       "medium",
		Status:           models.VulnPending,
		File:             "app/views/search.php",
		FunctionOrMethod: "render",
		RouteOrEndpoint:  "/search",
		Params:           "q",
		PayloadIdea:      "<script>alert(1)</script>",
		ExpectedImpact:   "session theft",
	}

	events := []envelope.Envelope{
		envelope.EventLog{Line: "解压源码包"},
		envelope.EventLog{Line: "开始代码分析"},
		envelope.VulnAdd{Vuln: v1},
		envelope.VulnAdd{Vuln: v2},
		envelope.EventLog{Line: "代码分析完成，发现 2 个疑似漏洞"},
	}

	if startType == models.StartFull {
		events = append(events,
			envelope.EventLog{Line: "启动验证环境"},
			envelope.ContainerAdd{Container: models.Container{
				ID:      containerID,
				IP:      "172.18.0.2",
				Image:   "php:8.2-apache",
				WebPort: []string{"80"},
			}},
			envelope.EnvInfo{Env: models.EnvInfo{
				ContainerID: containerID,
				LoginInfo:   &models.LoginInfo{Username: "admin", Password: "admin123", LoginURL: "/login"},
				DBInfo:      &models.DBInfo{Username: "root", Password: "root", Host: "172.18.0.3", Base: name},
				RouteInfo:   []string{"/login", "/search", "/admin"},
			}},
			envelope.EventLog{Line: "动态验证 " + v1.ID},
			envelope.VulnStatus{VulnStatusUpdate: models.VulnStatusUpdate{VulnID: v1.ID, Status: models.VulnConfirmed}},
			envelope.EventLog{Line: "动态验证 " + v2.ID},
			envelope.VulnStatus{VulnStatusUpdate: models.VulnStatusUpdate{VulnID: v2.ID, Status: models.VulnFalsePositive}},
			envelope.ContainerRemove{ContainerRemove: models.ContainerRemove{ContainerID: containerID}},
		)
	}

	return append(events,
		envelope.ReportAdd{Reports: models.ReportList{name + "-r1": name + "-audit-report.md"}},
		envelope.EventLog{Line: "审计完成"},
		envelope.ProjectStatus{Status: models.StatusCompleted},
	)
}

// simulate publishes the script one event per tick until it runs out or
// ctx is cancelled
func (s *Server) simulate(ctx context.Context, name string, startType models.StartType, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for _, e := range script(name, startType) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.Publish(name, e)
	}

	s.store.finish(name)
	s.logger.Info("simulated audit finished", zap.String("project", name))
}
