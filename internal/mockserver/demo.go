package mockserver

import (
	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/snapshot"
)

// Demo project names seeded by SeedDemo
const (
	DemoFinished = "demo-shop"
	DemoIdle     = "demo-blog"
)

// SeedDemo loads one finished audit and one project that has never run, so
// a fresh mock backend has something to list and something to start
func SeedDemo(s *Server) {
	snap := snapshot.FromDetail(models.ProjectDetail{
		ProjectName: DemoFinished,
		Status:      models.StatusRunning,
		StartTime:   "2026-10-01 09:00:00",
	})
	for _, e := range script(DemoFinished, models.StartFull) {
		snap.Apply(e)
	}
	finished := snap.Detail()
	finished.EndTime = "2026-10-01 09:42:00"
	s.Seed(finished)

	s.Seed(models.ProjectDetail{
		ProjectName: DemoIdle,
		Status:      models.StatusNotRunning,
	})
}
