package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auditwatch/auditwatch/internal/state"
	"github.com/auditwatch/auditwatch/internal/ui"
	"github.com/auditwatch/auditwatch/internal/watch"
)

func newWatchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [project]",
		Short: "Open the dashboard",
		Long: `Open the interactive dashboard.

When a project is given it is selected on startup, otherwise the project
selected when the dashboard was last closed is restored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := ""
			if len(args) == 1 {
				project = args[0]
			}
			return runWatch(cmd, g, project)
		},
	}
}

func runWatch(cmd *cobra.Command, g *globals, project string) error {
	e, err := g.setup(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer e.close()

	uiState, err := state.Load()
	if err != nil {
		e.logger.Warn("load ui state, using defaults", zap.Error(err))
		uiState = state.DefaultState()
	}
	if project != "" {
		uiState.LastProject = project
	}

	// The dashboard enables the channel once the selected project is running
	live := e.session("", false, nil, watch.Options{})
	defer live.Close()

	app := ui.NewApp(e.cfg, uiState, e.client, live, e.logger)
	final, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
	if err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}
	if err := e.client.LastError(); err != nil {
		e.logger.Info("last backend error", zap.Error(err))
	}

	if a, ok := final.(*ui.App); ok {
		if s := a.GetState(); s != nil {
			if err := state.Save(s); err != nil {
				e.logger.Warn("save ui state", zap.Error(err))
			}
		}
	}
	return nil
}
