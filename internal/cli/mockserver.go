package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/auditwatch/auditwatch/internal/mockserver"
)

func newMockServerCmd(g *globals) *cobra.Command {
	var (
		addr string
		tick time.Duration
		bare bool
	)
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run the simulated audit backend",
		Long: `Serve the simulated audit backend on --addr. Projects started through
it emit a scripted audit, one event per --tick, over the live stream.

Credentials come from the backend section of the config, so a dashboard
using the same config can log in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := g.setup(ctx, false)
			if err != nil {
				return err
			}
			defer e.close()

			srv := mockserver.New(mockserver.Options{
				Username: e.cfg.Backend.Username,
				Password: e.cfg.Backend.Password,
				Tick:     tick,
				Logger:   e.logger,
			})
			if !bare {
				mockserver.SeedDemo(srv)
			}
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9999", "listen address")
	cmd.Flags().DurationVar(&tick, "tick", time.Second, "pause between simulated events")
	cmd.Flags().BoolVar(&bare, "empty", false, "start without demo projects")
	return cmd
}
