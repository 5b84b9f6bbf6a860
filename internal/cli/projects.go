package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProjectsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "projects",
		Aliases: []string{"ls"},
		Short:   "List projects with their status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, g, func(ctx context.Context, e *env) error {
				projects, err := e.client.Summaries(ctx)
				if err != nil {
					return err
				}
				if len(projects) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tSTATUS\tVULNS")
				for _, p := range projects {
					fmt.Fprintf(w, "%s\t%s\t%d\n", p.Name, p.Status, p.VulnCount)
				}
				return w.Flush()
			})
		},
	}
}

// withEnv runs fn with a non-interactive environment bounded by the
// configured request timeout
func withEnv(cmd *cobra.Command, g *globals, fn func(ctx context.Context, e *env) error) error {
	e, err := g.setup(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	if e.cfg.Backend.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Backend.Timeout)
		defer cancel()
	}
	return fn(ctx, e)
}
