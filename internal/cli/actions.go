package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auditwatch/auditwatch/internal/models"
)

func newStartCmd(g *globals) *cobra.Command {
	var analysisOnly bool
	cmd := &cobra.Command{
		Use:   "start <project>",
		Short: "Start an audit",
		Long: `Start an audit of a project. A full audit runs code analysis followed by
dynamic verification in containers; --analysis runs the code analysis only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startType := models.StartFull
			if analysisOnly {
				startType = models.StartAnalysisOnly
			}
			return withEnv(cmd, g, func(ctx context.Context, e *env) error {
				msg, err := e.client.StartProject(ctx, args[0], startType)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), orDefault(msg, fmt.Sprintf("started %s audit of %s", startType, args[0])))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&analysisOnly, "analysis", "a", false, "run code analysis only")
	return cmd
}

func newCancelCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <project>",
		Short: "Cancel a running audit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, g, func(ctx context.Context, e *env) error {
				msg, err := e.client.CancelProject(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), orDefault(msg, "cancelled "+args[0]))
				return nil
			})
		},
	}
}

func newDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <project>",
		Aliases: []string{"rm"},
		Short:   "Delete a project",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, g, func(ctx context.Context, e *env) error {
				msg, err := e.client.DeleteProject(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), orDefault(msg, "deleted "+args[0]))
				return nil
			})
		},
	}
}
