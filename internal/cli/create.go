package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auditwatch/auditwatch/internal/gateway"
)

func newCreateCmd(g *globals) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "create <name> <archive>",
		Short: "Upload a source archive as a new project",
		Long: `Upload a source archive (.zip, .tar, .tar.gz or .tgz) to the backend and
create a project from it. Project names may contain letters, digits,
underscores and dashes.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, archive := args[0], args[1]
			if err := gateway.ValidateUpload(name, archive); err != nil {
				return err
			}
			return withEnv(cmd, g, func(ctx context.Context, e *env) error {
				out := cmd.OutOrStdout()
				last := -1
				progress := func(percent int) {
					if quiet || percent == last {
						return
					}
					last = percent
					fmt.Fprintf(out, "\ruploading %s: %3d%%", name, percent)
				}
				msg, err := e.client.CreateProject(ctx, name, archive, progress)
				if last >= 0 {
					fmt.Fprintln(out)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(out, orDefault(msg, "created "+name))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print upload progress")
	return cmd
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
