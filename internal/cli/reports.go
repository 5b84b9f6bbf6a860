package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type reportsOptions struct {
	id  string
	all bool
	out string
}

func newReportsCmd(g *globals) *cobra.Command {
	opts := &reportsOptions{}
	cmd := &cobra.Command{
		Use:   "reports <project>",
		Short: "List, print or download audit reports",
		Long: `Without flags, list the reports of a project.

  --id ID          print one report, or save it with --out
  --all --out F    download every report as a zip archive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, g, func(ctx context.Context, e *env) error {
				return runReports(ctx, cmd, e, args[0], opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.id, "id", "", "report id")
	cmd.Flags().BoolVar(&opts.all, "all", false, "download all reports as a zip archive")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write to this file instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("id", "all")
	return cmd
}

func runReports(ctx context.Context, cmd *cobra.Command, e *env, project string, opts *reportsOptions) error {
	out := cmd.OutOrStdout()

	switch {
	case opts.all:
		if opts.out == "" {
			return errors.New("--all needs --out")
		}
		n, err := writeFile(opts.out, func(w io.Writer) (int64, error) {
			return e.client.DownloadAllReports(ctx, project, w)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s (%d bytes)\n", opts.out, n)
		return nil

	case opts.id != "" && opts.out != "":
		n, err := writeFile(opts.out, func(w io.Writer) (int64, error) {
			return e.client.DownloadReport(ctx, project, opts.id, w)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s (%d bytes)\n", opts.out, n)
		return nil

	case opts.id != "":
		content, err := e.client.ReportContent(ctx, project, opts.id)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, content)
		return nil
	}

	reports, err := e.client.Reports(ctx, project)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(out, "No reports.")
		return nil
	}
	ids := make([]string, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return reports[ids[i]] < reports[ids[j]] })

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\n", id, reports[id])
	}
	return w.Flush()
}

// writeFile streams into path and removes it again if the download fails
func writeFile(path string, fn func(w io.Writer) (int64, error)) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := fn(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}
