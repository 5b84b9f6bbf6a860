package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/auditwatch/auditwatch/internal/envelope"
	"github.com/auditwatch/auditwatch/internal/metrics"
	"github.com/auditwatch/auditwatch/internal/models"
	"github.com/auditwatch/auditwatch/internal/watch"
)

type tailOptions struct {
	metricsAddr string
	json        bool
	follow      bool
	lines       int
}

func newTailCmd(g *globals) *cobra.Command {
	opts := &tailOptions{}
	cmd := &cobra.Command{
		Use:   "tail <project>",
		Short: "Stream a project's live events to stdout",
		Long: `Print the recent event log of a project, then every event the backend
streams while the audit runs.

tail exits when the project stops running unless --follow is set, in which
case it stays connected until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTail(cmd, g, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print raw event frames as JSON lines")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "stay connected after the audit stops")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 20, "event log lines to print before streaming")
	return cmd
}

func runTail(cmd *cobra.Command, g *globals, project string, opts *tailOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := g.setup(ctx, false)
	if err != nil {
		return err
	}
	defer e.close()

	detail, err := e.client.ProjectDetail(ctx, project)
	if err != nil {
		return err
	}

	p := &printer{w: cmd.OutOrStdout(), json: opts.json}
	p.backlog(*detail, opts.lines)

	running := models.IsRunning(detail.Status)
	if !running && !opts.follow {
		p.note(fmt.Sprintf("%s is not running (%s)", project, detail.Status))
		return nil
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewChannel(reg)

	// Seed before dialing so no live frame is overwritten by the REST detail
	live := e.session(project, false, m, watch.Options{OnEnvelope: p.envelope})
	defer live.Close()
	live.Watch(project, detail)
	live.SetEnabled(true)

	grp, ctx := errgroup.WithContext(ctx)
	if opts.metricsAddr != "" {
		grp.Go(func() error {
			return serveMetrics(ctx, opts.metricsAddr, metrics.Handler(reg), e.logger)
		})
	}
	grp.Go(func() error {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-live.Changes():
				if !opts.follow && !live.Snapshot().Running() {
					return nil
				}
			}
		}
	})
	return grp.Wait()
}

func serveMetrics(ctx context.Context, addr string, h http.Handler, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// printer writes events as they arrive. Envelopes come from the channel
// goroutine so writes are serialised.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	json bool
}

func (p *printer) backlog(d models.ProjectDetail, n int) {
	lines := d.EventLog
	if n >= 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		if p.json {
			p.envelope(envelope.EventLog{Line: l}, true)
			continue
		}
		p.println(l)
	}
}

func (p *printer) note(s string) {
	if p.json {
		return
	}
	p.println("-- " + s)
}

func (p *printer) envelope(e envelope.Envelope, _ bool) {
	if p.json {
		raw, err := envelope.Encode(e)
		if err != nil {
			return
		}
		p.println(string(raw))
		return
	}
	if s := describe(e); s != "" {
		p.println(s)
	}
}

func (p *printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}

// describe renders an envelope as one human readable line
func describe(e envelope.Envelope) string {
	switch v := e.(type) {
	case envelope.EventLog:
		return v.Line
	case envelope.VulnAdd:
		return fmt.Sprintf("[vuln] %s %s (%s) %s", v.Vuln.ID, v.Vuln.Title, v.Vuln.Type, v.Vuln.Status)
	case envelope.VulnStatus:
		return fmt.Sprintf("[vuln] %s -> %s", v.VulnID, v.Status)
	case envelope.ContainerAdd:
		return fmt.Sprintf("[container] + %s %s %s", v.Container.ID, v.Container.IP, v.Container.Image)
	case envelope.ContainerRemove:
		return fmt.Sprintf("[container] - %s", v.ContainerID)
	case envelope.ReportAdd:
		names := make([]string, 0, len(v.Reports))
		for _, name := range v.Reports {
			names = append(names, name)
		}
		sort.Strings(names)
		return "[report] " + strings.Join(names, ", ")
	case envelope.EnvInfo:
		return "[env] " + v.Env.ContainerID
	case envelope.ProjectStatus:
		return "[status] " + v.Status
	case envelope.ProjectName:
		return ""
	default:
		return fmt.Sprintf("[%s]", e.Tag())
	}
}
