// Package cli wires the auditwatch commands together.
package cli

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/auditwatch/auditwatch/internal/channel"
	"github.com/auditwatch/auditwatch/internal/config"
	"github.com/auditwatch/auditwatch/internal/gateway"
	"github.com/auditwatch/auditwatch/internal/logging"
	"github.com/auditwatch/auditwatch/internal/metrics"
	"github.com/auditwatch/auditwatch/internal/mockserver"
	"github.com/auditwatch/auditwatch/internal/watch"
)

// globals are the persistent flags shared by every command
type globals struct {
	configPath string
	logLevel   string
	mock       bool
}

// env is what a command needs to talk to the backend
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	client *gateway.Client

	stopMock func()
}

func (e *env) close() {
	if e.stopMock != nil {
		e.stopMock()
	}
	_ = e.logger.Sync()
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "auditwatch",
		Short: "Follow code audit projects live from the terminal",
		Long: `auditwatch is a terminal dashboard for a code audit backend.

It lists projects, starts and cancels audits, and follows a running audit
over the backend's live event stream as findings, containers, log lines and
reports arrive.

Running auditwatch without a subcommand opens the dashboard.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, g, "")
		},
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/auditwatch/config.yml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&g.mock, "mock", false, "run against an in-process simulated backend")

	root.AddCommand(
		newWatchCmd(g),
		newTailCmd(g),
		newProjectsCmd(g),
		newCreateCmd(g),
		newStartCmd(g),
		newCancelCmd(g),
		newDeleteCmd(g),
		newReportsCmd(g),
		newMockServerCmd(g),
	)
	return root
}

// Execute runs the root command
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}

func (g *globals) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, _, err = config.LoadFile(g.configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	return cfg, nil
}

// setup loads configuration, builds the logger and the REST client, and
// starts the simulated backend when --mock is set. Interactive commands
// log to a file so the terminal stays with the UI.
func (g *globals) setup(ctx context.Context, interactive bool) (*env, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := cfg.LogConfig(interactive)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	e := &env{cfg: cfg, logger: logger}
	if g.mock {
		if err := e.startMock(ctx); err != nil {
			logger.Error("start mock backend", zap.Error(err))
			return nil, err
		}
	}

	e.client = gateway.NewClient(gateway.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Username:  cfg.Backend.Username,
		Password:  cfg.Backend.Password,
		Timeout:   cfg.Backend.Timeout,
		RetryMax:  cfg.Backend.RetryMax,
		RateLimit: cfg.Backend.RateLimit,
	}, logger)
	return e, nil
}

// startMock serves a seeded simulated backend on a loopback port and points
// the configuration at it
func (e *env) startMock(ctx context.Context) error {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := mockserver.New(mockserver.Options{
		Username: e.cfg.Backend.Username,
		Password: e.cfg.Backend.Password,
		Tick:     time.Second,
		Logger:   e.logger,
	})
	mockserver.SeedDemo(srv)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx, l); err != nil {
			e.logger.Warn("mock backend stopped", zap.Error(err))
		}
	}()
	e.stopMock = func() {
		cancel()
		<-done
	}

	e.cfg.Backend.BaseURL = "http://" + l.Addr().String()
	e.cfg.Backend.WSBase = ""
	e.logger.Info("using mock backend", zap.String("url", e.cfg.Backend.BaseURL))
	return nil
}

// session opens a live session for project
func (e *env) session(project string, enabled bool, m *metrics.Channel, opts watch.Options) *watch.Session {
	opts.Project = project
	opts.Logger = e.logger
	opts.Metrics = m
	opts.Channel = channel.Options{
		BaseURL:        e.cfg.WebsocketBase(),
		Path:           e.cfg.Backend.WSPath,
		Enabled:        enabled,
		AutoReconnect:  e.cfg.Channel.AutoReconnect,
		ReconnectDelay: e.cfg.Channel.ReconnectDelay,
		Dialer: channel.WebsocketDialer{
			Username:  e.cfg.Backend.Username,
			Password:  e.cfg.Backend.Password,
			ReadLimit: e.cfg.Channel.ReadLimit,
		},
		OnError: func(err error) {
			e.logger.Debug("live channel error", zap.Error(err))
		},
	}
	return watch.New(opts)
}
