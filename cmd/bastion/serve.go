package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/audit/retention"
	"bastion-hq/aegis/pkg/cli"
	"bastion-hq/aegis/pkg/policy/engine/source"
	"bastion-hq/aegis/pkg/server"
	"bastion-hq/aegis/pkg/telemetry/health"
)

var serveFlags struct {
	listenAddress string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the evaluation API server",
	Long: `Start the evaluation API server with the specified configuration.

The server exposes POST /v1/evaluate, the /health and /ready probes, /version
and, when metrics are enabled, /metrics. Audit events are flushed and the
server drains in-flight requests on SIGINT or SIGTERM.

Examples:
  # Start with a config file
  bastion serve --config /etc/bastion/bastion.yaml

  # Override the listen address
  bastion serve --listen 0.0.0.0:9090

  # Validate config without starting the server
  bastion serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	c := newComponents(cfg, logger)
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("shutdown cleanup failed", "error", err)
		}
	}()

	if err := c.buildTracer(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	if err := c.buildAudit(); err != nil {
		return cli.NewCommandError("serve", err)
	}
	if err := c.buildEngine(cfg.Rules.Path); err != nil {
		return cli.NewCommandError("serve", err)
	}
	if err := c.buildPipeline(ctx, c.recorder, stageOptions{rateLimit: true, remote: true}); err != nil {
		return cli.NewCommandError("serve", err)
	}

	checker := health.New(0)
	checker.RegisterCheck("key_service", health.KeyServiceCheck(c.keyring, cfg.Keys.KeyID))
	checker.RegisterCheck("audit_buffer", health.AuditBufferCheck(c.recorder.Pending, cfg.Audit.MaxPending))
	if cfg.Rules.Path != "" {
		checker.RegisterCheck("rules", health.RulesCheck(func() int { return len(c.engine.StaticRules()) }))
	}

	var metricsHandler http.Handler
	if c.collector != nil {
		metricsHandler = c.collector.Handler()
	}
	validator, err := c.buildAuth()
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	if validator == nil {
		logger.Warn("no API keys configured, evaluation endpoint is unauthenticated")
	}

	srv, err := server.New(server.Config{
		ListenAddress:   cfg.Server.ListenAddress,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RequestTimeout:  cfg.Server.RequestTimeout,
		MaxHeaderBytes:  cfg.Server.MaxHeaderBytes,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	}, server.Deps{
		Evaluator: c.pipeline,
		Auth:      validator,
		Metrics:   metricsHandler,
		Health:    checker,
		Tracer:    c.tracer,
		Build:     server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate},
		Logger:    logger,
	})
	if err != nil {
		return cli.NewCommandError("serve", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.Rules.Watch && cfg.Rules.Path != "" {
		w := source.NewWatcher(cfg.Rules.Path, c.engine, cfg.Rules.Debounce, logger)
		g.Go(func() error { return w.Run(gctx) })
	}

	if pruneSink, ok := c.sink.(audit.Pruner); ok && cfg.Audit.Retention.Schedule != "" {
		pruner := retention.NewPruner(pruneSink, retention.Config{Schedule: cfg.Audit.Retention.Schedule}, logger)
		if err := pruner.Start(gctx); err != nil {
			return cli.NewCommandError("serve", err)
		}
		defer pruner.Stop()
		if next := pruner.NextPruning(); next != nil {
			logger.Info("audit retention scheduled", "next_pruning", next)
		}
	}

	logger.Info("bastion started",
		"version", Version,
		"listen_address", cfg.Server.ListenAddress,
		"audit_sink", cfg.Audit.Sink,
		"kafka_mirror", cfg.Audit.Kafka.Enabled(),
		"rate_limit_store", cfg.RateLimit.Store,
	)

	if err := g.Wait(); err != nil {
		return cli.NewCommandError("serve", err)
	}
	logger.Info("bastion stopped")
	return nil
}
