package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"bastion-hq/aegis/pkg/cli"
	"bastion-hq/aegis/pkg/config"
	"bastion-hq/aegis/pkg/security/secrets"
	"bastion-hq/aegis/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "Bastion - request security enforcement and audit",
	Long: `Bastion evaluates inbound requests through an ordered set of security
checks and records every decision in an encrypted audit trail:

  - IP reputation gate (fails open when the reputation service is down)
  - Per-identity rate limiting backed by memory, Redis or SQLite
  - Anomaly detection through an inference endpoint (fails open)
  - Static and custom rules loaded from YAML files

Audit events are sealed with envelope encryption under data keys from the
key service, buffered, and flushed in batches to SQLite with an optional
Kafka mirror.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	var exit *cli.ExitError
	if err != nil && !(errors.As(err, &exit) && exit.Err == nil) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and BASTION_* variables only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// loadConfig loads the configuration named by --config with environment
// overrides applied and secret references resolved.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewExitError(cli.ExitUsage, err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := resolveSecrets(context.Background(), cfg); err != nil {
		return nil, cli.NewExitError(cli.ExitUsage, err)
	}
	return cfg, nil
}

// resolveSecrets replaces ${secret:name} references in credential fields
// and validates the result again.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	providers := []secrets.Provider{secrets.NewEnvProvider(cfg.Secrets.EnvPrefix)}
	if cfg.Secrets.Dir != "" {
		fp, err := secrets.NewFileProvider(cfg.Secrets.Dir)
		if err != nil {
			return err
		}
		providers = append(providers, fp)
	}

	fields := map[string]*string{
		"keys.token":         &cfg.Keys.Token,
		"reputation.api_key": &cfg.Reputation.APIKey,
		"anomaly.api_key":    &cfg.Anomaly.APIKey,
	}
	for i := range cfg.Server.APIKeys {
		fields[fmt.Sprintf("server.api_keys[%d].key", i)] = &cfg.Server.APIKeys[i].Key
	}
	for i := range cfg.Pipeline.BypassTokens {
		fields[fmt.Sprintf("pipeline.bypass_tokens[%d]", i)] = &cfg.Pipeline.BypassTokens[i]
	}
	if err := secrets.NewManager(slog.Default(), providers...).ResolveAll(ctx, fields); err != nil {
		return fmt.Errorf("failed to resolve secrets: %w", err)
	}
	return config.Validate(cfg)
}

// newLogger builds the process logger and installs it as the default.
func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:         cfg.Level,
		Format:        cfg.Format,
		AddSource:     cfg.AddSource,
		RedactSecrets: cfg.RedactSecrets,
		Writer:        os.Stderr,
	})
	if err != nil {
		return nil, cli.NewExitError(cli.ExitUsage, err)
	}
	slog.SetDefault(logger)
	return logger, nil
}
