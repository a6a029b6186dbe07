package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bastion-hq/aegis/pkg/audit"
	"bastion-hq/aegis/pkg/audit/recorder"
	auditstorage "bastion-hq/aegis/pkg/audit/storage"
	"bastion-hq/aegis/pkg/config"
	"bastion-hq/aegis/pkg/limits/ratelimit"
	counterstorage "bastion-hq/aegis/pkg/limits/storage"
	"bastion-hq/aegis/pkg/policy/engine"
	"bastion-hq/aegis/pkg/policy/engine/source"
	"bastion-hq/aegis/pkg/security/auth"
	"bastion-hq/aegis/pkg/security/keys"
	"bastion-hq/aegis/pkg/telemetry/metrics"
	"bastion-hq/aegis/pkg/telemetry/tracing"
	"bastion-hq/aegis/pkg/waf/anomaly"
	"bastion-hq/aegis/pkg/waf/pipeline"
	"bastion-hq/aegis/pkg/waf/reputation"
)

// components holds everything built from a Config. Fields for stages that
// are not configured stay nil.
type components struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics   metrics.Sink
	collector *metrics.Collector
	tracer    *tracing.Tracer
	keyring   *keys.Keyring
	sink      audit.Sink
	kafka     *auditstorage.KafkaWriter
	recorder  *recorder.Recorder
	engine    *engine.Engine
	counters  counterstorage.CounterStore
	pipeline  *pipeline.Pipeline

	closers []func() error
}

func (c *components) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases resources in reverse construction order.
func (c *components) Close() error {
	var errs []error
	for _, fn := range slices.Backward(c.closers) {
		errs = append(errs, fn())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func newComponents(cfg *config.Config, logger *slog.Logger) *components {
	c := &components{cfg: cfg, logger: logger, metrics: metrics.Nop{}, tracer: tracing.Noop()}
	if cfg.Metrics.Enabled {
		c.collector = metrics.NewCollector(metrics.Config{
			Namespace:          cfg.Metrics.Namespace,
			MaxRuleCardinality: cfg.Metrics.MaxRuleCardinality,
		}, prometheus.NewRegistry())
		c.metrics = c.collector
	}
	return c
}

// buildTracer replaces the noop tracer when tracing is enabled.
func (c *components) buildTracer(ctx context.Context) error {
	tc := c.cfg.Tracing
	t, err := tracing.New(ctx, tracing.Config{
		Enabled:        tc.Enabled,
		Endpoint:       tc.Endpoint,
		Insecure:       tc.Insecure,
		Timeout:        tc.Timeout,
		Sampler:        tc.Sampler,
		SampleRatio:    tc.SampleRatio,
		ServiceName:    tc.ServiceName,
		ServiceVersion: Version,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	c.tracer = t
	c.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), tc.Timeout)
		defer cancel()
		return t.Shutdown(ctx)
	})
	return nil
}

// buildAuth returns nil when no API keys are configured.
func (c *components) buildAuth() (*auth.Validator, error) {
	if len(c.cfg.Server.APIKeys) == 0 {
		return nil, nil
	}
	keys := make([]auth.APIKey, 0, len(c.cfg.Server.APIKeys))
	for _, k := range c.cfg.Server.APIKeys {
		keys = append(keys, auth.APIKey{Key: k.Key, Client: auth.Client{Name: k.Name, Enabled: !k.Disabled}})
	}
	return auth.NewValidator(keys)
}

func (c *components) buildKeyring() error {
	kc := c.cfg.Keys
	svc, err := keys.NewHTTPService(keys.HTTPServiceConfig{
		BaseURL:    kc.BaseURL,
		Token:      kc.Token,
		Timeout:    kc.Timeout,
		MaxRetries: kc.MaxRetries,
		RetryDelay: kc.RetryDelay,
	})
	if err != nil {
		return fmt.Errorf("key service: %w", err)
	}
	c.keyring = keys.NewKeyring(svc, keys.Config{
		CacheTTL:     kc.CacheTTL,
		MaxCacheSize: kc.MaxCacheSize,
		KeySpec:      kc.KeySpec,
	}, c.logger)
	return nil
}

// buildSink opens the primary audit sink and, when brokers are configured,
// tees every batch to Kafka.
func (c *components) buildSink() error {
	ac := c.cfg.Audit
	var primary audit.Sink
	switch ac.Sink {
	case "memory":
		primary = auditstorage.NewMemoryStorage()
	case "sqlite":
		s, err := auditstorage.NewSQLiteStorage(&auditstorage.SQLiteConfig{
			Path:         ac.SQLite.Path,
			MaxOpenConns: ac.SQLite.MaxOpenConns,
			MaxIdleConns: ac.SQLite.MaxIdleConns,
			WALMode:      ac.SQLite.WALMode,
			BusyTimeout:  ac.SQLite.BusyTimeout,
		}, c.logger)
		if err != nil {
			return err
		}
		primary = s
	default:
		return fmt.Errorf("unsupported audit sink %q", ac.Sink)
	}

	if !ac.Kafka.Enabled() {
		c.sink = primary
		c.onClose(primary.Close)
		return nil
	}
	kw, err := auditstorage.NewKafkaWriter(auditstorage.KafkaConfig{
		Brokers:    ac.Kafka.Brokers,
		Topic:      ac.Kafka.Topic,
		AlertTopic: ac.Kafka.AlertTopic,
		ClientID:   ac.Kafka.ClientID,
	}, c.logger)
	if err != nil {
		_ = primary.Close()
		return err
	}
	c.kafka = kw
	c.sink = auditstorage.NewTee(primary, c.logger, kw)
	c.onClose(c.sink.Close)
	return nil
}

// buildRecorder requires the keyring and sink.
func (c *components) buildRecorder() error {
	ac := c.cfg.Audit
	escalator := recorder.Escalators{recorder.NewMetricEscalator(c.metrics)}
	if c.kafka != nil {
		escalator = append(escalator, c.kafka)
	}
	rec, err := recorder.New(recorder.Config{
		BatchSize:          ac.BatchSize,
		FlushInterval:      ac.FlushInterval,
		MaxPending:         ac.MaxPending,
		WriteTimeout:       ac.WriteTimeout,
		EscalationTimeout:  ac.EscalationTimeout,
		RetentionDays:      ac.RetentionDays,
		Environment:        ac.Environment,
		Version:            Version,
		DecryptConcurrency: ac.DecryptConcurrency,
	}, recorder.Deps{
		Sink:      c.sink,
		Sealer:    recorder.NewSealer(c.keyring, c.cfg.Keys.KeyID, c.logger),
		Escalator: escalator,
		Metrics:   c.metrics,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.recorder = rec
	c.onClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), ac.WriteTimeout)
		defer cancel()
		return rec.Close(ctx)
	})
	return nil
}

// buildAudit builds the keyring, sink and recorder.
func (c *components) buildAudit() error {
	if err := c.buildKeyring(); err != nil {
		return err
	}
	if err := c.buildSink(); err != nil {
		return err
	}
	return c.buildRecorder()
}

// buildEngine loads static rules once. Hot reload is started by serve.
func (c *components) buildEngine(rulesPath string) error {
	c.engine = engine.NewEngine(c.logger)
	if rulesPath == "" {
		return nil
	}
	rules, err := source.Load(rulesPath)
	if err != nil {
		return err
	}
	return c.engine.ReplaceStaticRules(rules)
}

func (c *components) buildCounterStore(ctx context.Context) error {
	rc := c.cfg.RateLimit
	var (
		store counterstorage.CounterStore
		err   error
	)
	switch rc.Store {
	case "memory":
		store = counterstorage.NewMemoryStoreWithCleanup(time.Minute)
	case "redis":
		store, err = counterstorage.NewRedisStoreFromConfig(ctx, counterstorage.RedisConfig{
			URL:         rc.Redis.URL,
			PoolSize:    rc.Redis.PoolSize,
			DialTimeout: rc.Redis.DialTimeout,
		})
	case "sqlite":
		store, err = counterstorage.NewSQLiteStore(counterstorage.SQLiteStoreConfig{
			DBPath:             rc.SQLite.Path,
			CheckpointInterval: rc.SQLite.CheckpointInterval,
			BusyTimeout:        rc.SQLite.BusyTimeout,
		})
	default:
		err = fmt.Errorf("unsupported counter store %q", rc.Store)
	}
	if err != nil {
		return fmt.Errorf("counter store: %w", err)
	}
	c.counters = store
	c.onClose(store.Close)
	return nil
}

// stageOptions selects which remote stages a pipeline gets.
type stageOptions struct {
	rateLimit bool
	remote    bool
}

// buildPipeline assembles the pipeline around rec. The engine must be built.
func (c *components) buildPipeline(ctx context.Context, rec pipeline.Recorder, opts stageOptions) error {
	deps := pipeline.Deps{
		Rules:    c.engine,
		Recorder: rec,
		Metrics:  c.metrics,
		Tracer:   c.tracer,
		Logger:   c.logger,
	}

	if opts.remote && c.cfg.Reputation.Enabled() {
		rc := c.cfg.Reputation
		svc, err := reputation.NewHTTPService(rc.URL, rc.APIKey, rc.LookupTimeout)
		if err != nil {
			return err
		}
		deps.Reputation = reputation.NewGate(svc, reputation.Config{
			Threshold:     rc.Threshold,
			CacheTTL:      rc.CacheTTL,
			LookupTimeout: rc.LookupTimeout,
		}, c.logger)
	}

	if opts.remote && c.cfg.Anomaly.Enabled() {
		ac := c.cfg.Anomaly
		inf, err := anomaly.NewHTTPInference(ac.Endpoint, ac.APIKey)
		if err != nil {
			return err
		}
		deps.Detector = anomaly.NewDetector(inf, anomaly.Config{
			Threshold: ac.Threshold,
			Timeout:   ac.Timeout,
		}, c.logger)
	}

	if opts.rateLimit && c.cfg.RateLimit.Enabled {
		if err := c.buildCounterStore(ctx); err != nil {
			return err
		}
		rc := c.cfg.RateLimit
		limiter, err := ratelimit.NewLimiter(ratelimit.Config{
			Points:        rc.Points,
			Duration:      rc.Duration,
			BlockDuration: rc.BlockDuration,
			KeyPrefix:     rc.KeyPrefix,
		}, c.counters, c.logger)
		if err != nil {
			return err
		}
		deps.Limiter = limiter
	}

	p, err := pipeline.New(pipeline.Config{
		BypassTokens:    c.cfg.Pipeline.BypassTokens,
		IdentityHeader:  c.cfg.Pipeline.IdentityHeader,
		ComplianceFlags: c.cfg.Pipeline.ComplianceFlags,
	}, deps)
	if err != nil {
		return err
	}
	c.pipeline = p
	return nil
}
