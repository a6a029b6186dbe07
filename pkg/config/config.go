package config

import "time"

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Keys       KeysConfig       `yaml:"keys"`
	Reputation ReputationConfig `yaml:"reputation"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Anomaly    AnomalyConfig    `yaml:"anomaly"`
	Rules      RulesConfig      `yaml:"rules"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Audit      AuditConfig      `yaml:"audit"`
	Secrets    SecretsConfig    `yaml:"secrets"`
}

// SecretsConfig configures resolution of ${secret:name} references in
// keys.token, reputation.api_key, anomaly.api_key and
// pipeline.bypass_tokens.
type SecretsConfig struct {
	// EnvPrefix namespaces secret variables.
	// Default: "BASTION_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret. Files are consulted after the
	// environment when set.
	Dir string `yaml:"dir"`
}

// ServerConfig configures the evaluation API server.
type ServerConfig struct {
	// ListenAddress is the TCP address to bind.
	// Default: ":8080"
	ListenAddress string `yaml:"listen_address"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds a single evaluation, including remote calls.
	// Default: 5s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	MaxHeaderBytes int   `yaml:"max_header_bytes"`
	MaxBodyBytes   int64 `yaml:"max_body_bytes"`

	// APIKeys authenticate callers of POST /v1/evaluate. The endpoint is
	// open when the list is empty.
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig is one caller credential. Key may be a ${secret:name}
// reference.
type APIKeyConfig struct {
	Name     string `yaml:"name"`
	Key      string `yaml:"key"`
	Disabled bool   `yaml:"disabled"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is json or text.
	// Default: "json"
	Format string `yaml:"format"`

	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks tokens and key material in log attributes.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	// Enabled exposes GET /metrics.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every series.
	// Default: "bastion"
	Namespace string `yaml:"namespace"`

	// MaxRuleCardinality caps distinct rule_id label values.
	// Default: 1000
	MaxRuleCardinality int `yaml:"max_rule_cardinality"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string        `yaml:"endpoint"`
	Insecure bool          `yaml:"insecure"`
	Timeout  time.Duration `yaml:"timeout"`

	// Sampler is always, never or ratio.
	// Default: "ratio" with SampleRatio 0.1
	Sampler     string  `yaml:"sampler"`
	SampleRatio float64 `yaml:"sample_ratio"`

	// Default: "bastion"
	ServiceName string `yaml:"service_name"`
}

// KeysConfig configures the key service client and the data key cache.
type KeysConfig struct {
	// BaseURL is the key service endpoint. Required.
	BaseURL string `yaml:"base_url"`

	// Token is sent as a bearer token. Prefer BASTION_KEYS_TOKEN.
	Token string `yaml:"token"`

	// KeyID names the master key audit payloads are sealed under. Required.
	KeyID string `yaml:"key_id"`

	// KeySpec is the data key algorithm requested from the service.
	// Default: "AES_256"
	KeySpec string `yaml:"key_spec"`

	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// CacheTTL is how long plaintext data keys stay cached.
	// Default: 1h
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	MaxCacheSize int           `yaml:"max_cache_size"`
}

// ReputationConfig configures the IP reputation gate. The gate is enabled
// when URL is set.
type ReputationConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`

	// Threshold is the minimum score allowed through.
	// Default: 50
	Threshold     float64       `yaml:"threshold"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
}

// Enabled reports whether a reputation service is configured.
func (c ReputationConfig) Enabled() bool { return c.URL != "" }

// RateLimitConfig configures the per-identity rate limiter.
type RateLimitConfig struct {
	// Enabled turns the rate limit stage on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Points is the number of requests allowed per Duration.
	// Default: 100
	Points   int64         `yaml:"points"`
	Duration time.Duration `yaml:"duration"`

	// BlockDuration keeps an identity blocked after it exceeds its points.
	// Zero blocks only until the window resets.
	BlockDuration time.Duration `yaml:"block_duration"`

	KeyPrefix string `yaml:"key_prefix"`

	// Store is memory, redis or sqlite.
	// Default: "memory"
	Store  string              `yaml:"store"`
	Redis  RedisConfig         `yaml:"redis"`
	SQLite SQLiteCounterConfig `yaml:"sqlite"`
}

// RedisConfig configures the distributed counter store.
type RedisConfig struct {
	URL         string        `yaml:"url"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// SQLiteCounterConfig configures the local durable counter store.
type SQLiteCounterConfig struct {
	Path               string        `yaml:"path"`
	BusyTimeout        time.Duration `yaml:"busy_timeout"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// AnomalyConfig configures the inference-backed anomaly detector. The
// detector is enabled when Endpoint is set.
type AnomalyConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`

	// Threshold is the confidence above which a request is a threat.
	// Default: 0.85
	Threshold float64       `yaml:"threshold"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Enabled reports whether an inference endpoint is configured.
func (c AnomalyConfig) Enabled() bool { return c.Endpoint != "" }

// RulesConfig configures the static rule source.
type RulesConfig struct {
	// Path is a rule file or a directory of *.yaml rule files. Empty runs
	// without static rules.
	Path string `yaml:"path"`

	// Watch reloads rules when the files change.
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// PipelineConfig configures request evaluation.
type PipelineConfig struct {
	// BypassTokens skip the rate limit stage when presented.
	BypassTokens []string `yaml:"bypass_tokens"`

	// IdentityHeader names the header identifying the caller for rate
	// limiting. Empty uses the source IP.
	IdentityHeader string `yaml:"identity_header"`

	// ComplianceFlags are attached to every decision audit event.
	ComplianceFlags []string `yaml:"compliance_flags"`
}

// AuditConfig configures the audit recorder and its sinks.
type AuditConfig struct {
	BatchSize          int           `yaml:"batch_size"`
	FlushInterval      time.Duration `yaml:"flush_interval"`
	MaxPending         int           `yaml:"max_pending"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	EscalationTimeout  time.Duration `yaml:"escalation_timeout"`
	DecryptConcurrency int           `yaml:"decrypt_concurrency"`

	// RetentionDays is passed to the sink with every batch. Zero keeps
	// events forever.
	// Default: 365
	RetentionDays int `yaml:"retention_days"`

	// Environment is stamped on every event.
	// Default: "production"
	Environment string `yaml:"environment"`

	// Sink is sqlite or memory.
	// Default: "sqlite"
	Sink   string            `yaml:"sink"`
	SQLite AuditSQLiteConfig `yaml:"sqlite"`
	Kafka  KafkaConfig       `yaml:"kafka"`

	Retention RetentionConfig `yaml:"retention"`
}

// AuditSQLiteConfig configures the SQLite audit sink.
type AuditSQLiteConfig struct {
	Path         string        `yaml:"path"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	WALMode      bool          `yaml:"wal_mode"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// KafkaConfig configures the optional Kafka mirror. Events are mirrored and
// escalations published when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	AlertTopic string   `yaml:"alert_topic"`
	ClientID   string   `yaml:"client_id"`
}

// Enabled reports whether the Kafka mirror is configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// RetentionConfig configures scheduled pruning of expired events.
type RetentionConfig struct {
	// Schedule is a cron expression. Empty disables pruning.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}
