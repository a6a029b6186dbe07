package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = ":8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultRequestTimeout  = 5 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20
	DefaultMaxBodyBytes    = int64(1 << 20)

	// Logging defaults
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "json"

	// Metrics defaults
	DefaultMetricsNamespace          = "bastion"
	DefaultMetricsMaxRuleCardinality = 1000

	DefaultSecretsEnvPrefix = "BASTION_SECRET_"

	// Tracing defaults
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingTimeout     = 10 * time.Second
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingService     = "bastion"

	// Key service defaults
	DefaultKeySpec          = "AES_256"
	DefaultKeysTimeout      = 2 * time.Second
	DefaultKeysMaxRetries   = 2
	DefaultKeysRetryDelay   = 100 * time.Millisecond
	DefaultKeysCacheTTL     = time.Hour
	DefaultKeysMaxCacheSize = 1000

	// Reputation defaults
	DefaultReputationThreshold     = 50.0
	DefaultReputationCacheTTL      = 5 * time.Minute
	DefaultReputationLookupTimeout = 500 * time.Millisecond

	// Rate limit defaults
	DefaultRateLimitPoints    = int64(100)
	DefaultRateLimitDuration  = time.Minute
	DefaultRateLimitKeyPrefix = "ratelimit"
	DefaultRateLimitStore     = "memory"
	DefaultRedisDialTimeout   = 2 * time.Second
	DefaultCounterSQLitePath  = "data/counters.db"
	DefaultCounterBusyTimeout = 5 * time.Second
	DefaultCounterCheckpoint  = 5 * time.Minute

	// Anomaly defaults
	DefaultAnomalyThreshold = 0.85
	DefaultAnomalyTimeout   = time.Second

	// Rules defaults
	DefaultRulesDebounce = 250 * time.Millisecond

	// Audit defaults
	DefaultAuditBatchSize          = 100
	DefaultAuditFlushInterval      = 5 * time.Second
	DefaultAuditWriteTimeout       = 10 * time.Second
	DefaultAuditEscalationTimeout  = 2 * time.Second
	DefaultAuditDecryptConcurrency = 8
	DefaultAuditRetentionDays      = 365
	DefaultAuditEnvironment        = "production"
	DefaultAuditSink               = "sqlite"
	DefaultAuditSQLitePath         = "data/audit.db"
	DefaultAuditSQLiteMaxOpenConns = 10
	DefaultAuditSQLiteMaxIdleConns = 5
	DefaultAuditSQLiteBusyTimeout  = 5 * time.Second
	DefaultKafkaTopic              = "bastion.audit"
	DefaultKafkaAlertTopic         = "bastion.alerts"
	DefaultKafkaClientID           = "bastion"
	DefaultRetentionSchedule       = "0 3 * * *"
)

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := base()
	ApplyDefaults(cfg)
	return cfg
}

// base holds the defaults a file may legitimately override with false or
// zero. Loading decodes over it, then fills and derives the rest with
// ApplyDefaults once every source has been applied.
func base() *Config {
	return &Config{
		Logging:   LoggingConfig{RedactSecrets: true},
		Metrics:   MetricsConfig{Enabled: true},
		RateLimit: RateLimitConfig{Enabled: true},
		Audit: AuditConfig{
			RetentionDays: DefaultAuditRetentionDays,
			SQLite:        AuditSQLiteConfig{WALMode: true},
			Retention:     RetentionConfig{Schedule: DefaultRetentionSchedule},
		},
	}
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	s := &cfg.Server
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	// Metrics defaults
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.MaxRuleCardinality == 0 {
		cfg.Metrics.MaxRuleCardinality = DefaultMetricsMaxRuleCardinality
	}

	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}

	// Tracing defaults
	tr := &cfg.Tracing
	if tr.Endpoint == "" {
		tr.Endpoint = DefaultTracingEndpoint
	}
	if tr.Timeout == 0 {
		tr.Timeout = DefaultTracingTimeout
	}
	if tr.Sampler == "" {
		tr.Sampler = DefaultTracingSampler
		if tr.SampleRatio == 0 {
			tr.SampleRatio = DefaultTracingSampleRatio
		}
	}
	if tr.ServiceName == "" {
		tr.ServiceName = DefaultTracingService
	}

	// Key service defaults
	k := &cfg.Keys
	if k.KeySpec == "" {
		k.KeySpec = DefaultKeySpec
	}
	if k.Timeout == 0 {
		k.Timeout = DefaultKeysTimeout
	}
	if k.MaxRetries == 0 {
		k.MaxRetries = DefaultKeysMaxRetries
	}
	if k.RetryDelay == 0 {
		k.RetryDelay = DefaultKeysRetryDelay
	}
	if k.CacheTTL == 0 {
		k.CacheTTL = DefaultKeysCacheTTL
	}
	if k.MaxCacheSize == 0 {
		k.MaxCacheSize = DefaultKeysMaxCacheSize
	}

	// Reputation defaults
	r := &cfg.Reputation
	if r.Threshold == 0 {
		r.Threshold = DefaultReputationThreshold
	}
	if r.CacheTTL == 0 {
		r.CacheTTL = DefaultReputationCacheTTL
	}
	if r.LookupTimeout == 0 {
		r.LookupTimeout = DefaultReputationLookupTimeout
	}

	// Rate limit defaults
	rl := &cfg.RateLimit
	if rl.Points == 0 {
		rl.Points = DefaultRateLimitPoints
	}
	if rl.Duration == 0 {
		rl.Duration = DefaultRateLimitDuration
	}
	if rl.KeyPrefix == "" {
		rl.KeyPrefix = DefaultRateLimitKeyPrefix
	}
	if rl.Store == "" {
		rl.Store = DefaultRateLimitStore
	}
	if rl.Redis.DialTimeout == 0 {
		rl.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if rl.SQLite.Path == "" {
		rl.SQLite.Path = DefaultCounterSQLitePath
	}
	if rl.SQLite.BusyTimeout == 0 {
		rl.SQLite.BusyTimeout = DefaultCounterBusyTimeout
	}
	if rl.SQLite.CheckpointInterval == 0 {
		rl.SQLite.CheckpointInterval = DefaultCounterCheckpoint
	}

	// Anomaly defaults
	if cfg.Anomaly.Threshold == 0 {
		cfg.Anomaly.Threshold = DefaultAnomalyThreshold
	}
	if cfg.Anomaly.Timeout == 0 {
		cfg.Anomaly.Timeout = DefaultAnomalyTimeout
	}

	// Rules defaults
	if cfg.Rules.Debounce == 0 {
		cfg.Rules.Debounce = DefaultRulesDebounce
	}

	// Audit defaults
	a := &cfg.Audit
	if a.BatchSize == 0 {
		a.BatchSize = DefaultAuditBatchSize
	}
	if a.FlushInterval == 0 {
		a.FlushInterval = DefaultAuditFlushInterval
	}
	if a.MaxPending == 0 {
		a.MaxPending = 100 * a.BatchSize
	}
	if a.WriteTimeout == 0 {
		a.WriteTimeout = DefaultAuditWriteTimeout
	}
	if a.EscalationTimeout == 0 {
		a.EscalationTimeout = DefaultAuditEscalationTimeout
	}
	if a.DecryptConcurrency == 0 {
		a.DecryptConcurrency = DefaultAuditDecryptConcurrency
	}
	if a.Environment == "" {
		a.Environment = DefaultAuditEnvironment
	}
	if a.Sink == "" {
		a.Sink = DefaultAuditSink
	}
	if a.SQLite.Path == "" {
		a.SQLite.Path = DefaultAuditSQLitePath
	}
	if a.SQLite.MaxOpenConns == 0 {
		a.SQLite.MaxOpenConns = DefaultAuditSQLiteMaxOpenConns
	}
	if a.SQLite.MaxIdleConns == 0 {
		a.SQLite.MaxIdleConns = DefaultAuditSQLiteMaxIdleConns
	}
	if a.SQLite.BusyTimeout == 0 {
		a.SQLite.BusyTimeout = DefaultAuditSQLiteBusyTimeout
	}
	if a.Kafka.Topic == "" {
		a.Kafka.Topic = DefaultKafkaTopic
	}
	if a.Kafka.AlertTopic == "" {
		a.Kafka.AlertTopic = DefaultKafkaAlertTopic
	}
	if a.Kafka.ClientID == "" {
		a.Kafka.ClientID = DefaultKafkaClientID
	}
}
