package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BASTION_"

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies BASTION_SECTION_FIELD environment overrides before validating.
// An empty path loads defaults and the environment only.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected so
// typos do not silently fall back to defaults.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// decode leaves zero fields unset so derived defaults follow the file and
// the environment rather than the built-in values.
func decode(data []byte) (*Config, error) {
	cfg := base()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// load reads path without applying defaults.
func load(path string) (*Config, error) {
	if path == "" {
		return base(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return cfg, nil
}

// envOverrides collects parse failures so a bad value is reported instead
// of silently ignored.
type envOverrides struct {
	lookup func(string) (string, bool)
	errs   []FieldError
}

func (o *envOverrides) get(name string) (string, bool) {
	v, ok := o.lookup(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (o *envOverrides) fail(name string, err error) {
	o.errs = append(o.errs, FieldError{Field: EnvPrefix + name, Message: err.Error()})
}

func (o *envOverrides) str(name string, dst *string) {
	if v, ok := o.get(name); ok {
		*dst = v
	}
}

func (o *envOverrides) list(name string, dst *[]string) {
	v, ok := o.get(name)
	if !ok {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}

func (o *envOverrides) boolean(name string, dst *bool) {
	if v, ok := o.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			o.fail(name, err)
			return
		}
		*dst = b
	}
}

func (o *envOverrides) integer(name string, dst *int) {
	if v, ok := o.get(name); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			o.fail(name, err)
			return
		}
		*dst = i
	}
}

func (o *envOverrides) integer64(name string, dst *int64) {
	if v, ok := o.get(name); ok {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			o.fail(name, err)
			return
		}
		*dst = i
	}
}

func (o *envOverrides) float(name string, dst *float64) {
	if v, ok := o.get(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			o.fail(name, err)
			return
		}
		*dst = f
	}
}

func (o *envOverrides) duration(name string, dst *time.Duration) {
	if v, ok := o.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			o.fail(name, err)
			return
		}
		*dst = d
	}
}

// applyEnvOverrides applies BASTION_SECTION_FIELD variables.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	o := &envOverrides{lookup: lookup}

	// Server overrides
	o.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	o.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	o.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	o.duration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	o.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	o.duration("SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	o.integer64("SERVER_MAX_BODY_BYTES", &cfg.Server.MaxBodyBytes)

	// Logging, metrics and tracing overrides
	o.str("LOGGING_LEVEL", &cfg.Logging.Level)
	o.str("LOGGING_FORMAT", &cfg.Logging.Format)
	o.boolean("LOGGING_ADD_SOURCE", &cfg.Logging.AddSource)
	o.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	o.boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	o.str("TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	o.str("TRACING_SAMPLER", &cfg.Tracing.Sampler)
	o.float("TRACING_SAMPLE_RATIO", &cfg.Tracing.SampleRatio)
	o.str("SECRETS_DIR", &cfg.Secrets.Dir)

	// Key service overrides
	o.str("KEYS_BASE_URL", &cfg.Keys.BaseURL)
	o.str("KEYS_TOKEN", &cfg.Keys.Token)
	o.str("KEYS_KEY_ID", &cfg.Keys.KeyID)
	o.duration("KEYS_TIMEOUT", &cfg.Keys.Timeout)
	o.integer("KEYS_MAX_RETRIES", &cfg.Keys.MaxRetries)
	o.duration("KEYS_CACHE_TTL", &cfg.Keys.CacheTTL)

	// Reputation and anomaly overrides
	o.str("REPUTATION_URL", &cfg.Reputation.URL)
	o.str("REPUTATION_API_KEY", &cfg.Reputation.APIKey)
	o.float("REPUTATION_THRESHOLD", &cfg.Reputation.Threshold)
	o.str("ANOMALY_ENDPOINT", &cfg.Anomaly.Endpoint)
	o.str("ANOMALY_API_KEY", &cfg.Anomaly.APIKey)
	o.float("ANOMALY_THRESHOLD", &cfg.Anomaly.Threshold)

	// Rate limit overrides
	o.boolean("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	o.integer64("RATE_LIMIT_POINTS", &cfg.RateLimit.Points)
	o.duration("RATE_LIMIT_DURATION", &cfg.RateLimit.Duration)
	o.duration("RATE_LIMIT_BLOCK_DURATION", &cfg.RateLimit.BlockDuration)
	o.str("RATE_LIMIT_STORE", &cfg.RateLimit.Store)
	o.str("RATE_LIMIT_REDIS_URL", &cfg.RateLimit.Redis.URL)
	o.str("RATE_LIMIT_SQLITE_PATH", &cfg.RateLimit.SQLite.Path)

	// Rules and pipeline overrides
	o.str("RULES_PATH", &cfg.Rules.Path)
	o.boolean("RULES_WATCH", &cfg.Rules.Watch)
	o.list("PIPELINE_BYPASS_TOKENS", &cfg.Pipeline.BypassTokens)
	o.str("PIPELINE_IDENTITY_HEADER", &cfg.Pipeline.IdentityHeader)
	o.list("PIPELINE_COMPLIANCE_FLAGS", &cfg.Pipeline.ComplianceFlags)

	// Audit overrides
	o.integer("AUDIT_BATCH_SIZE", &cfg.Audit.BatchSize)
	o.duration("AUDIT_FLUSH_INTERVAL", &cfg.Audit.FlushInterval)
	o.integer("AUDIT_RETENTION_DAYS", &cfg.Audit.RetentionDays)
	o.str("AUDIT_ENVIRONMENT", &cfg.Audit.Environment)
	o.str("AUDIT_SINK", &cfg.Audit.Sink)
	o.str("AUDIT_SQLITE_PATH", &cfg.Audit.SQLite.Path)
	o.list("AUDIT_KAFKA_BROKERS", &cfg.Audit.Kafka.Brokers)
	o.str("AUDIT_KAFKA_TOPIC", &cfg.Audit.Kafka.Topic)
	o.str("AUDIT_RETENTION_SCHEDULE", &cfg.Audit.Retention.Schedule)

	if len(o.errs) > 0 {
		return fmt.Errorf("invalid environment override: %w", ValidationError{Errors: o.errs})
	}
	return nil
}
