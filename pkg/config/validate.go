package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "audit.batch_size").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every invalid field in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Has reports whether field is among the errors.
func (e ValidationError) Has(field string) bool {
	return slices.ContainsFunc(e.Errors, func(fe FieldError) bool { return fe.Field == field })
}

// minCredentialLength bounds bypass tokens and API keys.
const minCredentialLength = 16

// Validate validates the entire configuration. All errors are collected
// and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateTracing(&cfg.Tracing)...)
	errs = append(errs, validateKeys(&cfg.Keys)...)
	errs = append(errs, validateReputation(&cfg.Reputation)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateAnomaly(&cfg.Anomaly)...)
	errs = append(errs, validatePipeline(&cfg.Pipeline)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError
	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	for field, d := range map[string]int64{
		"server.read_timeout":     int64(cfg.ReadTimeout),
		"server.write_timeout":    int64(cfg.WriteTimeout),
		"server.idle_timeout":     int64(cfg.IdleTimeout),
		"server.shutdown_timeout": int64(cfg.ShutdownTimeout),
		"server.request_timeout":  int64(cfg.RequestTimeout),
	} {
		if d < 0 {
			errs = append(errs, FieldError{Field: field, Message: "timeout must be positive"})
		}
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must be non-negative"})
	}
	slices.SortFunc(errs, func(a, b FieldError) int { return strings.Compare(a.Field, b.Field) })
	for i, k := range cfg.APIKeys {
		if k.Name == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("server.api_keys[%d].name", i), Message: "name is required"})
		}
		if !isSecretRef(k.Key) && len(k.Key) < minCredentialLength {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("server.api_keys[%d].key", i),
				Message: fmt.Sprintf("key must be at least %d characters", minCredentialLength),
			})
		}
	}
	return errs
}

func validateTracing(cfg *TracingConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError
	if cfg.Endpoint == "" {
		errs = append(errs, FieldError{Field: "tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}
	switch cfg.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q (must be always, never or ratio)", cfg.Sampler),
		})
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "tracing.sample_ratio", Message: "must be between 0 and 1"})
	}
	return errs
}

func validateLogging(cfg *LoggingConfig) []FieldError {
	var errs []FieldError
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn or error)", cfg.Level),
		})
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Format),
		})
	}
	return errs
}

func validateKeys(cfg *KeysConfig) []FieldError {
	var errs []FieldError
	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{Field: "keys.base_url", Message: "key service URL is required"})
	} else if err := validateURL(cfg.BaseURL); err != nil {
		errs = append(errs, FieldError{Field: "keys.base_url", Message: err.Error()})
	}
	if cfg.KeyID == "" {
		errs = append(errs, FieldError{Field: "keys.key_id", Message: "master key id is required"})
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{Field: "keys.max_retries", Message: "must be non-negative"})
	}
	if cfg.CacheTTL < 0 {
		errs = append(errs, FieldError{Field: "keys.cache_ttl", Message: "must be positive"})
	}
	return errs
}

func validateReputation(cfg *ReputationConfig) []FieldError {
	var errs []FieldError
	if cfg.URL != "" {
		if err := validateURL(cfg.URL); err != nil {
			errs = append(errs, FieldError{Field: "reputation.url", Message: err.Error()})
		}
	}
	if cfg.Threshold < 0 || cfg.Threshold > 100 {
		errs = append(errs, FieldError{Field: "reputation.threshold", Message: "must be between 0 and 100"})
	}
	return errs
}

func validateRateLimit(cfg *RateLimitConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError
	if cfg.Points <= 0 {
		errs = append(errs, FieldError{Field: "rate_limit.points", Message: "must be positive"})
	}
	if cfg.Duration <= 0 {
		errs = append(errs, FieldError{Field: "rate_limit.duration", Message: "must be positive"})
	}
	if cfg.BlockDuration < 0 {
		errs = append(errs, FieldError{Field: "rate_limit.block_duration", Message: "cannot be negative"})
	}
	switch cfg.Store {
	case "memory":
	case "redis":
		if cfg.Redis.URL == "" {
			errs = append(errs, FieldError{Field: "rate_limit.redis.url", Message: "required when store is redis"})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "rate_limit.sqlite.path", Message: "required when store is sqlite"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "rate_limit.store",
			Message: fmt.Sprintf("invalid store %q (must be memory, redis or sqlite)", cfg.Store),
		})
	}
	return errs
}

func validateAnomaly(cfg *AnomalyConfig) []FieldError {
	var errs []FieldError
	if cfg.Endpoint != "" {
		if err := validateURL(cfg.Endpoint); err != nil {
			errs = append(errs, FieldError{Field: "anomaly.endpoint", Message: err.Error()})
		}
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		errs = append(errs, FieldError{Field: "anomaly.threshold", Message: "must be in (0, 1]"})
	}
	return errs
}

func validatePipeline(cfg *PipelineConfig) []FieldError {
	var errs []FieldError
	for i, tok := range cfg.BypassTokens {
		if !isSecretRef(tok) && len(tok) < minCredentialLength {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("pipeline.bypass_tokens[%d]", i),
				Message: fmt.Sprintf("bypass tokens must be at least %d characters", minCredentialLength),
			})
		}
	}
	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError
	if cfg.BatchSize <= 0 {
		errs = append(errs, FieldError{Field: "audit.batch_size", Message: "must be positive"})
	}
	if cfg.FlushInterval <= 0 {
		errs = append(errs, FieldError{Field: "audit.flush_interval", Message: "must be positive"})
	}
	if cfg.MaxPending < cfg.BatchSize {
		errs = append(errs, FieldError{Field: "audit.max_pending", Message: "must be at least batch_size"})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "audit.retention_days", Message: "must be non-negative"})
	}
	switch cfg.Sink {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "audit.sqlite.path", Message: "required when sink is sqlite"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "audit.sink",
			Message: fmt.Sprintf("invalid sink %q (must be sqlite or memory)", cfg.Sink),
		})
	}
	if cfg.Kafka.Enabled() && cfg.Kafka.Topic == "" {
		errs = append(errs, FieldError{Field: "audit.kafka.topic", Message: "required when brokers are set"})
	}
	if cfg.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{Field: "audit.retention.schedule", Message: err.Error()})
		}
	}
	return errs
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL must include a host")
	}
	return nil
}

// isSecretRef reports whether s is an unresolved ${secret:name} reference.
// Such values are validated again once resolved.
func isSecretRef(s string) bool {
	return strings.HasPrefix(s, "${secret:") && strings.HasSuffix(s, "}")
}
