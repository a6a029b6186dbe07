package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Keys.BaseURL = "https://kms.internal"
	cfg.Keys.KeyID = "audit-master"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "key service scheme", mutate: func(c *Config) { c.Keys.BaseURL = "ftp://kms" }, wantField: "keys.base_url"},
		{name: "listen address", mutate: func(c *Config) { c.Server.ListenAddress = "" }, wantField: "server.listen_address"},
		{name: "negative timeout", mutate: func(c *Config) { c.Server.RequestTimeout = -1 }, wantField: "server.request_timeout"},
		{name: "api key name", mutate: func(c *Config) { c.Server.APIKeys = []APIKeyConfig{{Key: "0123456789abcdef"}} }, wantField: "server.api_keys[0].name"},
		{name: "short api key", mutate: func(c *Config) { c.Server.APIKeys = []APIKeyConfig{{Name: "edge", Key: "short"}} }, wantField: "server.api_keys[0].key"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantField: "logging.level"},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantField: "logging.format"},
		{name: "tracing sampler", mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Sampler = "sometimes" }, wantField: "tracing.sampler"},
		{name: "tracing ratio", mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SampleRatio = 2 }, wantField: "tracing.sample_ratio"},
		{name: "disabled tracing skips checks", mutate: func(c *Config) { c.Tracing.Sampler = "sometimes" }},
		{name: "reputation threshold", mutate: func(c *Config) { c.Reputation.Threshold = 120 }, wantField: "reputation.threshold"},
		{name: "reputation url", mutate: func(c *Config) { c.Reputation.URL = "not a url" }, wantField: "reputation.url"},
		{name: "anomaly threshold", mutate: func(c *Config) { c.Anomaly.Threshold = 1.5 }, wantField: "anomaly.threshold"},
		{name: "rate limit points", mutate: func(c *Config) { c.RateLimit.Points = -1 }, wantField: "rate_limit.points"},
		{name: "rate limit store", mutate: func(c *Config) { c.RateLimit.Store = "etcd" }, wantField: "rate_limit.store"},
		{name: "redis url", mutate: func(c *Config) { c.RateLimit.Store = "redis" }, wantField: "rate_limit.redis.url"},
		{
			name: "disabled rate limit skips checks",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = false
				c.RateLimit.Store = "etcd"
			},
		},
		{name: "short bypass token", mutate: func(c *Config) { c.Pipeline.BypassTokens = []string{"abc"} }, wantField: "pipeline.bypass_tokens[0]"},
		{name: "batch size", mutate: func(c *Config) { c.Audit.BatchSize = 0 }, wantField: "audit.batch_size"},
		{name: "max pending", mutate: func(c *Config) { c.Audit.MaxPending = 10 }, wantField: "audit.max_pending"},
		{name: "retention days", mutate: func(c *Config) { c.Audit.RetentionDays = -1 }, wantField: "audit.retention_days"},
		{name: "audit sink", mutate: func(c *Config) { c.Audit.Sink = "postgres" }, wantField: "audit.sink"},
		{name: "retention schedule", mutate: func(c *Config) { c.Audit.Retention.Schedule = "every day" }, wantField: "audit.retention.schedule"},
		{name: "empty schedule disables pruning", mutate: func(c *Config) { c.Audit.Retention.Schedule = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if !verr.Has(tt.wantField) {
				t.Errorf("errors = %v, want field %s", verr.Errors, tt.wantField)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := single.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("single = %q", got)
	}

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	got := multi.Error()
	if !strings.Contains(got, "2 errors") || !strings.Contains(got, "  - b: worse") {
		t.Errorf("multi = %q", got)
	}
}
