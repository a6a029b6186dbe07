package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type keyValidator struct {
	ok  bool
	err error
}

func (v keyValidator) ValidateKey(ctx context.Context, keyID string) (bool, error) {
	return v.ok, v.err
}

func TestChecker_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{"no checks", nil, StatusReady},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"key_service":  KeyServiceCheck(keyValidator{ok: true}, "k"),
				"audit_buffer": AuditBufferCheck(func() int { return 10 }, 1000),
			},
			want: StatusReady,
		},
		{
			name: "key unusable",
			checks: map[string]CheckFunc{
				"key_service": KeyServiceCheck(keyValidator{ok: false}, "k"),
			},
			want: StatusDegraded,
		},
		{
			name: "key service down",
			checks: map[string]CheckFunc{
				"key_service": KeyServiceCheck(keyValidator{err: errors.New("dial tcp: refused")}, "k"),
			},
			want: StatusDegraded,
		},
		{
			name: "audit buffer nearly full",
			checks: map[string]CheckFunc{
				"audit_buffer": AuditBufferCheck(func() int { return 950 }, 1000),
			},
			want: StatusDegraded,
		},
		{
			name: "no rules",
			checks: map[string]CheckFunc{
				"rules": RulesCheck(func() int { return 0 }),
			},
			want: StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}
			report := c.Readiness(context.Background())
			if report.Status != tt.want {
				t.Errorf("Status = %s, want %s (%+v)", report.Status, tt.want, report.Checks)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("Checks = %d, want %d", len(report.Checks), len(tt.checks))
			}
		})
	}
}

func TestChecker_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	report := c.Readiness(context.Background())
	res := report.Checks["slow"]
	if res.Status != StatusUnhealthy || res.Message != "health check timeout" {
		t.Errorf("result = %+v", res)
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("rules", RulesCheck(func() int { return 0 }))

	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
		status  int
	}{
		{"liveness", c.LivenessHandler(), http.MethodGet, http.StatusOK},
		{"readiness degraded", c.ReadinessHandler(), http.MethodGet, http.StatusServiceUnavailable},
		{"version", VersionHandler("1.0.0", "abc123", "2026-01-01"), http.MethodGet, http.StatusOK},
		{"post rejected", c.LivenessHandler(), http.MethodPost, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(tt.method, "/", nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}

	rec := httptest.NewRecorder()
	VersionHandler("1.0.0", "abc123", "2026-01-01")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != "1.0.0" || info.GoVersion == "" {
		t.Errorf("info = %+v", info)
	}
}
