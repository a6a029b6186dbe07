package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bastion-hq/aegis/pkg/waf"
)

type stubInference struct {
	confidence float64
	err        error
	last       []byte
}

func (s *stubInference) Infer(ctx context.Context, features []byte) (float64, error) {
	s.last = features
	return s.confidence, s.err
}

func testFeatures() Features {
	return FeaturesFromRequest(&waf.Request{
		Method:     "POST",
		Path:       "/login",
		Headers:    map[string]string{"user-agent": "sqlmap/1.7"},
		Query:      map[string][]string{"id": {"1 OR 1=1"}},
		Body:       []byte(`{"user":"admin"}`),
		SourceIP:   "203.0.113.7",
		ReceivedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
}

func TestDetector_Threshold(t *testing.T) {
	tests := []struct {
		confidence float64
		want       bool
	}{
		{0.10, false},
		{0.85, false},
		{0.851, true},
		{0.99, true},
	}
	for _, tt := range tests {
		d := NewDetector(&stubInference{confidence: tt.confidence}, Config{}, nil)
		if got := d.IsThreat(context.Background(), testFeatures()); got != tt.want {
			t.Errorf("IsThreat(confidence=%v) = %v, want %v", tt.confidence, got, tt.want)
		}
	}
}

func TestDetector_DefaultThreshold(t *testing.T) {
	d := NewDetector(&stubInference{}, Config{}, nil)
	if d.Threshold() != 0.85 {
		t.Errorf("Threshold() = %v, want 0.85", d.Threshold())
	}
}

func TestDetector_FailsOpen(t *testing.T) {
	cases := map[string]*stubInference{
		"error":        {err: errors.New("timeout")},
		"nan":          {confidence: math.NaN()},
		"out of range": {confidence: 7},
		"negative":     {confidence: -0.5},
	}
	for name, inf := range cases {
		d := NewDetector(inf, Config{Threshold: 0.5}, nil)
		if d.IsThreat(context.Background(), testFeatures()) {
			t.Errorf("%s: IsThreat() = true, want false", name)
		}
	}
}

func TestDetector_SerializesFeatures(t *testing.T) {
	inf := &stubInference{confidence: 0.2}
	d := NewDetector(inf, Config{}, nil)
	d.IsThreat(context.Background(), testFeatures())

	var got map[string]any
	if err := json.Unmarshal(inf.last, &got); err != nil {
		t.Fatalf("features are not JSON: %v", err)
	}
	for _, key := range []string{"headers", "method", "path", "query", "body", "ip", "timestamp"} {
		if _, ok := got[key]; !ok {
			t.Errorf("feature %q missing from payload", key)
		}
	}
	if got["ip"] != "203.0.113.7" || got["body"] != `{"user":"admin"}` {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestHTTPInference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !json.Valid(body) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"confidence": 0.93}`))
		case "/malformed":
			w.Write([]byte(`{"label": "bad"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	inf, err := NewHTTPInference(srv.URL+"/ok", "")
	if err != nil {
		t.Fatal(err)
	}
	if !NewDetector(inf, Config{}, nil).IsThreat(context.Background(), testFeatures()) {
		t.Error("0.93 should be a threat")
	}

	for _, path := range []string{"/malformed", "/down"} {
		inf, _ := NewHTTPInference(srv.URL+path, "")
		if NewDetector(inf, Config{}, nil).IsThreat(context.Background(), testFeatures()) {
			t.Errorf("%s: failure should not be a threat", path)
		}
		var dep *waf.DependencyError
		if _, err := inf.Infer(context.Background(), []byte(`{}`)); !errors.As(err, &dep) {
			t.Errorf("%s: Infer() error = %v, want DependencyError", path, err)
		}
	}
}
