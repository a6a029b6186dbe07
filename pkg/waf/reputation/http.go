package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bastion-hq/aegis/pkg/telemetry/tracing"
	"bastion-hq/aegis/pkg/waf"
)

// HTTPService queries a reputation service at GET {base}/v1/reputation/{ip}
// which answers {"score": <number>}.
type HTTPService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPService creates a new HTTP reputation client.
func NewHTTPService(baseURL, apiKey string, timeout time.Duration) (*HTTPService, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("reputation service url is required")
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &HTTPService{
		baseURL: base,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Lookup implements Service.
func (s *HTTPService) Lookup(ctx context.Context, ip string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/reputation/"+url.PathEscape(ip), nil)
	if err != nil {
		return 0, err
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, waf.NewDependencyError("reputation", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, waf.NewDependencyError("reputation", fmt.Errorf("status %d", resp.StatusCode))
	}

	var body struct {
		Score *float64 `json:"score"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return 0, waf.NewDependencyError("reputation", fmt.Errorf("decode response: %w", err))
	}
	if body.Score == nil {
		return 0, waf.NewDependencyError("reputation", errors.New("response missing score"))
	}
	return *body.Score, nil
}
