package anomaly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bastion-hq/aegis/pkg/telemetry/tracing"
	"bastion-hq/aegis/pkg/waf"
)

// HTTPInference posts feature blobs to an inference endpoint that answers
// {"confidence": <0..1>}.
type HTTPInference struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPInference creates a new HTTP inference client. Timeouts are applied
// per call by the Detector.
func NewHTTPInference(endpoint, apiKey string) (*HTTPInference, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("inference endpoint is required")
	}
	return &HTTPInference{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}, nil
}

// Infer implements Inference.
func (h *HTTPInference) Infer(ctx context.Context, features []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(features))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, waf.NewDependencyError("inference", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, waf.NewDependencyError("inference", fmt.Errorf("status %d", resp.StatusCode))
	}

	var body struct {
		Confidence *float64 `json:"confidence"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return 0, waf.NewDependencyError("inference", fmt.Errorf("decode response: %w", err))
	}
	if body.Confidence == nil {
		return 0, waf.NewDependencyError("inference", errors.New("response missing confidence"))
	}
	return *body.Confidence, nil
}
