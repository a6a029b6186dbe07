package keys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"bastion-hq/aegis/pkg/telemetry/tracing"
)

// HTTPServiceConfig configures an HTTPService.
type HTTPServiceConfig struct {
	BaseURL    string        // Key service base URL
	Token      string        // Bearer token, optional
	Timeout    time.Duration // Per-attempt timeout. Default: 2s
	MaxRetries int           // Retries after the first attempt for transient failures. Default: 2
	RetryDelay time.Duration // Initial backoff interval. Default: 100ms
	Client     *http.Client
}

// HTTPService is a Service speaking JSON over HTTP.
//
// Endpoints:
//
//	POST /v1/keys/{id}/data-key  {"key_spec","encryption_context"} -> {"plaintext","ciphertext_blob"}
//	POST /v1/decrypt             {"ciphertext_blob","encryption_context"} -> {"plaintext"}
//	GET  /v1/keys/{id}           -> {"enabled"}
//
// Byte fields are base64 encoded. Transport errors and 5xx responses are
// retried with exponential backoff; 4xx responses are permanent.
type HTTPService struct {
	baseURL    string
	token      string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

// NewHTTPService creates a new HTTP key service client.
func NewHTTPService(cfg HTTPServiceConfig) (*HTTPService, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("key service base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid key service url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &HTTPService{
		baseURL:    base,
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     cfg.Client,
	}, nil
}

type generateRequest struct {
	KeySpec           string            `json:"key_spec"`
	EncryptionContext map[string]string `json:"encryption_context,omitempty"`
}

type generateResponse struct {
	Plaintext      []byte `json:"plaintext"`
	CiphertextBlob []byte `json:"ciphertext_blob"`
}

type decryptRequest struct {
	CiphertextBlob    []byte            `json:"ciphertext_blob"`
	EncryptionContext map[string]string `json:"encryption_context,omitempty"`
}

type decryptResponse struct {
	Plaintext []byte `json:"plaintext"`
}

type describeResponse struct {
	Enabled bool `json:"enabled"`
}

// GenerateDataKey implements Service.
func (s *HTTPService) GenerateDataKey(ctx context.Context, keyID, keySpec string, encCtx map[string]string) (*DataKey, error) {
	path := "/v1/keys/" + url.PathEscape(keyID) + "/data-key"
	var resp generateResponse
	if err := s.do(ctx, "generate", keyID, http.MethodPost, path, generateRequest{KeySpec: keySpec, EncryptionContext: encCtx}, &resp); err != nil {
		return nil, err
	}
	return &DataKey{Plaintext: resp.Plaintext, Wrapped: resp.CiphertextBlob}, nil
}

// DecryptDataKey implements Service.
func (s *HTTPService) DecryptDataKey(ctx context.Context, wrapped []byte, encCtx map[string]string) ([]byte, error) {
	var resp decryptResponse
	if err := s.do(ctx, "decrypt", "", http.MethodPost, "/v1/decrypt", decryptRequest{CiphertextBlob: wrapped, EncryptionContext: encCtx}, &resp); err != nil {
		return nil, err
	}
	return resp.Plaintext, nil
}

// ValidateKey implements Service. A missing key is reported as false.
func (s *HTTPService) ValidateKey(ctx context.Context, keyID string) (bool, error) {
	var resp describeResponse
	err := s.do(ctx, "validate", keyID, http.MethodGet, "/v1/keys/"+url.PathEscape(keyID), nil, &resp)
	if IsKind(err, KindKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

func (s *HTTPService) do(ctx context.Context, op, keyID, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return NewKeyServiceError(op, keyID, KindInvalidResponse, err)
		}
		payload = b
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.attempt(ctx, op, keyID, method, path, payload, out)
		var kerr *KeyServiceError
		if err != nil && errors.As(err, &kerr) && !kerr.Retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.maxRetries+1)))

	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *HTTPService) attempt(ctx context.Context, op, keyID, method, path string, payload []byte, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, s.baseURL+path, reader)
	if err != nil {
		return NewKeyServiceError(op, keyID, KindInvalidResponse, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	tracing.Inject(reqCtx, req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return NewKeyServiceError(op, keyID, KindUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return NewKeyServiceError(op, keyID, KindUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		return NewKeyServiceError(op, keyID, kindForStatus(resp.StatusCode),
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewKeyServiceError(op, keyID, KindInvalidResponse, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAccessDenied
	case status == http.StatusNotFound:
		return KindKeyNotFound
	case status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return KindContextMismatch
	case status == http.StatusGone:
		return KindKeyExpired
	case status == http.StatusTooManyRequests, status >= 500:
		return KindUnavailable
	default:
		return KindInvalidResponse
	}
}
