// Package anomaly submits request features to an external inference
// endpoint and flags requests whose threat confidence exceeds a threshold.
//
// The detector fails open: an unreachable endpoint or a malformed response
// yields "not a threat".
package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"bastion-hq/aegis/pkg/waf"
)

// DefaultThreshold is the confidence above which a request is a threat.
const DefaultThreshold = 0.85

// Features is the serialized view of a request sent for inference.
type Features struct {
	Headers   map[string]string   `json:"headers"`
	Method    string              `json:"method"`
	Path      string              `json:"path"`
	Query     map[string][]string `json:"query"`
	Body      string              `json:"body"`
	IP        string              `json:"ip"`
	Timestamp time.Time           `json:"timestamp"`
}

// FeaturesFromRequest extracts inference features from req.
func FeaturesFromRequest(req *waf.Request) Features {
	return Features{
		Headers:   req.Headers,
		Method:    req.Method,
		Path:      req.Path,
		Query:     req.Query,
		Body:      string(req.Body),
		IP:        req.SourceIP,
		Timestamp: req.ReceivedAt,
	}
}

// Inference scores a serialized feature blob.
type Inference interface {
	Infer(ctx context.Context, features []byte) (float64, error)
}

// Config configures a Detector.
type Config struct {
	Threshold float64       // Default: 0.85
	Timeout   time.Duration // Default: 1s
}

// Detector decides whether a request looks malicious.
type Detector struct {
	inference Inference
	threshold float64
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDetector creates a new Detector.
func NewDetector(inference Inference, cfg Config, logger *slog.Logger) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		inference: inference,
		threshold: cfg.Threshold,
		timeout:   cfg.Timeout,
		logger:    logger.With("component", "waf.anomaly"),
	}
}

// Threshold returns the configured confidence threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// IsThreat reports whether the inference endpoint scores features above the
// threshold. It returns false on any failure.
func (d *Detector) IsThreat(ctx context.Context, features Features) bool {
	confidence, err := d.Confidence(ctx, features)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.Warn("anomaly inference failed, failing open",
				"path", features.Path,
				"ip", features.IP,
				"error", err,
			)
		}
		return false
	}
	return confidence > d.threshold
}

// Confidence returns the raw threat confidence for features.
func (d *Detector) Confidence(ctx context.Context, features Features) (float64, error) {
	blob, err := json.Marshal(features)
	if err != nil {
		return 0, fmt.Errorf("serialize features: %w", err)
	}

	inferCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	confidence, err := d.inference.Infer(inferCtx, blob)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return 0, waf.NewDependencyError("inference", fmt.Errorf("confidence %v out of range", confidence))
	}
	return confidence, nil
}
