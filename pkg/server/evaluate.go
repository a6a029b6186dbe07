package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"bastion-hq/aegis/pkg/telemetry/logging"
	"bastion-hq/aegis/pkg/waf"
)

// Evaluator runs the policy pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, req *waf.Request) (*waf.Decision, error)
}

// EvaluateRequest describes the inbound request to evaluate. Body is the
// raw request body as a string.
type EvaluateRequest struct {
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	Query       map[string][]string `json:"query,omitempty"`
	Headers     map[string]string   `json:"headers,omitempty"`
	Body        string              `json:"body,omitempty"`
	ParsedBody  map[string]any      `json:"parsed_body,omitempty"`
	SourceIP    string              `json:"source_ip"`
	BypassToken string              `json:"bypass_token,omitempty"`
}

// EvaluateResponse is the decision returned to the caller.
type EvaluateResponse struct {
	RequestID string        `json:"request_id"`
	Decision  *waf.Decision `json:"decision"`
	Error     string        `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var in EvaluateRequest
	if err := dec.Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, "invalid request body: trailing data")
		return
	}
	req, err := toRequest(in, logging.RequestID(r.Context()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.evaluator.Evaluate(r.Context(), req)
	switch {
	case d == nil && err != nil:
		// Cancelled before a decision; the client has most likely gone away.
		writeError(w, http.StatusServiceUnavailable, "evaluation cancelled")
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, EvaluateResponse{RequestID: req.ID, Decision: d, Error: "internal error"})
	default:
		writeJSON(w, http.StatusOK, EvaluateResponse{RequestID: req.ID, Decision: d})
	}
}

func toRequest(in EvaluateRequest, requestID string) (*waf.Request, error) {
	if in.Method == "" {
		return nil, errors.New("method is required")
	}
	if !strings.HasPrefix(in.Path, "/") {
		return nil, errors.New("path must start with /")
	}
	if in.SourceIP == "" || net.ParseIP(in.SourceIP) == nil {
		return nil, errors.New("source_ip must be a valid IP address")
	}

	headers := make(map[string]string, len(in.Headers))
	for k, v := range in.Headers {
		headers[strings.ToLower(k)] = v
	}
	token := in.BypassToken
	if token == "" {
		token = headers["x-bypass-token"]
	}

	return &waf.Request{
		ID:          requestID,
		Method:      strings.ToUpper(in.Method),
		Path:        in.Path,
		Query:       in.Query,
		Headers:     headers,
		Body:        []byte(in.Body),
		ParsedBody:  in.ParsedBody,
		SourceIP:    in.SourceIP,
		UserAgent:   headers["user-agent"],
		BypassToken: token,
		ReceivedAt:  time.Now(),
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
