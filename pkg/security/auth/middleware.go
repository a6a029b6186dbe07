package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderAPIKey is the alternative to a bearer token.
const HeaderAPIKey = "X-API-Key"

type contextKey struct{}

// Middleware rejects requests without a valid API key with 401 and stores
// the authenticated Client in the request context.
func Middleware(v *Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := extractAPIKey(r)
			if !ok {
				logger.Warn("missing API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				unauthorized(w, "missing API key")
				return
			}
			client, err := v.Validate(key)
			if err != nil {
				logger.Warn("rejected API key", "error", err, "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				msg := "invalid API key"
				if errors.Is(err, ErrDisabledKey) {
					msg = "API key disabled"
				}
				unauthorized(w, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, client)))
		})
	}
}

func extractAPIKey(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			return strings.TrimSpace(token), true
		}
	}
	if k := r.Header.Get(HeaderAPIKey); k != "" {
		return k, true
	}
	return "", false
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="bastion"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// ClientFromContext returns the client authenticated by Middleware.
func ClientFromContext(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(contextKey{}).(*Client)
	return c, ok
}
