// Package availability probes the AI backend before AI-dependent work.
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	app_errors "github.com/kalambet/prepgen/internal/errors"
)

// ServiceStatus is the outcome of a single probe. It is never cached.
type ServiceStatus struct {
	Online bool
}

// Prober is the contract gated actions depend on.
type Prober interface {
	EnsureOnline(ctx context.Context) bool
}

// Gate probes the unauthenticated /health endpoint.
type Gate struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGate creates a Gate for baseURL; each probe is bounded by timeout.
func NewGate(baseURL string, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gate{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
}

type healthResponse struct {
	AIServiceStatus string `json:"ai_service_status"`
}

// Probe reports whether the AI service is online. Any non-2xx status,
// malformed payload or transport error counts as offline.
func (g *Gate) Probe(ctx context.Context) ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		g.logger.Warn("health probe: building request", "error", err)
		return ServiceStatus{}
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Debug("health probe failed", "error", err)
		return ServiceStatus{}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Debug("health probe: unexpected status", "status", resp.StatusCode)
		return ServiceStatus{}
	}

	var hr healthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&hr); err != nil {
		g.logger.Debug("health probe: malformed payload", "error", err)
		return ServiceStatus{}
	}
	return ServiceStatus{Online: hr.AIServiceStatus == "online"}
}

// EnsureOnline probes and returns the online flag.
func (g *Gate) EnsureOnline(ctx context.Context) bool {
	return g.Probe(ctx).Online
}

// Gated wraps fn so that every invocation first probes p. When the service
// is offline fn is not called and the error matches
// app_errors.ErrServiceUnavailable.
func Gated[T any](p Prober, action string, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		if !p.EnsureOnline(ctx) {
			var zero T
			return zero, fmt.Errorf("%s: %w", action, app_errors.ErrServiceUnavailable)
		}
		return fn(ctx)
	}
}
