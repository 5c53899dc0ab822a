package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"convertviral/internal/platform/metrics"
	"convertviral/internal/platform/middleware"
	"convertviral/pkg/platform/httputil"
)

const healthCheckTimeout = 2 * time.Second

// Registrar is implemented by every domain handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps is what the router needs. Handlers stay thin and delegate to domain
// services; transport concerns live here.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	// Checks are run by GET /health. A failing check reports the instance
	// as degraded.
	Checks map[string]HealthCheck
	// Throttle wraps domain routes, typically a per-IP write limiter. It
	// does not apply to /health or /metrics.
	Throttle func(http.Handler) http.Handler
	Handlers []Registrar
}

// NewRouter wires the middleware chain, operational endpoints and every
// domain handler.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Latency(deps.Metrics))
	if deps.RequestTimeout > 0 {
		r.Use(chimw.Timeout(deps.RequestTimeout))
	}

	r.Get("/health", healthHandler(deps.Checks))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if deps.Throttle != nil {
			r.Use(deps.Throttle)
		}
		for _, h := range deps.Handlers {
			h.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		var (
			mu      sync.Mutex
			results = make(map[string]string, len(checks))
			healthy = true
		)
		g, gctx := errgroup.WithContext(ctx)
		for name, check := range checks {
			g.Go(func() error {
				err := check(gctx)
				mu.Lock()
				defer mu.Unlock()
				results[name] = "ok"
				if err != nil {
					results[name] = err.Error()
					healthy = false
				}
				// Report every check rather than stopping at the first failure.
				return nil
			})
		}
		_ = g.Wait()

		resp := healthResponse{Status: "ok", Checks: results}
		status := http.StatusOK
		if !healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
