package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter serves /metrics from gatherer and a trivial /healthz. Extra middleware runs after
// panic recovery.
func NewRouter(gatherer prometheus.Gatherer, logger *zap.Logger, mw ...func(http.Handler) http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(mw...)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
			logger.Warn("healthz write failed", zap.Error(err))
		}
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// NewServer builds an HTTP server exposing the router on addr.
func NewServer(
	addr string,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
	mw ...func(http.Handler) http.Handler,
) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(gatherer, logger, mw...),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
