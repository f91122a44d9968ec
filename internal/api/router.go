// Package api exposes the on-demand scan triggers, scan status, runtime
// logging controls and the Prometheus scrape endpoint over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michaelswisa/FileExporter/internal/api/middleware"
	"github.com/michaelswisa/FileExporter/internal/logging"
	"github.com/michaelswisa/FileExporter/internal/scanner"
	"github.com/michaelswisa/FileExporter/internal/scheduler"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Scanner    *scanner.Manager
	Scheduler  *scheduler.Scheduler
	LogManager *logging.Manager
	Gatherer   prometheus.Gatherer
	Limiter    *middleware.TriggerLimiter
	Logger     *slog.Logger
	BasePath   string
}

// Router sets up all HTTP routes for the application.
type Router struct {
	scanner    *scanner.Manager
	scheduler  *scheduler.Scheduler
	logManager *logging.Manager
	gatherer   prometheus.Gatherer
	limiter    *middleware.TriggerLimiter
	logger     *slog.Logger
	basePath   string
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Router{
		scanner:    deps.Scanner,
		scheduler:  deps.Scheduler,
		logManager: deps.LogManager,
		gatherer:   gatherer,
		limiter:    deps.Limiter,
		logger:     deps.Logger.With(slog.String("component", "api")),
		basePath:   deps.BasePath,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/api/health", r.handleHealth)
	mux.HandleFunc("GET "+bp+"/api/logging", r.handleGetLogging)
	mux.HandleFunc("PUT "+bp+"/api/logging", r.handleUpdateLogging)
	mux.HandleFunc("GET "+bp+"/api/scan/status", r.handleScanStatus)
	mux.HandleFunc("GET "+bp+"/api/scan/runs/{id}", r.handleGetRun)

	mux.HandleFunc("POST "+bp+"/api/scan/all/{dName}", r.limit(r.handleScanAll))
	mux.HandleFunc("POST "+bp+"/api/scan/failures/{dName}", r.limit(r.handleScanFailures))
	mux.HandleFunc("POST "+bp+"/api/scan/zombies/observed/{dName}", r.limit(r.handleScanObservedZombies))
	mux.HandleFunc("POST "+bp+"/api/scan/zombies/non-observed/{dName}", r.limit(r.handleScanNonObservedZombies))
	mux.HandleFunc("POST "+bp+"/api/scan/transcoded/{dName}", r.limit(r.handleScanTranscoded))

	mux.Handle("GET "+bp+"/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(r.logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	}))

	return middleware.Logging(r.logger, bp+"/metrics", bp+"/api/health")(mux)
}

// limit applies the per-directory trigger limiter when one is configured.
func (r *Router) limit(fn http.HandlerFunc) http.HandlerFunc {
	if r.limiter == nil {
		return fn
	}
	return r.limiter.Wrap(fn)
}
