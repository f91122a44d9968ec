package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/michaelswisa/FileExporter/internal/classify"
	"github.com/michaelswisa/FileExporter/internal/scanner"
	"github.com/michaelswisa/FileExporter/internal/scheduler"
)

type runResponse struct {
	Message string      `json:"message"`
	Run     scanner.Run `json:"run"`
}

type statusResponse struct {
	Env       string            `json:"env"`
	Scheduler *scheduler.Status `json:"scheduler,omitempty"`
	Runs      []scanner.Run     `json:"runs"`
}

// handleScanAll queues every scan of one tenant whose directory exists.
// POST /api/scan/all/{dName}
func (r *Router) handleScanAll(w http.ResponseWriter, req *http.Request) {
	if r.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}
	tenant := req.PathValue("dName")

	res, err := r.scanner.QueueAll(req.Context(), tenant)
	if err != nil {
		r.respondQueueError(w, tenant, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// POST /api/scan/failures/{dName}
func (r *Router) handleScanFailures(w http.ResponseWriter, req *http.Request) {
	r.queueOne(w, req, "failure", r.scanner.QueueFailures)
}

// POST /api/scan/zombies/observed/{dName}
func (r *Router) handleScanObservedZombies(w http.ResponseWriter, req *http.Request) {
	r.queueOne(w, req, "observed zombie", func(ctx context.Context, tenant string) (scanner.Run, error) {
		return r.scanner.QueueZombies(ctx, tenant, classify.Observed)
	})
}

// POST /api/scan/zombies/non-observed/{dName}
func (r *Router) handleScanNonObservedZombies(w http.ResponseWriter, req *http.Request) {
	r.queueOne(w, req, "non-observed zombie", func(ctx context.Context, tenant string) (scanner.Run, error) {
		return r.scanner.QueueZombies(ctx, tenant, classify.NonObserved)
	})
}

// POST /api/scan/transcoded/{dName}
func (r *Router) handleScanTranscoded(w http.ResponseWriter, req *http.Request) {
	r.queueOne(w, req, "transcoded", r.scanner.QueueTranscoded)
}

func (r *Router) queueOne(w http.ResponseWriter, req *http.Request, what string, queue func(context.Context, string) (scanner.Run, error)) {
	if r.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}
	tenant := req.PathValue("dName")

	run, err := queue(req.Context(), tenant)
	if err != nil {
		r.respondQueueError(w, tenant, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{
		Message: what + " scan for " + tenant + " started in background.",
		Run:     run,
	})
}

func (r *Router) respondQueueError(w http.ResponseWriter, tenant string, err error) {
	if errors.Is(err, scanner.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no scannable directory for "+tenant)
		return
	}
	r.logger.Error("queueing scan", "tenant", tenant, "error", err)
	writeError(w, http.StatusInternalServerError, "failed to queue scan")
}

// handleScanStatus returns recent runs and the periodic scheduler's progress.
// GET /api/scan/status
func (r *Router) handleScanStatus(w http.ResponseWriter, req *http.Request) {
	if r.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}
	resp := statusResponse{Env: r.scanner.Env(), Runs: r.scanner.Status()}
	if resp.Runs == nil {
		resp.Runs = []scanner.Run{}
	}
	if r.scheduler != nil {
		st := r.scheduler.Status()
		resp.Scheduler = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/scan/runs/{id}
func (r *Router) handleGetRun(w http.ResponseWriter, req *http.Request) {
	if r.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}
	run, ok := r.scanner.RunByID(req.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
