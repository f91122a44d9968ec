package api

import (
	"encoding/json"
	"net/http"

	"github.com/michaelswisa/FileExporter/internal/logging"
)

func (r *Router) handleGetLogging(w http.ResponseWriter, req *http.Request) {
	if r.logManager == nil {
		writeError(w, http.StatusServiceUnavailable, "logging manager not available")
		return
	}
	writeJSON(w, http.StatusOK, r.logManager.Config())
}

// handleUpdateLogging applies a partial logging config at runtime. The
// change is not persisted; a restart reverts to the config file.
func (r *Router) handleUpdateLogging(w http.ResponseWriter, req *http.Request) {
	if r.logManager == nil {
		writeError(w, http.StatusServiceUnavailable, "logging manager not available")
		return
	}

	var patch logging.Config
	req.Body = http.MaxBytesReader(w, req.Body, 64<<10)
	if err := json.NewDecoder(req.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := r.logManager.Config().Merge(patch)
	r.logManager.Reconfigure(cfg)
	r.logger.Info("logging reconfigured", "config", cfg.String())

	writeJSON(w, http.StatusOK, cfg)
}
