package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jwebster45206/mission-console/internal/storage"
)

const (
	defaultRunLimit = 10
	maxRunLimit     = 100
)

type RunListResponse struct {
	Runs []uuid.UUID `json:"runs"`
}

// RunsHandler exposes saved runs to spectators.
// Routes:
// GET /v1/runs             - recent run ids, newest first (?limit=N)
// GET /v1/runs/{id}        - run snapshot
// DELETE /v1/runs/{id}     - delete run
// GET /v1/runs/{id}/events - live event stream, when events are configured
type RunsHandler struct {
	runs   storage.RunStore
	events http.Handler
	logger *slog.Logger
}

// NewRunsHandler creates a runs handler. events may be nil, in which case
// the events route answers 404.
func NewRunsHandler(logger *slog.Logger, runs storage.RunStore, events http.Handler) *RunsHandler {
	return &RunsHandler{
		runs:   runs,
		events: events,
		logger: logger,
	}
}

func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/runs"), "/")
	if path == "" {
		if r.Method != http.MethodGet {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.handleList(w, r)
		return
	}

	parts := strings.Split(path, "/")
	if len(parts) == 2 && parts[1] == "events" {
		if h.events == nil {
			writeError(w, h.logger, http.StatusNotFound, "Event streaming is not enabled")
			return
		}
		h.events.ServeHTTP(w, r)
		return
	}
	if len(parts) != 1 {
		writeError(w, h.logger, http.StatusNotFound, "Not found")
		return
	}

	runID, err := uuid.Parse(parts[0])
	if err != nil {
		h.logger.Warn("Invalid run ID", "id", parts[0], "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid run ID format")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, runID)
	case http.MethodDelete:
		h.handleDelete(w, r, runID)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *RunsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, h.logger, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	ids, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	writeJSON(w, h.logger, http.StatusOK, RunListResponse{Runs: ids})
}

func (h *RunsHandler) handleGet(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	run, err := h.runs.LoadRun(r.Context(), runID)
	if err != nil {
		h.logger.Error("Failed to load run", "error", err, "run_id", runID.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load run")
		return
	}
	if run == nil {
		writeError(w, h.logger, http.StatusNotFound, "Run not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, run)
}

func (h *RunsHandler) handleDelete(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	if err := h.runs.DeleteRun(r.Context(), runID); err != nil {
		h.logger.Error("Failed to delete run", "error", err, "run_id", runID.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to delete run")
		return
	}
	h.logger.Info("Run deleted", "run_id", runID.String())
	w.WriteHeader(http.StatusNoContent)
}
