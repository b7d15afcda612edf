package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/mission-console/internal/storage"
)

// MissionsHandler serves mission definitions.
// GET /v1/missions        - name to file name map
// GET /v1/missions/{file} - one mission
type MissionsHandler struct {
	logger   *slog.Logger
	missions storage.MissionStore
}

func NewMissionsHandler(logger *slog.Logger, missions storage.MissionStore) *MissionsHandler {
	return &MissionsHandler{
		logger:   logger,
		missions: missions,
	}
}

func (h *MissionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	filename := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/missions"), "/")
	if filename == "" {
		h.handleList(w, r)
		return
	}

	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || !storage.IsMissionFile(filename) {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid mission file name")
		return
	}

	mission, err := h.missions.GetMission(r.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrMissionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Mission not found")
			return
		}
		h.logger.Error("Failed to get mission", "error", err, "filename", filename)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to retrieve mission")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, mission)
}

func (h *MissionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	missions, err := h.missions.ListMissions(r.Context())
	if err != nil {
		h.logger.Error("Failed to list missions", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list missions")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, missions)
}
