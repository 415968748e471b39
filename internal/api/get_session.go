package api

import (
	"net/http"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/gorilla/mux"
)

type sessionResponse struct {
	Session models.SessionInfo `json:"session"`
	Records []models.LogRecord `json:"records"`
}

// GetSessionHandler отдаёт сессию из аудита вместе с её записями
func (h *Handlers) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "session history is not configured")
		return
	}

	sessionID := mux.Vars(r)["id"]

	session, err := h.history.GetSession(r.Context(), sessionID)
	if err != nil {
		logger.Error(module, "get session %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	records, err := h.history.GetRecords(r.Context(), sessionID)
	if err != nil {
		logger.Error(module, "get records of %s: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Session: *session, Records: records})
}
