package api

import (
	"net/http"
	"strconv"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
)

// ListSessionsHandler отдаёт историю сессий из аудита
func (h *Handlers) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "session history is not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := h.history.GetSessions(r.Context(), limit)
	if err != nil {
		logger.Error(module, "get sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}
