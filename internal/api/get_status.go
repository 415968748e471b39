package api

import (
	"net/http"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
)

type statusResponse struct {
	Running bool                `json:"running"`
	Session *models.SessionInfo `json:"session"`
}

// GetStatusHandler возвращает состояние текущей сессии
func (h *Handlers) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	running, info := h.controller.Status()
	writeJSON(w, http.StatusOK, statusResponse{Running: running, Session: info})
}
