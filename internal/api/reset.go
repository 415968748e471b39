package api

import (
	"net/http"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
)

// ResetHandler удаляет все сохранённые кадры и записи
func (h *Handlers) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.evidence.Reset(r.Context()); err != nil {
		logger.Error(module, "reset evidence: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to reset evidence")
		return
	}

	logger.Info(module, "[RESET] Logs and screenshots cleared.")
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}
