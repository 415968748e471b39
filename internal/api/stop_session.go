package api

import "net/http"

func (h *Handlers) StopSessionHandler(w http.ResponseWriter, r *http.Request) {
	stopped := h.controller.Stop()
	running, info := h.controller.Status()

	writeJSON(w, http.StatusOK, map[string]any{
		"stopped": stopped,
		"running": running,
		"session": info,
	})
}
