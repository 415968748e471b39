package api

import (
	"net/http"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
)

func (h *Handlers) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	videos, err := h.videos.ListVideos()
	if err != nil {
		logger.Error(module, "list videos: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	writeJSON(w, http.StatusOK, videos)
}
