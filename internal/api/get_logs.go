package api

import (
	"net/http"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/storage"
)

const liveLogLines = 100

// GetLogsHandler возвращает все записи, новые первыми
func (h *Handlers) GetLogsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.evidence.ListRecords(r.Context())
	if err != nil {
		logger.Error(module, "list records: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handlers) GetActionRequiredHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.evidence.ListRecords(r.Context())
	if err != nil {
		logger.Error(module, "list records: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, storage.ActionRequired(records))
}

func (h *Handlers) GetLiveLogsHandler(w http.ResponseWriter, r *http.Request) {
	lines := h.logs.Recent(liveLogLines)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, lines)
}
