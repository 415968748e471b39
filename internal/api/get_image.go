package api

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/storage"
	"github.com/gorilla/mux"
)

func (h *Handlers) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	data, err := h.evidence.Read(r.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		logger.Error(module, "read %s: %v", filename, err)
		http.Error(w, "Storage error", http.StatusInternalServerError)
		return
	}

	ctype := mime.TypeByExtension(filepath.Ext(filename))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
