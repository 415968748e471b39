package api

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/Capitan-Parrot/threatsnap/internal/frames"
	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/goccy/go-json"
)

type startRequest struct {
	Filename    string            `json:"filename"`
	Source      string            `json:"source"`
	Kind        models.SourceKind `json:"kind"`
	EnableEmail flag              `json:"enable_email"`
	Email       string            `json:"email"`
}

// flag принимает как bool, так и значение чекбокса формы ("on")
type flag bool

func (f *flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = parseFlag(s)
	return nil
}

func parseFlag(s string) flag {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func (req startRequest) spec() models.SourceSpec {
	location := req.Source
	if location == "" {
		location = req.Filename
	}
	kind := req.Kind
	if kind == "" {
		kind = models.SourceFile
	}
	return models.SourceSpec{Kind: kind, Location: strings.TrimSpace(location)}
}

func (req startRequest) notifyAddress() string {
	if !req.EnableEmail {
		return ""
	}
	return strings.TrimSpace(req.Email)
}

func decodeStartRequest(r *http.Request) (startRequest, error) {
	var req startRequest

	ctype, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ctype == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return req, err
	}
	req.Filename = r.FormValue("filename")
	req.Source = r.FormValue("source")
	req.Kind = models.SourceKind(r.FormValue("kind"))
	req.EnableEmail = parseFlag(r.FormValue("enable_email"))
	req.Email = r.FormValue("email")
	return req, nil
}

// StartSessionHandler останавливает текущую сессию и запускает новую
func (h *Handlers) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeStartRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info, err := h.controller.Start(r.Context(), req.spec(), req.notifyAddress())
	if err != nil {
		if errors.Is(err, frames.ErrSourceNotFound) || errors.Is(err, frames.ErrUnknownKind) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error(module, "start session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Running: true, Session: &info})
}
