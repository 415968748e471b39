package api

import (
	"context"
	"net/http"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/metrics"
	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

const module = "api"

type Controller interface {
	Start(ctx context.Context, spec models.SourceSpec, notifyAddress string) (models.SessionInfo, error)
	Stop() bool
	Status() (bool, *models.SessionInfo)
}

type Evidence interface {
	ListRecords(ctx context.Context) ([]models.LogRecord, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Reset(ctx context.Context) error
}

type Videos interface {
	ListVideos() ([]string, error)
}

type History interface {
	GetSessions(ctx context.Context, limit int) ([]models.SessionInfo, error)
	// GetSession returns nil without error for an unknown id.
	GetSession(ctx context.Context, sessionID string) (*models.SessionInfo, error)
	GetRecords(ctx context.Context, sessionID string) ([]models.LogRecord, error)
}

type LiveLog interface {
	Recent(n int) []string
}

type Handlers struct {
	controller Controller
	evidence   Evidence
	videos     Videos
	history    History
	logs       LiveLog
	metrics    *metrics.Metrics
}

// NewHandlers creates the HTTP handlers. history and m may be nil.
func NewHandlers(controller Controller, evidence Evidence, videos Videos, history History, logs LiveLog, m *metrics.Metrics) *Handlers {
	return &Handlers{
		controller: controller,
		evidence:   evidence,
		videos:     videos,
		history:    history,
		logs:       logs,
		metrics:    m,
	}
}

// Router registers all routes
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/start", h.StartSessionHandler).Methods(http.MethodPost)
	r.HandleFunc("/stop", h.StopSessionHandler).Methods(http.MethodPost)
	r.HandleFunc("/status", h.GetStatusHandler).Methods(http.MethodGet)

	r.HandleFunc("/logs", h.GetLogsHandler).Methods(http.MethodGet)
	r.HandleFunc("/logs/action-required", h.GetActionRequiredHandler).Methods(http.MethodGet)
	r.HandleFunc("/logs/live", h.GetLiveLogsHandler).Methods(http.MethodGet)
	r.HandleFunc("/images/{filename}", h.GetImageHandler).Methods(http.MethodGet)
	r.HandleFunc("/reset", h.ResetHandler).Methods(http.MethodPost)

	r.HandleFunc("/videos", h.ListVideosHandler).Methods(http.MethodGet)
	r.HandleFunc("/sessions", h.ListSessionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", h.GetSessionHandler).Methods(http.MethodGet)

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(module, "encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
