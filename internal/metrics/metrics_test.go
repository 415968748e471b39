package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.FramesRead.Add(12)
	m.Triggers.Add(2)
	m.SetRunning(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "threatsnap_frames_read_total 12")
	assert.Contains(t, string(body), "threatsnap_triggers_total 2")
	assert.Contains(t, string(body), "threatsnap_session_running 1")
}

func TestSnapshot(t *testing.T) {
	m := New()
	m.Suppressed.Add(3)
	m.SetRunning(true)
	m.SetRunning(false)

	s := m.Snapshot()
	assert.Equal(t, uint64(3), s.Suppressed)
	assert.False(t, s.Running)
}
