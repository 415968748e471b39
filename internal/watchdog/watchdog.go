package watchdog

import (
	"context"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
)

const module = "watchdog"

// Index finds sessions that stopped sending heartbeats.
type Index interface {
	StopStaleSessions(ctx context.Context, before time.Time) ([]string, error)
}

// Watchdog closes sessions left running in the index, e.g. after a crash.
type Watchdog struct {
	index    Index
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// New creates a Watchdog. A session is stale after three missed heartbeats.
func New(index Index, heartbeat time.Duration) *Watchdog {
	return &Watchdog{
		index:    index,
		interval: heartbeat * 6,
		maxAge:   heartbeat * 3,
		now:      time.Now,
	}
}

// Start checks once immediately and then periodically until ctx is done.
func (w *Watchdog) Start(ctx context.Context) {
	w.Check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(module, "watchdog stopped")
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check stops stale sessions and returns how many were found.
func (w *Watchdog) Check(ctx context.Context) int {
	ids, err := w.index.StopStaleSessions(ctx, w.now().Add(-w.maxAge))
	if err != nil {
		logger.Warn(module, "failed to find stale sessions: %v", err)
		return 0
	}

	for _, id := range ids {
		logger.Info(module, "session %s has no heartbeat, marked stopped", id)
	}
	return len(ids)
}
