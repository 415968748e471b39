// Package session runs the per-frame detection loop and owns the single active
// monitoring session.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/frames"
	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/metrics"
	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/Capitan-Parrot/threatsnap/internal/movement"
	"github.com/Capitan-Parrot/threatsnap/internal/trigger"
)

const module = "session"

type Locator interface {
	Locate(ctx context.Context, frame models.Frame) ([]models.PersonBox, error)
}

type Recorder interface {
	Record(ctx context.Context, ev models.TriggerEvent) (models.LogRecord, error)
}

type EventSink interface {
	SendEvent(event models.SessionEvent) error
}

// Tracker mirrors session state into the audit index.
type Tracker interface {
	ChangeSessionState(ctx context.Context, sessionID string, state models.SessionState) error
	UpdateSessionTimestamp(ctx context.Context, sessionID string) error
}

type Options struct {
	Threshold         float64
	Cooldown          time.Duration
	FrameDelay        time.Duration
	HeartbeatInterval time.Duration
}

// Deps are the collaborators of a session. Events, Tracker and Metrics may be nil.
type Deps struct {
	Locator  Locator
	Recorder Recorder
	Events   EventSink
	Tracker  Tracker
	Metrics  *metrics.Metrics
}

// Session is one monitoring run over a frame source. At most one worker
// goroutine runs per Session.
type Session struct {
	id   string
	deps Deps
	opts Options

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	info    models.SessionInfo

	lastSeq atomic.Uint64
}

func New(id string, source models.SourceSpec, deps Deps, opts Options) *Session {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 5 * time.Second
	}
	now := time.Now()
	return &Session{
		id:   id,
		deps: deps,
		opts: opts,
		info: models.SessionInfo{
			ID:        id,
			Source:    source,
			State:     models.StateStopped,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (s *Session) ID() string {
	return s.id
}

// Start launches the worker over src. It is a no-op returning false while the
// session is running; the caller keeps ownership of src in that case.
func (s *Session) Start(src frames.Source, notifyAddress string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.running = true
	s.cancel = cancel
	s.done = done
	s.info.State = models.StateRunning
	s.info.NotifyAddress = notifyAddress
	s.info.UpdatedAt = time.Now()

	if s.deps.Metrics != nil {
		s.deps.Metrics.SetRunning(true)
		s.deps.Metrics.SessionsStarted.Add(1)
	}

	logger.Info(module, "[STARTED] session %s on %s", s.id, src.Name())
	go s.run(ctx, src, notifyAddress, done)
	return true
}

// Stop asks the worker to finish and waits for it. The source is closed before
// Stop returns. No-op when not running.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Done is closed when the current worker exits; nil before the first Start.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Session) Info() models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Frames is the sequence number of the last frame read.
func (s *Session) Frames() uint64 {
	return s.lastSeq.Load()
}

func (s *Session) run(ctx context.Context, src frames.Source, notifyAddress string, done chan struct{}) {
	// закрытие источника прерывает блокирующий Next
	stopClose := context.AfterFunc(ctx, func() { _ = src.Close() })

	defer func() {
		stopClose()
		if err := src.Close(); err != nil {
			logger.Warn(module, "session %s: close source: %v", s.id, err)
		}

		s.mu.Lock()
		s.running = false
		s.info.State = models.StateStopped
		s.info.UpdatedAt = time.Now()
		s.mu.Unlock()

		if s.deps.Metrics != nil {
			s.deps.Metrics.SetRunning(false)
		}
		if s.deps.Tracker != nil {
			if err := s.deps.Tracker.ChangeSessionState(context.Background(), s.id, models.StateStopped); err != nil {
				logger.Warn(module, "session %s: store state: %v", s.id, err)
			}
		}
		s.emit(models.EventStopped, s.lastSeq.Load())

		logger.Info(module, "[STOPPED] Monitoring session %s ended.", s.id)
		close(done)
	}()

	evaluator := movement.NewEvaluator(s.opts.Threshold)
	gate := trigger.NewGate(s.opts.Cooldown)

	// heartbeats keep going while Next blocks on a stalled source
	hbCtx, hbCancel := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go s.heartbeatLoop(hbCtx, hbDone)
	defer func() {
		hbCancel()
		<-hbDone
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		frame, ok := src.Next()
		if !ok {
			if ctx.Err() == nil {
				logger.Info(module, "[VIDEO END] session %s: stream ended after %d frames", s.id, s.lastSeq.Load())
			}
			return
		}
		s.lastSeq.Store(frame.Seq)
		if s.deps.Metrics != nil {
			s.deps.Metrics.FramesRead.Add(1)
		}

		s.step(ctx, src, evaluator, gate, frame, notifyAddress)

		if s.opts.FrameDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.FrameDelay):
			}
		}
	}
}

// step runs one detection iteration. Detection runs on every frame so the
// previous boxes stay current through a cooldown window.
func (s *Session) step(ctx context.Context, src frames.Source, evaluator *movement.Evaluator, gate *trigger.Gate, frame models.Frame, notifyAddress string) {
	boxes, err := s.deps.Locator.Locate(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn(module, "session %s: frame %d skipped, locate failed: %v", s.id, frame.Seq, err)
		if s.deps.Metrics != nil {
			s.deps.Metrics.LocateErrors.Add(1)
		}
		return
	}

	decision := evaluator.Step(boxes)
	if !decision.Moved {
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.Movements.Add(1)
	}

	now := src.StreamTime()
	if !gate.Allow(now) {
		logger.Debug(module, "session %s: movement at %v suppressed, cooling until %v", s.id, now, gate.Until())
		if s.deps.Metrics != nil {
			s.deps.Metrics.Suppressed.Add(1)
		}
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.Triggers.Add(1)
	}

	logger.Info(module, "[MOVEMENT] session %s: frame %d at %v, %d person(s)", s.id, frame.Seq, now, len(decision.Boxes))

	// анализ не прерывается остановкой сессии
	if _, err := s.deps.Recorder.Record(context.WithoutCancel(ctx), models.TriggerEvent{
		SessionID:     s.id,
		Frame:         frame,
		StreamTime:    now,
		NotifyAddress: notifyAddress,
	}); err != nil {
		logger.Error(module, "session %s: record frame %d: %v", s.id, frame.Seq, err)
	}
}

func (s *Session) heartbeatLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.heartbeat(ctx, s.lastSeq.Load())
		}
	}
}

func (s *Session) heartbeat(ctx context.Context, seq uint64) {
	s.mu.Lock()
	s.info.UpdatedAt = time.Now()
	s.mu.Unlock()

	if s.deps.Tracker != nil {
		if err := s.deps.Tracker.UpdateSessionTimestamp(ctx, s.id); err != nil {
			logger.Warn(module, "session %s: update timestamp: %v", s.id, err)
		}
	}
	s.emit(models.EventHeartbeat, seq)
}

func (s *Session) emit(t models.EventType, seq uint64) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.SendEvent(models.SessionEvent{
		SessionID: s.id,
		Type:      t,
		Frame:     seq,
		TimeStamp: time.Now().UTC(),
	}); err != nil {
		logger.Warn(module, "session %s: send %s event: %v", s.id, t, err)
	}
}
