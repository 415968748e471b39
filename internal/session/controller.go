package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/frames"
	"github.com/Capitan-Parrot/threatsnap/internal/kafka"
	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/google/uuid"
)

// Opener checks and opens frame sources. Validate must not start anything.
type Opener interface {
	Validate(ctx context.Context, spec models.SourceSpec) error
	Open(ctx context.Context, spec models.SourceSpec) (frames.Source, error)
}

// Registry records sessions in the audit index.
type Registry interface {
	Tracker
	CreateSession(ctx context.Context, session *models.SessionInfo) error
}

// Commands delivers remote control messages.
type Commands interface {
	Messages() <-chan kafka.Message
}

// Controller owns the current session. Control operations are serialised; status
// reads do not wait for them.
type Controller struct {
	opener   Opener
	deps     Deps
	registry Registry
	opts     Options

	ctrlMu  sync.Mutex
	mu      sync.RWMutex
	current *Session

	newID func() string
}

// NewController creates a Controller. registry may be nil.
func NewController(opener Opener, deps Deps, registry Registry, opts Options) *Controller {
	if registry != nil && deps.Tracker == nil {
		deps.Tracker = registry
	}
	return &Controller{
		opener:   opener,
		deps:     deps,
		registry: registry,
		opts:     opts,
		newID:    uuid.NewString,
	}
}

// Start replaces any running session with a new one over spec. spec is validated
// first; on a configuration fault nothing is stopped. The previous session is
// stopped and its source closed before the new source is opened, so a device can
// be reopened by the new session.
func (c *Controller) Start(ctx context.Context, spec models.SourceSpec, notifyAddress string) (models.SessionInfo, error) {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if err := c.opener.Validate(ctx, spec); err != nil {
		logger.Error(module, "[ERROR] invalid source %q: %v", spec.Location, err)
		return models.SessionInfo{}, fmt.Errorf("open source: %w", err)
	}

	c.mu.RLock()
	prev := c.current
	c.mu.RUnlock()
	if prev != nil {
		prev.Stop()
	}

	src, err := c.opener.Open(ctx, spec)
	if err != nil {
		logger.Error(module, "[ERROR] cannot open source %q: %v", spec.Location, err)
		return models.SessionInfo{}, fmt.Errorf("open source: %w", err)
	}

	if spec.Kind == "" {
		spec.Kind = models.SourceFile
	}
	s := New(c.newID(), spec, c.deps, c.opts)

	if c.registry != nil {
		info := s.Info()
		info.State = models.StateRunning
		info.NotifyAddress = notifyAddress
		if err := c.registry.CreateSession(ctx, &info); err != nil {
			logger.Warn(module, "session %s: store in index: %v", s.ID(), err)
		}
	}

	c.mu.Lock()
	c.current = s
	c.mu.Unlock()

	s.Start(src, notifyAddress)
	s.emit(models.EventStarted, 0)

	return s.Info(), nil
}

// Stop stops the current session, if any, and waits for it.
func (c *Controller) Stop() bool {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	c.mu.RLock()
	s := c.current
	c.mu.RUnlock()

	if s == nil || !s.Running() {
		return false
	}
	s.Stop()
	return true
}

// Status reports whether a session is running and the latest session, if any.
func (c *Controller) Status() (bool, *models.SessionInfo) {
	c.mu.RLock()
	s := c.current
	c.mu.RUnlock()

	if s == nil {
		return false, nil
	}
	info := s.Info()
	return s.Running(), &info
}

// Current returns the latest session or nil.
func (c *Controller) Current() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// ListenAndRun applies commands until ctx is cancelled or the channel closes.
func (c *Controller) ListenAndRun(ctx context.Context, commands Commands) {
	logger.Info(module, "listening for remote commands")
	for {
		select {
		case <-ctx.Done():
			logger.Info(module, "command listener shutting down")
			return
		case msg, ok := <-commands.Messages():
			if !ok {
				return
			}

			cmd, err := kafka.DecodeCommand(msg.Value)
			if err != nil {
				logger.Warn(module, "invalid command: %v", err)
				// Не подтверждаем сообщение при ошибке парсинга
				continue
			}
			logger.Info(module, "received %s command", cmd.Action)

			if err := c.apply(ctx, cmd); err != nil {
				logger.Error(module, "error processing command: %v", err)
				// Не подтверждаем сообщение при ошибке обработки
				continue
			}

			// Подтверждаем сообщение только после успешной обработки
			msg.Ack()
		}
	}
}

func (c *Controller) apply(ctx context.Context, cmd models.SessionCommand) error {
	switch cmd.Action {
	case models.CommandStart:
		openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		_, err := c.Start(openCtx, cmd.Source, cmd.Email)
		return err
	case models.CommandStop:
		c.Stop()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd.Action)
	}
}
