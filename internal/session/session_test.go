package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/frames"
	"github.com/Capitan-Parrot/threatsnap/internal/kafka"
	"github.com/Capitan-Parrot/threatsnap/internal/metrics"
	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource yields n frames spaced step apart on the stream clock. When hold
// is set it blocks after the last frame until closed, like a live camera.
type fakeSource struct {
	n    uint64
	step time.Duration
	hold bool

	mu       sync.Mutex
	read     uint64
	closed   bool
	closes   int
	released chan struct{}
}

func newFakeSource(n int, step time.Duration, hold bool) *fakeSource {
	return &fakeSource{n: uint64(n), step: step, hold: hold, released: make(chan struct{})}
}

func (f *fakeSource) Next() (models.Frame, bool) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return models.Frame{}, false
	}
	if f.read >= f.n {
		f.mu.Unlock()
		if f.hold {
			<-f.released
		}
		return models.Frame{}, false
	}
	f.read++
	seq := f.read
	f.mu.Unlock()
	return models.Frame{Data: []byte{byte(seq)}, Seq: seq}, true
}

func (f *fakeSource) StreamTime() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.read == 0 {
		return 0
	}
	return time.Duration(f.read-1) * f.step
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if !f.closed {
		f.closed = true
		close(f.released)
	}
	return nil
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// zigzagLocator puts one person alternately at x=0 and x=100, so every frame
// after the first is movement.
type zigzagLocator struct {
	failOn map[uint64]bool
}

func (l zigzagLocator) Locate(_ context.Context, frame models.Frame) ([]models.PersonBox, error) {
	if l.failOn[frame.Seq] {
		return nil, errors.New("detector unavailable")
	}
	return []models.PersonBox{{X: float64(frame.Seq%2) * 100, Y: 50}}, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []models.TriggerEvent
}

func (r *fakeRecorder) Record(_ context.Context, ev models.TriggerEvent) (models.LogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return models.LogRecord{Timestamp: fmt.Sprint(ev.Frame.Seq)}, nil
}

func (r *fakeRecorder) recorded() []models.TriggerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TriggerEvent(nil), r.events...)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (e *fakeEvents) SendEvent(ev models.SessionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *fakeEvents) types() []models.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.EventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

func testOptions() Options {
	return Options{Threshold: 40, Cooldown: 5 * time.Second, HeartbeatInterval: time.Hour}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestSessionCooldownOnStreamClock(t *testing.T) {
	rec := &fakeRecorder{}
	m := metrics.New()
	s := New("s-1", models.SourceSpec{Kind: models.SourceFile, Location: "lobby.mp4"},
		Deps{Locator: zigzagLocator{}, Recorder: rec, Metrics: m}, testOptions())

	src := newFakeSource(12, time.Second, false)
	require.True(t, s.Start(src, "guard@example.com"))
	waitDone(t, s)

	events := rec.recorded()
	require.Len(t, events, 3)
	assert.Equal(t, []time.Duration{time.Second, 6 * time.Second, 11 * time.Second},
		[]time.Duration{events[0].StreamTime, events[1].StreamTime, events[2].StreamTime})
	assert.Equal(t, uint64(2), events[0].Frame.Seq)
	assert.Equal(t, "guard@example.com", events[0].NotifyAddress)
	assert.Equal(t, "s-1", events[0].SessionID)

	snap := m.Snapshot()
	assert.Equal(t, uint64(12), snap.FramesRead)
	assert.Equal(t, uint64(11), snap.Movements)
	assert.Equal(t, uint64(3), snap.Triggers)
	assert.Equal(t, uint64(8), snap.Suppressed)
	assert.False(t, snap.Running)
}

func TestSessionEndsWithStream(t *testing.T) {
	events := &fakeEvents{}
	s := New("s-1", models.SourceSpec{}, Deps{Locator: zigzagLocator{}, Recorder: &fakeRecorder{}, Events: events}, testOptions())

	src := newFakeSource(3, time.Second, false)
	require.True(t, s.Start(src, ""))
	waitDone(t, s)

	assert.False(t, s.Running())
	assert.True(t, src.isClosed())
	assert.Equal(t, models.StateStopped, s.Info().State)
	assert.Equal(t, uint64(3), s.Frames())
	assert.Equal(t, []models.EventType{models.EventStopped}, events.types())

	// stop after a natural end is a no-op
	s.Stop()
	assert.False(t, s.Running())
}

func TestSessionDoubleStartKeepsOneWorker(t *testing.T) {
	rec := &fakeRecorder{}
	s := New("s-1", models.SourceSpec{}, Deps{Locator: zigzagLocator{}, Recorder: rec}, testOptions())

	first := newFakeSource(0, time.Second, true)
	second := newFakeSource(5, time.Second, false)

	require.True(t, s.Start(first, ""))
	assert.False(t, s.Start(second, ""))
	assert.True(t, s.Running())
	assert.False(t, second.isClosed())

	s.Stop()
	assert.False(t, s.Running())
	assert.True(t, first.isClosed())
	assert.Empty(t, rec.recorded())
}

func TestSessionStopJoinsAndReleasesSource(t *testing.T) {
	s := New("s-1", models.SourceSpec{}, Deps{Locator: zigzagLocator{}, Recorder: &fakeRecorder{}}, Options{
		Cooldown:          time.Second,
		FrameDelay:        time.Hour,
		HeartbeatInterval: time.Hour,
	})

	src := newFakeSource(100, time.Second, false)
	require.True(t, s.Start(src, ""))

	require.Eventually(t, func() bool { return s.Frames() >= 1 }, time.Second, time.Millisecond)
	s.Stop()

	assert.False(t, s.Running())
	assert.True(t, src.isClosed())
	assert.Equal(t, uint64(1), s.Frames())

	s.Stop()
}

func TestSessionSkipsFramesWhenLocateFails(t *testing.T) {
	rec := &fakeRecorder{}
	m := metrics.New()
	loc := zigzagLocator{failOn: map[uint64]bool{2: true}}
	s := New("s-1", models.SourceSpec{}, Deps{Locator: loc, Recorder: rec, Metrics: m}, testOptions())

	require.True(t, s.Start(newFakeSource(3, time.Second, false), ""))
	waitDone(t, s)

	// frame 2 is skipped, frame 3 is compared with frame 1 (x=100 both)
	assert.Empty(t, rec.recorded())
	assert.Equal(t, uint64(1), m.LocateErrors.Load())
}

func TestSessionRestartAfterStop(t *testing.T) {
	rec := &fakeRecorder{}
	s := New("s-1", models.SourceSpec{}, Deps{Locator: zigzagLocator{}, Recorder: rec}, testOptions())

	require.True(t, s.Start(newFakeSource(2, time.Second, false), ""))
	waitDone(t, s)
	require.True(t, s.Start(newFakeSource(2, time.Second, false), ""))
	waitDone(t, s)

	// cooldown state does not carry over between runs
	assert.Len(t, rec.recorded(), 2)
}

type fakeOpener struct {
	mu        sync.Mutex
	sources   map[string]*fakeSource
	opened    []*fakeSource
	overlaps  int
	validated []string
}

func (o *fakeOpener) Validate(_ context.Context, spec models.SourceSpec) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.validated = append(o.validated, spec.Location)
	if _, ok := o.sources[spec.Location]; !ok {
		return fmt.Errorf("%w: %s", frames.ErrSourceNotFound, spec.Location)
	}
	return nil
}

// Open counts opens that happen while an earlier source is still open.
func (o *fakeOpener) Open(_ context.Context, spec models.SourceSpec) (frames.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	src, ok := o.sources[spec.Location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", frames.ErrSourceNotFound, spec.Location)
	}
	for _, prev := range o.opened {
		if !prev.isClosed() {
			o.overlaps++
		}
	}
	o.opened = append(o.opened, src)
	return src, nil
}

type fakeRegistry struct {
	mu      sync.Mutex
	created []models.SessionInfo
	states  map[string]models.SessionState
	touches int
}

func (r *fakeRegistry) CreateSession(_ context.Context, info *models.SessionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *info)
	return nil
}

func (r *fakeRegistry) ChangeSessionState(_ context.Context, id string, state models.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states == nil {
		r.states = map[string]models.SessionState{}
	}
	r.states[id] = state
	return nil
}

func (r *fakeRegistry) UpdateSessionTimestamp(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touches++
	return nil
}

func (r *fakeRegistry) touched() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touches
}

func TestHeartbeatWhileSourceStalls(t *testing.T) {
	src := newFakeSource(0, time.Second, true)
	registry := &fakeRegistry{}
	events := &fakeEvents{}
	opts := testOptions()
	opts.HeartbeatInterval = 10 * time.Millisecond

	s := New("stalled", models.SourceSpec{Kind: models.SourceLive, Location: "rtsp://cam/1"},
		Deps{Locator: zigzagLocator{}, Recorder: &fakeRecorder{}, Events: events, Tracker: registry}, opts)
	require.True(t, s.Start(src, ""))

	require.Eventually(t, func() bool { return registry.touched() >= 2 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	types := events.types()
	assert.Contains(t, types, models.EventHeartbeat)
	assert.Equal(t, models.EventStopped, types[len(types)-1])

	n := registry.touched()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, registry.touched())
}

func TestControllerStartReplacesRunningSession(t *testing.T) {
	lobby := newFakeSource(0, time.Second, true)
	garage := newFakeSource(0, time.Second, true)
	opener := &fakeOpener{sources: map[string]*fakeSource{"lobby.mp4": lobby, "garage.mp4": garage}}
	registry := &fakeRegistry{}

	c := NewController(opener, Deps{Locator: zigzagLocator{}, Recorder: &fakeRecorder{}}, registry, testOptions())
	ids := []string{"first", "second"}
	c.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	info, err := c.Start(context.Background(), models.SourceSpec{Location: "lobby.mp4"}, "")
	require.NoError(t, err)
	assert.Equal(t, "first", info.ID)
	assert.Equal(t, models.SourceFile, info.Source.Kind)
	first := c.Current()

	info, err = c.Start(context.Background(), models.SourceSpec{Kind: models.SourceFile, Location: "garage.mp4"}, "guard@example.com")
	require.NoError(t, err)
	assert.Equal(t, "second", info.ID)
	assert.Equal(t, "guard@example.com", info.NotifyAddress)

	assert.False(t, first.Running())
	assert.True(t, lobby.isClosed())

	running, status := c.Status()
	assert.True(t, running)
	require.NotNil(t, status)
	assert.Equal(t, "second", status.ID)

	assert.True(t, c.Stop())
	assert.False(t, c.Stop())
	assert.True(t, garage.isClosed())

	registry.mu.Lock()
	defer registry.mu.Unlock()
	require.Len(t, registry.created, 2)
	assert.Equal(t, models.StateRunning, registry.created[0].State)
	assert.Equal(t, models.StateStopped, registry.states["first"])
	assert.Equal(t, models.StateStopped, registry.states["second"])
}

func TestControllerStartConfigFaultKeepsCurrent(t *testing.T) {
	lobby := newFakeSource(0, time.Second, true)
	opener := &fakeOpener{sources: map[string]*fakeSource{"lobby.mp4": lobby}}
	c := NewController(opener, Deps{Locator: zigzagLocator{}, Recorder: &fakeRecorder{}}, nil, testOptions())

	running, status := c.Status()
	assert.False(t, running)
	assert.Nil(t, status)

	_, err := c.Start(context.Background(), models.SourceSpec{Location: "lobby.mp4"}, "")
	require.NoError(t, err)

	_, err = c.Start(context.Background(), models.SourceSpec{Location: "missing.mp4"}, "")
	assert.ErrorIs(t, err, frames.ErrSourceNotFound)

	running, _ = c.Status()
	assert.True(t, running)
	assert.False(t, lobby.isClosed())

	c.Stop()
}

func TestControllerClosesPreviousSourceBeforeOpening(t *testing.T) {
	cam1 := newFakeSource(0, time.Second, true)
	cam2 := newFakeSource(0, time.Second, true)
	opener := &fakeOpener{sources: map[string]*fakeSource{"/dev/video0": cam1, "rtsp://cam/2": cam2}}
	c := NewController(opener, Deps{Locator: zigzagLocator{}, Recorder: &fakeRecorder{}}, nil, testOptions())

	_, err := c.Start(context.Background(), models.SourceSpec{Kind: models.SourceLive, Location: "/dev/video0"}, "")
	require.NoError(t, err)
	_, err = c.Start(context.Background(), models.SourceSpec{Kind: models.SourceLive, Location: "rtsp://cam/2"}, "")
	require.NoError(t, err)

	opener.mu.Lock()
	assert.Zero(t, opener.overlaps)
	assert.Equal(t, []string{"/dev/video0", "rtsp://cam/2"}, opener.validated)
	opener.mu.Unlock()
	assert.True(t, cam1.isClosed())

	c.Stop()
}

type chanCommands chan kafka.Message

func (c chanCommands) Messages() <-chan kafka.Message { return c }

func TestListenAndRunAppliesCommands(t *testing.T) {
	lobby := newFakeSource(0, time.Second, true)
	opener := &fakeOpener{sources: map[string]*fakeSource{"lobby.mp4": lobby}}
	c := NewController(opener, Deps{Locator: zigzagLocator{}, Recorder: &fakeRecorder{}}, nil, testOptions())

	commands := make(chanCommands)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.ListenAndRun(ctx, commands)
	}()

	commands <- kafka.Message{Value: []byte(`{"action":"start","source":{"kind":"file","location":"lobby.mp4"}}`)}
	commands <- kafka.Message{Value: []byte(`garbage`)}
	require.Eventually(t, func() bool {
		running, _ := c.Status()
		return running
	}, time.Second, 5*time.Millisecond)

	commands <- kafka.Message{Value: []byte(`{"action":"stop"}`)}
	require.Eventually(t, lobby.isClosed, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
