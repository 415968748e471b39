// Package frames reads JPEG frames from video files, live cameras and object storage.
package frames

import (
	"errors"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
)

var (
	ErrSourceNotFound = errors.New("video source not found")
	ErrUnknownKind    = errors.New("unknown source kind")
)

// Source yields frames sequentially. Next returns ok=false once the stream is
// exhausted or a read failed; both end the session the same way.
type Source interface {
	Next() (models.Frame, bool)
	// StreamTime is the session clock: stream position for file-backed sources,
	// wall time elapsed since the source was opened for live ones.
	StreamTime() time.Duration
	Close() error
	Name() string
}

// Clock maps the number of frames read so far to the session clock.
type Clock func(read uint64) time.Duration

// StreamClock reports the position of the last read frame in a stream sampled at fps.
func StreamClock(fps float64) Clock {
	return func(read uint64) time.Duration {
		if read == 0 || fps <= 0 {
			return 0
		}
		return time.Duration(float64(read-1) / fps * float64(time.Second))
	}
}

// WallClock reports time elapsed since start according to now.
func WallClock(start time.Time, now func() time.Time) Clock {
	if now == nil {
		now = time.Now
	}
	return func(uint64) time.Duration {
		return now().Sub(start)
	}
}
