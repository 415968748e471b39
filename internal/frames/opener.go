package frames

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
)

// BucketOpener opens frames pre-extracted into object storage.
type BucketOpener interface {
	// CheckFrames reports whether location holds any frames without opening it.
	CheckFrames(ctx context.Context, location string) error
	OpenFrames(ctx context.Context, location string, fps float64) (Source, error)
}

// Opener validates a source request and starts reading it.
type Opener struct {
	VideoDir   string
	FFmpegPath string
	SampleFPS  float64
	Buckets    BucketOpener

	// start launches the decoder; replaced in tests
	start func(binary, name, input string, live bool, fps float64, clock Clock) (Source, error)
	now   func() time.Time
}

func NewOpener(videoDir, ffmpegPath string, fps float64, buckets BucketOpener) *Opener {
	return &Opener{
		VideoDir:   videoDir,
		FFmpegPath: ffmpegPath,
		SampleFPS:  fps,
		Buckets:    buckets,
		start:      startFFmpeg,
		now:        time.Now,
	}
}

// Validate checks that spec can be opened without starting anything: the file
// exists, the device node exists, the bucket folder holds frames. Failures wrap
// ErrSourceNotFound or ErrUnknownKind.
func (o *Opener) Validate(ctx context.Context, spec models.SourceSpec) error {
	if strings.TrimSpace(spec.Location) == "" {
		return fmt.Errorf("%w: empty location", ErrSourceNotFound)
	}

	switch spec.Kind {
	case models.SourceFile, "":
		_, err := o.ResolveFile(spec.Location)
		return err

	case models.SourceLive:
		if strings.HasPrefix(spec.Location, "/dev/") {
			if _, err := os.Stat(spec.Location); err != nil {
				return fmt.Errorf("%w: %s", ErrSourceNotFound, spec.Location)
			}
		}
		return nil

	case models.SourceBucket:
		if o.Buckets == nil {
			return fmt.Errorf("%w: bucket sources are not configured", ErrUnknownKind)
		}
		if err := o.Buckets.CheckFrames(ctx, spec.Location); err != nil {
			return fmt.Errorf("%w: %v", ErrSourceNotFound, err)
		}
		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
}

// Open validates spec and returns a running source for it. For file and live
// kinds this starts the decoder process.
func (o *Opener) Open(ctx context.Context, spec models.SourceSpec) (Source, error) {
	if err := o.Validate(ctx, spec); err != nil {
		return nil, err
	}

	switch spec.Kind {
	case models.SourceLive:
		return o.start(o.FFmpegPath, spec.Location, spec.Location, true, o.SampleFPS, WallClock(o.now(), o.now))

	case models.SourceBucket:
		src, err := o.Buckets.OpenFrames(ctx, spec.Location, o.SampleFPS)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceNotFound, err)
		}
		return src, nil
	}

	path, err := o.ResolveFile(spec.Location)
	if err != nil {
		return nil, err
	}
	return o.start(o.FFmpegPath, filepath.Base(path), path, false, o.SampleFPS, StreamClock(o.SampleFPS))
}

// ResolveFile maps a file name onto the video directory, refusing paths that
// would escape it.
func (o *Opener) ResolveFile(name string) (string, error) {
	path := filepath.Join(o.VideoDir, filepath.Clean(string(filepath.Separator)+name))

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, path)
	}
	return path, nil
}

// ListVideos returns the playable files in the video directory.
func (o *Opener) ListVideos() ([]string, error) {
	entries, err := os.ReadDir(o.VideoDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	videos := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".mp4", ".avi", ".mkv", ".mov":
			videos = append(videos, e.Name())
		}
	}
	return videos, nil
}
