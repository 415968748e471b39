package s3

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/frames"
	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/samber/lo"
)

// FrameSource reads frames previously extracted into a bucket folder, one
// object per frame, in key order. Frames are fetched lazily.
type FrameSource struct {
	client *Client
	bucket string
	keys   []string
	clock  frames.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	read uint64
}

// OpenFrames lists the JPEG objects under location (s3://bucket/folder). fps is
// the rate the frames were extracted at and drives the stream clock.
func (c *Client) OpenFrames(ctx context.Context, location string, fps float64) (frames.Source, error) {
	bucket, keys, err := c.frameKeys(ctx, location)
	if err != nil {
		return nil, err
	}

	srcCtx, cancel := context.WithCancel(context.Background())
	return &FrameSource{
		client: c,
		bucket: bucket,
		keys:   keys,
		clock:  frames.StreamClock(fps),
		ctx:    srcCtx,
		cancel: cancel,
	}, nil
}

// CheckFrames verifies that location holds at least one frame.
func (c *Client) CheckFrames(ctx context.Context, location string) error {
	_, _, err := c.frameKeys(ctx, location)
	return err
}

func (c *Client) frameKeys(ctx context.Context, location string) (string, []string, error) {
	bucket, prefix, err := ParseLocation(location)
	if err != nil {
		return "", nil, err
	}

	keys, err := c.ListKeys(ctx, bucket, prefix)
	if err != nil {
		return "", nil, err
	}
	keys = lo.Filter(keys, func(key string, _ int) bool {
		return IsFrameKey(key)
	})
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("no frames under %s", location)
	}
	return bucket, keys, nil
}

// IsFrameKey reports whether an object key names a JPEG frame.
func IsFrameKey(key string) bool {
	ext := strings.ToLower(path.Ext(key))
	return ext == ".jpg" || ext == ".jpeg"
}

func (s *FrameSource) Next() (models.Frame, bool) {
	s.mu.Lock()
	idx := s.read
	s.mu.Unlock()

	if idx >= uint64(len(s.keys)) || s.ctx.Err() != nil {
		return models.Frame{}, false
	}

	data, err := s.client.Download(s.ctx, s.bucket, s.keys[idx])
	if err != nil {
		logger.Warn("frames", "bucket %s: failed to download %s: %v", s.bucket, s.keys[idx], err)
		return models.Frame{}, false
	}

	s.mu.Lock()
	s.read++
	seq := s.read
	s.mu.Unlock()

	return models.Frame{Data: data, Seq: seq}, true
}

func (s *FrameSource) StreamTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock(s.read)
}

func (s *FrameSource) Close() error {
	s.cancel()
	return nil
}

func (s *FrameSource) Name() string {
	return fmt.Sprintf("s3://%s (%d frames)", s.bucket, len(s.keys))
}
