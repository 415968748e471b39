package frames

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
	"github.com/Capitan-Parrot/threatsnap/internal/models"
)

const (
	initialFrameBuffer = 1 << 20  // 1MB
	maxFrameSize       = 32 << 20 // 32MB
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// ScanJPEG is a bufio.SplitFunc yielding complete JPEG images (SOI..EOI) from a
// concatenated MJPEG byte stream. Bytes before a start marker are skipped and a
// truncated trailing image is dropped.
func ScanJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegStart)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// keep a possible half marker at the tail
		if len(data) > 0 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegStart):], jpegEnd)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegStart) + end + len(jpegEnd)
	return stop, data[start:stop], nil
}

// pipeSource reads MJPEG from a byte stream, typically ffmpeg's stdout.
type pipeSource struct {
	name    string
	rc      io.ReadCloser
	scanner *bufio.Scanner
	clock   Clock
	release func() error

	mu        sync.Mutex
	read      uint64
	closeOnce sync.Once
	closeErr  error
}

// NewPipeSource wraps a stream of concatenated JPEG images. release, if set, runs
// once on Close after the stream itself is closed.
func NewPipeSource(name string, rc io.ReadCloser, clock Clock, release func() error) Source {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, initialFrameBuffer), maxFrameSize)
	scanner.Split(ScanJPEG)

	return &pipeSource{
		name:    name,
		rc:      rc,
		scanner: scanner,
		clock:   clock,
		release: release,
	}
}

func (p *pipeSource) Next() (models.Frame, bool) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
			logger.Warn("frames", "source %s read failed: %v", p.name, err)
		}
		return models.Frame{}, false
	}

	// Scanner переиспользует буфер, копируем кадр
	data := make([]byte, len(p.scanner.Bytes()))
	copy(data, p.scanner.Bytes())

	p.mu.Lock()
	p.read++
	seq := p.read
	p.mu.Unlock()

	return models.Frame{Data: data, Seq: seq}, true
}

func (p *pipeSource) StreamTime() time.Duration {
	p.mu.Lock()
	read := p.read
	p.mu.Unlock()
	return p.clock(read)
}

func (p *pipeSource) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.rc.Close()
		if p.release != nil {
			if err := p.release(); err != nil && p.closeErr == nil {
				p.closeErr = err
			}
		}
	})
	return p.closeErr
}

func (p *pipeSource) Name() string {
	return p.name
}
