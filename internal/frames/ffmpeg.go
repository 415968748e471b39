package frames

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/logger"
)

// waitDelay bounds how long Wait blocks on output pipes after the process is killed.
const waitDelay = 2 * time.Second

// ffmpegArgs builds an image2pipe command emitting MJPEG frames at fps.
func ffmpegArgs(input string, live bool, fps float64) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	if live && strings.HasPrefix(input, "/dev/") {
		// V4L2 device
		args = append(args, "-f", "v4l2", "-video_size", "640x480")
	}
	if live && strings.HasPrefix(input, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}

	args = append(args,
		"-i", input,
		"-vf", "fps="+strconv.FormatFloat(fps, 'f', -1, 64),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2", // Качество JPEG
		"-",
	)
	return args
}

// startFFmpeg launches ffmpeg and returns a source over its stdout. The process
// lives until the source is closed, independent of any request context.
func startFFmpeg(binary, name, input string, live bool, fps float64, clock Clock) (Source, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, binary, ffmpegArgs(input, live, fps)...)
	return startCommand(cmd, cancel, name, clock)
}

// startCommand runs cmd and reads MJPEG frames from its stdout. Stdout is an
// io.Pipe owned here; cmd.Wait runs only in the reaper goroutine, which closes the
// pipe once the process and its output copying are done. cancel must kill cmd.
func startCommand(cmd *exec.Cmd, cancel context.CancelFunc, name string, clock Clock) (Source, error) {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = &stderrLog{name: name}
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		cancel()
		_ = pw.Close()
		_ = pr.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		if err := cmd.Wait(); err != nil {
			logger.Debug("ffmpeg", "%s exited: %v", name, err)
		}
		// читатель получает EOF после выхода процесса
		_ = pw.Close()
	}()

	release := func() error {
		cancel()
		<-exited
		return nil
	}

	return NewPipeSource(name, pr, clock, release), nil
}

// stderrLog forwards decoder diagnostics to the debug log.
type stderrLog struct {
	name string
}

func (l *stderrLog) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		if line != "" {
			logger.Debug("ffmpeg", "%s: %s", l.name, line)
		}
	}
	return len(p), nil
}
