package mux

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"castdl/pkg/utils"
)

// FFmpegMuxer copies streams into mp4 containers with the ffmpeg command line tool
type FFmpegMuxer struct {
	Path        string
	UserAgent   string
	Origin      string // Sent as an Origin header, e.g. https://twitcasting.tv
	Cookie      string // Cookie header value, empty when no session is loaded
	LogProgress bool   // Forward ffmpeg -stats output to the debug log
	log         *logrus.Entry
}

// NewFFmpegMuxer returns a new FFmpegMuxer.
// If path is empty, it looks for "ffmpeg" in PATH.
func NewFFmpegMuxer(path, userAgent, origin, cookie string, logProgress bool, log *logrus.Entry) *FFmpegMuxer {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegMuxer{
		Path:        path,
		UserAgent:   userAgent,
		Origin:      origin,
		Cookie:      cookie,
		LogProgress: logProgress,
		log:         log,
	}
}

// Available checks if ffmpeg is executable.
func (f *FFmpegMuxer) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// Args builds the ffmpeg argument list for job.
func (f *FFmpegMuxer) Args(job Job) []string {
	args := []string{"-v", "quiet", "-stats"}
	if job.Realtime {
		args = append(args, "-re")
	}
	args = append(args,
		"-user_agent", f.UserAgent,
		"-headers", "Origin: "+f.Origin,
	)
	if f.Cookie != "" {
		args = append(args, "-headers", "Cookie: "+f.Cookie)
	}
	// -n refuses to overwrite an existing output
	args = append(args,
		"-n",
		"-i", StripParams(job.Input),
		"-c", "copy",
		"-movflags", "+faststart",
		"-f", "mp4",
	)
	if job.PageSource {
		args = append(args, "-bsf:a", "aac_adtstoasc")
	}
	return append(args, job.Output)
}

// Dispatch runs ffmpeg for job and waits for it to exit.
func (f *FFmpegMuxer) Dispatch(ctx context.Context, job Job) error {
	jlog := f.log.WithFields(logrus.Fields{"video_id": job.VideoID, "output": job.Output})

	if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return fmt.Errorf("%w: creating output directory: %w", utils.ErrFilesystem, err)
	}

	cmd := exec.CommandContext(ctx, f.Path, f.Args(job)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %w", utils.ErrMuxing, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %w", utils.ErrMuxing, err)
	}

	jlog.Info("Starting ffmpeg")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s: %w", utils.ErrMuxing, f.Path, err)
	}

	// Both pipes must be drained before Wait closes them
	var lastLine string
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(io.Discard, stdout)
		return err
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		scanner.Split(scanProgressLines)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lastLine = line
			if f.LogProgress {
				jlog.Debug(line)
			}
		}
		return scanner.Err()
	})
	drainErr := g.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) && lastLine != "" {
			return fmt.Errorf("%w: ffmpeg exited with code %d (%s)", utils.ErrMuxing, exitErr.ExitCode(), lastLine)
		}
		return fmt.Errorf("%w: %w", utils.ErrMuxing, waitErr)
	}
	if drainErr != nil {
		jlog.Warnf("Reading ffmpeg output: %v", drainErr)
	}
	jlog.Info("ffmpeg finished")
	return nil
}

// Close is a no-op; each Dispatch owns its process.
func (f *FFmpegMuxer) Close() error { return nil }

// scanProgressLines splits on '\n' and on the bare '\r' ffmpeg uses to redraw -stats.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ Sink = (*FFmpegMuxer)(nil)
