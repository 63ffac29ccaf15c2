package mux

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"castdl/pkg/parse"
	"castdl/pkg/utils"
)

// ScrapeWriter records manifest URLs to a text file instead of downloading
type ScrapeWriter struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	count int
	log   *logrus.Entry
}

// DefaultScrapeName derives the scrape file name from the channel display name and listing kind.
func DefaultScrapeName(channel string, kind parse.Kind) string {
	name := utils.SanitizeFilename(strings.TrimSpace(channel))
	switch kind {
	case parse.KindListingClips:
		return name + "_showclips.txt"
	case parse.KindListingShow:
		return name + "_shows.txt"
	default:
		return name + "_urls.txt"
	}
}

// NewScrapeWriter creates the scrape file at path, replacing any existing one.
func NewScrapeWriter(path string, log *logrus.Entry) (*ScrapeWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating directory for %s: %w", utils.ErrFilesystem, path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening scrape file: %w", utils.ErrFilesystem, err)
	}
	log.WithField("path", path).Info("Writing manifest URLs to scrape file")
	return &ScrapeWriter{path: path, file: f, log: log}, nil
}

// Path returns the scrape file location.
func (w *ScrapeWriter) Path() string { return w.path }

// Count returns how many URLs were written.
func (w *ScrapeWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Dispatch appends job.Input as one line.
func (w *ScrapeWriter) Dispatch(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("%w: scrape file %s is closed", utils.ErrFilesystem, w.path)
	}
	if _, err := w.file.WriteString(job.Input + "\n"); err != nil {
		return fmt.Errorf("%w: writing scrape file: %w", utils.ErrFilesystem, err)
	}
	w.count++
	w.log.WithField("video_id", job.VideoID).Debug("Recorded manifest URL")
	return nil
}

// Close flushes and closes the file.
func (w *ScrapeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return fmt.Errorf("%w: closing scrape file: %w", utils.ErrFilesystem, err)
	}
	return nil
}

var _ Sink = (*ScrapeWriter)(nil)
