package crawler

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"castdl/pkg/models"
	"castdl/pkg/utils"
)

// SummaryWriter collects per-video metadata during a run and writes it as
// YAML when the run ends. With an empty path it only collects.
type SummaryWriter struct {
	log  *logrus.Entry
	path string
	mode string

	mu   sync.Mutex
	meta models.RunMetadata
}

// NewSummaryWriter creates a SummaryWriter for a download run.
func NewSummaryWriter(path string, log *logrus.Entry) *SummaryWriter {
	return &SummaryWriter{log: log, path: path, mode: "download"}
}

// WithMode sets the run mode recorded in the summary.
func (s *SummaryWriter) WithMode(mode string) *SummaryWriter {
	s.mode = mode
	return s
}

// Begin starts a new run record with a fresh run ID.
func (s *SummaryWriter) Begin(link, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = models.RunMetadata{
		RunID:     uuid.NewString(),
		Link:      link,
		Kind:      kind,
		Mode:      s.mode,
		StartTime: time.Now(),
		Videos:    make([]models.VideoMetadata, 0),
	}
}

// Add appends the outcome of one video.
func (s *SummaryWriter) Add(v models.VideoMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Videos = append(s.meta.Videos, v)
}

// Snapshot returns a copy of the current run record.
func (s *SummaryWriter) Snapshot() models.RunMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.meta
	out.Videos = append([]models.VideoMetadata(nil), s.meta.Videos...)
	return out
}

// Finish stamps the tally onto the record and writes the YAML file if a path is set.
func (s *SummaryWriter) Finish(res Result) error {
	s.mu.Lock()
	s.meta.EndTime = time.Now()
	s.meta.LinksExtracted = res.LinksExtracted
	s.meta.LinksExpected = res.LinksExpected
	s.meta.Skipped = res.Skipped
	s.meta.Failed = res.Failed
	s.mu.Unlock()

	if s.path == "" {
		return nil
	}

	meta := s.Snapshot()
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("%w: marshal run summary: %w", utils.ErrParsing, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: creating summary directory: %w", utils.ErrFilesystem, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing run summary '%s': %w", utils.ErrFilesystem, s.path, err)
	}

	s.log.Infof("Wrote run summary (%d videos) to %s", len(meta.Videos), s.path)
	return nil
}
