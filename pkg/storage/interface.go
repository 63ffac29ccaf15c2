package storage

import (
	"context"
	"time"

	"castdl/pkg/models"
)

// EntryStore records the outcome of every video the archiver attempted
type EntryStore interface {
	// CheckEntryStatus retrieves the status and details of a video URL
	// Returns status (EntryStatusSuccess, EntryStatusFailure, ..., EntryStatusNotFound, EntryStatusDBError),
	// the EntryDBEntry if found and parsed, and any error
	CheckEntryStatus(videoURL string) (status models.EntryStatus, entry *models.EntryDBEntry, err error)

	// UpdateEntryStatus stores the outcome for a video URL
	UpdateEntryStatus(videoURL string, entry *models.EntryDBEntry) error

	// GetEntryCount returns the number of videos recorded
	GetEntryCount() (int, error)

	// WriteStatusLog writes one "url<TAB>status<TAB>error_type" line per recorded video
	WriteStatusLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}
