package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"castdl/pkg/log"
	"castdl/pkg/models"
	"castdl/pkg/utils"
)

const (
	videoKeyPrefix = "video:"     // Prefix for video URL keys in DB
	stateDBDir     = "entries_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the EntryStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached key count for O(1) GetEntryCount
}

// NewBadgerStore opens the outcome database for one channel within stateDir.
// Without resume any previous database for the channel is removed first.
func NewBadgerStore(ctx context.Context, stateDir, channel string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	dbPath := filepath.Join(stateDir, utils.SanitizeFilename(channel)+"_"+stateDBDir)

	if !resume {
		if _, err := os.Stat(dbPath); err == nil {
			logger.Warnf("Resume disabled. Removing existing state directory: %s", dbPath)
		}
		if err := os.RemoveAll(dbPath); err != nil {
			// Badger may still recover or create new files
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Opening outcome database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest outcome matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if resume {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing entries on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded %d existing entries on resume", count)
		}
	}
	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization on resume).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	prefix := []byte(videoKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// CheckEntryStatus implements the EntryStore interface
func (s *BadgerStore) CheckEntryStatus(videoURL string) (models.EntryStatus, *models.EntryDBEntry, error) {
	status := models.EntryStatusNotFound
	var entry *models.EntryDBEntry
	key := []byte(videoKeyPrefix + videoURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting video key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				s.log.Warnf("Video key '%s' found with empty value. Treating as 'not_found'.", string(key))
				return nil
			}
			var decoded models.EntryDBEntry
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				s.log.Warnf("Failed to unmarshal EntryDBEntry for key '%s': %v. Treating as 'not_found'.", string(key), errJson)
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in CheckEntryStatus for key '%s': %v", string(key), errView)
		return models.EntryStatusDBError, nil, errView
	}
	return status, entry, nil
}

// UpdateEntryStatus implements the EntryStore interface
func (s *BadgerStore) UpdateEntryStatus(videoURL string, entry *models.EntryDBEntry) error {
	if s.db == nil {
		return fmt.Errorf("%w: outcome database not initialized", utils.ErrDatabase)
	}
	key := []byte(videoKeyPrefix + videoURL)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		return fmt.Errorf("%w: failed to marshal EntryDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpdateEntryStatus: %v", err)
		return fmt.Errorf("%w: failed setting status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Updated status for key '%s' to '%s'", string(key), entry.Status)
	return nil
}

// GetEntryCount implements the EntryStore interface.
func (s *BadgerStore) GetEntryCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			// Repeat while at least half of a value log file is reclaimable
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// WriteStatusLog implements the EntryStore interface.
func (s *BadgerStore) WriteStatusLog(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("%w: create status log '%s': %w", utils.ErrFilesystem, filePath, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	prefix := []byte(videoKeyPrefix)
	var writeErr error
	written := 0

	iterErr := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-s.ctx.Done():
				return s.ctx.Err()
			default:
			}

			item := it.Item()
			videoURL := string(bytes.TrimPrefix(item.KeyCopy(nil), prefix))
			status, errType := models.EntryStatusUnset, ""
			errVal := item.Value(func(val []byte) error {
				var entry models.EntryDBEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				status, errType = entry.Status, entry.ErrorType
				return nil
			})
			if errVal != nil {
				s.log.Warnf("Skipping unreadable entry '%s' in status log: %v", videoURL, errVal)
				continue
			}

			if _, err := fmt.Fprintf(writer, "%s\t%s\t%s\n", videoURL, status, errType); err != nil && writeErr == nil {
				writeErr = err
			}
			written++
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && writeErr == nil {
		writeErr = flushErr
	}
	if syncErr := file.Sync(); syncErr != nil && writeErr == nil {
		writeErr = syncErr
	}

	if iterErr != nil {
		if errors.Is(iterErr, context.Canceled) || errors.Is(iterErr, context.DeadlineExceeded) {
			return iterErr
		}
		return fmt.Errorf("%w: iterating entries: %w", utils.ErrDatabase, iterErr)
	}
	if writeErr != nil {
		return fmt.Errorf("%w: writing status log '%s': %w", utils.ErrFilesystem, filePath, writeErr)
	}
	s.log.Infof("Wrote %d entries to status log: %s", written, filePath)
	return nil
}

// Close implements the EntryStore interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing outcome DB: %v", err)
			return err
		}
		s.log.Debug("Outcome DB closed.")
	}
	return nil
}

var _ EntryStore = (*BadgerStore)(nil)
