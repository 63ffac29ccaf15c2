package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castdl/pkg/models"
	"castdl/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(context.Background(), t.TempDir(), "someone", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

const (
	videoA = "https://twitcasting.tv/someone/movie/100"
	videoB = "https://twitcasting.tv/someone/movie/200"
)

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh start has zero count", func(t *testing.T) {
		store := newTestStore(t)
		count, err := store.GetEntryCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("resume preserves data", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()
		logger := testLogger()

		store1, err := NewBadgerStore(ctx, dir, "someone", false, logger)
		require.NoError(t, err)
		require.NoError(t, store1.UpdateEntryStatus(videoA, &models.EntryDBEntry{Status: models.EntryStatusSuccess}))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(ctx, dir, "someone", true, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.GetEntryCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		status, _, err := store2.CheckEntryStatus(videoA)
		require.NoError(t, err)
		assert.Equal(t, models.EntryStatusSuccess, status)
	})

	t.Run("fresh start wipes data", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()
		logger := testLogger()

		store1, err := NewBadgerStore(ctx, dir, "someone", false, logger)
		require.NoError(t, err)
		require.NoError(t, store1.UpdateEntryStatus(videoA, &models.EntryDBEntry{Status: models.EntryStatusFailure}))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(ctx, dir, "someone", false, logger)
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		status, entry, err := store2.CheckEntryStatus(videoA)
		require.NoError(t, err)
		assert.Equal(t, models.EntryStatusNotFound, status)
		assert.Nil(t, entry)
	})

	t.Run("channels get separate databases", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewBadgerStore(context.Background(), dir, "a/b", false, testLogger())
		require.NoError(t, err)
		require.NoError(t, store.Close())
		assert.DirExists(t, filepath.Join(dir, "a_b_"+stateDBDir))
	})
}

func TestCheckEntryStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("not found", func(t *testing.T) {
		status, entry, err := store.CheckEntryStatus(videoB)
		require.NoError(t, err)
		assert.Equal(t, models.EntryStatusNotFound, status)
		assert.Nil(t, entry)
	})

	t.Run("locked entry", func(t *testing.T) {
		dbEntry := &models.EntryDBEntry{
			Status:      models.EntryStatusLocked,
			ErrorType:   "Video_Locked",
			LastAttempt: time.Now(),
		}
		require.NoError(t, store.UpdateEntryStatus(videoA, dbEntry))

		status, entry, err := store.CheckEntryStatus(videoA)
		require.NoError(t, err)
		assert.Equal(t, models.EntryStatusLocked, status)
		require.NotNil(t, entry)
		assert.Equal(t, "Video_Locked", entry.ErrorType)
	})

	t.Run("corrupted JSON falls back to not found", func(t *testing.T) {
		key := []byte(videoKeyPrefix + "https://twitcasting.tv/someone/movie/999")
		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(key, []byte("{invalid json")))
		})
		require.NoError(t, err)

		status, entry, err := store.CheckEntryStatus("https://twitcasting.tv/someone/movie/999")
		require.NoError(t, err)
		assert.Equal(t, models.EntryStatusNotFound, status)
		assert.Nil(t, entry)
	})

	t.Run("empty value treated as not found", func(t *testing.T) {
		key := []byte(videoKeyPrefix + "https://twitcasting.tv/someone/movie/998")
		err := store.db.Update(func(txn *badger.Txn) error {
			return txn.SetEntry(badger.NewEntry(key, []byte{}))
		})
		require.NoError(t, err)

		status, _, err := store.CheckEntryStatus("https://twitcasting.tv/someone/movie/998")
		require.NoError(t, err)
		assert.Equal(t, models.EntryStatusNotFound, status)
	})
}

func TestUpdateEntryStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("new entry", func(t *testing.T) {
		entry := &models.EntryDBEntry{
			Status:      models.EntryStatusFailure,
			ErrorType:   "Mux_Failed",
			LastAttempt: time.Now(),
		}
		require.NoError(t, store.UpdateEntryStatus(videoA, entry))

		count, _ := store.GetEntryCount()
		assert.Equal(t, 1, count)
	})

	t.Run("overwrite existing", func(t *testing.T) {
		now := time.Now().Truncate(time.Millisecond)
		entry := &models.EntryDBEntry{
			Status:      models.EntryStatusSuccess,
			Title:       "evening stream",
			Streams:     2,
			Outputs:     []string{"a.mp4", "b.mp4"},
			CompletedAt: now,
			LastAttempt: now,
		}
		require.NoError(t, store.UpdateEntryStatus(videoA, entry))

		// Count should not increase on overwrite
		count, _ := store.GetEntryCount()
		assert.Equal(t, 1, count)

		status, got, err := store.CheckEntryStatus(videoA)
		require.NoError(t, err)
		assert.Equal(t, models.EntryStatusSuccess, status)
		require.NotNil(t, got)
		assert.Empty(t, got.ErrorType)
		assert.Equal(t, "evening stream", got.Title)
		assert.Equal(t, 2, got.Streams)
		assert.Equal(t, []string{"a.mp4", "b.mp4"}, got.Outputs)
		assert.Equal(t, now.UTC(), got.CompletedAt.UTC())
	})

	t.Run("closed database", func(t *testing.T) {
		closed := newTestStore(t)
		require.NoError(t, closed.Close())
		err := closed.UpdateEntryStatus(videoB, &models.EntryDBEntry{Status: models.EntryStatusSuccess})
		assert.ErrorIs(t, err, utils.ErrDatabase)
	})
}

func TestWriteStatusLog(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpdateEntryStatus(videoB, &models.EntryDBEntry{Status: models.EntryStatusLocked, ErrorType: "Video_Locked"}))
	require.NoError(t, store.UpdateEntryStatus(videoA, &models.EntryDBEntry{Status: models.EntryStatusSuccess}))

	path := filepath.Join(t.TempDir(), "status.log")
	require.NoError(t, store.WriteStatusLog(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{
		videoA + "\tsuccess\t",
		videoB + "\tlocked\tVideo_Locked",
	}, lines)
}

func TestWriteStatusLog_BadPath(t *testing.T) {
	store := newTestStore(t)
	err := store.WriteStatusLog(filepath.Join(t.TempDir(), "missing", "status.log"))
	assert.ErrorIs(t, err, utils.ErrFilesystem)
}

func TestRunGC_StopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunGC(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunGC did not stop after cancellation")
	}
}

func TestClose_Idempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
