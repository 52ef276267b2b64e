package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/index-mirror/pkg/models"
	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), "example.com", false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func fileEntry(status models.FileStatus, size int64) *models.FileDBEntry {
	return &models.FileDBEntry{
		Status:      status,
		SizeBytes:   size,
		RunID:       "run-1",
		LastAttempt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh start has zero count", func(t *testing.T) {
		store := newTestStore(t)
		count, err := store.GetRecordedCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("reopen preserves data", func(t *testing.T) {
		dir := t.TempDir()

		store1, err := NewBadgerStore(dir, "example.com", false, testLogger())
		require.NoError(t, err)
		require.NoError(t, store1.RecordFile("http://example.com/a.txt", fileEntry(models.FileStatusDownloaded, 10)))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, "example.com", false, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.GetRecordedCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		status, entry, err := store2.LookupFile("http://example.com/a.txt")
		require.NoError(t, err)
		assert.Equal(t, models.FileStatusDownloaded, status)
		require.NotNil(t, entry)
		assert.Equal(t, int64(10), entry.SizeBytes)
	})

	t.Run("reset wipes data", func(t *testing.T) {
		dir := t.TempDir()

		store1, err := NewBadgerStore(dir, "example.com", false, testLogger())
		require.NoError(t, err)
		require.NoError(t, store1.RecordFile("http://example.com/a.txt", fileEntry(models.FileStatusDownloaded, 10)))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, "example.com", true, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, _ := store2.GetRecordedCount()
		assert.Equal(t, 0, count)
		status, entry, err := store2.LookupFile("http://example.com/a.txt")
		require.NoError(t, err)
		assert.Equal(t, models.FileStatusNotFound, status)
		assert.Nil(t, entry)
	})

	t.Run("hosts get separate journals", func(t *testing.T) {
		dir := t.TempDir()
		assert.NotEqual(t, DBPath(dir, "a.example.com"), DBPath(dir, "b.example.com"))
		assert.Contains(t, DBPath(dir, "Files.Example.com:8080"), "files.example.com_8080_journal_db")
	})
}

func TestRecordFile_Overwrites(t *testing.T) {
	store := newTestStore(t)
	u := "http://example.com/pub/x.iso"

	failed := fileEntry(models.FileStatusFailed, 0)
	failed.ErrorType = "HTTP_5xx"
	require.NoError(t, store.RecordFile(u, failed))
	require.NoError(t, store.RecordFile(u, fileEntry(models.FileStatusDownloaded, 2048)))

	status, entry, err := store.LookupFile(u)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusDownloaded, status)
	assert.Empty(t, entry.ErrorType)

	count, _ := store.GetRecordedCount()
	assert.Equal(t, 1, count, "overwriting must not inflate the key count")
}

func TestRecordDirectory_CountedSeparately(t *testing.T) {
	store := newTestStore(t)
	u := "http://example.com/pub/"

	require.NoError(t, store.RecordDirectory(u, &models.DirDBEntry{RunID: "r", LastScanned: time.Now()}))
	require.NoError(t, store.RecordFile(u+"a.txt", fileEntry(models.FileStatusDownloaded, 1)))

	count, _ := store.GetRecordedCount()
	assert.Equal(t, 2, count)

	status, _, err := store.LookupFile(u)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusNotFound, status, "directory keys are not file keys")
}

func TestLookupFile_CorruptValue(t *testing.T) {
	store := newTestStore(t)
	key := []byte(fileKeyPrefix + "http://example.com/bad")
	require.NoError(t, store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte("{not json"))
	}))

	status, entry, err := store.LookupFile("http://example.com/bad")
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusDBError, status)
	assert.Nil(t, entry)
}

func TestForEachFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RecordDirectory("http://example.com/", &models.DirDBEntry{RunID: "r"}))
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, store.RecordFile("http://example.com/"+name, fileEntry(models.FileStatusDownloaded, 1)))
	}

	var seen []string
	err := store.ForEachFile(context.Background(), func(u string, e models.FileDBEntry) error {
		seen = append(seen, u)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.com/a", "http://example.com/b", "http://example.com/c"}, seen)

	t.Run("callback error stops iteration", func(t *testing.T) {
		stop := errors.New("stop")
		calls := 0
		err := store.ForEachFile(context.Background(), func(string, models.FileDBEntry) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops iteration", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := store.ForEachFile(ctx, func(string, models.FileDBEntry) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWriteHistory(t *testing.T) {
	store := newTestStore(t)
	failed := fileEntry(models.FileStatusFailed, 0)
	failed.ErrorType = "HTTP_404"
	require.NoError(t, store.RecordFile("http://example.com/missing.bin", failed))
	require.NoError(t, store.RecordFile("http://example.com/big.iso", fileEntry(models.FileStatusDownloaded, 3_000_000)))

	var buf bytes.Buffer
	n, err := store.WriteHistory(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "downloaded\t-\t3.0 MB\t2024-03-01T12:00:00Z\thttp://example.com/big.iso", lines[0])
	assert.Equal(t, "failed\tHTTP_404\t-\t2024-03-01T12:00:00Z\thttp://example.com/missing.bin", lines[1])
}

func TestRecordFile_Concurrent(t *testing.T) {
	store := newTestStore(t)
	const writers, perWriter = 8, 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				u := fmt.Sprintf("http://example.com/w%d/f%d", w, i)
				assert.NoError(t, store.RecordFile(u, fileEntry(models.FileStatusDownloaded, 1)))
			}
		}(w)
	}
	wg.Wait()

	count, _ := store.GetRecordedCount()
	assert.Equal(t, writers*perWriter, count)
}

func TestRecordFile_AfterClose(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir(), "example.com", false, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.RecordFile("http://example.com/a", fileEntry(models.FileStatusDownloaded, 1))
	assert.ErrorIs(t, err, utils.ErrDatabase)
	assert.Equal(t, "Database_Other", utils.CategorizeError(err))
}

func TestRunGC(t *testing.T) {
	t.Run("respects context cancellation", func(t *testing.T) {
		store := newTestStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		done := make(chan struct{})
		go func() {
			store.RunGC(ctx, 50*time.Millisecond)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("RunGC did not respect context cancellation")
		}
	})
}

func TestClose(t *testing.T) {
	t.Run("double close does not panic", func(t *testing.T) {
		store, err := NewBadgerStore(t.TempDir(), "example.com", false, testLogger())
		require.NoError(t, err)
		assert.NoError(t, store.Close())
		assert.NoError(t, store.Close())
	})
}

func TestDBUpdateConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			if attempts <= 3 {
				return badger.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return badger.ErrConflict
		})
		require.Error(t, err)
		require.ErrorIs(t, err, utils.ErrDatabase)
		assert.Contains(t, err.Error(), "transaction conflict not resolved")
		assert.Equal(t, maxConflictRetries, attempts)
	})

	t.Run("non-conflict error returned immediately", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		sentinel := errors.New("some other error")
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return sentinel
		})
		require.Error(t, err)
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})
}
