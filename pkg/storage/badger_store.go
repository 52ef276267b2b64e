package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/index-mirror/pkg/log"
	"github.com/Sriram-PR/index-mirror/pkg/models"
	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

const (
	dirKeyPrefix  = "dir:"       // Prefix for scanned directory keys in DB
	fileKeyPrefix = "file:"      // Prefix for file outcome keys in DB
	journalDBDir  = "journal_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the RunStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) GetRecordedCount
}

// DBPath returns where the journal for host lives under stateDir
func DBPath(stateDir, host string) string {
	return filepath.Join(stateDir, utils.SanitizeFilename(host)+"_"+journalDBDir)
}

// NewBadgerStore opens (or creates) the journal for host under stateDir.
// With reset set, any existing journal for that host is removed first.
func NewBadgerStore(stateDir, host string, reset bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}
	dbPath := DBPath(stateDir, host)

	if reset {
		logger.Warnf("Reset requested. REMOVING existing journal directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing journal directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Opening run journal at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create journal directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1) // Only the latest outcome per URL matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	count, err := store.countKeys()
	if err != nil {
		logger.Warnf("Failed to count existing journal keys: %v", err)
	} else {
		store.keyCount.Store(int64(count))
		if count > 0 {
			logger.Infof("Journal holds %d entries from earlier runs", count)
		}
	}

	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization)
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Workers record outcomes concurrently, so overlapping transactions can return
// badger.ErrConflict; these resolve in microseconds.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// put stores value under key, counting keys that did not exist before
func (s *BadgerStore) put(key []byte, value any) error {
	if s.db == nil || s.db.IsClosed() {
		return fmt.Errorf("%w: journal not open", utils.ErrDatabase)
	}

	valBytes, errJSON := json.Marshal(value)
	if errJSON != nil {
		return fmt.Errorf("%w: failed to marshal entry for key '%s': %w", utils.ErrParsing, string(key), errJSON)
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		} else if errGet != nil {
			return errGet
		}
		return txn.SetEntry(badger.NewEntry(key, valBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error: %v", err)
		if errors.Is(err, utils.ErrDatabase) {
			return err
		}
		return fmt.Errorf("%w: failed setting key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return nil
}

// RecordDirectory implements the Journal interface
func (s *BadgerStore) RecordDirectory(dirURL string, entry *models.DirDBEntry) error {
	return s.put([]byte(dirKeyPrefix+dirURL), entry)
}

// RecordFile implements the Journal interface
func (s *BadgerStore) RecordFile(fileURL string, entry *models.FileDBEntry) error {
	if err := s.put([]byte(fileKeyPrefix+fileURL), entry); err != nil {
		return err
	}
	s.log.Debugf("Recorded '%s' as '%s'", fileURL, entry.Status)
	return nil
}

// LookupFile implements the HistoryReader interface
func (s *BadgerStore) LookupFile(fileURL string) (models.FileStatus, *models.FileDBEntry, error) {
	status := models.FileStatusNotFound
	var entry *models.FileDBEntry
	key := []byte(fileKeyPrefix + fileURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting file key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		return item.Value(func(val []byte) error {
			var decoded models.FileDBEntry
			if errJSON := json.Unmarshal(val, &decoded); errJSON != nil {
				s.log.Warnf("Failed to unmarshal FileDBEntry for key '%s': %v", string(key), errJSON)
				status = models.FileStatusDBError
				return nil
			}
			entry = &decoded
			status = decoded.Status
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in LookupFile for key '%s': %v", string(key), errView)
		return models.FileStatusDBError, nil, errView
	}
	return status, entry, nil
}

// ForEachFile implements the HistoryReader interface
func (s *BadgerStore) ForEachFile(ctx context.Context, fn func(fileURL string, entry models.FileDBEntry) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(fileKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			fileURL := string(item.Key()[len(fileKeyPrefix):])

			var entry models.FileDBEntry
			errValue := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if errValue != nil {
				s.log.Warnf("Skipping unreadable journal entry for '%s': %v", fileURL, errValue)
				continue
			}
			if err := fn(fileURL, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteHistory implements the HistoryReader interface.
// Columns: status, error type, size, last attempt, URL.
func (s *BadgerStore) WriteHistory(ctx context.Context, w io.Writer) (int, error) {
	writer := bufio.NewWriter(w)
	written := 0

	iterErr := s.ForEachFile(ctx, func(fileURL string, entry models.FileDBEntry) error {
		errorType := entry.ErrorType
		if errorType == "" {
			errorType = "-"
		}
		size := "-"
		if entry.SizeBytes > 0 {
			size = humanize.Bytes(uint64(entry.SizeBytes))
		}
		_, err := fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			entry.Status, errorType, size, entry.LastAttempt.Format(time.RFC3339), fileURL)
		if err != nil {
			return err
		}
		written++
		if written%5000 == 0 {
			return writer.Flush()
		}
		return nil
	})

	if flushErr := writer.Flush(); flushErr != nil && iterErr == nil {
		iterErr = flushErr
	}
	return written, iterErr
}

// GetRecordedCount implements the StoreAdmin interface
func (s *BadgerStore) GetRecordedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				s.log.Debug("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			var err error
			for {
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}

			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing journal DB: %v", err)
			return err
		}
		s.log.Debug("Journal DB closed.")
	}
	return nil
}
