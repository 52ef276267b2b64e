package storage

import (
	"context"
	"io"
	"time"

	"github.com/Sriram-PR/index-mirror/pkg/models"
)

// Journal receives the outcome of every directory scan and file attempt of a run
type Journal interface {
	// RecordDirectory stores that a directory listing was scanned
	RecordDirectory(dirURL string, entry *models.DirDBEntry) error

	// RecordFile stores the terminal outcome of one file
	RecordFile(fileURL string, entry *models.FileDBEntry) error
}

// HistoryReader gives read access to outcomes recorded by earlier runs
type HistoryReader interface {
	// LookupFile returns the last recorded outcome for a file URL
	// Returns FileStatusNotFound with a nil entry when the URL was never recorded
	LookupFile(fileURL string) (models.FileStatus, *models.FileDBEntry, error)

	// ForEachFile calls fn for every recorded file in key order until fn fails or ctx ends
	ForEachFile(ctx context.Context, fn func(fileURL string, entry models.FileDBEntry) error) error

	// WriteHistory writes one tab-separated line per recorded file to w
	WriteHistory(ctx context.Context, w io.Writer) (int, error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetRecordedCount returns the number of keys in the store
	GetRecordedCount() (int, error)

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// RunStore combines all store interfaces for components that need full access
type RunStore interface {
	Journal
	HistoryReader
	StoreAdmin
}
