// Package tracker holds the run state shared by the crawler and the download workers.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/index-mirror/pkg/models"
	"github.com/Sriram-PR/index-mirror/pkg/storage"
)

// Tracker records visited directories and the terminal outcome of every file.
// A file URL ends up in at most one of the downloaded and failed sets.
// All methods are safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	visited    map[string]struct{}
	downloaded map[string]struct{}
	failed     map[string]string // URL -> error category
	inFlight   map[string]struct{}

	runID   string
	journal storage.Journal // Optional; nil disables persistence
	log     *logrus.Entry
}

// Snapshot is a sorted copy of the tracker sets
type Snapshot struct {
	VisitedDirectories []string
	DownloadedFiles    []string
	FailedFiles        []string
}

// Counts holds the sizes of the tracker sets
type Counts struct {
	Visited    int
	Downloaded int
	Failed     int
	InFlight   int
}

// New creates an empty tracker. journal may be nil.
func New(runID string, journal storage.Journal, log *logrus.Entry) *Tracker {
	return &Tracker{
		visited:    make(map[string]struct{}),
		downloaded: make(map[string]struct{}),
		failed:     make(map[string]string),
		inFlight:   make(map[string]struct{}),
		runID:      runID,
		journal:    journal,
		log:        log,
	}
}

// MarkVisited adds dirURL to the visited set.
// Returns false if it was already there, in which case the caller must not scan it again.
func (t *Tracker) MarkVisited(dirURL string) bool {
	t.mu.Lock()
	if _, ok := t.visited[dirURL]; ok {
		t.mu.Unlock()
		return false
	}
	t.visited[dirURL] = struct{}{}
	t.mu.Unlock()

	if t.journal != nil {
		entry := &models.DirDBEntry{RunID: t.runID, LastScanned: time.Now()}
		if err := t.journal.RecordDirectory(dirURL, entry); err != nil {
			t.log.WithField("url", dirURL).Warnf("Failed to journal directory: %v", err)
		}
	}
	return true
}

// IsVisited reports whether dirURL has been marked visited
func (t *Tracker) IsVisited(dirURL string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.visited[dirURL]
	return ok
}

// IsDownloaded reports whether fileURL finished successfully
func (t *Tracker) IsDownloaded(fileURL string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.downloaded[fileURL]
	return ok
}

// Claim reserves fileURL for one worker.
// It fails when the URL already has a terminal outcome or another worker holds it.
// A successful claim must be settled with RecordDownloaded or RecordFailed.
func (t *Tracker) Claim(fileURL string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.downloaded[fileURL]; ok {
		return false
	}
	if _, ok := t.failed[fileURL]; ok {
		return false
	}
	if _, ok := t.inFlight[fileURL]; ok {
		return false
	}
	t.inFlight[fileURL] = struct{}{}
	return true
}

// RecordDownloaded settles fileURL as a success.
// status distinguishes a fresh download from a file already on disk.
func (t *Tracker) RecordDownloaded(fileURL string, status models.FileStatus, localPath string, size int64) {
	t.mu.Lock()
	delete(t.inFlight, fileURL)
	if _, ok := t.failed[fileURL]; ok {
		t.mu.Unlock()
		t.log.WithField("url", fileURL).Warn("Ignoring success for a URL already recorded as failed")
		return
	}
	t.downloaded[fileURL] = struct{}{}
	t.mu.Unlock()

	t.persist(fileURL, &models.FileDBEntry{
		Status:      status,
		LocalPath:   localPath,
		SizeBytes:   size,
		RunID:       t.runID,
		LastAttempt: time.Now(),
	})
}

// RecordFailed settles fileURL as a failure with the given error category.
// Failures are never removed, and a URL already downloaded stays downloaded.
func (t *Tracker) RecordFailed(fileURL, category, localPath string) {
	t.mu.Lock()
	delete(t.inFlight, fileURL)
	if _, ok := t.downloaded[fileURL]; ok {
		t.mu.Unlock()
		t.log.WithField("url", fileURL).Warn("Ignoring failure for a URL already recorded as downloaded")
		return
	}
	t.failed[fileURL] = category
	t.mu.Unlock()

	t.persist(fileURL, &models.FileDBEntry{
		Status:      models.FileStatusFailed,
		ErrorType:   category,
		LocalPath:   localPath,
		RunID:       t.runID,
		LastAttempt: time.Now(),
	})
}

// FailureCategory returns the recorded error category for a failed URL
func (t *Tracker) FailureCategory(fileURL string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.failed[fileURL]
	return c, ok
}

func (t *Tracker) persist(fileURL string, entry *models.FileDBEntry) {
	if t.journal == nil {
		return
	}
	if err := t.journal.RecordFile(fileURL, entry); err != nil {
		t.log.WithField("url", fileURL).Warnf("Failed to journal file outcome: %v", err)
	}
}

// Counts returns the current set sizes
func (t *Tracker) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Counts{
		Visited:    len(t.visited),
		Downloaded: len(t.downloaded),
		Failed:     len(t.failed),
		InFlight:   len(t.inFlight),
	}
}

// Snapshot returns sorted copies of the three sets
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	failed := make([]string, 0, len(t.failed))
	for u := range t.failed {
		failed = append(failed, u)
	}
	sort.Strings(failed)

	return Snapshot{
		VisitedDirectories: sortedKeys(t.visited),
		DownloadedFiles:    sortedKeys(t.downloaded),
		FailedFiles:        failed,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
