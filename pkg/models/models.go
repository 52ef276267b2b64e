package models

import "time"

// WorkItem is one queued download: a remote file URL and the local path it is written to
type WorkItem struct {
	FileURL    string
	TargetPath string
}

// ListingResult holds the classified links of one directory-listing page.
// Both slices are deduplicated and keep document order.
type ListingResult struct {
	Files       []string
	Directories []string
}

// IsEmpty reports whether the listing produced no usable links
func (r ListingResult) IsEmpty() bool {
	return len(r.Files) == 0 && len(r.Directories) == 0
}

// FileDBEntry stores the outcome of one download attempt in the run journal
type FileDBEntry struct {
	Status      FileStatus `json:"status"`               // "downloaded", "skipped_existing" or "failed"
	ErrorType   string     `json:"error_type,omitempty"` // Error category (on failure)
	LocalPath   string     `json:"local_path,omitempty"` // Absolute or output-relative target path
	SizeBytes   int64      `json:"size_bytes,omitempty"` // Bytes written (0 when skipped or failed)
	RunID       string     `json:"run_id"`               // Run that produced this entry
	LastAttempt time.Time  `json:"last_attempt"`
}

// DirDBEntry stores when a directory listing was last scanned
type DirDBEntry struct {
	RunID       string    `json:"run_id"`
	LastScanned time.Time `json:"last_scanned"`
}
