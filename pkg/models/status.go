package models

// FileStatus represents the terminal state of a file within a run
type FileStatus string

const (
	FileStatusUnset      FileStatus = ""                 // Zero value = unset/unknown
	FileStatusDownloaded FileStatus = "downloaded"       // Fetched and written this run
	FileStatusExisting   FileStatus = "skipped_existing" // Already present on disk, counted as success
	FileStatusFailed     FileStatus = "failed"           // Attempt failed (terminal for the run)
	FileStatusNotFound   FileStatus = "not_found"        // Not in the journal
	FileStatusDBError    FileStatus = "db_error"         // Journal lookup failed
)

// String implements fmt.Stringer for logging
func (s FileStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a value that can be stored in the journal
func (s FileStatus) IsValid() bool {
	switch s {
	case FileStatusDownloaded, FileStatusExisting, FileStatusFailed:
		return true
	}
	return false
}

// IsSuccess reports whether the status places the URL in the downloaded set
func (s FileStatus) IsSuccess() bool {
	return s == FileStatusDownloaded || s == FileStatusExisting
}
