// Package report renders the end-of-run summary written next to the mirrored files.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sriram-PR/index-mirror/pkg/tracker"
	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

// Run status values shown in the report
const (
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

const ruleWidth = 60

// Summary is everything the report needs about one run
type Summary struct {
	BaseURL      string
	OutputDir    string
	VerifyTLS    bool
	RunID        string
	Status       string
	Started      time.Time
	Duration     time.Duration
	BytesWritten int64
	State        tracker.Snapshot
}

// Render writes the report text to w
func Render(w io.Writer, s Summary) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "Recursive Download Report")
	fmt.Fprintln(bw, strings.Repeat("=", ruleWidth))
	fmt.Fprintf(bw, "Base URL: %s\n", s.BaseURL)
	fmt.Fprintf(bw, "Run ID: %s\n", s.RunID)
	fmt.Fprintf(bw, "Run status: %s\n", s.Status)
	if !s.Started.IsZero() {
		fmt.Fprintf(bw, "Started: %s\n", s.Started.Format(time.RFC3339))
	}
	fmt.Fprintf(bw, "Duration: %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(bw, "Total directories scanned: %d\n", len(s.State.VisitedDirectories))
	fmt.Fprintf(bw, "Total files downloaded: %d\n", len(s.State.DownloadedFiles))
	fmt.Fprintf(bw, "Total failed downloads: %d\n", len(s.State.FailedFiles))
	fmt.Fprintf(bw, "Data written: %s\n", humanize.Bytes(uint64(max(s.BytesWritten, 0))))
	fmt.Fprintf(bw, "Output directory: %s\n", s.OutputDir)
	fmt.Fprintf(bw, "SSL Verification: %s\n", enabledDisabled(s.VerifyTLS))

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Scanned directories:")
	for _, d := range s.State.VisitedDirectories {
		fmt.Fprintf(bw, "  📁 %s\n", d)
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Downloaded files:")
	for _, f := range s.State.DownloadedFiles {
		fmt.Fprintf(bw, "  ✓ %s\n", f)
	}

	if len(s.State.FailedFiles) > 0 {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, "Failed downloads:")
		for _, f := range s.State.FailedFiles {
			fmt.Fprintf(bw, "  ✗ %s\n", f)
		}
	}

	return bw.Flush()
}

// WriteFile renders the report to path, creating its directory if needed
func WriteFile(path string, s Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create report directory: %w", utils.ErrFilesystem, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create report '%s': %w", utils.ErrFilesystem, path, err)
	}
	if err := Render(f, s); err != nil {
		f.Close()
		return fmt.Errorf("%w: write report '%s': %w", utils.ErrFilesystem, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close report '%s': %w", utils.ErrFilesystem, path, err)
	}
	return nil
}

func enabledDisabled(b bool) string {
	if b {
		return "Enabled"
	}
	return "Disabled"
}
