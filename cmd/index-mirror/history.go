package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	applog "github.com/Sriram-PR/index-mirror/pkg/log"
	"github.com/Sriram-PR/index-mirror/pkg/models"
	"github.com/Sriram-PR/index-mirror/pkg/parse"
	"github.com/Sriram-PR/index-mirror/pkg/storage"
)

// NewHistoryCmd creates the history command, which prints what earlier runs recorded.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [root-url]",
		Short: "Show file outcomes recorded in the run journal",
		Long: `history prints the outcome of every file recorded in the run journal for
a host: status, error category, size, time of the last attempt and URL.

With --url only that file is shown. The host is taken from the root URL
argument, or from --url when no argument is given.

Examples:
  index-mirror history https://files.example.com/pub/ --state-dir ./state
  index-mirror history --state-dir ./state --url https://files.example.com/pub/a.iso`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("state-dir", "", "Directory holding the run journal (required)")
	cmd.Flags().String("url", "", "Show only this file URL")
	cmd.Flags().String("loglevel", "warn", "Log level (debug, info, warn, error)")
	_ = cmd.MarkFlagRequired("state-dir")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	stateDir, _ := cmd.Flags().GetString("state-dir")
	fileURL, _ := cmd.Flags().GetString("url")
	logLevel, _ := cmd.Flags().GetString("loglevel")

	hostSource := fileURL
	if len(args) == 1 {
		hostSource = args[0]
	}
	if hostSource == "" {
		return errors.New("a root URL argument or --url is required")
	}
	_, root, err := parse.ParseRootURL(hostSource)
	if err != nil {
		return err
	}

	dbPath := storage.DBPath(stateDir, root.Host)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no run journal for %s in %s", root.Host, stateDir)
	}

	log := applog.NewLogger(logLevel, cmd.ErrOrStderr())
	store, err := storage.NewBadgerStore(stateDir, root.Host, false, log.WithField("component", "history"))
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if fileURL != "" {
		return printFileHistory(out, store, fileURL)
	}

	n, err := store.WriteHistory(cmd.Context(), out)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d file(s) recorded for %s\n", n, root.Host)
	return nil
}

// printFileHistory prints the journal entry of one file URL
func printFileHistory(out io.Writer, reader storage.HistoryReader, fileURL string) error {
	status, entry, err := reader.LookupFile(fileURL)
	if err != nil {
		return err
	}
	if status == models.FileStatusNotFound || entry == nil {
		fmt.Fprintf(out, "%s: %s\n", fileURL, status)
		return nil
	}

	fmt.Fprintf(out, "URL:          %s\n", fileURL)
	fmt.Fprintf(out, "Status:       %s\n", entry.Status)
	if entry.ErrorType != "" {
		fmt.Fprintf(out, "Error:        %s\n", entry.ErrorType)
	}
	if entry.LocalPath != "" {
		fmt.Fprintf(out, "Local path:   %s\n", entry.LocalPath)
	}
	if entry.SizeBytes > 0 {
		fmt.Fprintf(out, "Size:         %s\n", humanize.Bytes(uint64(entry.SizeBytes)))
	}
	fmt.Fprintf(out, "Run ID:       %s\n", entry.RunID)
	fmt.Fprintf(out, "Last attempt: %s (%s)\n", entry.LastAttempt.Format("2006-01-02 15:04:05"), humanize.Time(entry.LastAttempt))
	return nil
}
