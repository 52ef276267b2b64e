package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/index-mirror/pkg/config"
	"github.com/Sriram-PR/index-mirror/pkg/crawler"
	"github.com/Sriram-PR/index-mirror/pkg/downloader"
	"github.com/Sriram-PR/index-mirror/pkg/fetch"
	"github.com/Sriram-PR/index-mirror/pkg/parse"
	"github.com/Sriram-PR/index-mirror/pkg/queue"
	"github.com/Sriram-PR/index-mirror/pkg/report"
	"github.com/Sriram-PR/index-mirror/pkg/storage"
	"github.com/Sriram-PR/index-mirror/pkg/tracker"
)

// RunResult summarises one mirror run
type RunResult struct {
	RunID        string
	Status       string // One of the report.Status* values
	Error        error
	Counts       tracker.Counts
	BytesWritten int64
	Duration     time.Duration
	ReportPath   string
}

// Orchestrator runs one mirror: crawler, download pool, optional journal and the final report
type Orchestrator struct {
	appCfg *config.AppConfig
	log    *logrus.Entry
	runID  string
}

// NewOrchestrator creates an orchestrator for an already validated config
func NewOrchestrator(appCfg *config.AppConfig, log *logrus.Entry) *Orchestrator {
	runID := uuid.NewString()
	return &Orchestrator{
		appCfg: appCfg,
		log:    log.WithField("run_id", runID),
		runID:  runID,
	}
}

// RunID returns the identifier stamped on this run's logs, journal entries and report
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run crawls the root, downloads every discovered file and writes the report.
// The report is written whatever happens, including a bad root URL, a journal
// that cannot be opened or a panic.
// A cancelled ctx ends the run early with status "interrupted" and ctx.Err() as the error.
func (o *Orchestrator) Run(ctx context.Context) (result RunResult, err error) {
	startTime := time.Now()
	result = RunResult{RunID: o.runID, ReportPath: o.appCfg.ReportPath()}

	var (
		tr   *tracker.Tracker
		pool *downloader.Pool
		q    *queue.WorkQueue
	)

	// Registered first so it runs last, after the panic handler below has set err
	defer func() {
		result.Duration = time.Since(startTime)
		var state tracker.Snapshot
		if tr != nil {
			result.Counts = tr.Counts()
			state = tr.Snapshot()
		}
		if pool != nil {
			result.BytesWritten = pool.BytesWritten()
		}
		result.Status = statusFor(ctx, err)
		result.Error = err

		summary := report.Summary{
			BaseURL:      o.appCfg.BaseURL,
			OutputDir:    o.appCfg.OutputDir,
			VerifyTLS:    o.appCfg.VerifyTLS,
			RunID:        o.runID,
			Status:       result.Status,
			Started:      startTime,
			Duration:     result.Duration,
			BytesWritten: result.BytesWritten,
			State:        state,
		}
		if reportErr := report.WriteFile(result.ReportPath, summary); reportErr != nil {
			o.log.Errorf("Failed to write report: %v", reportErr)
			if err == nil {
				err = reportErr
				result.Error = err
			}
		} else {
			o.log.Infof("Report written to %s", result.ReportPath)
		}
		o.logSummary(result)
	}()

	defer func() {
		if r := recover(); r != nil {
			o.log.Errorf("PANIC during run: %v", r)
			err = fmt.Errorf("panic during run: %v", r)
			if q != nil {
				q.Close()
			}
		}
	}()

	_, root, err := parse.ParseRootURL(o.appCfg.BaseURL)
	if err != nil {
		return result, err
	}

	var journal storage.Journal
	if o.appCfg.StateDir != "" {
		store, openErr := storage.NewBadgerStore(o.appCfg.StateDir, root.Host, o.appCfg.ResetState, o.log)
		if openErr != nil {
			return result, fmt.Errorf("failed to open run journal: %w", openErr)
		}
		defer store.Close()

		gcCtx, gcCancel := context.WithCancel(ctx)
		defer gcCancel()
		go store.RunGC(gcCtx, 0)

		journal = store
	}

	tr = tracker.New(o.runID, journal, o.log.WithField("component", "tracker"))

	client := fetch.NewClient(o.appCfg.HTTPClientSettings, o.appCfg.VerifyTLS, o.log)
	fetcher := fetch.NewFetcher(client, o.appCfg, o.log)
	q = queue.NewWorkQueue(o.log.WithField("component", "queue"))

	c, err := crawler.NewCrawler(o.appCfg, fetcher, q, tr, o.log)
	if err != nil {
		return result, fmt.Errorf("failed to create crawler: %w", err)
	}

	pool = downloader.NewPool(o.appCfg, q, fetcher, tr, o.log.WithField("component", "downloader"))
	pool.Start(ctx)

	progressCtx, stopProgress := context.WithCancel(ctx)
	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		o.reportProgress(progressCtx, c, q, tr, pool)
	}()

	crawlErr := c.Crawl(ctx)

	// No more files will arrive; workers drain what is left and exit
	q.Close()
	pool.Wait()

	stopProgress()
	progressWg.Wait()

	if crawlErr != nil {
		return result, crawlErr
	}
	return result, ctx.Err()
}

// statusFor maps the run error to the status shown in the report
func statusFor(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return report.StatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		return report.StatusInterrupted
	default:
		return report.StatusFailed
	}
}

// reportProgress logs a progress line every ProgressInterval until ctx ends
func (o *Orchestrator) reportProgress(ctx context.Context, c *crawler.Crawler, q *queue.WorkQueue, tr *tracker.Tracker, pool *downloader.Pool) {
	if o.appCfg.ProgressInterval <= 0 {
		return
	}
	ticker := time.NewTicker(o.appCfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			progress := c.GetProgress()
			counts := tr.Counts()
			o.log.WithFields(logrus.Fields{
				"directories": progress.ListingsScanned,
				"queued":      q.Len(),
				"in_flight":   counts.InFlight,
				"downloaded":  counts.Downloaded,
				"failed":      counts.Failed,
				"crawling":    progress.IsRunning,
			}).Infof("Progress: %s written", humanize.Bytes(uint64(pool.BytesWritten())))
		case <-ctx.Done():
			return
		}
	}
}

// logSummary logs the outcome of the run
func (o *Orchestrator) logSummary(r RunResult) {
	o.log.Info("============================================")
	o.log.Infof("Run %s in %v", r.Status, r.Duration.Round(time.Millisecond))
	o.log.Infof("  Directories scanned: %d", r.Counts.Visited)
	o.log.Infof("  Files downloaded:    %d", r.Counts.Downloaded)
	o.log.Infof("  Failed downloads:    %d", r.Counts.Failed)
	o.log.Infof("  Data written:        %s", humanize.Bytes(uint64(r.BytesWritten)))
	if r.Error != nil {
		o.log.Infof("  Error: %v", r.Error)
	}
	o.log.Info("============================================")
}
