// Package downloader drains the work queue with a fixed set of download workers.
package downloader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/index-mirror/pkg/config"
	"github.com/Sriram-PR/index-mirror/pkg/fetch"
	"github.com/Sriram-PR/index-mirror/pkg/models"
	"github.com/Sriram-PR/index-mirror/pkg/queue"
	"github.com/Sriram-PR/index-mirror/pkg/tracker"
	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

const (
	chunkSize = 8 * 1024  // Write granularity for streamed bodies
	// Only the first sniffSize bytes of an HTML body are searched for the listing
	// marker; a marker further in goes unnoticed and the page is saved as a file.
	sniffSize = 64 * 1024
)

var listingMarker = []byte("Index of")

// Pool runs NumWorkers goroutines that download queued files until the queue is
// closed and drained, or the context is cancelled.
type Pool struct {
	cfg     *config.AppConfig
	queue   *queue.WorkQueue
	fetcher fetch.FileFetcher
	tracker *tracker.Tracker
	log     *logrus.Entry

	wg           sync.WaitGroup
	processed    atomic.Int64
	bytesWritten atomic.Int64
}

// NewPool creates a pool. Start launches the workers.
func NewPool(cfg *config.AppConfig, q *queue.WorkQueue, fetcher fetch.FileFetcher, tr *tracker.Tracker, log *logrus.Entry) *Pool {
	return &Pool{
		cfg:     cfg,
		queue:   q,
		fetcher: fetcher,
		tracker: tr,
		log:     log,
	}
}

// Start launches the workers. Call once.
func (p *Pool) Start(ctx context.Context) {
	p.log.Infof("Starting %d download workers...", p.cfg.NumWorkers)
	for i := 1; i <= p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, p.log.WithField("worker_id", i))
	}
}

// Wait blocks until every worker has exited
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Processed returns the number of queue items handled so far
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// BytesWritten returns the total size of files downloaded this run
func (p *Pool) BytesWritten() int64 {
	return p.bytesWritten.Load()
}

func (p *Pool) worker(ctx context.Context, workerLog *logrus.Entry) {
	defer p.wg.Done()
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		if ctx.Err() != nil {
			workerLog.Debugf("Worker shutting down due to context cancellation: %v", ctx.Err())
			return
		}

		item, ok := p.queue.Pop()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			return
		}

		p.processItem(ctx, item, workerLog.WithField("url", item.FileURL))
		p.processed.Add(1)

		// Fixed per-worker pause after every item, successful or not
		if err := fetch.Sleep(ctx, p.cfg.Delay); err != nil {
			return
		}
	}
}

// processItem handles one WorkItem and settles it in the tracker
func (p *Pool) processItem(ctx context.Context, item models.WorkItem, taskLog *logrus.Entry) {
	startTime := time.Now()
	writing := false // Set once TargetPath may hold a file this item created

	defer func() {
		if r := recover(); r != nil {
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"duration":    time.Since(startTime).String(),
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processItem")
			if writing {
				if rmErr := os.Remove(item.TargetPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					taskLog.Errorf("Failed to remove partial file after panic: %v", rmErr)
				}
			}
			p.fail(item, fmt.Errorf("%w: %v", utils.ErrTaskPanic, r), taskLog)
		}
	}()

	if p.tracker.IsDownloaded(item.FileURL) {
		taskLog.Debug("Already downloaded this run, skipping")
		return
	}
	if !p.tracker.Claim(item.FileURL) {
		taskLog.Debug("Already settled or being downloaded by another worker, skipping")
		return
	}

	if err := os.MkdirAll(filepath.Dir(item.TargetPath), 0755); err != nil {
		p.fail(item, fmt.Errorf("%w: create parent of '%s': %w", utils.ErrFilesystem, item.TargetPath, err), taskLog)
		return
	}

	if info, err := os.Stat(item.TargetPath); err == nil {
		if info.IsDir() {
			p.fail(item, fmt.Errorf("%w: target '%s' is a directory: %w", utils.ErrFilesystem, item.TargetPath, os.ErrExist), taskLog)
			return
		}
		taskLog.WithField("path", item.TargetPath).Info("File already exists, skipping")
		p.tracker.RecordDownloaded(item.FileURL, models.FileStatusExisting, item.TargetPath, info.Size())
		return
	}

	writing = true
	size, err := p.download(ctx, item)
	if err != nil {
		p.fail(item, err, taskLog)
		return
	}

	p.bytesWritten.Add(size)
	p.tracker.RecordDownloaded(item.FileURL, models.FileStatusDownloaded, item.TargetPath, size)
	taskLog.WithFields(logrus.Fields{
		"size":     humanize.Bytes(uint64(size)),
		"duration": time.Since(startTime).Round(time.Millisecond),
	}).Infof("Downloaded %s", filepath.Base(item.TargetPath))
}

func (p *Pool) fail(item models.WorkItem, err error, taskLog *logrus.Entry) {
	category := utils.CategorizeError(err)
	p.tracker.RecordFailed(item.FileURL, category, item.TargetPath)
	entry := taskLog.WithField("error_type", category)
	if errors.Is(err, context.Canceled) {
		entry.Warn("Download interrupted")
		return
	}
	entry.Warnf("Failed to download: %v", err)
}

// download streams the file to item.TargetPath. On any error the partial file is removed.
func (p *Pool) download(ctx context.Context, item models.WorkItem) (int64, error) {
	resp, err := p.fetcher.Get(ctx, item.FileURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body := bufio.NewReaderSize(resp.Body, sniffSize)
	if fetch.IsHTML(resp.Header.Get("Content-Type")) {
		head, peekErr := body.Peek(sniffSize)
		if peekErr != nil && !errors.Is(peekErr, io.EOF) && !errors.Is(peekErr, bufio.ErrBufferFull) {
			return 0, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, peekErr)
		}
		if bytes.Contains(head, listingMarker) {
			return 0, utils.WrapErrorf(utils.ErrDisguisedListing, "%s", item.FileURL)
		}
	}

	f, err := os.Create(item.TargetPath)
	if err != nil {
		return 0, fmt.Errorf("%w: create '%s': %w", utils.ErrFilesystem, item.TargetPath, err)
	}

	written, copyErr := copyChunks(f, body)
	closeErr := f.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("%w: close '%s': %w", utils.ErrFilesystem, item.TargetPath, closeErr)
	}
	if copyErr == nil {
		copyErr = verifyNonEmpty(item.TargetPath)
	}
	if copyErr != nil {
		if rmErr := os.Remove(item.TargetPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.log.WithField("path", item.TargetPath).Errorf("Failed to remove partial file: %v", rmErr)
		}
		return 0, copyErr
	}
	return written, nil
}

// copyChunks copies src to dst in chunkSize pieces, tagging read and write errors
func copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, fmt.Errorf("%w: write: %w", utils.ErrFilesystem, writeErr)
			}
			written += int64(n)
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, readErr)
		}
	}
}

func verifyNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", utils.ErrEmptyDownload, path, err)
	}
	if info.Size() == 0 {
		return utils.WrapErrorf(utils.ErrEmptyDownload, "%s is empty", path)
	}
	return nil
}
