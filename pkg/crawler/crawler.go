package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/index-mirror/pkg/config"
	"github.com/Sriram-PR/index-mirror/pkg/fetch"
	"github.com/Sriram-PR/index-mirror/pkg/models"
	"github.com/Sriram-PR/index-mirror/pkg/parse"
	"github.com/Sriram-PR/index-mirror/pkg/queue"
	"github.com/Sriram-PR/index-mirror/pkg/tracker"
	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

// Crawler walks directory listings depth-first from a root URL and feeds every
// file it finds to the work queue. It runs on a single goroutine.
type Crawler struct {
	log              *logrus.Entry
	cfg              *config.AppConfig
	root             *url.URL
	rootStr          string
	compiledExcludes []*regexp.Regexp

	fetcher fetch.ListingFetcher
	queue   *queue.WorkQueue
	tracker *tracker.Tracker

	listingsScanned atomic.Int64
	listingFailures atomic.Int64
	filesQueued     atomic.Int64
	running         atomic.Bool
}

// frame is one directory waiting on the traversal stack
type frame struct {
	url   string
	depth int // 0 for the root
}

// NewCrawler validates the root URL and exclude patterns and returns a ready Crawler
func NewCrawler(
	cfg *config.AppConfig,
	fetcher fetch.ListingFetcher,
	q *queue.WorkQueue,
	tr *tracker.Tracker,
	baseLogger *logrus.Entry,
) (*Crawler, error) {
	rootStr, root, err := parse.ParseRootURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	compiledExcludes, err := utils.CompileRegexPatterns(cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("compiling exclude patterns: %w", err)
	}

	logger := baseLogger.WithField("component", "crawler")
	if len(compiledExcludes) > 0 {
		logger.Infof("Compiled %d exclude patterns.", len(compiledExcludes))
	}

	return &Crawler{
		log:              logger,
		cfg:              cfg,
		root:             root,
		rootStr:          rootStr,
		compiledExcludes: compiledExcludes,
		fetcher:          fetcher,
		queue:            q,
		tracker:          tr,
	}, nil
}

// RootURL returns the normalised crawl root (always ending in "/")
func (c *Crawler) RootURL() string {
	return c.rootStr
}

// CrawlerProgress contains progress information for a crawler
type CrawlerProgress struct {
	ListingsScanned int64
	ListingFailures int64
	FilesQueued     int64
	IsRunning       bool
}

// GetProgress returns the current progress of the crawler
func (c *Crawler) GetProgress() CrawlerProgress {
	return CrawlerProgress{
		ListingsScanned: c.listingsScanned.Load(),
		ListingFailures: c.listingFailures.Load(),
		FilesQueued:     c.filesQueued.Load(),
		IsRunning:       c.running.Load(),
	}
}

// Crawl traverses every directory reachable from the root and enqueues every file.
// A directory's files are queued before any of its subdirectories is entered, and
// each subdirectory is explored completely before its next sibling.
// It returns once traversal is done, without waiting for downloads, or with
// ctx.Err() when cancelled.
func (c *Crawler) Crawl(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)

	c.log.WithField("root", c.rootStr).Info("Crawl starting")

	stack := []frame{{url: c.rootStr, depth: 0}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			c.log.Warnf("Crawl interrupted with %d directories pending: %v", len(stack), err)
			return err
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Sole cycle guard: a directory is marked before its listing is fetched
		if !c.tracker.MarkVisited(current.url) {
			continue
		}

		dirLog := c.log.WithFields(logrus.Fields{"dir": current.url, "depth": current.depth})
		listing := c.scan(ctx, current.url, dirLog)

		for _, fileURL := range listing.Files {
			c.enqueueFile(fileURL, dirLog)
		}

		var subdirs []string
		for _, dirURL := range listing.Directories {
			if c.shouldDescend(dirURL, current.depth+1, dirLog) {
				dirLog.Debugf("Found subdirectory: %s", dirURL)
				subdirs = append(subdirs, dirURL)
			}
		}
		// Reverse push so the first listed subdirectory is popped first
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, frame{url: subdirs[i], depth: current.depth + 1})
		}
	}

	progress := c.GetProgress()
	c.log.WithFields(logrus.Fields{
		"directories":      progress.ListingsScanned,
		"listing_failures": progress.ListingFailures,
		"files_queued":     progress.FilesQueued,
	}).Info("Crawl finished, all directories traversed")
	return nil
}

// scan fetches and parses one listing. Any failure yields an empty listing.
func (c *Crawler) scan(ctx context.Context, dirURL string, dirLog *logrus.Entry) models.ListingResult {
	c.listingsScanned.Add(1)

	body, err := c.fetcher.GetListing(ctx, dirURL)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.listingFailures.Add(1)
			dirLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Error scanning directory: %v", err)
		}
		return models.ListingResult{}
	}

	listing, err := parse.ParseListing(strings.NewReader(body), dirURL)
	if err != nil {
		c.listingFailures.Add(1)
		dirLog.WithField("error_type", utils.CategorizeError(err)).Warnf("Error parsing directory listing: %v", err)
		return models.ListingResult{}
	}

	dirLog.WithFields(logrus.Fields{"files": len(listing.Files), "subdirs": len(listing.Directories)}).Debug("Directory scanned")
	return listing
}

// enqueueFile maps a listed file to its local path and queues it.
// Every linked file is queued wherever it lives; only exclude patterns drop one.
// A file that cannot be mapped is recorded failed straight away.
func (c *Crawler) enqueueFile(fileURL string, dirLog *logrus.Entry) {
	fileLog := dirLog.WithField("url", fileURL)

	if utils.MatchesAny(c.compiledExcludes, fileURL) {
		fileLog.Debug("Skipping file: matches exclude pattern")
		return
	}

	target, err := parse.ToLocalPath(fileURL, c.cfg.OutputDir)
	if err != nil {
		category := utils.CategorizeError(err)
		fileLog.WithField("error_type", category).Warnf("Cannot map file to a local path: %v", err)
		c.tracker.RecordFailed(fileURL, category, "")
		return
	}

	if err := c.queue.Add(models.WorkItem{FileURL: fileURL, TargetPath: target}); err != nil {
		c.tracker.RecordFailed(fileURL, utils.CategorizeError(err), target)
		return
	}
	c.filesQueued.Add(1)
}

// shouldDescend applies the scope, exclude and depth rules to a subdirectory
func (c *Crawler) shouldDescend(dirURL string, depth int, dirLog *logrus.Entry) bool {
	if reason := c.outOfScope(dirURL); reason != "" {
		dirLog.Debugf("Skipping subdirectory %s: %s", dirURL, reason)
		return false
	}
	if c.cfg.MaxDepth > 0 && depth > c.cfg.MaxDepth {
		dirLog.Debugf("Skipping subdirectory %s: depth %d exceeds max_depth %d", dirURL, depth, c.cfg.MaxDepth)
		return false
	}
	return !c.tracker.IsVisited(dirURL)
}

// outOfScope returns why the directory rawURL must not be entered, or "" when it may be
func (c *Crawler) outOfScope(rawURL string) string {
	if utils.MatchesAny(c.compiledExcludes, rawURL) {
		return "matches exclude pattern"
	}
	if c.cfg.AllowOutsideRoot {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "unparseable URL"
	}
	if !strings.EqualFold(u.Host, c.root.Host) || u.Scheme != c.root.Scheme {
		return fmt.Sprintf("outside root host %s", c.root.Host)
	}
	if !strings.HasPrefix(u.Path, c.root.Path) {
		return fmt.Sprintf("outside root path %s", c.root.Path)
	}
	return ""
}
