package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/index-mirror/pkg/config"
	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

// ListingFetcher retrieves directory listing pages as text
type ListingFetcher interface {
	GetListing(ctx context.Context, url string) (string, error)
}

// FileFetcher opens a streamed download. The caller must close the body.
type FileFetcher interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Fetcher performs single-attempt GET requests. Failures are returned, never retried.
// Every request holds a slot of the shared semaphore until its body is closed.
type Fetcher struct {
	client  *http.Client
	cfg     *config.AppConfig
	sem     *semaphore.Weighted
	limiter *RateLimiter
	log     *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	slots := cfg.MaxConcurrentRequests
	if slots <= 0 {
		slots = cfg.NumWorkers + 1
	}
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(slots)),
		limiter: NewRateLimiter(cfg.MaxRequestsPerSecond, log.WithField("component", "rate_limiter")),
		log:     log,
	}
}

// GetListing fetches a directory page and returns its body decoded to UTF-8.
// Bodies above max_listing_bytes are truncated with a warning.
func (f *Fetcher) GetListing(ctx context.Context, url string) (string, error) {
	resp, err := f.do(ctx, url, f.cfg.ListingTimeout)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("%w: listing %s: %w", utils.ErrResponseBodyRead, url, err)
	}

	limit := f.cfg.MaxListingBytes
	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return "", fmt.Errorf("%w: listing %s: %w", utils.ErrResponseBodyRead, url, err)
	}
	if int64(len(body)) > limit {
		f.log.WithFields(logrus.Fields{"url": url, "limit_bytes": limit}).Warn("Listing page exceeds size limit, truncating")
		body = body[:limit]
	}
	return string(body), nil
}

// Get starts a streamed download of url using the download idle timeout
func (f *Fetcher) Get(ctx context.Context, url string) (*http.Response, error) {
	return f.do(ctx, url, f.cfg.DownloadTimeout)
}

// do issues one GET. On success the returned body must be closed to free the
// request slot. Non-2xx responses are drained, closed and returned as errors.
func (f *Fetcher) do(ctx context.Context, url string, idle time.Duration) (*http.Response, error) {
	reqLog := f.log.WithField("url", url)

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	released := false
	release := func() {
		if !released {
			released = true
			f.sem.Release(1)
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		release()
		return nil, err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	wd := newIdleWatchdog(idle, cancel)
	cleanup := func() {
		wd.stop()
		cancel()
		release()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		cleanup()
		return nil, utils.WrapErrorf(utils.ErrRequestCreation, "%s: %v", url, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		err = wd.wrap(err)
		cleanup()
		if !errors.Is(err, context.Canceled) {
			reqLog.WithField("error_type", utils.CategorizeError(err)).Debugf("Request failed: %v", err)
		}
		return nil, err
	}
	wd.kick()

	if statusErr := classifyStatus(resp); statusErr != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		cleanup()
		reqLog.WithField("status_code", resp.StatusCode).Debug("Non-2xx response")
		return nil, statusErr
	}

	resp.Body = &idleBody{rc: resp.Body, wd: wd, cancel: cancel, release: release}
	reqLog.WithField("status_code", resp.StatusCode).Debug("Successfully fetched")
	return resp, nil
}

// classifyStatus maps a non-2xx response onto the HTTP sentinel errors
func classifyStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, code, resp.Status)
	case code >= 500:
		return fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, code, resp.Status)
	default:
		return fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, code, resp.Status)
	}
}

// IsHTML reports whether a Content-Type header denotes an HTML document
func IsHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}
