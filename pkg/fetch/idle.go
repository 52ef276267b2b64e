package fetch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// idleWatchdog cancels a request when no progress is made for d.
// Progress is the response headers arriving or any body bytes being read.
type idleWatchdog struct {
	d      time.Duration
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   *time.Timer
	expired bool
}

func newIdleWatchdog(d time.Duration, cancel context.CancelFunc) *idleWatchdog {
	w := &idleWatchdog{d: d, cancel: cancel}
	if d > 0 {
		w.timer = time.AfterFunc(d, w.fire)
	}
	return w
}

func (w *idleWatchdog) fire() {
	w.mu.Lock()
	w.expired = true
	w.mu.Unlock()
	w.cancel()
}

func (w *idleWatchdog) kick() {
	if w.timer == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.expired {
		w.timer.Reset(w.d)
	}
}

func (w *idleWatchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *idleWatchdog) hasExpired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}

// wrap turns the cancellation caused by the watchdog into a deadline error so it
// is reported as a timeout rather than a user interrupt
func (w *idleWatchdog) wrap(err error) error {
	if err == nil || err == io.EOF || !w.hasExpired() {
		return err
	}
	return fmt.Errorf("%w: no data for %v: %v", context.DeadlineExceeded, w.d, err)
}

// idleBody keeps the watchdog alive while the caller streams the body and
// releases the request's resources on Close.
type idleBody struct {
	rc      io.ReadCloser
	wd      *idleWatchdog
	cancel  context.CancelFunc
	release func()
	once    sync.Once
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.wd.kick()
	}
	return n, b.wd.wrap(err)
}

func (b *idleBody) Close() error {
	err := b.rc.Close()
	b.once.Do(func() {
		b.wd.stop()
		b.cancel()
		b.release()
	})
	return err
}
