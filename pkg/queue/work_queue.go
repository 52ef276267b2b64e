package queue

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/index-mirror/pkg/models"
	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

// WorkQueue is an unbounded FIFO of download items shared by the crawler and the workers.
// Close stops new items from being accepted; items already queued are still handed out.
type WorkQueue struct {
	items  []models.WorkItem
	head   int // Index of the next item to pop; the prefix before it is spent
	mu     sync.Mutex
	cond   *sync.Cond // Signalled when an item arrives or the queue closes
	closed bool
	added  int
	log    *logrus.Entry
}

// NewWorkQueue creates an empty, open queue
func NewWorkQueue(logger *logrus.Entry) *WorkQueue {
	q := &WorkQueue{log: logger}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add appends an item without blocking. It fails with ErrQueueClosed after Close.
func (q *WorkQueue) Add(item models.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Warnf("Attempted to add item to closed queue: %s", item.FileURL)
		return utils.WrapErrorf(utils.ErrQueueClosed, "%s", item.FileURL)
	}

	q.items = append(q.items, item)
	q.added++
	q.cond.Signal()
	return nil
}

// Pop removes the oldest item, blocking while the queue is empty and open.
// Returns false once the queue is closed and fully drained.
func (q *WorkQueue) Pop() (models.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.lenLocked() == 0 {
		if q.closed {
			return models.WorkItem{}, false
		}
		q.cond.Wait()
	}

	item := q.items[q.head]
	q.items[q.head] = models.WorkItem{}
	q.head++

	// Reclaim the spent prefix once it dominates the backing array
	if q.head > 1024 && q.head*2 >= len(q.items) {
		q.items = append([]models.WorkItem(nil), q.items[q.head:]...)
		q.head = 0
	}
	return item, true
}

// Close signals that no more items will be added to the queue
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
}

// Len returns the number of items waiting to be popped
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Added returns how many items were ever accepted
func (q *WorkQueue) Added() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.added
}

func (q *WorkQueue) lenLocked() int {
	return len(q.items) - q.head
}
