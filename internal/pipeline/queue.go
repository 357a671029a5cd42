package pipeline

import "sync"

// FrameQueue is a bounded FIFO between the reader goroutine and the
// processing loop. A full queue drops its oldest frame to admit the newest,
// so the loop always works on recent video rather than stalling the reader.
type FrameQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Frame
	cap    int
	closed bool

	dropped int
}

// NewFrameQueue returns a queue holding at most capacity frames. Capacities
// below 2 are raised to 2.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 2 {
		capacity = 2
	}
	q := &FrameQueue{cap: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put enqueues a frame, evicting the oldest one when full. It reports
// whether an eviction happened. Put on a closed queue is a no-op.
func (q *FrameQueue) Put(f Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	evicted := false
	if len(q.items) >= q.cap {
		q.items = q.items[1:]
		q.dropped++
		evicted = true
	}
	q.items = append(q.items, f)
	q.cond.Signal()
	return evicted
}

// Get blocks until a frame is available or the queue is closed and drained.
func (q *FrameQueue) Get() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Frame{}, false
	}
	f := q.items[0]
	q.items = q.items[1:]
	return f, true
}

// TryGet returns immediately with ok=false when the queue is empty.
func (q *FrameQueue) TryGet() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Frame{}, false
	}
	f := q.items[0]
	q.items = q.items[1:]
	return f, true
}

// Discard removes up to n queued frames and returns how many it removed.
// The scheduler's step decides n; discarded frames are skipped, not
// processed.
func (q *FrameQueue) Discard(n int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	if n <= 0 {
		return 0
	}
	q.items = q.items[n:]
	q.dropped += n
	return n
}

// Close wakes all blocked readers. Queued frames remain retrievable.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the total number of frames evicted or discarded so far.
func (q *FrameQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
