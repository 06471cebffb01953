// Package queue implements a thread-safe min-heap of model.Job ordered by
// RunAt (ties broken by insertion order), with a blocking "wait until
// non-empty" primitive for the dispatcher's main loop.
package queue

import (
	"container/heap"
	"sync"

	"github.com/barabo/channel-rss-go/internal/model"
)

// DispatchQueue is a thread-safe min-heap over model.Job by RunAt.
type DispatchQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	heap  jobHeap
	seq   uint64
}

// New returns an empty DispatchQueue.
func New() *DispatchQueue {
	q := &DispatchQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Schedule enqueues a job. Thread-safe; callable from any scheduler agent.
// Wakes any goroutine blocked in WaitNonEmpty.
func (q *DispatchQueue) Schedule(j model.Job) {
	q.mu.Lock()
	q.seq++
	j.Seq = q.seq
	heap.Push(&q.heap, j)
	q.mu.Unlock()
	q.cond.Signal()
}

// WaitNonEmpty blocks until the queue holds at least one job.
func (q *DispatchQueue) WaitNonEmpty() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) == 0 {
		q.cond.Wait()
	}
}

// Peek returns the earliest job without removing it, and whether the queue
// is non-empty.
func (q *DispatchQueue) Peek() (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return model.Job{}, false
	}
	return q.heap[0], true
}

// Pop removes and returns the earliest job, and whether the queue was
// non-empty; the caller (the dispatcher's drain loop) is responsible for comparing RunAt
// against the current time before calling this.
func (q *DispatchQueue) Pop() (model.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return model.Job{}, false
	}
	j := heap.Pop(&q.heap).(model.Job)
	return j, true
}

// Len reports the current queue depth (used for the metrics gauge).
func (q *DispatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// jobHeap implements container/heap.Interface, ordering by RunAt and
// breaking ties by Seq (insertion order) so equally-timed jobs run in the
// order they were scheduled.
type jobHeap []model.Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if !h[i].RunAt.Equal(h[j].RunAt) {
		return h[i].RunAt.Before(h[j].RunAt)
	}
	return h[i].Seq < h[j].Seq
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(model.Job))
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
