package queue

import (
	"testing"
	"time"

	"github.com/barabo/channel-rss-go/internal/model"
)

func TestPopOrdersByRunAt(t *testing.T) {
	q := New()
	base := time.Now()
	q.Schedule(model.Job{RunAt: base.Add(3 * time.Second), Channel: "c"})
	q.Schedule(model.Job{RunAt: base.Add(1 * time.Second), Channel: "a"})
	q.Schedule(model.Job{RunAt: base.Add(2 * time.Second), Channel: "b"})

	j, ok := q.Pop()
	if !ok || j.Channel != "a" {
		t.Fatalf("Pop() = %+v, %v; want channel a first", j, ok)
	}
	j, ok = q.Pop()
	if !ok || j.Channel != "b" {
		t.Fatalf("Pop() = %+v, %v; want channel b second", j, ok)
	}
	j, ok = q.Pop()
	if !ok || j.Channel != "c" {
		t.Fatalf("Pop() = %+v, %v; want channel c third", j, ok)
	}
}

func TestTiesBreakByInsertionOrder(t *testing.T) {
	q := New()
	same := time.Now()
	q.Schedule(model.Job{RunAt: same, Channel: "first"})
	q.Schedule(model.Job{RunAt: same, Channel: "second"})

	j, _ := q.Pop()
	if j.Channel != "first" {
		t.Fatalf("tie-break should preserve insertion order, got %q first", j.Channel)
	}
}

func TestPopEmpty(t *testing.T) {
	q := New()
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop() on empty queue should return ok=false")
	}
	if _, ok := q.Peek(); ok {
		t.Fatal("Peek() on empty queue should return ok=false")
	}
}

func TestWaitNonEmptyUnblocksOnSchedule(t *testing.T) {
	q := New()
	done := make(chan struct{})
	go func() {
		q.WaitNonEmpty()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitNonEmpty should block while the queue is empty")
	case <-time.After(50 * time.Millisecond):
	}

	q.Schedule(model.Job{RunAt: time.Now(), Channel: "x"})

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("WaitNonEmpty should unblock after Schedule")
	}
}

func TestLen(t *testing.T) {
	q := New()
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
	q.Schedule(model.Job{RunAt: time.Now(), Channel: "a"})
	q.Schedule(model.Job{RunAt: time.Now(), Channel: "b"})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	q.Pop()
	if q.Len() != 1 {
		t.Fatalf("Len() after Pop = %d, want 1", q.Len())
	}
}
