// Package dispatcher implements the central scheduling loop: it owns the
// dispatch queue and the concurrency gate, drains due jobs, spawns a worker
// task per drained job, and sleeps when the earliest job is still in the
// future.
package dispatcher

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/barabo/channel-rss-go/internal/gate"
	"github.com/barabo/channel-rss-go/internal/metrics"
	"github.com/barabo/channel-rss-go/internal/model"
	"github.com/barabo/channel-rss-go/internal/queue"
	"github.com/barabo/channel-rss-go/internal/worker"
)

// latenessWarnThreshold is how far past its run_at a job can start before
// it's worth a warning; a few seconds of slop from draining other due jobs
// first is normal and not worth logging.
const latenessWarnThreshold = 5 * time.Second

// noticeInterval caps how often the dispatcher reminds the logs it's idle
// and waiting on the next job, so a long gap between runs doesn't look like
// a hang.
const noticeInterval = 30 * time.Second

// Dispatcher turns time-stamped ScheduledJobs into executing worker tasks
// while respecting the global concurrency ceiling.
type Dispatcher struct {
	queue        *queue.DispatchQueue
	gate         *gate.Gate
	upstreamBase string
	localRoot    string
	client       *http.Client
	log          *slog.Logger

	alive chan struct{}
}

// New constructs a Dispatcher. gate's capacity is the configured download
// concurrency limit.
func New(q *queue.DispatchQueue, g *gate.Gate, upstreamBase, localRoot string, client *http.Client, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:        q,
		gate:         g,
		upstreamBase: upstreamBase,
		localRoot:    localRoot,
		client:       client,
		log:          log.With("component", "dispatcher"),
		alive:        make(chan struct{}),
	}
}

// Schedule enqueues a job. Thread-safe; callable from any scheduler agent.
func (d *Dispatcher) Schedule(channel string, runAt time.Time, inbox chan<- *model.Result) {
	d.queue.Schedule(model.Job{RunAt: runAt, Channel: channel, Inbox: inbox})
	metrics.QueueDepth.Set(float64(d.queue.Len()))
}

// Alive signals liveness: closed the instant Run returns, so a supervisor
// watching it can treat dispatcher exit as fatal.
func (d *Dispatcher) Alive() <-chan struct{} {
	return d.alive
}

// Run blocks until ctx is cancelled, driving the dispatch loop. Must be
// called from exactly one goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.alive)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// WaitNonEmpty itself doesn't take a context, so wrap it in a
		// short-lived goroutine and race it against ctx.Done() to stay
		// cancellable while blocked.
		if d.queue.Len() == 0 {
			woke := make(chan struct{})
			go func() { d.queue.WaitNonEmpty(); close(woke) }()
			select {
			case <-woke:
			case <-ctx.Done():
				return
			}
		}

		d.drainDue(ctx)
		if d.deferFuture(ctx) {
			return
		}
	}
}

// drainDue spawns a worker for every job whose run_at has arrived.
func (d *Dispatcher) drainDue(ctx context.Context) {
	for {
		j, ok := d.queue.Peek()
		if !ok || j.RunAt.After(time.Now()) {
			return
		}
		j, _ = d.queue.Pop()
		metrics.QueueDepth.Set(float64(d.queue.Len()))

		if lag := time.Since(j.RunAt); lag > latenessWarnThreshold {
			d.log.Warn("scheduled download starting late", "channel", j.Channel, "lag", lag.Round(time.Second))
		}

		go worker.Download(ctx, j.Channel, d.upstreamBase, d.localRoot, d.client, d.gate, j.Inbox, d.log)
	}
}

// deferFuture sleeps in one-second increments while the earliest job is
// still in the future, logging a notice every 30s of remaining wait.
// Returns true if ctx was cancelled mid-wait.
func (d *Dispatcher) deferFuture(ctx context.Context) bool {
	for {
		j, ok := d.queue.Peek()
		if !ok {
			return false
		}
		remaining := time.Until(j.RunAt)
		if remaining <= 0 {
			return false
		}
		if remaining > noticeInterval && int64(remaining/time.Second)%int64(noticeInterval/time.Second) == 0 {
			d.log.Info("next job", "channel", j.Channel, "in", remaining.Round(time.Second))
		}
		select {
		case <-time.After(1 * time.Second):
		case <-ctx.Done():
			return true
		}
	}
}
