// Package scheduler implements the per-channel agent: it decides when to
// ask the dispatcher for the next refresh, consumes the worker's result,
// maintains a bounded history, and triggers the feed renderer on updates.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/barabo/channel-rss-go/internal/config"
	"github.com/barabo/channel-rss-go/internal/dispatcher"
	"github.com/barabo/channel-rss-go/internal/model"
)

// allowedScheduleDrift is the spread of random jitter applied to each
// scheduling decision, so agents across many channels don't all submit on
// the exact same tick and hammer the dispatcher in lockstep.
const allowedScheduleDrift = 5 * time.Second

// unobservedTimeout is how long an agent waits without a supervisor tick
// before assuming the supervisor (and its channel) are gone and exiting.
const unobservedTimeout = 60 * time.Second

// maxHistory bounds how many past results an agent keeps, so a
// long-running channel's history doesn't grow without bound.
const maxHistory = 100

// UpdateFunc is invoked, in its own goroutine, whenever a worker result sets
// Updated, so the caller can react to the new document (e.g. re-render a
// feed) without blocking the scheduler loop.
type UpdateFunc func(result *model.Result)

// Scheduler is the per-channel agent. One instance runs its own goroutine
// for the lifetime of the channel's presence in the configuration; it
// self-exits when unobserved for more than 60s, so a channel removed from
// config doesn't leave a goroutine running forever.
type Scheduler struct {
	channel string
	cfg     config.Provider
	disp    *dispatcher.Dispatcher
	onUpdate UpdateFunc
	log     *slog.Logger

	mu           sync.Mutex
	lastObserved time.Time
	attempt      uint64
	history      []*model.Result // newest first, len <= maxHistory

	now func() time.Time
}

// New constructs a Scheduler. The caller must call Run in its own goroutine.
func New(channel string, cfg config.Provider, disp *dispatcher.Dispatcher, onUpdate UpdateFunc, log *slog.Logger) *Scheduler {
	return &Scheduler{
		channel:      channel,
		cfg:          cfg,
		disp:         disp,
		onUpdate:     onUpdate,
		log:          log.With("component", "scheduler", "channel", channel),
		lastObserved: time.Now(),
		now:          time.Now,
	}
}

// Observed marks the agent as supervised. Must be called from the
// supervisor's tick only.
func (s *Scheduler) Observed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.observationTimeNow()
	s.lastObserved = now
}

// IsObserved reports whether Observed was called within the last 60s.
func (s *Scheduler) IsObserved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.observationTimeNow()
	unobserved := now.Sub(s.lastObserved)
	if unobserved < 0 {
		unobserved = 0
	}
	return unobserved < unobservedTimeout
}

// observationTimeNow returns the current time for liveness bookkeeping. A
// clock that runs backwards is logged but never treated as de-observation,
// so an NTP correction can't spuriously kill a healthy agent.
// Caller must hold s.mu.
func (s *Scheduler) observationTimeNow() time.Time {
	now := s.now()
	if now.Before(s.lastObserved) {
		s.log.Error("detected clock jump - pretending it didn't happen")
	}
	return now
}

// Run drives the scheduler's main loop until ctx is cancelled or the agent
// goes unobserved. Intended to run in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !s.IsObserved() {
			s.log.Info("unobserved for too long, exiting")
			return
		}

		cadence, enabled := s.cfg.Cadence(s.channel)
		if !enabled {
			s.log.Debug("channel disabled", "cadence", cadence)
			if fuzzSleep(ctx, 20*time.Second) {
				return
			}
			continue
		}

		sinceLast, noPriorSuccess := s.computeSinceLast(cadence)
		if noPriorSuccess {
			if fuzzSleep(ctx, 10*time.Second) {
				return
			}
		}

		typicalDuration := s.medianDuration()
		if typicalDuration > cadence {
			s.log.Error("typical duration exceeds cadence", "typical_duration", typicalDuration, "cadence", cadence)
		}
		drift := time.Duration(rand.Int63n(int64(allowedScheduleDrift)))
		shouldStartIn := cadence - sinceLast - typicalDuration - drift

		if shouldStartIn < -cadence {
			s.log.Error("far behind cadence", "should_start_in", shouldStartIn, "cadence", cadence)
		}

		if shouldStartIn < 10*time.Second {
			if typicalDuration > 20*time.Second {
				s.log.Warn("jumbo: slow typical duration", "median", typicalDuration)
			}
			if s.submitAndAwait(ctx, cadence, shouldStartIn) {
				return
			}
			continue
		}

		if fuzzSleep(ctx, 2*time.Second) {
			return
		}
	}
}

// computeSinceLast returns how long it's been since the last successful
// attempt completed. The bool return reports whether no prior success
// exists yet, in which case the caller should treat the channel as due
// immediately.
func (s *Scheduler) computeSinceLast(cadence time.Duration) (time.Duration, bool) {
	last := s.lastSuccess()
	if last == nil {
		return cadence, true
	}
	sinceLast := s.now().Sub(last.Completed)
	if sinceLast < 0 {
		s.log.Warn("possible clock jump - ignoring since_last", "since_last", sinceLast)
		sinceLast = cadence
	}
	return sinceLast, false
}

// submitAndAwait schedules a job with the dispatcher and waits for its
// result, recording it in history and firing onUpdate if it changed the
// installed document. Returns true if ctx was cancelled while waiting.
func (s *Scheduler) submitAndAwait(ctx context.Context, cadence, shouldStartIn time.Duration) bool {
	if shouldStartIn < 0 {
		shouldStartIn = 0
	}
	inbox := make(chan *model.Result, 1)
	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	s.mu.Unlock()

	downloadID := fmt.Sprintf("download(%d)", attempt)
	runAt := s.now().Add(shouldStartIn)
	s.disp.Schedule(s.channel, runAt, inbox)
	s.log.Info("scheduled - waiting for result", "download_id", downloadID)

	timeout := cadence * 5
	select {
	case <-ctx.Done():
		return true
	case result := <-inbox:
		result.Channel = s.channel
		result.DownloadID = downloadID
		s.log.Info("result available", "download_id", downloadID)
		if result.WasUpdated() {
			s.log.Info("updated", "download_id", downloadID)
			if s.onUpdate != nil {
				go s.onUpdate(result)
			}
		}
		s.pushHistory(result)
	case <-time.After(timeout):
		s.log.Error("download did not complete", "download_id", downloadID)
	}
	return false
}

// pushHistory inserts at the head and trims to maxHistory. Single-writer:
// only this agent's own goroutine touches history, so no lock is needed
// here.
func (s *Scheduler) pushHistory(result *model.Result) {
	s.history = append([]*model.Result{result}, s.history...)
	if len(s.history) > maxHistory {
		s.log.Debug("popping history")
		s.history = s.history[:maxHistory]
	}
}

// lastSuccess returns the most recent result with status 200, or nil.
func (s *Scheduler) lastSuccess() *model.Result {
	for _, r := range s.history {
		if r.Succeeded() {
			return r
		}
	}
	return nil
}

// lastUpdate returns the most recent result with status 200 and a set
// inflate_complete, or nil.
func (s *Scheduler) lastUpdate() *model.Result {
	for _, r := range s.history {
		if r.Succeeded() && !r.InflateComplete.IsZero() {
			return r
		}
	}
	return nil
}

// medianDuration is the median attempt duration across successful history
// entries (the element at index n/2 of the sorted durations, so the upper of
// the two middle values when n is even), used to estimate how much of the
// cadence a download itself will consume.
func (s *Scheduler) medianDuration() time.Duration {
	var durations []time.Duration
	for _, r := range s.history {
		if r.Succeeded() {
			durations = append(durations, r.Duration())
		}
	}
	if len(durations) == 0 {
		return 0
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	return durations[len(durations)/2]
}

// fuzzSleep sleeps a uniform-random duration in [0, max). Returns true if
// ctx was cancelled first.
func fuzzSleep(ctx context.Context, max time.Duration) bool {
	d := time.Duration(rand.Int63n(int64(max)))
	select {
	case <-time.After(d):
		return false
	case <-ctx.Done():
		return true
	}
}
