// Package supervisor owns the set of per-channel scheduler agents, creates
// one on demand as channels appear in the configuration, and marks each
// observed on a periodic tick. It also watches the dispatcher's liveness
// and exits the process if the dispatcher dies.
package supervisor

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/barabo/channel-rss-go/internal/config"
	"github.com/barabo/channel-rss-go/internal/dispatcher"
	"github.com/barabo/channel-rss-go/internal/scheduler"
)

// tickInterval is how often the supervisor re-checks configured channels
// and refreshes agent liveness.
const tickInterval = 5 * time.Second

// Supervisor creates and observes scheduler agents, one per configured
// channel, and monitors the dispatcher.
type Supervisor struct {
	channels *config.FileProvider
	disp     *dispatcher.Dispatcher
	onUpdate scheduler.UpdateFunc
	log      *slog.Logger

	mu     sync.Mutex
	agents map[string]*scheduler.Scheduler
}

// New constructs a Supervisor.
func New(channels *config.FileProvider, disp *dispatcher.Dispatcher, onUpdate scheduler.UpdateFunc, log *slog.Logger) *Supervisor {
	return &Supervisor{
		channels: channels,
		disp:     disp,
		onUpdate: onUpdate,
		log:      log.With("component", "supervisor"),
		agents:   map[string]*scheduler.Scheduler{},
	}
}

// Run blocks until ctx is cancelled, ticking periodically: checking the
// dispatcher is alive, ensuring an agent per configured channel, and
// marking each observed.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.disp.Alive():
			s.log.Error("dispatcher task has died - exiting")
			os.Exit(1)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	for _, channel := range s.channels.Channels() {
		agent := s.ensureAgent(ctx, channel)
		agent.Observed()
	}
}

// ensureAgent returns the existing agent for channel, or creates and starts
// one. Removed channels are not actively torn down: an agent whose channel
// disappears from configuration simply stops being ticked and self-exits
// once IsObserved() goes false.
func (s *Supervisor) ensureAgent(ctx context.Context, channel string) *scheduler.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agent, ok := s.agents[channel]; ok {
		return agent
	}
	agent := scheduler.New(channel, s.channels, s.disp, s.onUpdate, s.log)
	s.agents[channel] = agent
	go agent.Run(ctx)
	s.log.Info("scheduler created", "channel", channel)
	return agent
}
