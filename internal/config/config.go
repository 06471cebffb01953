// Package config implements the channel configuration provider: per-channel
// cadence and freshness threshold, the upstream base URL, and the local
// root folder.
package config

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/barabo/channel-rss-go/internal/safeurl"
)

// DefaultUpstreamURL is used when no --upstream flag is given.
const DefaultUpstreamURL = "https://conda-static.anaconda.org"

// Provider supplies per-channel scheduling parameters and process-wide
// paths. Read-only from scheduler agents.
type Provider interface {
	// Cadence returns the channel's target refresh interval and whether the
	// channel is enabled (cadence present and > 0).
	Cadence(channel string) (time.Duration, bool)
	// FreshnessDays is the days_old threshold for the feed renderer; -1 if
	// unset (meaning "include everything", decided by the renderer).
	FreshnessDays(channel string) int
	UpstreamBaseURL() string
	LocalRoot() string
	DownloadLimit() int
}

type channelEntry struct {
	Cadence int  `mapstructure:"cadence"`
	DaysOld *int `mapstructure:"days_old"`
}

type fileSchema struct {
	Channels map[string]channelEntry `mapstructure:"channels"`
}

// FileProvider backs Provider with a viper-loaded channels file. It watches
// the file for edits in the background (viper.WatchConfig): a parse error
// on reload leaves the previously loaded channel map in place rather than
// clobbering a good config with a broken one.
type FileProvider struct {
	v             *viper.Viper
	upstreamBase  string
	localRoot     string
	downloadLimit int
	log           *slog.Logger

	mu       sync.RWMutex
	channels map[string]channelEntry
}

// NewFileProvider loads configPath once and starts watching it for edits.
// upstreamBase may be empty, in which case DefaultUpstreamURL is used.
func NewFileProvider(configPath, localRoot string, downloadLimit int, upstreamBase string, log *slog.Logger) (*FileProvider, error) {
	if upstreamBase == "" {
		upstreamBase = DefaultUpstreamURL
	}
	if !safeurl.IsHTTPOrHTTPS(upstreamBase) {
		return nil, fmt.Errorf("upstream base url %q must be http or https", upstreamBase)
	}
	v := viper.New()
	v.SetConfigFile(configPath)

	p := &FileProvider{
		v:             v,
		upstreamBase:  upstreamBase,
		localRoot:     localRoot,
		downloadLimit: downloadLimit,
		log:           log.With("component", "config"),
		channels:      map[string]channelEntry{},
	}

	if err := p.reload(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		p.log.Info("channel config changed, reloading", "file", e.Name)
		_ = p.reload()
	})
	v.WatchConfig()

	return p, nil
}

func (p *FileProvider) reload() error {
	if err := p.v.ReadInConfig(); err != nil {
		p.log.Error("failed to parse channel config, keeping prior config", "err", err)
		return nil
	}
	var schema fileSchema
	if err := p.v.Unmarshal(&schema); err != nil {
		p.log.Error("failed to unmarshal channel config, keeping prior config", "err", err)
		return nil
	}
	p.mu.Lock()
	p.channels = schema.Channels
	p.mu.Unlock()
	return nil
}

func (p *FileProvider) Cadence(channel string) (time.Duration, bool) {
	p.mu.RLock()
	entry, ok := p.channels[channel]
	p.mu.RUnlock()
	if !ok || entry.Cadence <= 0 {
		return 0, false
	}
	return time.Duration(entry.Cadence) * time.Second, true
}

func (p *FileProvider) FreshnessDays(channel string) int {
	p.mu.RLock()
	entry, ok := p.channels[channel]
	p.mu.RUnlock()
	if !ok || entry.DaysOld == nil {
		return -1
	}
	return *entry.DaysOld
}

// Channels returns the currently configured channel names, for the
// supervisor's "ensure an agent exists per configured channel" tick.
func (p *FileProvider) Channels() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.channels))
	for name := range p.channels {
		names = append(names, name)
	}
	return names
}

func (p *FileProvider) UpstreamBaseURL() string { return p.upstreamBase }
func (p *FileProvider) LocalRoot() string       { return p.localRoot }
func (p *FileProvider) DownloadLimit() int      { return p.downloadLimit }
