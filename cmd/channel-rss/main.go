// Command channel-rss mirrors conda channel metadata documents from an
// upstream HTTP origin on a per-channel adaptive cadence, and derives an
// RSS feed of recently updated packages per channel.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/barabo/channel-rss-go/internal/config"
	"github.com/barabo/channel-rss-go/internal/dispatcher"
	"github.com/barabo/channel-rss-go/internal/feed"
	"github.com/barabo/channel-rss-go/internal/gate"
	"github.com/barabo/channel-rss-go/internal/httpclient"
	"github.com/barabo/channel-rss-go/internal/logging"
	"github.com/barabo/channel-rss-go/internal/metrics"
	"github.com/barabo/channel-rss-go/internal/model"
	"github.com/barabo/channel-rss-go/internal/queue"
	"github.com/barabo/channel-rss-go/internal/scheduler"
	"github.com/barabo/channel-rss-go/internal/store"
	"github.com/barabo/channel-rss-go/internal/supervisor"
)

var (
	configPath          string
	localPath           string
	upstreamBase        string
	concurrentDownloads int
	level               string
	colorize            bool
	metricsAddr         string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel-rss",
		Short: "Mirror conda channel metadata and derive per-channel RSS feeds",
		RunE:  run,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Channel configuration file (required)")
	cmd.Flags().StringVar(&localPath, "local-path", "", "Local directory for downloaded repodata (required)")
	cmd.Flags().StringVar(&upstreamBase, "upstream", "", "Upstream base URL (default "+config.DefaultUpstreamURL+")")
	cmd.Flags().IntVar(&concurrentDownloads, "concurrent-downloads", 32, "Maximum allowed number of concurrent downloads (1-1000)")
	cmd.Flags().StringVar(&level, "level", "INFO", "Lowest logging level shown: DEBUG|INFO|WARNING|ERROR")
	cmd.Flags().BoolVar(&colorize, "colorize", true, "Colorize logging output")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("local-path")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	logLevel, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	log := logging.New(os.Stderr, logLevel, colorize)

	if concurrentDownloads < 1 || concurrentDownloads > 1000 {
		return fmt.Errorf("--concurrent-downloads must be between 1 and 1000, got %d", concurrentDownloads)
	}

	channels, err := config.NewFileProvider(configPath, localPath, concurrentDownloads, upstreamBase, log)
	if err != nil {
		return fmt.Errorf("load channel config: %w", err)
	}

	metrics.GateCapacity.Set(float64(channels.DownloadLimit()))
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, log)
	}

	q := queue.New()
	g := gate.New(channels.DownloadLimit())
	client := httpclient.ForUpstream()
	disp := dispatcher.New(q, g, channels.UpstreamBaseURL(), channels.LocalRoot(), client, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go disp.Run(ctx)

	onUpdate := renderFeedOnUpdate(channels, log)
	sup := supervisor.New(channels, disp, onUpdate, log)
	go sup.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
	return nil
}

// renderFeedOnUpdate parses the just-installed channel document and writes
// the derived RSS feed alongside it.
func renderFeedOnUpdate(channels *config.FileProvider, log *slog.Logger) scheduler.UpdateFunc {
	return func(result *model.Result) {
		body, err := os.ReadFile(result.Filename)
		if err != nil {
			log.Error("read installed channel document", "channel", result.Channel, "err", err)
			return
		}
		doc, err := feed.ParseChannelDocument(body)
		if err != nil {
			log.Error("parse channel document", "channel", result.Channel, "err", err)
			return
		}
		threshold := channels.FreshnessDays(result.Channel)
		rendered, err := feed.Render(result.Channel, doc, threshold)
		if err != nil {
			log.Error("render feed", "channel", result.Channel, "err", err)
			return
		}
		rssPath := store.FeedPath(channels.LocalRoot(), result.Channel)
		if err := os.WriteFile(rssPath, []byte(rendered), 0o644); err != nil {
			log.Error("write feed", "channel", result.Channel, "err", err)
		}
	}
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server", "err", err)
	}
}
