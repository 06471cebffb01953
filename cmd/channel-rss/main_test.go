package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/barabo/channel-rss-go/internal/config"
	"github.com/barabo/channel-rss-go/internal/model"
	"github.com/barabo/channel-rss-go/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRootCmdFlagDefaults(t *testing.T) {
	cmd := rootCmd()
	flag := cmd.Flags().Lookup("concurrent-downloads")
	if flag == nil || flag.DefValue != "32" {
		t.Fatalf("expected --concurrent-downloads default 32, got %+v", flag)
	}
	if f := cmd.Flags().Lookup("level"); f == nil || f.DefValue != "INFO" {
		t.Fatalf("expected --level default INFO, got %+v", f)
	}
	if f := cmd.Flags().Lookup("colorize"); f == nil || f.DefValue != "true" {
		t.Fatalf("expected --colorize default true, got %+v", f)
	}
	if cmd.Flags().Lookup("config") == nil || cmd.Flags().Lookup("local-path") == nil {
		t.Fatal("expected --config and --local-path flags to exist")
	}
}

func TestRenderFeedOnUpdateWritesFeed(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "channels.yaml")
	if err := os.WriteFile(configPath, []byte("channels:\n  main:\n    cadence: 3600\n    days_old: 30\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	localRoot := t.TempDir()
	channels, err := config.NewFileProvider(configPath, localRoot, 4, "", discardLogger())
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}

	channelDir := store.ChannelDir(localRoot, "main")
	if err := os.MkdirAll(channelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	dataPath := store.ChannelDataPath(localRoot, "main")
	doc := `{"packages": {"foo-1.0-0.tar.bz2": {"name": "foo", "version": "1.0", "timestamp": 1700000000000}}}`
	if err := os.WriteFile(dataPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	onUpdate := renderFeedOnUpdate(channels, discardLogger())
	onUpdate(&model.Result{Channel: "main", Filename: dataPath})

	feedPath := store.FeedPath(localRoot, "main")
	body, err := os.ReadFile(feedPath)
	if err != nil {
		t.Fatalf("expected rendered feed file: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("expected non-empty feed body")
	}
}

func TestRenderFeedOnUpdateMissingFileLogsAndSkips(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "channels.yaml")
	if err := os.WriteFile(configPath, []byte("channels:\n  main:\n    cadence: 3600\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	localRoot := t.TempDir()
	channels, err := config.NewFileProvider(configPath, localRoot, 4, "", discardLogger())
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}

	onUpdate := renderFeedOnUpdate(channels, discardLogger())
	onUpdate(&model.Result{Channel: "main", Filename: filepath.Join(localRoot, "main", "channeldata.json")})

	feedPath := store.FeedPath(localRoot, "main")
	if _, err := os.Stat(feedPath); !os.IsNotExist(err) {
		t.Fatal("expected no feed file to be written when the source document is missing")
	}
}
