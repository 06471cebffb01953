package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeChannelsFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestCadence(t *testing.T) {
	path := writeChannelsFile(t, `
channels:
  bioconda:
    cadence: 300
    days_old: 18
  disabled_channel:
    cadence: -1
  no_cadence:
    days_old: 5
`)
	p, err := NewFileProvider(path, t.TempDir(), 32, "", discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	if got, ok := p.Cadence("bioconda"); !ok || got != 300*time.Second {
		t.Errorf("Cadence(bioconda) = %v, %v", got, ok)
	}
	if _, ok := p.Cadence("disabled_channel"); ok {
		t.Error("negative cadence should disable channel")
	}
	if _, ok := p.Cadence("no_cadence"); ok {
		t.Error("missing cadence should disable channel")
	}
	if _, ok := p.Cadence("unknown"); ok {
		t.Error("unknown channel should be disabled")
	}
}

func TestFreshnessDaysDefault(t *testing.T) {
	path := writeChannelsFile(t, `
channels:
  bioconda:
    cadence: 300
    days_old: 18
  no_days_old:
    cadence: 60
`)
	p, err := NewFileProvider(path, t.TempDir(), 32, "", discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if got := p.FreshnessDays("bioconda"); got != 18 {
		t.Errorf("FreshnessDays(bioconda) = %d", got)
	}
	if got := p.FreshnessDays("no_days_old"); got != -1 {
		t.Errorf("FreshnessDays(no_days_old) = %d, want -1 default", got)
	}
	if got := p.FreshnessDays("unknown"); got != -1 {
		t.Errorf("FreshnessDays(unknown) = %d, want -1 default", got)
	}
}

func TestFreshnessDaysExplicitZero(t *testing.T) {
	path := writeChannelsFile(t, `
channels:
  bioconda:
    cadence: 300
    days_old: 0
`)
	p, err := NewFileProvider(path, t.TempDir(), 32, "", discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if got := p.FreshnessDays("bioconda"); got != 0 {
		t.Errorf("FreshnessDays(bioconda) = %d, want 0 for an explicit days_old: 0", got)
	}
}

func TestDefaultUpstream(t *testing.T) {
	path := writeChannelsFile(t, "channels: {}\n")
	p, err := NewFileProvider(path, t.TempDir(), 32, "", discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if p.UpstreamBaseURL() != DefaultUpstreamURL {
		t.Errorf("UpstreamBaseURL() = %q", p.UpstreamBaseURL())
	}
}

func TestMalformedConfigIgnored(t *testing.T) {
	path := writeChannelsFile(t, `
channels:
  bioconda:
    cadence: 300
`)
	p, err := NewFileProvider(path, t.TempDir(), 32, "", discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not: valid: yaml: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if err := p.reload(); err != nil {
		t.Fatalf("reload should never return an error, just log and keep prior config: %v", err)
	}
	if got, ok := p.Cadence("bioconda"); !ok || got != 300*time.Second {
		t.Errorf("prior config should survive a bad reload; got %v, %v", got, ok)
	}
}
