// Package worker implements the fetch/compare/inflate/install sequence for
// one (channel, attempt) pair. A worker is spawned fresh by the dispatcher
// for every scheduled job and posts exactly one model.Result to its inbox
// before exiting.
package worker

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/barabo/channel-rss-go/internal/gate"
	"github.com/barabo/channel-rss-go/internal/metrics"
	"github.com/barabo/channel-rss-go/internal/model"
	"github.com/barabo/channel-rss-go/internal/store"
)

// chunkSize bounds memory use while streaming and gunzipping a channel
// document: large channels can run into the hundreds of megabytes, and a
// fixed buffer keeps a worker's footprint flat regardless of document size.
const chunkSize = 16 * 1024 * 1024

// gateWaitLogThreshold is the wait duration past which acquiring the
// concurrency gate is worth logging, so a slow upstream or a misconfigured
// download limit shows up in the logs without every ordinary acquire
// generating noise.
const gateWaitLogThreshold = 1 * time.Second

// fetchTimeout bounds a single upstream GET, including the time to stream
// the whole body, so a stalled connection can't pin a gate permit forever.
const fetchTimeout = 300 * time.Second

// Download runs the full fetch/compare/inflate/install sequence for one
// attempt and posts exactly one *model.Result to inbox. inbox is a
// single-slot channel and the send never blocks: a scheduler that already
// gave up waiting on this attempt won't be receiving, and the result is
// simply dropped rather than leaking this goroutine.
func Download(ctx context.Context, channel, upstreamBase, localRoot string, client *http.Client, g *gate.Gate, inbox chan<- *model.Result, log *slog.Logger) {
	result := &model.Result{ScheduledStart: time.Now()}
	log = log.With("component", "worker", "channel", channel)

	waitStart := time.Now()
	if err := g.Acquire(ctx); err != nil {
		result.Exception = err.Error()
		post(inbox, result)
		return
	}
	defer func() {
		g.Release()
		metrics.GateInUse.Set(float64(g.InUse()))
	}()
	metrics.GateInUse.Set(float64(g.InUse()))

	result.DownloadLockAcquired = time.Now()
	if wait := result.DownloadLockAcquired.Sub(waitStart); wait > gateWaitLogThreshold {
		log.Info("waited for download gate", "wait", wait)
	}
	if g.Saturated() {
		log.Warn("concurrency limit reached at acquisition")
	}

	if err := runStateMachine(ctx, channel, upstreamBase, localRoot, client, result, log); err != nil {
		result.Exception = err.Error()
		metrics.DownloadsFailed.WithLabelValues(channel).Inc()
		log.Error("download failed", "err", err)
	}
	result.Completed = time.Now()
	metrics.DownloadDuration.WithLabelValues(channel).Observe(result.Duration().Seconds())
	post(inbox, result)
}

// runStateMachine fetches the channel document, compares it against the
// last installed copy, and installs it if it changed. A non-nil error means
// the attempt failed outright; the caller stamps result.Exception.
func runStateMachine(ctx context.Context, channel, upstreamBase, localRoot string, client *http.Client, result *model.Result, log *slog.Logger) error {
	url := fmt.Sprintf("%s/%s/channeldata.json", upstreamBase, channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	req = req.WithContext(fetchCtx)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	result.Download = responseMeta(resp, req, time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream returned %s", resp.Status)
	}

	dir := store.ChannelDir(localRoot, channel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	newPath := store.NewDownloadPath(localRoot, channel)
	if err := streamToFile(resp.Body, newPath); err != nil {
		return fmt.Errorf("stream to temp: %w", err)
	}

	dataPath := store.ChannelDataPath(localRoot, channel)
	gzPath := store.CompressedPath(localRoot, channel)
	unchanged, err := filesByteEqual(newPath, gzPath)
	if err != nil {
		return fmt.Errorf("compare against cache: %w", err)
	}
	if unchanged {
		if _, err := os.Stat(dataPath); err == nil {
			os.Remove(newPath)
			metrics.DownloadsShortCircuited.WithLabelValues(channel).Inc()
			log.Debug("upstream unchanged, short-circuiting")
			return nil
		}
	}

	result.InflateStart = time.Now()
	inflatedPath := store.InflatedPath(localRoot, channel)
	if err := inflate(newPath, inflatedPath); err != nil {
		return fmt.Errorf("inflate: %w", err)
	}
	result.InflateComplete = time.Now()

	if err := os.Rename(inflatedPath, dataPath); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	// The compressed body becomes the new comparison baseline too, or the
	// equality check above would never short-circuit again after the first
	// successful install.
	if err := os.Rename(newPath, gzPath); err != nil {
		return fmt.Errorf("install compressed baseline: %w", err)
	}
	result.Updated = time.Now()
	result.Filename = dataPath
	metrics.DownloadsUpdated.WithLabelValues(channel).Inc()
	log.Info("installed updated channel document", "filename", dataPath)
	return nil
}

func responseMeta(resp *http.Response, req *http.Request, elapsed time.Duration) *model.ResponseMeta {
	return &model.ResponseMeta{
		StatusCode: resp.StatusCode,
		Headers:    map[string][]string(resp.Header),
		URL:        resp.Request.URL.String(),
		Reason:     resp.Status,
		Elapsed:    elapsed,
		Encoding:   resp.Header.Get("Content-Encoding"),
		Request: model.RequestDescriptor{
			Method:  req.Method,
			URL:     req.URL.String(),
			Headers: map[string][]string(req.Header),
		},
	}
}

// streamToFile copies r into path in chunkSize increments.
func streamToFile(r io.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := make([]byte, chunkSize)
	_, err = io.CopyBuffer(f, r, buf)
	return err
}

// inflate gunzips src into dst in chunkSize increments.
func inflate(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, chunkSize)
	_, err = io.CopyBuffer(out, gz, buf)
	return err
}

// filesByteEqual reports whether a and b both exist and have identical
// content. A missing b means "no baseline yet", which is not equality.
func filesByteEqual(a, b string) (bool, error) {
	af, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer af.Close()

	bf, err := os.Open(b)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer bf.Close()

	ai, err := af.Stat()
	if err != nil {
		return false, err
	}
	bi, err := bf.Stat()
	if err != nil {
		return false, err
	}
	if ai.Size() != bi.Size() {
		return false, nil
	}

	const bufSize = 1 << 20
	ba, bb := make([]byte, bufSize), make([]byte, bufSize)
	for {
		na, erra := io.ReadFull(af, ba)
		nb, errb := io.ReadFull(bf, bb)
		if !bytes.Equal(ba[:na], bb[:nb]) {
			return false, nil
		}
		if erra == io.EOF || erra == io.ErrUnexpectedEOF {
			return errb == io.EOF || errb == io.ErrUnexpectedEOF, nil
		}
		if erra != nil {
			return false, erra
		}
	}
}

// post delivers result to inbox without blocking, dropping it silently if
// nothing is receiving (the scheduler that owns inbox already timed out).
func post(inbox chan<- *model.Result, result *model.Result) {
	select {
	case inbox <- result:
	default:
	}
}
