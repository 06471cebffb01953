package httpclient

import (
	"net/http"
	"time"
)

// ForUpstream returns an HTTP client for fetching channel documents. It
// carries no client-level timeout of its own (callers apply their own
// context deadline per attempt), but bounds ResponseHeaderTimeout so a
// stalled origin can't hang a connection indefinitely before headers
// even arrive.
func ForUpstream() *http.Client {
	return &http.Client{
		Transport: RateLimitedTransport(&http.Transport{
			ResponseHeaderTimeout: 15 * time.Second,
			ExpectContinueTimeout: 5 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		}),
	}
}
