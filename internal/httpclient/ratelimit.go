// Rate limiting for requests to the upstream origin, layered under
// HostSemaphore's per-host concurrency cap. The gate already bounds
// concurrency; this bounds request rate, so a burst of requests right
// after a scheduling stampede doesn't still saturate the origin even when
// under the concurrency ceiling.
package httpclient

import (
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// defaultRatePerSecond and defaultBurst are conservative defaults sized for
// a background mirror agent, not a bulk crawler.
const (
	defaultRatePerSecond = 8
	defaultBurst         = 4
)

type hostLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var globalHostLimiters = &hostLimiters{limiters: map[string]*rate.Limiter{}}

func (h *hostLimiters) forHost(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultBurst)
		h.limiters[host] = l
	}
	return l
}

// rateLimitedRoundTripper wraps a base transport, pacing requests per
// scheme+host and bounding concurrency per scheme+host via GlobalHostSem.
type rateLimitedRoundTripper struct {
	base http.RoundTripper
}

// RateLimitedTransport wraps base so every request it carries is both
// concurrency-capped and rate-limited per destination host.
func RateLimitedTransport(base http.RoundTripper) http.RoundTripper {
	return &rateLimitedRoundTripper{base: base}
}

func (rt *rateLimitedRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	host := hostKey(req.URL)

	release := GlobalHostSem.Acquire(host)
	defer release()

	limiter := globalHostLimiters.forHost(host)
	if err := limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	return rt.base.RoundTrip(req)
}

func hostKey(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
