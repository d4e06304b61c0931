package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitOptions configures the per-client token-bucket limiter applied
// to the mutation endpoints.
type RateLimitOptions struct {
	RPS       float64
	Burst     int
	KeyHeader string
	// Stats, when set, receives one event per decision. Recording is
	// best-effort and never blocks the request.
	Stats      StatsRecorder
	RetryAfter time.Duration
}

type StatsRecorder interface {
	Record(ctx context.Context, key string, allowed bool, method, path string) error
}

// RateLimit wraps next with a per-key token bucket. Keys default to the
// client IP, overridable through a trusted header for deployments behind
// a proxy. The idle-entry janitor runs until ctx is done.
func RateLimit(ctx context.Context, opts RateLimitOptions, next http.Handler) http.Handler {
	if opts.RPS <= 0 {
		return next
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.RPS)
		if opts.Burst < 1 {
			opts.Burst = 1
		}
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}

	store := newLimiterStore(rate.Limit(opts.RPS), opts.Burst)
	store.StartJanitor(ctx, 2*time.Minute)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r, opts.KeyHeader)
		allowed := store.get(key).Allow()

		if opts.Stats != nil {
			_ = opts.Stats.Record(r.Context(), key, allowed, r.Method, r.URL.Path)
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(opts.RetryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request, keyHeader string) string {
	if keyHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
			return v
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// limiterStore keeps one token bucket per key with idle cleanup.
type limiterStore struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(rps rate.Limit, burst int) *limiterStore {
	return &limiterStore{
		entries: make(map[string]*limiterEntry),
		rps:     rps,
		burst:   burst,
		idleTTL: 15 * time.Minute,
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *limiterStore) cleanup(now time.Time) {
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor periodically drops idle limiter entries until the context
// is done.
func (s *limiterStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 2 * time.Minute
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				s.cleanup(now)
			}
		}
	}()
}
