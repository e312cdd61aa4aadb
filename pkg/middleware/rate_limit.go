package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"robopay/pkg/auth"
	"robopay/pkg/logger"
)

// KeyExtractor names the bucket a request is charged to.
type KeyExtractor func(r *http.Request) string

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PayerRateLimiter keeps one token bucket per payer, refilled at
// limit/window and holding up to limit tokens.
type PayerRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burst     int
	window    time.Duration
	extractor KeyExtractor
	log       *logger.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewPayerRateLimiter(limit int, window time.Duration, extractor KeyExtractor, log *logger.Logger) *PayerRateLimiter {
	if extractor == nil {
		extractor = PayerOrIP
	}

	limiter := &PayerRateLimiter{
		limiters:  make(map[string]*limiterEntry),
		rate:      rate.Every(window / time.Duration(limit)),
		burst:     limit,
		window:    window,
		extractor: extractor,
		log:       log,
		stopCh:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *PayerRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// evictIdle drops buckets unused for a full window; they would be full again.
func (rl *PayerRateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > rl.window {
			delete(rl.limiters, key)
		}
	}
}

func (rl *PayerRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *PayerRateLimiter) Allow(key string) bool {
	return rl.allowAt(key, time.Now())
}

func (rl *PayerRateLimiter) allowAt(key string, now time.Time) bool {
	if key == "" {
		return true
	}

	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	rl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func PayerRateLimit(limiter *PayerRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limiter.extractor(r)

			if !limiter.Allow(key) {
				limiter.log.Warn("Rate limit exceeded",
					"request_id", RequestIDFromContext(r.Context()),
					"key", key,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.retryAfter().Seconds())))
				writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *PayerRateLimiter) retryAfter() time.Duration {
	d := time.Duration(float64(time.Second) / float64(rl.rate))
	if d < time.Second {
		return time.Second
	}
	return d
}

// PayerOrIP charges authenticated requests to the payer and anonymous ones
// to the client address.
func PayerOrIP(r *http.Request) string {
	if payer, ok := auth.PayerFromContext(r.Context()); ok {
		return "payer:" + payer
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
