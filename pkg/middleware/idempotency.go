package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"robopay/pkg/auth"
	"robopay/pkg/logger"
)

const (
	DefaultIdempotencyHeader = "Idempotency-Key"

	idempotencyKeyPrefix = "idempotency:"
	maxIdempotencyKeyLen = 255
)

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Set(ctx context.Context, key string, response *CachedResponse) error
}

type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

// RedisIdempotencyStore shares replayable responses between gateway
// instances. Entries expire after ttl.
type RedisIdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotencyStore(rdb *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	raw, err := s.rdb.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	var cached CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return &cached, true, nil
}

// Set keeps the first response stored under key.
func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) error {
	response.CreatedAt = time.Now().UTC()
	raw, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to encode cached response: %w", err)
	}

	if err := s.rdb.SetNX(ctx, idempotencyKeyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the payer, method and path. A store failure never
// blocks the request: it is served as if no key was sent.
func Idempotency(store IdempotencyStore, headerName string, log *logger.Logger) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = DefaultIdempotencyHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(headerName)
			if clientKey == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientKey) > maxIdempotencyKeyLen {
				writeJSONError(w, http.StatusBadRequest, "Idempotency key too long")
				return
			}

			key := scopedKey(r, clientKey)

			cached, found, err := store.Get(r.Context(), key)
			if err != nil {
				log.Warn("Idempotency lookup failed", "request_id", RequestIDFromContext(r.Context()), "error", err)
			}
			if found {
				replayCachedResponse(w, cached)
				return
			}

			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(capture, r)

			if !shouldCacheResponse(capture.statusCode) {
				return
			}
			if err := store.Set(context.WithoutCancel(r.Context()), key, &CachedResponse{
				StatusCode: capture.statusCode,
				Headers:    w.Header().Clone(),
				Body:       capture.body.Bytes(),
			}); err != nil {
				log.Warn("Failed to store idempotent response", "request_id", RequestIDFromContext(r.Context()), "error", err)
			}
		})
	}
}

func scopedKey(r *http.Request, clientKey string) string {
	payer, _ := auth.PayerFromContext(r.Context())
	return payer + ":" + r.Method + ":" + r.URL.Path + ":" + clientKey
}

func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		if key == HeaderRequestID {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}

// shouldCacheResponse keeps successes and payment challenges, so a retried
// execute call gets the same session instead of a new one.
func shouldCacheResponse(statusCode int) bool {
	return (statusCode >= 200 && statusCode < 300) || statusCode == http.StatusPaymentRequired
}
