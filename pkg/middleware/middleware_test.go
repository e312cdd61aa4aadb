package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robopay/pkg/auth"
	"robopay/pkg/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestLogging_AssignsRequestID(t *testing.T) {
	var seen string
	h := RequestLogging(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(HeaderRequestID))
}

func TestRequestLogging_KeepsIncomingID(t *testing.T) {
	incoming := uuid.NewString()
	var seen string
	h := RequestLogging(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, incoming)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, incoming, seen)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", seen)
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestContentTypeValidation(t *testing.T) {
	h := ContentTypeValidation(logger.Discard())(okHandler())

	tests := []struct {
		method      string
		contentType string
		want        int
	}{
		{http.MethodPost, "application/json", http.StatusOK},
		{http.MethodPost, "Application/JSON; charset=utf-8", http.StatusOK},
		{http.MethodPost, "text/plain", http.StatusUnsupportedMediaType},
		{http.MethodPost, "", http.StatusUnsupportedMediaType},
		{http.MethodGet, "", http.StatusOK},
		{http.MethodDelete, "", http.StatusOK},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/", strings.NewReader("{}"))
		if tt.contentType != "" {
			req.Header.Set("Content-Type", tt.contentType)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, "%s %q", tt.method, tt.contentType)
	}
}

func TestMaxRequestSize(t *testing.T) {
	var readErr error
	h := MaxRequestSize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// Unknown length is enforced while reading.
	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(strings.Repeat("a", 64))))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Error(t, readErr)

	readErr = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	assert.NoError(t, readErr)
}

func TestRequestTimeout(t *testing.T) {
	h := RequestTimeout(20*time.Millisecond, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.NotContains(t, rec.Body.String(), "late")
}

func TestRequestTimeout_FastHandler(t *testing.T) {
	h := RequestTimeout(time.Second, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRequestTimeout_PanicReachesRecovery(t *testing.T) {
	h := Recovery(logger.Discard())(RequestTimeout(time.Second, logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler bug")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPayerRateLimiter_TokenBucket(t *testing.T) {
	rl := NewPayerRateLimiter(3, time.Minute, nil, logger.Discard())
	defer rl.Stop()

	now := time.Now()
	for i := 0; i < 3; i++ {
		assert.True(t, rl.allowAt("payer:a", now), "request %d", i)
	}
	assert.False(t, rl.allowAt("payer:a", now))
	assert.True(t, rl.allowAt("payer:b", now), "buckets are per key")

	// One token every 20s.
	assert.True(t, rl.allowAt("payer:a", now.Add(21*time.Second)))
	assert.True(t, rl.allowAt("", now), "empty key is never limited")
}

func TestPayerRateLimiter_EvictIdle(t *testing.T) {
	rl := NewPayerRateLimiter(1, time.Minute, nil, logger.Discard())
	defer rl.Stop()

	now := time.Now()
	rl.allowAt("payer:a", now)
	rl.evictIdle(now.Add(2 * time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.limiters)
}

func TestPayerRateLimit_Middleware(t *testing.T) {
	rl := NewPayerRateLimiter(1, time.Hour, nil, logger.Discard())
	defer rl.Stop()
	h := PayerRateLimit(rl)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithPayer(req.Context(), "user-1"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestPayerOrIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "ip:10.1.2.3", PayerOrIP(req))

	req = req.WithContext(auth.WithPayer(req.Context(), "user-7"))
	assert.Equal(t, "payer:user-7", PayerOrIP(req))
}

func newIdempotencyStore(t *testing.T) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisIdempotencyStore(rdb, time.Hour), mr
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	store, _ := newIdempotencyStore(t)

	var calls atomic.Int32
	h := Idempotency(store, "", logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"call":` + string(rune('0'+n)) + `}`))
	}))

	send := func(payer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/robots/r1/execute", strings.NewReader("{}"))
		req.Header.Set(DefaultIdempotencyHeader, "key-1")
		req = req.WithContext(auth.WithPayer(req.Context(), payer))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send("user-1")
	second := send("user-1")

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusPaymentRequired, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))

	// Same key from another payer is a different request.
	send("user-2")
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotency_SkipsErrorsAndGets(t *testing.T) {
	store, _ := newIdempotencyStore(t)

	var calls atomic.Int32
	h := Idempotency(store, "", logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/p", nil)
		req.Header.Set(DefaultIdempotencyHeader, "k")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotency_StoreDownServesRequest(t *testing.T) {
	store, mr := newIdempotencyStore(t)
	mr.Close()

	var calls atomic.Int32
	h := Idempotency(store, "", logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/p", nil)
	req.Header.Set(DefaultIdempotencyHeader, "k")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIdempotency_KeyTooLong(t *testing.T) {
	store, _ := newIdempotencyStore(t)
	h := Idempotency(store, "", logger.Discard())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/p", nil)
	req.Header.Set(DefaultIdempotencyHeader, strings.Repeat("k", 300))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRedisIdempotencyStore_TTL(t *testing.T) {
	store, mr := newIdempotencyStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", &CachedResponse{StatusCode: 200, Body: []byte("a")}))
	require.NoError(t, store.Set(ctx, "k", &CachedResponse{StatusCode: 201, Body: []byte("b")}))

	cached, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 200, cached.StatusCode, "first response wins")

	mr.FastForward(2 * time.Hour)
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}
