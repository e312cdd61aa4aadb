package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessionserrors "robopay/internal/sessions/errors"
	"robopay/pkg/model"
	"robopay/pkg/money"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (SessionRepository, *fakeClock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	repo := NewRedisSessionRepository(rdb, 15*time.Minute, WithClock(clock.Now))
	return repo, clock, mr
}

func newSession() model.NewSession {
	return model.NewSession{
		UserID:    "user-1",
		RobotID:   "robot-1",
		Amount:    money.MustParse("2.50"),
		Currency:  "USDC",
		Recipient: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Payload:   map[string]any{"service": "wave", "rental_plan_index": float64(1)},
	}
}

func TestCreateAndGet(t *testing.T) {
	repo, _, mr := setup(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, newSession())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.SessionStatusPending, created.Status)
	assert.Equal(t, 15*time.Minute, created.ExpiresAt.Sub(created.CreatedAt))
	assert.Nil(t, created.PaidAt)

	assert.Equal(t, 15*time.Minute, mr.TTL(keyPrefix+created.ID))

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "robot-1", got.RobotID)
	assert.Equal(t, money.MustParse("2.5"), got.Amount)
	assert.Equal(t, "wave", got.Payload["service"])
	assert.Equal(t, float64(1), got.Payload["rental_plan_index"])
	assert.True(t, created.ExpiresAt.Equal(got.ExpiresAt))
	assert.Empty(t, got.TxSignature)
}

func TestGet_NotFound(t *testing.T) {
	repo, _, _ := setup(t)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sessionserrors.ErrNotFound)

	_, err = repo.Get(context.Background(), "")
	assert.ErrorIs(t, err, sessionserrors.ErrInvalidID)
}

func TestGet_LazyExpiryIsPersisted(t *testing.T) {
	repo, clock, mr := setup(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, newSession())
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPending, got.Status, "expiry is strict: now must be past expires_at")

	clock.Advance(time.Second)
	got, err = repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusExpired, got.Status)
	assert.Equal(t, model.SessionStatusExpired, mr.HGet(keyPrefix+created.ID, "status"))

	// the persisted status no longer depends on the clock
	clock.Advance(-time.Hour)
	got, err = repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusExpired, got.Status)
}

func TestMarkPaid_Idempotent(t *testing.T) {
	repo, clock, _ := setup(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, newSession())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	first, err := repo.MarkPaid(ctx, created.ID, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPaid, first.Status)
	assert.Equal(t, "sig-1", first.TxSignature)
	require.NotNil(t, first.PaidAt)
	assert.True(t, first.PaidAt.Equal(clock.Now()))

	clock.Advance(time.Minute)
	second, err := repo.MarkPaid(ctx, created.ID, "sig-2")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPaid, second.Status)
	assert.Equal(t, "sig-1", second.TxSignature)
	require.NotNil(t, second.PaidAt)
	assert.True(t, first.PaidAt.Equal(*second.PaidAt))
}

func TestMarkPaid_PaidSessionNeverExpires(t *testing.T) {
	repo, clock, _ := setup(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, newSession())
	require.NoError(t, err)

	_, err = repo.MarkPaid(ctx, created.ID, "sig-1")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPaid, got.Status)
}

func TestMarkPaid_ExpiryDuringSettlementIsHonoured(t *testing.T) {
	repo, clock, mr := setup(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, newSession())
	require.NoError(t, err)

	clock.Advance(15*time.Minute - time.Second)
	pending, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusPending, pending.Status)

	// A concurrent read after the deadline persists the expiry before the
	// settlement lands.
	clock.Advance(5 * time.Second)
	expired, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusExpired, expired.Status)

	paid, err := repo.MarkPaid(ctx, created.ID, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPaid, paid.Status)
	assert.Equal(t, "sig-1", paid.TxSignature)
	assert.Equal(t, model.SessionStatusPaid, mr.HGet(keyPrefix+created.ID, "status"))
}

func TestMarkPaid_NotFound(t *testing.T) {
	repo, _, _ := setup(t)

	_, err := repo.MarkPaid(context.Background(), "missing", "sig")
	assert.ErrorIs(t, err, sessionserrors.ErrNotFound)
}

func TestMarkPaid_ConcurrentCallsAgreeOnSignature(t *testing.T) {
	repo, _, _ := setup(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, newSession())
	require.NoError(t, err)

	sigs := []string{"sig-a", "sig-b", "sig-c", "sig-d"}
	results := make([]string, len(sigs))

	var wg sync.WaitGroup
	for i, sig := range sigs {
		wg.Add(1)
		go func(i int, sig string) {
			defer wg.Done()
			s, err := repo.MarkPaid(ctx, created.ID, sig)
			if assert.NoError(t, err) {
				results[i] = s.TxSignature
			}
		}(i, sig)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, results[0], got)
	}
}

func TestDelete(t *testing.T) {
	repo, _, _ := setup(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, newSession())
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, created.ID))

	_, err = repo.Get(ctx, created.ID)
	assert.ErrorIs(t, err, sessionserrors.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, created.ID), sessionserrors.ErrNotFound)
}
