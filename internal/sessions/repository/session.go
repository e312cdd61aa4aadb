package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	sessionserrors "robopay/internal/sessions/errors"
	"robopay/pkg/model"
	"robopay/pkg/money"
)

const keyPrefix = "session:"

// getScript reads a session and persists the lazy pending -> expired transition.
// ARGV[1] is the current time in unix milliseconds.
var getScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])

if redis.call("EXISTS", key) == 0 then
  return false
end

local fields = redis.call("HMGET", key, "status", "expires_at")
if fields[1] == "pending" and now > tonumber(fields[2]) then
  redis.call("HSET", key, "status", "expired")
end

return redis.call("HGETALL", key)
`)

// markPaidScript returns {code, record}. A paid session is never rewritten.
// Expiry is not checked here: the caller saw the session pending before it
// started verifying the settlement, and a session that lapses while the chain
// is being queried is still paid for.
// ARGV: now (ms), tx signature, ttl (ms).
var markPaidScript = redis.NewScript(`
local key = KEYS[1]

if redis.call("EXISTS", key) == 0 then
  return {"not_found"}
end

if redis.call("HGET", key, "status") == "paid" then
  return {"already_paid", redis.call("HGETALL", key)}
end

redis.call("HSET", key, "status", "paid", "tx_signature", ARGV[2], "paid_at", ARGV[1])
redis.call("PEXPIRE", key, tonumber(ARGV[3]))
return {"paid", redis.call("HGETALL", key)}
`)

type SessionRepository interface {
	Create(ctx context.Context, s model.NewSession) (*model.PaymentSession, error)
	Get(ctx context.Context, id string) (*model.PaymentSession, error)
	MarkPaid(ctx context.Context, id string, txSignature string) (*model.PaymentSession, error)
	Delete(ctx context.Context, id string) error
}

type redisSessionRepository struct {
	rdb      *redis.Client
	lifetime time.Duration
	now      func() time.Time
}

type Option func(*redisSessionRepository)

// WithClock replaces time.Now. Expiry decisions are taken against this clock.
func WithClock(now func() time.Time) Option {
	return func(r *redisSessionRepository) {
		r.now = now
	}
}

func NewRedisSessionRepository(rdb *redis.Client, lifetime time.Duration, opts ...Option) SessionRepository {
	r := &redisSessionRepository{
		rdb:      rdb,
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sessionKey(id string) string {
	return keyPrefix + id
}

func (r *redisSessionRepository) Create(ctx context.Context, s model.NewSession) (*model.PaymentSession, error) {
	now := r.now().UTC().Truncate(time.Millisecond)

	session := &model.PaymentSession{
		ID:        uuid.NewString(),
		UserID:    s.UserID,
		RobotID:   s.RobotID,
		Amount:    s.Amount,
		Currency:  s.Currency,
		Recipient: s.Recipient,
		Status:    model.SessionStatusPending,
		Payload:   s.Payload,
		CreatedAt: now,
		ExpiresAt: now.Add(r.lifetime),
	}

	payload, err := json.Marshal(session.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session payload: %w", err)
	}

	key := sessionKey(session.ID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"id", session.ID,
		"user_id", session.UserID,
		"robot_id", session.RobotID,
		"amount", session.Amount.Micros(),
		"currency", session.Currency,
		"recipient", session.Recipient,
		"status", session.Status,
		"payload", string(payload),
		"created_at", session.CreatedAt.UnixMilli(),
		"expires_at", session.ExpiresAt.UnixMilli(),
	)
	pipe.PExpire(ctx, key, r.lifetime)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	return session, nil
}

func (r *redisSessionRepository) Get(ctx context.Context, id string) (*model.PaymentSession, error) {
	if id == "" {
		return nil, sessionserrors.ErrInvalidID
	}

	res, err := getScript.Run(ctx, r.rdb, []string{sessionKey(id)}, r.now().UnixMilli()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sessionserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read payment session: %w", err)
	}

	return decodeSession(res)
}

func (r *redisSessionRepository) MarkPaid(ctx context.Context, id string, txSignature string) (*model.PaymentSession, error) {
	if id == "" {
		return nil, sessionserrors.ErrInvalidID
	}

	res, err := markPaidScript.Run(ctx, r.rdb,
		[]string{sessionKey(id)},
		r.now().UnixMilli(), txSignature, r.lifetime.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment session paid: %w", err)
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) == 0 {
		return nil, fmt.Errorf("unexpected mark paid reply: %v", res)
	}

	code, _ := reply[0].(string)
	switch code {
	case "not_found":
		return nil, sessionserrors.ErrNotFound
	case "paid", "already_paid":
		if len(reply) < 2 {
			return nil, fmt.Errorf("mark paid reply missing record: %v", res)
		}
		return decodeSession(reply[1])
	default:
		return nil, fmt.Errorf("unexpected mark paid code: %q", code)
	}
}

func (r *redisSessionRepository) Delete(ctx context.Context, id string) error {
	n, err := r.rdb.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete payment session: %w", err)
	}
	if n == 0 {
		return sessionserrors.ErrNotFound
	}
	return nil
}

// decodeSession converts a flat HGETALL reply into a session.
func decodeSession(raw interface{}) (*model.PaymentSession, error) {
	items, ok := raw.([]interface{})
	if !ok || len(items)%2 != 0 {
		return nil, fmt.Errorf("malformed session record: %v", raw)
	}

	fields := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, _ := items[i].(string)
		v, _ := items[i+1].(string)
		fields[k] = v
	}
	if len(fields) == 0 {
		return nil, sessionserrors.ErrNotFound
	}

	micros, err := strconv.ParseInt(fields["amount"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed session amount %q: %w", fields["amount"], err)
	}

	s := &model.PaymentSession{
		ID:          fields["id"],
		UserID:      fields["user_id"],
		RobotID:     fields["robot_id"],
		Amount:      money.FromMicros(micros),
		Currency:    fields["currency"],
		Recipient:   fields["recipient"],
		Status:      fields["status"],
		TxSignature: fields["tx_signature"],
	}

	if s.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return nil, err
	}
	if s.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return nil, err
	}
	if v := fields["paid_at"]; v != "" {
		paidAt, err := parseMillis(v)
		if err != nil {
			return nil, err
		}
		s.PaidAt = &paidAt
	}

	if p := fields["payload"]; p != "" && p != "null" {
		if err := json.Unmarshal([]byte(p), &s.Payload); err != nil {
			return nil, fmt.Errorf("malformed session payload: %w", err)
		}
	}

	return s, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed session timestamp %q: %w", v, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
