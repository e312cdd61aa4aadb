package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	lockserrors "robopay/internal/locks/errors"
	"robopay/pkg/model"
)

const keyPrefix = "robot_lock:"

// LockRepository grants exclusive use of a robot for a fixed duration.
// Locks are never released explicitly; they lapse with their TTL.
type LockRepository interface {
	TryAcquire(ctx context.Context, robotID, holder string, duration time.Duration) (bool, error)
	IsLocked(ctx context.Context, robotID string) (bool, error)
	Info(ctx context.Context, robotID string) (*model.ResourceLock, error)
}

type redisLockRepository struct {
	rdb *redis.Client
	now func() time.Time
}

type lockValue struct {
	Holder     string `json:"holder"`
	AcquiredAt int64  `json:"acquired_at"`
}

func NewRedisLockRepository(rdb *redis.Client) LockRepository {
	return &redisLockRepository{
		rdb: rdb,
		now: time.Now,
	}
}

func lockKey(robotID string) string {
	return keyPrefix + robotID
}

func (r *redisLockRepository) TryAcquire(ctx context.Context, robotID, holder string, duration time.Duration) (bool, error) {
	if duration <= 0 {
		return false, lockserrors.ErrInvalidDuration
	}

	value, err := json.Marshal(lockValue{Holder: holder, AcquiredAt: r.now().UnixMilli()})
	if err != nil {
		return false, fmt.Errorf("failed to encode lock: %w", err)
	}

	ok, err := r.rdb.SetNX(ctx, lockKey(robotID), value, duration).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire robot lock: %w", err)
	}
	return ok, nil
}

func (r *redisLockRepository) IsLocked(ctx context.Context, robotID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, lockKey(robotID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check robot lock: %w", err)
	}
	return n > 0, nil
}

// Info returns nil, nil when the robot is not locked.
func (r *redisLockRepository) Info(ctx context.Context, robotID string) (*model.ResourceLock, error) {
	key := lockKey(robotID)

	pipe := r.rdb.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read robot lock: %w", err)
	}

	raw, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read robot lock: %w", err)
	}

	var v lockValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("malformed robot lock: %w", err)
	}

	remaining := ttlCmd.Val()
	if remaining < 0 {
		remaining = 0
	}

	return &model.ResourceLock{
		RobotID:    robotID,
		Holder:     v.Holder,
		AcquiredAt: time.UnixMilli(v.AcquiredAt).UTC(),
		Remaining:  remaining,
	}, nil
}
