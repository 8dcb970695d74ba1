package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const limiterKeyPrefix = "login:"

// RedisLimiter は試行回数を Redis に保存し、複数インスタンス間でロック状態を共有します。
type RedisLimiter struct {
	rdb *redis.Client
	cfg LimiterConfig
}

// NewRedisLimiter は RedisLimiter を作成します。
func NewRedisLimiter(rdb *redis.Client, cfg LimiterConfig) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, cfg: cfg.withDefaults()}
}

func (l *RedisLimiter) Check(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.rdb.PTTL(ctx, lockKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("check login lock: %w", err)
	}
	// キーが無い場合は負の値が返る
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, key string) (int, error) {
	attempts := attemptsKey(key)
	// INCR と EXPIRE NX を同じトランザクションで送り、期限なしのカウンターを残さない。
	// NX なので既存の窓は延長されない
	var incr *redis.IntCmd
	if _, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, attempts)
		pipe.ExpireNX(ctx, attempts, l.cfg.Window)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	count := incr.Val()

	limit := int64(l.cfg.MaxAttempts)
	if count >= limit {
		if err := l.rdb.Set(ctx, lockKey(key), 1, l.cfg.LockDuration).Err(); err != nil {
			return 0, fmt.Errorf("lock login: %w", err)
		}
		return 0, nil
	}
	return int(limit - count), nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, attemptsKey(key), lockKey(key)).Err(); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

func attemptsKey(key string) string {
	return limiterKeyPrefix + "attempts:" + key
}

func lockKey(key string) string {
	return limiterKeyPrefix + "lock:" + key
}
