package auth

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/photolog/internal/config"
)

// Limiter はログイン失敗回数を数え、一定回数を超えたキー（クライアントIP）をロックします。
type Limiter interface {
	// Check はロック中であれば残りのロック時間を返します。
	Check(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録し、ロックまでの残り試行回数を返します。
	RecordFailure(ctx context.Context, key string) (int, error)
	// Reset はログイン成功時に記録を消します。
	Reset(ctx context.Context, key string) error
}

// LimiterConfig はログイン試行制限の設定です。
type LimiterConfig struct {
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration
}

// LimiterConfigFrom は設定値から LimiterConfig を作ります。
func LimiterConfigFrom(cfg *config.Config) LimiterConfig {
	return LimiterConfig{
		MaxAttempts:  cfg.LoginMaxAttempts,
		Window:       cfg.LoginWindow(),
		LockDuration: cfg.LoginLock(),
	}
}

func (c LimiterConfig) withDefaults() LimiterConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	if c.LockDuration <= 0 {
		c.LockDuration = 10 * time.Minute
	}
	return c
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// MemoryLimiter はプロセス内のマップで試行回数を管理します。単一インスタンス向けです。
type MemoryLimiter struct {
	cfg      LimiterConfig
	now      func() time.Time
	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewMemoryLimiter は MemoryLimiter を作成します。
func NewMemoryLimiter(cfg LimiterConfig) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
}

func (l *MemoryLimiter) Check(_ context.Context, key string) (time.Duration, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	state, ok := l.attempts[key]
	if !ok {
		return 0, nil
	}
	now := l.now()
	if !now.Before(state.lockedUntil) {
		return 0, nil
	}
	return state.lockedUntil.Sub(now), nil
}

func (l *MemoryLimiter) RecordFailure(_ context.Context, key string) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	state, ok := l.attempts[key]
	if !ok || now.Sub(state.firstAttempt) > l.cfg.Window {
		state = &attemptState{firstAttempt: now}
		l.attempts[key] = state
	}

	state.count++
	if state.count >= l.cfg.MaxAttempts {
		state.lockedUntil = now.Add(l.cfg.LockDuration)
		state.count = l.cfg.MaxAttempts
	}

	return max(l.cfg.MaxAttempts-state.count, 0), nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.attempts, key)
	return nil
}
