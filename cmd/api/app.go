package main

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/photolog/internal/auth"
	"github.com/yourusername/photolog/internal/config"
	"github.com/yourusername/photolog/internal/jobs"
	"github.com/yourusername/photolog/internal/media"
	"github.com/yourusername/photolog/internal/metrics"
	"github.com/yourusername/photolog/internal/posts"
	"github.com/yourusername/photolog/internal/storage"
)

// app はルーティングに必要な依存をまとめたものです。
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	auth    *auth.Manager
	posts   posts.Store
	media   *media.Handler
	jobs    *jobs.Manager
	metrics *metrics.Metrics
	closers []func()
}

// newApp は設定に応じてバックエンドを選び、依存を組み立てます。
// DATABASE_URL が無ければメモリストア、REDIS_URL が無ければメモリリミッターでジョブ無効となります。
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  log,
		metrics: metrics.New(),
	}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	authOpts := []auth.Option{auth.WithLogger(log), auth.WithRecorder(a.metrics)}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		authOpts = append(authOpts, auth.WithLimiter(auth.NewRedisLimiter(rdb, auth.LimiterConfigFrom(cfg))))
	}
	a.auth = auth.NewManager(cfg, authOpts...)

	if cfg.DatabaseURL != "" {
		pool, err := posts.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		store := posts.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		a.posts = store
	} else {
		log.Warn("DATABASE_URL is not set; posts are kept in memory")
		a.posts = posts.NewMemoryStore()
	}

	local, err := storage.NewLocal(cfg.MediaDir, cfg.MediaPublicBaseURL)
	if err != nil {
		return nil, err
	}

	var mediaOpts []media.Option
	if rdb != nil {
		manager, err := setupJobs(cfg, rdb, local, log, a.metrics)
		if err != nil {
			return nil, err
		}
		a.jobs = manager
		a.closers = append(a.closers, func() { _ = manager.Shutdown(context.Background()) })
		mediaOpts = append(mediaOpts, media.WithScheduler(manager))
	}
	a.media = media.NewHandler(local, cfg.Environment, cfg.MaxFileBytes, log, mediaOpts...)

	ok = true
	return a, nil
}

// Close は確保したリソースを逆順に解放します。
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
