package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/photolog/internal/auth"
	"github.com/yourusername/photolog/internal/config"
	"github.com/yourusername/photolog/internal/logger"
	"github.com/yourusername/photolog/internal/posts"
)

// corsConfig はフロントエンドからクッキー付きで呼び出せるよう CORS を設定します。
func corsConfig(cfg *config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowOrigins = cfg.AllowedOrigins()
	c.AllowCredentials = true
	c.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	c.AllowMethods = []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}
	// Retry-After をフロントエンドから読めるようにする
	c.ExposeHeaders = []string{"Retry-After"}
	return c
}

// newRouter は gin エンジンを作成し、信頼するプロキシとルーティングを設定します。
// プロキシを明示しない限り X-Forwarded-For は無視され、ログイン試行制限のキーは接続元アドレスになります。
func newRouter(a *app) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(a.cfg.TrustedProxyList()); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	setupRoutes(router, a)
	return router, nil
}

// newMetricsServer は Prometheus の収集用に /metrics だけを公開する内部リスナーを作成します。
// 公開ポートの /metrics はログインが必要なため、スクレイパーはこちらを使います。
func newMetricsServer(addr string, a *app) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// setupRoutes はミドルウェアとルーティングの配線を行います。
// Gate はすべてのルートの前に置き、公開かどうかはポリシー表で判断します。
func setupRoutes(router *gin.Engine, a *app) {
	router.Use(a.metrics.Middleware())
	router.Use(logger.Gin(a.logger, auth.ContextUserKey))
	if origins := a.cfg.AllowedOrigins(); len(origins) > 0 {
		router.Use(cors.New(corsConfig(a.cfg)))
	}
	router.Use(a.auth.Gate())

	router.GET("/health", handleHealth)
	router.HEAD("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	router.GET("/admin", a.auth.AdminHome)
	router.GET("/media/*key", a.media.Serve)
	router.HEAD("/media/*key", a.media.Serve)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/login", a.auth.Login)
			authRoutes.GET("/logout", a.auth.Logout)
			authRoutes.POST("/logout", a.auth.Logout)
			authRoutes.GET("/status", a.auth.Status)
		}

		posts.NewHandler(a.posts, a.logger).Register(api.Group("/posts"))
		api.POST("/media", a.media.Upload)

		if a.jobs != nil {
			api.GET("/jobs/:id", jobStatusHandler(a.jobs))
		}
	}
}
