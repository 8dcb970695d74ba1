// Package logger はアプリ全体で使う slog ロガーと、gin のアクセスログを提供します。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/photolog/internal/config"
)

// ParseLevel は LOG_LEVEL の値を slog のレベルに変換します。不明な値は info です。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New は本番では JSON、開発ではテキスト形式のロガーを作成し、既定のロガーにも設定します。
func New(level string, env config.Environment) *slog.Logger {
	log := newWithWriter(os.Stdout, level, env)
	slog.SetDefault(log)
	return log
}

func newWithWriter(w io.Writer, level string, env config.Environment) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if env == config.Development {
		h = slog.NewTextHandler(w, opts)
	} else {
		opts.AddSource = true
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// Gin はリクエストごとにアクセスログを出力するミドルウェアを返します。
// userKey が指定されていれば、コンテキストに設定された識別子も出力します。
func Gin(log *slog.Logger, userKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if userKey != "" {
			if user := c.GetString(userKey); user != "" {
				attrs = append(attrs, "user", user)
			}
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("http.request", attrs...)
		case status >= 400:
			log.Warn("http.request", attrs...)
		default:
			log.Info("http.request", attrs...)
		}
	}
}
