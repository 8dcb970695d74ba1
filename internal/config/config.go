// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// minSessionSecretBytes は本番環境で要求する署名鍵の最小長です。
const minSessionSecretBytes = 32

// ErrInvalidConfig は設定値の検証に失敗したことを表します。
var ErrInvalidConfig = errors.New("invalid config")

// Config はアプリケーションの設定を保持する構造体です。
// プロセス起動時に一度だけ構築し、以降は読み取り専用として各コンポーネントへ渡します。
type Config struct {
	// 認証設定
	AdminUsername string // 管理者ユーザー名
	AdminPassword string // 管理者パスワード（平文、ハッシュ保存はしない）
	SessionSecret string // セッショントークン署名用の秘密鍵

	// 実行環境
	Environment Environment

	// セッション設定
	SessionTTLSeconds     int // セッションの有効期間（秒）
	SessionRefreshSeconds int // 残り時間がこれを下回ると再発行する（秒）

	// サーバー設定
	Port        string
	GinMode     string
	LogLevel    string
	MetricsAddr string // 空なら内部メトリクスリスナーを起動しない（例: 127.0.0.1:9090）

	// CORS設定
	CORSAllowedOrigins string // カンマ区切り

	// X-Forwarded-For を信頼するリバースプロキシ（カンマ区切りの IP/CIDR）。
	// 空なら転送ヘッダーは無視し、接続元アドレスをクライアント IP とする
	TrustedProxies string

	// ログイン試行制限
	LoginMaxAttempts   int
	LoginWindowMinutes int
	LoginLockMinutes   int

	// 永続化
	DatabaseURL string // 空ならメモリストア
	RedisURL    string // 空ならメモリリミッター、ジョブ無効

	// メディア設定
	MediaDir           string
	MediaPublicBaseURL string
	MaxFileBytes       int64
	JobExpireMinutes   int
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv は検証を行わずに現在の環境変数から Config を組み立てます。
func FromEnv() *Config {
	return &Config{
		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		SessionSecret: os.Getenv("SESSION_SECRET"),

		Environment: ParseEnvironment(getEnv("APP_ENV", "")),

		SessionTTLSeconds:     getEnvAsInt("SESSION_TTL_SECONDS", 12*60*60),
		SessionRefreshSeconds: getEnvAsInt("SESSION_REFRESH_SECONDS", 60*60),

		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MetricsAddr: getEnv("METRICS_ADDR", ""),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		TrustedProxies:     getEnv("TRUSTED_PROXIES", ""),

		LoginMaxAttempts:   getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindowMinutes: getEnvAsInt("LOGIN_WINDOW_MINUTES", 15),
		LoginLockMinutes:   getEnvAsInt("LOGIN_LOCK_MINUTES", 10),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		MediaDir:           getEnv("MEDIA_DIR", "data/media"),
		MediaPublicBaseURL: getEnv("MEDIA_PUBLIC_BASE_URL", ""),
		MaxFileBytes:       getEnvAsInt64("MAX_FILE_BYTES", 500*1024*1024), // 500MB
		JobExpireMinutes:   getEnvAsInt("JOB_EXPIRE_MINUTES", 60),
	}
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
// 開発環境では認証情報の欠落を許容しますが、その場合でも認証が必要なエンドポイントは閉じたままになります。
func (c *Config) Validate() error {
	if c.SessionTTLSeconds <= 0 {
		return fmt.Errorf("%w: SESSION_TTL_SECONDS must be positive", ErrInvalidConfig)
	}
	if c.SessionRefreshSeconds < 0 || c.SessionRefreshSeconds >= c.SessionTTLSeconds {
		return fmt.Errorf("%w: SESSION_REFRESH_SECONDS must be in [0, SESSION_TTL_SECONDS)", ErrInvalidConfig)
	}

	if c.Environment == Production {
		if c.AdminUsername == "" {
			return fmt.Errorf("%w: ADMIN_USERNAME is required in production", ErrInvalidConfig)
		}
		if c.AdminPassword == "" {
			return fmt.Errorf("%w: ADMIN_PASSWORD is required in production", ErrInvalidConfig)
		}
		if len(c.SessionSecret) < minSessionSecretBytes {
			return fmt.Errorf("%w: SESSION_SECRET must be at least %d bytes in production", ErrInvalidConfig, minSessionSecretBytes)
		}
	}

	return nil
}

// SessionTTL はセッションの有効期間を返します。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// RefreshThreshold は透過的な再発行を行う残り時間の閾値を返します。
func (c *Config) RefreshThreshold() time.Duration {
	return time.Duration(c.SessionRefreshSeconds) * time.Second
}

// LoginWindow はログイン失敗を数える期間です。
func (c *Config) LoginWindow() time.Duration {
	return time.Duration(c.LoginWindowMinutes) * time.Minute
}

// LoginLock はロック期間です。
func (c *Config) LoginLock() time.Duration {
	return time.Duration(c.LoginLockMinutes) * time.Minute
}

// JobTTL はジョブ記録の保持期間です。
func (c *Config) JobTTL() time.Duration {
	if c.JobExpireMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.JobExpireMinutes) * time.Minute
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxyList は信頼するプロキシを配列で返します。未設定なら nil です。
func (c *Config) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
