// Package auth は管理者ログインのセッション認証を提供します。
//
// セッションはサーバー側に保存しない署名付きトークンで表現し、HttpOnly クッキーに格納します。
// 同じ SESSION_SECRET を持つインスタンスであれば、どのインスタンスが発行したトークンでも検証できます。
package auth

import (
	"log/slog"
	"strings"
	"time"

	"github.com/yourusername/photolog/internal/config"
)

const (
	// LoginPath は未ログインのブラウザを誘導するログイン画面のパスです。
	LoginPath = "/login"
	// DefaultLandingPath はログイン後の既定の遷移先です。
	DefaultLandingPath = "/admin"
)

// Recorder は認証まわりのイベントを計測します。
type Recorder interface {
	LoginAttempt(result string)
	SessionRefreshed()
	GateRejected(client string)
}

type nopRecorder struct{}

func (nopRecorder) LoginAttempt(string) {}
func (nopRecorder) SessionRefreshed()   {}
func (nopRecorder) GateRejected(string) {}

// Manager は認証処理に必要な部品をまとめた構造体です。
// 生成後は読み取り専用で、リクエスト間で状態を持ちません（Limiter を除く）。
type Manager struct {
	user             string
	verifier         *Verifier
	codec            *Codec
	cookies          CookieBuilder
	policy           *Policy
	limiter          Limiter
	recorder         Recorder
	logger           *slog.Logger
	ttl              time.Duration
	refreshThreshold time.Duration
}

// Option は Manager の依存を差し替えます。
type Option func(*Manager)

// WithLimiter はログイン試行制限の実装を指定します。
func WithLimiter(l Limiter) Option {
	return func(m *Manager) {
		if l != nil {
			m.limiter = l
		}
	}
}

// WithRecorder はメトリクスの記録先を指定します。
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithLogger はロガーを指定します。
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPolicy はルートの保護ポリシーを指定します。
func WithPolicy(p *Policy) Option {
	return func(m *Manager) {
		if p != nil {
			m.policy = p
		}
	}
}

// WithCodec はトークンコーデックを差し替えます。テストで時計を固定する場合に使います。
func WithCodec(c *Codec) Option {
	return func(m *Manager) {
		if c != nil {
			m.codec = c
		}
	}
}

// NewManager は設定から認証マネージャーを作成します。
func NewManager(cfg *config.Config, opts ...Option) *Manager {
	creds := Credentials{Username: cfg.AdminUsername, Password: cfg.AdminPassword}

	ttl := cfg.SessionTTL()
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	threshold := cfg.RefreshThreshold()
	if threshold < 0 || threshold >= ttl {
		threshold = DefaultRefreshThreshold
	}

	m := &Manager{
		user:             strings.TrimSpace(cfg.AdminUsername),
		verifier:         NewVerifier(creds),
		codec:            NewCodec([]byte(cfg.SessionSecret)),
		cookies:          NewCookieBuilder(cfg.Environment),
		policy:           DefaultPolicy(),
		recorder:         nopRecorder{},
		logger:           slog.Default(),
		ttl:              ttl,
		refreshThreshold: threshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.limiter == nil {
		m.limiter = NewMemoryLimiter(LimiterConfigFrom(cfg))
	}
	return m
}

// Codec はトークンコーデックを返します。
func (m *Manager) Codec() *Codec {
	return m.codec
}

// ensureConfigured は認証情報と署名鍵が揃っているかを確認します。
// 揃っていない場合、ログインは常に失敗させます（fail closed）。
func (m *Manager) ensureConfigured() error {
	if !m.verifier.Configured() {
		return ErrCredentialsNotConfigured
	}
	if !m.codec.Ready() {
		return ErrSecretNotConfigured
	}
	return nil
}
