package auth

import "errors"

var (
	// ErrCredentialsNotConfigured は管理者の認証情報が設定されていないことを表します。
	ErrCredentialsNotConfigured = errors.New("auth: admin credentials are not configured")
	// ErrSecretNotConfigured はセッション署名鍵が設定されていないことを表します。
	ErrSecretNotConfigured = errors.New("auth: session secret is not configured")
	// ErrInvalidTTL はセッションの有効期間が正でないことを表します。
	ErrInvalidTTL = errors.New("auth: session ttl must be positive")
	// ErrInvalidUser はトークンに埋め込むユーザーが空であることを表します。
	ErrInvalidUser = errors.New("auth: session user is empty")
)
