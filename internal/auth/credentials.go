package auth

import (
	"crypto/subtle"
	"strings"
)

// Credentials は設定から読み込んだ単一の管理者認証情報です。
type Credentials struct {
	Username string
	Password string
}

// Validate は認証情報が揃っているかを確認します。起動時のチェック用です。
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return ErrCredentialsNotConfigured
	}
	return nil
}

// Verifier は入力されたユーザー名・パスワードを設定値と定数時間で比較します。
type Verifier struct {
	username   []byte
	password   []byte
	configured bool
}

// NewVerifier は Verifier を作成します。
func NewVerifier(creds Credentials) *Verifier {
	return &Verifier{
		username:   []byte(normalizeUsername(creds.Username)),
		password:   []byte(creds.Password),
		configured: creds.Validate() == nil,
	}
}

// Configured は認証情報が設定済みかを返します。
func (v *Verifier) Configured() bool {
	return v != nil && v.configured
}

// Authenticate はユーザー名とパスワードが両方一致する場合のみ true を返します。
// ユーザー名は前後の空白を除去して小文字化、パスワードはそのまま比較します。
// 長さが異なっても両方の比較を最後まで実行し、どちらが違ったかを外から区別できないようにします。
func (v *Verifier) Authenticate(username, password string) bool {
	if !v.Configured() {
		return false
	}
	userOK := constantTimeEqual([]byte(normalizeUsername(username)), v.username)
	passOK := constantTimeEqual([]byte(password), v.password)
	return userOK && passOK
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// constantTimeEqual は長さの異なる入力を同じ長さにゼロ埋めしてから比較し、
// 長さの一致も定数時間で結果に含めます。
func constantTimeEqual(a, b []byte) bool {
	n := max(len(a), len(b))
	padA := make([]byte, n)
	padB := make([]byte, n)
	copy(padA, a)
	copy(padB, b)

	same := subtle.ConstantTimeCompare(padA, padB)
	sameLen := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	return same&sameLen == 1
}
