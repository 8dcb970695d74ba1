package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultSessionTTL はセッションの既定の有効期間です。
	DefaultSessionTTL = 12 * time.Hour
	// DefaultRefreshThreshold は残り時間がこれを下回ったときに再発行する閾値です。
	DefaultRefreshThreshold = time.Hour

	// クッキーに収まらない長さのトークンは検証前に捨てる
	maxTokenLength = 4096
)

// トークンは URL セーフなパディングなし base64。Strict で末尾の未使用ビットも検証する。
var tokenEncoding = base64.RawURLEncoding.Strict()

// Payload はセッショントークンに埋め込まれる内容です。サーバー側には保存しません。
type Payload struct {
	User      string `json:"user"`
	IssuedAt  int64  `json:"issuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
	Nonce     string `json:"nonce"`
}

// Remaining は now から見た残りの有効期間を返します。
func (p Payload) Remaining(now time.Time) time.Duration {
	return time.Unix(p.ExpiresAt, 0).Sub(now)
}

// wirePayload は検証時にフィールドの欠落を判別するための型です。
type wirePayload struct {
	User      *string `json:"user"`
	IssuedAt  int64   `json:"issuedAt"`
	ExpiresAt *int64  `json:"expiresAt"`
	Nonce     string  `json:"nonce"`
}

// Codec はセッショントークンの発行と検証を行います。
// 状態を持たないため、複数のゴルーチンから同時に利用できます。
type Codec struct {
	secret []byte
	now    func() time.Time
}

// CodecOption は Codec の設定を変更します。
type CodecOption func(*Codec)

// WithClock は現在時刻の取得方法を差し替えます（テスト用）。
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec は Codec を作成します。secret が空の場合、Issue は常に失敗し Verify は常に無効を返します。
func NewCodec(secret []byte, opts ...CodecOption) *Codec {
	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready は署名鍵が設定されているかを返します。
func (c *Codec) Ready() bool {
	return c != nil && len(c.secret) > 0
}

// Now は Codec が使う現在時刻を返します。
func (c *Codec) Now() time.Time {
	return c.now()
}

// Issue は user 向けに ttl だけ有効なトークンを発行します。
func (c *Codec) Issue(user string, ttl time.Duration) (string, error) {
	if !c.Ready() {
		return "", ErrSecretNotConfigured
	}
	if strings.TrimSpace(user) == "" {
		return "", ErrInvalidUser
	}
	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds <= 0 {
		return "", ErrInvalidTTL
	}

	nonce, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	issuedAt := c.now().Unix()
	body, err := json.Marshal(Payload{
		User:      user,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt + ttlSeconds,
		Nonce:     nonce.String(),
	})
	if err != nil {
		return "", fmt.Errorf("encode session payload: %w", err)
	}

	encoded := tokenEncoding.EncodeToString(body)
	return encoded + "." + tokenEncoding.EncodeToString(c.sign(encoded)), nil
}

// Verify はトークンを検証し、有効であればペイロードを返します。
// 形式不正・署名不一致・JSON 不正・期限切れはすべて同じ (Payload{}, false) になります。
func (c *Codec) Verify(token string) (Payload, bool) {
	if !c.Ready() || token == "" || len(token) > maxTokenLength {
		return Payload{}, false
	}

	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(signature, ".") {
		return Payload{}, false
	}

	provided, err := tokenEncoding.DecodeString(signature)
	if err != nil {
		provided = nil
	}
	if !constantTimeEqual(c.sign(encoded), provided) {
		return Payload{}, false
	}

	raw, err := tokenEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, false
	}
	var wire wirePayload
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Payload{}, false
	}
	if wire.User == nil || *wire.User == "" || wire.ExpiresAt == nil {
		return Payload{}, false
	}
	if *wire.ExpiresAt <= wire.IssuedAt || *wire.ExpiresAt <= c.now().Unix() {
		return Payload{}, false
	}

	return Payload{
		User:      *wire.User,
		IssuedAt:  wire.IssuedAt,
		ExpiresAt: *wire.ExpiresAt,
		Nonce:     wire.Nonce,
	}, true
}

func (c *Codec) sign(message string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}
