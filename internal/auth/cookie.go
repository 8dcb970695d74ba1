package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/yourusername/photolog/internal/config"
)

// SessionCookieName はセッションクッキーの名前です。
const SessionCookieName = "pl_session"

// CookieBuilder はセッションクッキーの Set-Cookie 値を組み立てます。
type CookieBuilder struct {
	secure bool
}

// NewCookieBuilder は実行環境に応じた CookieBuilder を返します。
// Development 以外では常に Secure 属性を付けます。
func NewCookieBuilder(env config.Environment) CookieBuilder {
	return CookieBuilder{secure: env != config.Development}
}

// SessionCookie はセッション発行・更新用の Set-Cookie 値を返します。
func (b CookieBuilder) SessionCookie(token string, ttl time.Duration) string {
	maxAge := int(ttl / time.Second)
	if maxAge <= 0 {
		maxAge = int(DefaultSessionTTL / time.Second)
	}
	return b.cookie(token, maxAge).String()
}

// ClearCookie はクライアント側のセッションを即時削除させる Set-Cookie 値を返します。
func (b CookieBuilder) ClearCookie() string {
	// net/http では MaxAge<0 が "Max-Age=0" として出力される
	return b.cookie("", -1).String()
}

func (b CookieBuilder) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// setSessionCookie は既に積まれているセッションクッキーを置き換えて Set-Cookie を追加します。
// 同じリクエスト内で再発行とログアウトが重なっても、最後の指定だけが残ります。
func setSessionCookie(h http.Header, value string) {
	prefix := SessionCookieName + "="
	existing := h.Values("Set-Cookie")
	h.Del("Set-Cookie")
	for _, v := range existing {
		if !strings.HasPrefix(v, prefix) {
			h.Add("Set-Cookie", v)
		}
	}
	h.Add("Set-Cookie", value)
}
