package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextUserKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
	ContextUserKey = "auth.user"
	// ContextSessionKey は検証済みの Payload を保持するキーです。
	ContextSessionKey = "auth.session"
)

// AuthorFromUser はセッションのユーザーから表示用の識別子を作ります。
// メールアドレス形式の場合は @ 以降を取り除きます。
func AuthorFromUser(user string) string {
	trimmed := strings.TrimSpace(user)
	if at := strings.IndexByte(trimmed, '@'); at >= 0 {
		return trimmed[:at]
	}
	return trimmed
}

// UserFromContext は Gate が設定した識別子を返します。
func UserFromContext(c *gin.Context) (string, bool) {
	user := c.GetString(ContextUserKey)
	return user, user != ""
}

// SessionFromContext は Gate が検証したセッションを返します。
func SessionFromContext(c *gin.Context) (Payload, bool) {
	v, ok := c.Get(ContextSessionKey)
	if !ok {
		return Payload{}, false
	}
	p, ok := v.(Payload)
	return p, ok
}
