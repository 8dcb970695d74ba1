package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// Gate はすべてのリクエストでセッションクッキーを検証するミドルウェアを返します。
//
//   - 有効なセッションがあれば識別子をコンテキストに設定する（公開ルートでも同様）
//   - 残り時間が閾値を下回っていればトークンを再発行してクッキーを差し替える
//   - ポリシー上認証が必要で未ログインなら、ブラウザはログイン画面へ 303、API は 401
func (m *Manager) Gate() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := m.sessionFromRequest(c.Request)
		if ok {
			c.Set(ContextSessionKey, session)
			c.Set(ContextUserKey, AuthorFromUser(session.User))
			m.refreshIfNeeded(c, session)
		}

		if !ok && m.policy.NeedsAuth(c.Request.URL.Path, c.Request.Method) {
			m.reject(c)
			return
		}

		c.Next()
	}
}

func (m *Manager) sessionFromRequest(r *http.Request) (Payload, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return Payload{}, false
	}
	return m.codec.Verify(cookie.Value)
}

func (m *Manager) refreshIfNeeded(c *gin.Context, session Payload) {
	if session.Remaining(m.codec.Now()) >= m.refreshThreshold {
		return
	}
	token, err := m.codec.Issue(session.User, m.ttl)
	if err != nil {
		// 再発行できなくても現在のセッションは有効なのでリクエストは通す
		m.logger.Warn("session refresh failed", "error", err)
		return
	}
	setSessionCookie(c.Writer.Header(), m.cookies.SessionCookie(token, m.ttl))
	m.recorder.SessionRefreshed()
}

func (m *Manager) reject(c *gin.Context) {
	if isInteractive(c.Request) {
		m.recorder.GateRejected("browser")
		c.Redirect(http.StatusSeeOther, loginURL("", originalTarget(c.Request)))
		c.Abort()
		return
	}
	m.recorder.GateRejected("api")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHORIZED",
		"message": "ログインが必要です",
	})
}

// isInteractive は /api/ 以外へのアクセス、または HTML を受け付けるクライアントをブラウザとみなします。
func isInteractive(r *http.Request) bool {
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func originalTarget(r *http.Request) string {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}

// loginURL はログイン画面の URL をエラーフラグと戻り先付きで組み立てます。
func loginURL(errFlag, redirect string) string {
	q := url.Values{}
	if errFlag != "" {
		q.Set("error", errFlag)
	}
	if redirect != "" {
		q.Set("redirect", redirect)
	}
	if len(q) == 0 {
		return LoginPath
	}
	return LoginPath + "?" + q.Encode()
}

// safeRedirect は同一オリジン内の絶対パスだけを遷移先として許可します。
func safeRedirect(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return fallback
	}
	// "//host" や "/\host" はブラウザによって別オリジンと解釈される
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return raw
}
