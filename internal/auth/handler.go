package auth

import (
	"errors"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Redirect string `json:"redirect" form:"redirect"`
}

// loginFailure はログイン失敗時の応答内容です。API には JSON、フォームにはリダイレクトで返します。
type loginFailure struct {
	status  int
	code    string
	message string
	flag    string
}

var (
	failMisconfigured = loginFailure{http.StatusInternalServerError, "SERVER_MISCONFIGURATION", "認証の設定が完了していません", "config"}
	failMissing       = loginFailure{http.StatusBadRequest, "INVALID_INPUT", "username と password を指定してください", "missing"}
	failInvalid       = loginFailure{http.StatusUnauthorized, "INVALID_CREDENTIALS", "ユーザー名またはパスワードが正しくありません", "invalid"}
	failLocked        = loginFailure{http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "一定時間後に再度お試しください", "locked"}
	failUnavailable   = loginFailure{http.StatusInternalServerError, "INTERNAL_ERROR", "ログイン処理に失敗しました", "unavailable"}
)

// Login は POST /api/auth/login のハンドラーです。
// JSON ボディは API クライアント、フォーム送信はブラウザとして扱います。
func (m *Manager) Login(c *gin.Context) {
	apiClient := isJSONRequest(c.Request)

	var req loginRequest
	var bindErr error
	if apiClient {
		bindErr = c.ShouldBindJSON(&req)
	} else {
		bindErr = c.ShouldBind(&req)
	}
	if req.Redirect == "" {
		req.Redirect = c.Query("redirect")
	}
	target := safeRedirect(req.Redirect, DefaultLandingPath)

	fail := func(f loginFailure, extra gin.H) {
		m.recorder.LoginAttempt(f.flag)
		if !apiClient {
			c.Redirect(http.StatusSeeOther, loginURL(f.flag, target))
			return
		}
		body := gin.H{"code": f.code, "message": f.message}
		for k, v := range extra {
			body[k] = v
		}
		c.JSON(f.status, body)
	}

	if err := m.ensureConfigured(); err != nil {
		m.logger.Error("login rejected: auth is not configured", "error", err)
		fail(failMisconfigured, nil)
		return
	}
	if bindErr != nil || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		fail(failMissing, nil)
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()
	retryAfter, err := m.limiter.Check(ctx, ip)
	if err != nil {
		m.logger.Error("login limiter check failed", "error", err)
		fail(failUnavailable, nil)
		return
	}
	if retryAfter > 0 {
		// Retry-After は秒数で返す（切り上げ）
		c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(retryAfter.Seconds())), 10))
		fail(failLocked, nil)
		return
	}

	if !m.verifier.Authenticate(req.Username, req.Password) {
		remaining, err := m.limiter.RecordFailure(ctx, ip)
		if err != nil {
			m.logger.Error("login limiter record failed", "error", err)
			fail(failUnavailable, nil)
			return
		}
		m.logger.Warn("login failed", "ip", ip)
		fail(failInvalid, gin.H{"remainingAttempts": remaining})
		return
	}

	if err := m.limiter.Reset(ctx, ip); err != nil {
		m.logger.Warn("login limiter reset failed", "error", err)
	}

	token, err := m.codec.Issue(m.user, m.ttl)
	if err != nil {
		m.logger.Error("session issue failed", "error", err)
		if errors.Is(err, ErrSecretNotConfigured) {
			fail(failMisconfigured, nil)
		} else {
			fail(failUnavailable, nil)
		}
		return
	}

	m.recorder.LoginAttempt("success")
	m.logger.Info("login succeeded", "user", AuthorFromUser(m.user), "ip", ip)
	setSessionCookie(c.Writer.Header(), m.cookies.SessionCookie(token, m.ttl))
	c.Redirect(http.StatusSeeOther, target)
}

// Logout は GET/POST /api/auth/logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	redirect := c.Query("redirect")
	if redirect == "" {
		redirect = c.PostForm("redirect")
	}
	setSessionCookie(c.Writer.Header(), m.cookies.ClearCookie())
	c.Redirect(http.StatusSeeOther, safeRedirect(redirect, LoginPath))
}

// Status は GET /api/auth/status のハンドラーです。
func (m *Manager) Status(c *gin.Context) {
	user, ok := m.resolveUser(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": user})
}

// AdminHome は GET /admin のハンドラーです。ログイン後の着地点として現在のセッション情報を返します。
func (m *Manager) AdminHome(c *gin.Context) {
	session, ok := SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "ログインが必要です",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":      AuthorFromUser(session.User),
		"issuedAt":  session.IssuedAt,
		"expiresAt": session.ExpiresAt,
	})
}

// resolveUser は Gate の結果を優先し、Gate を通っていない場合はクッキーを直接検証します。
func (m *Manager) resolveUser(c *gin.Context) (string, bool) {
	if user, ok := UserFromContext(c); ok {
		return user, true
	}
	session, ok := m.sessionFromRequest(c.Request)
	if !ok {
		return "", false
	}
	return AuthorFromUser(session.User), true
}

func isJSONRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
