package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/photolog/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// testClock は秒単位で進められる固定時計です。
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRecorder struct {
	mu        sync.Mutex
	logins    []string
	refreshes int
	rejected  []string
}

func (r *fakeRecorder) LoginAttempt(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, result)
}

func (r *fakeRecorder) SessionRefreshed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
}

func (r *fakeRecorder) GateRejected(client string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, client)
}

func testConfig() *config.Config {
	return &config.Config{
		AdminUsername:         "Moose@example.com",
		AdminPassword:         "correct horse battery staple",
		SessionSecret:         testSecret,
		Environment:           config.Production,
		SessionTTLSeconds:     43200,
		SessionRefreshSeconds: 3600,
		LoginMaxAttempts:      3,
		LoginWindowMinutes:    15,
		LoginLockMinutes:      10,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, cfg *config.Config, clock *testClock, opts ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithLogger(discardLogger()),
		WithCodec(NewCodec([]byte(cfg.SessionSecret), WithClock(clock.Now))),
	}
	return NewManager(cfg, append(base, opts...)...)
}

// newTestRouter はサーバー本体と同じ順序で Gate と認証ルートを組み立てます。
func newTestRouter(m *Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(m.Gate())

	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/admin", m.AdminHome)
	router.POST("/api/auth/login", m.Login)
	router.GET("/api/auth/logout", m.Logout)
	router.POST("/api/auth/logout", m.Logout)
	router.GET("/api/auth/status", m.Status)
	router.GET("/api/posts", func(c *gin.Context) {
		user, _ := UserFromContext(c)
		c.JSON(http.StatusOK, gin.H{"viewer": user})
	})
	router.POST("/api/posts", func(c *gin.Context) {
		user, _ := UserFromContext(c)
		c.JSON(http.StatusCreated, gin.H{"author": user})
	})
	return router
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func formRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// sessionCookies は応答に含まれるセッションクッキーの Set-Cookie 値を返します。
func sessionCookies(rec *httptest.ResponseRecorder) []string {
	var out []string
	for _, v := range rec.Header().Values("Set-Cookie") {
		if strings.HasPrefix(v, SessionCookieName+"=") {
			out = append(out, v)
		}
	}
	return out
}

func tokenFromSetCookie(t *testing.T, setCookie string) string {
	t.Helper()
	header := http.Header{}
	header.Add("Set-Cookie", setCookie)
	resp := http.Response{Header: header}
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			return c.Value
		}
	}
	t.Fatalf("session cookie not found in %q", setCookie)
	return ""
}

func withSession(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	return req
}
