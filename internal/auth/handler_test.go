package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestLoginFormSuccess(t *testing.T) {
	clock := newTestClock()
	rec := &fakeRecorder{}
	m := newTestManager(t, testConfig(), clock, WithRecorder(rec))
	router := newTestRouter(m)

	form := url.Values{"username": {" moose@EXAMPLE.com "}, "password": {"correct horse battery staple"}}
	res := serve(router, formRequest("/api/auth/login", form.Encode()))

	if res.Code != http.StatusSeeOther {
		t.Fatalf("unexpected status: %d body=%s", res.Code, res.Body.String())
	}
	if loc := res.Header().Get("Location"); loc != DefaultLandingPath {
		t.Fatalf("unexpected Location: %q", loc)
	}
	cookies := sessionCookies(res)
	if len(cookies) != 1 {
		t.Fatalf("expected one session cookie, got %#v", cookies)
	}
	c := parseSetCookie(t, cookies[0])
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" || c.MaxAge != 43200 {
		t.Fatalf("unexpected cookie attributes: %s", cookies[0])
	}
	payload, ok := m.Codec().Verify(c.Value)
	if !ok {
		t.Fatal("issued cookie does not verify")
	}
	// トークンには設定上のユーザー名が入る
	if payload.User != "Moose@example.com" {
		t.Fatalf("payload user = %q", payload.User)
	}
	if len(rec.logins) != 1 || rec.logins[0] != "success" {
		t.Fatalf("unexpected login metrics: %#v", rec.logins)
	}
}

func TestLoginRedirectTarget(t *testing.T) {
	m := newTestManager(t, testConfig(), newTestClock())
	router := newTestRouter(m)

	form := url.Values{
		"username": {"moose@example.com"},
		"password": {"correct horse battery staple"},
		"redirect": {"/admin/posts/new"},
	}
	res := serve(router, formRequest("/api/auth/login", form.Encode()))
	if loc := res.Header().Get("Location"); loc != "/admin/posts/new" {
		t.Fatalf("unexpected Location: %q", loc)
	}

	res = serve(router, formRequest("/api/auth/login?redirect=%2Fadmin%2Fmedia", url.Values{
		"username": {"moose@example.com"},
		"password": {"correct horse battery staple"},
	}.Encode()))
	if loc := res.Header().Get("Location"); loc != "/admin/media" {
		t.Fatalf("query redirect: unexpected Location %q", loc)
	}

	form.Set("redirect", "https://evil.example/")
	res = serve(router, formRequest("/api/auth/login", form.Encode()))
	if loc := res.Header().Get("Location"); loc != DefaultLandingPath {
		t.Fatalf("open redirect not blocked: %q", loc)
	}
}

func TestLoginFormFailures(t *testing.T) {
	m := newTestManager(t, testConfig(), newTestClock())
	router := newTestRouter(m)

	cases := []struct {
		name string
		body url.Values
		flag string
	}{
		{"missing password", url.Values{"username": {"moose@example.com"}}, "missing"},
		{"missing both", url.Values{}, "missing"},
		{"wrong password", url.Values{"username": {"moose@example.com"}, "password": {"nope"}}, "invalid"},
		{"unknown user", url.Values{"username": {"someone"}, "password": {"correct horse battery staple"}}, "invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := serve(router, formRequest("/api/auth/login", tc.body.Encode()))
			if res.Code != http.StatusSeeOther {
				t.Fatalf("unexpected status: %d", res.Code)
			}
			loc, _ := url.Parse(res.Header().Get("Location"))
			if loc.Path != LoginPath || loc.Query().Get("error") != tc.flag {
				t.Fatalf("unexpected Location: %s", res.Header().Get("Location"))
			}
			if loc.Query().Get("redirect") != DefaultLandingPath {
				t.Fatalf("redirect target lost: %s", res.Header().Get("Location"))
			}
			if len(sessionCookies(res)) != 0 {
				t.Fatal("failed login must not set a session cookie")
			}
		})
	}
}

func TestLoginJSON(t *testing.T) {
	m := newTestManager(t, testConfig(), newTestClock())
	router := newTestRouter(m)

	res := serve(router, jsonRequest("/api/auth/login", `{"username":"moose@example.com","password":"correct horse battery staple"}`))
	if res.Code != http.StatusSeeOther {
		t.Fatalf("unexpected status: %d", res.Code)
	}
	if len(sessionCookies(res)) != 1 {
		t.Fatal("expected session cookie")
	}

	res = serve(router, jsonRequest("/api/auth/login", `{"username":"moose@example.com"}`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("missing password: status %d", res.Code)
	}

	res = serve(router, jsonRequest("/api/auth/login", `{not json`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status %d", res.Code)
	}

	wrongUser := serve(router, jsonRequest("/api/auth/login", `{"username":"intruder","password":"correct horse battery staple"}`))
	wrongPass := serve(router, jsonRequest("/api/auth/login", `{"username":"moose@example.com","password":"wrong"}`))
	for _, r := range []*httptest.ResponseRecorder{wrongUser, wrongPass} {
		if r.Code != http.StatusUnauthorized {
			t.Fatalf("bad credentials: status %d", r.Code)
		}
	}
	var a, b map[string]any
	_ = json.Unmarshal(wrongUser.Body.Bytes(), &a)
	_ = json.Unmarshal(wrongPass.Body.Bytes(), &b)
	if a["code"] != "INVALID_CREDENTIALS" || a["code"] != b["code"] || a["message"] != b["message"] {
		t.Fatalf("unknown user and wrong password must be indistinguishable: %v vs %v", a, b)
	}
}

func TestLoginLockout(t *testing.T) {
	m := newTestManager(t, testConfig(), newTestClock())
	router := newTestRouter(m)

	bad := `{"username":"moose@example.com","password":"wrong"}`
	for i := 0; i < 3; i++ {
		res := serve(router, jsonRequest("/api/auth/login", bad))
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d", i, res.Code)
		}
	}

	// ロック中は正しい認証情報でも拒否
	res := serve(router, jsonRequest("/api/auth/login", `{"username":"moose@example.com","password":"correct horse battery staple"}`))
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("locked: status %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	form := url.Values{"username": {"moose@example.com"}, "password": {"correct horse battery staple"}}
	res = serve(router, formRequest("/api/auth/login", form.Encode()))
	loc, _ := url.Parse(res.Header().Get("Location"))
	if loc.Query().Get("error") != "locked" {
		t.Fatalf("unexpected Location while locked: %s", res.Header().Get("Location"))
	}
}

func TestLoginFailsClosedWhenNotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.AdminPassword = ""
	m := newTestManager(t, cfg, newTestClock())
	router := newTestRouter(m)

	res := serve(router, jsonRequest("/api/auth/login", `{"username":"moose@example.com","password":""}`))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", res.Code)
	}
	if len(sessionCookies(res)) != 0 {
		t.Fatal("misconfigured login must not set a cookie")
	}

	cfg = testConfig()
	cfg.SessionSecret = ""
	m = NewManager(cfg, WithLogger(discardLogger()))
	router = newTestRouter(m)
	form := url.Values{"username": {"moose@example.com"}, "password": {"correct horse battery staple"}}
	res = serve(router, formRequest("/api/auth/login", form.Encode()))
	loc, _ := url.Parse(res.Header().Get("Location"))
	if loc.Query().Get("error") != "config" {
		t.Fatalf("unexpected Location: %s", res.Header().Get("Location"))
	}
}

func TestLogout(t *testing.T) {
	clock := newTestClock()
	m := newTestManager(t, testConfig(), clock)
	router := newTestRouter(m)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		res := serve(router, httptest.NewRequest(method, "/api/auth/logout", nil))
		if res.Code != http.StatusSeeOther {
			t.Fatalf("%s: unexpected status %d", method, res.Code)
		}
		if loc := res.Header().Get("Location"); loc != LoginPath {
			t.Fatalf("%s: unexpected Location %q", method, loc)
		}
		cookies := sessionCookies(res)
		if len(cookies) != 1 || !strings.Contains(cookies[0], "Max-Age=0") {
			t.Fatalf("%s: expected clearing cookie, got %#v", method, cookies)
		}
	}

	res := serve(router, httptest.NewRequest(http.MethodGet, "/api/auth/logout?redirect=%2F", nil))
	if loc := res.Header().Get("Location"); loc != "/" {
		t.Fatalf("unexpected Location %q", loc)
	}
}

func TestLogoutOverridesRefresh(t *testing.T) {
	clock := newTestClock()
	m := newTestManager(t, testConfig(), clock)
	router := newTestRouter(m)

	token, _ := m.Codec().Issue("Moose@example.com", 12*time.Hour)
	clock.Advance(11*time.Hour + 50*time.Minute)

	res := serve(router, withSession(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), token))
	cookies := sessionCookies(res)
	if len(cookies) != 1 || parseSetCookie(t, cookies[0]).Value != "" {
		t.Fatalf("logout must leave only the clearing cookie, got %#v", cookies)
	}
}

func TestStatus(t *testing.T) {
	clock := newTestClock()
	m := newTestManager(t, testConfig(), clock)
	router := newTestRouter(m)

	res := serve(router, httptest.NewRequest(http.MethodGet, "/api/auth/status", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", res.Code)
	}
	if strings.TrimSpace(res.Body.String()) != `{"authenticated":false}` {
		t.Fatalf("unexpected body: %s", res.Body.String())
	}

	token, _ := m.Codec().Issue("Moose@example.com", time.Hour*12)
	res = serve(router, withSession(httptest.NewRequest(http.MethodGet, "/api/auth/status", nil), token))
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["authenticated"] != true || body["user"] != "Moose" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestStatusWithoutGate(t *testing.T) {
	m := newTestManager(t, testConfig(), newTestClock())
	token, _ := m.Codec().Issue("admin", time.Hour)

	gin.SetMode(gin.TestMode)
	bare := gin.New()
	bare.GET("/api/auth/status", m.Status)

	res := serve(bare, withSession(httptest.NewRequest(http.MethodGet, "/api/auth/status", nil), token))
	if !strings.Contains(res.Body.String(), `"user":"admin"`) {
		t.Fatalf("unexpected body: %s", res.Body.String())
	}
}

func TestAuthorFromUser(t *testing.T) {
	cases := map[string]string{
		"moose@example.com": "moose",
		"  moose  ":         "moose",
		"moose":             "moose",
		"@example.com":      "",
	}
	for in, want := range cases {
		if got := AuthorFromUser(in); got != want {
			t.Fatalf("AuthorFromUser(%q) = %q, want %q", in, got, want)
		}
	}
}
