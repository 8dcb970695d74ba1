package auth

import (
	"net/http"
	"path"
	"strings"
)

// Access はルートに対するアクセス区分です。ゼロ値は Protected です。
type Access int

const (
	Protected Access = iota
	Public
)

// Rule はパスのプレフィックス（セグメント境界で一致）とメソッドでアクセス区分を決めます。
// Methods が空の場合はすべてのメソッドに一致します。
type Rule struct {
	Prefix  string
	Methods []string
	Access  Access
}

func (r Rule) matches(p, method string) bool {
	if len(r.Methods) > 0 {
		found := false
		for _, m := range r.Methods {
			if m == method {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.Prefix == "/" {
		return true
	}
	prefix := strings.TrimSuffix(r.Prefix, "/")
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// Policy は上から順に評価されるルール表です。
// どのルールにも一致しないパスは認証必須として扱います（既定拒否）。
type Policy struct {
	rules []Rule
}

// NewPolicy はルール表から Policy を作成します。
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: append([]Rule(nil), rules...)}
}

// DefaultPolicy はこのサーバーのルート構成に対応する Policy を返します。
func DefaultPolicy() *Policy {
	readOnly := []string{http.MethodGet, http.MethodHead}
	return NewPolicy(
		Rule{Prefix: "/", Methods: []string{http.MethodOptions}, Access: Public},
		Rule{Prefix: "/health", Methods: readOnly, Access: Public},
		Rule{Prefix: LoginPath, Methods: readOnly, Access: Public},
		Rule{Prefix: "/api/auth", Access: Public},
		Rule{Prefix: "/api/posts", Methods: readOnly, Access: Public},
		Rule{Prefix: "/api/posts", Access: Protected},
		Rule{Prefix: "/api/media", Access: Protected},
		Rule{Prefix: "/api/jobs", Access: Protected},
		// 収集は METRICS_ADDR の内部リスナーから行う
		Rule{Prefix: "/metrics", Access: Protected},
		Rule{Prefix: "/media", Methods: readOnly, Access: Public},
		Rule{Prefix: "/admin", Access: Protected},
	)
}

// NeedsAuth は path と method の組み合わせに認証が必要かを返します。
func (p *Policy) NeedsAuth(rawPath, method string) bool {
	cleaned := cleanPath(rawPath)
	for _, r := range p.rules {
		if r.matches(cleaned, method) {
			return r.Access == Protected
		}
	}
	return true
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
