package config

import "strings"

// Environment はクッキーの Secure 属性などを切り替える実行環境です。
type Environment int

const (
	// Production は既定値。Secure クッキーを必須とします。
	Production Environment = iota
	// Development はローカル開発用。HTTP でもクッキーを送れるよう Secure を外します。
	Development
)

// ParseEnvironment は APP_ENV の値を解釈します。
// 不明な値は安全側に倒して Production とみなします。
func ParseEnvironment(raw string) Environment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "development", "dev", "local":
		return Development
	default:
		return Production
	}
}

func (e Environment) String() string {
	if e == Development {
		return "development"
	}
	return "production"
}
