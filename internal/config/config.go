// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 各コンポーネントには必要な値だけを明示的に渡す。
type Config struct {
	// Database
	DatabaseURL      string `env:"DATABASE_URL,required,notEmpty"`
	DatabaseMaxConns int    `env:"DATABASE_MAX_CONNS" envDefault:"5"`

	// GitHub OAuth
	GitHubClientID     string `env:"GITHUB_CLIENT_ID,required,notEmpty"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET,required,notEmpty"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL"`

	// GitHub API（GitHub Enterprise向けに差し替え可能）
	GitHubOAuthURL       string        `env:"GITHUB_OAUTH_URL" envDefault:"https://github.com"`
	GitHubAPIURL         string        `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
	GitHubRequestTimeout time.Duration `env:"GITHUB_REQUEST_TIMEOUT" envDefault:"10s"`

	// Project items
	TaskTypeField string `env:"TASK_TYPE_FIELD" envDefault:"Task Type"`

	// Session
	SessionEnforceExpiry bool `env:"SESSION_ENFORCE_EXPIRY" envDefault:"false"`

	// Rate Limit（req/min/user）
	RateLimitGeneral      int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitProjectFetch int `env:"RATE_LIMIT_PROJECT_FETCH" envDefault:"20"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"3000"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:3000"`

	// Cookie
	CookieSecure bool `env:"-"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Tracing
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定または空の場合、値の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.DatabaseMaxConns <= 0 {
		return nil, fmt.Errorf("DATABASE_MAX_CONNS must be positive: %d", cfg.DatabaseMaxConns)
	}
	if cfg.RateLimitGeneral <= 0 || cfg.RateLimitProjectFetch <= 0 {
		return nil, fmt.Errorf("rate limits must be positive: general=%d project_fetch=%d",
			cfg.RateLimitGeneral, cfg.RateLimitProjectFetch)
	}
	if cfg.GitHubRequestTimeout <= 0 {
		return nil, fmt.Errorf("GITHUB_REQUEST_TIMEOUT must be positive: %s", cfg.GitHubRequestTimeout)
	}

	cfg.GitHubOAuthURL = strings.TrimRight(cfg.GitHubOAuthURL, "/")
	cfg.GitHubAPIURL = strings.TrimRight(cfg.GitHubAPIURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}
