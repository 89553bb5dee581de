package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/hitoshi/argonath/internal/metrics"
	"github.com/hitoshi/argonath/internal/model"
	"github.com/hitoshi/argonath/internal/telemetry"
)

const (
	defaultGitHubOAuthURL = "https://github.com"
	defaultGitHubAPIURL   = "https://api.github.com"
	defaultRequestTimeout = 10 * time.Second

	// userAgent はGitHub APIへのリクエストに付与するUser-Agent。
	// GitHub APIはUser-Agentのないリクエストを拒否する。
	userAgent = "Argonath-App"

	// maxIdentityResponseSize は/userレスポンスの読み込み上限（1MB）。
	maxIdentityResponseSize = 1 << 20
)

// TokenPair は認可コード交換で得たトークンの組。
// セッション作成時にSessionへコピーされる。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // 秒。プロバイダーが返さない場合は0
}

// Identity はアクセストークンで解決したGitHubユーザー。
type Identity struct {
	Login string
}

// OAuthClient はGitHub OAuthとのやり取りのインターフェース。
type OAuthClient interface {
	// LoginURL はGitHubの認可画面へのURLを返す。
	LoginURL(clientID string) string
	// ExchangeCode は認可コードをトークンに交換する。
	ExchangeCode(ctx context.Context, clientID, code, clientSecret string) (*TokenPair, error)
	// FetchIdentity はアクセストークンの持ち主を取得する。
	FetchIdentity(ctx context.Context, accessToken string) (*Identity, error)
}

// GitHubOAuthConfig はGitHub OAuthクライアントの設定。
type GitHubOAuthConfig struct {
	RedirectURL string

	// GitHub Enterprise向け、およびテスト用にオーバーライド可能なURL
	OAuthBaseURL string
	APIBaseURL   string

	// HTTPClient は外向き通信に使うクライアント。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
	// Timeout は1回の呼び出しにかける最大時間。
	Timeout time.Duration
	Metrics metrics.MetricsCollector
}

// GitHubOAuthClient はGitHub OAuth AppsのWebフローを実装する。
type GitHubOAuthClient struct {
	config     GitHubOAuthConfig
	httpClient *http.Client
}

// NewGitHubOAuthClient はGitHubOAuthClientを生成する。
func NewGitHubOAuthClient(config GitHubOAuthConfig) *GitHubOAuthClient {
	if config.OAuthBaseURL == "" {
		config.OAuthBaseURL = defaultGitHubOAuthURL
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultGitHubAPIURL
	}
	config.OAuthBaseURL = strings.TrimRight(config.OAuthBaseURL, "/")
	config.APIBaseURL = strings.TrimRight(config.APIBaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = defaultRequestTimeout
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Nop{}
	}

	base := config.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}

	return &GitHubOAuthClient{
		config:     config,
		httpClient: WithGitHubHeaders(base),
	}
}

// LoginURL はGitHubの認可画面へのURLを生成する。
func (c *GitHubOAuthClient) LoginURL(clientID string) string {
	params := url.Values{"client_id": {clientID}}
	if c.config.RedirectURL != "" {
		params.Set("redirect_uri", c.config.RedirectURL)
	}
	return c.config.OAuthBaseURL + "/login/oauth/authorize?" + params.Encode()
}

// ExchangeCode は認可コードをトークンに交換する。
// client_id、code、client_secretをリクエストボディで送信する。リトライは行わない。
func (c *GitHubOAuthClient) ExchangeCode(ctx context.Context, clientID, code, clientSecret string) (*TokenPair, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "github.oauth.exchange_code")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  c.config.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.config.OAuthBaseURL + "/login/oauth/authorize",
			TokenURL:  c.config.OAuthBaseURL + "/login/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	tok, err := conf.Exchange(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), code)
	if err != nil {
		return nil, c.fail(span, "token", fmt.Errorf("%w: token exchange failed: %w", model.ErrOAuthFailure, err))
	}
	if tok.AccessToken == "" {
		return nil, c.fail(span, "token", fmt.Errorf("%w: empty access token in response", model.ErrOAuthFailure))
	}

	c.config.Metrics.RecordOAuthRequest("token", "success")

	return &TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok, time.Now()),
	}, nil
}

// githubUser はGitHub REST APIの/userレスポンスのうち利用するフィールド。
type githubUser struct {
	Login string `json:"login"`
}

// FetchIdentity はアクセストークンでGitHubのユーザー情報を取得する。
func (c *GitHubOAuthClient) FetchIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "github.oauth.fetch_identity")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, c.httpClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.APIBaseURL+"/user", nil)
	if err != nil {
		return nil, c.fail(span, "user", fmt.Errorf("%w: failed to create user request: %w", model.ErrOAuthFailure, err))
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, c.fail(span, "user", fmt.Errorf("%w: user request failed: %w", model.ErrOAuthFailure, err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdentityResponseSize))
	if err != nil {
		return nil, c.fail(span, "user", fmt.Errorf("%w: failed to read user response: %w", model.ErrOAuthFailure, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(span, "user", fmt.Errorf("%w: user fetch failed with status %d", model.ErrOAuthFailure, resp.StatusCode))
	}

	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, c.fail(span, "user", fmt.Errorf("%w: failed to parse user response: %w", model.ErrOAuthFailure, err))
	}
	if user.Login == "" {
		return nil, c.fail(span, "user", fmt.Errorf("%w: empty login in user response", model.ErrOAuthFailure))
	}

	c.config.Metrics.RecordOAuthRequest("user", "success")

	return &Identity{Login: user.Login}, nil
}

// fail は失敗をメトリクスとスパンに記録してerrをそのまま返す。
func (c *GitHubOAuthClient) fail(span trace.Span, step string, err error) error {
	c.config.Metrics.RecordOAuthRequest(step, "failure")
	span.RecordError(err)
	span.SetStatus(codes.Error, step+" request failed")
	return err
}

// expiresIn はトークンレスポンスのexpires_inを秒で返す。
// GitHubはトークン失効が無効なアプリではexpires_inを返さないため、その場合は0。
func expiresIn(tok *oauth2.Token, now time.Time) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	if !tok.Expiry.IsZero() {
		return int64(tok.Expiry.Sub(now) / time.Second)
	}
	return 0
}

// WithGitHubHeaders はGitHub APIが要求するヘッダーを付与するクライアントを返す。
// タイムアウトとリダイレクト設定は元のクライアントを引き継ぐ。
func WithGitHubHeaders(base *http.Client) *http.Client {
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Transport:     &headerTransport{base: transport},
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}
}

type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return t.base.RoundTrip(req)
}

// compile-time interface check
var _ OAuthClient = (*GitHubOAuthClient)(nil)
