// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/argonath/internal/middleware"
	"github.com/hitoshi/argonath/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginURL() string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool // BASE_URLがhttpsの場合にtrue
}

// AuthHandler はログインページとOAuthコールバックのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Sign in</title>
</head>
<body>
<main>
<h1>Sign in</h1>
<p><a href="{{.LoginURL}}">Sign in with GitHub</a></p>
</main>
</body>
</html>
`))

// Login はGitHubの認可画面へのリンクを含むログインページを返す。
// GET /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginPage.Execute(w, struct{ LoginURL string }{h.service.LoginURL()}); err != nil {
		slog.Error("failed to render login page", slog.String("error", err.Error()))
	}
}

// Callback はOAuthコールバックを処理し、セッションCookieを発行する。
// GET /callback?code=xxx
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. 認可コードの取得（ユーザーが認可を拒否した場合も含む）
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, middleware.LoginPath, http.StatusTemporaryRedirect)
		return
	}

	// 2. ログイン完了フロー
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		middleware.WriteFailure(r.Context(), w, "oauth callback failed", err)
		return
	}

	// 3. セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 4. トップページにリダイレクト
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}
