// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/argonath/internal/metrics"
	"github.com/hitoshi/argonath/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session"

// LoginPath は未認証リクエストのリダイレクト先。
const LoginPath = "/login"

// セッション拒否の理由。メトリクスのラベルとして使用する。
const (
	rejectMissingCookie = "missing_cookie"
	rejectMalformed     = "malformed"
	rejectStoreError    = "store_error"
	rejectNotFound      = "not_found"
	rejectExpired       = "expired"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var sessionContextKey = contextKey("session")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// SessionGuardConfig はセッションミドルウェアの設定を保持する。
type SessionGuardConfig struct {
	// EnforceExpiry がtrueの場合、ExpiresAtを過ぎたセッションを拒否する。
	EnforceExpiry bool
	Metrics       metrics.MetricsCollector
	// Now は現在時刻を返す。nilの場合はtime.Nowを使用する。
	Now func() time.Time
}

// NewSessionMiddleware は "session" Cookieからセッションを解決し、
// 有効なセッションをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証の場合は理由によらず同一の307リダイレクト（/login）を返す。
// 理由はメトリクスとログにのみ記録する。
func NewSessionMiddleware(finder SessionFinder, cfg SessionGuardConfig) func(next http.Handler) http.Handler {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	reject := func(w http.ResponseWriter, r *http.Request, reason string) {
		m.RecordSessionRejection(reason)
		http.Redirect(w, r, LoginPath, http.StatusTemporaryRedirect)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				reject(w, r, rejectMissingCookie)
				return
			}

			// 2. UUID形式でない値はストアに問い合わせない
			if _, err := uuid.Parse(cookie.Value); err != nil {
				reject(w, r, rejectMalformed)
				return
			}

			// 3. セッションの存在を確認
			session, err := finder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				reject(w, r, rejectStoreError)
				return
			}
			if session == nil {
				reject(w, r, rejectNotFound)
				return
			}

			if cfg.EnforceExpiry && session.IsExpired(now()) {
				reject(w, r, rejectExpired)
				return
			}

			// 4. 認証済みセッションをコンテキストに注入
			annotateUserID(r.Context(), session.UserID)
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*model.Session, error) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok || session == nil {
		return nil, fmt.Errorf("session not found in context")
	}
	return session, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (int64, error) {
	session, err := SessionFromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return session.UserID, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
