package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

var requestLogContextKey = contextKey("request_log")

// requestLogFields はリクエストログに後から追加する属性を保持する。
// セッションミドルウェアはロギングミドルウェアより内側で動くため、
// コンテキスト経由でユーザーIDを書き戻す。
type requestLogFields struct {
	userID int64
	hasUID bool
}

// annotateUserID はロギングミドルウェア配下であればユーザーIDを記録する。
func annotateUserID(ctx context.Context, userID int64) {
	if f, ok := ctx.Value(requestLogContextKey).(*requestLogFields); ok {
		f.userID = userID
		f.hasUID = true
	}
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// NewLoggingMiddleware はリクエストごとに1行のJSON構造化ログ（msg=http_request）を出力するミドルウェアを返す。
// 属性はmethod、path、route、status、duration_ms、認証済みならuser_id。
// routeはchiのルートパターンで、org名やプロジェクト番号を含まない集計用の値。
// レベルは5xxでERROR、4xxでWARN、それ以外はINFO。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			fields := &requestLogFields{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogContextKey, fields)))

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			}
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				args = append(args, slog.String("route", rc.RoutePattern()))
			}
			args = append(args,
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			)
			if fields.hasUID {
				args = append(args, slog.Int64("user_id", fields.userID))
			}

			logger.Log(r.Context(), levelForStatus(rec.statusCode), "http_request", args...)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
