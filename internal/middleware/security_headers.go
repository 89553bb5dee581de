package middleware

import "net/http"

// loginPageCSP はログインページ（外部リンクのみの静的HTML）とJSON応答の両方で成立する最小のポリシー。
const loginPageCSP = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"

// NewSecurityHeadersMiddleware はセキュリティ関連のレスポンスヘッダーを付与するミドルウェアを返す。
// httpsで公開している場合はstrictTransportをtrueにしてHSTSを付ける。
func NewSecurityHeadersMiddleware(strictTransport bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", loginPageCSP)
			// セッションごとのデータを共有キャッシュに載せない
			h.Set("Cache-Control", "no-store")
			if strictTransport {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
