package middleware

import "net/http"

// cspDirectives はimg-src以外のContent-Security-Policy。
const cspDirectives = "default-src 'self'; style-src 'self' 'unsafe-inline'; " +
	"script-src 'none'; form-action 'self'; frame-ancestors 'none'; base-uri 'none'"

// contentSecurityPolicy は画面が必要とするリソースのみ許可するポリシーを返す。
// 画像プロキシ有効時は同一オリジンの画像のみ、無効時は外部のhttps画像も許可する。
func contentSecurityPolicy(selfHostedImages bool) string {
	img := "img-src 'self' https: data:"
	if selfHostedImages {
		img = "img-src 'self'"
	}
	return img + "; " + cspDirectives
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// selfHostedImagesは商品画像を /images から配信する場合にtrueを指定する。
func NewSecurityHeadersMiddleware(selfHostedImages bool) func(next http.Handler) http.Handler {
	csp := contentSecurityPolicy(selfHostedImages)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Content-Security-Policy", csp)
			next.ServeHTTP(w, r)
		})
	}
}
