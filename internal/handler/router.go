package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/storefront/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder middleware.SessionFinder
	Cookie        middleware.CookieConfig
	RateLimiter   *middleware.RateLimiter

	// 画面
	Renderer         *Renderer
	AuthService      AuthServiceInterface
	AuthConfig       AuthHandlerConfig
	CartService      CartServiceInterface
	Flash            FlashStore
	CartRequireLogin bool // trueの場合、ゲストのストア画面アクセスをログイン画面へリダイレクトする

	// 補助エンドポイント（nilの場合はルートを登録しない）
	ImageSource    ImageSource
	ImageVerifier  ImageURLVerifier
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Logging → Recovery → SecurityHeaders
//	  → Session → RateLimit(General) → CSRF → 画面ルート
//
// /health と /metrics はセッション・CSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.ImageSource != nil))

	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Renderer, deps.AuthConfig)
	cartHandler := NewCartHandler(deps.CartService, deps.Flash, deps.Renderer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.Cookie))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 画像はフォーム送信を伴わないためCSRFの対象外とする
		if deps.ImageSource != nil {
			r.Get("/images", NewImageHandler(deps.ImageSource, deps.ImageVerifier).Serve)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(deps.Cookie))

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/signup", http.StatusFound)
			})

			// サインアップ・ログイン（送信には専用のレート制限を追加）
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.AuthMiddleware())
				r.Get("/signup", authHandler.SignupPage)
				r.Post("/signup", authHandler.Signup)
				r.Get("/login", authHandler.LoginPage)
				r.Post("/login", authHandler.Login)
			})
			r.Post("/logout", authHandler.Logout)

			// ストア＆カート
			r.Route(dashboardPath, func(r chi.Router) {
				if deps.CartRequireLogin {
					r.Use(middleware.NewRequireSessionMiddleware("/login"))
				}
				r.Get("/", cartHandler.Dashboard)
				r.Post("/cart/add/{productId}", cartHandler.Add)
				r.Post("/cart/update/{productId}", cartHandler.Update)
				r.Post("/cart/remove/{productId}", cartHandler.Remove)
			})
		})
	})

	return r
}
