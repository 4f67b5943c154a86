package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/menuya/internal/middleware"
)

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig, metrics SessionMetricsRecorder) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(service, config, metrics)

	r.Route("/auth", func(r chi.Router) {
		// パスワード認証
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		// OAuthフロー
		r.Get("/google/login", h.GoogleLogin)
		r.Get("/google/callback", h.GoogleCallback)

		// セッション管理
		r.Post("/logout", h.Logout)
	})

	return r
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	EnableHSTS        bool
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	HTTPMetrics       middleware.HTTPMetricsRecorder

	// GET /metrics で公開するPrometheusハンドラー。nilなら公開しない。
	MetricsHandler http.Handler

	// 認証
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	SessionMetrics SessionMetricsRecorder

	// メニュー
	MenuService MenuServiceInterface

	// 公開ページ
	PublicFinder PublicMenuFinder

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → (認証グループのみ) Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）と公開ページはセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効く外側のミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.EnableHSTS))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.HTTPMetrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.SessionMetrics)
	menuHandler := NewMenuHandler(deps.MenuService)
	publicHandler := NewPublicHandler(deps.PublicFinder)
	userHandler := NewUserHandler(deps.UserService)

	// --- 認証不要のルート ---

	// 死活監視
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheusメトリクス
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// CSRFトークン取得（SPAの初期化時に呼ばれる）
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
		r.Post("/logout", authHandler.Logout)
	})

	// 公開メニューページ
	r.Get("/api/public/menus/{slug}", publicHandler.GetPublishedMenu)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ログイン中ユーザー情報
		r.Get("/api/auth/me", authHandler.Me)

		// メニュー管理
		r.Route("/api/menus", func(r chi.Router) {
			r.Get("/", menuHandler.ListMenus)
			r.Post("/", menuHandler.CreateMenu)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", menuHandler.GetMenu)
				r.Patch("/", menuHandler.UpdateMenu)
				r.Delete("/", menuHandler.DeleteMenu)
				r.Put("/sections", menuHandler.SaveSections)
				r.Post("/logo", menuHandler.SetLogo)

				// POST /api/menus/{id}/publish - 公開（公開専用レート制限を追加）
				r.With(deps.RateLimiter.PublishMiddleware()).Post("/publish", menuHandler.PublishMenu)
			})
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Patch("/me", userHandler.UpdateProfile)
		})

		// 管理者向け
		r.Get("/api/admin/users", userHandler.ListUsers)
	})

	return r
}
