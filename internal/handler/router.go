package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/simbiat/fftracker/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	SessionCookieName string
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// エンティティ
	Opener     EntityOpener
	Linker     CharacterLinker
	Authorizer RefreshAuthorizer

	HealthChecker HealthChecker
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS
//	  参照・登録:   PublicRateLimit(IP)
//	  更新・紐付け: Session → CSRF → RefreshRateLimit(ユーザー)
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	entityHandler := NewEntityHandler(deps.Opener, deps.Linker, deps.Authorizer, deps.Logger)

	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.Logger))
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF, deps.Logger))

	r.Route("/api/ffxiv", func(r chi.Router) {
		// --- 認証不要のルート ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.PublicMiddleware())

			r.Get("/{type}/{id}", entityHandler.GetEntity)
			r.Post("/{type}/{id}/register", entityHandler.RegisterEntity)
		})

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.SessionCookieName, deps.Logger))
			r.Use(middleware.NewCSRFMiddleware(deps.CSRF, deps.Logger))
			r.Use(deps.RateLimiter.RefreshMiddleware())

			r.Post("/{type}/{id}/update", entityHandler.UpdateEntity)
			r.Post("/character/{id}/link", entityHandler.LinkCharacter)
		})
	})

	return r
}
