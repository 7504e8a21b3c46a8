package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/hokenbot/internal/metrics"
	"github.com/hitoshi/hokenbot/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// メトリクス
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer

	// 保険会社ルール
	RuleStore RuleStoreInterface

	// エージェント。APIキー未設定時はnil（問い合わせ系は503を返す）。
	Agent        AgentInterface
	AgentTimeout time.Duration

	// セッション
	SessionService SessionServiceInterface
	Conversations  ConversationServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Metrics → RateLimit(General)
//
// エージェント問い合わせ系（/api/query, /api/check-eligibility, /api/v2/query）には
// LLMトークン消費を抑えるため専用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Collector))

	healthHandler := NewHealthHandler(deps.Agent != nil)
	providerHandler := NewProviderHandler(deps.RuleStore)
	queryHandler := NewQueryHandler(deps.Agent, deps.SessionService, deps.Collector, deps.AgentTimeout, deps.Logger)
	conversationHandler := NewConversationHandler(deps.Conversations)

	// --- 運用エンドポイント（レート制限の外） ---
	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- APIルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api", func(r chi.Router) {
			// 保険会社ルール
			r.Route("/providers", func(r chi.Router) {
				r.Get("/", providerHandler.ListProviders)
				r.Get("/{code}", providerHandler.GetProvider)
				r.Patch("/{code}/products/{type}", providerHandler.UpdateProductRules)
			})

			// エージェント問い合わせ（専用レート制限を追加）
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.QueryMiddleware())

				r.Post("/query", queryHandler.Query)
				r.Post("/check-eligibility", queryHandler.CheckEligibility)
				r.Post("/v2/query", queryHandler.SessionQuery)
			})

			// 会話履歴
			r.Get("/v2/conversation/{sessionKey}", conversationHandler.GetConversation)
		})
	})

	return r
}
