package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス（nil可）
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface

	// タスク
	TaskService TaskServiceInterface

	// アップロード
	Uploader      UploaderInterface
	UploadMaxSize int64

	// Zoho連携
	ZohoService ZohoServiceInterface
	ZohoConfig  ZohoHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → BearerAuth → RateLimit(General)
//
// ログイン・Zoho OAuthフロー・ヘルスチェック・メトリクスは
// bearer認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var observer middleware.StatusObserver
	if deps.Metrics != nil {
		observer = deps.Metrics.RecordHTTPStatus
	}

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, observer))

	authHandler := NewAuthHandler(deps.AuthService)
	taskHandler := NewTaskHandler(deps.TaskService, deps.Metrics)
	uploadHandler := NewUploadHandler(deps.Uploader, deps.UploadMaxSize, deps.Metrics)
	zohoHandler := NewZohoHandler(deps.ZohoService, deps.AuthService, deps.ZohoConfig, deps.Metrics)

	// --- 認証不要のルート ---

	r.Post("/session-login", authHandler.SessionLogin)

	// Zoho OAuthフロー（リダイレクトがAuthorizationヘッダーを運べないため外に置く）
	r.Get("/zoho-auth-start", zohoHandler.AuthStart)
	r.Get("/zoho-oauth-callback", zohoHandler.OAuthCallback)

	r.Get("/health", newHealthHandler(deps.HealthChecker))

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.AuthService))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// タスク管理
		r.Post("/add-task", taskHandler.AddTask)
		r.Get("/get-tasks", taskHandler.GetTasks)
		r.Get("/get-completed-tasks", taskHandler.GetCompletedTasks)
		r.Post("/update-task-status", taskHandler.UpdateTaskStatus)

		// ファイルアップロード（専用レート制限を追加）
		r.With(deps.RateLimiter.UploadMiddleware()).Post("/upload", uploadHandler.Upload)

		// Zoho連携
		r.Get("/zoho-status", zohoHandler.Status)
		r.Get("/zoho-tasks", zohoHandler.Tasks)
	})

	return r
}

// newHealthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if checker == nil || checker.PingContext(ctx) != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
