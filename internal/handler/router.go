package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/donaman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HTTPMetrics       middleware.HTTPMetrics

	// サービス
	Poller     PollerService
	Feed       FeedProbe
	Settings   SettingsService
	Converter  ThresholdConverter
	Generation GenerationService
	Videos     VideoService
	Playback   PlaybackService
	Logs       LogSource

	// Prometheusスクレイプ用ハンドラー
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → CORSMiddleware → LoggingMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// /health、/metrics、動画配信（/videos/*）とウィジェットエンドポイントは
// レート制限の外に配置する（ウィジェットは短い間隔でポーリングするため）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.HTTPMetrics))

	pollingHandler := NewPollingHandler(deps.Poller, deps.Feed)
	settingsHandler := NewSettingsHandler(deps.Settings, deps.Converter, deps.Poller)
	generationHandler := NewGenerationHandler(deps.Generation)
	videoHandler := NewVideoHandler(deps.Videos, deps.Playback)

	// --- レート制限の外のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// OBSウィジェット
	r.Get("/api/widget/latest-video", videoHandler.WidgetLatest)
	r.Get("/videos/{filename}", videoHandler.ServeFile)

	// --- レート制限下のAPIルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ポーリング制御
		r.Route("/api/polling", func(r chi.Router) {
			r.Post("/start", pollingHandler.Start)
			r.Post("/stop", pollingHandler.Stop)
			r.Get("/status", pollingHandler.Status)
		})
		r.Get("/api/donations", pollingHandler.ListDonations)
		r.Post("/api/test-connection", pollingHandler.TestConnection)

		// 診断用の直近ログ
		if deps.Logs != nil {
			r.Get("/api/logs", NewLogsHandler(deps.Logs).List)
		}

		// 実行時設定
		r.Get("/api/settings", settingsHandler.Get)
		r.Route("/api/threshold", func(r chi.Router) {
			r.Get("/", settingsHandler.GetThreshold)
			r.Post("/", settingsHandler.UpdateThreshold)
		})
		r.Route("/api/access-token", func(r chi.Router) {
			r.Post("/", settingsHandler.UpdateAccessToken)
			r.Delete("/", settingsHandler.DeleteAccessToken)
		})
		r.Route("/api/system-prompt", func(r chi.Router) {
			r.Get("/", settingsHandler.GetSystemPrompt)
			r.Post("/", settingsHandler.UpdateSystemPrompt)
		})

		// 動画生成（投入専用レート制限を追加）
		r.With(deps.RateLimiter.GenerateMiddleware()).Post("/api/generate", generationHandler.Generate)
		r.Get("/api/generation-status", generationHandler.Status)

		// 動画ファイルと再生制御
		r.Get("/api/videos", videoHandler.List)
		r.Delete("/api/videos/{filename}", videoHandler.Delete)
		r.Post("/api/play", videoHandler.RequestPlay)
	})

	return r
}
