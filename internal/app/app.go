// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/donaman/internal/aiml"
	"github.com/hitoshi/donaman/internal/config"
	"github.com/hitoshi/donaman/internal/currency"
	"github.com/hitoshi/donaman/internal/donationalerts"
	"github.com/hitoshi/donaman/internal/generation"
	"github.com/hitoshi/donaman/internal/handler"
	"github.com/hitoshi/donaman/internal/logger"
	"github.com/hitoshi/donaman/internal/metrics"
	"github.com/hitoshi/donaman/internal/middleware"
	"github.com/hitoshi/donaman/internal/playback"
	"github.com/hitoshi/donaman/internal/security"
	"github.com/hitoshi/donaman/internal/settings"
	"github.com/hitoshi/donaman/internal/worker/poll"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログと診断用の直近ログバッファを
// セットアップする。writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, *logger.Buffer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if w == nil {
		w = os.Stdout
	}
	log, logBuffer := logger.SetupWithBuffer(w, cfg.LogLevel, cfg.LogBufferCapacity)
	slog.SetDefault(log)

	return cfg, log, logBuffer, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, log, logBuffer, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("アプリケーションを起動します",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	return runServe(cfg, log, logBuffer)
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config, log *slog.Logger, logBuffer *logger.Buffer) error {
	// 1. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. 実行時設定ストアの初期化
	store := settings.NewStore(cfg.ThresholdRUB, cfg.DARefreshToken)

	// 3. セキュリティサービスの初期化
	downloadGuard := security.NewDownloadGuard()
	sanitizer := security.NewPromptSanitizer()

	// 4. 外部APIクライアントの初期化
	daClient := donationalerts.NewClient(
		&http.Client{Timeout: cfg.PollRequestTimeout},
		log, store,
		donationalerts.ClientConfig{
			APIBase:      cfg.DonationAlertsAPIBase,
			TokenURL:     cfg.DonationAlertsTokenURL,
			ClientID:     cfg.DAClientID,
			ClientSecret: cfg.DAClientSecret,
			PageLimit:    cfg.PollPageLimit,
		},
	)

	converter := currency.NewConverter(
		&http.Client{Timeout: cfg.RatesTimeout},
		log, collector, cfg.RatesAPIBase, cfg.RatesCacheTTL,
	)

	aimlClient := aiml.NewClient(
		&http.Client{Timeout: 30 * time.Second},
		// 成果物ダウンロードはSSRF防止付きクライアントで行う
		downloadGuard.NewSafeClient(cfg.DownloadTimeout),
		log, cfg.AIMLBaseURL, cfg.AIMLModel, cfg.AIMLAPIKey, cfg.DownloadMaxSize,
	)

	// 5. 動画ストアと再生キューの初期化
	videoStore, err := generation.NewVideoStore(cfg.VideosDir, log)
	if err != nil {
		return fmt.Errorf("failed to init video store: %w", err)
	}
	queue := playback.NewQueue(log, collector, cfg.PlayRequestTTL)

	// 6. 生成オーケストレーターの初期化
	prompts := generation.NewPromptBuilder(sanitizer, store)
	orchestrator := generation.NewOrchestrator(
		aimlClient, downloadGuard, videoStore, queue, prompts,
		log, collector, cfg.JobPollInterval, cfg.JobTimeout,
	)

	// 7. ポーリングワーカーの初期化（開始はAPI経由で行う）
	poller := poll.NewPoller(
		daClient, converter, orchestrator, store, log, collector,
		poll.Options{
			Interval:        cfg.PollInterval,
			BackoffMax:      cfg.PollBackoffMax,
			FreshnessWindow: cfg.FreshnessWindow,
			SeenCapacity:    cfg.SeenCapacity,
			RecentCapacity:  cfg.RecentCapacity,
		},
	)

	// 8. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitGenerate),
		log,
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HTTPMetrics:       collector,

		Poller:     poller,
		Feed:       daClient,
		Settings:   store,
		Converter:  converter,
		Generation: orchestrator,
		Videos:     videoStore,
		Playback:   queue,
		Logs:       logBuffer,

		MetricsHandler: metrics.Handler(registry),
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("APIサーバーを起動します",
			slog.String("addr", server.Addr),
			slog.String("videos_dir", videoStore.Dir()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("サーバーのリッスンに失敗しました", slog.String("error", err.Error()))
		}
	}()

	<-stop
	log.Info("APIサーバーをシャットダウンします...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// バックグラウンドワーカーを停止してから終了する
	poller.Stop()
	orchestrator.Stop()
	rateLimiter.Stop()

	log.Info("APIサーバーを正常に停止しました")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
