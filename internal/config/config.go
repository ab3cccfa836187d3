// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 実行中に変化する値（閾値、トークン、システムプロンプト）はここではなく
// settings.Storeが保持する。
type Config struct {
	// Server
	ServerPort        string
	CORSAllowedOrigin string
	LogLevel          slog.Level
	LogBufferCapacity int

	// DonationAlerts
	DonationAlertsAPIBase  string
	DonationAlertsTokenURL string
	DAClientID             string
	DAClientSecret         string
	DARefreshToken         string

	// Polling
	PollInterval       time.Duration
	PollRequestTimeout time.Duration
	PollBackoffMax     time.Duration
	PollPageLimit      int
	FreshnessWindow    time.Duration
	SeenCapacity       int
	RecentCapacity     int

	// Currency
	RatesAPIBase   string
	RatesCacheTTL  time.Duration
	RatesTimeout   time.Duration
	ThresholdRUB   float64
	ThresholdCurr  string

	// Generation
	AIMLAPIKey      string
	AIMLBaseURL     string
	AIMLModel       string
	JobPollInterval time.Duration
	JobTimeout      time.Duration
	DownloadTimeout time.Duration
	DownloadMaxSize int64
	VideosDir       string

	// Playback
	PlayRequestTTL time.Duration

	// Rate Limit（req/min単位）
	RateLimitGeneral  int
	RateLimitGenerate int
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあればローカル開発用として先に読み込む。
func Load() (*Config, error) {
	// .envは存在しなくてもよい（本番は環境変数のみ）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:        getEnvString("SERVER_PORT", "8080"),
		CORSAllowedOrigin: getEnvString("CORS_ALLOWED_ORIGIN", "*"),
		LogLevel:          parseLogLevel(getEnvString("LOG_LEVEL", "info")),
		LogBufferCapacity: getEnvInt("LOG_BUFFER_CAPACITY", 200),

		DonationAlertsAPIBase:  getEnvString("DA_API_BASE", "https://www.donationalerts.com/api/v1"),
		DonationAlertsTokenURL: getEnvString("DA_OAUTH_TOKEN_URL", "https://www.donationalerts.com/oauth/token"),
		DAClientID:             os.Getenv("DA_CLIENT_ID"),
		DAClientSecret:         os.Getenv("DA_CLIENT_SECRET"),
		DARefreshToken:         os.Getenv("DA_REFRESH_TOKEN"),

		PollInterval:       getEnvDuration("POLL_INTERVAL", 5*time.Second),
		PollRequestTimeout: getEnvDuration("POLL_REQUEST_TIMEOUT", 10*time.Second),
		PollBackoffMax:     getEnvDuration("POLL_BACKOFF_MAX", 60*time.Second),
		PollPageLimit:      getEnvInt("POLL_PAGE_LIMIT", 10),
		FreshnessWindow:    getEnvDuration("FRESHNESS_WINDOW", 5*time.Minute),
		SeenCapacity:       getEnvInt("SEEN_CAPACITY", 2000),
		RecentCapacity:     getEnvInt("RECENT_CAPACITY", 100),

		RatesAPIBase:  getEnvString("RATES_API_BASE", "https://api.exchangerate-api.com/v4/latest"),
		RatesCacheTTL: getEnvDuration("RATES_CACHE_TTL", 5*time.Minute),
		RatesTimeout:  getEnvDuration("RATES_TIMEOUT", 10*time.Second),
		ThresholdRUB:  getEnvFloat("THRESHOLD_RUB", 1000.0),
		ThresholdCurr: "RUB",

		AIMLAPIKey:      os.Getenv("AIML_API_KEY"),
		AIMLBaseURL:     getEnvString("AIML_BASE_URL", "https://api.aimlapi.com/v2"),
		AIMLModel:       getEnvString("AIML_MODEL", "google/veo3"),
		JobPollInterval: getEnvDuration("JOB_POLL_INTERVAL", 10*time.Second),
		JobTimeout:      getEnvDuration("JOB_TIMEOUT", 15*time.Minute),
		DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 60*time.Second),
		DownloadMaxSize: getEnvInt64("DOWNLOAD_MAX_SIZE", 512*1024*1024),
		VideosDir:       getEnvString("VIDEOS_DIR", "generated_videos"),

		PlayRequestTTL: getEnvDuration("PLAY_REQUEST_TTL", 10*time.Second),

		RateLimitGeneral:  getEnvInt("RATE_LIMIT_GENERAL", 120),
		RateLimitGenerate: getEnvInt("RATE_LIMIT_GENERATE", 10),
	}

	if cfg.ThresholdRUB < 0 {
		return nil, fmt.Errorf("THRESHOLD_RUB must not be negative: %v", cfg.ThresholdRUB)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive: %v", cfg.PollInterval)
	}
	if cfg.JobTimeout <= 0 {
		return nil, fmt.Errorf("JOB_TIMEOUT must be positive: %v", cfg.JobTimeout)
	}

	return cfg, nil
}

// parseLogLevel はログレベル文字列をslog.Levelへ変換する。
// 未知の値はinfoとして扱う。
func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
