package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
// 認証の無いローカルツールのため、制限はクライアントIPごとに適用する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	GenerateRate    rate.Limit    // 動画生成投入のレート（req/sec）
	GenerateBurst   int           // 動画生成投入のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// NewRateLimiterConfig はreq/min単位の設定からRateLimiterConfigを生成する。
// 0以下の値にはデフォルト（API全般 120 req/min、生成投入 10 req/min）を使用する。
func NewRateLimiterConfig(generalPerMinute, generatePerMinute int) RateLimiterConfig {
	if generalPerMinute <= 0 {
		generalPerMinute = 120
	}
	if generatePerMinute <= 0 {
		generatePerMinute = 10
	}
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMinute) / 60.0),
		GeneralBurst:    generalPerMinute,
		GenerateRate:    rate.Limit(float64(generatePerMinute) / 60.0),
		GenerateBurst:   generatePerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はクライアントIPごとのレート制限を管理する。
// API全般の制限と動画生成投入の制限の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig
	logger *slog.Logger

	generalMu       sync.Mutex
	generalLimiters map[string]*clientLimiter

	generateMu       sync.Mutex
	generateLimiters map[string]*clientLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		config:           config,
		logger:           logger,
		generalLimiters:  make(map[string]*clientLimiter),
		generateLimiters: make(map[string]*clientLimiter),
		stopCh:           make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware("general", func(ip string) *rate.Limiter {
		return rl.getOrCreate(&rl.generalMu, rl.generalLimiters, ip, rl.config.GeneralRate, rl.config.GeneralBurst)
	}, func() rate.Limit { return rl.config.GeneralRate })
}

// GenerateMiddleware は動画生成投入専用のレート制限ミドルウェアを返す。
// API全般の制限とは独立に動作する。
func (rl *RateLimiter) GenerateMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware("generate", func(ip string) *rate.Limiter {
		return rl.getOrCreate(&rl.generateMu, rl.generateLimiters, ip, rl.config.GenerateRate, rl.config.GenerateBurst)
	}, func() rate.Limit { return rl.config.GenerateRate })
}

func (rl *RateLimiter) middleware(limitType string, get func(ip string) *rate.Limiter, limit func() rate.Limit) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !get(ip).Allow() {
				writeRateLimitResponse(w, limit())
				rl.logger.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", limitType),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getOrCreate はクライアントIPのリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreate(mu *sync.Mutex, limiters map[string]*clientLimiter, ip string, r rate.Limit, burst int) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	if cl, exists := limiters[ip]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(r, burst)
	limiters[ip] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テスト用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()
	return len(rl.generalLimiters)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.generalMu.Lock()
	for ip, cl := range rl.generalLimiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.generalLimiters, ip)
		}
	}
	rl.generalMu.Unlock()

	rl.generateMu.Lock()
	for ip, cl := range rl.generateLimiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.generateLimiters, ip)
		}
	}
	rl.generateMu.Unlock()
}

// clientIP はリクエストからクライアントIPを抽出する。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "RATE_LIMIT_EXCEEDED",
		"message":  "リクエストが多すぎます。",
		"category": "system",
		"action":   "しばらく待ってから再度お試しください。",
	})
}
