// Package currency は為替レートによる通貨変換を提供する。
// レートはプロバイダーから取得し、基軸通貨ごとにTTL付きでインメモリキャッシュする。
// リフレッシュは期限切れ後の最初の参照時に行う遅延方式で、
// 寄付が来ない間の無駄な呼び出しを避ける。
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/donaman/internal/model"
)

// ReferenceCurrency は閾値比較の基準通貨。
const ReferenceCurrency = "RUB"

// knownCurrencies は変換を受け付ける通貨コードの許可リスト。
// 未知のコードは推測せずRateUnavailableとして拒否する。
var knownCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "AUD": {}, "CAD": {},
	"CHF": {}, "CNY": {}, "SEK": {}, "NOK": {}, "MXN": {}, "SGD": {},
	"HKD": {}, "KRW": {}, "TRY": {}, "PLN": {}, "CZK": {}, "HUF": {},
	"ILS": {}, "CLP": {}, "PHP": {}, "AED": {}, "SAR": {}, "MYR": {},
	"THB": {}, "UAH": {}, "KZT": {}, "BYN": {}, "RUB": {},
}

// cacheEntry は基軸通貨1つ分のレート表とその取得時刻。
type cacheEntry struct {
	rates     map[string]float64
	fetchedAt time.Time
}

// metricsRecorder は変換処理が記録するメトリクスのインターフェース。
type metricsRecorder interface {
	RecordRateFetch(success bool)
	RecordRateCacheHit()
	RecordRateStaleFallback()
}

// Converter は通貨変換サービス。
// キャッシュ参照はロック下で行い、プロバイダーへのHTTP呼び出しは
// ロック外で実行して結果のみをロック下で反映する。
type Converter struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metricsRecorder
	apiBase    string // テスト用にエンドポイントを差し替え可能
	ttl        time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewConverter はConverterの新しいインスタンスを生成する。
func NewConverter(httpClient *http.Client, logger *slog.Logger, metrics metricsRecorder, apiBase string, ttl time.Duration) *Converter {
	return &Converter{
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
		apiBase:    strings.TrimRight(apiBase, "/"),
		ttl:        ttl,
		cache:      make(map[string]cacheEntry),
	}
}

// Normalize は通貨コードを正規化（大文字化）し、許可リストと照合する。
// 未知のコードにはErrRateUnavailableを返す。
func Normalize(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		c = ReferenceCurrency
	}
	if _, ok := knownCurrencies[c]; !ok {
		return "", fmt.Errorf("unknown currency code %q: %w", code, model.ErrRateUnavailable)
	}
	return c, nil
}

// Convert はamountをfrom通貨からRUBへ変換する。
// レートが確認できない場合はエラーを返し、1:1などの仮定では変換しない。
func (c *Converter) Convert(ctx context.Context, amount float64, from string) (float64, error) {
	base, err := Normalize(from)
	if err != nil {
		return 0, err
	}
	if base == ReferenceCurrency {
		return amount, nil
	}

	rate, err := c.rate(ctx, base, ReferenceCurrency)
	if err != nil {
		return 0, err
	}

	converted := amount * rate
	c.logger.Debug("通貨を変換しました",
		slog.Float64("amount", amount),
		slog.String("from", base),
		slog.Float64("rate", rate),
		slog.Float64("converted", converted),
	)
	return converted, nil
}

// rate はキャッシュまたはプロバイダーからbase→targetのレートを取得する。
// キャッシュが有効期限内であればそれを返す。期限切れの場合はプロバイダーへ
// 取得しに行き、失敗時は期限切れキャッシュがあればそれにフォールバックする
// （劣化運転）。どちらも無ければ失敗として返す。
func (c *Converter) rate(ctx context.Context, base, target string) (float64, error) {
	c.mu.Lock()
	entry, cached := c.cache[base]
	fresh := cached && time.Since(entry.fetchedAt) < c.ttl
	c.mu.Unlock()

	if fresh {
		rate, ok := entry.rates[target]
		if !ok {
			return 0, fmt.Errorf("rate %s->%s missing from cached table: %w", base, target, model.ErrRateUnavailable)
		}
		c.metrics.RecordRateCacheHit()
		return rate, nil
	}

	// ネットワーク呼び出しはロック外で行う
	rates, err := c.fetchRates(ctx, base)
	if err != nil {
		c.metrics.RecordRateFetch(false)
		if cached {
			// 期限切れキャッシュによる劣化運転
			rate, ok := entry.rates[target]
			if !ok {
				return 0, fmt.Errorf("rate %s->%s missing from stale cache: %w", base, target, model.ErrRateUnavailable)
			}
			c.metrics.RecordRateStaleFallback()
			c.logger.Warn("レートプロバイダー障害のため期限切れキャッシュを使用します",
				slog.String("base", base),
				slog.Time("fetched_at", entry.fetchedAt),
				slog.String("error", err.Error()),
			)
			return rate, nil
		}
		return 0, fmt.Errorf("rate fetch failed for %s with no cache: %w", base, err)
	}
	c.metrics.RecordRateFetch(true)

	c.mu.Lock()
	c.cache[base] = cacheEntry{rates: rates, fetchedAt: time.Now()}
	c.mu.Unlock()

	rate, ok := rates[target]
	if !ok {
		return 0, fmt.Errorf("rate %s->%s missing from provider response: %w", base, target, model.ErrRateUnavailable)
	}
	return rate, nil
}

// fetchRates はプロバイダーからbase通貨のレート表を取得する。
func (c *Converter) fetchRates(ctx context.Context, base string) (map[string]float64, error) {
	url := fmt.Sprintf("%s/%s", c.apiBase, base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("レートリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: rate provider returned status %d", model.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading rate response: %s", model.ErrUnavailable, err.Error())
	}

	var payload struct {
		Base  string             `json:"base"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: parsing rate response: %s", model.ErrUnavailable, err.Error())
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("%w: rate response contained no rates", model.ErrUnavailable)
	}

	return payload.Rates, nil
}
