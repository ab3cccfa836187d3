// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordPollCycle(success bool)
	RecordDonationProcessed()
	RecordVideoTriggered()
	RecordRateFetch(success bool)
	RecordRateCacheHit()
	RecordRateStaleFallback()
	RecordGeneration(state string, duration time.Duration)
	RecordPlayRequested()
	RecordPlayDelivered()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	pollCycles         *prometheus.CounterVec
	donationsProcessed prometheus.Counter
	videosTriggered    prometheus.Counter
	rateFetches        *prometheus.CounterVec
	rateCacheHits      prometheus.Counter
	rateStaleFallbacks prometheus.Counter
	generations        *prometheus.CounterVec
	generationDuration prometheus.Histogram
	playRequested      prometheus.Counter
	playDelivered      prometheus.Counter
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donaman_poll_cycles_total",
			Help: "寄付フィードのポーリングサイクル数（結果別）",
		}, []string{"result"}),
		donationsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donaman_donations_processed_total",
			Help: "評価が完了した寄付の合計数",
		}),
		videosTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donaman_videos_triggered_total",
			Help: "寄付によって起動された動画生成の合計数",
		}),
		rateFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donaman_rate_fetches_total",
			Help: "為替レート取得の合計数（結果別）",
		}, []string{"result"}),
		rateCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donaman_rate_cache_hits_total",
			Help: "為替レートキャッシュヒットの合計数",
		}),
		rateStaleFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donaman_rate_stale_fallbacks_total",
			Help: "期限切れレートキャッシュへのフォールバック回数",
		}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donaman_generations_total",
			Help: "動画生成ジョブの合計数（終端状態別）",
		}, []string{"state"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "donaman_generation_duration_seconds",
			Help:    "動画生成ジョブの所要時間（秒）",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 900, 1800},
		}),
		playRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donaman_play_requests_total",
			Help: "強制再生リクエストの合計数",
		}),
		playDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "donaman_play_deliveries_total",
			Help: "配信された強制再生リクエストの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "donaman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.pollCycles,
		c.donationsProcessed,
		c.videosTriggered,
		c.rateFetches,
		c.rateCacheHits,
		c.rateStaleFallbacks,
		c.generations,
		c.generationDuration,
		c.playRequested,
		c.playDelivered,
		c.httpStatus,
	)

	return c
}

// RecordPollCycle はポーリングサイクルの結果を記録する。
func (c *Collector) RecordPollCycle(success bool) {
	c.pollCycles.WithLabelValues(resultLabel(success)).Inc()
}

// RecordDonationProcessed は寄付の評価完了を記録する。
func (c *Collector) RecordDonationProcessed() {
	c.donationsProcessed.Inc()
}

// RecordVideoTriggered は寄付による動画生成の起動を記録する。
func (c *Collector) RecordVideoTriggered() {
	c.videosTriggered.Inc()
}

// RecordRateFetch は為替レート取得の結果を記録する。
func (c *Collector) RecordRateFetch(success bool) {
	c.rateFetches.WithLabelValues(resultLabel(success)).Inc()
}

// RecordRateCacheHit は為替レートのキャッシュヒットを記録する。
func (c *Collector) RecordRateCacheHit() {
	c.rateCacheHits.Inc()
}

// RecordRateStaleFallback は期限切れキャッシュへのフォールバックを記録する。
func (c *Collector) RecordRateStaleFallback() {
	c.rateStaleFallbacks.Inc()
}

// RecordGeneration は動画生成ジョブの終端状態と所要時間を記録する。
func (c *Collector) RecordGeneration(state string, duration time.Duration) {
	c.generations.WithLabelValues(state).Inc()
	c.generationDuration.Observe(duration.Seconds())
}

// RecordPlayRequested は強制再生リクエストの作成を記録する。
func (c *Collector) RecordPlayRequested() {
	c.playRequested.Inc()
}

// RecordPlayDelivered は強制再生リクエストの配信を記録する。
func (c *Collector) RecordPlayDelivered() {
	c.playDelivered.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
