// Package poll は寄付フィードのバックグラウンドポーリング処理を提供する。
// 一定間隔でフィードを取得し、未処理の寄付を鮮度・テストフラグ・閾値で
// 評価して、条件を満たすものだけ動画生成を起動する。
// フィード障害時は指数バックオフでリトライし、認証失効時は停止する。
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/donaman/internal/model"
)

// DonationFetcher は寄付フィード取得のインターフェース。
type DonationFetcher interface {
	// FetchRecent は直近の寄付を新しい順で返す。
	FetchRecent(ctx context.Context) ([]model.Donation, error)
}

// CurrencyConverter は通貨変換のインターフェース。
type CurrencyConverter interface {
	// Convert はamountをfrom通貨から基準通貨（RUB）へ変換する。
	Convert(ctx context.Context, amount float64, from string) (float64, error)
}

// GenerationTrigger は動画生成起動のインターフェース。
type GenerationTrigger interface {
	// TriggerFromDonation は寄付イベントから動画生成を起動する。
	// ジョブ実行中の場合はmodel.ErrBusyを返す。
	TriggerFromDonation(ctx context.Context, event model.DonationEvent) error
}

// SettingsSource はポーラーが評価のたびに読み直す可変設定のインターフェース。
type SettingsSource interface {
	Threshold() float64
	AccessToken() string
	SetAccessToken(token string)
	ClearAccessToken()
}

// metricsRecorder はポーラーが記録するメトリクスのインターフェース。
type metricsRecorder interface {
	RecordPollCycle(success bool)
	RecordDonationProcessed()
	RecordVideoTriggered()
}

// Options はポーラーの動作パラメータ。ゼロ値にはデフォルトが適用される。
type Options struct {
	Interval        time.Duration
	BackoffMax      time.Duration
	FreshnessWindow time.Duration
	SeenCapacity    int
	RecentCapacity  int
}

// Poller は寄付フィードのポーリングワーカー。
// Start/Stopで明示的にライフサイクルを制御し、実行状態と統計を保持する。
// ロックは状態の読み書きのみに使用し、ネットワーク呼び出し中は保持しない。
type Poller struct {
	fetcher   DonationFetcher
	converter CurrencyConverter
	trigger   GenerationTrigger
	settings  SettingsSource
	logger    *slog.Logger
	metrics   metricsRecorder
	limiter   *rate.Limiter

	interval        time.Duration
	backoffMax      time.Duration
	freshnessWindow time.Duration

	mu                 sync.Mutex
	state              model.PollerState
	cancel             context.CancelFunc
	done               chan struct{}
	seen               *seenSet
	recent             *recentBuffer
	consecutiveErrors  int
	donationsProcessed int64
	videosTriggered    int64
	lastPollAt         time.Time
	lastError          string
}

// NewPoller はPollerの新しいインスタンスを生成する。
func NewPoller(
	fetcher DonationFetcher,
	converter CurrencyConverter,
	trigger GenerationTrigger,
	settings SettingsSource,
	logger *slog.Logger,
	metrics metricsRecorder,
	opts Options,
) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 60 * time.Second
	}
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = 5 * time.Minute
	}
	return &Poller{
		fetcher:   fetcher,
		converter: converter,
		trigger:   trigger,
		settings:  settings,
		logger:    logger,
		metrics:   metrics,
		// 設定ミスでも外部APIへ秒間1リクエストを超えない
		limiter:         rate.NewLimiter(rate.Every(time.Second), 1),
		interval:        opts.Interval,
		backoffMax:      opts.BackoffMax,
		freshnessWindow: opts.FreshnessWindow,
		state:           model.PollerStateStopped,
		seen:            newSeenSet(opts.SeenCapacity),
		recent:          newRecentBuffer(opts.RecentCapacity),
	}
}

// Start はポーリングを開始する。
// tokenが非空の場合はアクセストークンとして保存してから開始する。
// 既に実行中の場合はErrAlreadyRunning、トークン未設定の場合は
// ErrMissingTokenを返す。
func (p *Poller) Start(token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == model.PollerStateRunning {
		return model.ErrAlreadyRunning
	}
	if token != "" {
		p.settings.SetAccessToken(token)
	}
	if p.settings.AccessToken() == "" {
		return model.ErrMissingToken
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.state = model.PollerStateRunning
	p.consecutiveErrors = 0
	p.lastError = ""

	go p.run(ctx, p.done)
	return nil
}

// Stop はポーリングを停止し、実行中のサイクルの終了を待つ。
// 停止済みの場合は何もしない。
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state != model.PollerStateRunning {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// State は現在の実行状態を返す。
func (p *Poller) State() model.PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats は統計のスナップショットを返す。
func (p *Poller) Stats() model.PollerStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := model.PollerStats{
		State:              p.state,
		HasToken:           p.settings.AccessToken() != "",
		DonationsProcessed: p.donationsProcessed,
		VideosTriggered:    p.videosTriggered,
		ConsecutiveErrors:  p.consecutiveErrors,
		LastError:          p.lastError,
		SeenCount:          p.seen.Len(),
	}
	if !p.lastPollAt.IsZero() {
		t := p.lastPollAt
		stats.LastPollAt = &t
	}
	return stats
}

// RecentDonations は直近に観測した寄付を新しい順で返す。
func (p *Poller) RecentDonations() []model.Donation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recent.List()
}

// run はポーリングループ本体。コンテキストのキャンセルで終了する。
func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		p.mu.Lock()
		p.state = model.PollerStateStopped
		cancel := p.cancel
		p.cancel = nil
		p.mu.Unlock()
		// 自発停止（認証エラー等）の場合もコンテキストを解放する
		if cancel != nil {
			cancel()
		}
	}()

	p.logger.Info("寄付ポーリングを開始しました",
		slog.Duration("interval", p.interval),
	)

	// 起動直後に1回実行
	delay, stop := p.cycle(ctx)
	if stop {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("寄付ポーリングを停止しました")
			return
		case <-timer.C:
			delay, stop = p.cycle(ctx)
			if stop {
				return
			}
			timer.Reset(delay)
		}
	}
}

// cycle はポーリング1回分を実行し、次回までの遅延と停止要否を返す。
func (p *Poller) cycle(ctx context.Context) (time.Duration, bool) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, true
	}

	donations, err := p.fetcher.FetchRecent(ctx)
	now := time.Now()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, true
		}
		p.metrics.RecordPollCycle(false)

		if classifyFetchError(err) == outcomeStop {
			p.logger.Error("認証エラーのためポーリングを停止します",
				slog.String("error", err.Error()),
			)
			// 失効したトークンを保持し続けないようクリアする
			p.settings.ClearAccessToken()
			p.mu.Lock()
			p.lastError = err.Error()
			p.lastPollAt = now
			p.mu.Unlock()
			return 0, true
		}

		p.mu.Lock()
		p.consecutiveErrors++
		n := p.consecutiveErrors
		p.lastError = err.Error()
		p.lastPollAt = now
		p.mu.Unlock()

		delay := CalculateBackoff(n-1, p.interval, p.backoffMax)
		p.logger.Warn("寄付フィードの取得に失敗しました。バックオフします",
			slog.String("error", err.Error()),
			slog.Int("consecutive_errors", n),
			slog.Duration("next_delay", delay),
		)
		return delay, false
	}

	p.metrics.RecordPollCycle(true)
	p.mu.Lock()
	p.consecutiveErrors = 0
	p.lastError = ""
	p.lastPollAt = now
	p.mu.Unlock()

	// フィードは新しい順で返るため、古い順に評価する
	for i := len(donations) - 1; i >= 0; i-- {
		p.evaluate(ctx, donations[i])
	}

	return p.interval, false
}

// evaluate は寄付1件を評価し、条件を満たす場合に動画生成を起動する。
// 評価が完了した寄付は処理済みとして記録する。ただし為替レートが
// 確認できなかった寄付は記録せず、次サイクルで再評価する
// （鮮度ウィンドウを超えた時点で自然にスキップされる）。
func (p *Poller) evaluate(ctx context.Context, d model.Donation) {
	p.mu.Lock()
	alreadySeen := p.seen.Contains(d.ID)
	p.mu.Unlock()
	if alreadySeen {
		return
	}

	if d.IsTest {
		p.markSeen(d.ID)
		p.logger.Debug("テスト寄付をスキップしました",
			slog.String("donation_id", d.ID),
		)
		return
	}

	if d.CreatedAt.IsZero() || time.Since(d.CreatedAt) > p.freshnessWindow {
		p.markSeen(d.ID)
		p.logger.Debug("鮮度ウィンドウ外の寄付をスキップしました",
			slog.String("donation_id", d.ID),
			slog.Time("created_at", d.CreatedAt),
		)
		return
	}

	amountRUB, err := p.converter.Convert(ctx, d.Amount, d.Currency)
	if err != nil {
		p.logger.Warn("為替レートを確認できないため評価を保留します",
			slog.String("donation_id", d.ID),
			slog.String("currency", d.Currency),
			slog.String("error", err.Error()),
		)
		return
	}

	p.mu.Lock()
	p.recent.Add(d)
	p.donationsProcessed++
	p.mu.Unlock()
	p.metrics.RecordDonationProcessed()

	// 閾値は評価の時点で読み直す（実行中の変更を即時反映）
	threshold := p.settings.Threshold()
	if amountRUB < threshold {
		p.markSeen(d.ID)
		p.logger.Debug("閾値未満の寄付です",
			slog.String("donation_id", d.ID),
			slog.Float64("amount_rub", amountRUB),
			slog.Float64("threshold_rub", threshold),
		)
		return
	}

	event := model.DonationEvent{Donation: d, AmountRUB: amountRUB}
	if err := p.trigger.TriggerFromDonation(ctx, event); err != nil {
		if errors.Is(err, model.ErrBusy) {
			// ジョブ実行中の寄付はキューせず破棄する
			p.logger.Warn("生成ジョブ実行中のため寄付の動画生成をスキップします",
				slog.String("donation_id", d.ID),
				slog.String("username", d.Username),
			)
		} else {
			p.logger.Error("動画生成の起動に失敗しました",
				slog.String("donation_id", d.ID),
				slog.String("error", err.Error()),
			)
		}
		p.markSeen(d.ID)
		return
	}

	p.mu.Lock()
	p.videosTriggered++
	p.mu.Unlock()
	p.metrics.RecordVideoTriggered()
	p.logger.Info("閾値を超えた寄付を検出しました。動画生成を開始します",
		slog.String("donation_id", d.ID),
		slog.String("username", d.Username),
		slog.Float64("amount_rub", amountRUB),
		slog.Float64("threshold_rub", threshold),
	)
	p.markSeen(d.ID)
}

func (p *Poller) markSeen(id string) {
	p.mu.Lock()
	p.seen.Add(id)
	p.mu.Unlock()
}
