// Package playback はOBSウィジェット向けの再生スロット管理を提供する。
// 最新動画の参照と、TTL付きの強制再生リクエストを保持する。
// 強制再生はリクエストIDごとに全コンシューマーを通じて1回のみ配信され、
// 新しいリクエストは古いリクエストを上書きする（後勝ち）。
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/donaman/internal/model"
)

// metricsRecorder は再生キューが記録するメトリクスのインターフェース。
type metricsRecorder interface {
	RecordPlayRequested()
	RecordPlayDelivered()
}

// playSlot は未配信または配信済みの強制再生リクエスト。
type playSlot struct {
	videoRef  string
	requestID string
	createdAt time.Time
	delivered bool
}

// Queue は再生スロットのインメモリ保持。
// すべての操作はロック下の短い処理のみで、I/Oは行わない。
type Queue struct {
	logger  *slog.Logger
	metrics metricsRecorder
	ttl     time.Duration

	mu       sync.Mutex
	latest   string
	latestAt time.Time
	slot     *playSlot
}

// NewQueue はQueueの新しいインスタンスを生成する。
// ttlは強制再生リクエストの有効期限で、0以下の場合は10秒を使用する。
func NewQueue(logger *slog.Logger, metrics metricsRecorder, ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Queue{logger: logger, metrics: metrics, ttl: ttl}
}

// Publish は最新動画の参照を更新する。
// 動画生成完了時にオーケストレーターから呼ばれる。
func (q *Queue) Publish(videoRef string) {
	q.mu.Lock()
	q.latest = videoRef
	q.latestAt = time.Now()
	q.mu.Unlock()

	q.logger.Info("最新動画を更新しました",
		slog.String("video_ref", videoRef),
	)
}

// RequestPlay は指定動画の強制再生リクエストを作成し、リクエストIDを返す。
// 未配信のリクエストが残っていても上書きする（後勝ち）。
func (q *Queue) RequestPlay(videoRef string) string {
	requestID := uuid.NewString()

	q.mu.Lock()
	q.slot = &playSlot{
		videoRef:  videoRef,
		requestID: requestID,
		createdAt: time.Now(),
	}
	q.mu.Unlock()

	q.metrics.RecordPlayRequested()
	q.logger.Info("強制再生リクエストを作成しました",
		slog.String("video_ref", videoRef),
		slog.String("request_id", requestID),
	)
	return requestID
}

// ReadLatest は現在の再生スロットを返す。
// 有効期限内かつ未配信の強制再生リクエストがあれば、Requested=trueで返し、
// その時点で配信済みにする。同一リクエストIDでRequested=trueが返るのは
// 全コンシューマーを通じて1回のみ。それ以外は最新動画をRequested=falseで返す。
func (q *Queue) ReadLatest() model.PlaybackSlot {
	q.mu.Lock()

	if q.slot != nil {
		if time.Since(q.slot.createdAt) > q.ttl {
			// 期限切れリクエストは破棄する
			q.slot = nil
		} else if !q.slot.delivered {
			q.slot.delivered = true
			result := model.PlaybackSlot{
				VideoRef:  q.slot.videoRef,
				Requested: true,
				RequestID: q.slot.requestID,
				CreatedAt: q.slot.createdAt,
			}
			q.mu.Unlock()

			q.metrics.RecordPlayDelivered()
			q.logger.Info("強制再生リクエストを配信しました",
				slog.String("video_ref", result.VideoRef),
				slog.String("request_id", result.RequestID),
			)
			return result
		} else {
			// 配信済みリクエストは以後保持しない
			q.slot = nil
		}
	}

	result := model.PlaybackSlot{
		VideoRef:  q.latest,
		Requested: false,
		CreatedAt: q.latestAt,
	}
	q.mu.Unlock()
	return result
}
