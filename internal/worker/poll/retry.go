package poll

import (
	"errors"
	"time"

	"github.com/hitoshi/donaman/internal/model"
)

// fetchOutcome はフィード取得エラーの分類。
type fetchOutcome int

const (
	// outcomeRetry はバックオフ付きリトライが必要なエラー（ネットワーク障害等）。
	outcomeRetry fetchOutcome = iota
	// outcomeStop はポーリング停止が必要なエラー（認証失効、トークン未設定）。
	outcomeStop
)

// classifyFetchError はフィード取得エラーをポーラーの挙動へ分類する。
// リトライで回復しない認証系のエラーのみ停止とし、それ以外は
// 一時障害としてバックオフで粘る。
func classifyFetchError(err error) fetchOutcome {
	if errors.Is(err, model.ErrUnauthorized) || errors.Is(err, model.ErrMissingToken) {
		return outcomeStop
	}
	return outcomeRetry
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回はbase、2倍ずつ増加、最大max。
func CalculateBackoff(consecutiveErrors int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
