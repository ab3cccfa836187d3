package poll

import "github.com/hitoshi/donaman/internal/model"

// recentBuffer は直近に観測した寄付の上限付きバッファ。
// 診断用のAPI応答に使用する。新しい順に保持し、同一IDは二重登録しない。
// スレッドセーフではなく、呼び出し側（ポーラー）がロックで保護する。
type recentBuffer struct {
	capacity  int
	donations []model.Donation
}

func newRecentBuffer(capacity int) *recentBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &recentBuffer{capacity: capacity}
}

// Add は寄付を先頭（最新）へ追加する。登録済みIDは無視する。
func (b *recentBuffer) Add(d model.Donation) {
	for _, existing := range b.donations {
		if existing.ID == d.ID {
			return
		}
	}
	b.donations = append([]model.Donation{d}, b.donations...)
	if len(b.donations) > b.capacity {
		b.donations = b.donations[:b.capacity]
	}
}

// List は保持中の寄付を新しい順のコピーで返す。
func (b *recentBuffer) List() []model.Donation {
	out := make([]model.Donation, len(b.donations))
	copy(out, b.donations)
	return out
}
