package model

import "time"

// PlaybackSlot は再生キューの読み取り結果を表す。
// Requestedがtrueの場合は強制再生リクエストであり、
// 同一RequestIDに対してtrueが返るのは全コンシューマーを通じて1回のみ。
type PlaybackSlot struct {
	VideoRef  string    `json:"video_ref"`
	Requested bool      `json:"requested"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// VideoInfo は生成済み動画ファイルのメタデータ。
type VideoInfo struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created"`
}
