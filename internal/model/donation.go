// Package model はドメインモデルを定義する。
package model

import "time"

// Donation はDonationAlertsフィードから観測された寄付を表す。
// フィード側でIDが採番され、本システム内ではイミュータブルに扱う。
type Donation struct {
	ID        string
	Username  string
	Amount    float64
	Currency  string
	Message   string
	IsTest    bool
	CreatedAt time.Time
}

// DonationEvent は閾値を超えた寄付の評価結果。
// ポーラーからオーケストレーターへの生成リクエストに使用する。
type DonationEvent struct {
	Donation  Donation
	AmountRUB float64
}

// PollerState はポーラーの実行状態を表す。
type PollerState string

const (
	// PollerStateStopped は停止状態。
	PollerStateStopped PollerState = "stopped"
	// PollerStateRunning は実行中状態。
	PollerStateRunning PollerState = "running"
)

// PollerStats はポーラーの統計スナップショット。診断用の読み取り専用データ。
type PollerStats struct {
	State              PollerState `json:"state"`
	HasToken           bool        `json:"has_token"`
	DonationsProcessed int64       `json:"donations_processed"`
	VideosTriggered    int64       `json:"videos_triggered"`
	ConsecutiveErrors  int         `json:"consecutive_errors"`
	LastPollAt         *time.Time  `json:"last_poll_at,omitempty"`
	LastError          string      `json:"last_error,omitempty"`
	SeenCount          int         `json:"seen_count"`
}
