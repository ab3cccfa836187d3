package model

import (
	"errors"
	"fmt"
)

// エラー分類のセンチネル。コンポーネント間の伝播にはこれらを使用し、
// HTTP境界でAPIErrorへ変換する。
var (
	// ErrAlreadyRunning はポーラーが既に実行中であることを示す。
	ErrAlreadyRunning = errors.New("poller already running")
	// ErrMissingToken はアクセストークン未設定を示す。
	ErrMissingToken = errors.New("access token not configured")
	// ErrUnauthorized は認証情報の失効を示す。ポーラーを停止させる。
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable は一時的なネットワーク/プロバイダー障害を示す。
	// バックオフ付きでリトライされ、致命的エラーとしては扱わない。
	ErrUnavailable = errors.New("provider unavailable")
	// ErrRateUnavailable は為替レートが確認できないことを示す。
	// 該当寄付の評価はスキップされ、閾値判定をデフォルトで通過させない。
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	// ErrBusy は生成ジョブが実行中で新規投入を受け付けられないことを示す。
	ErrBusy = errors.New("generation already in progress")
	// ErrTimeout はジョブのウォールクロックタイムアウト超過を示す。
	ErrTimeout = errors.New("generation timed out")
)

// RemoteError は生成プロバイダーが報告したジョブ失敗を表す。
// 該当ジョブの終端エラーであり、自動リトライはしない。
type RemoteError struct {
	Code   int
	Detail string
}

// Error はerrorインターフェースを実装する。
func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("remote error (code %d)", e.Code)
	}
	return fmt.Sprintf("remote error (code %d): %s", e.Code, e.Detail)
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, generation, playback, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingToken    = "MISSING_TOKEN"
	ErrCodeAlreadyRunning  = "ALREADY_RUNNING"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeFeedUnavailable = "FEED_UNAVAILABLE"
	ErrCodeGenerationBusy  = "GENERATION_BUSY"
	ErrCodeInvalidPrompt   = "INVALID_PROMPT"
	ErrCodeInvalidAmount   = "INVALID_AMOUNT"
	ErrCodeRateUnavailable = "RATE_UNAVAILABLE"
	ErrCodeInvalidFilename = "INVALID_FILENAME"
	ErrCodeVideoNotFound   = "VIDEO_NOT_FOUND"
)

// NewMissingTokenError はトークン未設定エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingToken,
		Message:  "DonationAlertsのアクセストークンが設定されていません。",
		Category: "auth",
		Action:   "設定画面からアクセストークンを保存してください。",
	}
}

// NewAlreadyRunningError はポーラー二重起動エラーを生成する。
func NewAlreadyRunningError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRunning,
		Message:  "ポーリングは既に実行中です。",
		Category: "validation",
		Action:   "停止してから再度開始してください。",
	}
}

// NewUnauthorizedError は認証情報失効エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "DonationAlertsの認証に失敗しました。",
		Category: "auth",
		Action:   "アクセストークンを再発行して保存し直してください。",
	}
}

// NewFeedUnavailableError はフィード一時障害エラーを生成する。
func NewFeedUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedUnavailable,
		Message:  "DonationAlertsに接続できませんでした。",
		Category: "system",
		Action:   "ネットワーク状態を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewGenerationBusyError は生成ジョブ多重投入エラーを生成する。
func NewGenerationBusyError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationBusy,
		Message:  "動画生成ジョブが実行中です。",
		Category: "generation",
		Action:   "現在のジョブが完了してから再度お試しください。",
	}
}

// NewInvalidPromptError はプロンプト検証エラーを生成する。
func NewInvalidPromptError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPrompt,
		Message:  "プロンプトが空です。",
		Category: "validation",
		Action:   "生成したい動画の内容をプロンプトに入力してください。",
	}
}

// NewInvalidAmountError は閾値金額の検証エラーを生成する。
func NewInvalidAmountError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("無効な金額です: %s", reason),
		Category: "validation",
		Action:   "0以上の数値を指定してください。",
	}
}

// NewRateUnavailableError は為替レート取得不能エラーを生成する。
func NewRateUnavailableError(currency string) *APIError {
	return &APIError{
		Code:     ErrCodeRateUnavailable,
		Message:  fmt.Sprintf("%s の為替レートを取得できませんでした。", currency),
		Category: "system",
		Action:   "通貨コードを確認するか、しばらく待ってから再度お試しください。",
	}
}

// NewInvalidFilenameError は不正なファイル名エラーを生成する。
func NewInvalidFilenameError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilename,
		Message:  "無効なファイル名です。",
		Category: "validation",
		Action:   "生成済み動画の一覧から正しいファイル名を指定してください。",
	}
}

// NewVideoNotFoundError は動画未検出エラーを生成する。
func NewVideoNotFoundError(filename string) *APIError {
	return &APIError{
		Code:     ErrCodeVideoNotFound,
		Message:  fmt.Sprintf("指定された動画が見つかりません: %s", filename),
		Category: "playback",
		Action:   "動画一覧を更新して再度お試しください。",
	}
}
