package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/donaman/internal/middleware"
	"github.com/hitoshi/donaman/internal/model"
)

// SettingsService は設定ハンドラーが必要とするサービスインターフェース。
type SettingsService interface {
	Threshold() float64
	SetThreshold(rub float64)
	AccessToken() string
	SetAccessToken(token string)
	ClearAccessToken()
	SystemPrompt() string
	SetSystemPrompt(prompt string)
}

// ThresholdConverter は閾値を他通貨で指定された場合の換算インターフェース。
type ThresholdConverter interface {
	Convert(ctx context.Context, amount float64, from string) (float64, error)
}

// PollerControl はトークン保存・削除に連動したポーリング制御のインターフェース。
type PollerControl interface {
	Start(token string) error
	Stop()
}

// SettingsHandler は実行時設定のHTTPハンドラー。
type SettingsHandler struct {
	settings  SettingsService
	converter ThresholdConverter
	poller    PollerControl
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(settings SettingsService, converter ThresholdConverter, poller PollerControl) *SettingsHandler {
	return &SettingsHandler{settings: settings, converter: converter, poller: poller}
}

// thresholdRequest は閾値更新リクエスト。threshold_rubでの直接指定と、
// amount+currencyでの他通貨指定のどちらかを受け付ける。
type thresholdRequest struct {
	ThresholdRUB *float64 `json:"threshold_rub"`
	Amount       *float64 `json:"amount"`
	Currency     string   `json:"currency"`
}

type accessTokenRequest struct {
	Token string `json:"token"`
}

type systemPromptRequest struct {
	Prompt string `json:"prompt"`
}

// Get は現在の設定を返す。トークンは値そのものではなく有無のみ返す。
// GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"threshold_rub":    h.settings.Threshold(),
		"has_access_token": h.settings.AccessToken() != "",
		"system_prompt":    h.settings.SystemPrompt(),
	})
}

// GetThreshold は現在の閾値を返す。
// GET /api/threshold
func (h *SettingsHandler) GetThreshold(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"threshold_rub": h.settings.Threshold()})
}

// UpdateThreshold は閾値を更新する。以後の寄付評価に即時反映される。
// threshold_rubによる直接指定か、amount+currencyによる他通貨指定を受け付け、
// 後者は現在の為替レートでRUBへ換算して保存する。
// POST /api/threshold
func (h *SettingsHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	rub, err := h.resolveThreshold(r.Context(), req)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	h.settings.SetThreshold(rub)
	writeJSON(w, http.StatusOK, map[string]float64{"threshold_rub": h.settings.Threshold()})
}

// resolveThreshold はリクエストからRUB建ての閾値を決定する。
func (h *SettingsHandler) resolveThreshold(ctx context.Context, req thresholdRequest) (float64, error) {
	switch {
	case req.ThresholdRUB != nil:
		if *req.ThresholdRUB < 0 {
			return 0, model.NewInvalidAmountError("負の値は指定できません")
		}
		return *req.ThresholdRUB, nil

	case req.Amount != nil:
		if *req.Amount < 0 {
			return 0, model.NewInvalidAmountError("負の値は指定できません")
		}
		if req.Currency == "" {
			return 0, model.NewInvalidAmountError("amount指定にはcurrencyが必要です")
		}
		rub, err := h.converter.Convert(ctx, *req.Amount, req.Currency)
		if err != nil {
			if errors.Is(err, model.ErrRateUnavailable) {
				return 0, model.NewRateUnavailableError(req.Currency)
			}
			return 0, err
		}
		return rub, nil

	default:
		return 0, model.NewInvalidAmountError("threshold_rubまたはamountを指定してください")
	}
}

// UpdateAccessToken はDonationAlertsのアクセストークンを保存し、
// 停止中であればポーリングを自動開始する。
// POST /api/access-token
func (h *SettingsHandler) UpdateAccessToken(w http.ResponseWriter, r *http.Request) {
	var req accessTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}
	if req.Token == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingTokenError())
		return
	}

	h.settings.SetAccessToken(req.Token)

	// 実行中の場合は保存のみ（新しいトークンは次のフェッチから使われる）
	if err := h.poller.Start(""); err != nil && !errors.Is(err, model.ErrAlreadyRunning) {
		middleware.WriteDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"has_access_token": true})
}

// DeleteAccessToken はポーリングを停止し、保存済みのアクセストークンをクリアする。
// DELETE /api/access-token
func (h *SettingsHandler) DeleteAccessToken(w http.ResponseWriter, r *http.Request) {
	h.poller.Stop()
	h.settings.ClearAccessToken()
	writeJSON(w, http.StatusOK, map[string]bool{"has_access_token": false})
}

// GetSystemPrompt は現在のシステムプロンプトを返す。
// GET /api/system-prompt
func (h *SettingsHandler) GetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"prompt": h.settings.SystemPrompt()})
}

// UpdateSystemPrompt はシステムプロンプトを更新する。空文字列でクリアできる。
// POST /api/system-prompt
func (h *SettingsHandler) UpdateSystemPrompt(w http.ResponseWriter, r *http.Request) {
	var req systemPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	h.settings.SetSystemPrompt(req.Prompt)
	writeJSON(w, http.StatusOK, map[string]string{"prompt": h.settings.SystemPrompt()})
}
