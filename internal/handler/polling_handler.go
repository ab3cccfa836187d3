// Package handler はAPIエンドポイントのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/donaman/internal/middleware"
	"github.com/hitoshi/donaman/internal/model"
)

// PollerService はポーリングハンドラーが必要とするサービスインターフェース。
type PollerService interface {
	// Start はポーリングを開始する。tokenが非空の場合は保存してから開始する。
	Start(token string) error
	// Stop はポーリングを停止する。停止済みの場合は何もしない。
	Stop()
	// Stats は統計のスナップショットを返す。
	Stats() model.PollerStats
	// RecentDonations は直近に観測した寄付を新しい順で返す。
	RecentDonations() []model.Donation
}

// FeedProbe は疎通確認に使用するフィードクライアントのインターフェース。
type FeedProbe interface {
	// FetchRecent は直近の寄付を取得する。疎通確認では件数のみ使用する。
	FetchRecent(ctx context.Context) ([]model.Donation, error)
}

// PollingHandler はポーリング制御のHTTPハンドラー。
type PollingHandler struct {
	poller PollerService
	feed   FeedProbe
}

// NewPollingHandler はPollingHandlerを生成する。
func NewPollingHandler(poller PollerService, feed FeedProbe) *PollingHandler {
	return &PollingHandler{poller: poller, feed: feed}
}

// startPollingRequest はポーリング開始リクエストのボディ。トークンは省略可能。
type startPollingRequest struct {
	Token string `json:"token"`
}

// donationResponse は寄付情報のAPIレスポンス。
type donationResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Start はポーリング開始を処理する。
// POST /api/polling/start
func (h *PollingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startPollingRequest
	// ボディは省略可能（保存済みトークンで開始する）
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.poller.Start(req.Token); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"state": string(model.PollerStateRunning)})
}

// Stop はポーリング停止を処理する。
// POST /api/polling/stop
func (h *PollingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.poller.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"state": string(model.PollerStateStopped)})
}

// Status はポーリング統計を返す。
// GET /api/polling/status
func (h *PollingHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.poller.Stats())
}

// TestConnection はフィードへの疎通確認を行う。
// 認証失効は401、接続障害は503として報告する。
// POST /api/test-connection
func (h *PollingHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	donations, err := h.feed.FetchRecent(r.Context())
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                true,
		"donations_visible": len(donations),
	})
}

// ListDonations は直近に観測した寄付の一覧を返す。
// limitクエリで件数を制限できる（省略時は全件）。
// GET /api/donations?limit=N
func (h *PollingHandler) ListDonations(w http.ResponseWriter, r *http.Request) {
	donations := h.poller.RecentDonations()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit >= 0 && limit < len(donations) {
			donations = donations[:limit]
		}
	}

	resp := make([]donationResponse, 0, len(donations))
	for _, d := range donations {
		resp = append(resp, donationResponse{
			ID:        d.ID,
			Username:  d.Username,
			Amount:    d.Amount,
			Currency:  d.Currency,
			Message:   d.Message,
			CreatedAt: d.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"donations": resp})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeInvalidRequestBody はリクエストボディ解析失敗の統一レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}
