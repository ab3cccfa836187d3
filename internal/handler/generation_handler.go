package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/donaman/internal/middleware"
	"github.com/hitoshi/donaman/internal/model"
)

// GenerationService は生成ハンドラーが必要とするサービスインターフェース。
type GenerationService interface {
	// StartManual は手動投入されたプロンプトで動画生成を開始する。
	StartManual(prompt string) error
	// Status は現在（または直近）のジョブのスナップショットを返す。
	Status() model.GenerationJob
}

// GenerationHandler は動画生成のHTTPハンドラー。
type GenerationHandler struct {
	service GenerationService
}

// NewGenerationHandler はGenerationHandlerを生成する。
func NewGenerationHandler(service GenerationService) *GenerationHandler {
	return &GenerationHandler{service: service}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// generationStatusResponse はジョブスナップショットと進捗割合のレスポンス。
type generationStatusResponse struct {
	model.GenerationJob
	Progress int `json:"progress"`
}

// Generate は手動の動画生成投入を処理する。
// POST /api/generate
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := h.service.StartManual(req.Prompt); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	job := h.service.Status()
	writeJSON(w, http.StatusAccepted, generationStatusResponse{
		GenerationJob: job,
		Progress:      job.Progress(),
	})
}

// Status は生成ジョブの状態を返す。
// GET /api/generation-status
func (h *GenerationHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.service.Status()
	writeJSON(w, http.StatusOK, generationStatusResponse{
		GenerationJob: job,
		Progress:      job.Progress(),
	})
}
