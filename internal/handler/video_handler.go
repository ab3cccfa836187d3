package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/donaman/internal/generation"
	"github.com/hitoshi/donaman/internal/middleware"
	"github.com/hitoshi/donaman/internal/model"
)

// VideoService は動画ハンドラーが必要とするファイルストアのインターフェース。
type VideoService interface {
	// List は保存済み動画のメタデータを新しい順で返す。
	List() ([]model.VideoInfo, error)
	// Latest は最新の動画メタデータを返す。動画が存在しない場合はfalseを返す。
	Latest() (model.VideoInfo, bool, error)
	// Resolve はファイル名を検証し、保存ディレクトリ内の絶対パスを返す。
	Resolve(filename string) (string, error)
	// Delete は指定された動画ファイルを削除する。
	Delete(filename string) error
}

// PlaybackService は再生ハンドラーが必要とするキューのインターフェース。
type PlaybackService interface {
	// RequestPlay は強制再生リクエストを作成し、リクエストIDを返す。
	RequestPlay(videoRef string) string
	// ReadLatest は現在の再生スロットを返す。
	ReadLatest() model.PlaybackSlot
}

// VideoHandler は動画ファイルと再生制御のHTTPハンドラー。
type VideoHandler struct {
	store    VideoService
	playback PlaybackService
}

// NewVideoHandler はVideoHandlerを生成する。
func NewVideoHandler(store VideoService, playback PlaybackService) *VideoHandler {
	return &VideoHandler{store: store, playback: playback}
}

type playRequest struct {
	Filename string `json:"filename"`
}

// widgetLatestResponse はOBSウィジェット向けの再生スロットレスポンス。
type widgetLatestResponse struct {
	Filename      string `json:"filename"`
	VideoURL      string `json:"video_url"`
	PlayRequested bool   `json:"play_requested"`
	RequestID     string `json:"request_id,omitempty"`
}

// List は保存済み動画の一覧を返す。
// GET /api/videos
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	videos, err := h.store.List()
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
}

// Delete は指定された動画を削除する。
// DELETE /api/videos/{filename}
func (h *VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	if err := h.store.Delete(filename); err != nil {
		writeVideoError(w, err, filename)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestPlay は指定動画の強制再生リクエストを作成する。
// POST /api/play
func (h *VideoHandler) RequestPlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	// 存在する動画のみ再生リクエストを受け付ける
	if _, err := h.store.Resolve(req.Filename); err != nil {
		writeVideoError(w, err, req.Filename)
		return
	}

	requestID := h.playback.RequestPlay(req.Filename)
	writeJSON(w, http.StatusOK, map[string]string{"request_id": requestID})
}

// WidgetLatest はOBSウィジェットへ現在の再生スロットを返す。
// 強制再生リクエストの配信は全コンシューマーを通じて1回のみ。
// キューが空の場合（プロセス再起動直後）はディスク上の最新動画を返す。
// GET /api/widget/latest-video
func (h *VideoHandler) WidgetLatest(w http.ResponseWriter, r *http.Request) {
	slot := h.playback.ReadLatest()

	filename := slot.VideoRef
	if filename == "" {
		latest, ok, err := h.store.Latest()
		if err != nil {
			middleware.WriteInternalServerError(w)
			return
		}
		if ok {
			filename = latest.Filename
		}
	}

	resp := widgetLatestResponse{
		Filename:      filename,
		PlayRequested: slot.Requested,
		RequestID:     slot.RequestID,
	}
	if filename != "" {
		resp.VideoURL = "/videos/" + filename
	}
	writeJSON(w, http.StatusOK, resp)
}

// ServeFile は動画ファイルを配信する。
// GET /videos/{filename}
func (h *VideoHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	path, err := h.store.Resolve(filename)
	if err != nil {
		writeVideoError(w, err, filename)
		return
	}
	http.ServeFile(w, r, path)
}

// writeVideoError は動画ファイル操作のエラーをAPIレスポンスへ変換する。
func writeVideoError(w http.ResponseWriter, err error, filename string) {
	switch {
	case errors.Is(err, generation.ErrInvalidFilename):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidFilenameError())
	case errors.Is(err, generation.ErrVideoNotFound):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewVideoNotFoundError(filename))
	default:
		middleware.WriteInternalServerError(w)
	}
}
