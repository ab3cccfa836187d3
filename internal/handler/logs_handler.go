package handler

import (
	"net/http"
	"strconv"

	"github.com/hitoshi/donaman/internal/logger"
)

// LogSource は診断用の直近ログ取得インターフェース。
type LogSource interface {
	// Recent は直近のログレコードを新しい順で最大limit件返す。
	Recent(limit int) []logger.Entry
}

// LogsHandler は直近ログの診断用HTTPハンドラー。
type LogsHandler struct {
	logs LogSource
}

// NewLogsHandler はLogsHandlerを生成する。
func NewLogsHandler(logs LogSource) *LogsHandler {
	return &LogsHandler{logs: logs}
}

// List は直近のログレコードを新しい順で返す。
// limitクエリで件数を制限できる（省略時は100件）。
// GET /api/logs?limit=N
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries := h.logs.Recent(limit)
	if entries == nil {
		entries = []logger.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}
