package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/donaman/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteDomainError はドメイン層のエラーをHTTPステータスとAPIErrorへ変換して書き込む。
// APIErrorはそのまま、センチネルエラーは対応するレスポンスへマッピングする。
// 未知のエラーは500として扱う。
func WriteDomainError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, statusForCode(apiErr.Code), apiErr)
		return
	}

	switch {
	case errors.Is(err, model.ErrMissingToken):
		WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingTokenError())
	case errors.Is(err, model.ErrAlreadyRunning):
		WriteErrorResponse(w, http.StatusConflict, model.NewAlreadyRunningError())
	case errors.Is(err, model.ErrBusy):
		WriteErrorResponse(w, http.StatusConflict, model.NewGenerationBusyError())
	case errors.Is(err, model.ErrUnauthorized):
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	case errors.Is(err, model.ErrUnavailable):
		WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewFeedUnavailableError())
	default:
		WriteInternalServerError(w)
	}
}

// statusForCode はAPIErrorのコードからHTTPステータスコードを決定する。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeMissingToken, model.ErrCodeInvalidPrompt, model.ErrCodeInvalidAmount, model.ErrCodeInvalidFilename:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeVideoNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyRunning, model.ErrCodeGenerationBusy:
		return http.StatusConflict
	case model.ErrCodeRateUnavailable, model.ErrCodeFeedUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
