package middleware

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/simbiat/fftracker/internal/model"
)

const jsonContentType = "application/json; charset=utf-8"

// fallbackBody はレスポンスのエンコードに失敗したときに返す本文。
var fallbackBody = []byte(`{"code":"` + model.ErrCodeInternal + `","message":"internal error","category":"system","action":""}` + "\n")

// ErrorResponseBody はAPIエラーの本文。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteJSON はvをエンコードしてから書き込む。
// エンコードに失敗した場合はstatusCodeを使わず500を返す。
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	body, err := json.Marshal(v)
	w.Header().Set("Content-Type", jsonContentType)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(fallbackBody)
		return
	}
	w.WriteHeader(statusCode)
	w.Write(append(body, '\n'))
}

// WriteErrorResponse はAPIErrorをErrorResponseBodyとして書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteJSON(w, statusCode, ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は原因を含まない500レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
