package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/simbiat/fftracker/internal/model"
)

func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		apiErr     *model.APIError
	}{
		{"未認証", http.StatusUnauthorized, model.NewUnauthorizedError()},
		{"更新権限なし", http.StatusForbidden, model.NewRefreshForbiddenError()},
		{"未登録エンティティ", http.StatusNotFound, model.NewEntityNotFoundError(model.EntityCharacter, "1")},
		{"取得元が利用不可", http.StatusServiceUnavailable, model.NewSourceUnavailableError()},
		{"レート制限", http.StatusTooManyRequests, model.NewRateLimitError()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.statusCode, tt.apiErr)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != jsonContentType {
				t.Errorf("Content-Type = %q, want %q", ct, jsonContentType)
			}

			var raw map[string]string
			if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
				t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
			}
			want := map[string]string{
				"code":     tt.apiErr.Code,
				"message":  tt.apiErr.Message,
				"category": tt.apiErr.Category,
				"action":   tt.apiErr.Action,
			}
			for field, v := range want {
				if raw[field] != v {
					t.Errorf("%s = %q, want %q", field, raw[field], v)
				}
			}
		})
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
	}
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

func TestWriteJSON(t *testing.T) {
	t.Run("値をエンコードする", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "registered"})

		if w.Code != http.StatusAccepted {
			t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
		}
		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
		}
		if body["status"] != "registered" {
			t.Errorf("status = %q, want registered", body["status"])
		}
	})

	t.Run("エンコードできない値は500", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]float64{"v": math.NaN()})

		if w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		var body ErrorResponseBody
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("代替の本文もJSONであるべき: %v", err)
		}
		if body.Code != model.ErrCodeInternal {
			t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
		}
	})
}
