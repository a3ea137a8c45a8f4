package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/simbiat/fftracker/internal/model"
)

// serveAndCapture はhandlerにreqを流し、出力された1行のアクセスログを返す。
func serveAndCapture(t *testing.T, wrap func(*slog.Logger) http.Handler, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	wrap(logger).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("JSONログの解析に失敗しました: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_StatusAndLevel(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantCode  float64
		wantLevel string
		wantBytes float64
	}{
		{
			name:      "WriteHeaderなしのWriteは200",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) },
			wantCode:  200,
			wantLevel: "INFO",
			wantBytes: 2,
		},
		{
			name:      "404はWarn",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			wantCode:  404,
			wantLevel: "WARN",
		},
		{
			name:      "503はError",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			wantCode:  503,
			wantLevel: "ERROR",
		},
		{
			name:      "何も書かない場合は200",
			handler:   func(w http.ResponseWriter, r *http.Request) {},
			wantCode:  200,
			wantLevel: "INFO",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := serveAndCapture(t, func(l *slog.Logger) http.Handler {
				return NewLoggingMiddleware(l)(tt.handler)
			}, httptest.NewRequest(http.MethodGet, "/api/ffxiv/character/1", nil))

			if entry["msg"] != "http_request" {
				t.Errorf("msg = %v, want http_request", entry["msg"])
			}
			if entry["method"] != http.MethodGet || entry["path"] != "/api/ffxiv/character/1" {
				t.Errorf("method/path = %v %v", entry["method"], entry["path"])
			}
			if entry["status"] != tt.wantCode {
				t.Errorf("status = %v, want %v", entry["status"], tt.wantCode)
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %v", entry["level"], tt.wantLevel)
			}
			if entry["bytes"] != tt.wantBytes {
				t.Errorf("bytes = %v, want %v", entry["bytes"], tt.wantBytes)
			}
			if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
				t.Errorf("duration_ms = %v, want >= 0", entry["duration_ms"])
			}
		})
	}
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-7")

	entry := serveAndCapture(t, func(l *slog.Logger) http.Handler {
		return chimw.RequestID(NewLoggingMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	}, req)

	if entry["request_id"] != "req-7" {
		t.Errorf("request_id = %v, want req-7", entry["request_id"])
	}
}

// 内側のセッションミドルウェアが解決したユーザーIDも記録されること。
func TestLoggingMiddleware_UserIDFromInnerSession(t *testing.T) {
	finder := &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-123"}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/ffxiv/character/1/update", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "sid"})

	entry := serveAndCapture(t, func(l *slog.Logger) http.Handler {
		inner := NewSessionMiddleware(finder, "", l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		return NewLoggingMiddleware(l)(inner)
	}, req)

	if entry["user_id"] != "user-123" {
		t.Errorf("user_id = %v, want user-123", entry["user_id"])
	}
}

func TestLoggingMiddleware_UserIDFromOuterContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-9"))

	entry := serveAndCapture(t, func(l *slog.Logger) http.Handler {
		return NewLoggingMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	}, req)

	if entry["user_id"] != "user-9" {
		t.Errorf("user_id = %v, want user-9", entry["user_id"])
	}
}

func TestLoggingMiddleware_Anonymous_OmitsUserAndRoute(t *testing.T) {
	entry := serveAndCapture(t, func(l *slog.Logger) http.Handler {
		return NewLoggingMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	}, httptest.NewRequest(http.MethodGet, "/health", nil))

	for _, key := range []string{"user_id", "route", "kind", "entity_id"} {
		if _, ok := entry[key]; ok {
			t.Errorf("%sは含まれるべきでない: %v", key, entry[key])
		}
	}
}

func TestLoggingMiddleware_IncludesRouteAndEntity(t *testing.T) {
	entry := serveAndCapture(t, func(l *slog.Logger) http.Handler {
		r := chi.NewRouter()
		r.Use(NewLoggingMiddleware(l))
		r.Get("/api/ffxiv/{type}/{id}", func(w http.ResponseWriter, r *http.Request) {})
		return r
	}, httptest.NewRequest(http.MethodGet, "/api/ffxiv/freecompany/9232379236109629819", nil))

	want := map[string]string{
		"route":     "/api/ffxiv/{type}/{id}",
		"kind":      "freecompany",
		"entity_id": "9232379236109629819",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %s", k, entry[k], v)
		}
	}
}
