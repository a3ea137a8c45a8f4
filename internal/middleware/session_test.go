package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/simbiat/fftracker/internal/model"
)

// --- モック定義 ---

type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsUserID(t *testing.T) {
	finder := &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "valid-session-id" {
				return &model.Session{
					ID:        "valid-session-id",
					UserID:    "user-123",
					ExpiresAt: time.Now().Add(1 * time.Hour),
				}, nil
			}
			return nil, nil
		},
	}

	var buf bytes.Buffer
	mw := NewSessionMiddleware(finder, "", testLogger(&buf))

	var capturedUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("エラーが発生すべきでない: %v", err)
		}
		capturedUserID = userID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/ffxiv/character/1/update", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "valid-session-id"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-123")
	}
}

func TestSessionMiddleware_CustomCookieName(t *testing.T) {
	finder := &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-9"}, nil
		},
	}

	var buf bytes.Buffer
	handler := NewSessionMiddleware(finder, "fft_session", testLogger(&buf))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "abc"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("デフォルト名のCookieは無視されるべき: status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "fft_session", Value: "abc"})
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSessionMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
		findFn func(ctx context.Context, id string) (*model.Session, error)
	}{
		{
			name:   "Cookieなし",
			cookie: nil,
		},
		{
			name:   "空のCookie",
			cookie: &http.Cookie{Name: DefaultSessionCookieName, Value: ""},
		},
		{
			name:   "存在しないセッション",
			cookie: &http.Cookie{Name: DefaultSessionCookieName, Value: "unknown"},
			findFn: func(ctx context.Context, id string) (*model.Session, error) {
				return nil, nil
			},
		},
		{
			name:   "ユーザーIDのないセッション",
			cookie: &http.Cookie{Name: DefaultSessionCookieName, Value: "orphan"},
			findFn: func(ctx context.Context, id string) (*model.Session, error) {
				return &model.Session{ID: id}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			called := false
			handler := NewSessionMiddleware(&mockSessionFinder{findByIDFn: tt.findFn}, "", testLogger(&buf))(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					called = true
				}),
			)

			req := httptest.NewRequest(http.MethodPost, "/api/ffxiv/character/1/update", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if called {
				t.Error("次のハンドラーが呼ばれるべきでない")
			}
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if !strings.Contains(w.Body.String(), model.ErrCodeUnauthorized) {
				t.Errorf("body = %s, want code %s", w.Body.String(), model.ErrCodeUnauthorized)
			}
		})
	}
}

func TestSessionMiddleware_RepositoryError_Returns503(t *testing.T) {
	var buf bytes.Buffer
	finder := &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, errors.New("connection refused")
		},
	}
	nextCalled := false
	handler := NewSessionMiddleware(finder, "", testLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultSessionCookieName, Value: "x"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(w.Body.String(), model.ErrCodeSourceUnavailable) {
		t.Errorf("body = %s, want code %s", w.Body.String(), model.ErrCodeSourceUnavailable)
	}
	if nextCalled {
		t.Error("セッションを確認できない場合は次のハンドラーを呼ぶべきでない")
	}
	if !strings.Contains(buf.String(), "connection refused") {
		t.Errorf("エラーがログに記録されるべき: %s", buf.String())
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); !errors.Is(err, ErrNoUserID) {
		t.Errorf("ユーザーIDがない場合はErrNoUserIDを返すべき: %v", err)
	}

	ctx := ContextWithUserID(context.Background(), "user-1")
	got, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("エラーが発生すべきでない: %v", err)
	}
	if got != "user-1" {
		t.Errorf("userID = %q, want %q", got, "user-1")
	}

	if _, err := UserIDFromContext(ContextWithUserID(context.Background(), "")); err == nil {
		t.Error("空のユーザーIDはエラーを返すべき")
	}
}
