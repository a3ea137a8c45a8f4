package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/simbiat/fftracker/internal/model"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	rl := NewRateLimiter(cfg, testLogger(&buf))
	t.Cleanup(rl.Stop)
	return rl, &buf
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.PublicPerMinute != 120 {
		t.Errorf("PublicPerMinute = %d, want 120", cfg.PublicPerMinute)
	}
	if cfg.RefreshBurst != 10 {
		t.Errorf("RefreshBurst = %d, want 10", cfg.RefreshBurst)
	}
	if cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("CleanupInterval = %v, want 5m", cfg.CleanupInterval)
	}
}

func TestPublicMiddleware_LimitsByIP(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	cfg.PublicPerMinute = 3
	rl, buf := newTestRateLimiter(t, cfg)
	handler := rl.PublicMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/ffxiv/character/1", nil)
		req.RemoteAddr = "203.0.113.5:4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ffxiv/character/1", nil)
	req.RemoteAddr = "203.0.113.5:4001"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if !strings.Contains(w.Body.String(), model.ErrCodeRateLimitExceeded) {
		t.Errorf("body = %s, want code %s", w.Body.String(), model.ErrCodeRateLimitExceeded)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-Afterヘッダーが設定されるべき")
	}
	if !strings.Contains(buf.String(), `"limit_type":"public"`) {
		t.Errorf("超過がログに記録されるべき: %s", buf.String())
	}

	// 別のIPは影響を受けない
	req = httptest.NewRequest(http.MethodGet, "/api/ffxiv/character/1", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("別IP: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRefreshMiddleware_LimitsPerUser(t *testing.T) {
	rl, buf := newTestRateLimiter(t, RateLimiterConfig{
		PublicPerMinute: 100,
		RefreshRate:     rate.Limit(1.0 / 60.0),
		RefreshBurst:    2,
		CleanupInterval: time.Minute,
	})
	handler := rl.RefreshMiddleware()(okHandler())

	send := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/ffxiv/character/1/update", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := send("user-1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := send("user-1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-Afterが数値であるべき: %v", err)
	}
	if retryAfter != 60 {
		t.Errorf("Retry-After = %d, want 60", retryAfter)
	}
	if !strings.Contains(buf.String(), "user-1") {
		t.Errorf("超過したユーザーがログに記録されるべき: %s", buf.String())
	}

	if w := send("user-2"); w.Code != http.StatusOK {
		t.Errorf("別ユーザー: status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := rl.LimiterCount(); got != 2 {
		t.Errorf("LimiterCount = %d, want 2", got)
	}
}

func TestRefreshMiddleware_NoUser_Returns401(t *testing.T) {
	rl, _ := newTestRateLimiter(t, DefaultRateLimiterConfig())
	handler := rl.RefreshMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/ffxiv/character/1/update", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	cfg.CleanupInterval = time.Hour
	rl, _ := newTestRateLimiter(t, cfg)

	rl.limiterFor("stale")
	rl.limiterFor("fresh")

	rl.mu.Lock()
	rl.limiters["stale"].lastAccess = time.Now().Add(-3 * time.Hour)
	rl.mu.Unlock()

	rl.cleanup(time.Now())

	if got := rl.LimiterCount(); got != 1 {
		t.Fatalf("LimiterCount = %d, want 1", got)
	}
	rl.mu.Lock()
	_, ok := rl.limiters["fresh"]
	rl.mu.Unlock()
	if !ok {
		t.Error("最近アクセスされたエントリは残るべき")
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	rl := NewRateLimiter(DefaultRateLimiterConfig(), testLogger(&buf))
	rl.Stop()
	rl.Stop()
}

func TestWriteRateLimitResponse_RetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		limit rate.Limit
		want  string
	}{
		{"毎秒2回", rate.Limit(2), "1"},
		{"毎分10回", rate.Limit(10.0 / 60.0), "6"},
		{"ゼロ", rate.Limit(0), "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeRateLimitResponse(w, tt.limit)
			if got := w.Header().Get("Retry-After"); got != tt.want {
				t.Errorf("Retry-After = %q, want %q", got, tt.want)
			}
			if w.Code != http.StatusTooManyRequests {
				t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
			}
		})
	}
}
