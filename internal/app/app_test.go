package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"golang.org/x/time/rate"

	"github.com/simbiat/fftracker/internal/config"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.DatabaseURL != testDatabaseURL {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, testDatabaseURL)
	}

	// グローバルロガーがJSON出力になっていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_AppliesLogLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "warn")

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	slog.Default().Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("LOG_LEVEL=warnではInfoログは出力されないべき: %s", buf.String())
	}

	slog.Default().Warn("should be written")
	if !bytes.Contains(buf.Bytes(), []byte("should be written")) {
		t.Error("Warnログは出力されるべき")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestRateLimiterConfig(t *testing.T) {
	tests := []struct {
		name       string
		public     int
		refresh    int
		wantPublic int
		wantRate   rate.Limit
		wantBurst  int
	}{
		{"設定値を1分あたりから変換する", 60, 30, 60, rate.Limit(0.5), 30},
		{"0以下はデフォルト値を使う", 0, 0, 120, rate.Limit(10.0 / 60), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rateLimiterConfig(&config.Config{
				RateLimitPublic:  tt.public,
				RateLimitRefresh: tt.refresh,
			})
			if got.PublicPerMinute != tt.wantPublic {
				t.Errorf("PublicPerMinute = %d, want %d", got.PublicPerMinute, tt.wantPublic)
			}
			if got.RefreshRate != tt.wantRate {
				t.Errorf("RefreshRate = %v, want %v", got.RefreshRate, tt.wantRate)
			}
			if got.RefreshBurst != tt.wantBurst {
				t.Errorf("RefreshBurst = %d, want %d", got.RefreshBurst, tt.wantBurst)
			}
		})
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	if got := maskDatabaseURL(testDatabaseURL); got != "postgres://u***@..." {
		t.Errorf("maskDatabaseURL() = %q", got)
	}
	if got := maskDatabaseURL("short"); got != "***" {
		t.Errorf("maskDatabaseURL(short) = %q, want ***", got)
	}
}
