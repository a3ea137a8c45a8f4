package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort        string
	MetricsPort       string
	CORSAllowedOrigin string
	SessionCookieName string
	CookieDomain      string
	CookieSecure      bool

	// Logging
	LogLevel string

	// Tracker
	StrictMode      bool
	RefreshCooldown time.Duration
	ThrottleWait    time.Duration

	// Lodestone
	LodestoneBaseURL       string
	LodestoneTimeout       time.Duration
	LodestoneMaxSize       int64
	LodestoneRatePerSecond float64
	LodestoneBurst         int
	LodestoneUserAgent     string
	LodestoneAllowedHosts  []string

	// Worker
	WorkerInterval      time.Duration
	WorkerBatchSize     int
	WorkerMaxConcurrent int
	WorkerMaxAttempts   int
	CleanupInterval     time.Duration
	PruneBatchSize      int

	// Assets
	AssetDir          string
	AssetPublicPrefix string

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitPublic  int
	RateLimitRefresh int
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがある場合は先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf(".envの読み込みに失敗しました: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.SessionCookieName = getEnvString("SESSION_COOKIE_NAME", "session_id")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", true)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.StrictMode = getEnvBool("STRICT_MODE", false)
	cfg.RefreshCooldown = getEnvDuration("REFRESH_COOLDOWN", 10*time.Minute)
	cfg.ThrottleWait = getEnvDuration("THROTTLE_WAIT", 60*time.Second)
	cfg.LodestoneBaseURL = getEnvString("LODESTONE_BASE_URL", "https://na.finalfantasyxiv.com")
	cfg.LodestoneTimeout = getEnvDuration("LODESTONE_TIMEOUT", 15*time.Second)
	cfg.LodestoneMaxSize = getEnvInt64("LODESTONE_MAX_SIZE", 5242880)
	cfg.LodestoneRatePerSecond = getEnvFloat("LODESTONE_RATE_PER_SECOND", 1)
	cfg.LodestoneBurst = getEnvInt("LODESTONE_BURST", 2)
	cfg.LodestoneUserAgent = getEnvString("LODESTONE_USER_AGENT", "")
	cfg.LodestoneAllowedHosts = getEnvList("LODESTONE_ALLOWED_HOSTS", []string{"finalfantasyxiv.com"})
	cfg.WorkerInterval = getEnvDuration("WORKER_INTERVAL", 30*time.Second)
	cfg.WorkerBatchSize = getEnvInt("WORKER_BATCH_SIZE", 20)
	cfg.WorkerMaxConcurrent = getEnvInt("WORKER_MAX_CONCURRENT", 4)
	cfg.WorkerMaxAttempts = getEnvInt("WORKER_MAX_ATTEMPTS", 5)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.PruneBatchSize = getEnvInt("PRUNE_BATCH_SIZE", 100)
	cfg.AssetDir = getEnvString("ASSET_DIR", "./assets")
	cfg.AssetPublicPrefix = getEnvString("ASSET_PUBLIC_PREFIX", "/assets/images/fftracker")
	cfg.RateLimitPublic = getEnvInt("RATE_LIMIT_PUBLIC", 120)
	cfg.RateLimitRefresh = getEnvInt("RATE_LIMIT_REFRESH", 10)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var list []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	if len(list) == 0 {
		return defaultVal
	}
	return list
}
