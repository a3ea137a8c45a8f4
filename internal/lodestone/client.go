// Package lodestone はFINAL FANTASY XIV The Lodestoneのスクレイピングクライアントを提供する。
// リクエストはレートリミッターで間隔を空け、サーキットブレーカーで保護される。
package lodestone

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Recorder はLodestoneリクエストのメトリクスを記録するインターフェース。
type Recorder interface {
	RecordSourceRequest(endpoint string, statusCode int, duration time.Duration)
	RecordSourceThrottled()
	RecordBreakerState(name string, state string)
}

// Config はClientの設定。
type Config struct {
	BaseURL       string
	UserAgent     string
	MaxBodySize   int64
	RatePerSecond float64
	Burst         int
	// SearchCacheTTL はアチーブメント検索結果のキャッシュ期間。
	SearchCacheTTL time.Duration
}

// DefaultConfig はデフォルト設定を返す。
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://na.finalfantasyxiv.com",
		UserAgent:      "fftracker/1.0 (+https://github.com/simbiat/fftracker)",
		MaxBodySize:    5 << 20,
		RatePerSecond:  1,
		Burst:          2,
		SearchCacheTTL: 6 * time.Hour,
	}
}

// Client はLodestoneのページを取得・解析する。
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
	searchCache *cache.Cache
	recorder    Recorder
	logger      *slog.Logger
	baseURL     string
	userAgent   string
	maxBodySize int64
}

// NewClient はClientを生成する。
// httpClientには本番ではSSRF防止機能付きのクライアントを渡す。recorderはnilでもよい。
func NewClient(httpClient *http.Client, cfg Config, recorder Recorder, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.SearchCacheTTL <= 0 {
		cfg.SearchCacheTTL = def.SearchCacheTTL
	}

	c := &Client{
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		searchCache: cache.New(cfg.SearchCacheTTL, 2*cfg.SearchCacheTTL),
		recorder:    recorder,
		logger:      logger,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		maxBodySize: cfg.MaxBodySize,
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "lodestone",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Lodestoneサーキットブレーカーの状態が変化しました",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if recorder != nil {
				recorder.RecordBreakerState(name, to.String())
			}
		},
		IsSuccessful: isBreakerNeutral,
	})

	return c
}

// getDocument はpathのページを取得してHTMLドキュメントとして返す。
// endpointはメトリクスとログに使うページ種別。
func (c *Client) getDocument(ctx context.Context, endpoint, path string) (*goquery.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("リクエスト待機が中断されました: %w", err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, endpoint, path)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTMLの解析に失敗しました: %w", err)
	}
	return doc, nil
}

// fetch はHTTPリクエストを1回実行し、ボディを返す。
func (c *Client) fetch(ctx context.Context, endpoint, path string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Lodestoneへのリクエストに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	if c.recorder != nil {
		c.recorder.RecordSourceRequest(endpoint, resp.StatusCode, duration)
	}

	if err := ClassifyStatus(resp.StatusCode); err != nil {
		if errors.Is(err, ErrThrottled) && c.recorder != nil {
			c.recorder.RecordSourceThrottled()
		}
		c.logger.Warn("Lodestoneがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: レスポンスボディの読み取りに失敗しました: %v", ErrUnavailable, err)
	}

	c.logger.Debug("Lodestoneページを取得しました",
		slog.String("endpoint", endpoint),
		slog.String("path", path),
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return body, nil
}

// BreakerState はサーキットブレーカーの現在の状態を返す。
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
