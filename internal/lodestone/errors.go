package lodestone

import (
	"errors"
	"fmt"
	"net/http"
)

// Lodestoneへのリクエスト結果の分類。
var (
	// ErrNotFound はページが存在しない（404/410）ことを示す。
	ErrNotFound = errors.New("lodestone: not found")
	// ErrForbidden はページが非公開（401/403）であることを示す。
	ErrForbidden = errors.New("lodestone: forbidden")
	// ErrThrottled はLodestoneにリクエストを制限された（429）ことを示す。
	ErrThrottled = errors.New("lodestone: throttled")
	// ErrUnavailable はLodestoneが利用できない（5xx、メンテナンス、サーキットオープン）ことを示す。
	ErrUnavailable = errors.New("lodestone: unavailable")
)

// ClassifyStatus はHTTPステータスコードを分類し、200系以外の場合は対応するエラーを返す。
func ClassifyStatus(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return fmt.Errorf("%w: HTTP %d", ErrNotFound, statusCode)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrForbidden, statusCode)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrThrottled, statusCode)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, statusCode)
	default:
		return fmt.Errorf("lodestone: unexpected HTTP status %d", statusCode)
	}
}

// isBreakerNeutral はサーキットブレーカーの失敗として数えないエラーかを返す。
// 存在しないページや非公開ページ、スロットリングはLodestone自体の障害ではない。
func isBreakerNeutral(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrThrottled)
}
