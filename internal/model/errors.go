// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, entity, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidID          = "INVALID_ID"
	ErrCodeUnknownEntityType  = "UNKNOWN_ENTITY_TYPE"
	ErrCodeEntityNotFound     = "ENTITY_NOT_FOUND"
	ErrCodeAlreadyRegistered  = "ALREADY_REGISTERED"
	ErrCodeRegisterForbidden  = "REGISTER_FORBIDDEN"
	ErrCodeSourceUnavailable  = "SOURCE_UNAVAILABLE"
	ErrCodeRefreshFailed      = "REFRESH_FAILED"
	ErrCodeRefreshForbidden   = "REFRESH_FORBIDDEN"
	ErrCodeLinkFailed         = "LINK_FAILED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeCSRFFailed         = "CSRF_VALIDATION_FAILED"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidIDError はID形式エラーを生成する。
func NewInvalidIDError(t EntityType, id string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  fmt.Sprintf("%s のIDとして無効です: %s", t.Label(), id),
		Category: "validation",
		Action:   "Lodestoneのページに表示されているIDを指定してください。",
	}
}

// NewUnknownEntityTypeError は未知のエンティティ種別エラーを生成する。
func NewUnknownEntityTypeError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownEntityType,
		Message:  fmt.Sprintf("未対応のエンティティ種別です: %s", kind),
		Category: "validation",
		Action:   "character、freecompany、linkshell、crossworldlinkshell、pvpteam、achievement のいずれかを指定してください。",
	}
}

// NewEntityNotFoundError はエンティティ未登録エラーを生成する。
func NewEntityNotFoundError(t EntityType, id string) *APIError {
	return &APIError{
		Code:     ErrCodeEntityNotFound,
		Message:  fmt.Sprintf("%s が見つかりません: %s", t.Label(), id),
		Category: "entity",
		Action:   "IDを確認するか、先に登録してください。",
	}
}

// NewAlreadyRegisteredError は登録済みエラーを生成する。
func NewAlreadyRegisteredError(t EntityType, id string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRegistered,
		Message:  fmt.Sprintf("%s は既に登録されています: %s", t.Label(), id),
		Category: "entity",
		Action:   "更新する場合は update エンドポイントを使用してください。",
	}
}

// NewRegisterForbiddenError は非公開・空のエンティティを登録しようとした場合のエラーを生成する。
func NewRegisterForbiddenError(t EntityType, id string) *APIError {
	return &APIError{
		Code:     ErrCodeRegisterForbidden,
		Message:  fmt.Sprintf("%s は非公開またはメンバーが存在しないため登録できません: %s", t.Label(), id),
		Category: "entity",
		Action:   "Lodestone上で公開設定を確認してください。",
	}
}

// NewSourceUnavailableError はLodestoneまたはDBが利用できない場合のエラーを生成する。
func NewSourceUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeSourceUnavailable,
		Message:  "Lodestoneからデータを取得できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRefreshFailedError は更新失敗エラーを生成する。
// reasonには再スケジュール時刻を含む説明文が入る。
func NewRefreshFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRefreshFailed,
		Message:  reason,
		Category: "entity",
		Action:   "スケジュールされた更新を待つか、しばらくしてから再度お試しください。",
	}
}

// NewRefreshForbiddenError は更新権限がない場合のエラーを生成する。
func NewRefreshForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeRefreshForbidden,
		Message:  "このエンティティを更新する権限がありません。",
		Category: "auth",
		Action:   "キャラクターを自分のアカウントに紐付けるか、スケジュールされた更新を待ってください。",
	}
}

// NewLinkFailedError はキャラクター紐付け失敗エラーを生成する。
func NewLinkFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeLinkFailed,
		Message:  reason,
		Category: "entity",
		Action:   "キャラクターのプロフィールに fftracker:<トークン> を記載してから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewCSRFFailedError はCSRFトークンの検証失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitError はリクエスト数の上限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
