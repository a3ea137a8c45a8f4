package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrNoIdentity はIDが設定されていないエンティティを操作しようとしたことを示す。
	ErrNoIdentity = errors.New("entity has no id")
	// ErrIdentityImmutable は設定済みのIDを別のIDで置き換えようとしたことを示す。
	ErrIdentityImmutable = errors.New("entity id is already set")
	// ErrThrottled はLodestoneにスロットリングされたことを示す。
	ErrThrottled = errors.New("Request throttled by Lodestone")
	// ErrReconcileFailed は取得したデータのDBへの反映に失敗したことを示す。
	ErrReconcileFailed = errors.New("failed to store entity")
)

// FailureError は取得・検証の失敗。Reasonはユーザーにそのまま表示できる説明文。
type FailureError struct {
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *FailureError) Error() string {
	return e.Reason
}

// Unwrap は原因のエラーを返す。
func (e *FailureError) Unwrap() error {
	return e.Err
}

func failure(format string, args ...any) *FailureError {
	return &FailureError{Reason: fmt.Sprintf(format, args...)}
}

// RefreshError はAPIからの更新に失敗し、再試行ジョブが登録されたことを示す。
type RefreshError struct {
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *RefreshError) Error() string {
	return e.Reason
}

// Unwrap は原因のエラーを返す。
func (e *RefreshError) Unwrap() error {
	return e.Err
}
