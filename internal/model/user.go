package model

import "time"

// User はサービス利用ユーザーを表す。
// FFTokenはキャラクター紐付け時にプロフィールへ記載させるトークン。
type User struct {
	ID         string
	Name       string
	FFToken    string
	RefreshAll bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
