// Package authz はAPIからのエンティティ更新要求の認可を行う。
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/simbiat/fftracker/internal/model"
)

// ErrUserNotFound はセッションのユーザーが存在しないことを示す。
var ErrUserNotFound = errors.New("user not found")

// UserStore は認可判定に必要なユーザー情報の取得インターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	OwnsCharacter(ctx context.Context, userID, characterID string) (bool, error)
	OwnsGroupMember(ctx context.Context, userID string, kind model.EntityType, groupID string) (bool, error)
}

// Authorizer はエンティティの手動更新を許可するかを判定する。
//
// 判定ルール:
//   - refresh_all 権限を持つユーザーは常に許可
//   - アチーブメントは認証済みユーザーであれば許可
//   - キャラクターはユーザーに紐付け済みの場合のみ許可
//   - グループは紐付け済みキャラクターが現在のメンバーの場合のみ許可
type Authorizer struct {
	users  UserStore
	logger *slog.Logger
}

// NewAuthorizer はAuthorizerを生成する。
func NewAuthorizer(users UserStore, logger *slog.Logger) *Authorizer {
	return &Authorizer{users: users, logger: logger}
}

// CanRefresh はユーザーがエンティティを更新できるかを返す。
// ユーザーが存在しない場合はErrUserNotFoundを返す。
func (a *Authorizer) CanRefresh(ctx context.Context, userID string, kind model.EntityType, id string) (bool, error) {
	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return false, ErrUserNotFound
	}
	if user.RefreshAll {
		return true, nil
	}

	var allowed bool
	switch {
	case kind == model.EntityAchievement:
		allowed = true
	case kind == model.EntityCharacter:
		allowed, err = a.users.OwnsCharacter(ctx, userID, id)
	case kind.IsGroup():
		allowed, err = a.users.OwnsGroupMember(ctx, userID, kind, id)
	default:
		return false, fmt.Errorf("%w: %s", model.ErrUnknownEntityType, kind)
	}
	if err != nil {
		return false, fmt.Errorf("紐付けの確認に失敗しました: %w", err)
	}

	if !allowed {
		a.logger.Info("更新権限がありません",
			slog.String("user_id", userID),
			slog.String("kind", string(kind)),
			slog.String("entity_id", id),
		)
	}
	return allowed, nil
}
