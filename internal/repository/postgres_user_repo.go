package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/simbiat/fftracker/internal/model"
)

// sqlOwnsGroupMember はグループ種別ごとの「ユーザーの紐付けキャラクターが現在のメンバーか」の確認クエリ。
var sqlOwnsGroupMember = map[model.EntityType]string{}

func init() {
	tables := map[model.EntityType][2]string{
		model.EntityFreeCompany:         {"ffxiv_freecompany_character", "fc_id"},
		model.EntityLinkshell:           {"ffxiv_linkshell_character", "ls_id"},
		model.EntityCrossworldLinkshell: {"ffxiv_linkshell_character", "ls_id"},
		model.EntityPvPTeam:             {"ffxiv_pvpteam_character", "pvp_id"},
	}
	for kind, t := range tables {
		sqlOwnsGroupMember[kind] = fmt.Sprintf(
			`SELECT EXISTS (
			    SELECT 1 FROM %s m
			    JOIN user_ff_character u ON u.character_id = m.character_id
			    WHERE m.%s = $1 AND u.user_id = $2 AND m.current
			 )`, t[0], t[1])
	}
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, ff_token, refresh_all, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Name, &user.FFToken, &user.RefreshAll, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	return user, nil
}

// OwnsCharacter はユーザーがキャラクターを紐付け済みかを返す。
func (r *PostgresUserRepo) OwnsCharacter(ctx context.Context, userID, characterID string) (bool, error) {
	var owns bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_ff_character WHERE user_id = $1 AND character_id = $2)`,
		userID, characterID,
	).Scan(&owns)
	if err != nil {
		return false, fmt.Errorf("キャラクターの紐付け確認に失敗しました: %w", err)
	}
	return owns, nil
}

// OwnsGroupMember はユーザーの紐付けキャラクターがグループの現在のメンバーかを返す。
func (r *PostgresUserRepo) OwnsGroupMember(ctx context.Context, userID string, kind model.EntityType, groupID string) (bool, error) {
	query, ok := sqlOwnsGroupMember[kind]
	if !ok {
		return false, fmt.Errorf("%w: %s", model.ErrUnknownEntityType, kind)
	}
	var owns bool
	if err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&owns); err != nil {
		return false, fmt.Errorf("グループメンバーの紐付け確認に失敗しました: %w", err)
	}
	return owns, nil
}

// compile-time interface check
var (
	_ UserRepository    = (*PostgresUserRepo)(nil)
	_ SessionRepository = (*PostgresSessionRepo)(nil)
)

// PostgresSessionRepo はログイン機能が発行したsessionsを参照する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// FindByID は有効期限内のセッションを返す。空のIDや期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, nil
	}
	var s model.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	return &s, nil
}

