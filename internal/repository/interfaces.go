// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/simbiat/fftracker/internal/model"
)

// Statement はバッチ実行する1つのパラメータ化SQL文。
type Statement struct {
	Query string
	Args  []any
}

// Stmt はStatementを生成する。
func Stmt(query string, args ...any) Statement {
	return Statement{Query: query, Args: args}
}

// EntityRepository はエンティティ同期処理が使う汎用のクエリ実行インターフェース。
// SQLは呼び出し側で静的に定義されたものを渡す。
type EntityRepository interface {
	// Exists はクエリが1行以上返すか、SELECT EXISTS の結果がtrueかを返す。
	Exists(ctx context.Context, query string, args ...any) (bool, error)

	// QueryRow は1行目を列名→値のマップで返す。行がない場合はnilを返す。
	// []byte の値は文字列に変換される。
	QueryRow(ctx context.Context, query string, args ...any) (map[string]any, error)

	// QueryStrings は1列目を文字列のスライスで返す。NULLはスキップする。
	QueryStrings(ctx context.Context, query string, args ...any) ([]string, error)

	// QueryTime は1行目1列目の時刻を返す。行がないかNULLの場合はnilを返す。
	QueryTime(ctx context.Context, query string, args ...any) (*time.Time, error)

	// ExecuteBatch は全ステートメントを1トランザクションで実行する。
	// いずれかが失敗した場合はロールバックする。
	ExecuteBatch(ctx context.Context, statements []Statement) error
}

// EntityLoader はAPI出力用にエンティティの保存状態を読み込むインターフェース。
// いずれのメソッドも見つからない場合はnilを返す。
type EntityLoader interface {
	LoadCharacter(ctx context.Context, id string) (*model.Character, error)
	LoadFreeCompany(ctx context.Context, id string) (*model.FreeCompany, error)
	LoadLinkshell(ctx context.Context, id string) (*model.Linkshell, error)
	LoadPvPTeam(ctx context.Context, id string) (*model.PvPTeam, error)
	LoadAchievement(ctx context.Context, id string) (*model.Achievement, error)
}

// JobRepository はcron_scheduleテーブルの永続化インターフェース。
type JobRepository interface {
	// Exists は同じtaskとargumentsのジョブが登録済みかを返す。
	Exists(ctx context.Context, task, arguments string) (bool, error)

	// NextRun は登録済みジョブの次回実行時刻を返す。未登録の場合はnilを返す。
	NextRun(ctx context.Context, task, arguments string) (*time.Time, error)

	// Upsert はジョブを登録する。既存ジョブがある場合は優先度の高い方と早い実行時刻を採用する。
	// 確定した次回実行時刻を返す。
	Upsert(ctx context.Context, job *model.Job) (time.Time, error)

	// Delete はtaskとargumentsが一致するジョブを削除する。
	Delete(ctx context.Context, task, arguments string) error

	// DeleteByID は指定IDのジョブを削除する。
	DeleteByID(ctx context.Context, id string) error

	// CountRegisteredSince は指定時刻以降に登録されたtaskのジョブ数を返す。
	CountRegisteredSince(ctx context.Context, task string, since time.Time) (int, error)

	// ClaimDue は実行時刻を過ぎたジョブを優先度順に最大limit件取得し、
	// leaseの間は他のワーカーから見えないようnext_runを先送りする。
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.Job, error)

	// Reschedule は失敗したジョブの次回実行時刻・試行回数・エラーを更新する。
	Reschedule(ctx context.Context, id string, nextRun time.Time, attempts int, lastError string) error
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// OwnsCharacter はユーザーがキャラクターを紐付け済みかを返す。
	OwnsCharacter(ctx context.Context, userID, characterID string) (bool, error)

	// OwnsGroupMember はユーザーの紐付けキャラクターがグループの現在のメンバーかを返す。
	OwnsGroupMember(ctx context.Context, userID string, kind model.EntityType, groupID string) (bool, error)
}

// SessionRepository はセッションデータの参照インターフェース。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
}
