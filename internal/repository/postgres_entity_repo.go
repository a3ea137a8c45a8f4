package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresEntityRepo はPostgreSQLを使用した汎用エンティティリポジトリ。
type PostgresEntityRepo struct {
	db *sql.DB
}

// NewPostgresEntityRepo はPostgresEntityRepoを生成する。
func NewPostgresEntityRepo(db *sql.DB) *PostgresEntityRepo {
	return &PostgresEntityRepo{db: db}
}

// Exists はクエリが1行以上返すか、SELECT EXISTS の結果がtrueかを返す。
func (r *PostgresEntityRepo) Exists(ctx context.Context, query string, args ...any) (bool, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("存在確認クエリの実行に失敗しました: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return false, rows.Err()
	}

	cols, err := rows.Columns()
	if err != nil {
		return false, fmt.Errorf("列情報の取得に失敗しました: %w", err)
	}
	// SELECT EXISTS(...) の場合は値そのものを使う
	if len(cols) == 1 && cols[0] == "exists" {
		var exists bool
		if err := rows.Scan(&exists); err != nil {
			return false, fmt.Errorf("存在確認結果の読み取りに失敗しました: %w", err)
		}
		return exists, nil
	}
	return true, nil
}

// QueryRow は1行目を列名→値のマップで返す。行がない場合はnilを返す。
func (r *PostgresEntityRepo) QueryRow(ctx context.Context, query string, args ...any) (map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("クエリの実行に失敗しました: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("列情報の取得に失敗しました: %w", err)
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("行の読み取りに失敗しました: %w", err)
	}

	row := make(map[string]any, len(cols))
	for i, col := range cols {
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
			continue
		}
		row[col] = values[i]
	}
	return row, nil
}

// QueryStrings は1列目を文字列のスライスで返す。NULLはスキップする。
func (r *PostgresEntityRepo) QueryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("クエリの実行に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("行の読み取りに失敗しました: %w", err)
		}
		if v.Valid {
			result = append(result, v.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("行の走査に失敗しました: %w", err)
	}
	return result, nil
}

// QueryTime は1行目1列目の時刻を返す。行がないかNULLの場合はnilを返す。
func (r *PostgresEntityRepo) QueryTime(ctx context.Context, query string, args ...any) (*time.Time, error) {
	var t sql.NullTime
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("時刻の取得に失敗しました: %w", err)
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

// ExecuteBatch は全ステートメントを1トランザクションで実行する。
func (r *PostgresEntityRepo) ExecuteBatch(ctx context.Context, statements []Statement) error {
	if len(statements) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for i, st := range statements {
		if _, err := tx.ExecContext(ctx, st.Query, st.Args...); err != nil {
			return fmt.Errorf("バッチの%d番目のステートメントの実行に失敗しました: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ EntityRepository = (*PostgresEntityRepo)(nil)
