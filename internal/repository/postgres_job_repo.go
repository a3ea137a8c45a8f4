package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/simbiat/fftracker/internal/model"
)

// PostgresJobRepo はPostgreSQLを使用したジョブスケジュールリポジトリ。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

// Exists は同じtaskとargumentsのジョブが登録済みかを返す。
func (r *PostgresJobRepo) Exists(ctx context.Context, task, arguments string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM cron_schedule WHERE task = $1 AND arguments = $2)`,
		task, arguments,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ジョブの存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// NextRun は登録済みジョブの次回実行時刻を返す。未登録の場合はnilを返す。
func (r *PostgresJobRepo) NextRun(ctx context.Context, task, arguments string) (*time.Time, error) {
	var next time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT next_run FROM cron_schedule WHERE task = $1 AND arguments = $2`,
		task, arguments,
	).Scan(&next)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブの次回実行時刻の取得に失敗しました: %w", err)
	}
	return &next, nil
}

// Upsert はジョブを登録する。既存ジョブがある場合は優先度の高い方と早い実行時刻を採用する。
func (r *PostgresJobRepo) Upsert(ctx context.Context, job *model.Job) (time.Time, error) {
	var next time.Time
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO cron_schedule (job_id, task, arguments, priority, message, next_run, registered)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (task, arguments) DO UPDATE SET
		    priority = GREATEST(cron_schedule.priority, EXCLUDED.priority),
		    message = EXCLUDED.message,
		    next_run = LEAST(cron_schedule.next_run, EXCLUDED.next_run)
		 RETURNING next_run`,
		job.ID, job.Task, job.Arguments, job.Priority, job.Message, job.NextRun,
	).Scan(&next)
	if err != nil {
		return time.Time{}, fmt.Errorf("ジョブの登録に失敗しました: %w", err)
	}
	return next, nil
}

// Delete はtaskとargumentsが一致するジョブを削除する。
func (r *PostgresJobRepo) Delete(ctx context.Context, task, arguments string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cron_schedule WHERE task = $1 AND arguments = $2`,
		task, arguments,
	)
	if err != nil {
		return fmt.Errorf("ジョブの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのジョブを削除する。
func (r *PostgresJobRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cron_schedule WHERE job_id = $1`, id)
	if err != nil {
		return fmt.Errorf("ジョブの削除に失敗しました: %w", err)
	}
	return nil
}

// CountRegisteredSince は指定時刻以降に登録されたtaskのジョブ数を返す。
func (r *PostgresJobRepo) CountRegisteredSince(ctx context.Context, task string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM cron_schedule WHERE task = $1 AND registered >= $2`,
		task, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("登録済みジョブ数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ClaimDue は実行時刻を過ぎたジョブを優先度順に最大limit件取得する。
// 取得したジョブのnext_runはleaseだけ先送りされ、ワーカーが異常終了しても後で再実行される。
func (r *PostgresJobRepo) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE cron_schedule c SET next_run = now() + $2::interval
		 FROM (
		    SELECT job_id FROM cron_schedule
		    WHERE next_run <= now()
		    ORDER BY priority DESC, next_run ASC
		    LIMIT $1
		    FOR UPDATE SKIP LOCKED
		 ) due
		 WHERE c.job_id = due.job_id
		 RETURNING c.job_id, c.task, c.arguments, c.priority, c.message,
		           c.next_run, c.registered, c.attempts, c.last_error`,
		limit, fmt.Sprintf("%d seconds", int(lease.Seconds())),
	)
	if err != nil {
		return nil, fmt.Errorf("実行対象ジョブの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job := &model.Job{}
		var lastError sql.NullString
		if err := rows.Scan(
			&job.ID, &job.Task, &job.Arguments, &job.Priority, &job.Message,
			&job.NextRun, &job.Registered, &job.Attempts, &lastError,
		); err != nil {
			return nil, fmt.Errorf("実行対象ジョブの読み取りに失敗しました: %w", err)
		}
		job.LastError = nullStringValue(lastError)
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("実行対象ジョブの走査に失敗しました: %w", err)
	}

	return jobs, nil
}

// Reschedule は失敗したジョブの次回実行時刻・試行回数・エラーを更新する。
func (r *PostgresJobRepo) Reschedule(ctx context.Context, id string, nextRun time.Time, attempts int, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE cron_schedule SET next_run = $2, attempts = $3, last_error = $4 WHERE job_id = $1`,
		id, nextRun, attempts, nullString(lastError),
	)
	if err != nil {
		return fmt.Errorf("ジョブの再スケジュールに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ JobRepository = (*PostgresJobRepo)(nil)
