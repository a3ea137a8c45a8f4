// Package cleanup は定期的な保守ジョブを提供する。
// 期限切れセッションの削除と、キャラクターのアチーブメント獲得記録の整理を
// 日次バッチで行う。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Pruner はアチーブメント獲得記録の整理を行う。
type Pruner interface {
	PruneAll(ctx context.Context, limit int) (int, error)
}

// CleanupJob は保守ジョブ。何度実行しても結果は変わらない。
type CleanupJob struct {
	db     Executor
	pruner Pruner
	logger *slog.Logger

	Interval       time.Duration // 実行間隔（デフォルト: 24時間）
	PruneBatchSize int           // 1回に整理するキャラクター数（デフォルト: 100）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, pruner Pruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:             db,
		pruner:         pruner,
		logger:         logger,
		Interval:       24 * time.Hour,
		PruneBatchSize: 100,
	}
}

// Run は期限切れセッションを削除し、アチーブメント獲得記録を整理する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		j.logger.Error("セッションクリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	pruned, err := j.pruner.PruneAll(ctx, j.PruneBatchSize)
	if err != nil {
		j.logger.Error("アチーブメント整理の実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("pruned_count", pruned),
		)
		return fmt.Errorf("アチーブメント整理の実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", deletedCount),
		slog.Int("pruned_count", pruned),
		slog.Int("prune_batch_size", j.PruneBatchSize),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Serve はsuture.Serviceを実装する。起動直後とIntervalごとにRunを実行する。
func (j *CleanupJob) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました", slog.Duration("interval", j.Interval))

	for {
		// 失敗はRun内でログに記録済み
		_ = j.Run(ctx)

		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return nil
		case <-ticker.C:
		}
	}
}

// String はsupervisorのログに使うサービス名を返す。
func (j *CleanupJob) String() string {
	return "cleanup-job"
}
