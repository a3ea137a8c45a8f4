// Package jobs はcron_scheduleテーブル上のジョブキューを提供する。
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

// Recorder はジョブキューのメトリクスを記録する。
type Recorder interface {
	RecordJobEnqueued(task string, priority int)
	RecordJobRemoved(task string)
}

// Queue はジョブの登録・削除・参照を行う。
type Queue struct {
	repo     repository.JobRepository
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewQueue はQueueを生成する。recorderはnilでもよい。
func NewQueue(repo repository.JobRepository, recorder Recorder, logger *slog.Logger) *Queue {
	return &Queue{
		repo:     repo,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// EncodeArgs はジョブ引数をJSON配列にエンコードする。
// (task, arguments) の組でジョブを一意に識別するため、同じ引数は常に同じ文字列になる。
func EncodeArgs(args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("ジョブ引数のエンコードに失敗しました: %w", err)
	}
	return string(b), nil
}

// DecodeArgs はJSON配列のジョブ引数を文字列のスライスにデコードする。
func DecodeArgs(arguments string) ([]string, error) {
	var args []string
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("ジョブ引数のデコードに失敗しました: %w", err)
	}
	return args, nil
}

// Exists は同じtaskとargsのジョブが登録済みかを返す。
func (q *Queue) Exists(ctx context.Context, task string, args []any) (bool, error) {
	arguments, err := EncodeArgs(args)
	if err != nil {
		return false, err
	}
	return q.repo.Exists(ctx, task, arguments)
}

// NextRun は登録済みジョブの次回実行時刻を返す。未登録の場合はnilを返す。
func (q *Queue) NextRun(ctx context.Context, task string, args []any) (*time.Time, error) {
	arguments, err := EncodeArgs(args)
	if err != nil {
		return nil, err
	}
	return q.repo.NextRun(ctx, task, arguments)
}

// Enqueue はジョブを即時実行対象として登録し、確定した次回実行時刻を返す。
// 同じジョブが既にある場合は優先度の高い方と早い実行時刻が残る。
func (q *Queue) Enqueue(ctx context.Context, task string, args []any, priority int, message string) (time.Time, error) {
	arguments, err := EncodeArgs(args)
	if err != nil {
		return time.Time{}, err
	}

	next, err := q.repo.Upsert(ctx, &model.Job{
		ID:        uuid.NewString(),
		Task:      task,
		Arguments: arguments,
		Priority:  priority,
		Message:   message,
		NextRun:   q.now(),
	})
	if err != nil {
		return time.Time{}, err
	}

	if q.recorder != nil {
		q.recorder.RecordJobEnqueued(task, priority)
	}
	q.logger.Debug("ジョブを登録しました",
		slog.String("task", task),
		slog.String("arguments", arguments),
		slog.Int("priority", priority),
	)
	return next, nil
}

// Remove はジョブを削除する。存在しない場合は何もしない。
func (q *Queue) Remove(ctx context.Context, task string, args []any) error {
	arguments, err := EncodeArgs(args)
	if err != nil {
		return err
	}
	if err := q.repo.Delete(ctx, task, arguments); err != nil {
		return err
	}
	if q.recorder != nil {
		q.recorder.RecordJobRemoved(task)
	}
	return nil
}

// CountRecent は直近windowの間に登録されたtaskのジョブ数を返す。
func (q *Queue) CountRecent(ctx context.Context, task string, window time.Duration) (int, error) {
	return q.repo.CountRegisteredSince(ctx, task, q.now().Add(-window))
}
