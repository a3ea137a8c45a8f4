// Package refresh はcron_scheduleに登録されたエンティティ更新ジョブを実行するワーカーを提供する。
// 実行時刻を過ぎたジョブを取得し、semaphoreパターンで並列数を制御しながら更新する。
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simbiat/fftracker/internal/jobs"
	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/tracker"
)

// 結果の分類（メトリクスのラベル）。
const (
	resultSuccess = "success"
	resultRetry   = "retry"
	resultDropped = "dropped"
	resultInvalid = "invalid"
)

// JobStore はワーカーが使うジョブの取得・更新インターフェース。
type JobStore interface {
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.Job, error)
	Reschedule(ctx context.Context, id string, nextRun time.Time, attempts int, lastError string) error
	DeleteByID(ctx context.Context, id string) error
}

// Opener は種別とIDから更新対象のエンティティを生成する。
type Opener interface {
	Open(kind model.EntityType, id string) (tracker.Refresher, error)
}

// Recorder はジョブの実行結果を記録する。
type Recorder interface {
	RecordJobRun(task, result string, duration time.Duration)
}

// Config はワーカーの設定。
type Config struct {
	Interval       time.Duration
	BatchSize      int
	MaxConcurrency int
	MaxAttempts    int
	// Lease は取得したジョブを他のワーカーから隠す時間。
	Lease time.Duration
	// ThrottleDelay はスロットリングされたジョブを再実行するまでの時間。
	// スロットリングは試行回数に数えない。
	ThrottleDelay time.Duration
}

// DefaultConfig はデフォルト設定を返す。
func DefaultConfig() Config {
	return Config{
		Interval:       30 * time.Second,
		BatchSize:      20,
		MaxConcurrency: 4,
		MaxAttempts:    5,
		Lease:          10 * time.Minute,
		ThrottleDelay:  5 * time.Minute,
	}
}

// Runner は更新ジョブの取得と並列実行を行う。
type Runner struct {
	store    JobStore
	opener   Opener
	recorder Recorder
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewRunner はRunnerを生成する。設定値が0以下の項目はデフォルト値を使用する。
// recorderはnilでもよい。
func NewRunner(store JobStore, opener Opener, recorder Recorder, logger *slog.Logger, cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if cfg.ThrottleDelay <= 0 {
		cfg.ThrottleDelay = def.ThrottleDelay
	}
	return &Runner{
		store:    store,
		opener:   opener,
		recorder: recorder,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Serve はsuture.Serviceを実装する。Intervalごとにジョブを実行し、
// コンテキストがキャンセルされるまで戻らない。
func (r *Runner) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("更新ワーカーを開始しました",
		slog.Duration("interval", r.cfg.Interval),
		slog.Int("batch_size", r.cfg.BatchSize),
		slog.Int("max_concurrency", r.cfg.MaxConcurrency),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("更新サイクルの実行に失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("更新ワーカーを停止しました")
			return nil
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("更新サイクルの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// String はsupervisorのログに使うサービス名を返す。
func (r *Runner) String() string {
	return "refresh-runner"
}

// RunOnce は実行対象のジョブを1回取得し、並列で実行する。
func (r *Runner) RunOnce(ctx context.Context) error {
	start := r.now()

	due, err := r.store.ClaimDue(ctx, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return fmt.Errorf("実行対象ジョブの取得に失敗しました: %w", err)
	}
	if len(due) == 0 {
		r.logger.Debug("実行対象のジョブはありません")
		return nil
	}

	r.logger.Info("更新サイクルを開始します", slog.Int("job_count", len(due)))

	sem := make(chan struct{}, r.cfg.MaxConcurrency)
	var wg sync.WaitGroup

	for _, job := range due {
		wg.Add(1)
		sem <- struct{}{}

		go func(j *model.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			r.run(ctx, j)
		}(job)
	}

	wg.Wait()

	r.logger.Info("更新サイクルが完了しました",
		slog.Int("job_count", len(due)),
		slog.Float64("duration_ms", float64(r.now().Sub(start).Milliseconds())),
	)
	return nil
}

// run は1件のジョブを実行し、結果に応じて削除または再スケジュールする。
func (r *Runner) run(ctx context.Context, job *model.Job) {
	start := r.now()
	attrs := []any{
		slog.String("job_id", job.ID),
		slog.String("task", job.Task),
		slog.String("arguments", job.Arguments),
	}

	entity, err := r.open(job)
	if err != nil {
		r.logger.Warn("実行できないジョブを削除します", append(attrs, slog.String("error", err.Error()))...)
		r.delete(ctx, job)
		r.record(job.Task, resultInvalid, start)
		return
	}

	err = entity.Update(ctx, true)
	if err == nil {
		// 通常はUpdateが削除済み
		r.delete(ctx, job)
		r.record(job.Task, resultSuccess, start)
		return
	}

	if errors.Is(err, tracker.ErrThrottled) {
		next := r.now().Add(r.cfg.ThrottleDelay)
		if rerr := r.store.Reschedule(ctx, job.ID, next, job.Attempts, err.Error()); rerr != nil {
			r.logger.Error("ジョブの再スケジュールに失敗しました", append(attrs, slog.String("error", rerr.Error()))...)
		}
		r.record(job.Task, resultRetry, start)
		return
	}

	attempts := job.Attempts + 1
	if attempts >= r.cfg.MaxAttempts {
		r.logger.Warn("最大試行回数に達したためジョブを削除します",
			append(attrs, slog.Int("attempts", attempts), slog.String("error", err.Error()))...)
		r.delete(ctx, job)
		r.record(job.Task, resultDropped, start)
		return
	}

	next := r.now().Add(CalculateBackoff(attempts - 1))
	r.logger.Warn("ジョブにバックオフを適用します",
		append(attrs,
			slog.Int("attempts", attempts),
			slog.Time("next_run", next),
			slog.String("error", err.Error()),
		)...)
	if rerr := r.store.Reschedule(ctx, job.ID, next, attempts, err.Error()); rerr != nil {
		r.logger.Error("ジョブの再スケジュールに失敗しました", append(attrs, slog.String("error", rerr.Error()))...)
	}
	r.record(job.Task, resultRetry, start)
}

// open はジョブ引数 [id, kind] から更新対象のエンティティを生成する。
func (r *Runner) open(job *model.Job) (tracker.Refresher, error) {
	if job.Task != model.TaskUpdateEntity {
		return nil, fmt.Errorf("未対応のタスクです: %s", job.Task)
	}
	args, err := jobs.DecodeArgs(job.Arguments)
	if err != nil {
		return nil, err
	}
	if len(args) != 2 || args[0] == "" {
		return nil, fmt.Errorf("ジョブ引数が不正です: %s", job.Arguments)
	}
	kind, err := model.ParseEntityType(args[1])
	if err != nil {
		return nil, err
	}
	return r.opener.Open(kind, args[0])
}

func (r *Runner) delete(ctx context.Context, job *model.Job) {
	if err := r.store.DeleteByID(ctx, job.ID); err != nil {
		r.logger.Error("ジョブの削除に失敗しました",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) record(task, result string, start time.Time) {
	if r.recorder != nil {
		r.recorder.RecordJobRun(task, result, r.now().Sub(start))
	}
}
