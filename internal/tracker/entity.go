package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/simbiat/fftracker/internal/lodestone"
	"github.com/simbiat/fftracker/internal/model"
)

// Kind は種別ごとの取得・反映処理。状態はEntityが持ち、Kindはステートレスに保つ。
type Kind[P any] interface {
	Type() model.EntityType
	// Fetch はLodestoneからデータを取得し分類する。
	// 検証に失敗した場合は*FailureErrorを返す。
	Fetch(ctx context.Context, id string) (FetchResult[P], error)
	// Reconcile は取得結果を1回のExecuteBatchでDBに反映する。
	Reconcile(ctx context.Context, id string, res FetchResult[P]) error
	// Delete はLodestone上で見つからなかったエンティティを論理削除する。
	Delete(ctx context.Context, id string) error
	// Load はDBの保存状態を読み込む。存在しない場合はnilを返す。
	Load(ctx context.Context, id string) (any, error)
}

// privateMarker は非公開のエンティティを記録できるKind。
type privateMarker interface {
	MarkPrivate(ctx context.Context, id string) error
}

// schedulePolicy は閲覧時の更新スケジュール条件を独自に持つKind。
type schedulePolicy interface {
	refreshPriority(record any, now time.Time) (priority int, due bool)
}

// timestamped は日付情報を持つレコード。
type timestamped interface {
	Timestamps() model.EntityDates
}

// loaded は型付きのnilポインタをnilインターフェースに変換する。
func loaded[T any](v *T, err error) (any, error) {
	if err != nil || v == nil {
		return nil, err
	}
	return v, nil
}

// Entity は1つのエンティティに対する同期操作。並行利用は想定しない。
type Entity[P any] struct {
	t    *Tracker
	kind Kind[P]
	id   string

	loaded bool
	record any
	cached *FetchResult[P]
}

func newEntity[P any](t *Tracker, kind Kind[P], id string) (*Entity[P], error) {
	e := &Entity[P]{t: t, kind: kind}
	if id != "" {
		if err := e.SetID(id); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetID はIDを検証して設定する。設定済みのIDを別のIDに変更することはできない。
func (e *Entity[P]) SetID(id string) error {
	if err := e.kind.Type().ValidateID(id); err != nil {
		return err
	}
	if e.id != "" && e.id != id {
		return ErrIdentityImmutable
	}
	e.id = id
	return nil
}

// ID はエンティティのIDを返す。
func (e *Entity[P]) ID() string { return e.id }

// Type はエンティティの種別を返す。
func (e *Entity[P]) Type() model.EntityType { return e.kind.Type() }

// Record は読み込み済みのレコードを返す。未読み込みまたは存在しない場合はnil。
func (e *Entity[P]) Record() any { return e.record }

func (e *Entity[P]) logAttrs(extra ...any) []any {
	return append([]any{
		slog.String("kind", string(e.kind.Type())),
		slog.String("entity_id", e.id),
	}, extra...)
}

// Get はDBから保存状態を読み込む。読み込みはオブジェクトごとに1回だけ行う。
// 存在しない場合はIDをクリアする。
func (e *Entity[P]) Get(ctx context.Context) error {
	if e.loaded || e.id == "" {
		return nil
	}
	e.loaded = true

	record, err := e.kind.Load(ctx, e.id)
	if err != nil {
		e.t.logger.Error("エンティティの読み込みに失敗しました", e.logAttrs(slog.String("error", err.Error()))...)
		if e.t.cfg.Strict {
			return fmt.Errorf("%sの読み込みに失敗しました: %w", e.kind.Type().Label(), err)
		}
		return nil
	}
	if record == nil {
		e.id = ""
		return nil
	}
	e.record = record
	return nil
}

// ToMap は読み込んだレコードの公開フィールドをマップで返す。レコードがない場合はnilを返す。
func (e *Entity[P]) ToMap(ctx context.Context) (map[string]any, error) {
	if err := e.Get(ctx); err != nil {
		return nil, err
	}
	if e.record == nil {
		return nil, nil
	}
	data, err := json.Marshal(e.record)
	if err != nil {
		return nil, fmt.Errorf("エンティティのエンコードに失敗しました: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("エンティティのデコードに失敗しました: %w", err)
	}
	return out, nil
}

// fetch はLodestoneから取得する。取得済みの場合はキャッシュを返す。
func (e *Entity[P]) fetch(ctx context.Context, allowWait bool) (FetchResult[P], error) {
	if e.cached != nil {
		return *e.cached, nil
	}

	res, err := e.kind.Fetch(ctx, e.id)
	if err != nil {
		if errors.Is(err, lodestone.ErrThrottled) || errors.Is(err, ErrThrottled) {
			e.t.logger.Warn("Lodestoneからスロットリングされました", e.logAttrs(slog.Bool("wait", allowWait))...)
			if allowWait {
				_ = e.t.sleep(ctx, e.t.cfg.ThrottleWait)
			}
			return res, ErrThrottled
		}

		var fe *FailureError
		if !errors.As(err, &fe) {
			fe = &FailureError{
				Reason: fmt.Sprintf("Failed to get all necessary data for %s %s", e.kind.Type().Label(), e.id),
				Err:    err,
			}
		}
		e.t.logger.Error("エンティティの取得に失敗しました", e.logAttrs(
			slog.String("reason", fe.Reason),
			slog.String("error", err.Error()),
		)...)
		return res, fe
	}

	e.cached = &res
	return res, nil
}

// Snapshot は今回の処理で取得したLodestoneのデータを返す。未取得の場合は取得する。
func (e *Entity[P]) Snapshot(ctx context.Context) (FetchResult[P], error) {
	if e.id == "" {
		return FetchResult[P]{}, ErrNoIdentity
	}
	return e.fetch(ctx, false)
}

// withCause はStrictモードの場合に原因のエラーをラップする。
func (e *Entity[P]) withCause(sentinel, cause error) error {
	if e.t.cfg.Strict && cause != nil {
		return fmt.Errorf("%w: %w", sentinel, cause)
	}
	return sentinel
}

// Update はLodestoneから最新の状態を取得してDBに反映する。
// 直近に更新済みの場合、見つからない場合、非公開の場合は成功として扱う。
// allowWaitがtrueの場合、スロットリング時に待機してから戻る。
func (e *Entity[P]) Update(ctx context.Context, allowWait bool) error {
	if e.id == "" {
		return ErrNoIdentity
	}
	start := e.t.now()
	kind := e.kind.Type()

	updated, err := e.t.repo.QueryTime(ctx, entitySQL[kind].updated, e.id)
	if err != nil {
		e.t.logger.Warn("最終更新時刻の取得に失敗しました", e.logAttrs(slog.String("error", err.Error()))...)
		if e.t.cfg.Strict {
			return fmt.Errorf("最終更新日時の取得に失敗しました: %w", err)
		}
	}
	if updated != nil && e.t.now().Sub(*updated) < e.t.cfg.Cooldown {
		e.t.removeJob(ctx, kind, e.id)
		e.t.record(kind, "cooldown", start)
		return nil
	}

	res, err := e.fetch(ctx, allowWait)
	if err != nil {
		if errors.Is(err, ErrThrottled) {
			e.t.record(kind, "throttled", start)
		} else {
			e.t.record(kind, "failure", start)
		}
		return err
	}

	switch res.Outcome() {
	case OutcomeNotFound:
		if err := e.kind.Delete(ctx, e.id); err != nil {
			e.t.logger.Error("エンティティの削除マークに失敗しました", e.logAttrs(slog.String("error", err.Error()))...)
			e.t.record(kind, "reconcile_error", start)
			return e.withCause(ErrReconcileFailed, err)
		}
		e.t.removeJob(ctx, kind, e.id)
		e.loaded = false
		e.t.record(kind, "not_found", start)
		return nil
	case OutcomePrivate:
		if pm, ok := e.kind.(privateMarker); ok {
			if err := pm.MarkPrivate(ctx, e.id); err != nil {
				e.t.logger.Error("エンティティの非公開マークに失敗しました", e.logAttrs(slog.String("error", err.Error()))...)
				e.t.record(kind, "reconcile_error", start)
				return e.withCause(ErrReconcileFailed, err)
			}
		}
		e.t.removeJob(ctx, kind, e.id)
		e.loaded = false
		e.t.record(kind, "private", start)
		return nil
	}

	if res.Name() == "" {
		e.t.record(kind, "failure", start)
		return failure("No name found for %s ID `%s`", kind.Label(), e.id)
	}

	if err := e.kind.Reconcile(ctx, e.id, res); err != nil {
		e.t.logger.Error("エンティティの同期に失敗しました", e.logAttrs(slog.String("error", err.Error()))...)
		e.t.record(kind, "reconcile_error", start)
		return e.withCause(ErrReconcileFailed, err)
	}

	e.t.removeJob(ctx, kind, e.id)
	e.loaded = false
	e.t.record(kind, "success", start)
	e.t.logger.Info("エンティティを更新しました", e.logAttrs(slog.String("outcome", res.Outcome().String()))...)
	return nil
}

// Register は未登録のエンティティをLodestoneから取得して登録する。
// 結果はHTTPステータスとして返す。
func (e *Entity[P]) Register(ctx context.Context) model.RegisterStatus {
	if e.id == "" {
		return model.RegisterNoID
	}
	kind := e.kind.Type()

	exists, err := e.t.repo.Exists(ctx, entitySQL[kind].exists, e.id)
	if err != nil {
		e.t.logger.Error("登録状況の確認に失敗しました", e.logAttrs(slog.String("error", err.Error()))...)
		return model.RegisterUnavailable
	}
	if exists {
		return model.RegisterAlreadyRegistered
	}

	res, err := e.fetch(ctx, false)
	if err != nil {
		return model.RegisterUnavailable
	}
	switch res.Outcome() {
	case OutcomeNotFound:
		return model.RegisterNotFound
	case OutcomePrivate, OutcomeEmpty:
		return model.RegisterForbidden
	}
	if res.Name() == "" {
		e.t.logger.Warn("名前が見つかりません", e.logAttrs()...)
		return model.RegisterUnavailable
	}

	if err := e.kind.Reconcile(ctx, e.id, res); err != nil {
		e.t.logger.Error("エンティティの登録に失敗しました", e.logAttrs(slog.String("error", err.Error()))...)
		return model.RegisterUnavailable
	}
	e.loaded = false
	e.t.logger.Info("エンティティを登録しました", e.logAttrs()...)
	return model.RegisterCreated
}

// UpdateFromAPI はAPIからの更新要求を処理する。失敗した場合は優先度の高い再試行ジョブを登録し、
// その実行予定時刻を含む*RefreshErrorを返す。
func (e *Entity[P]) UpdateFromAPI(ctx context.Context) error {
	err := e.Update(ctx, false)
	if err == nil || errors.Is(err, ErrNoIdentity) {
		return err
	}

	kind := e.kind.Type()
	next, qerr := e.t.jobs.Enqueue(ctx, model.TaskUpdateEntity, jobArgs(kind, e.id), PriorityAPIRetry, jobMessage(kind, e.id))
	if qerr != nil {
		e.t.logger.Error("再試行の登録に失敗しました", e.logAttrs(slog.String("error", qerr.Error()))...)
		return &RefreshError{Reason: err.Error(), Err: err}
	}
	return &RefreshError{
		Reason: err.Error() + " Scheduled for " + next.UTC().Format(time.RFC3339),
		Err:    err,
	}
}

// refreshPriority は既定のスケジュール条件。最終更新からStaleAfter以上経過していれば対象。
func (e *Entity[P]) refreshPriority(now time.Time) (int, bool) {
	if p, ok := e.kind.(schedulePolicy); ok {
		return p.refreshPriority(e.record, now)
	}
	ts, ok := e.record.(timestamped)
	if !ok {
		return 0, false
	}
	updated := ts.Timestamps().Updated
	if updated == nil || now.Sub(*updated) >= e.t.cfg.StaleAfter {
		return PriorityScheduled, true
	}
	return 0, false
}

// ScheduleUpdate は保存状態が古い場合に更新ジョブを登録し、その実行予定時刻を返す。
// 対象外の場合と、登録数の上限に達している場合はnilを返す。
func (e *Entity[P]) ScheduleUpdate(ctx context.Context) (*time.Time, error) {
	if err := e.Get(ctx); err != nil {
		return nil, err
	}
	if e.id == "" || e.record == nil {
		return nil, nil
	}

	priority, due := e.refreshPriority(e.t.now())
	if !due {
		return nil, nil
	}

	kind := e.kind.Type()
	args := jobArgs(kind, e.id)
	next, err := e.t.jobs.NextRun(ctx, model.TaskUpdateEntity, args)
	if err != nil {
		return nil, err
	}
	if next != nil {
		return next, nil
	}

	if priority <= PriorityScheduled {
		ok, err := e.t.underRecentCap(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	scheduled, err := e.t.jobs.Enqueue(ctx, model.TaskUpdateEntity, args, priority, jobMessage(kind, e.id))
	if err != nil {
		return nil, err
	}
	return &scheduled, nil
}

// compile-time interface check
var (
	_ Refresher = (*Entity[*model.CharacterProfile])(nil)
	_ Refresher = (*Entity[*model.FreeCompanyProfile])(nil)
	_ Refresher = (*Entity[*model.LinkshellPage])(nil)
	_ Refresher = (*Entity[*model.PvPTeamProfile])(nil)
	_ Refresher = (*Entity[*model.AchievementDetails])(nil)
)
