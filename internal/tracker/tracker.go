// Package tracker はLodestoneのエンティティをDBと同期し、更新ジョブをスケジュールする。
//
// 種別ごとの取得・反映処理はKindインターフェースとして実装し、
// 更新・登録の状態遷移はEntityが共通で扱う。
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
	"github.com/simbiat/fftracker/internal/security"
)

// Source はLodestoneからエンティティを取得するクライアント。
// エラーはlodestone.ErrThrottled / ErrNotFound / ErrForbidden / ErrUnavailable のいずれかをラップする。
type Source interface {
	FetchCharacter(ctx context.Context, id string) (*model.CharacterProfile, error)
	FetchFreeCompany(ctx context.Context, id string) (*model.FreeCompanyProfile, error)
	FetchFreeCompanyMembers(ctx context.Context, id string, page int) (*model.MemberPage, error)
	FetchLinkshellMembers(ctx context.Context, id string, crossworld bool, page int) (*model.LinkshellPage, error)
	FetchPvPTeam(ctx context.Context, id string) (*model.PvPTeamProfile, error)
	FetchAchievement(ctx context.Context, dbID string) (*model.AchievementDetails, error)
	SearchAchievementByName(ctx context.Context, name string) ([]model.AchievementSearchHit, error)
	FetchCharacterAchievement(ctx context.Context, characterID, achievementID string) (*model.AchievementDetails, error)
}

// Scheduler はジョブキュー。ジョブは (task, args) で一意に識別される。
type Scheduler interface {
	Exists(ctx context.Context, task string, args []any) (bool, error)
	NextRun(ctx context.Context, task string, args []any) (*time.Time, error)
	Enqueue(ctx context.Context, task string, args []any, priority int, message string) (time.Time, error)
	Remove(ctx context.Context, task string, args []any) error
	CountRecent(ctx context.Context, task string, window time.Duration) (int, error)
}

// CrestDownloader はクレスト部品をローカルに取得し、表示用アイコンを解決する。
type CrestDownloader interface {
	DownloadComponents(ctx context.Context, parts []string)
	Icon(ctx context.Context, parts []string, grandCompanyID int) string
}

// IconStore はアチーブメントアイコンなどの画像をキャッシュする。
type IconStore interface {
	Exists(ctx context.Context, relPath string) bool
	Download(ctx context.Context, rawURL, relPath string) error
}

// Recorder は同期処理のメトリクスを記録する。
type Recorder interface {
	RecordRefresh(kind string, result string, duration time.Duration)
}

// 更新ジョブの優先度。
const (
	PriorityScheduled   = 1
	PriorityNewMember   = 2
	PriorityAchievement = 2
	PriorityAPIRetry    = 3
)

// Config は同期処理の設定。
type Config struct {
	// Cooldown は直近の更新からこの期間内であれば再取得しない時間。
	Cooldown time.Duration
	// ThrottleWait はスロットリング時の待機時間（allowWait=trueの場合のみ）。
	ThrottleWait time.Duration
	// StaleAfter は閲覧時に更新をスケジュールするまでの経過時間。
	StaleAfter time.Duration
	// AchievementStaleAfter はアチーブメントを再取得するまでの経過時間。
	AchievementStaleAfter time.Duration
	// RecentJobCap はRecentJobWindow内に新規登録できる低優先度ジョブの上限。
	RecentJobCap    int
	RecentJobWindow time.Duration
	// Strict が有効な場合、読み込み時のリポジトリエラーを握りつぶさずに返し、
	// 更新・登録のエラーに原因をラップする。
	Strict bool
}

// DefaultConfig はデフォルト設定を返す。
func DefaultConfig() Config {
	return Config{
		Cooldown:              10 * time.Minute,
		ThrottleWait:          60 * time.Second,
		StaleAfter:            24 * time.Hour,
		AchievementStaleAfter: 365 * 24 * time.Hour,
		RecentJobCap:          50,
		RecentJobWindow:       time.Minute,
	}
}

// Deps はTrackerが利用するコラボレーター。
type Deps struct {
	Repo     repository.EntityRepository
	Loader   repository.EntityLoader
	Users    repository.UserRepository
	Source   Source
	Jobs     Scheduler
	Crests   CrestDownloader
	Icons    IconStore
	Recorder Recorder
	Logger   *slog.Logger
	// Sanitizer はnilの場合security.NewProfileSanitizerを使用する。
	Sanitizer security.ProfileSanitizer
}

// Tracker はエンティティの生成と、種別をまたぐ処理を提供する。
type Tracker struct {
	repo     repository.EntityRepository
	loader   repository.EntityLoader
	users    repository.UserRepository
	source   Source
	jobs     Scheduler
	crests   CrestDownloader
	icons    IconStore
	recorder Recorder
	logger   *slog.Logger
	cfg      Config

	sanitizer security.ProfileSanitizer
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	// pruneCursor はPruneAllが最後に処理したキャラクターID
	pruneMu     sync.Mutex
	pruneCursor string
}

// New はTrackerを生成する。
func New(deps Deps, cfg Config) *Tracker {
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewProfileSanitizer()
	}
	return &Tracker{
		repo:      deps.Repo,
		loader:    deps.Loader,
		users:     deps.Users,
		source:    deps.Source,
		jobs:      deps.Jobs,
		crests:    deps.Crests,
		icons:     deps.Icons,
		recorder:  deps.Recorder,
		logger:    deps.Logger,
		cfg:       cfg,
		sanitizer: sanitizer,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// sleepContext はdの間待機する。コンテキストがキャンセルされた場合はその時点で戻る。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresher は種別に依存しないエンティティ操作。APIとワーカーから使用する。
type Refresher interface {
	Type() model.EntityType
	ID() string
	Get(ctx context.Context) error
	ToMap(ctx context.Context) (map[string]any, error)
	Update(ctx context.Context, allowWait bool) error
	UpdateFromAPI(ctx context.Context) error
	Register(ctx context.Context) model.RegisterStatus
	ScheduleUpdate(ctx context.Context) (*time.Time, error)
}

// Open は種別とIDからエンティティを生成する。IDが空の場合は未設定のまま返す。
func (t *Tracker) Open(kind model.EntityType, id string) (Refresher, error) {
	switch kind {
	case model.EntityCharacter:
		return asRefresher(t.Character(id))
	case model.EntityFreeCompany:
		return asRefresher(t.FreeCompany(id))
	case model.EntityLinkshell:
		return asRefresher(t.Linkshell(id, false))
	case model.EntityCrossworldLinkshell:
		return asRefresher(t.Linkshell(id, true))
	case model.EntityPvPTeam:
		return asRefresher(t.PvPTeam(id))
	case model.EntityAchievement:
		return asRefresher(t.Achievement(id))
	}
	return nil, fmt.Errorf("%w: %s", model.ErrUnknownEntityType, kind)
}

// asRefresher はエラー時にnilインターフェースを返す。
func asRefresher[P any](e *Entity[P], err error) (Refresher, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Character はキャラクターのエンティティを生成する。
func (t *Tracker) Character(id string) (*Entity[*model.CharacterProfile], error) {
	return newEntity[*model.CharacterProfile](t, &characterKind{t: t}, id)
}

// FreeCompany はフリーカンパニーのエンティティを生成する。
func (t *Tracker) FreeCompany(id string) (*Entity[*model.FreeCompanyProfile], error) {
	return newEntity[*model.FreeCompanyProfile](t, &freeCompanyKind{t: t}, id)
}

// Linkshell はリンクシェル（crossworld=trueでクロスワールドリンクシェル）のエンティティを生成する。
func (t *Tracker) Linkshell(id string, crossworld bool) (*Entity[*model.LinkshellPage], error) {
	return newEntity[*model.LinkshellPage](t, &linkshellKind{t: t, crossworld: crossworld}, id)
}

// PvPTeam はPvPチームのエンティティを生成する。
func (t *Tracker) PvPTeam(id string) (*Entity[*model.PvPTeamProfile], error) {
	return newEntity[*model.PvPTeamProfile](t, &pvpTeamKind{t: t}, id)
}

// Achievement はアチーブメントのエンティティを生成する。
func (t *Tracker) Achievement(id string) (*Entity[*model.AchievementDetails], error) {
	return newEntity[*model.AchievementDetails](t, &achievementKind{t: t}, id)
}

// jobArgs は更新ジョブの引数 [id, kind] を返す。
func jobArgs(kind model.EntityType, id string) []any {
	return []any{id, string(kind)}
}

// jobMessage は更新ジョブの説明文を返す。
func jobMessage(kind model.EntityType, id string) string {
	return "Updating " + kind.Label() + " with ID " + id
}

// enqueueUpdate は更新ジョブを登録する。失敗はログに記録して無視する。
func (t *Tracker) enqueueUpdate(ctx context.Context, kind model.EntityType, id string, priority int) {
	args := jobArgs(kind, id)
	if priority <= PriorityScheduled {
		admit, err := t.admitLowPriority(ctx, args)
		if err != nil {
			t.logger.Warn("更新ジョブの登録に失敗しました",
				slog.String("kind", string(kind)),
				slog.String("entity_id", id),
				slog.String("error", err.Error()),
			)
			return
		}
		if !admit {
			t.logger.Debug("低優先度の更新ジョブの登録を見送りました",
				slog.String("kind", string(kind)),
				slog.String("entity_id", id),
			)
			return
		}
	}
	if _, err := t.jobs.Enqueue(ctx, model.TaskUpdateEntity, args, priority, jobMessage(kind, id)); err != nil {
		t.logger.Warn("更新ジョブの登録に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// admitLowPriority は低優先度ジョブを新規登録してよいかを返す。
// 登録済みのジョブは実行予定を変えず、直近の登録数が上限に達している場合も登録しない。
func (t *Tracker) admitLowPriority(ctx context.Context, args []any) (bool, error) {
	exists, err := t.jobs.Exists(ctx, model.TaskUpdateEntity, args)
	if err != nil || exists {
		return false, err
	}
	return t.underRecentCap(ctx)
}

// underRecentCap は直近RecentJobWindowの登録数がRecentJobCap未満かを返す。
func (t *Tracker) underRecentCap(ctx context.Context) (bool, error) {
	recent, err := t.jobs.CountRecent(ctx, model.TaskUpdateEntity, t.cfg.RecentJobWindow)
	if err != nil {
		return false, err
	}
	return recent < t.cfg.RecentJobCap, nil
}

// removeJob は保留中の更新ジョブを削除する。失敗はログに記録して無視する。
func (t *Tracker) removeJob(ctx context.Context, kind model.EntityType, id string) {
	if err := t.jobs.Remove(ctx, model.TaskUpdateEntity, jobArgs(kind, id)); err != nil {
		t.logger.Warn("更新ジョブの削除に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (t *Tracker) record(kind model.EntityType, result string, start time.Time) {
	if t.recorder != nil {
		t.recorder.RecordRefresh(string(kind), result, t.now().Sub(start))
	}
}
