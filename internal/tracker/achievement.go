package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/simbiat/fftracker/internal/lodestone"
	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

const sqlUpsertAchievement = `INSERT INTO ffxiv_achievement (
		achievement_id, name, icon, points, category, subcategory, how_to, title, item, item_icon, item_id, db_id,
		registered, updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
	ON CONFLICT (achievement_id) DO UPDATE SET
		name = EXCLUDED.name,
		icon = COALESCE(EXCLUDED.icon, ffxiv_achievement.icon),
		points = EXCLUDED.points,
		category = EXCLUDED.category,
		subcategory = EXCLUDED.subcategory,
		how_to = EXCLUDED.how_to,
		title = EXCLUDED.title,
		item = EXCLUDED.item,
		item_icon = COALESCE(EXCLUDED.item_icon, ffxiv_achievement.item_icon),
		item_id = EXCLUDED.item_id,
		db_id = COALESCE(EXCLUDED.db_id, ffxiv_achievement.db_id),
		updated = now()`

type achievementKind struct {
	t *Tracker
}

func (k *achievementKind) Type() model.EntityType { return model.EntityAchievement }

func (k *achievementKind) Load(ctx context.Context, id string) (any, error) {
	return loaded(k.t.loader.LoadAchievement(ctx, id))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Fetch はアチーブメントの詳細を取得する。アチーブメントはキャラクターの更新時に登録されるため、
// 保存済みの名前からDBのIDを解決し、解決できない場合は最近の獲得者の詳細ページを参照する。
func (k *achievementKind) Fetch(ctx context.Context, id string) (FetchResult[*model.AchievementDetails], error) {
	var none FetchResult[*model.AchievementDetails]

	rec, err := k.t.loader.LoadAchievement(ctx, id)
	if err != nil {
		return none, fmt.Errorf("アチーブメントの読み込みに失敗しました: %w", err)
	}
	if rec == nil || rec.Name == "" {
		return NotFound[*model.AchievementDetails](), nil
	}

	dbID := deref(rec.DBID)
	if dbID == "" {
		dbID, err = k.resolveDBID(ctx, rec.Name)
		if err != nil {
			return none, err
		}
	}

	var details *model.AchievementDetails
	if dbID != "" {
		d, err := k.t.source.FetchAchievement(ctx, dbID)
		switch {
		case errors.Is(err, lodestone.ErrThrottled):
			return none, err
		case err != nil:
			k.t.logger.Warn("アチーブメントのカタログページを取得できません",
				slog.String("entity_id", id),
				slog.String("db_id", dbID),
				slog.String("error", err.Error()),
			)
		default:
			details = d
		}
	}

	if details == nil {
		for _, earner := range rec.LastEarners {
			d, err := k.t.source.FetchCharacterAchievement(ctx, earner.ID, id)
			if errors.Is(err, lodestone.ErrThrottled) {
				return none, err
			}
			if err != nil {
				continue
			}
			details = d
			break
		}
	}
	if details == nil {
		return NotFound[*model.AchievementDetails](), nil
	}

	out := *details
	out.ID = id
	if out.Name == "" {
		out.Name = rec.Name
	}
	if out.DBID == "" {
		out.DBID = dbID
	}
	return Found(&out, out.Name), nil
}

// resolveDBID は名前が完全一致するアチーブメントをDBで検索する。見つからない場合は空文字を返す。
func (k *achievementKind) resolveDBID(ctx context.Context, name string) (string, error) {
	hits, err := k.t.source.SearchAchievementByName(ctx, name)
	if errors.Is(err, lodestone.ErrThrottled) {
		return "", err
	}
	if err != nil {
		k.t.logger.Warn("アチーブメントの検索に失敗しました",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return "", nil
	}
	// 同名が複数ある場合は最後の結果を採用する
	var dbID string
	for _, hit := range hits {
		if hit.Name == name {
			dbID = hit.DBID
		}
	}
	return dbID, nil
}

func (k *achievementKind) Reconcile(ctx context.Context, id string, res FetchResult[*model.AchievementDetails]) error {
	a := res.Payload()
	icon := k.t.cacheIcon(ctx, achievementIconDir, a.Icon)
	itemIcon := k.t.cacheIcon(ctx, achievementIconDir, a.ItemIcon)

	return k.t.repo.ExecuteBatch(ctx, []repository.Statement{
		repository.Stmt(sqlUpsertAchievement,
			id, a.Name, nullIfEmpty(icon), a.Points,
			nullIfEmpty(a.Category), nullIfEmpty(a.Subcategory), nullIfEmpty(a.HowTo), nullIfEmpty(a.Title),
			nullIfEmpty(a.Item), nullIfEmpty(itemIcon), nullIfEmpty(a.ItemID), nullIfEmpty(a.DBID),
		),
	})
}

// Delete は何もしない。Lodestoneから消えたアチーブメントも獲得記録として残す。
func (k *achievementKind) Delete(context.Context, string) error {
	return nil
}

// refreshPriority は獲得者がいて、詳細が欠けているか長期間更新されていない場合に更新対象とする。
func (k *achievementKind) refreshPriority(record any, now time.Time) (int, bool) {
	a, ok := record.(*model.Achievement)
	if !ok || len(a.LastEarners) == 0 {
		return 0, false
	}
	incomplete := deref(a.Category) == "" || deref(a.Subcategory) == "" ||
		deref(a.HowTo) == "" || deref(a.DBID) == ""
	stale := a.Dates.Updated == nil || now.Sub(*a.Dates.Updated) >= k.t.cfg.AchievementStaleAfter
	if incomplete || stale {
		return PriorityAchievement, true
	}
	return 0, false
}

// compile-time interface check
var (
	_ Kind[*model.AchievementDetails] = (*achievementKind)(nil)
	_ schedulePolicy                  = (*achievementKind)(nil)
)
