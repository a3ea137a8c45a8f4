package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

// recentAchievements はキャラクターごと・アチーブメントごとに保持する直近の件数。
const recentAchievements = 50

const (
	sqlPrunableAchievements = `WITH ranked AS (
			SELECT ca.achievement_id, a.db_id,
			       row_number() OVER (ORDER BY ca.time DESC) AS n
			FROM ffxiv_character_achievement ca
			JOIN ffxiv_achievement a ON a.achievement_id = ca.achievement_id
			WHERE ca.character_id = $1
		)
		SELECT r.achievement_id::text FROM ranked r
		WHERE r.n > $2 AND (
			r.db_id IS NOT NULL
			OR EXISTS (
				SELECT 1 FROM (
					SELECT ca2.character_id
					FROM ffxiv_character_achievement ca2
					JOIN ffxiv_character c ON c.character_id = ca2.character_id
					WHERE ca2.achievement_id = r.achievement_id
					  AND c.deleted IS NULL AND c.hidden IS NULL
					ORDER BY ca2.time DESC
					LIMIT $2
				) latest
				WHERE latest.character_id <> $1
			)
		)`

	sqlDeleteCharacterAchievements = `DELETE FROM ffxiv_character_achievement
		WHERE character_id = $1 AND achievement_id = ANY($2::bigint[])`

	sqlPruneCandidates = `SELECT character_id::text FROM ffxiv_character_achievement
		WHERE character_id > $3::bigint
		GROUP BY character_id HAVING count(*) > $1
		ORDER BY character_id LIMIT $2`
)

// PruneAchievements はキャラクターの古い獲得記録を削除し、削除件数を返す。
// 直近50件は残す。それ以外はカタログのIDがあるもの、または他の公開キャラクターが
// 最近の獲得者として記録されているものに限り削除する。
func (t *Tracker) PruneAchievements(ctx context.Context, characterID string) (int, error) {
	if err := model.EntityCharacter.ValidateID(characterID); err != nil {
		return 0, err
	}

	ids, err := t.repo.QueryStrings(ctx, sqlPrunableAchievements, characterID, recentAchievements)
	if err != nil {
		return 0, fmt.Errorf("削除対象アチーブメントの取得に失敗しました: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := t.repo.ExecuteBatch(ctx, []repository.Statement{
		repository.Stmt(sqlDeleteCharacterAchievements, characterID, pq.Array(ids)),
	}); err != nil {
		return 0, fmt.Errorf("アチーブメントの削除に失敗しました: %w", err)
	}
	return len(ids), nil
}

// PruneAll は獲得記録が上限を超えているキャラクターを最大limit人処理し、削除件数の合計を返す。
// 前回処理したキャラクターの続きから走査し、末尾まで到達したら先頭に戻る。
// 個別のキャラクターの失敗はログに記録して続行する。
func (t *Tracker) PruneAll(ctx context.Context, limit int) (int, error) {
	t.pruneMu.Lock()
	defer t.pruneMu.Unlock()

	after := t.pruneCursor
	if after == "" {
		after = "0"
	}
	characters, err := t.repo.QueryStrings(ctx, sqlPruneCandidates, recentAchievements, limit, after)
	if err != nil {
		return 0, fmt.Errorf("削除対象キャラクターの取得に失敗しました: %w", err)
	}
	if len(characters) == 0 || len(characters) < limit {
		t.pruneCursor = ""
	} else {
		t.pruneCursor = characters[len(characters)-1]
	}

	total := 0
	for _, id := range characters {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := t.PruneAchievements(ctx, id)
		if err != nil {
			t.logger.Warn("アチーブメントの整理に失敗しました",
				slog.String("entity_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		total += n
	}
	return total, nil
}
