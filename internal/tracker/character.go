package tracker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/simbiat/fftracker/internal/lodestone"
	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

const achievementIconDir = "achievements"

const (
	sqlFreeCompanyStub = `INSERT INTO ffxiv_freecompany (fc_id, name, server_id, registered, updated)
		VALUES ($1, $2, (SELECT server_id FROM ffxiv_server WHERE server = $3), now(), now() - interval '1 hour')
		ON CONFLICT (fc_id) DO NOTHING`

	sqlPvPTeamStub = `INSERT INTO ffxiv_pvpteam (pvp_id, name, data_center_id, registered, updated)
		VALUES ($1, $2, (SELECT server_id FROM ffxiv_server WHERE data_center = $3 ORDER BY server_id LIMIT 1), now(), now() - interval '1 hour')
		ON CONFLICT (pvp_id) DO NOTHING`

	sqlAddClan     = `INSERT INTO ffxiv_clan (race, clan) VALUES ($1, $2) ON CONFLICT (clan) DO NOTHING`
	sqlAddGuardian = `INSERT INTO ffxiv_guardian (guardian) VALUES ($1) ON CONFLICT (guardian) DO NOTHING`
	sqlAddNameday  = `INSERT INTO ffxiv_nameday (nameday) VALUES ($1) ON CONFLICT (nameday) DO NOTHING`
	sqlAddCity     = `INSERT INTO ffxiv_city (city) VALUES ($1) ON CONFLICT (city) DO NOTHING`
	sqlAddGCRank   = `INSERT INTO ffxiv_grandcompany_rank (gc_id, gc_rank) VALUES ($1, $2) ON CONFLICT (gc_rank) DO NOTHING`
	sqlAddJob      = `INSERT INTO ffxiv_jobs (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`

	sqlAchievementBrief = `INSERT INTO ffxiv_achievement (achievement_id, name, icon, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (achievement_id) DO UPDATE SET name = EXCLUDED.name, icon = EXCLUDED.icon, points = EXCLUDED.points`

	sqlUpsertCharacter = `INSERT INTO ffxiv_character (
			character_id, server_id, name, avatar, registered, updated, deleted, hidden,
			hidden_achievements, hidden_friends, hidden_following, biography, title_id, clan_id, gender,
			nameday_id, guardian_id, city_id, gc_rank_id, pvp_matches, achievement_points)
		VALUES (
			$1, (SELECT server_id FROM ffxiv_server WHERE server = $2), $3, $4, now(), now(), NULL, NULL,
			CASE WHEN $5::boolean THEN now() END,
			CASE WHEN $6::boolean THEN now() END,
			CASE WHEN $7::boolean THEN now() END,
			$8,
			(SELECT achievement_id FROM ffxiv_achievement WHERE title = $9 ORDER BY achievement_id LIMIT 1),
			(SELECT clan_id FROM ffxiv_clan WHERE clan = $10),
			$11,
			(SELECT nameday_id FROM ffxiv_nameday WHERE nameday = $12),
			(SELECT guardian_id FROM ffxiv_guardian WHERE guardian = $13),
			(SELECT city_id FROM ffxiv_city WHERE city = $14),
			(SELECT gc_rank_id FROM ffxiv_grandcompany_rank WHERE gc_rank = $15),
			$16, $17)
		ON CONFLICT (character_id) DO UPDATE SET
			server_id = EXCLUDED.server_id,
			name = EXCLUDED.name,
			avatar = EXCLUDED.avatar,
			updated = now(),
			deleted = NULL,
			hidden = NULL,
			hidden_achievements = CASE WHEN $5::boolean THEN COALESCE(ffxiv_character.hidden_achievements, now()) END,
			hidden_friends = CASE WHEN $6::boolean THEN COALESCE(ffxiv_character.hidden_friends, now()) END,
			hidden_following = CASE WHEN $7::boolean THEN COALESCE(ffxiv_character.hidden_following, now()) END,
			biography = EXCLUDED.biography,
			title_id = EXCLUDED.title_id,
			clan_id = EXCLUDED.clan_id,
			gender = EXCLUDED.gender,
			nameday_id = EXCLUDED.nameday_id,
			guardian_id = EXCLUDED.guardian_id,
			city_id = EXCLUDED.city_id,
			gc_rank_id = EXCLUDED.gc_rank_id,
			pvp_matches = EXCLUDED.pvp_matches,
			achievement_points = CASE WHEN $5::boolean THEN ffxiv_character.achievement_points ELSE EXCLUDED.achievement_points END`

	sqlUpsertCharacterJob = `INSERT INTO ffxiv_character_jobs (character_id, job_id, level, last_change)
		VALUES ($1, (SELECT job_id FROM ffxiv_jobs WHERE name = $2), $3, now())
		ON CONFLICT (character_id, job_id) DO UPDATE SET
			last_change = CASE WHEN ffxiv_character_jobs.level <> EXCLUDED.level THEN now() ELSE ffxiv_character_jobs.last_change END,
			level = EXCLUDED.level`

	sqlAddCharacterServer = `INSERT INTO ffxiv_character_servers (character_id, server_id)
		VALUES ($1, (SELECT server_id FROM ffxiv_server WHERE server = $2)) ON CONFLICT DO NOTHING`
	sqlAddCharacterName = `INSERT INTO ffxiv_character_names (character_id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	sqlAddCharacterClan = `INSERT INTO ffxiv_character_clans (character_id, gender, clan_id)
		VALUES ($1, $2, (SELECT clan_id FROM ffxiv_clan WHERE clan = $3)) ON CONFLICT DO NOTHING`

	sqlUpsertCharacterAchievement = `INSERT INTO ffxiv_character_achievement (character_id, achievement_id, time)
		VALUES ($1, $2, $3)
		ON CONFLICT (character_id, achievement_id) DO UPDATE SET time = EXCLUDED.time`
	sqlIncrementEarnedBy = `UPDATE ffxiv_achievement SET earned_by = earned_by + 1 WHERE achievement_id = $1`

	sqlResetFriends  = `UPDATE ffxiv_character_friends SET current = false WHERE character_id = $1`
	sqlUpsertFriend  = `INSERT INTO ffxiv_character_friends (character_id, friend, current) VALUES ($1, $2, true)
		ON CONFLICT (character_id, friend) DO UPDATE SET current = true`
	sqlResetFollowing = `UPDATE ffxiv_character_following SET current = false WHERE character_id = $1`
	sqlUpsertFollowing = `INSERT INTO ffxiv_character_following (character_id, following, current) VALUES ($1, $2, true)
		ON CONFLICT (character_id, following) DO UPDATE SET current = true`

	sqlDepartFriends   = `UPDATE ffxiv_character_friends SET current = false WHERE character_id = $1 OR friend = $1`
	sqlDepartFollowing = `UPDATE ffxiv_character_following SET current = false WHERE character_id = $1 OR following = $1`

	sqlMarkCharacterPrivate = `UPDATE ffxiv_character SET hidden = COALESCE(hidden, now()), updated = now() WHERE character_id = $1`
)

type characterKind struct {
	t *Tracker
}

func (k *characterKind) Type() model.EntityType { return model.EntityCharacter }

func (k *characterKind) Load(ctx context.Context, id string) (any, error) {
	return loaded(k.t.loader.LoadCharacter(ctx, id))
}

func (k *characterKind) Fetch(ctx context.Context, id string) (FetchResult[*model.CharacterProfile], error) {
	p, err := k.t.source.FetchCharacter(ctx, id)
	switch {
	case errors.Is(err, lodestone.ErrNotFound):
		return NotFound[*model.CharacterProfile](), nil
	case errors.Is(err, lodestone.ErrForbidden):
		return Private[*model.CharacterProfile](), nil
	case err != nil:
		return FetchResult[*model.CharacterProfile]{}, err
	}
	if p.Server == "" {
		return FetchResult[*model.CharacterProfile]{}, failure("No server found for character ID `%s`", id)
	}
	return Found(p, p.Name), nil
}

func (k *characterKind) MarkPrivate(ctx context.Context, id string) error {
	if err := k.t.repo.ExecuteBatch(ctx, []repository.Statement{
		repository.Stmt(sqlMarkCharacterPrivate, id),
	}); err != nil {
		return err
	}
	k.prune(ctx, id)
	return nil
}

// prune は更新後に古い獲得記録を整理する。失敗しても更新自体は成功とする。
func (k *characterKind) prune(ctx context.Context, id string) {
	if _, err := k.t.PruneAchievements(ctx, id); err != nil {
		k.t.logger.Warn("アチーブメントの整理に失敗しました",
			slog.String("entity_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// genderCode は性別をDBの値（1: male, 0: female）に変換する。
func genderCode(gender string) any {
	switch gender {
	case "male":
		return 1
	case "female":
		return 0
	}
	return nil
}

func (k *characterKind) Reconcile(ctx context.Context, id string, res FetchResult[*model.CharacterProfile]) error {
	p := res.Payload()

	previous, err := k.t.repo.QueryTime(ctx, entitySQL[model.EntityCharacter].updated, id)
	if err != nil {
		return err
	}
	newFC, err := k.joinsGroup(ctx, model.EntityFreeCompany, id, p.FreeCompanyID)
	if err != nil {
		return err
	}
	newPvP, err := k.joinsGroup(ctx, model.EntityPvPTeam, id, p.PvPTeamID)
	if err != nil {
		return err
	}

	var stmts []repository.Statement

	// 参照テーブル
	if p.DataCenter != "" {
		stmts = append(stmts, repository.Stmt(sqlUpsertServer, p.Server, p.DataCenter))
	} else {
		stmts = append(stmts, repository.Stmt(sqlEnsureServer, p.Server, ""))
	}
	if p.Clan != "" {
		stmts = append(stmts, repository.Stmt(sqlAddClan, p.Race, p.Clan))
	}
	if p.Guardian != "" {
		stmts = append(stmts, repository.Stmt(sqlAddGuardian, p.Guardian))
	}
	if p.Nameday != "" {
		stmts = append(stmts, repository.Stmt(sqlAddNameday, p.Nameday))
	}
	if p.City != "" {
		stmts = append(stmts, repository.Stmt(sqlAddCity, p.City))
	}
	if gc := model.GrandCompanyID(p.GrandCompany); gc > 0 && p.GrandCompanyRank != "" {
		stmts = append(stmts, repository.Stmt(sqlAddGCRank, gc, p.GrandCompanyRank))
	}
	for _, job := range p.Jobs {
		if job.Level > 0 {
			stmts = append(stmts, repository.Stmt(sqlAddJob, job.Name))
		}
	}

	// 所属グループが未登録の場合は最小情報で登録する
	if p.FreeCompanyID != "" {
		stmts = append(stmts, repository.Stmt(sqlFreeCompanyStub, p.FreeCompanyID, p.FreeCompanyName, p.Server))
	}
	if p.PvPTeamID != "" {
		stmts = append(stmts, repository.Stmt(sqlPvPTeamStub, p.PvPTeamID, p.PvPTeamName, p.DataCenter))
	}

	points := 0
	for _, a := range p.Achievements {
		points += a.Points
		icon := k.t.cacheIcon(ctx, achievementIconDir, a.Icon)
		stmts = append(stmts, repository.Stmt(sqlAchievementBrief, a.ID, a.Name, nullIfEmpty(icon), a.Points))
	}

	stmts = append(stmts, repository.Stmt(sqlUpsertCharacter,
		id, p.Server, p.Name, trimAvatar(p.Avatar),
		p.AchievementsPrivate, p.FriendsPrivate, p.FollowingPrivate,
		k.t.sanitize(p.Biography),
		nullIfEmpty(p.Title),
		nullIfEmpty(p.Clan),
		genderCode(p.Gender),
		nullIfEmpty(p.Nameday),
		nullIfEmpty(p.Guardian),
		nullIfEmpty(p.City),
		nullIfEmpty(p.GrandCompanyRank),
		p.PvPMatches,
		points,
	))

	for _, job := range p.Jobs {
		if job.Level > 0 {
			stmts = append(stmts, repository.Stmt(sqlUpsertCharacterJob, id, job.Name, job.Level))
		}
	}
	stmts = append(stmts,
		repository.Stmt(sqlAddCharacterServer, id, p.Server),
		repository.Stmt(sqlAddCharacterName, id, p.Name),
	)
	if gender := genderCode(p.Gender); gender != nil && p.Clan != "" {
		stmts = append(stmts, repository.Stmt(sqlAddCharacterClan, id, gender, p.Clan))
	}

	stmts = append(stmts,
		repository.Stmt(groupSQL[model.EntityFreeCompany].leaveOthers, id, nullIfEmpty(p.FreeCompanyID)),
		repository.Stmt(groupSQL[model.EntityPvPTeam].leaveOthers, id, nullIfEmpty(p.PvPTeamID)),
	)

	for _, a := range p.Achievements {
		stmts = append(stmts, repository.Stmt(sqlUpsertCharacterAchievement, id, a.ID, a.Time))
		if previous == nil || a.Time.After(*previous) {
			stmts = append(stmts, repository.Stmt(sqlIncrementEarnedBy, a.ID))
		}
	}

	contacts, added, err := k.contacts(ctx, id, p)
	if err != nil {
		return err
	}
	stmts = append(stmts, contacts...)

	if err := k.t.repo.ExecuteBatch(ctx, stmts); err != nil {
		return err
	}

	if previous != nil {
		k.prune(ctx, id)
	}
	k.t.enqueueCharacters(ctx, added)
	if newFC {
		k.refreshGroup(ctx, model.EntityFreeCompany, p.FreeCompanyID)
	}
	if newPvP {
		k.refreshGroup(ctx, model.EntityPvPTeam, p.PvPTeamID)
	}
	return nil
}

// contacts はフレンド・フォロー一覧を反映する文を返す。非公開の一覧は変更しない。
func (k *characterKind) contacts(ctx context.Context, id string, p *model.CharacterProfile) ([]repository.Statement, []string, error) {
	var entries []model.MemberEntry
	if !p.FriendsPrivate {
		entries = append(entries, p.Friends...)
	}
	if !p.FollowingPrivate {
		entries = append(entries, p.Following...)
	}

	stmts, added, err := k.t.characterStubs(ctx, entries)
	if err != nil {
		return nil, nil, err
	}
	if !p.FriendsPrivate {
		stmts = append(stmts, repository.Stmt(sqlResetFriends, id))
		for _, f := range p.Friends {
			stmts = append(stmts, repository.Stmt(sqlUpsertFriend, id, f.ID))
		}
	}
	if !p.FollowingPrivate {
		stmts = append(stmts, repository.Stmt(sqlResetFollowing, id))
		for _, f := range p.Following {
			stmts = append(stmts, repository.Stmt(sqlUpsertFollowing, id, f.ID))
		}
	}
	return stmts, added, nil
}

// joinsGroup はキャラクターがまだグループの現メンバーとして記録されていないかを返す。
func (k *characterKind) joinsGroup(ctx context.Context, kind model.EntityType, characterID, groupID string) (bool, error) {
	if groupID == "" {
		return false, nil
	}
	member, err := k.t.repo.Exists(ctx, groupSQL[kind].isMember, characterID, groupID)
	if err != nil {
		return false, err
	}
	return !member, nil
}

// refreshGroup は新たに加入したグループを更新する。失敗した場合はジョブとして登録する。
func (k *characterKind) refreshGroup(ctx context.Context, kind model.EntityType, groupID string) {
	group, err := k.t.Open(kind, groupID)
	if err == nil {
		err = group.Update(ctx, false)
	}
	if err != nil {
		k.t.logger.Info("グループの更新を延期しました",
			slog.String("kind", string(kind)),
			slog.String("entity_id", groupID),
			slog.String("error", err.Error()),
		)
		k.t.enqueueUpdate(ctx, kind, groupID, PriorityScheduled)
	}
}

func (k *characterKind) Delete(ctx context.Context, id string) error {
	stmts := make([]repository.Statement, 0, len(memberSQL)+3)
	for _, gs := range memberSQL {
		stmts = append(stmts, repository.Stmt(gs.departCharacter, id))
	}
	stmts = append(stmts,
		repository.Stmt(sqlDepartFriends, id),
		repository.Stmt(sqlDepartFollowing, id),
		repository.Stmt(softDeleteSQL(model.EntityCharacter), id),
	)
	return k.t.repo.ExecuteBatch(ctx, stmts)
}

// compile-time interface check
var (
	_ Kind[*model.CharacterProfile] = (*characterKind)(nil)
	_ privateMarker                 = (*characterKind)(nil)
)
