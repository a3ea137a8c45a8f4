package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simbiat/fftracker/internal/model"
)

// recentAchievementsLimit はキャラクター・アチーブメントで返す最近の獲得件数。
const recentAchievementsLimit = 10

// PostgresEntityLoader はPostgreSQLからAPI出力用のエンティティを読み込む。
type PostgresEntityLoader struct {
	db *sql.DB
}

// NewPostgresEntityLoader はPostgresEntityLoaderを生成する。
func NewPostgresEntityLoader(db *sql.DB) *PostgresEntityLoader {
	return &PostgresEntityLoader{db: db}
}

// eachRow はクエリ結果の各行にscanを適用する。
func (l *PostgresEntityLoader) eachRow(ctx context.Context, scan func(*sql.Rows) error, query string, args ...any) error {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// strings は1列の文字列リストを読み込む。
func (l *PostgresEntityLoader) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	var result []string
	err := l.eachRow(ctx, func(rows *sql.Rows) error {
		var s string
		if err := rows.Scan(&s); err != nil {
			return err
		}
		result = append(result, s)
		return nil
	}, query, args...)
	return result, err
}

// LoadCharacter はキャラクターを読み込む。見つからない場合はnilを返す。
func (l *PostgresEntityLoader) LoadCharacter(ctx context.Context, id string) (*model.Character, error) {
	c := &model.Character{}
	var (
		biography, title, titleID, gender, race, clan sql.NullString
		nameday, guardian, server, dataCenter, city   sql.NullString
		gcName, gcRank                                sql.NullString
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT c.character_id::text, c.name, c.avatar, c.registered, c.updated, c.deleted,
		        c.hidden, c.hidden_achievements, c.hidden_friends, c.hidden_following,
		        c.biography, a.title, c.title_id::text,
		        CASE c.gender WHEN 1 THEN 'male' WHEN 0 THEN 'female' END,
		        cl.race, cl.clan, n.nameday, g.guardian, s.server, s.data_center, ci.city,
		        gc.gc_name, gcr.gc_rank, c.pvp_matches, c.achievement_points
		 FROM ffxiv_character c
		 LEFT JOIN ffxiv_achievement a ON a.achievement_id = c.title_id
		 LEFT JOIN ffxiv_clan cl ON cl.clan_id = c.clan_id
		 LEFT JOIN ffxiv_nameday n ON n.nameday_id = c.nameday_id
		 LEFT JOIN ffxiv_guardian g ON g.guardian_id = c.guardian_id
		 LEFT JOIN ffxiv_server s ON s.server_id = c.server_id
		 LEFT JOIN ffxiv_city ci ON ci.city_id = c.city_id
		 LEFT JOIN ffxiv_grandcompany_rank gcr ON gcr.gc_rank_id = c.gc_rank_id
		 LEFT JOIN ffxiv_grandcompany gc ON gc.gc_id = gcr.gc_id
		 WHERE c.character_id = $1`,
		id,
	).Scan(
		&c.ID, &c.Name, &c.Avatar, &c.Dates.Registered, &c.Dates.Updated, &c.Dates.Deleted,
		&c.Hidden, &c.HiddenAchievements, &c.HiddenFriends, &c.HiddenFollowing,
		&biography, &title, &titleID, &gender,
		&race, &clan, &nameday, &guardian, &server, &dataCenter, &city,
		&gcName, &gcRank, &c.PvPMatches, &c.AchievementPoints,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キャラクターの取得に失敗しました: %w", err)
	}

	c.Biography = nullStringPtr(biography)
	if title.Valid {
		c.Title = &model.TitleRef{Title: title.String, AchievementID: titleID.String}
	}
	c.Biology = model.CharacterBiology{
		Gender:   nullStringValue(gender),
		Race:     nullStringValue(race),
		Clan:     nullStringValue(clan),
		Nameday:  nullStringValue(nameday),
		Guardian: nullStringValue(guardian),
	}
	c.Location = model.CharacterLocation{
		Server:     nullStringValue(server),
		DataCenter: nullStringValue(dataCenter),
		City:       nullStringValue(city),
	}
	if gcName.Valid {
		c.GrandCompany = &model.GrandCompanyRank{Name: gcName.String, Rank: nullStringValue(gcRank)}
	}

	if err := l.eachRow(ctx, func(rows *sql.Rows) error {
		var job model.CharacterJob
		if err := rows.Scan(&job.Name, &job.Level, &job.LastChange); err != nil {
			return err
		}
		c.Jobs = append(c.Jobs, job)
		return nil
	},
		`SELECT j.name, cj.level, cj.last_change
		 FROM ffxiv_character_jobs cj
		 JOIN ffxiv_jobs j ON j.job_id = cj.job_id
		 WHERE cj.character_id = $1
		 ORDER BY j.name`,
		id,
	); err != nil {
		return nil, fmt.Errorf("ジョブ一覧の取得に失敗しました: %w", err)
	}

	if c.PreviousNames, err = l.strings(ctx,
		`SELECT name FROM ffxiv_character_names WHERE character_id = $1 AND name <> $2 ORDER BY name`,
		id, c.Name,
	); err != nil {
		return nil, fmt.Errorf("名前履歴の取得に失敗しました: %w", err)
	}

	if c.PreviousServers, err = l.strings(ctx,
		`SELECT s.server
		 FROM ffxiv_character_servers cs
		 JOIN ffxiv_server s ON s.server_id = cs.server_id
		 WHERE cs.character_id = $1 AND cs.server_id IS DISTINCT FROM (SELECT server_id FROM ffxiv_character WHERE character_id = $1)
		 ORDER BY s.server`,
		id,
	); err != nil {
		return nil, fmt.Errorf("サーバー履歴の取得に失敗しました: %w", err)
	}

	if err := l.eachRow(ctx, func(rows *sql.Rows) error {
		var g model.GroupMembership
		var rank sql.NullString
		if err := rows.Scan(&g.Type, &g.ID, &g.Name, &rank, &g.Current); err != nil {
			return err
		}
		g.Rank = nullStringValue(rank)
		c.Groups = append(c.Groups, g)
		return nil
	},
		`SELECT 'freecompany', f.fc_id::text, f.name, r.rankname, m.current
		 FROM ffxiv_freecompany_character m
		 JOIN ffxiv_freecompany f ON f.fc_id = m.fc_id
		 LEFT JOIN ffxiv_freecompany_rank r ON r.fc_id = m.fc_id AND r.rank_id = m.rank_id
		 WHERE m.character_id = $1
		 UNION ALL
		 SELECT CASE WHEN l.crossworld THEN 'crossworldlinkshell' ELSE 'linkshell' END, l.ls_id, l.name, r.rank, m.current
		 FROM ffxiv_linkshell_character m
		 JOIN ffxiv_linkshell l ON l.ls_id = m.ls_id
		 LEFT JOIN ffxiv_linkshell_rank r ON r.ls_rank_id = m.rank_id
		 WHERE m.character_id = $1
		 UNION ALL
		 SELECT 'pvpteam', p.pvp_id, p.name, r.rank, m.current
		 FROM ffxiv_pvpteam_character m
		 JOIN ffxiv_pvpteam p ON p.pvp_id = m.pvp_id
		 LEFT JOIN ffxiv_pvpteam_rank r ON r.pvp_rank_id = m.rank_id
		 WHERE m.character_id = $1`,
		id,
	); err != nil {
		return nil, fmt.Errorf("所属グループの取得に失敗しました: %w", err)
	}

	if err := l.eachRow(ctx, func(rows *sql.Rows) error {
		var a model.EarnedAchievement
		var icon sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &icon, &a.Points, &a.Time); err != nil {
			return err
		}
		a.Icon = nullStringValue(icon)
		c.Achievements = append(c.Achievements, a)
		return nil
	},
		`SELECT a.achievement_id::text, a.name, a.icon, a.points, ca.time
		 FROM ffxiv_character_achievement ca
		 JOIN ffxiv_achievement a ON a.achievement_id = ca.achievement_id
		 WHERE ca.character_id = $1
		 ORDER BY ca.time DESC
		 LIMIT $2`,
		id, recentAchievementsLimit,
	); err != nil {
		return nil, fmt.Errorf("アチーブメント一覧の取得に失敗しました: %w", err)
	}

	if c.Friends, err = l.characterRefs(ctx,
		`SELECT c.character_id::text, c.name, c.avatar, f.current, NULL::timestamptz
		 FROM ffxiv_character_friends f
		 JOIN ffxiv_character c ON c.character_id = f.friend
		 WHERE f.character_id = $1
		 ORDER BY f.current DESC, c.name`,
		id,
	); err != nil {
		return nil, fmt.Errorf("フレンド一覧の取得に失敗しました: %w", err)
	}

	if c.Following, err = l.characterRefs(ctx,
		`SELECT c.character_id::text, c.name, c.avatar, f.current, NULL::timestamptz
		 FROM ffxiv_character_following f
		 JOIN ffxiv_character c ON c.character_id = f.following
		 WHERE f.character_id = $1
		 ORDER BY f.current DESC, c.name`,
		id,
	); err != nil {
		return nil, fmt.Errorf("フォロー一覧の取得に失敗しました: %w", err)
	}

	return c, nil
}

// characterRefs はid, name, avatar, current, time の5列からCharacterRefを読み込む。
func (l *PostgresEntityLoader) characterRefs(ctx context.Context, query string, args ...any) ([]model.CharacterRef, error) {
	var refs []model.CharacterRef
	err := l.eachRow(ctx, func(rows *sql.Rows) error {
		var ref model.CharacterRef
		var when sql.NullTime
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Avatar, &ref.Current, &when); err != nil {
			return err
		}
		if when.Valid {
			t := when.Time
			ref.Time = &t
		}
		refs = append(refs, ref)
		return nil
	}, query, args...)
	return refs, err
}

// members は id, name, avatar, rank, rank_id, current の6列からMemberを読み込む。
func (l *PostgresEntityLoader) members(ctx context.Context, query string, args ...any) ([]model.Member, error) {
	var result []model.Member
	err := l.eachRow(ctx, func(rows *sql.Rows) error {
		var m model.Member
		var rank sql.NullString
		var rankID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Name, &m.Avatar, &rank, &rankID, &m.Current); err != nil {
			return err
		}
		m.Rank = nullStringValue(rank)
		m.RankID = int(rankID.Int64)
		result = append(result, m)
		return nil
	}, query, args...)
	return result, err
}

// LoadFreeCompany はフリーカンパニーを読み込む。見つからない場合はnilを返す。
func (l *PostgresEntityLoader) LoadFreeCompany(ctx context.Context, id string) (*model.FreeCompany, error) {
	fc := &model.FreeCompany{}
	var (
		server, dataCenter, gcName, crest1, crest2, crest3 sql.NullString
		slogan, active, community                          sql.NullString
		estateZone, estateAddress, estateMessage           sql.NullString
		focus                                              [9]bool
		seeking                                            [5]bool
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT f.fc_id::text, f.name, f.tag, f.registered, f.updated, f.deleted, f.formed,
		        s.server, s.data_center, gc.gc_name, f.crest_part_1, f.crest_part_2, f.crest_part_3,
		        f.slogan, t.active, f.recruitment, f.rank, f.community_id,
		        f.estate_zone, f.estate_address, f.estate_message,
		        f.role_playing, f.leveling, f.casual, f.hardcore, f.dungeons, f.guildhests, f.trials, f.raids, f.pvp,
		        f.tank, f.healer, f.dps, f.crafter, f.gatherer
		 FROM ffxiv_freecompany f
		 LEFT JOIN ffxiv_server s ON s.server_id = f.server_id
		 LEFT JOIN ffxiv_grandcompany gc ON gc.gc_id = f.gc_id
		 LEFT JOIN ffxiv_timeactive t ON t.active_id = f.active_id
		 WHERE f.fc_id = $1`,
		id,
	).Scan(
		&fc.ID, &fc.Name, &fc.Tag, &fc.Dates.Registered, &fc.Dates.Updated, &fc.Dates.Deleted, &fc.Formed,
		&server, &dataCenter, &gcName, &crest1, &crest2, &crest3,
		&slogan, &active, &fc.Recruitment, &fc.Rank, &community,
		&estateZone, &estateAddress, &estateMessage,
		&focus[0], &focus[1], &focus[2], &focus[3], &focus[4], &focus[5], &focus[6], &focus[7], &focus[8],
		&seeking[0], &seeking[1], &seeking[2], &seeking[3], &seeking[4],
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フリーカンパニーの取得に失敗しました: %w", err)
	}

	fc.Server = nullStringValue(server)
	fc.DataCenter = nullStringValue(dataCenter)
	fc.GrandCompany = nullStringValue(gcName)
	fc.Crest = []string{nullStringValue(crest1), nullStringValue(crest2), nullStringValue(crest3)}
	fc.Slogan = nullStringPtr(slogan)
	fc.Active = nullStringPtr(active)
	fc.Community = nullStringPtr(community)
	if estateZone.Valid {
		fc.Estate = &model.Estate{
			Zone:    estateZone.String,
			Address: nullStringValue(estateAddress),
			Message: nullStringValue(estateMessage),
		}
	}
	for i, name := range []string{"role_playing", "leveling", "casual", "hardcore", "dungeons", "guildhests", "trials", "raids", "pvp"} {
		if focus[i] {
			fc.Focus = append(fc.Focus, name)
		}
	}
	for i, name := range []string{"tank", "healer", "dps", "crafter", "gatherer"} {
		if seeking[i] {
			fc.Seeking = append(fc.Seeking, name)
		}
	}

	if err := l.eachRow(ctx, func(rows *sql.Rows) error {
		var r model.RankingSnapshot
		if err := rows.Scan(&r.Date, &r.Weekly, &r.Monthly, &r.Members); err != nil {
			return err
		}
		fc.Ranking = append(fc.Ranking, r)
		return nil
	},
		`SELECT date, weekly, monthly, members FROM ffxiv_freecompany_ranking WHERE fc_id = $1 ORDER BY date DESC`,
		id,
	); err != nil {
		return nil, fmt.Errorf("ランキング履歴の取得に失敗しました: %w", err)
	}

	if fc.Members, err = l.members(ctx,
		`SELECT c.character_id::text, c.name, c.avatar, r.rankname, m.rank_id, m.current
		 FROM ffxiv_freecompany_character m
		 JOIN ffxiv_character c ON c.character_id = m.character_id
		 LEFT JOIN ffxiv_freecompany_rank r ON r.fc_id = m.fc_id AND r.rank_id = m.rank_id
		 WHERE m.fc_id = $1
		 ORDER BY m.current DESC, m.rank_id, c.name`,
		id,
	); err != nil {
		return nil, fmt.Errorf("メンバー一覧の取得に失敗しました: %w", err)
	}

	if fc.OldNames, err = l.strings(ctx,
		`SELECT name FROM ffxiv_freecompany_names WHERE fc_id = $1 AND name <> $2 ORDER BY name`,
		id, fc.Name,
	); err != nil {
		return nil, fmt.Errorf("名前履歴の取得に失敗しました: %w", err)
	}

	return fc, nil
}

// LoadLinkshell はリンクシェルを読み込む。見つからない場合はnilを返す。
func (l *PostgresEntityLoader) LoadLinkshell(ctx context.Context, id string) (*model.Linkshell, error) {
	ls := &model.Linkshell{}
	var server, dataCenter, community sql.NullString
	err := l.db.QueryRowContext(ctx,
		`SELECT l.ls_id, l.name, l.crossworld, l.registered, l.updated, l.deleted, l.formed,
		        CASE WHEN l.crossworld THEN NULL ELSE s.server END, s.data_center, l.community_id
		 FROM ffxiv_linkshell l
		 LEFT JOIN ffxiv_server s ON s.server_id = l.server_id
		 WHERE l.ls_id = $1`,
		id,
	).Scan(
		&ls.ID, &ls.Name, &ls.Crossworld, &ls.Dates.Registered, &ls.Dates.Updated, &ls.Dates.Deleted, &ls.Formed,
		&server, &dataCenter, &community,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リンクシェルの取得に失敗しました: %w", err)
	}
	ls.Server = nullStringPtr(server)
	ls.DataCenter = nullStringValue(dataCenter)
	ls.Community = nullStringPtr(community)

	if ls.Members, err = l.members(ctx,
		`SELECT c.character_id::text, c.name, c.avatar, r.rank, m.rank_id, m.current
		 FROM ffxiv_linkshell_character m
		 JOIN ffxiv_character c ON c.character_id = m.character_id
		 LEFT JOIN ffxiv_linkshell_rank r ON r.ls_rank_id = m.rank_id
		 WHERE m.ls_id = $1
		 ORDER BY m.current DESC, m.rank_id, c.name`,
		id,
	); err != nil {
		return nil, fmt.Errorf("メンバー一覧の取得に失敗しました: %w", err)
	}

	if ls.OldNames, err = l.strings(ctx,
		`SELECT name FROM ffxiv_linkshell_names WHERE ls_id = $1 AND name <> $2 ORDER BY name`,
		id, ls.Name,
	); err != nil {
		return nil, fmt.Errorf("名前履歴の取得に失敗しました: %w", err)
	}

	return ls, nil
}

// LoadPvPTeam はPvPチームを読み込む。見つからない場合はnilを返す。
func (l *PostgresEntityLoader) LoadPvPTeam(ctx context.Context, id string) (*model.PvPTeam, error) {
	team := &model.PvPTeam{}
	var dataCenter, community, crest1, crest2, crest3 sql.NullString
	err := l.db.QueryRowContext(ctx,
		`SELECT p.pvp_id, p.name, p.registered, p.updated, p.deleted, p.formed,
		        s.data_center, p.community_id, p.crest_part_1, p.crest_part_2, p.crest_part_3
		 FROM ffxiv_pvpteam p
		 LEFT JOIN ffxiv_server s ON s.server_id = p.data_center_id
		 WHERE p.pvp_id = $1`,
		id,
	).Scan(
		&team.ID, &team.Name, &team.Dates.Registered, &team.Dates.Updated, &team.Dates.Deleted, &team.Formed,
		&dataCenter, &community, &crest1, &crest2, &crest3,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("PvPチームの取得に失敗しました: %w", err)
	}
	team.DataCenter = nullStringValue(dataCenter)
	team.Community = nullStringPtr(community)
	team.Crest = []string{nullStringValue(crest1), nullStringValue(crest2), nullStringValue(crest3)}

	if team.Members, err = l.members(ctx,
		`SELECT c.character_id::text, c.name, c.avatar, r.rank, m.rank_id, m.current
		 FROM ffxiv_pvpteam_character m
		 JOIN ffxiv_character c ON c.character_id = m.character_id
		 LEFT JOIN ffxiv_pvpteam_rank r ON r.pvp_rank_id = m.rank_id
		 WHERE m.pvp_id = $1
		 ORDER BY m.current DESC, m.rank_id, c.name`,
		id,
	); err != nil {
		return nil, fmt.Errorf("メンバー一覧の取得に失敗しました: %w", err)
	}

	if team.OldNames, err = l.strings(ctx,
		`SELECT name FROM ffxiv_pvpteam_names WHERE pvp_id = $1 AND name <> $2 ORDER BY name`,
		id, team.Name,
	); err != nil {
		return nil, fmt.Errorf("名前履歴の取得に失敗しました: %w", err)
	}

	return team, nil
}

// LoadAchievement はアチーブメントを読み込む。見つからない場合はnilを返す。
func (l *PostgresEntityLoader) LoadAchievement(ctx context.Context, id string) (*model.Achievement, error) {
	a := &model.Achievement{}
	var icon, category, subcategory, howTo, title, item, itemIcon, itemID, dbID sql.NullString
	err := l.db.QueryRowContext(ctx,
		`SELECT achievement_id::text, name, icon, points, category, subcategory, how_to, title,
		        item, item_icon, item_id, db_id, earned_by, registered, updated
		 FROM ffxiv_achievement
		 WHERE achievement_id = $1`,
		id,
	).Scan(
		&a.ID, &a.Name, &icon, &a.Points, &category, &subcategory, &howTo, &title,
		&item, &itemIcon, &itemID, &dbID, &a.EarnedBy, &a.Dates.Registered, &a.Dates.Updated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アチーブメントの取得に失敗しました: %w", err)
	}
	a.Icon = nullStringValue(icon)
	a.Category = nullStringPtr(category)
	a.Subcategory = nullStringPtr(subcategory)
	a.HowTo = nullStringPtr(howTo)
	a.Title = nullStringPtr(title)
	a.DBID = nullStringPtr(dbID)
	if item.Valid {
		a.Item = &model.RewardItem{ID: nullStringValue(itemID), Name: item.String, Icon: nullStringValue(itemIcon)}
	}

	if a.LastEarners, err = l.characterRefs(ctx,
		`SELECT c.character_id::text, c.name, c.avatar, TRUE, ca.time
		 FROM ffxiv_character_achievement ca
		 JOIN ffxiv_character c ON c.character_id = ca.character_id
		 WHERE ca.achievement_id = $1 AND c.deleted IS NULL AND c.hidden IS NULL
		 ORDER BY ca.time DESC
		 LIMIT $2`,
		id, recentAchievementsLimit,
	); err != nil {
		return nil, fmt.Errorf("最近の獲得者の取得に失敗しました: %w", err)
	}

	return a, nil
}

// compile-time interface check
var _ EntityLoader = (*PostgresEntityLoader)(nil)
