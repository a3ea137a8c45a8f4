package tracker

import (
	"fmt"

	"github.com/simbiat/fftracker/internal/model"
)

// entityTable はエンティティ種別ごとのメインテーブル。
type entityTable struct {
	table    string
	idColumn string
}

var entityTables = map[model.EntityType]entityTable{
	model.EntityCharacter:           {"ffxiv_character", "character_id"},
	model.EntityFreeCompany:         {"ffxiv_freecompany", "fc_id"},
	model.EntityLinkshell:           {"ffxiv_linkshell", "ls_id"},
	model.EntityCrossworldLinkshell: {"ffxiv_linkshell", "ls_id"},
	model.EntityPvPTeam:             {"ffxiv_pvpteam", "pvp_id"},
	model.EntityAchievement:         {"ffxiv_achievement", "achievement_id"},
}

type entityStatements struct {
	exists  string
	updated string
}

// rankRule はメンバーのランクの解決方法。
type rankRule int

const (
	// rankByID はグループごとのランクテーブルに (group, rank_id, name) を登録する。
	rankByID rankRule = iota
	// rankByName は共通のランクテーブルから名前でIDを引く。
	rankByName
)

// groupSpec はグループ種別ごとのメンバーシップテーブルの対応表。
type groupSpec struct {
	kinds       []model.EntityType
	table       string
	groupColumn string
	namesTable  string
	rank        rankRule
	rankTable   string
	rankID      string
	rankName    string
	defaultRank string
}

var groupSpecs = []groupSpec{
	{
		kinds:       []model.EntityType{model.EntityFreeCompany},
		table:       "ffxiv_freecompany_character",
		groupColumn: "fc_id",
		namesTable:  "ffxiv_freecompany_names",
		rank:        rankByID,
		rankTable:   "ffxiv_freecompany_rank",
		rankID:      "rank_id",
		rankName:    "rankname",
	},
	{
		kinds:       []model.EntityType{model.EntityLinkshell, model.EntityCrossworldLinkshell},
		table:       "ffxiv_linkshell_character",
		groupColumn: "ls_id",
		namesTable:  "ffxiv_linkshell_names",
		rank:        rankByName,
		rankTable:   "ffxiv_linkshell_rank",
		rankID:      "ls_rank_id",
		rankName:    "rank",
		defaultRank: "Member",
	},
	{
		kinds:       []model.EntityType{model.EntityPvPTeam},
		table:       "ffxiv_pvpteam_character",
		groupColumn: "pvp_id",
		namesTable:  "ffxiv_pvpteam_names",
		rank:        rankByName,
		rankTable:   "ffxiv_pvpteam_rank",
		rankID:      "pvp_rank_id",
		rankName:    "rank",
		defaultRank: "Member",
	},
}

// groupStatements はgroupSpecから生成したSQL。
type groupStatements struct {
	spec groupSpec

	current         string
	depart          string
	departAll       string
	departCharacter string
	leaveOthers     string
	isMember        string
	upsertRank      string
	upsertMember    string
	addName         string
}

var (
	entitySQL = map[model.EntityType]entityStatements{}
	groupSQL  = map[model.EntityType]*groupStatements{}
	// memberSQL はキャラクター側から全グループを処理する際の順序付きリスト。
	memberSQL []*groupStatements
)

func init() {
	for kind, t := range entityTables {
		st := entityStatements{
			exists:  fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, t.table, t.idColumn),
			updated: fmt.Sprintf(`SELECT updated FROM %s WHERE %s = $1`, t.table, t.idColumn),
		}
		entitySQL[kind] = st
	}

	for _, spec := range groupSpecs {
		gs := buildGroupStatements(spec)
		memberSQL = append(memberSQL, gs)
		for _, kind := range spec.kinds {
			groupSQL[kind] = gs
		}
	}
}

func buildGroupStatements(spec groupSpec) *groupStatements {
	t, g := spec.table, spec.groupColumn
	gs := &groupStatements{
		spec:            spec,
		current:         fmt.Sprintf(`SELECT character_id::text FROM %s WHERE %s = $1 AND current`, t, g),
		depart:          fmt.Sprintf(`UPDATE %s SET current = false WHERE %s = $1 AND character_id = $2`, t, g),
		departAll:       fmt.Sprintf(`UPDATE %s SET current = false WHERE %s = $1`, t, g),
		departCharacter: fmt.Sprintf(`UPDATE %s SET current = false WHERE character_id = $1`, t),
		leaveOthers:     fmt.Sprintf(`UPDATE %s SET current = false WHERE character_id = $1 AND %s IS DISTINCT FROM $2`, t, g),
		isMember:        fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE character_id = $1 AND %s = $2 AND current)`, t, g),
		addName:         fmt.Sprintf(`INSERT INTO %s (%s, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, spec.namesTable, g),
	}

	switch spec.rank {
	case rankByID:
		gs.upsertRank = fmt.Sprintf(
			`INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3)
			 ON CONFLICT (%s, %s) DO UPDATE SET %s = EXCLUDED.%s`,
			spec.rankTable, g, spec.rankID, spec.rankName,
			g, spec.rankID, spec.rankName, spec.rankName,
		)
		gs.upsertMember = fmt.Sprintf(
			`INSERT INTO %s (%s, character_id, rank_id, current) VALUES ($1, $2, $3, true)
			 ON CONFLICT (%s, character_id) DO UPDATE SET current = true, rank_id = EXCLUDED.rank_id`,
			t, g, g,
		)
	case rankByName:
		gs.upsertMember = fmt.Sprintf(
			`INSERT INTO %s (%s, character_id, rank_id, current)
			 VALUES ($1, $2, (SELECT %s FROM %s WHERE %s = $3 LIMIT 1), true)
			 ON CONFLICT (%s, character_id) DO UPDATE SET current = true, rank_id = EXCLUDED.rank_id`,
			t, g, spec.rankID, spec.rankTable, spec.rankName, g,
		)
	}
	return gs
}

// 種別をまたいで使う静的なSQL。
const (
	sqlKnownCharacters = `SELECT character_id::text FROM ffxiv_character WHERE character_id = ANY($1::bigint[])`

	sqlCharacterStub = `INSERT INTO ffxiv_character (character_id, server_id, name, avatar, registered, updated, gc_rank_id)
		VALUES ($1, (SELECT server_id FROM ffxiv_server WHERE server = $2), $3, $4, now(), now() - interval '1 hour',
		        (SELECT gc_rank_id FROM ffxiv_grandcompany_rank WHERE gc_rank = $5))
		ON CONFLICT (character_id) DO UPDATE SET deleted = NULL`

	sqlEnsureServer = `INSERT INTO ffxiv_server (server, data_center) VALUES ($1, $2) ON CONFLICT (server) DO NOTHING`

	sqlUpsertServer = `INSERT INTO ffxiv_server (server, data_center) VALUES ($1, $2)
		ON CONFLICT (server) DO UPDATE SET data_center = EXCLUDED.data_center`

	sqlSoftDelete = `UPDATE %s SET deleted = COALESCE(deleted, now()), updated = now() WHERE %s = $1`
)

// softDeleteSQL はメインテーブルの論理削除文を返す。
func softDeleteSQL(kind model.EntityType) string {
	t := entityTables[kind]
	return fmt.Sprintf(sqlSoftDelete, t.table, t.idColumn)
}
