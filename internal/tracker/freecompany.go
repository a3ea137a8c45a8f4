package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/simbiat/fftracker/internal/lodestone"
	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

// freeCompanyFlags はフォーカス・募集ロールの列。Lodestoneの表記から変換したキーと一致する。
var freeCompanyFlags = []string{
	"role_playing", "leveling", "casual", "hardcore", "dungeons", "guildhests", "trials", "raids", "pvp",
	"tank", "healer", "dps", "crafter", "gatherer",
}

// freeCompanyColumns は固定列と値の式。$nは順に割り当てる。
var freeCompanyColumns = []struct {
	name string
	expr string
}{
	{"fc_id", "$%d"},
	{"name", "$%d"},
	{"server_id", "(SELECT server_id FROM ffxiv_server WHERE server = $%d)"},
	{"formed", "$%d"},
	{"gc_id", "$%d"},
	{"tag", "$%d"},
	{"crest_part_1", "$%d"},
	{"crest_part_2", "$%d"},
	{"crest_part_3", "$%d"},
	{"rank", "$%d"},
	{"slogan", "$%d"},
	{"active_id", "(SELECT active_id FROM ffxiv_timeactive WHERE active = $%d)"},
	{"recruitment", "$%d"},
	{"community_id", "$%d"},
	{"estate_zone", "$%d"},
	{"estate_address", "$%d"},
	{"estate_message", "$%d"},
}

var sqlUpsertFreeCompany = buildFreeCompanyUpsert()

func buildFreeCompanyUpsert() string {
	var cols, values, updates []string
	n := 0
	add := func(name, expr string) {
		n++
		cols = append(cols, name)
		values = append(values, fmt.Sprintf(expr, n))
		if name != "fc_id" {
			updates = append(updates, name+" = EXCLUDED."+name)
		}
	}
	for _, c := range freeCompanyColumns {
		add(c.name, c.expr)
	}
	for _, flag := range freeCompanyFlags {
		add(flag, "$%d")
	}
	return fmt.Sprintf(
		`INSERT INTO ffxiv_freecompany (%s, registered, updated) VALUES (%s, now(), now())
		 ON CONFLICT (fc_id) DO UPDATE SET %s, updated = now(), deleted = NULL`,
		strings.Join(cols, ", "), strings.Join(values, ", "), strings.Join(updates, ", "),
	)
}

const (
	sqlAddTimeActive = `INSERT INTO ffxiv_timeactive (active) VALUES ($1) ON CONFLICT (active) DO NOTHING`

	sqlAddRanking = `INSERT INTO ffxiv_freecompany_ranking (fc_id, date, weekly, monthly, members)
		SELECT $1::bigint, now(), $2::integer, $3::integer, $4::integer
		WHERE NOT EXISTS (
			SELECT 1 FROM (
				SELECT weekly, monthly FROM ffxiv_freecompany_ranking
				WHERE fc_id = $1::bigint ORDER BY date DESC LIMIT 1
			) last
			WHERE last.weekly = $2::integer AND last.monthly = $3::integer
		)`
)

type freeCompanyKind struct {
	t *Tracker
}

func (k *freeCompanyKind) Type() model.EntityType { return model.EntityFreeCompany }

func (k *freeCompanyKind) Load(ctx context.Context, id string) (any, error) {
	fc, err := k.t.loader.LoadFreeCompany(ctx, id)
	if err != nil || fc == nil {
		return loaded(fc, err)
	}
	if k.t.crests != nil {
		// クレストが合成できない場合はグランドカンパニーのIDをアイコンにする
		fc.Icon = k.t.crests.Icon(ctx, fc.Crest, model.GrandCompanyID(fc.GrandCompany))
	}
	return fc, nil
}

func (k *freeCompanyKind) Fetch(ctx context.Context, id string) (FetchResult[*model.FreeCompanyProfile], error) {
	var none FetchResult[*model.FreeCompanyProfile]

	fc, err := k.t.source.FetchFreeCompany(ctx, id)
	if errors.Is(err, lodestone.ErrNotFound) {
		return NotFound[*model.FreeCompanyProfile](), nil
	}
	if err != nil {
		return none, err
	}
	if fc.Server == "" {
		return none, failure("No server found for free company ID `%s`", id)
	}

	var members []model.MemberEntry
	for page := 1; ; page++ {
		mp, err := k.t.source.FetchFreeCompanyMembers(ctx, id, page)
		if errors.Is(err, lodestone.ErrNotFound) {
			return NotFound[*model.FreeCompanyProfile](), nil
		}
		if err != nil {
			return none, err
		}
		members = append(members, mp.Members...)
		if mp.PageTotal == 0 || page >= mp.PageTotal {
			break
		}
	}
	if len(members) < fc.MembersCount {
		return none, failure("Retrieved %d of %d members for free company ID `%s`", len(members), fc.MembersCount, id)
	}

	out := *fc
	out.Crest = swapCrest(fc.Crest)
	out.Members = assignRankIDs(members)
	return Found(&out, out.Name), nil
}

// assignRankIDs はランク名に出現順の番号を割り当てたコピーを返す。
func assignRankIDs(members []model.MemberEntry) []model.MemberEntry {
	ranks := map[string]int{}
	out := make([]model.MemberEntry, len(members))
	for i, m := range members {
		id, ok := ranks[m.Rank]
		if !ok {
			id = len(ranks)
			ranks[m.Rank] = id
		}
		m.RankID = id
		out[i] = m
	}
	return out
}

func (k *freeCompanyKind) Reconcile(ctx context.Context, id string, res FetchResult[*model.FreeCompanyProfile]) error {
	fc := res.Payload()

	if k.t.crests != nil {
		k.t.crests.DownloadComponents(ctx, fc.Crest)
	}

	active := fc.Active
	if active == "Not specified" {
		active = ""
	}

	var stmts []repository.Statement
	if fc.DataCenter != "" {
		stmts = append(stmts, repository.Stmt(sqlUpsertServer, fc.Server, fc.DataCenter))
	}
	if active != "" {
		stmts = append(stmts, repository.Stmt(sqlAddTimeActive, active))
	}

	var gcID any
	if gc := model.GrandCompanyID(fc.GrandCompany); gc > 0 {
		gcID = gc
	}
	var zone, address, greeting any
	if fc.Estate != nil {
		zone = nullIfEmpty(fc.Estate.Zone)
		address = nullIfEmpty(fc.Estate.Address)
		greeting = k.t.sanitize(fc.Estate.Greeting)
	}

	args := []any{
		id, fc.Name, fc.Server, fc.Formed, gcID, fc.Tag,
		nullIfEmpty(fc.Crest[0]), nullIfEmpty(fc.Crest[1]), nullIfEmpty(fc.Crest[2]),
		fc.Rank, k.t.sanitize(fc.Slogan), nullIfEmpty(active),
		fc.Recruitment == "Open", nullIfEmpty(fc.Community),
		zone, address, greeting,
	}
	for _, flag := range freeCompanyFlags {
		args = append(args, fc.Focus[flag] || fc.Seeking[flag])
	}
	stmts = append(stmts,
		repository.Stmt(sqlUpsertFreeCompany, args...),
		nameHistory(model.EntityFreeCompany, id, fc.Name),
	)

	if len(fc.Members) > 0 && fc.WeeklyRank != nil && fc.MonthlyRank != nil {
		stmts = append(stmts, repository.Stmt(sqlAddRanking, id, *fc.WeeklyRank, *fc.MonthlyRank, len(fc.Members)))
	}

	members, added, err := k.t.reconcileMembers(ctx, model.EntityFreeCompany, id, fc.Members)
	if err != nil {
		return err
	}
	stmts = append(stmts, members...)

	if err := k.t.repo.ExecuteBatch(ctx, stmts); err != nil {
		return err
	}
	k.t.enqueueCharacters(ctx, added)
	return nil
}

func (k *freeCompanyKind) Delete(ctx context.Context, id string) error {
	return k.t.repo.ExecuteBatch(ctx, []repository.Statement{
		departAll(model.EntityFreeCompany, id),
		repository.Stmt(softDeleteSQL(model.EntityFreeCompany), id),
	})
}

// compile-time interface check
var _ Kind[*model.FreeCompanyProfile] = (*freeCompanyKind)(nil)
