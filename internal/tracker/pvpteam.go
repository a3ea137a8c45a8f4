package tracker

import (
	"context"
	"errors"

	"github.com/simbiat/fftracker/internal/lodestone"
	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

const sqlUpsertPvPTeam = `INSERT INTO ffxiv_pvpteam (
		pvp_id, name, data_center_id, formed, community_id, crest_part_1, crest_part_2, crest_part_3, registered, updated)
	VALUES ($1, $2, (SELECT server_id FROM ffxiv_server WHERE data_center = $3 ORDER BY server_id LIMIT 1),
		$4, $5, $6, $7, $8, now(), now())
	ON CONFLICT (pvp_id) DO UPDATE SET
		name = EXCLUDED.name,
		data_center_id = EXCLUDED.data_center_id,
		formed = COALESCE(EXCLUDED.formed, ffxiv_pvpteam.formed),
		community_id = EXCLUDED.community_id,
		crest_part_1 = EXCLUDED.crest_part_1,
		crest_part_2 = EXCLUDED.crest_part_2,
		crest_part_3 = EXCLUDED.crest_part_3,
		updated = now(),
		deleted = NULL`

type pvpTeamKind struct {
	t *Tracker
}

func (k *pvpTeamKind) Type() model.EntityType { return model.EntityPvPTeam }

func (k *pvpTeamKind) Load(ctx context.Context, id string) (any, error) {
	team, err := k.t.loader.LoadPvPTeam(ctx, id)
	if err != nil || team == nil {
		return loaded(team, err)
	}
	if k.t.crests != nil {
		team.Icon = k.t.crests.Icon(ctx, team.Crest, 0)
	}
	return team, nil
}

func (k *pvpTeamKind) Fetch(ctx context.Context, id string) (FetchResult[*model.PvPTeamProfile], error) {
	team, err := k.t.source.FetchPvPTeam(ctx, id)
	if errors.Is(err, lodestone.ErrNotFound) {
		return NotFound[*model.PvPTeamProfile](), nil
	}
	if err != nil {
		return FetchResult[*model.PvPTeamProfile]{}, err
	}
	if team.DataCenter == "" || len(team.Members) == 0 {
		return FetchResult[*model.PvPTeamProfile]{}, failure("No data center or members found for PvP team ID `%s`", id)
	}
	out := *team
	out.Crest = swapCrest(team.Crest)
	return Found(&out, out.Name), nil
}

func (k *pvpTeamKind) Reconcile(ctx context.Context, id string, res FetchResult[*model.PvPTeamProfile]) error {
	team := res.Payload()

	if k.t.crests != nil {
		k.t.crests.DownloadComponents(ctx, team.Crest)
	}

	stmts := memberServers(team.Members)
	stmts = append(stmts,
		repository.Stmt(sqlUpsertPvPTeam, id, team.Name, team.DataCenter, team.Formed, nullIfEmpty(team.Community),
			nullIfEmpty(team.Crest[0]), nullIfEmpty(team.Crest[1]), nullIfEmpty(team.Crest[2])),
		nameHistory(model.EntityPvPTeam, id, team.Name),
	)

	members, added, err := k.t.reconcileMembers(ctx, model.EntityPvPTeam, id, team.Members)
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

func (k *pvpTeamKind) Delete(ctx context.Context, id string) error {
	return k.t.repo.ExecuteBatch(ctx, []repository.Statement{
		departAll(model.EntityPvPTeam, id),
		repository.Stmt(softDeleteSQL(model.EntityPvPTeam), id),
	})
}

// compile-time interface check
var _ Kind[*model.PvPTeamProfile] = (*pvpTeamKind)(nil)
