package tracker

import (
	"context"
	"errors"

	"github.com/simbiat/fftracker/internal/lodestone"
	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

const (
	sqlUpsertLinkshell = `INSERT INTO ffxiv_linkshell (ls_id, name, crossworld, server_id, formed, community_id, registered, updated)
		VALUES ($1, $2, $3,
			CASE WHEN $3::boolean
				THEN (SELECT server_id FROM ffxiv_server WHERE data_center = $5 ORDER BY server_id LIMIT 1)
				ELSE (SELECT server_id FROM ffxiv_server WHERE server = $4)
			END,
			$6, $7, now(), now())
		ON CONFLICT (ls_id) DO UPDATE SET
			name = EXCLUDED.name,
			crossworld = EXCLUDED.crossworld,
			server_id = EXCLUDED.server_id,
			formed = COALESCE(EXCLUDED.formed, ffxiv_linkshell.formed),
			community_id = EXCLUDED.community_id,
			updated = now(),
			deleted = NULL`

	sqlTouchLinkshell = `INSERT INTO ffxiv_linkshell (ls_id, name, crossworld, formed, registered, updated)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (ls_id) DO UPDATE SET
			name = EXCLUDED.name,
			formed = COALESCE(EXCLUDED.formed, ffxiv_linkshell.formed),
			updated = now(),
			deleted = NULL`
)

type linkshellKind struct {
	t          *Tracker
	crossworld bool
}

func (k *linkshellKind) Type() model.EntityType {
	if k.crossworld {
		return model.EntityCrossworldLinkshell
	}
	return model.EntityLinkshell
}

func (k *linkshellKind) Load(ctx context.Context, id string) (any, error) {
	return loaded(k.t.loader.LoadLinkshell(ctx, id))
}

func (k *linkshellKind) Fetch(ctx context.Context, id string) (FetchResult[*model.LinkshellPage], error) {
	var none FetchResult[*model.LinkshellPage]
	var first *model.LinkshellPage
	var members []model.MemberEntry

	for page := 1; ; page++ {
		lp, err := k.t.source.FetchLinkshellMembers(ctx, id, k.crossworld, page)
		if errors.Is(err, lodestone.ErrNotFound) {
			return NotFound[*model.LinkshellPage](), nil
		}
		if err != nil {
			return none, err
		}
		if first == nil {
			first = lp
			if lp.PageTotal == 0 && len(lp.Members) == 0 {
				out := *lp
				return Empty(&out, out.Name), nil
			}
		}
		members = append(members, lp.Members...)
		if lp.PageTotal == 0 || page >= lp.PageTotal {
			break
		}
	}

	if k.crossworld && first.DataCenter == "" {
		return none, failure("No data center found for %s ID `%s`", k.Type().Label(), id)
	}
	if !k.crossworld && first.Server == "" {
		return none, failure("No server found for %s ID `%s`", k.Type().Label(), id)
	}
	if len(members) < first.Total {
		return none, failure("Retrieved %d of %d members for %s ID `%s`", len(members), first.Total, k.Type().Label(), id)
	}

	out := *first
	out.Members = members
	out.Page = 1
	return Found(&out, out.Name), nil
}

func (k *linkshellKind) Reconcile(ctx context.Context, id string, res FetchResult[*model.LinkshellPage]) error {
	ls := res.Payload()
	kind := k.Type()

	if res.Outcome() == OutcomeEmpty {
		return k.t.repo.ExecuteBatch(ctx, []repository.Statement{
			repository.Stmt(sqlTouchLinkshell, id, ls.Name, k.crossworld, ls.Formed),
			nameHistory(kind, id, ls.Name),
		})
	}

	stmts := memberServers(ls.Members)
	if !k.crossworld && ls.DataCenter != "" {
		stmts = append(stmts, repository.Stmt(sqlEnsureServer, ls.Server, ls.DataCenter))
	}
	stmts = append(stmts,
		repository.Stmt(sqlUpsertLinkshell, id, ls.Name, k.crossworld,
			nullIfEmpty(ls.Server), nullIfEmpty(ls.DataCenter), ls.Formed, nullIfEmpty(ls.Community)),
		nameHistory(kind, id, ls.Name),
	)

	members, added, err := k.t.reconcileMembers(ctx, kind, id, ls.Members)
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

func (k *linkshellKind) Delete(ctx context.Context, id string) error {
	return k.t.repo.ExecuteBatch(ctx, []repository.Statement{
		departAll(k.Type(), id),
		repository.Stmt(softDeleteSQL(k.Type()), id),
	})
}

// compile-time interface check
var _ Kind[*model.LinkshellPage] = (*linkshellKind)(nil)
