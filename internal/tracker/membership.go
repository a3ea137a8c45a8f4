package tracker

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

const (
	avatarPrefix      = "https://img2.finalfantasyxiv.com/f/"
	avatarSuffix      = "c0_96x96.jpg"
	avatarLargeSuffix = "c0.jpg"
)

// trimAvatar はLodestoneの画像URLから共通の接頭辞・接尾辞を取り除く。
func trimAvatar(avatar string) string {
	avatar = strings.TrimPrefix(avatar, avatarPrefix)
	avatar = strings.TrimSuffix(avatar, avatarSuffix)
	return strings.TrimSuffix(avatar, avatarLargeSuffix)
}

// characterStubs は未登録のキャラクターを最小情報で登録する文を返す。
// 2番目の戻り値は今回登録されるキャラクターのID。
func (t *Tracker) characterStubs(ctx context.Context, entries []model.MemberEntry) ([]repository.Statement, []string, error) {
	if len(entries) == 0 {
		return nil, nil, nil
	}
	ids := make([]string, 0, len(entries))
	for _, m := range entries {
		ids = append(ids, m.ID)
	}
	known, err := t.repo.QueryStrings(ctx, sqlKnownCharacters, pq.Array(ids))
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[string]bool, len(known)+len(entries))
	for _, id := range known {
		seen[id] = true
	}

	var stmts []repository.Statement
	var added []string
	for _, m := range entries {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		if m.Server != "" && m.DataCenter != "" {
			stmts = append(stmts, repository.Stmt(sqlEnsureServer, m.Server, m.DataCenter))
		}
		stmts = append(stmts, repository.Stmt(sqlCharacterStub,
			m.ID, m.Server, m.Name, trimAvatar(m.Avatar), m.GrandCompanyRank,
		))
		added = append(added, m.ID)
	}
	return stmts, added, nil
}

// enqueueCharacters は新規登録したキャラクターの更新ジョブを登録する。個別の失敗は無視する。
func (t *Tracker) enqueueCharacters(ctx context.Context, ids []string) {
	for _, id := range ids {
		t.enqueueUpdate(ctx, model.EntityCharacter, id, PriorityNewMember)
	}
}

// reconcileMembers はグループのメンバー一覧を保存状態と突き合わせる文を返す。
// 一覧にいない現メンバーは脱退扱いとし、未登録のメンバーは最小情報で登録する。
func (t *Tracker) reconcileMembers(ctx context.Context, kind model.EntityType, groupID string, members []model.MemberEntry) ([]repository.Statement, []string, error) {
	gs := groupSQL[kind]

	current, err := t.repo.QueryStrings(ctx, gs.current, groupID)
	if err != nil {
		return nil, nil, err
	}
	incoming := make(map[string]bool, len(members))
	for _, m := range members {
		incoming[m.ID] = true
	}

	var stmts []repository.Statement
	for _, id := range current {
		if !incoming[id] {
			stmts = append(stmts, repository.Stmt(gs.depart, groupID, id))
		}
	}

	stubs, added, err := t.characterStubs(ctx, members)
	if err != nil {
		return nil, nil, err
	}
	stmts = append(stmts, stubs...)

	for _, m := range members {
		switch gs.spec.rank {
		case rankByID:
			stmts = append(stmts,
				repository.Stmt(gs.upsertRank, groupID, m.RankID, m.Rank),
				repository.Stmt(gs.upsertMember, groupID, m.ID, m.RankID),
			)
		case rankByName:
			rank := m.Rank
			if rank == "" {
				rank = gs.spec.defaultRank
			}
			stmts = append(stmts, repository.Stmt(gs.upsertMember, groupID, m.ID, rank))
		}
	}

	if len(current) > 0 || len(members) > 0 {
		t.logger.Debug("メンバーの差分を反映します",
			slog.String("kind", string(kind)),
			slog.String("entity_id", groupID),
			slog.Int("current", len(current)),
			slog.Int("incoming", len(members)),
			slog.Int("new_characters", len(added)),
		)
	}
	return stmts, added, nil
}

// nameHistory はグループの名前履歴を追加する文を返す。
func nameHistory(kind model.EntityType, groupID, name string) repository.Statement {
	return repository.Stmt(groupSQL[kind].addName, groupID, name)
}

// departAll はグループの全メンバーを脱退扱いにする文を返す。
func departAll(kind model.EntityType, groupID string) repository.Statement {
	return repository.Stmt(groupSQL[kind].departAll, groupID)
}
