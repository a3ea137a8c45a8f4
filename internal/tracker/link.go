package tracker

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

var biographyTokenPattern = regexp.MustCompile(`fftracker:([a-z0-9]{64})`)

const (
	sqlCharacterLinked = `SELECT EXISTS (SELECT 1 FROM user_ff_character WHERE character_id = $1)`
	sqlLinkCharacter   = `INSERT INTO user_ff_character (user_id, character_id) VALUES ($1, $2)`
)

// LinkUser はキャラクターをユーザーに紐付ける。
// キャラクターを更新した上で、プロフィールに記載された fftracker:<token> がユーザーのトークンと一致する場合のみ紐付ける。
func (t *Tracker) LinkUser(ctx context.Context, characterID, userID string) model.LinkResult {
	c, err := t.Character(characterID)
	if err != nil {
		return model.LinkResult{Status: model.LinkNotFound, Reason: "Invalid character ID"}
	}
	attrs := []any{slog.String("entity_id", characterID), slog.String("user_id", userID)}

	linked, err := t.repo.Exists(ctx, sqlCharacterLinked, characterID)
	if err != nil {
		t.logger.Error("キャラクターの紐付け状況の確認に失敗しました", append(attrs, slog.String("error", err.Error()))...)
		return model.LinkResult{Status: model.LinkFailed, Reason: "Failed to check existing links"}
	}
	if linked {
		return model.LinkResult{Status: model.LinkAlreadyLinked, Reason: "Character is already linked to a user"}
	}

	if err := c.Update(ctx, false); err != nil {
		return model.LinkResult{Status: model.LinkFailed, Reason: "Failed to update character: " + err.Error()}
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return model.LinkResult{Status: model.LinkFailed, Reason: "Failed to get character data: " + err.Error()}
	}
	switch snap.Outcome() {
	case OutcomeNotFound:
		return model.LinkResult{Status: model.LinkNotFound, Reason: "Character not found on Lodestone"}
	case OutcomeFound:
	default:
		return model.LinkResult{Status: model.LinkNoToken, Reason: "Character profile is not public"}
	}

	m := biographyTokenPattern.FindStringSubmatch(snap.Payload().Biography)
	if m == nil {
		return model.LinkResult{Status: model.LinkNoToken, Reason: "No token found in character biography"}
	}

	user, err := t.users.FindByID(ctx, userID)
	if err != nil {
		t.logger.Error("ユーザーの取得に失敗しました", append(attrs, slog.String("error", err.Error()))...)
		return model.LinkResult{Status: model.LinkFailed, Reason: "Failed to load user"}
	}
	if user == nil || user.FFToken != m[1] {
		t.logger.Warn("紐付けトークンが一致しません", append(attrs, slog.String("ff_token", m[1]))...)
		return model.LinkResult{Status: model.LinkForbidden, Reason: "Token does not belong to the user"}
	}

	if err := t.repo.ExecuteBatch(ctx, []repository.Statement{
		repository.Stmt(sqlLinkCharacter, userID, characterID),
	}); err != nil {
		t.logger.Error("キャラクターの紐付けに失敗しました", append(attrs, slog.String("error", err.Error()))...)
		return model.LinkResult{Status: model.LinkFailed, Reason: "Failed to link character"}
	}

	t.logger.Info("キャラクターを紐付けました", attrs...)
	return model.LinkResult{Status: model.LinkOK}
}
