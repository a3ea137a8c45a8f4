package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/simbiat/fftracker/internal/lodestone"
	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

func TestLinkUser(t *testing.T) {
	token := strings.Repeat("a1", 32)

	tests := []struct {
		name     string
		linked   bool
		fetchErr error
		bio      string
		user     *model.User
		batchErr error
		want     model.LinkStatus
	}{
		{"紐付け済み", true, nil, "fftracker:" + token, &model.User{ID: "u1", FFToken: token}, nil, model.LinkAlreadyLinked},
		{"存在しない", false, lodestone.ErrNotFound, "", nil, nil, model.LinkNotFound},
		{"取得失敗", false, lodestone.ErrUnavailable, "", nil, nil, model.LinkFailed},
		{"非公開", false, lodestone.ErrForbidden, "", nil, nil, model.LinkNoToken},
		{"トークンなし", false, nil, "Hello there", &model.User{ID: "u1", FFToken: token}, nil, model.LinkNoToken},
		{"別ユーザーのトークン", false, nil, "fftracker:" + token, &model.User{ID: "u1", FFToken: strings.Repeat("b", 64)}, nil, model.LinkForbidden},
		{"ユーザーが存在しない", false, nil, "fftracker:" + token, nil, nil, model.LinkForbidden},
		{"紐付け失敗", false, nil, "fftracker:" + token, &model.User{ID: "u1", FFToken: token}, errors.New("fk"), model.LinkFailed},
		{"成功", false, nil, "I am fftracker:" + token + " here", &model.User{ID: "u1", FFToken: token}, nil, model.LinkOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(DefaultConfig())
			env.repo.existsFunc = func(query string, _ ...any) (bool, error) {
				if query == sqlCharacterLinked {
					return tt.linked, nil
				}
				return true, nil
			}
			env.repo.executeBatchFunc = func(stmts []repository.Statement) error {
				if stmts[0].Query == sqlLinkCharacter {
					return tt.batchErr
				}
				return nil
			}
			env.source.characterFunc = func(id string) (*model.CharacterProfile, error) {
				if tt.fetchErr != nil {
					return nil, tt.fetchErr
				}
				p := validCharacter(id)
				p.Biography = tt.bio
				return p, nil
			}
			env.users.user = tt.user

			got := env.tracker.LinkUser(context.Background(), "12345", "u1")
			if got.Status != tt.want {
				t.Errorf("Status = %d, want %d (%s)", got.Status, tt.want, got.Reason)
			}
			if tt.linked && env.source.calls != 0 {
				t.Error("紐付け済みの場合はLodestoneにアクセスしてはならない")
			}
		})
	}
}

func TestLinkUser_InvalidID(t *testing.T) {
	env := newTestEnv(DefaultConfig())
	if got := env.tracker.LinkUser(context.Background(), "abc", "u1"); got.Status != model.LinkNotFound {
		t.Errorf("Status = %d, want %d", got.Status, model.LinkNotFound)
	}
}
