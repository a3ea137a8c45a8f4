package app

import (
	"errors"

	"github.com/simbiat/fftracker/internal/model"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は更新ジョブのワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandRefresh は1件のエンティティをその場で更新することを示す。
	// 形式: refresh <type> <id>
	CommandRefresh Command = "refresh"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandRefresh):     CommandRefresh,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// RefreshTarget はrefreshサブコマンドの対象。
type RefreshTarget struct {
	Kind model.EntityType
	ID   string
}

// ParseRefreshTarget は "refresh <type> <id>" の引数（サブコマンド名を除く）を解析する。
// IDは種別ごとの形式で検証する。
func ParseRefreshTarget(args []string) (RefreshTarget, error) {
	if len(args) != 2 {
		return RefreshTarget{}, errors.New("使い方: fftracker refresh <type> <id>")
	}
	kind, err := model.ParseEntityType(args[0])
	if err != nil {
		return RefreshTarget{}, err
	}
	if err := kind.ValidateID(args[1]); err != nil {
		return RefreshTarget{}, err
	}
	return RefreshTarget{Kind: kind, ID: args[1]}, nil
}
