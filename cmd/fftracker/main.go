// fftracker はLodestoneのエンティティを同期するAPIサーバー・ワーカー。
//
// サブコマンド:
//
//	serve        APIサーバーを起動する（デフォルト）
//	worker       更新ジョブのワーカーを起動する
//	migrate      マイグレーションを適用する
//	refresh      指定したエンティティを1件更新する（例: refresh character 6691027）
//	healthcheck  /healthを確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/simbiat/fftracker/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fftracker: %v\n", err)
		os.Exit(1)
	}
}
