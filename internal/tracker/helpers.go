package tracker

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/simbiat/fftracker/internal/model"
	"github.com/simbiat/fftracker/internal/repository"
)

// nullIfEmpty は空文字列をNULLとして渡す。
func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// sanitize はユーザー入力のテキストを無害化する。空または "-" の場合はNULLを返す。
func (t *Tracker) sanitize(s string) any {
	clean := strings.TrimSpace(t.sanitizer.Sanitize(s))
	if clean == "" || clean == "-" {
		return nil
	}
	return clean
}

// cacheIcon はアイコン画像をローカルに取得し、保存先の相対パスを返す。
// 取得に失敗してもパスは返す（次回の更新で再取得される）。
func (t *Tracker) cacheIcon(ctx context.Context, dir, rawURL string) string {
	if rawURL == "" {
		return ""
	}
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name = u.Path
	}
	rel := path.Join(dir, path.Base(name))
	if t.icons == nil || t.icons.Exists(ctx, rel) {
		return rel
	}
	if err := t.icons.Download(ctx, rawURL, rel); err != nil {
		t.logger.Warn("アイコンのダウンロードに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
	}
	return rel
}

// swapCrest は紋章が空で枠がある場合に枠を紋章のスロットへ移す。
func swapCrest(parts []string) []string {
	out := make([]string, 3)
	copy(out, parts)
	if out[2] == "" && out[1] != "" {
		out[1], out[2] = "", out[1]
	}
	return out
}

// memberServers はメンバーの所属ワールドを参照テーブルに登録する文を返す。
func memberServers(members []model.MemberEntry) []repository.Statement {
	seen := map[string]bool{}
	var stmts []repository.Statement
	for _, m := range members {
		if m.Server == "" || m.DataCenter == "" || seen[m.Server] {
			continue
		}
		seen[m.Server] = true
		stmts = append(stmts, repository.Stmt(sqlEnsureServer, m.Server, m.DataCenter))
	}
	return stmts
}
