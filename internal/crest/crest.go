// Package crest はグループのクレスト（背景・枠・紋章の3画像）をローカルの合成画像に対応付ける。
package crest

import (
	"context"
	"encoding/hex"
	"fmt"
	"golang.org/x/crypto/sha3"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

// クレストのスロット。
const (
	SlotBackground = iota
	SlotFrame
	SlotEmblem
)

const (
	componentsDir = "crests-components"
	mergedDir     = "merged-crests"
	notFoundFile  = "not_found.png"

	brokenEmblem = "S7f_4f44211af230eac35370ef3e9fe15e51_07_128x128.png"
	fixedEmblem  = "S7f_4f44211af230eac35370ef3e9fe15e51_08_128x128.png"
)

var emblemVariantPattern = regexp.MustCompile(`^(.+_)(\d{2})(_.+\.png)$`)

// AssetStore はバイナリアセットの取得・キャッシュ・合成を行う。
// パスはアセットルートからの相対パス。
type AssetStore interface {
	Exists(ctx context.Context, relPath string) bool
	Download(ctx context.Context, rawURL, relPath string) error
	Merge(ctx context.Context, components []string, relPath string) error
}

// Normalizer はクレスト画像の正規化と合成を行う。
type Normalizer struct {
	store        AssetStore
	publicPrefix string
	logger       *slog.Logger
	merges       singleflight.Group
}

// NewNormalizer はNormalizerを生成する。publicPrefixは合成画像の公開URLの接頭辞。
func NewNormalizer(store AssetStore, publicPrefix string, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		store:        store,
		publicPrefix: strings.TrimRight(publicPrefix, "/"),
		logger:       logger,
	}
}

// basename はURLまたはパスの末尾のファイル名を返す。
func basename(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(raw)
}

// LocalPath はクレスト部品のURLをローカルの相対パスに変換する。
// ファイル名の接頭辞で部品の種類を判定できない場合はfalseを返す。
func LocalPath(rawURL string) (string, bool) {
	name := basename(rawURL)
	switch {
	case strings.HasPrefix(name, "F00") || strings.HasPrefix(name, "B"):
		return path.Join(componentsDir, "backgrounds", subdir(name), name), true
	case strings.HasPrefix(name, "F"):
		return path.Join(componentsDir, "frames", name), true
	case strings.HasPrefix(name, "S"):
		return path.Join(componentsDir, "emblems", subdir(name), name), true
	}
	return "", false
}

// subdir はファイル名の先頭3文字をサブディレクトリ名として返す。
func subdir(name string) string {
	if len(name) < 3 {
		return name
	}
	return name[:3]
}

// slotOf はローカルパスからスロットを判定する。
func slotOf(local string) int {
	switch {
	case strings.Contains(local, "/backgrounds/"):
		return SlotBackground
	case strings.Contains(local, "/frames/"):
		return SlotFrame
	}
	return SlotEmblem
}

// Sort は部品URLをローカルパスに変換し、[背景, 枠, 紋章] の固定スロットに並べる。
// 空のスロットは空文字列になる。
func Sort(parts []string) [3]string {
	var slots [3]string
	for _, p := range parts {
		if p == "" {
			continue
		}
		local, ok := LocalPath(p)
		if !ok {
			continue
		}
		slots[slotOf(local)] = local
	}
	return slots
}

// Key は部品の組み合わせから合成画像の相対パス "hh/hh/<sha3-512>.png" を返す。
// ハッシュはスロット順に連結したファイル名から計算する。
func Key(parts []string) string {
	slots := Sort(parts)
	var joined strings.Builder
	for _, local := range slots {
		if local != "" {
			joined.WriteString(path.Base(local))
		}
	}
	sum := sha3.Sum512([]byte(joined.String()))
	hash := hex.EncodeToString(sum[:])
	return hash[0:2] + "/" + hash[2:4] + "/" + hash + ".png"
}

// NotFound は合成画像がない場合の公開URLを返す。
func (n *Normalizer) NotFound() string {
	return n.publicPrefix + "/" + mergedDir + "/" + notFoundFile
}

// Composite は部品の合成画像の公開URLを返す。
// 合成画像がまだない場合は一度だけ合成する。部品がないか合成に失敗した場合はNotFoundを返す。
func (n *Normalizer) Composite(ctx context.Context, parts []string) string {
	slots := Sort(parts)
	var components []string
	for _, local := range slots {
		if local != "" {
			components = append(components, local)
		}
	}
	if len(components) == 0 {
		return n.NotFound()
	}

	key := Key(parts)
	rel := path.Join(mergedDir, key)
	public := n.publicPrefix + "/" + rel

	if n.store.Exists(ctx, rel) {
		return public
	}

	_, err, _ := n.merges.Do(key, func() (any, error) {
		if n.store.Exists(ctx, rel) {
			return nil, nil
		}
		return nil, n.store.Merge(ctx, components, rel)
	})
	if err != nil {
		n.logger.Error("クレストの合成に失敗しました",
			slog.String("crest", key),
			slog.String("error", err.Error()),
		)
		return n.NotFound()
	}
	return public
}

// Icon はグループのアイコンURLを返す。合成画像がなく、グランドカンパニーID（1〜3）が
// 指定されている場合はそのIDを代わりに返す。
func (n *Normalizer) Icon(ctx context.Context, parts []string, grandCompanyID int) string {
	icon := n.Composite(ctx, parts)
	if icon == n.NotFound() && grandCompanyID >= 1 && grandCompanyID <= 3 {
		return strconv.Itoa(grandCompanyID)
	}
	return icon
}

// DownloadComponents は未取得の部品をダウンロードする。
// 紋章は色違いの全バリエーション（00〜07）も取得する。失敗はログに記録して続行する。
func (n *Normalizer) DownloadComponents(ctx context.Context, parts []string) {
	for _, p := range parts {
		if p == "" {
			continue
		}
		local, ok := LocalPath(p)
		if !ok {
			n.logger.Warn("不明なクレスト部品のURLです", slog.String("url", p))
			continue
		}
		n.download(ctx, p, local)

		if slotOf(local) != SlotEmblem {
			continue
		}
		m := emblemVariantPattern.FindStringSubmatch(path.Base(local))
		if m == nil {
			continue
		}
		current, _ := strconv.Atoi(m[2])
		for i := 0; i <= 7; i++ {
			if i == current {
				continue
			}
			variant := fmt.Sprintf("%s0%d%s", m[1], i, m[3])
			n.download(ctx,
				strings.TrimSuffix(p, path.Base(local))+variant,
				path.Join(path.Dir(local), variant),
			)
		}
	}
}

// download はローカルにない部品を取得する。
func (n *Normalizer) download(ctx context.Context, rawURL, local string) {
	if n.store.Exists(ctx, local) {
		return
	}
	rawURL = strings.ReplaceAll(rawURL, brokenEmblem, fixedEmblem)
	if err := n.store.Download(ctx, rawURL, local); err != nil {
		n.logger.Warn("クレスト部品のダウンロードに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
	}
}
