package security

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileSanitizer はLodestoneのユーザー記述テキストを無害化する。
type ProfileSanitizer interface {
	Sanitize(rawHTML string) string
}

var (
	// brRun は3つ以上連続する改行タグ。
	brRun = regexp.MustCompile(`(?i)(?:<br\s*/?>\s*){3,}`)
	// brEdge は先頭と末尾の改行タグ。
	brEdge = regexp.MustCompile(`(?i)^(?:\s*<br\s*/?>)+|(?:<br\s*/?>\s*)+$`)
)

// HTMLSanitizer は自己紹介、FCの標語、ハウジングの挨拶文に使うProfileSanitizer。
// ゲーム内で入力できる装飾は改行程度なので、許可するタグは最小限にする。
type HTMLSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はHTMLSanitizerを生成する。
// br, p, b, i, strong, em と httpsのaタグのみを残し、
// aタグにはtarget="_blank"とrel="noreferrer"を付与する。
func NewProfileSanitizer() *HTMLSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("br", "p", "b", "i", "strong", "em")
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return &HTMLSanitizer{policy: p}
}

// Sanitize は許可外の要素を除去し、連続する改行を2つまでに詰め、前後の改行を取り除く。
// 同じ入力には常に同じ結果を返し、結果を再度渡しても変わらない。
func (s *HTMLSanitizer) Sanitize(rawHTML string) string {
	out := s.policy.Sanitize(rawHTML)
	out = brRun.ReplaceAllString(out, "<br><br>")
	out = brEdge.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// compile-time interface check
var _ ProfileSanitizer = (*HTMLSanitizer)(nil)
