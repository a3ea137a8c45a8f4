package lodestone

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/simbiat/fftracker/internal/model"
)

var (
	strftimePattern      = regexp.MustCompile(`ldst_strftime\((\d+),`)
	digitsPattern        = regexp.MustCompile(`\d[\d,]*`)
	worldPattern         = regexp.MustCompile(`^\s*([^\[]+?)\s*\[\s*([^\]]+?)\s*\]`)
	characterHrefPattern = regexp.MustCompile(`/lodestone/character/(\d+)`)
	fcHrefPattern        = regexp.MustCompile(`/lodestone/freecompany/(\d+)`)
	pvpHrefPattern       = regexp.MustCompile(`/lodestone/pvpteam/([a-z0-9]{40})`)
	communityHrefPattern = regexp.MustCompile(`/lodestone/community_finder/([a-z0-9]+)`)
	achievementDBPattern = regexp.MustCompile(`/playguide/db/achievement/([a-z0-9]+)`)
	itemDBPattern        = regexp.MustCompile(`/playguide/db/item/([a-z0-9]+)`)
	achievementIDPattern = regexp.MustCompile(`/achievement/detail/(\d+)`)
	breakPattern         = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagPattern           = regexp.MustCompile(`<[^>]*>`)
)

// text は選択範囲のテキストを前後の空白を除いて返す。
func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

// lines は<br>で区切られた選択範囲の内容を行ごとに返す。空行は除く。
func lines(sel *goquery.Selection) []string {
	raw, err := sel.First().Html()
	if err != nil {
		return nil
	}
	var out []string
	for _, part := range breakPattern.Split(raw, -1) {
		part = strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(part, "")))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// multiline は<br>を改行に置き換えたテキストを返す。
func multiline(sel *goquery.Selection) string {
	return strings.Join(lines(sel), "\n")
}

// parseTime はldst_strftime(<unix>, ...) 形式のスクリプトから時刻を取り出す。
func parseTime(sel *goquery.Selection) *time.Time {
	m := strftimePattern.FindStringSubmatch(sel.Text())
	if m == nil {
		return nil
	}
	sec, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// parseInt は文字列中の最初の数値を返す。数値がない場合は0。
func parseInt(s string) int {
	m := digitsPattern.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// parseWorld は "Server [DataCenter]" をサーバー名とデータセンター名に分解する。
// データセンターのみの表記（クロスワールドリンクシェル等）の場合はserverが空になる。
func parseWorld(s string) (server, dataCenter string) {
	s = strings.TrimSpace(s)
	if m := worldPattern.FindStringSubmatch(s); m != nil {
		return m[1], m[2]
	}
	return "", s
}

// matchID はhrefからパターンに一致するIDを取り出す。
func matchID(pattern *regexp.Regexp, href string) string {
	m := pattern.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	return m[1]
}

// attr は最初の要素の属性値を返す。
func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.First().Attr(name)
	return strings.TrimSpace(v)
}

// parsePager はページャーから現在ページと総ページ数を返す。
// ページャーがない場合はメンバーがいれば1ページ、いなければ0ページとみなす。
func parsePager(doc *goquery.Document, hasEntries bool) (page, total int) {
	nums := digitsPattern.FindAllString(text(doc.Find(".btn__pager__current")), -1)
	if len(nums) >= 2 {
		return parseInt(nums[0]), parseInt(nums[1])
	}
	if hasEntries {
		return 1, 1
	}
	return 0, 0
}

// parseMemberEntries はメンバー・フレンド一覧のエントリーを解析する。
// rankSelectorが空の場合はランクを読まない。
func parseMemberEntries(doc *goquery.Document, rankSelector string) []model.MemberEntry {
	var members []model.MemberEntry
	doc.Find("li.entry").Each(func(_ int, s *goquery.Selection) {
		id := matchID(characterHrefPattern, attr(s.Find("a.entry__bg"), "href"))
		if id == "" {
			return
		}
		server, dc := parseWorld(text(s.Find(".entry__world")))
		m := model.MemberEntry{
			ID:         id,
			Name:       text(s.Find(".entry__name")),
			Avatar:     attr(s.Find(".entry__chara__face img"), "src"),
			Server:     server,
			DataCenter: dc,
		}
		if rankSelector != "" {
			m.Rank = text(s.Find(rankSelector))
		}
		if gc := s.Find(".entry__freecompany__info .entry__gc"); gc.Length() > 0 {
			m.GrandCompanyRank = text(gc)
		}
		members = append(members, m)
	})
	return members
}
