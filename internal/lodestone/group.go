package lodestone

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/simbiat/fftracker/internal/model"
)

// FetchFreeCompany はフリーカンパニーのプロフィールページを取得する。
// メンバーはFetchFreeCompanyMembersでページごとに取得する。
func (c *Client) FetchFreeCompany(ctx context.Context, id string) (*model.FreeCompanyProfile, error) {
	doc, err := c.getDocument(ctx, "freecompany", fmt.Sprintf("/lodestone/freecompany/%s/", id))
	if err != nil {
		return nil, err
	}
	return parseFreeCompany(doc, id), nil
}

// FetchFreeCompanyMembers はフリーカンパニーのメンバー一覧の指定ページを取得する。
func (c *Client) FetchFreeCompanyMembers(ctx context.Context, id string, page int) (*model.MemberPage, error) {
	doc, err := c.getDocument(ctx, "freecompany_member", fmt.Sprintf("/lodestone/freecompany/%s/member/?page=%d", id, page))
	if err != nil {
		return nil, err
	}
	return parseMemberPage(doc, ".entry__freecompany__info li:first-child span"), nil
}

// FetchLinkshellMembers はリンクシェル（またはクロスワールドリンクシェル）のページを取得する。
// ページにはメンバー一覧の指定ページが含まれる。
func (c *Client) FetchLinkshellMembers(ctx context.Context, id string, crossworld bool, page int) (*model.LinkshellPage, error) {
	section, endpoint := "linkshell", "linkshell"
	if crossworld {
		section, endpoint = "crossworld_linkshell", "crossworldlinkshell"
	}
	doc, err := c.getDocument(ctx, endpoint, fmt.Sprintf("/lodestone/%s/%s/?page=%d", section, id, page))
	if err != nil {
		return nil, err
	}
	return parseLinkshell(doc, id, crossworld), nil
}

// FetchPvPTeam はPvPチームのページを取得する。
func (c *Client) FetchPvPTeam(ctx context.Context, id string) (*model.PvPTeamProfile, error) {
	doc, err := c.getDocument(ctx, "pvpteam", fmt.Sprintf("/lodestone/pvpteam/%s/", id))
	if err != nil {
		return nil, err
	}
	return parsePvPTeam(doc, id), nil
}

// parseMemberPage はページ分割されたメンバー一覧を解析する。
func parseMemberPage(doc *goquery.Document, rankSelector string) *model.MemberPage {
	members := parseMemberEntries(doc, rankSelector)
	page, pageTotal := parsePager(doc, len(members) > 0)
	if doc.Find(".parts__zero").Length() > 0 {
		page, pageTotal = 0, 0
	}
	total := parseInt(text(doc.Find(".parts__total")))
	if total == 0 {
		total = len(members)
	}
	return &model.MemberPage{
		Members:   members,
		Page:      page,
		PageTotal: pageTotal,
		Total:     total,
	}
}

// parseFreeCompany はフリーカンパニーのプロフィールページを解析する。
func parseFreeCompany(doc *goquery.Document, id string) *model.FreeCompanyProfile {
	fc := &model.FreeCompanyProfile{
		ID:      id,
		Focus:   map[string]bool{},
		Seeking: map[string]bool{},
	}
	fc.Name = text(doc.Find(".entry__freecompany__name"))
	fc.Tag = strings.Trim(text(doc.Find(".freecompany__text__tag")), "«» ")
	gc, _, _ := strings.Cut(text(doc.Find(".entry__freecompany__gc")), "<")
	fc.GrandCompany = strings.TrimSpace(gc)
	fc.Server, fc.DataCenter = parseWorld(text(doc.Find(".entry__freecompany__world")))
	doc.Find(".entry__freecompany__crest__image img").Each(func(_ int, s *goquery.Selection) {
		fc.Crest = append(fc.Crest, attr(s, "src"))
	})
	fc.Community = matchID(communityHrefPattern, attr(doc.Find(`a[href*="/lodestone/community_finder/"]`), "href"))

	doc.Find("h3.heading--lead").Each(func(_ int, h *goquery.Selection) {
		body := h.Next()
		switch text(h) {
		case "Formed":
			fc.Formed = parseTime(body)
		case "Company Slogan":
			fc.Slogan = multiline(body)
		case "Active Members":
			fc.MembersCount = parseInt(text(body))
		case "Rank":
			fc.Rank = parseInt(text(body))
		case "Active":
			fc.Active = text(body)
		case "Recruitment":
			fc.Recruitment = text(body)
		}
	})

	ranks := doc.Find(".character__ranking__data th")
	fc.WeeklyRank = optionalRank(text(ranks.Eq(0)))
	fc.MonthlyRank = optionalRank(text(ranks.Eq(1)))

	if zone := text(doc.Find(".freecompany__estate__name")); zone != "" && zone != "No Estate or Plot" {
		fc.Estate = &model.EstateProfile{
			Zone:     zone,
			Address:  text(doc.Find(".freecompany__estate__text")),
			Greeting: multiline(doc.Find(".freecompany__estate__greeting")),
		}
	}

	parseFlags(doc.Find(".freecompany__focus_icon--focus li"), fc.Focus)
	parseFlags(doc.Find(".freecompany__focus_icon--role li"), fc.Seeking)

	return fc
}

// optionalRank は "Weekly Rank: 12 (last week)" 形式から順位を取り出す。順位がない場合はnil。
func optionalRank(s string) *int {
	_, value, found := strings.Cut(s, ":")
	if !found {
		return nil
	}
	n := parseInt(value)
	if n == 0 {
		return nil
	}
	return &n
}

// parseFlags はフォーカス・募集ロールのアイコン一覧を列名→有効フラグのマップに変換する。
func parseFlags(items *goquery.Selection, into map[string]bool) {
	items.Each(func(_ int, s *goquery.Selection) {
		key := flagKey(text(s.Find("p")))
		if key == "" {
			return
		}
		into[key] = !s.HasClass("freecompany__focus_icon--off")
	})
}

// flagKey は "Role-playing" を "role_playing" のような列名に変換する。
func flagKey(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	return strings.NewReplacer("-", "_", " ", "_").Replace(label)
}

// parseLinkshell はリンクシェルページを解析する。
func parseLinkshell(doc *goquery.Document, id string, crossworld bool) *model.LinkshellPage {
	ls := &model.LinkshellPage{
		ID:         id,
		Name:       text(doc.Find(".heading__linkshell__name")),
		Community:  matchID(communityHrefPattern, attr(doc.Find(`a[href*="/lodestone/community_finder/"]`), "href")),
		MemberPage: *parseMemberPage(doc, ".entry__chara_info__linkshell > span"),
	}
	if crossworld {
		ls.DataCenter = text(doc.Find(".heading__cwls__dcname"))
		ls.Formed = parseTime(doc.Find(".heading__cwls__formed"))
	} else {
		ls.Server, ls.DataCenter = parseWorld(text(doc.Find(".heading__linkshell__world")))
		if ls.Server == "" && len(ls.Members) > 0 {
			ls.Server, ls.DataCenter = ls.Members[0].Server, ls.Members[0].DataCenter
		}
	}
	return ls
}

// parsePvPTeam はPvPチームページを解析する。
func parsePvPTeam(doc *goquery.Document, id string) *model.PvPTeamProfile {
	team := &model.PvPTeamProfile{
		ID:         id,
		Name:       text(doc.Find(".entry__pvpteam__name--team")),
		DataCenter: text(doc.Find(".entry__pvpteam__name--dc")),
		Community:  matchID(communityHrefPattern, attr(doc.Find(`a[href*="/lodestone/community_finder/"]`), "href")),
		Formed:     parseTime(doc.Find(".entry__pvpteam__data--formed")),
		Members:    parseMemberEntries(doc, ".entry__chara_info__pvpteam > span"),
	}
	doc.Find(".entry__pvpteam__crest__image img").Each(func(_ int, s *goquery.Selection) {
		team.Crest = append(team.Crest, attr(s, "src"))
	})
	return team
}
