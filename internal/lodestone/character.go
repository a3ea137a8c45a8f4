package lodestone

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/simbiat/fftracker/internal/model"
)

var quotedNamePattern = regexp.MustCompile(`[“"](.+)[”"]`)

// maxListPages はフレンド・フォロー一覧を辿る最大ページ数。
const maxListPages = 20

// FetchCharacter はキャラクターのプロフィールと、アチーブメント・フレンド・フォローの
// サブページを取得する。プロフィールが非公開の場合はErrForbiddenを返す。
// サブページが非公開の場合はエラーにせず、対応するPrivateフラグを立てる。
func (c *Client) FetchCharacter(ctx context.Context, id string) (*model.CharacterProfile, error) {
	doc, err := c.getDocument(ctx, "character", fmt.Sprintf("/lodestone/character/%s/", id))
	if err != nil {
		return nil, err
	}
	profile := parseCharacter(doc, id)

	achievements, err := c.getDocument(ctx, "character_achievement", fmt.Sprintf("/lodestone/character/%s/achievement/", id))
	switch {
	case errors.Is(err, ErrForbidden):
		profile.AchievementsPrivate = true
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		profile.Achievements = parseCharacterAchievements(achievements)
	}

	profile.Friends, profile.FriendsPrivate, err = c.fetchCharacterList(ctx, "character_friend", fmt.Sprintf("/lodestone/character/%s/friend/", id))
	if err != nil {
		return nil, err
	}
	profile.Following, profile.FollowingPrivate, err = c.fetchCharacterList(ctx, "character_following", fmt.Sprintf("/lodestone/character/%s/following/", id))
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// fetchCharacterList はフレンド・フォロー一覧の全ページを取得する。
func (c *Client) fetchCharacterList(ctx context.Context, endpoint, path string) ([]model.MemberEntry, bool, error) {
	var all []model.MemberEntry
	for page := 1; page <= maxListPages; page++ {
		doc, err := c.getDocument(ctx, endpoint, fmt.Sprintf("%s?page=%d", path, page))
		if errors.Is(err, ErrForbidden) {
			return nil, true, nil
		}
		if errors.Is(err, ErrNotFound) {
			return all, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		entries := parseMemberEntries(doc, "")
		all = append(all, entries...)
		_, total := parsePager(doc, len(entries) > 0)
		if page >= total {
			break
		}
	}
	return all, false, nil
}

// parseCharacter はプロフィールページを解析する。
func parseCharacter(doc *goquery.Document, id string) *model.CharacterProfile {
	p := &model.CharacterProfile{ID: id}
	p.Name = text(doc.Find(".frame__chara__name"))
	p.Title = text(doc.Find(".frame__chara__title"))
	p.Server, p.DataCenter = parseWorld(text(doc.Find(".frame__chara__world")))
	p.Avatar = attr(doc.Find(".frame__chara__face img"), "src")
	p.Biography = multiline(doc.Find(".character__selfintroduction"))

	doc.Find(".character-block").Each(func(_ int, block *goquery.Selection) {
		switch text(block.Find(".character-block__title")) {
		case "Race/Clan/Gender":
			parts := lines(block.Find(".character-block__name"))
			if len(parts) > 0 {
				p.Race = parts[0]
			}
			if len(parts) > 1 {
				clan, gender, _ := strings.Cut(parts[1], "/")
				p.Clan = strings.TrimSpace(clan)
				p.Gender = parseGender(gender)
			}
		case "Nameday":
			p.Nameday = text(block.Find(".character-block__birth"))
			p.Guardian = text(block.Find(".character-block__name"))
		case "City-state":
			p.City = text(block.Find(".character-block__name"))
		case "Grand Company":
			gc, rank, _ := strings.Cut(text(block.Find(".character-block__name")), "/")
			p.GrandCompany = strings.TrimSpace(gc)
			p.GrandCompanyRank = strings.TrimSpace(rank)
		}
	})

	fcLink := doc.Find(".character__freecompany__name a")
	p.FreeCompanyID = matchID(fcHrefPattern, attr(fcLink, "href"))
	p.FreeCompanyName = text(fcLink)
	pvpLink := doc.Find(".character__pvpteam__name a")
	p.PvPTeamID = matchID(pvpHrefPattern, attr(pvpLink, "href"))
	p.PvPTeamName = text(pvpLink)
	p.PvPMatches = parseInt(text(doc.Find(".character__pvp__matches")))

	doc.Find(".character__level__list li").Each(func(_ int, s *goquery.Selection) {
		name := attr(s.Find("img"), "data-tooltip")
		if name == "" {
			return
		}
		// 未習得のジョブは "-" 表記でレベル0として扱う
		p.Jobs = append(p.Jobs, model.JobLevel{Name: name, Level: parseInt(text(s))})
	})

	return p
}

// parseGender は性別記号を "male" / "female" に変換する。
func parseGender(s string) string {
	switch strings.TrimSpace(s) {
	case "♂":
		return "male"
	case "♀":
		return "female"
	}
	return ""
}

// parseCharacterAchievements はアチーブメント一覧（最新ページ）を解析する。
func parseCharacterAchievements(doc *goquery.Document) []model.AchievementEntry {
	var entries []model.AchievementEntry
	doc.Find("li.entry").Each(func(_ int, s *goquery.Selection) {
		id := matchID(achievementIDPattern, attr(s.Find("a.entry__achievement"), "href"))
		if id == "" {
			return
		}
		entry := model.AchievementEntry{
			ID:     id,
			Icon:   attr(s.Find(".entry__achievement__frame img"), "src"),
			Points: parseInt(text(s.Find(".entry__achievement__number"))),
		}
		if m := quotedNamePattern.FindStringSubmatch(text(s.Find(".entry__activity__txt"))); m != nil {
			entry.Name = m[1]
		}
		if t := parseTime(s.Find(".entry__activity__time")); t != nil {
			entry.Time = *t
		}
		entries = append(entries, entry)
	})
	return entries
}
