package lodestone

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"

	"github.com/simbiat/fftracker/internal/model"
)

// FetchAchievement はプレイガイドのアチーブメントDBページを取得する。
// 返す詳細のIDは空で、呼び出し側がゲーム内IDを補う。
func (c *Client) FetchAchievement(ctx context.Context, dbID string) (*model.AchievementDetails, error) {
	doc, err := c.getDocument(ctx, "achievement_db", fmt.Sprintf("/lodestone/playguide/db/achievement/%s/", dbID))
	if err != nil {
		return nil, err
	}
	details := parseAchievementDB(doc)
	details.DBID = dbID
	return details, nil
}

// SearchAchievementByName はアチーブメントDBを名前で検索する。
// 結果は一定時間キャッシュされる。
func (c *Client) SearchAchievementByName(ctx context.Context, name string) ([]model.AchievementSearchHit, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if cached, ok := c.searchCache.Get(key); ok {
		return cached.([]model.AchievementSearchHit), nil
	}

	doc, err := c.getDocument(ctx, "achievement_search",
		"/lodestone/playguide/db/achievement/?q="+url.QueryEscape(name))
	if err != nil {
		return nil, err
	}

	var hits []model.AchievementSearchHit
	doc.Find(".db-table tbody tr").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a.db_popup").First()
		dbID := matchID(achievementDBPattern, attr(link, "href"))
		if dbID == "" {
			return
		}
		hits = append(hits, model.AchievementSearchHit{DBID: dbID, Name: text(link)})
	})

	c.searchCache.Set(key, hits, cache.DefaultExpiration)
	return hits, nil
}

// FetchCharacterAchievement はキャラクター別のアチーブメント詳細ページを取得する。
// キャラクターのアチーブメントが非公開の場合はErrForbiddenを返す。
func (c *Client) FetchCharacterAchievement(ctx context.Context, characterID, achievementID string) (*model.AchievementDetails, error) {
	doc, err := c.getDocument(ctx, "character_achievement_detail",
		fmt.Sprintf("/lodestone/character/%s/achievement/detail/%s/", characterID, achievementID))
	if err != nil {
		return nil, err
	}
	details := parseCharacterAchievementDetail(doc)
	details.ID = achievementID
	return details, nil
}

// parseAchievementDB はアチーブメントDBページを解析する。
func parseAchievementDB(doc *goquery.Document) *model.AchievementDetails {
	d := &model.AchievementDetails{
		Name:   text(doc.Find(".db-view__achievement__name")),
		Icon:   attr(doc.Find(".db-view__achievement__icon img"), "src"),
		Points: parseInt(text(doc.Find(".db-view__achievement__point"))),
		HowTo:  multiline(doc.Find(".db-view__achievement__text")),
		Title:  text(doc.Find(".db-view__achievement__title a")),
	}
	d.Category, d.Subcategory = splitCategory(text(doc.Find(".db-view__achievement__category")))
	item := doc.Find(".db-view__achievement__item")
	if link := item.Find("a").First(); link.Length() > 0 {
		d.Item = text(link)
		d.ItemID = matchID(itemDBPattern, attr(link, "href"))
		d.ItemIcon = attr(item.Find("img"), "src")
	}
	return d
}

// parseCharacterAchievementDetail はキャラクター別のアチーブメント詳細ページを解析する。
func parseCharacterAchievementDetail(doc *goquery.Document) *model.AchievementDetails {
	d := &model.AchievementDetails{
		Name:   text(doc.Find(".achievement__name")),
		Icon:   attr(doc.Find(".entry__achievement__frame img"), "src"),
		Points: parseInt(text(doc.Find(".entry__achievement__number"))),
		HowTo:  multiline(doc.Find(".achievement__base--text")),
		Title:  text(doc.Find(".achievement__base--title")),
		DBID:   matchID(achievementDBPattern, attr(doc.Find(`a[href*="/playguide/db/achievement/"]`), "href")),
	}
	d.Category, d.Subcategory = splitCategory(text(doc.Find(".achievement__base--category")))
	if link := doc.Find(".achievement__base--item a").First(); link.Length() > 0 {
		d.Item = text(link)
		d.ItemID = matchID(itemDBPattern, attr(link, "href"))
		d.ItemIcon = attr(doc.Find(".achievement__base--item img"), "src")
	}
	return d
}

// splitCategory は "Battle / Dungeons" 形式をカテゴリとサブカテゴリに分ける。
func splitCategory(s string) (category, subcategory string) {
	category, subcategory, _ = strings.Cut(s, "/")
	return strings.TrimSpace(category), strings.TrimSpace(subcategory)
}
