package lodestone

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
)

const achievementDBHTML = `<html><body>
<div class="db-view__achievement__icon"><img src="https://img.finalfantasyxiv.com/lds/h/a/ach.png"/></div>
<h2 class="db-view__achievement__name">Going Deeper</h2>
<p class="db-view__achievement__category">Battle / Dungeons</p>
<p class="db-view__achievement__point">10</p>
<p class="db-view__achievement__text">Complete the dungeon<br/>50 times.</p>
<p class="db-view__achievement__title"><a href="#">the Deep</a></p>
<div class="db-view__achievement__item"><img src="https://img.finalfantasyxiv.com/lds/h/i/item.png"/><a href="/lodestone/playguide/db/item/abc123def/">Deep Token</a></div>
</body></html>`

const achievementSearchHTML = `<html><body><table class="db-table"><tbody>
<tr><td><a class="db_popup" href="/lodestone/playguide/db/achievement/5f9a1c/">Going Deeper</a></td></tr>
<tr><td><a class="db_popup" href="/lodestone/playguide/db/achievement/77aa00/">Going Deeper II</a></td></tr>
</tbody></table></body></html>`

const characterAchievementDetailHTML = `<html><body>
<div class="entry__achievement__frame"><img src="https://img.finalfantasyxiv.com/lds/h/a/ach.png"/></div>
<p class="achievement__name">Going Deeper</p>
<p class="entry__achievement__number">10</p>
<p class="achievement__base--category">Battle / Dungeons</p>
<p class="achievement__base--text">Complete the dungeon 50 times.</p>
<a href="/lodestone/playguide/db/achievement/5f9a1c/">Eorzea Database</a>
</body></html>`

func TestFetchAchievement_ParsesDatabasePage(t *testing.T) {
	c, _ := newTestClient(t, map[string]page{
		"/lodestone/playguide/db/achievement/5f9a1c/": {body: achievementDBHTML},
	}, nil)

	d, err := c.FetchAchievement(context.Background(), "5f9a1c")
	if err != nil {
		t.Fatalf("FetchAchievement がエラーを返した: %v", err)
	}
	if d.Name != "Going Deeper" || d.Points != 10 || d.DBID != "5f9a1c" {
		t.Errorf("Name/Points/DBID = %q/%d/%q", d.Name, d.Points, d.DBID)
	}
	if d.Category != "Battle" || d.Subcategory != "Dungeons" {
		t.Errorf("Category/Subcategory = %q/%q", d.Category, d.Subcategory)
	}
	if d.HowTo != "Complete the dungeon\n50 times." {
		t.Errorf("HowTo = %q", d.HowTo)
	}
	if d.Title != "the Deep" {
		t.Errorf("Title = %q", d.Title)
	}
	if d.Item != "Deep Token" || d.ItemID != "abc123def" || d.ItemIcon == "" {
		t.Errorf("Item = %q/%q/%q", d.Item, d.ItemID, d.ItemIcon)
	}
}

func TestSearchAchievementByName_CachesResults(t *testing.T) {
	c, hits := newTestClient(t, map[string]page{
		"/lodestone/playguide/db/achievement/?q=Going+Deeper": {body: achievementSearchHTML},
	}, nil)

	for i := 0; i < 3; i++ {
		results, err := c.SearchAchievementByName(context.Background(), "Going Deeper")
		if err != nil {
			t.Fatalf("SearchAchievementByName がエラーを返した: %v", err)
		}
		if len(results) != 2 || results[0].DBID != "5f9a1c" || results[0].Name != "Going Deeper" {
			t.Fatalf("検索結果 = %+v", results)
		}
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Errorf("検索リクエスト数 = %d, want 1（2回目以降はキャッシュ）", got)
	}
}

func TestFetchCharacterAchievement_ParsesDetail(t *testing.T) {
	c, _ := newTestClient(t, map[string]page{
		"/lodestone/character/111/achievement/detail/2001/": {body: characterAchievementDetailHTML},
	}, nil)

	d, err := c.FetchCharacterAchievement(context.Background(), "111", "2001")
	if err != nil {
		t.Fatalf("FetchCharacterAchievement がエラーを返した: %v", err)
	}
	if d.ID != "2001" || d.Name != "Going Deeper" || d.DBID != "5f9a1c" {
		t.Errorf("ID/Name/DBID = %q/%q/%q", d.ID, d.Name, d.DBID)
	}
	if d.Category != "Battle" || d.Subcategory != "Dungeons" {
		t.Errorf("Category/Subcategory = %q/%q", d.Category, d.Subcategory)
	}
}

func TestFetchCharacterAchievement_Private(t *testing.T) {
	c, _ := newTestClient(t, map[string]page{
		"/lodestone/character/111/achievement/detail/2001/": {status: http.StatusForbidden},
	}, nil)

	_, err := c.FetchCharacterAchievement(context.Background(), "111", "2001")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}
