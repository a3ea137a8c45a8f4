package model

import "time"

// Character はDBに保存されたキャラクターの状態。
type Character struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Avatar             string              `json:"avatar"`
	Dates              EntityDates         `json:"dates"`
	Hidden             *time.Time          `json:"hidden"`
	HiddenAchievements *time.Time          `json:"hidden_achievements"`
	HiddenFriends      *time.Time          `json:"hidden_friends"`
	HiddenFollowing    *time.Time          `json:"hidden_following"`
	Biography          *string             `json:"biography"`
	Title              *TitleRef           `json:"title"`
	Biology            CharacterBiology    `json:"biology"`
	Location           CharacterLocation   `json:"location"`
	GrandCompany       *GrandCompanyRank   `json:"grand_company"`
	PvPMatches         int                 `json:"pvp_matches"`
	AchievementPoints  int                 `json:"achievement_points"`
	Jobs               []CharacterJob      `json:"jobs"`
	PreviousNames      []string            `json:"previous_names"`
	PreviousServers    []string            `json:"previous_servers"`
	Groups             []GroupMembership   `json:"groups"`
	Achievements       []EarnedAchievement `json:"achievements"`
	Friends            []CharacterRef      `json:"friends"`
	Following          []CharacterRef      `json:"following"`
}

// CharacterBiology はキャラクターの種族・誕生日情報。
type CharacterBiology struct {
	Gender   string `json:"gender"`
	Race     string `json:"race"`
	Clan     string `json:"clan"`
	Nameday  string `json:"nameday"`
	Guardian string `json:"guardian"`
}

// CharacterLocation はキャラクターの所属ワールド情報。
type CharacterLocation struct {
	Server     string `json:"server"`
	DataCenter string `json:"data_center"`
	City       string `json:"city"`
}

// GrandCompanyRank はグランドカンパニーと階級。
type GrandCompanyRank struct {
	Name string `json:"name"`
	Rank string `json:"rank"`
}

// TitleRef は称号と、それを報酬とするアチーブメント。
type TitleRef struct {
	Title         string `json:"title"`
	AchievementID string `json:"achievement_id"`
}

// CharacterJob はジョブレベル。
type CharacterJob struct {
	Name       string     `json:"name"`
	Level      int        `json:"level"`
	LastChange *time.Time `json:"last_change"`
}

// GroupMembership はキャラクター側から見たグループ所属。
type GroupMembership struct {
	Type    EntityType `json:"type"`
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Rank    string     `json:"rank"`
	Current bool       `json:"current"`
}

// EarnedAchievement は獲得済みアチーブメント。
type EarnedAchievement struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Icon   string    `json:"icon"`
	Points int       `json:"points"`
	Time   time.Time `json:"time"`
}

// CharacterRef は他エンティティから参照されるキャラクターの最小情報。
type CharacterRef struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Avatar  string     `json:"avatar"`
	Current bool       `json:"current"`
	Time    *time.Time `json:"time,omitempty"`
}

// Member はグループのメンバー行。
type Member struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
	Rank    string `json:"rank"`
	RankID  int    `json:"rank_id"`
	Current bool   `json:"current"`
}

// Estate はフリーカンパニーのハウジング情報。
type Estate struct {
	Zone    string `json:"zone"`
	Address string `json:"address"`
	Message string `json:"message"`
}

// RankingSnapshot はフリーカンパニーのランキング履歴の1行。
type RankingSnapshot struct {
	Date    time.Time `json:"date"`
	Weekly  int       `json:"weekly"`
	Monthly int       `json:"monthly"`
	Members int       `json:"members"`
}

// FreeCompany はDBに保存されたフリーカンパニーの状態。
type FreeCompany struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Tag          string            `json:"tag"`
	Dates        EntityDates       `json:"dates"`
	Formed       *time.Time        `json:"formed"`
	Server       string            `json:"server"`
	DataCenter   string            `json:"data_center"`
	GrandCompany string            `json:"grand_company"`
	Crest        []string          `json:"crest"`
	Icon         string            `json:"icon"`
	Slogan       *string           `json:"slogan"`
	Active       *string           `json:"active"`
	Recruitment  bool              `json:"recruitment"`
	Rank         int               `json:"rank"`
	Community    *string           `json:"community"`
	Estate       *Estate           `json:"estate"`
	Focus        []string          `json:"focus"`
	Seeking      []string          `json:"seeking"`
	Ranking      []RankingSnapshot `json:"ranking"`
	Members      []Member          `json:"members"`
	OldNames     []string          `json:"old_names"`
}

// Linkshell はDBに保存されたリンクシェル（クロスワールド含む）の状態。
type Linkshell struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Crossworld bool        `json:"crossworld"`
	Dates      EntityDates `json:"dates"`
	Formed     *time.Time  `json:"formed"`
	Server     *string     `json:"server"`
	DataCenter string      `json:"data_center"`
	Community  *string     `json:"community"`
	Members    []Member    `json:"members"`
	OldNames   []string    `json:"old_names"`
}

// PvPTeam はDBに保存されたPvPチームの状態。
type PvPTeam struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Dates      EntityDates `json:"dates"`
	Formed     *time.Time  `json:"formed"`
	DataCenter string      `json:"data_center"`
	Community  *string     `json:"community"`
	Crest      []string    `json:"crest"`
	Icon       string      `json:"icon"`
	Members    []Member    `json:"members"`
	OldNames   []string    `json:"old_names"`
}

// RewardItem はアチーブメント報酬のアイテム。
type RewardItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Achievement はDBに保存されたアチーブメントの状態。
type Achievement struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Icon        string         `json:"icon"`
	Points      int            `json:"points"`
	Category    *string        `json:"category"`
	Subcategory *string        `json:"subcategory"`
	HowTo       *string        `json:"how_to"`
	Title       *string        `json:"title"`
	Item        *RewardItem    `json:"item"`
	DBID        *string        `json:"db_id"`
	EarnedBy    int            `json:"earned_by"`
	Dates       EntityDates    `json:"dates"`
	LastEarners []CharacterRef `json:"last_earners"`
}

// Timestamps は登録・更新・削除日時を返す。
func (c *Character) Timestamps() EntityDates { return c.Dates }

// Timestamps は登録・更新・削除日時を返す。
func (f *FreeCompany) Timestamps() EntityDates { return f.Dates }

// Timestamps は登録・更新・削除日時を返す。
func (l *Linkshell) Timestamps() EntityDates { return l.Dates }

// Timestamps は登録・更新・削除日時を返す。
func (p *PvPTeam) Timestamps() EntityDates { return p.Dates }

// Timestamps は登録・更新・削除日時を返す。
func (a *Achievement) Timestamps() EntityDates { return a.Dates }

// GrandCompanyID はグランドカンパニー名をIDに変換する。不明な場合は0を返す。
func GrandCompanyID(name string) int {
	switch name {
	case "Maelstrom":
		return 1
	case "Order of the Twin Adder":
		return 2
	case "Immortal Flames":
		return 3
	}
	return 0
}
