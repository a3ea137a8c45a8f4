package model

import "time"

// Lodestoneから取得した構造化データ。DBの状態とは独立した読み取り専用の値として扱う。

// MemberEntry はメンバー一覧・フレンド一覧の1行。
type MemberEntry struct {
	ID               string
	Name             string
	Avatar           string
	Server           string
	DataCenter       string
	Rank             string
	RankID           int
	GrandCompanyRank string
	Feasts           int
}

// JobLevel はジョブとレベル。レベル0は未習得を表す。
type JobLevel struct {
	Name  string
	Level int
}

// AchievementEntry はキャラクターのアチーブメント一覧の1行。
type AchievementEntry struct {
	ID     string
	Name   string
	Icon   string
	Points int
	Time   time.Time
}

// CharacterProfile はキャラクターページのデータ。
type CharacterProfile struct {
	ID                  string
	Name                string
	Server              string
	DataCenter          string
	Avatar              string
	Title               string
	Race                string
	Clan                string
	Gender              string
	Nameday             string
	Guardian            string
	City                string
	GrandCompany        string
	GrandCompanyRank    string
	Biography           string
	FreeCompanyID       string
	FreeCompanyName     string
	PvPTeamID           string
	PvPTeamName         string
	PvPMatches          int
	Jobs                []JobLevel
	Achievements        []AchievementEntry
	AchievementsPrivate bool
	Friends             []MemberEntry
	FriendsPrivate      bool
	Following           []MemberEntry
	FollowingPrivate    bool
}

// EstateProfile はフリーカンパニーのハウジング情報。
type EstateProfile struct {
	Zone     string
	Address  string
	Greeting string
}

// FreeCompanyProfile はフリーカンパニーページと全メンバーページのデータ。
type FreeCompanyProfile struct {
	ID           string
	Name         string
	Tag          string
	Server       string
	DataCenter   string
	GrandCompany string
	Crest        []string
	Formed       *time.Time
	Slogan       string
	Active       string
	Recruitment  string
	Rank         int
	WeeklyRank   *int
	MonthlyRank  *int
	MembersCount int
	Community    string
	Estate       *EstateProfile
	Focus        map[string]bool
	Seeking      map[string]bool
	Members      []MemberEntry
}

// MemberPage はページ分割されたメンバー一覧の1ページ。
type MemberPage struct {
	Members   []MemberEntry
	Page      int
	PageTotal int
	Total     int
}

// LinkshellPage はリンクシェルページ（メンバー一覧を含む）の1ページ。
type LinkshellPage struct {
	ID         string
	Name       string
	Server     string
	DataCenter string
	Formed     *time.Time
	Community  string
	MemberPage
}

// PvPTeamProfile はPvPチームページのデータ。
type PvPTeamProfile struct {
	ID         string
	Name       string
	DataCenter string
	Community  string
	Formed     *time.Time
	Crest      []string
	Members    []MemberEntry
}

// AchievementDetails はアチーブメント詳細（DBページまたはキャラクター別詳細ページ）。
type AchievementDetails struct {
	ID          string
	Name        string
	Icon        string
	Points      int
	Category    string
	Subcategory string
	HowTo       string
	Title       string
	Item        string
	ItemIcon    string
	ItemID      string
	DBID        string
}

// AchievementSearchHit はアチーブメントDB検索結果の1行。
type AchievementSearchHit struct {
	DBID string
	Name string
}
