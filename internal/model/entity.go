package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// EntityType はトラッキング対象エンティティの種別を表す。
type EntityType string

const (
	EntityCharacter           EntityType = "character"
	EntityFreeCompany         EntityType = "freecompany"
	EntityLinkshell           EntityType = "linkshell"
	EntityCrossworldLinkshell EntityType = "crossworldlinkshell"
	EntityPvPTeam             EntityType = "pvpteam"
	EntityAchievement         EntityType = "achievement"
)

// AllEntityTypes はサポートするすべてのエンティティ種別。
var AllEntityTypes = []EntityType{
	EntityCharacter,
	EntityFreeCompany,
	EntityLinkshell,
	EntityCrossworldLinkshell,
	EntityPvPTeam,
	EntityAchievement,
}

var (
	numericIDPattern = regexp.MustCompile(`^\d+$`)
	hashIDPattern    = regexp.MustCompile(`^[a-z0-9]{40}$`)
)

// ErrInvalidID はIDの形式がエンティティ種別の要件を満たさないことを示す。
var ErrInvalidID = errors.New("invalid entity id")

// ErrUnknownEntityType は未知のエンティティ種別を示す。
var ErrUnknownEntityType = errors.New("unknown entity type")

// ValidationError はI/O前に検出された入力エラー。
type ValidationError struct {
	Type  EntityType
	Value string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s id: %q", e.Type, e.Value)
}

// Unwrap はErrInvalidIDを返す。errors.Isでの判定に使用する。
func (e *ValidationError) Unwrap() error {
	return ErrInvalidID
}

// ParseEntityType は文字列をEntityTypeに変換する。
// "crossworld_linkshell" 表記も受け付ける。
func ParseEntityType(s string) (EntityType, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "")
	for _, t := range AllEntityTypes {
		if string(t) == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownEntityType, s)
}

// ValidateID はIDが種別ごとの形式に一致するかを検証する。
// Character / FreeCompany / Achievement は数字のみ、
// Linkshell / CrossworldLinkshell / PvPTeam は40文字の英小文字・数字。
func (t EntityType) ValidateID(id string) error {
	var ok bool
	switch t {
	case EntityCharacter, EntityFreeCompany, EntityAchievement:
		ok = numericIDPattern.MatchString(id)
	case EntityLinkshell, EntityCrossworldLinkshell, EntityPvPTeam:
		ok = hashIDPattern.MatchString(id)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEntityType, t)
	}
	if !ok {
		return &ValidationError{Type: t, Value: id}
	}
	return nil
}

// IsGroup はメンバー一覧を持つグループ系エンティティかを返す。
func (t EntityType) IsGroup() bool {
	switch t {
	case EntityFreeCompany, EntityLinkshell, EntityCrossworldLinkshell, EntityPvPTeam:
		return true
	}
	return false
}

// Label はログやメッセージに使う表示名を返す。
func (t EntityType) Label() string {
	switch t {
	case EntityCharacter:
		return "character"
	case EntityFreeCompany:
		return "free company"
	case EntityLinkshell:
		return "linkshell"
	case EntityCrossworldLinkshell:
		return "crossworld linkshell"
	case EntityPvPTeam:
		return "PvP team"
	case EntityAchievement:
		return "achievement"
	}
	return string(t)
}

// EntityDates は全エンティティ共通の日付情報。
type EntityDates struct {
	Registered *time.Time `json:"registered"`
	Updated    *time.Time `json:"updated"`
	Deleted    *time.Time `json:"deleted"`
}
