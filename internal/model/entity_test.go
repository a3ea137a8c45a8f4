package model

import (
	"errors"
	"testing"
)

func TestValidateID_NumericKinds(t *testing.T) {
	for _, kind := range []EntityType{EntityCharacter, EntityFreeCompany, EntityAchievement} {
		if err := kind.ValidateID("9229001536389012345"); err != nil {
			t.Errorf("%s: 数字のみのIDは受け付けるべき: %v", kind, err)
		}
		for _, bad := range []string{"", "12a", " 12", "abcdef0123456789abcdef0123456789abcdef01", "-1"} {
			err := kind.ValidateID(bad)
			if !errors.Is(err, ErrInvalidID) {
				t.Errorf("%s: %q は ErrInvalidID になるべき, got %v", kind, bad, err)
			}
		}
	}
}

func TestValidateID_HashKinds(t *testing.T) {
	valid := "abcdef0123456789abcdef0123456789abcdef01"
	for _, kind := range []EntityType{EntityLinkshell, EntityCrossworldLinkshell, EntityPvPTeam} {
		if err := kind.ValidateID(valid); err != nil {
			t.Errorf("%s: 40文字の英小文字・数字は受け付けるべき: %v", kind, err)
		}
		for _, bad := range []string{"", "12345", "ABCDEF0123456789abcdef0123456789abcdef01", valid + "0", valid[:39]} {
			err := kind.ValidateID(bad)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("%s: %q は ValidationError になるべき, got %v", kind, bad, err)
				continue
			}
			if vErr.Type != kind {
				t.Errorf("ValidationError.Type = %q, want %q", vErr.Type, kind)
			}
		}
	}
}

func TestValidateID_UnknownType(t *testing.T) {
	err := EntityType("house").ValidateID("1")
	if !errors.Is(err, ErrUnknownEntityType) {
		t.Errorf("未知の種別は ErrUnknownEntityType を返すべき, got %v", err)
	}
}

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		in   string
		want EntityType
	}{
		{"character", EntityCharacter},
		{"FreeCompany", EntityFreeCompany},
		{"crossworld_linkshell", EntityCrossworldLinkshell},
		{"crossworldlinkshell", EntityCrossworldLinkshell},
		{"pvpteam", EntityPvPTeam},
		{"achievement", EntityAchievement},
	}
	for _, tt := range tests {
		got, err := ParseEntityType(tt.in)
		if err != nil {
			t.Errorf("ParseEntityType(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEntityType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseEntityType("estate"); !errors.Is(err, ErrUnknownEntityType) {
		t.Errorf("未知の種別はエラーになるべき, got %v", err)
	}
}

func TestIsGroup(t *testing.T) {
	if EntityCharacter.IsGroup() || EntityAchievement.IsGroup() {
		t.Error("character / achievement はグループではない")
	}
	for _, kind := range []EntityType{EntityFreeCompany, EntityLinkshell, EntityCrossworldLinkshell, EntityPvPTeam} {
		if !kind.IsGroup() {
			t.Errorf("%s はグループであるべき", kind)
		}
	}
}
