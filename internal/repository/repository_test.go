package repository

import (
	"context"
	"database/sql"
	"testing"
)

// 各Postgres実装がインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ EntityRepository = (*PostgresEntityRepo)(nil)
	var _ EntityLoader = (*PostgresEntityLoader)(nil)
	var _ JobRepository = (*PostgresJobRepo)(nil)
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// コンストラクタが非nilを返すことを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresEntityRepo(nil) == nil {
		t.Fatal("NewPostgresEntityRepo は非nilを返すべき")
	}
	if NewPostgresEntityLoader(nil) == nil {
		t.Fatal("NewPostgresEntityLoader は非nilを返すべき")
	}
	if NewPostgresJobRepo(nil) == nil {
		t.Fatal("NewPostgresJobRepo は非nilを返すべき")
	}
	if NewPostgresUserRepo(nil) == nil {
		t.Fatal("NewPostgresUserRepo は非nilを返すべき")
	}
	if NewPostgresSessionRepo(nil) == nil {
		t.Fatal("NewPostgresSessionRepo は非nilを返すべき")
	}
}

func TestStmt_KeepsQueryAndArgs(t *testing.T) {
	st := Stmt(`UPDATE ffxiv_character SET name = $1 WHERE character_id = $2`, "Alpha Beta", "123")
	if st.Query == "" {
		t.Fatal("Query は空であるべきではない")
	}
	if len(st.Args) != 2 {
		t.Fatalf("Args の件数 = %d, want 2", len(st.Args))
	}
	if st.Args[0] != "Alpha Beta" || st.Args[1] != "123" {
		t.Errorf("Args = %v, want [Alpha Beta 123]", st.Args)
	}
}

func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("空文字列はNULLとして扱われるべき")
	}
	if ns := nullString("abc"); !ns.Valid || ns.String != "abc" {
		t.Errorf("nullString(\"abc\") = %+v", ns)
	}
}

func TestNullStringPtr(t *testing.T) {
	if p := nullStringPtr(sql.NullString{}); p != nil {
		t.Errorf("NULLはnilになるべき: %v", *p)
	}
	p := nullStringPtr(sql.NullString{String: "slogan", Valid: true})
	if p == nil || *p != "slogan" {
		t.Errorf("nullStringPtr = %v, want slogan", p)
	}
}

func TestNullStringValue(t *testing.T) {
	if v := nullStringValue(sql.NullString{}); v != "" {
		t.Errorf("NULLは空文字列になるべき: %q", v)
	}
	if v := nullStringValue(sql.NullString{String: "x", Valid: true}); v != "x" {
		t.Errorf("nullStringValue = %q, want x", v)
	}
}

func TestPostgresSessionRepo_EmptyID_ReturnsNil(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	s, err := repo.FindByID(context.Background(), "")
	if err != nil {
		t.Fatalf("FindByID(\"\") error = %v", err)
	}
	if s != nil {
		t.Errorf("空のIDはnilを返すべき: %+v", s)
	}
}
