package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError_PG_UniqueViolation(t *testing.T) {
	dialect := &PostgresDialect{}
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"subject_code_key\"",
		ConstraintName: "subject_code_key",
		Detail:         "Key (code)=(TDT4100) already exists.",
	}
	wrapped := fmt.Errorf("exec: %w", pgErr)

	mapped := MapError(dialect, wrapped)

	if !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", mapped)
	}

	// Original pgconn.PgError should still be extractable
	var extracted *pgconn.PgError
	if !errors.As(mapped, &extracted) {
		t.Fatal("expected pgconn.PgError to still be extractable via errors.As")
	}
	if extracted.ConstraintName != "subject_code_key" {
		t.Fatalf("expected constraint name 'subject_code_key', got: %s", extracted.ConstraintName)
	}
}

func TestMapError_PG_OtherError(t *testing.T) {
	dialect := &PostgresDialect{}
	err := fmt.Errorf("relation \"exam\" does not exist")
	mapped := MapError(dialect, err)
	if mapped != err {
		t.Fatalf("expected same error back, got: %v", mapped)
	}
}

func TestMapError_PG_Nil(t *testing.T) {
	dialect := &PostgresDialect{}
	mapped := MapError(dialect, nil)
	if mapped != nil {
		t.Fatalf("expected nil, got: %v", mapped)
	}
}

func TestMapError_SQLite_UniqueViolation(t *testing.T) {
	dialect := &SQLiteDialect{}
	err := fmt.Errorf("constraint failed: UNIQUE constraint failed: topic.name (2067)")
	if mapped := MapError(dialect, err); !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", mapped)
	}
}

func TestParamBuilder_Placeholders(t *testing.T) {
	pg := (&PostgresDialect{}).NewParamBuilder()
	if p := pg.Add("a"); p != "$1" {
		t.Fatalf("expected $1, got %s", p)
	}
	if p := pg.Add(2); p != "$2" {
		t.Fatalf("expected $2, got %s", p)
	}
	if pg.Count() != 2 || len(pg.Params()) != 2 {
		t.Fatalf("expected 2 params, got %d", pg.Count())
	}

	lite := (&SQLiteDialect{}).NewParamBuilder()
	if p := lite.Add("a"); p != "?1" {
		t.Fatalf("expected ?1, got %s", p)
	}
}

func TestColumnType(t *testing.T) {
	pg := &PostgresDialect{}
	cases := map[string]string{
		"int":     "INTEGER",
		"float":   "FLOAT",
		"string":  "TEXT",
		"text":    "TEXT",
		"boolean": "BOOLEAN",
		"date":    "DATE",
		"mystery": "TEXT",
	}
	for in, want := range cases {
		if got := pg.ColumnType(in); got != want {
			t.Fatalf("postgres ColumnType(%q) = %q, want %q", in, got, want)
		}
	}
	if got := (&SQLiteDialect{}).ColumnType("boolean"); got != "INTEGER" {
		t.Fatalf("sqlite boolean should be INTEGER, got %s", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := QuoteIdent("page"); got != `"page"` {
		t.Fatalf("unexpected %s", got)
	}
	if got := QuoteIdent("block", "page_id"); got != `"block"."page_id"` {
		t.Fatalf("unexpected %s", got)
	}
	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("unexpected %s", got)
	}
}

func TestDropTableSQL(t *testing.T) {
	if got := (&PostgresDialect{}).DropTableSQL("exam"); got != `DROP TABLE IF EXISTS "exam" CASCADE` {
		t.Fatalf("unexpected %s", got)
	}
	if got := (&SQLiteDialect{}).DropTableSQL("exam"); got != `DROP TABLE IF EXISTS "exam"` {
		t.Fatalf("unexpected %s", got)
	}
}
