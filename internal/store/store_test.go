package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"exambank/internal/config"
	"exambank/internal/metadata"
)

type Topic struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Type string `db:"type"`
}

type Subject struct {
	ID       int64    `db:"id"`
	Code     []string `db:"code"`
	Category *Topic   `db:"category"`
	Active   bool     `db:"active"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func newTestRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	for _, p := range []any{Subject{}, Topic{}} {
		if _, err := reg.Register(p); err != nil {
			t.Fatalf("register %T: %v", p, err)
		}
	}
	if _, err := reg.RegisterRelation(Topic{}); err != nil {
		t.Fatalf("register relation: %v", err)
	}
	return reg
}

func TestNew_SQLiteCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s, err := New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Path: dir, Name: "eksamensbanken"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "eksamensbanken.db")); err != nil {
		t.Fatalf("expected database file in new data dir: %v", err)
	}
}

func TestNew_SQLiteDataDirIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Path: path, Name: "x"})
	if err == nil || !strings.Contains(err.Error(), "create data dir") {
		t.Fatalf("expected create data dir error, got %v", err)
	}
}

func TestQueryRows_EmptyAndNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := Exec(ctx, s.DB, `CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT, flag INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}

	rows, err := QueryRows(ctx, s.DB, `SELECT * FROM t`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", rows)
	}
	if _, err := QueryRow(ctx, s.DB, `SELECT * FROM t WHERE id = ?1`, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	n, err := Exec(ctx, s.DB, `INSERT INTO t (name, flag) VALUES (?1, ?2)`, "a", 1)
	if err != nil || n != 1 {
		t.Fatalf("insert: n=%d err=%v", n, err)
	}
	row, err := QueryRow(ctx, s.DB, `SELECT * FROM t`)
	if err != nil {
		t.Fatalf("query row: %v", err)
	}
	NormalizeBooleans([]map[string]any{row}, []string{"flag"})
	if row["name"] != "a" || row["flag"] != true {
		t.Fatalf("unexpected row %#v", row)
	}
}

func TestMigrator_CreateAllAndDropAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := newTestRegistry(t)
	m := NewMigrator(s)

	if err := m.CreateAll(ctx, reg); err != nil {
		t.Fatalf("create all: %v", err)
	}

	tables, err := s.Dialect.ListTables(ctx, s.DB)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"subject", "topic", "topic_relation"}
	if len(tables) != len(want) {
		t.Fatalf("expected tables %v, got %v", want, tables)
	}
	for i := range want {
		if tables[i] != want[i] {
			t.Fatalf("expected tables %v, got %v", want, tables)
		}
	}

	cols, err := s.Dialect.GetColumns(ctx, s.DB, "subject")
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if cols["topic_id"] != "INTEGER" || cols["code"] != "TEXT" {
		t.Fatalf("unexpected subject columns %v", cols)
	}
	if _, ok := cols["category"]; ok {
		t.Fatal("reference field must not produce its own column")
	}

	// idempotent
	if err := m.CreateAll(ctx, reg); err != nil {
		t.Fatalf("second create all: %v", err)
	}

	if _, err := Exec(ctx, s.DB, `INSERT INTO "topic" ("name", "type") VALUES ('x', 'main')`); err != nil {
		t.Fatalf("insert topic: %v", err)
	}
	if _, err := Exec(ctx, s.DB, `INSERT INTO "subject" ("topic_id") VALUES (1)`); err != nil {
		t.Fatalf("insert subject: %v", err)
	}

	dropped, err := m.DropAll(ctx)
	if err != nil {
		t.Fatalf("drop all: %v", err)
	}
	if len(dropped) != 3 {
		t.Fatalf("expected 3 dropped tables, got %v", dropped)
	}
	left, _ := s.Dialect.ListTables(ctx, s.DB)
	if len(left) != 0 {
		t.Fatalf("expected no tables left, got %v", left)
	}
}

func TestMigrator_AddsMissingColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := Exec(ctx, s.DB, `CREATE TABLE "topic" ("id" INTEGER PRIMARY KEY, "name" TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	e, err := metadata.Reflect(reflectType(Topic{}))
	if err != nil {
		t.Fatalf("reflect: %v", err)
	}
	if err := NewMigrator(s).Migrate(ctx, e); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cols, _ := s.Dialect.GetColumns(ctx, s.DB, "topic")
	if _, ok := cols["type"]; !ok {
		t.Fatalf("expected type column to be added, got %v", cols)
	}
}

func TestMigrator_RejectsUnknownReference(t *testing.T) {
	s := newTestStore(t)
	reg := metadata.NewRegistry()
	reg.Register(Subject{})
	err := NewMigrator(s).CreateAll(context.Background(), reg)
	if !errors.Is(err, metadata.ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
}

func reflectType(v any) reflect.Type { return reflect.TypeOf(v) }
