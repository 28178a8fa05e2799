package store

import (
	"context"
	"fmt"
	"strings"

	"exambank/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Migrate ensures the table matches the entity metadata.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}

	return m.alterTable(ctx, entity)
}

// MigrateRelation creates the link table of an entity if it doesn't exist.
func (m *Migrator) MigrateRelation(ctx context.Context, rel metadata.Relation, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, rel.Table)
	if err != nil {
		return fmt.Errorf("check relation table exists: %w", err)
	}
	if exists {
		return nil
	}

	intType := m.store.Dialect.ColumnType(metadata.TypeInt)
	ref := QuoteIdent(entity.Table) + "(" + QuoteIdent(entity.PrimaryKey.Field) + ")"
	sql := fmt.Sprintf(
		"CREATE TABLE %s (\n  %s %s NOT NULL REFERENCES %s,\n  %s %s NOT NULL REFERENCES %s\n)",
		QuoteIdent(rel.Table),
		QuoteIdent(rel.LeftKey), intType, ref,
		QuoteIdent(rel.RightKey), intType, ref,
	)

	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create relation table %s: %w", rel.Table, err)
	}
	return nil
}

// CreateAll materializes every registered entity, referenced tables first,
// followed by the relation tables.
func (m *Migrator) CreateAll(ctx context.Context, reg *metadata.Registry) error {
	ordered, err := reg.Ordered()
	if err != nil {
		return err
	}
	for _, e := range ordered {
		if err := m.Migrate(ctx, e); err != nil {
			return err
		}
	}
	for _, rel := range reg.AllRelations() {
		if err := m.MigrateRelation(ctx, rel, reg.GetEntity(rel.Entity)); err != nil {
			return err
		}
	}
	return nil
}

// DropAll drops every table of the working schema, not only the registered
// ones, and returns the dropped names.
func (m *Migrator) DropAll(ctx context.Context) ([]string, error) {
	d := m.store.Dialect
	tables, err := d.ListTables(ctx, m.store.DB)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	disable, enable := d.ForeignKeyToggle()
	if disable != "" {
		if _, err := m.store.DB.ExecContext(ctx, disable); err != nil {
			return nil, fmt.Errorf("disable foreign keys: %w", err)
		}
		defer m.store.DB.ExecContext(context.WithoutCancel(ctx), enable)
	}

	for _, t := range tables {
		if _, err := m.store.DB.ExecContext(ctx, d.DropTableSQL(t)); err != nil {
			return nil, fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return tables, nil
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	var cols []string
	for _, f := range entity.Fields {
		cols = append(cols, m.buildColumnDef(entity, &f))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", QuoteIdent(entity.Table), strings.Join(cols, ",\n  "))

	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, entity *metadata.Entity) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	for _, f := range entity.Fields {
		if _, ok := existing[f.Column]; ok {
			continue
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", QuoteIdent(entity.Table), m.buildColumnDef(entity, &f))
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.Table, f.Column, err)
		}
	}
	return nil
}

func (m *Migrator) buildColumnDef(entity *metadata.Entity, f *metadata.Field) string {
	col := QuoteIdent(f.Column)

	if f.Name == entity.PrimaryKey.Field {
		return col + " " + m.store.Dialect.PrimaryKeyDef()
	}

	col += " " + m.store.Dialect.ColumnType(f.ColumnType())
	if f.IsReference() {
		col += " REFERENCES " + QuoteIdent(f.RefTable) + "(" + QuoteIdent("id") + ")"
	}
	return col
}
