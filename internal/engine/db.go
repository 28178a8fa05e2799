package engine

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"exambank/internal/metadata"
	"exambank/internal/store"
)

// Conditions maps declared field names (or column names) to the value they
// must equal.
type Conditions map[string]any

// DB is the persistence gateway for registered entities. A DB built with New
// is safe for concurrent use; the DB handed to an InTx callback is bound to
// one transaction and must stay on that goroutine.
type DB struct {
	store    *store.Store
	q        store.Querier
	dialect  store.Dialect
	reg      *metadata.Registry
	migrator *store.Migrator
	logger   *zap.Logger
	inTx     bool
}

func New(s *store.Store, reg *metadata.Registry, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{
		store:    s,
		q:        s.DB,
		dialect:  s.Dialect,
		reg:      reg,
		migrator: store.NewMigrator(s),
		logger:   logger.Named("db"),
	}
}

// Registry returns the entity registry the gateway resolves types against.
func (db *DB) Registry() *metadata.Registry {
	return db.reg
}

// Dialect returns the SQL dialect of the underlying store.
func (db *DB) Dialect() store.Dialect {
	return db.dialect
}

// Insert writes a new row for entity, which must be a pointer to a registered
// struct, and assigns the generated id to its id field. Inserting the same
// value twice creates two rows.
func (db *DB) Insert(ctx context.Context, entity any) (int64, error) {
	e, rv, err := db.target(entity)
	if err != nil {
		return 0, err
	}

	q := BuildInsert(db.dialect, e, EncodeEntity(e, rv))

	var id int64
	if err := db.q.QueryRowContext(ctx, q.SQL, q.Params...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s: %w", e.Table, store.MapError(db.dialect, err))
	}

	pk := rv.FieldByIndex(e.PKField().Index())
	if pk.Kind() >= reflect.Uint && pk.Kind() <= reflect.Uint64 {
		pk.SetUint(uint64(id))
	} else {
		pk.SetInt(id)
	}

	db.logger.Debug("db.insert", zap.String("table", e.Table), zap.Int64("id", id))
	return id, nil
}

// Update writes exactly the named fields of an inserted entity. Unknown
// field names fail before any SQL is issued.
func (db *DB) Update(ctx context.Context, entity any, fields ...string) error {
	e, rv, err := db.target(entity)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("update %s: %w", e.Table, ErrNoFields)
	}

	values := make([]Value, 0, len(fields))
	for _, name := range fields {
		f := e.Lookup(name)
		if f == nil || f.Name == e.PrimaryKey.Field {
			return fmt.Errorf("update %s: %w %q", e.Table, ErrUnknownField, name)
		}
		values = append(values, Encode(*f, rv.FieldByIndex(f.Index())))
	}

	id := toInt64(rv.FieldByIndex(e.PKField().Index()))
	if id == 0 {
		return fmt.Errorf("update %s: %w", e.Table, ErrNotPersisted)
	}

	q := BuildUpdate(db.dialect, e, values, id)
	n, err := store.Exec(ctx, db.q, q.SQL, q.Params...)
	if err != nil {
		return fmt.Errorf("update %s: %w", e.Table, store.MapError(db.dialect, err))
	}
	if n == 0 {
		return fmt.Errorf("update %s id %d: %w", e.Table, id, store.ErrNotFound)
	}

	db.logger.Debug("db.update", zap.String("table", e.Table), zap.Int64("id", id), zap.Strings("fields", fields))
	return nil
}

// Select returns the rows of the prototype's table matching every condition.
// Rows are keyed by column name with references flattened to <ref>_id.
func (db *DB) Select(ctx context.Context, prototype any, conds Conditions) ([]map[string]any, error) {
	e, err := db.reg.EntityFor(prototype)
	if err != nil {
		return nil, err
	}
	values, err := conditionValues(e, conds)
	if err != nil {
		return nil, err
	}
	q := BuildSelect(db.dialect, e, values)
	return db.query(ctx, e, q)
}

// SelectAll returns every row of the prototype's table.
func (db *DB) SelectAll(ctx context.Context, prototype any) ([]map[string]any, error) {
	return db.Select(ctx, prototype, nil)
}

// Get returns the row with the given id or store.ErrNotFound.
func (db *DB) Get(ctx context.Context, prototype any, id int64) (map[string]any, error) {
	e, err := db.reg.EntityFor(prototype)
	if err != nil {
		return nil, err
	}
	return db.get(ctx, e, id)
}

// SelectOf is Select addressed by entity or table name.
func (db *DB) SelectOf(ctx context.Context, name string, conds Conditions) ([]map[string]any, error) {
	e := db.reg.GetEntity(name)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", metadata.ErrUnregistered, name)
	}
	values, err := conditionValues(e, conds)
	if err != nil {
		return nil, err
	}
	return db.query(ctx, e, BuildSelect(db.dialect, e, values))
}

// GetOf is Get addressed by entity or table name.
func (db *DB) GetOf(ctx context.Context, name string, id int64) (map[string]any, error) {
	e := db.reg.GetEntity(name)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", metadata.ErrUnregistered, name)
	}
	return db.get(ctx, e, id)
}

// SelectChildren returns the child rows whose reference to parent equals
// parentID, ordered by the given child fields.
func (db *DB) SelectChildren(ctx context.Context, parent, child any, parentID int64, orderBy ...string) ([]map[string]any, error) {
	pe, err := db.reg.EntityFor(parent)
	if err != nil {
		return nil, err
	}
	ce, err := db.reg.EntityFor(child)
	if err != nil {
		return nil, err
	}
	return db.selectChildren(ctx, pe, ce, parentID, orderBy)
}

// SelectChildrenOf is SelectChildren addressed by entity or table name.
func (db *DB) SelectChildrenOf(ctx context.Context, parent, child string, parentID int64, orderBy ...string) ([]map[string]any, error) {
	pe := db.reg.GetEntity(parent)
	if pe == nil {
		return nil, fmt.Errorf("%w: %s", metadata.ErrUnregistered, parent)
	}
	ce := db.reg.GetEntity(child)
	if ce == nil {
		return nil, fmt.Errorf("%w: %s", metadata.ErrUnregistered, child)
	}
	return db.selectChildren(ctx, pe, ce, parentID, orderBy)
}

func (db *DB) selectChildren(ctx context.Context, pe, ce *metadata.Entity, parentID int64, orderBy []string) ([]map[string]any, error) {
	fk := ce.ReferenceTo(pe.Name)
	if fk == nil {
		return nil, fmt.Errorf("%s -> %s: %w", ce.Name, pe.Name, ErrNoReference)
	}

	cols := make([]string, len(orderBy))
	for i, name := range orderBy {
		f := ce.Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("%s: %w %q", ce.Table, ErrInvalidOrderBy, name)
		}
		cols[i] = f.Column
	}

	q := BuildSelectChildren(db.dialect, pe, ce, fk, parentID, cols)
	return db.query(ctx, ce, q)
}

// Link records a (left, right) pair in the entity's relation table.
func (db *DB) Link(ctx context.Context, prototype any, left, right int64) error {
	e, err := db.reg.EntityFor(prototype)
	if err != nil {
		return err
	}
	rel, ok := db.reg.GetRelation(e.Name)
	if !ok {
		return fmt.Errorf("%s: %w", e.Name, ErrNoRelation)
	}
	q := BuildLink(db.dialect, rel, left, right)
	if _, err := store.Exec(ctx, db.q, q.SQL, q.Params...); err != nil {
		return fmt.Errorf("link %s: %w", rel.Table, store.MapError(db.dialect, err))
	}
	return nil
}

// Linked returns the right ids linked from left in the entity's relation table.
func (db *DB) Linked(ctx context.Context, prototype any, left int64) ([]int64, error) {
	e, err := db.reg.EntityFor(prototype)
	if err != nil {
		return nil, err
	}
	rel, ok := db.reg.GetRelation(e.Name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", e.Name, ErrNoRelation)
	}
	q := BuildLinked(db.dialect, rel, left)
	rows, err := store.QueryRows(ctx, db.q, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("linked %s: %w", rel.Table, err)
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if id, ok := row[rel.RightKey].(int64); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Links returns every row of a relation table, keyed by its left and right
// columns.
func (db *DB) Links(ctx context.Context, rel metadata.Relation) ([]map[string]any, error) {
	q := BuildLinks(rel)
	rows, err := store.QueryRows(ctx, db.q, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("links %s: %w", rel.Table, err)
	}
	return rows, nil
}

// Tables returns the registered table names in creation order.
func (db *DB) Tables() ([]string, error) {
	ordered, err := db.reg.Ordered()
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(ordered))
	for _, e := range ordered {
		tables = append(tables, e.Table)
	}
	for _, rel := range db.reg.AllRelations() {
		tables = append(tables, rel.Table)
	}
	return tables, nil
}

// ResetAll drops every table in the working schema and recreates the
// registered ones. If the confirmer declines, nothing is touched and
// ErrResetAborted is returned.
func (db *DB) ResetAll(ctx context.Context, c Confirmer) error {
	if db.inTx {
		return fmt.Errorf("reset: %w", ErrNestedTx)
	}
	ok, err := c.Confirm(ctx, ResetPrompt)
	if err != nil {
		return fmt.Errorf("reset confirmation: %w", err)
	}
	if !ok {
		db.logger.Info("db.reset.aborted")
		return ErrResetAborted
	}

	// Bad references must surface before anything is dropped.
	if _, err := db.reg.Ordered(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	dropped, err := db.migrator.DropAll(ctx)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := db.migrator.CreateAll(ctx, db.reg); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	tables, _ := db.Tables()
	db.logger.Info("db.reset.done", zap.Strings("dropped", dropped), zap.Strings("created", tables))
	return nil
}

// Migrate creates missing tables and adds missing columns. Nothing is
// dropped.
func (db *DB) Migrate(ctx context.Context) error {
	if db.inTx {
		return fmt.Errorf("migrate: %w", ErrNestedTx)
	}
	if err := db.migrator.CreateAll(ctx, db.reg); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InTx runs fn with a DB bound to a single transaction, committing when fn
// returns nil and rolling back otherwise. Nested calls reuse the outer
// transaction.
func (db *DB) InTx(ctx context.Context, fn func(tx *DB) error) error {
	if db.inTx {
		return fn(db)
	}

	tx, err := db.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	txDB := *db
	txDB.q = tx
	txDB.inTx = true

	if err := fn(&txDB); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (db *DB) get(ctx context.Context, e *metadata.Entity, id int64) (map[string]any, error) {
	values, err := conditionValues(e, Conditions{"id": id})
	if err != nil {
		return nil, err
	}
	q := BuildSelect(db.dialect, e, values)
	row, err := store.QueryRow(ctx, db.q, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("get %s/%d: %w", e.Table, id, err)
	}
	if db.dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, e.BooleanColumns())
	}
	return row, nil
}

func (db *DB) query(ctx context.Context, e *metadata.Entity, q QueryResult) ([]map[string]any, error) {
	rows, err := store.QueryRows(ctx, db.q, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", e.Table, err)
	}
	if db.dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, e.BooleanColumns())
	}
	return rows, nil
}

// target resolves a pointer to a registered struct.
func (db *DB) target(entity any) (*metadata.Entity, reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, reflect.Value{}, fmt.Errorf("%w: got %T", ErrNotPointer, entity)
	}
	e, err := db.reg.EntityFor(entity)
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return e, rv.Elem(), nil
}

// conditionValues encodes conditions in field declaration order.
func conditionValues(e *metadata.Entity, conds Conditions) ([]Value, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	matched := make(map[string]bool, len(conds))
	var values []Value
	for _, f := range e.Fields {
		for _, key := range []string{f.Name, f.Column} {
			raw, ok := conds[key]
			if !ok || matched[key] {
				continue
			}
			matched[key] = true
			if err := CheckReference(f, raw); err != nil {
				return nil, fmt.Errorf("select %s: %w", e.Table, err)
			}
			values = append(values, EncodeArg(f, raw))
		}
	}
	for key := range conds {
		if !matched[key] {
			return nil, fmt.Errorf("select %s: %w %q", e.Table, ErrUnknownField, key)
		}
	}
	return values, nil
}
