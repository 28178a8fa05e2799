package engine

import (
	"fmt"
	"strings"

	"exambank/internal/metadata"
	"exambank/internal/store"
)

type QueryResult struct {
	SQL    string
	Params []any
}

// BuildInsert builds an INSERT returning the generated id.
func BuildInsert(d store.Dialect, e *metadata.Entity, values []Value) QueryResult {
	table := store.QuoteIdent(e.Table)
	pk := store.QuoteIdent(e.PrimaryKey.Field)
	if len(values) == 0 {
		return QueryResult{SQL: fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", table, pk)}
	}

	pb := d.NewParamBuilder()
	cols := make([]string, len(values))
	placeholders := make([]string, len(values))
	for i, v := range values {
		cols[i] = store.QuoteIdent(v.Column)
		placeholders[i] = pb.Add(v.Arg)
	}

	return QueryResult{
		SQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), pk),
		Params: pb.Params(),
	}
}

// BuildUpdate builds an UPDATE of the given columns; the id is the last parameter.
func BuildUpdate(d store.Dialect, e *metadata.Entity, values []Value, id int64) QueryResult {
	pb := d.NewParamBuilder()
	sets := make([]string, len(values))
	for i, v := range values {
		sets[i] = store.QuoteIdent(v.Column) + " = " + pb.Add(v.Arg)
	}
	where := store.QuoteIdent(e.PrimaryKey.Field) + " = " + pb.Add(id)

	return QueryResult{
		SQL: fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			store.QuoteIdent(e.Table), strings.Join(sets, ", "), where),
		Params: pb.Params(),
	}
}

// BuildSelect builds a SELECT with an equality condition per value, joined
// with AND. NULL values compare with IS NULL. No values selects every row.
func BuildSelect(d store.Dialect, e *metadata.Entity, values []Value) QueryResult {
	sql := "SELECT * FROM " + store.QuoteIdent(e.Table)
	pb := d.NewParamBuilder()
	if where := buildWhere(pb, "", values); where != "" {
		sql += " WHERE " + where
	}
	return QueryResult{SQL: sql, Params: pb.Params()}
}

// BuildSelectChildren builds the parent/child join: rows of child whose
// reference column points at the given parent id, ordered by orderBy.
func BuildSelectChildren(d store.Dialect, parent, child *metadata.Entity, fk *metadata.Field, parentID int64, orderBy []string) QueryResult {
	pb := d.NewParamBuilder()
	ct := child.Table
	pt := parent.Table

	sql := fmt.Sprintf("SELECT %s.* FROM %s JOIN %s ON %s = %s WHERE %s = %s",
		store.QuoteIdent(ct),
		store.QuoteIdent(ct),
		store.QuoteIdent(pt),
		store.QuoteIdent(ct, fk.Column),
		store.QuoteIdent(pt, parent.PrimaryKey.Field),
		store.QuoteIdent(pt, parent.PrimaryKey.Field),
		pb.Add(parentID),
	)

	if len(orderBy) > 0 {
		parts := make([]string, len(orderBy))
		for i, col := range orderBy {
			parts[i] = store.QuoteIdent(ct, col)
		}
		sql += " ORDER BY " + strings.Join(parts, ", ")
	}

	return QueryResult{SQL: sql, Params: pb.Params()}
}

// BuildLink inserts one row into an entity's relation table.
func BuildLink(d store.Dialect, rel metadata.Relation, left, right int64) QueryResult {
	pb := d.NewParamBuilder()
	return QueryResult{
		SQL: fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
			store.QuoteIdent(rel.Table),
			store.QuoteIdent(rel.LeftKey), store.QuoteIdent(rel.RightKey),
			pb.Add(left), pb.Add(right)),
		Params: pb.Params(),
	}
}

// BuildLinked selects the right ids linked from a left id.
func BuildLinked(d store.Dialect, rel metadata.Relation, left int64) QueryResult {
	pb := d.NewParamBuilder()
	return QueryResult{
		SQL: fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s",
			store.QuoteIdent(rel.RightKey),
			store.QuoteIdent(rel.Table),
			store.QuoteIdent(rel.LeftKey), pb.Add(left),
			store.QuoteIdent(rel.RightKey)),
		Params: pb.Params(),
	}
}

// BuildLinks selects every row of a relation table.
func BuildLinks(rel metadata.Relation) QueryResult {
	return QueryResult{
		SQL: fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s, %s",
			store.QuoteIdent(rel.LeftKey), store.QuoteIdent(rel.RightKey),
			store.QuoteIdent(rel.Table),
			store.QuoteIdent(rel.LeftKey), store.QuoteIdent(rel.RightKey)),
	}
}

func buildWhere(pb store.ParamBuilder, table string, values []Value) string {
	if len(values) == 0 {
		return ""
	}
	clauses := make([]string, len(values))
	for i, v := range values {
		col := store.QuoteIdent(v.Column)
		if table != "" {
			col = store.QuoteIdent(table, v.Column)
		}
		if v.Arg == nil {
			clauses[i] = col + " IS NULL"
			continue
		}
		clauses[i] = col + " = " + pb.Add(v.Arg)
	}
	return strings.Join(clauses, " AND ")
}
