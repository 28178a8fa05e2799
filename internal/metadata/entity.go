package metadata

import "reflect"

type Entity struct {
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	Fields     []Field    `json:"fields"` // primary key first, then declaration order

	goType reflect.Type
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"`
	Generated bool   `json:"generated"`
}

// Relation describes the many-to-many link table kept for an entity.
type Relation struct {
	Entity   string `json:"entity"`
	Table    string `json:"table"`
	LeftKey  string `json:"left_key"`
	RightKey string `json:"right_key"`
}

const relationSuffix = "_relation"

// NewRelation returns the link table descriptor for the entity.
func NewRelation(e *Entity) Relation {
	return Relation{
		Entity:   e.Name,
		Table:    e.Table + relationSuffix,
		LeftKey:  "left_id",
		RightKey: "right_id",
	}
}

// GoType returns the struct type the entity was reflected from.
func (e *Entity) GoType() reflect.Type {
	return e.goType
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// Lookup resolves a declared field name or a column name.
func (e *Entity) Lookup(name string) *Field {
	if f := e.GetField(name); f != nil {
		return f
	}
	for i := range e.Fields {
		if e.Fields[i].Column == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// PKField returns the primary key field.
func (e *Entity) PKField() *Field {
	return e.GetField(e.PrimaryKey.Field)
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// Columns returns the column names in table order.
func (e *Entity) Columns() []string {
	cols := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		cols[i] = f.Column
	}
	return cols
}

// WritableFields returns the fields carried in INSERT and UPDATE payloads.
func (e *Entity) WritableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// References returns the fields pointing at other entities.
func (e *Entity) References() []Field {
	var refs []Field
	for _, f := range e.Fields {
		if f.Kind == KindReference {
			refs = append(refs, f)
		}
	}
	return refs
}

// ReferenceTo returns the first field referencing the named entity, or nil.
func (e *Entity) ReferenceTo(entity string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Kind == KindReference && e.Fields[i].Ref == entity {
			return &e.Fields[i]
		}
	}
	return nil
}

// BooleanColumns lists the columns holding booleans.
func (e *Entity) BooleanColumns() []string {
	var cols []string
	for _, f := range e.Fields {
		if f.Kind == KindScalar && f.Type == TypeBoolean {
			cols = append(cols, f.Column)
		}
	}
	return cols
}
