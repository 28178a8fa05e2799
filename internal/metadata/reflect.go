package metadata

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

var (
	ErrNotStruct           = errors.New("entity must be a struct")
	ErrNoPrimaryKey        = errors.New("entity has no id field")
	ErrInvalidPrimaryKey   = errors.New("id field must be an integer")
	ErrDuplicateColumn     = errors.New("duplicate column")
	ErrUnknownReference    = errors.New("reference to unregistered entity")
	ErrReferenceCycle      = errors.New("reference cycle between entities")
	ErrUnregistered        = errors.New("entity is not registered")
	ErrAlreadyRegistered   = errors.New("entity already registered")
	ErrRelationUnsupported = errors.New("relation table requires a registered entity")
)

const (
	tagName = "db"
	pkName  = "id"
)

var timeType = reflect.TypeOf(time.Time{})

// Reflect derives the entity description of a struct type. Exported fields
// become columns; a `db:"name"` tag overrides the snake_case default and
// `db:"-"` marks a transient field that never reaches SQL.
func Reflect(t reflect.Type) (*Entity, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %s", ErrNotStruct, t)
	}

	e := &Entity{
		Name:       t.Name(),
		Table:      TableName(t),
		PrimaryKey: PrimaryKey{Field: pkName, Type: TypeInt, Generated: true},
		goType:     t,
	}

	var pk *Field
	var fields []Field
	seen := make(map[string]bool)

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, skip := fieldName(sf)
		if skip {
			continue
		}

		if name == pkName {
			if !isInteger(sf.Type.Kind()) {
				return nil, fmt.Errorf("%s.%s: %w", e.Name, sf.Name, ErrInvalidPrimaryKey)
			}
			pk = &Field{Name: pkName, Column: pkName, Kind: KindScalar, Type: TypeInt, index: sf.Index}
			continue
		}

		f, err := classify(sf, name)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Name, sf.Name, err)
		}
		if seen[f.Column] || f.Column == pkName {
			return nil, fmt.Errorf("%s: %w %q", e.Name, ErrDuplicateColumn, f.Column)
		}
		seen[f.Column] = true
		fields = append(fields, f)
	}

	if pk == nil {
		return nil, fmt.Errorf("%s: %w", e.Name, ErrNoPrimaryKey)
	}
	e.Fields = append([]Field{*pk}, fields...)
	return e, nil
}

// TableName is the lowercased type name.
func TableName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.ToLower(t.Name())
}

func fieldName(sf reflect.StructField) (string, bool) {
	tag := sf.Tag.Get(tagName)
	if tag == "-" {
		return "", true
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, false
	}
	return snakeCase(sf.Name), false
}

func classify(sf reflect.StructField, name string) (Field, error) {
	f := Field{Name: name, Column: name, index: sf.Index}
	t := sf.Type

	if t == timeType {
		f.Kind, f.Type = KindScalar, TypeDate
		return f, nil
	}

	if target := structTarget(t); target != nil {
		idx, ok := idIndex(target)
		if !ok {
			return f, fmt.Errorf("referenced type %s: %w", target.Name(), ErrNoPrimaryKey)
		}
		f.Kind = KindReference
		f.Type = TypeInt
		f.Ref = target.Name()
		f.RefTable = TableName(target)
		f.Column = f.RefTable + "_id"
		f.refIndex = idx
		return f, nil
	}

	if (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && t.Elem().Kind() != reflect.Uint8 {
		f.Kind, f.Type = KindSequence, TypeText
		return f, nil
	}

	f.Kind = KindScalar
	switch k := t.Kind(); {
	case isInteger(k):
		f.Type = TypeInt
	case k == reflect.Float32 || k == reflect.Float64:
		f.Type = TypeFloat
	case k == reflect.String:
		f.Type = TypeString
	case k == reflect.Bool:
		f.Type = TypeBoolean
	default:
		f.Type = TypeText
		f.Fallback = true
	}
	return f, nil
}

// structTarget returns the struct type a field points at, or nil when the
// field is not a reference.
func structTarget(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == timeType {
		return nil
	}
	return t
}

func idIndex(t reflect.Type) ([]int, bool) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if name, skip := fieldName(sf); !skip && name == pkName && isInteger(sf.Type.Kind()) {
			return sf.Index, true
		}
	}
	return nil, false
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// snakeCase turns PageNumber into page_number and OCRText into ocr_text.
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
