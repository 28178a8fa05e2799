package engine

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"exambank/internal/metadata"
)

// ValueKind tags how a field value was turned into a column value.
type ValueKind int

const (
	ScalarValue ValueKind = iota
	ReferenceValue
	SequenceValue
)

// Value is one column/argument pair. A nil Arg is bound as SQL NULL.
type Value struct {
	Kind   ValueKind
	Column string
	Arg    any
}

// Encode converts a field of an entity into its column value:
//   - sequences join their elements with "," (nil slice -> NULL)
//   - references carry the referenced entity's id (nil or id 0 -> NULL)
//   - scalars are passed through as their base Go type
func Encode(f metadata.Field, v reflect.Value) Value {
	switch f.Kind {
	case metadata.KindReference:
		return Value{Kind: ReferenceValue, Column: f.Column, Arg: referenceID(f, v)}
	case metadata.KindSequence:
		return Value{Kind: SequenceValue, Column: f.Column, Arg: joinSequence(v)}
	default:
		return Value{Kind: ScalarValue, Column: f.Column, Arg: scalar(v)}
	}
}

// EncodeArg is Encode for loosely typed input such as query conditions.
// References additionally accept a bare integer id.
func EncodeArg(f metadata.Field, raw any) Value {
	return Encode(f, reflect.ValueOf(raw))
}

// CheckReference rejects a reference value that is neither an integer id nor
// an instance of the referenced entity.
func CheckReference(f metadata.Field, raw any) error {
	if !f.IsReference() {
		return nil
	}
	v := indirect(reflect.ValueOf(raw))
	if !v.IsValid() || isIntKind(v.Kind()) {
		return nil
	}
	if v.Kind() == reflect.Struct && v.Type().Name() == f.Ref {
		return nil
	}
	return fmt.Errorf("%w: %s expects %s or an id, got %T", ErrReferenceType, f.Name, f.Ref, raw)
}

// EncodeEntity produces the values of the writable fields of a struct value.
func EncodeEntity(e *metadata.Entity, rv reflect.Value) []Value {
	fields := e.WritableFields()
	values := make([]Value, 0, len(fields))
	for _, f := range fields {
		values = append(values, Encode(f, rv.FieldByIndex(f.Index())))
	}
	return values
}

func referenceID(f metadata.Field, v reflect.Value) any {
	v = indirect(v)
	if !v.IsValid() {
		return nil
	}
	switch {
	case v.Kind() == reflect.Struct:
		id := v.FieldByIndex(f.RefIndex())
		n := toInt64(id)
		if n == 0 {
			return nil
		}
		return n
	case isIntKind(v.Kind()):
		return toInt64(v)
	}
	return scalar(v)
}

func joinSequence(v reflect.Value) any {
	v = indirect(v)
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
	case reflect.Array:
	default:
		// already serialized
		return scalar(v)
	}
	parts := make([]string, v.Len())
	for i := range parts {
		parts[i] = fmt.Sprint(v.Index(i).Interface())
	}
	return strings.Join(parts, ",")
}

func scalar(v reflect.Value) any {
	v = indirect(v)
	if !v.IsValid() {
		return nil
	}
	switch {
	case isIntKind(v.Kind()):
		return toInt64(v)
	case v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64:
		return v.Float()
	case v.Kind() == reflect.String:
		return v.String()
	case v.Kind() == reflect.Bool:
		return v.Bool()
	}
	if t, ok := v.Interface().(time.Time); ok {
		return t
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		return string(v.Bytes())
	}
	return fmt.Sprint(v.Interface())
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func toInt64(v reflect.Value) int64 {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	default:
		return v.Int()
	}
}
