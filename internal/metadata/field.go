package metadata

// Kind classifies how a field is carried into SQL.
type Kind int

const (
	KindScalar Kind = iota
	KindReference
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindReference:
		return "reference"
	case KindSequence:
		return "sequence"
	default:
		return "scalar"
	}
}

// Scalar field types. TypeText is also the fallback for Go types the
// reflector does not recognise.
const (
	TypeInt     = "int"
	TypeFloat   = "float"
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeDate    = "date"
	TypeText    = "text"
)

type Field struct {
	Name   string `json:"name"`
	Column string `json:"column"`
	Kind   Kind   `json:"kind"`
	Type   string `json:"type"`
	Ref    string `json:"ref,omitempty"` // referenced entity name for KindReference

	RefTable string `json:"ref_table,omitempty"`

	// Fallback is set when the Go type was not recognised and the column
	// defaulted to TEXT.
	Fallback bool `json:"fallback,omitempty"`

	index    []int // struct field index
	refIndex []int // index of the referenced type's id field
}

// Index returns the struct field index used with reflect.Value.FieldByIndex.
func (f Field) Index() []int {
	return f.index
}

// RefIndex returns the index of the id field inside the referenced struct.
func (f Field) RefIndex() []int {
	return f.refIndex
}

// IsReference returns true if the field points at another entity.
func (f Field) IsReference() bool {
	return f.Kind == KindReference
}

// ColumnType returns the logical column type: references are integers and
// sequences are stored as text.
func (f Field) ColumnType() string {
	switch f.Kind {
	case KindReference:
		return TypeInt
	case KindSequence:
		return TypeText
	default:
		return f.Type
	}
}
