package core

import (
	"fmt"
	"strings"
	"time"
)

// Type is the SQL type of a field or expression.
type Type int

// Type constants. TypeAny is used when a type cannot be inferred statically,
// for example the result of a user function returning interface{}.
const (
	TypeAny Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeTimestamp
	TypeNull
)

var typeNames = map[Type]string{
	TypeAny:       "ANY",
	TypeBool:      "BOOLEAN",
	TypeInt:       "BIGINT",
	TypeFloat:     "DOUBLE",
	TypeString:    "VARCHAR",
	TypeTimestamp: "TIMESTAMP",
	TypeNull:      "NULL",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE(%d)", int(t))
}

// IsNumeric reports whether t is INT or FLOAT.
func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat
}

// ParseTypeName maps a SQL type name (as written in CAST or reported by a
// database driver) onto a Type. Parameters such as VARCHAR(10) are ignored.
func ParseTypeName(name string) (Type, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(n, '('); i >= 0 {
		n = strings.TrimSpace(n[:i])
	}
	switch n {
	case "BOOL", "BOOLEAN":
		return TypeBool, true
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "INT2", "INT4", "INT8", "HUGEINT", "UBIGINT", "UINTEGER":
		return TypeInt, true
	case "DOUBLE", "FLOAT", "FLOAT4", "FLOAT8", "REAL", "DECIMAL", "NUMERIC", "DOUBLE PRECISION":
		return TypeFloat, true
	case "VARCHAR", "TEXT", "STRING", "CHAR", "CHARACTER VARYING", "CHARACTER", "BPCHAR", "UUID":
		return TypeString, true
	case "TIMESTAMP", "TIMESTAMPTZ", "DATE", "DATETIME", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITHOUT TIME ZONE":
		return TypeTimestamp, true
	case "ANY", "":
		return TypeAny, true
	}
	return TypeAny, false
}

// TypeOf returns the Type of a normalized runtime value.
func TypeOf(v any) Type {
	switch v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBool
	case int64:
		return TypeInt
	case float64:
		return TypeFloat
	case string:
		return TypeString
	case time.Time:
		return TypeTimestamp
	default:
		return TypeAny
	}
}

// Field describes one column of a schema.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is the ordered list of fields carried by a stream or plan node.
type Schema struct {
	Fields []Field
}

// NewSchema builds a schema from fields.
func NewSchema(fields ...Field) Schema {
	return Schema{Fields: fields}
}

// Len returns the number of fields.
func (s Schema) Len() int { return len(s.Fields) }

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named field, matching exactly first and
// case-insensitively second. It returns -1 when absent.
func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	for i, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// Equal reports whether two schemas have the same field names and types.
func (s Schema) Equal(o Schema) bool {
	if len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i].Name != o.Fields[i].Name || s.Fields[i].Type != o.Fields[i].Type {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + " " + f.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Row is one record. Values are positionally aligned with a Schema and are
// always normalized (see NormalizeValue).
type Row []any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Map returns the row as a name to value map according to schema.
func (r Row) Map(schema Schema) map[string]any {
	m := make(map[string]any, len(schema.Fields))
	for i, f := range schema.Fields {
		if i < len(r) {
			m[f.Name] = r[i]
		}
	}
	return m
}
