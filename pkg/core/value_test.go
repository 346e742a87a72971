package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 3, int64(3)},
		{"int32", int32(-4), int64(-4)},
		{"uint8", uint8(9), int64(9)},
		{"float32", float32(1.5), float64(1.5)},
		{"bytes", []byte("abc"), "abc"},
		{"nil", nil, nil},
		{"string", "x", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeValue(tt.in))
		})
	}
}

func TestCast(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		to      Type
		want    any
		wantErr bool
	}{
		{"string to int", "42", TypeInt, int64(42), false},
		{"float to int truncates", 3.9, TypeInt, int64(3), false},
		{"int to float", int64(2), TypeFloat, 2.0, false},
		{"int to string", int64(7), TypeString, "7", false},
		{"string to bool", "true", TypeBool, true, false},
		{"null stays null", nil, TypeInt, nil, false},
		{"bad int", "abc", TypeInt, nil, true},
		{"date", "2024-03-01", TypeTimestamp, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cast(tt.in, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare(t *testing.T) {
	c, ok := Compare(int64(1), 2.5)
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare("b", "a")
	require.True(t, ok)
	assert.Equal(t, 1, c)

	_, ok = Compare("1", int64(1))
	assert.False(t, ok)

	assert.Equal(t, 1, CompareNullsLast(nil, int64(1)))
	assert.Equal(t, -1, CompareNullsLast(int64(1), nil))
	assert.Equal(t, 0, CompareNullsLast(nil, nil))
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key(int64(2)), Key(2.0))
	assert.NotEqual(t, Key("2"), Key(int64(2)))
	assert.NotEqual(t, RowKey([]any{"a", "b"}), RowKey([]any{"ab", ""}))
}

func TestSchema(t *testing.T) {
	s := NewSchema(Field{Name: "c1", Type: TypeInt}, Field{Name: "Name", Type: TypeString})
	assert.Equal(t, 0, s.Index("c1"))
	assert.Equal(t, 1, s.Index("name"))
	assert.Equal(t, -1, s.Index("missing"))
	assert.Equal(t, []string{"c1", "Name"}, s.Names())
	assert.Equal(t, "(c1 BIGINT, Name VARCHAR)", s.String())
	assert.True(t, s.Equal(NewSchema(Field{Name: "c1", Type: TypeInt}, Field{Name: "Name", Type: TypeString})))
}

func TestParseTypeName(t *testing.T) {
	typ, ok := ParseTypeName("varchar(20)")
	require.True(t, ok)
	assert.Equal(t, TypeString, typ)

	typ, ok = ParseTypeName("INTEGER")
	require.True(t, ok)
	assert.Equal(t, TypeInt, typ)

	_, ok = ParseTypeName("GEOMETRY")
	assert.False(t, ok)
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")
	err := error(&ConstructionError{Function: "F", Type: "main.f", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "function F")

	assert.Equal(t, `unresolved table "T"`, (&UnresolvedReferenceError{Kind: RefTable, Name: "T"}).Error())
	assert.Equal(t, "configuration error: query: empty", (&ConfigError{Op: "query", Message: "empty"}).Error())
	assert.Equal(t, "translation error: unsupported RIGHT JOIN", (&TranslationError{Construct: "RIGHT JOIN"}).Error())
}
