package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testColumns = []string{"name", "total", "note"}
	testRows    = [][]any{
		{"ann", 12.5, nil},
		{"bob, jr", int64(3), "x"},
	}
)

func TestNewRenderer_Mode(t *testing.T) {
	tests := []struct {
		mode Mode
		want Mode
	}{
		{"", ModeMarkdown},
		{ModeAuto, ModeMarkdown},
		{ModeTable, ModeTable},
		{ModeJSON, ModeJSON},
		{ModeCSV, ModeCSV},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, tt.mode)
			assert.Equal(t, tt.want, r.Mode())
		})
	}
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestRows_Table(t *testing.T) {
	var out, msgs bytes.Buffer
	r := NewRenderer(&out, &msgs, ModeTable)
	require.NoError(t, r.Rows(testColumns, testRows))

	s := out.String()
	assert.Contains(t, strings.ToLower(s), "name")
	assert.Contains(t, s, "ann")
	assert.Contains(t, s, "12.5")
	assert.Contains(t, s, "NULL")
	assert.Contains(t, msgs.String(), "(2 rows)")
}

func TestRows_CSV(t *testing.T) {
	var out, msgs bytes.Buffer
	r := NewRenderer(&out, &msgs, ModeCSV)
	require.NoError(t, r.Rows(testColumns, testRows))

	s := out.String()
	assert.Contains(t, strings.ToLower(s), "name,total,note")
	assert.Contains(t, s, "ann,12.5,NULL")
	assert.Contains(t, s, `"bob, jr",3,x`)
	assert.Empty(t, msgs.String())
}

func TestRows_Markdown(t *testing.T) {
	var out, msgs bytes.Buffer
	r := NewRenderer(&out, &msgs, ModeMarkdown)
	require.NoError(t, r.Rows(testColumns, testRows[:1]))

	s := out.String()
	assert.Contains(t, strings.ToLower(s), "| name | total | note |")
	assert.Contains(t, s, "| ann |")
	assert.Contains(t, msgs.String(), "(1 row)")
}

func TestRows_JSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &bytes.Buffer{}, ModeJSON)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Rows([]string{"id", "at", "v"}, [][]any{{int64(1), ts, nil}}))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.InDelta(t, 1, got[0]["id"], 0)
	assert.Equal(t, "2024-03-01T12:00:00Z", got[0]["at"])
	assert.Nil(t, got[0]["v"])
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{"s", "s"},
		{int64(42), "42"},
		{1.5, "1.5"},
		{1e21, "1e+21"},
		{true, "true"},
		{[]byte("raw"), "raw"},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "2024-01-02T03:04:05Z"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}

func TestMessages(t *testing.T) {
	var out, msgs bytes.Buffer
	r := NewRenderer(&out, &msgs, ModeTable)
	r.Text("hello %s", "world")
	r.Header("Functions")
	r.Success("done")
	r.Error(errors.New("boom"))

	assert.Equal(t, "hello world\n", out.String())
	assert.Equal(t, "Functions\ndone\nError: boom\n", msgs.String())
	assert.Same(t, &out, r.Writer())
	assert.NotNil(t, r.Styles())
}
