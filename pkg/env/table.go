package env

import (
	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
)

// Table is a named handle on an input stream. It never reads or buffers
// rows; scans of the table read the stream directly.
type Table struct {
	name   string
	stream *dataflow.Stream
}

// NewTable wraps s under name.
func NewTable(name string, s *dataflow.Stream) *Table {
	return &Table{name: name, stream: s}
}

// Name returns the name the table is visible under.
func (t *Table) Name() string { return t.name }

// Schema returns the schema of the underlying stream.
func (t *Table) Schema() core.Schema { return t.stream.Schema() }

// Stream returns the underlying stream.
func (t *Table) Stream() *dataflow.Stream { return t.stream }
