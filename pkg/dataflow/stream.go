package dataflow

import (
	"github.com/google/uuid"

	"github.com/leapstack-labs/flowsql/pkg/core"
)

// Input is what a query can be compiled against: a single *Stream or a
// Tagged set of streams. The interface is sealed.
type Input interface {
	isInput()
}

// Stream is the lazily computed output of one pipeline node.
type Stream struct {
	p      *Pipeline
	node   *node
	schema core.Schema
}

func (*Stream) isInput() {}

// Schema returns the schema of the rows carried by the stream.
func (s *Stream) Schema() core.Schema { return s.schema }

// Pipeline returns the pipeline the stream belongs to.
func (s *Stream) Pipeline() *Pipeline { return s.p }

// ID returns the identifier of the producing node.
func (s *Stream) ID() uuid.UUID { return s.node.id }

// Name returns the producing node's name.
func (s *Stream) Name() string { return s.node.name }

// TaggedStream is one entry of a Tagged set.
type TaggedStream struct {
	Tag    string
	Stream *Stream
}

// Tagged is an ordered set of streams keyed by tag. Tagged values are
// immutable; With returns a new set.
type Tagged struct {
	entries []TaggedStream
}

func (Tagged) isInput() {}

// NewTagged returns an empty tagged set.
func NewTagged() Tagged { return Tagged{} }

// With returns a copy of t with (tag, s) appended. Duplicate tags are kept
// here and rejected when the set is resolved.
func (t Tagged) With(tag string, s *Stream) Tagged {
	entries := make([]TaggedStream, len(t.entries), len(t.entries)+1)
	copy(entries, t.entries)
	return Tagged{entries: append(entries, TaggedStream{Tag: tag, Stream: s})}
}

// Entries returns the entries in insertion order.
func (t Tagged) Entries() []TaggedStream {
	out := make([]TaggedStream, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t Tagged) Len() int { return len(t.entries) }
