package sqlflow

import (
	"fmt"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
	"github.com/leapstack-labs/flowsql/pkg/env"
)

// DefaultTableName is the table a single anonymous input is visible under.
const DefaultTableName = "PCOLLECTION"

// Input is what a query compiles against: a *dataflow.Stream or a
// dataflow.Tagged set of streams.
type Input = dataflow.Input

// ResolveNamespace maps input to the tables a query can reference. A single
// stream becomes DefaultTableName; each tagged stream is visible under its
// tag. Duplicate or empty tags are rejected.
func ResolveNamespace(input Input) (map[string]*env.Table, error) {
	const op = "resolve namespace"
	switch in := input.(type) {
	case *dataflow.Stream:
		if in == nil {
			return nil, &core.ConfigError{Op: op, Message: "input stream is nil"}
		}
		return map[string]*env.Table{DefaultTableName: env.NewTable(DefaultTableName, in)}, nil

	case dataflow.Tagged:
		tables := make(map[string]*env.Table, in.Len())
		for i, e := range in.Entries() {
			switch {
			case e.Tag == "":
				return nil, &core.ConfigError{Op: op, Message: fmt.Sprintf("input %d has an empty tag", i)}
			case e.Stream == nil:
				return nil, &core.ConfigError{Op: op, Message: fmt.Sprintf("input %q has no stream", e.Tag)}
			}
			if _, dup := tables[e.Tag]; dup {
				return nil, &core.ConfigError{Op: op, Message: fmt.Sprintf("duplicate input tag %q", e.Tag)}
			}
			tables[e.Tag] = env.NewTable(e.Tag, e.Stream)
		}
		return tables, nil
	}
	return nil, &core.ConfigError{Op: op, Message: fmt.Sprintf("unsupported input %T", input)}
}
