package source

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/dataflow"
)

// YAML returns a stream over a YAML file holding a list of mappings, or one
// mapping per document.
func YAML(p *dataflow.Pipeline, name, path string, opts ...Option) (*dataflow.Stream, error) {
	return openRecords(p, name, path, readYAML, newOptions(opts))
}

func readYAML(r io.Reader, fn func(record) error) error {
	dec := yaml.NewDecoder(r)
	for {
		var doc yaml.Node
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(doc.Content) == 0 {
			continue
		}
		root := doc.Content[0]
		switch root.Kind {
		case yaml.SequenceNode:
			for _, item := range root.Content {
				if err := yamlRecord(item, fn); err != nil {
					return err
				}
			}
		case yaml.MappingNode:
			if err := yamlRecord(root, fn); err != nil {
				return err
			}
		default:
			return fmt.Errorf("line %d: expected a mapping or a list of mappings", root.Line)
		}
	}
}

func yamlRecord(n *yaml.Node, fn func(record) error) error {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	rec := newRecord()
	for i := 0; i+1 < len(n.Content); i += 2 {
		var v any
		if err := n.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("line %d: %w", n.Content[i+1].Line, err)
		}
		rec.set(n.Content[i].Value, core.NormalizeValue(v))
	}
	return fn(rec)
}
