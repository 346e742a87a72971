// Package plan defines the logical query plan produced by the binder and
// consumed by the dataflow translator.
//
// A plan is a tree of Nodes. Every node carries the schema of the rows it
// produces, and expressions inside a node are bound against the schema of
// its input (for joins, the concatenation of left and right).
package plan

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/core"
	"github.com/leapstack-labs/flowsql/pkg/functions"
)

// Node is a logical plan operator.
type Node interface {
	Schema() core.Schema
	Children() []Node
	// Describe renders the node on one line, without children.
	Describe() string
}

// Scan reads a named table from the namespace.
type Scan struct {
	Table  string
	Alias  string
	Output core.Schema
}

func (n *Scan) Schema() core.Schema { return n.Output }
func (n *Scan) Children() []Node    { return nil }

func (n *Scan) Describe() string {
	if n.Alias != "" && n.Alias != n.Table {
		return fmt.Sprintf("Scan %s AS %s %s", n.Table, n.Alias, n.Output)
	}
	return fmt.Sprintf("Scan %s %s", n.Table, n.Output)
}

// Filter keeps rows for which Predicate is TRUE.
type Filter struct {
	Input     Node
	Predicate Expr
}

func (n *Filter) Schema() core.Schema { return n.Input.Schema() }
func (n *Filter) Children() []Node    { return []Node{n.Input} }
func (n *Filter) Describe() string    { return "Filter " + n.Predicate.String() }

// Project computes one output column per expression.
type Project struct {
	Input Node
	Exprs []Expr
	Names []string
}

func (n *Project) Schema() core.Schema {
	fields := make([]core.Field, len(n.Exprs))
	for i, e := range n.Exprs {
		fields[i] = core.Field{Name: n.Names[i], Type: e.Type(), Nullable: true}
	}
	return core.NewSchema(fields...)
}

func (n *Project) Children() []Node { return []Node{n.Input} }

func (n *Project) Describe() string {
	parts := make([]string, len(n.Exprs))
	for i, e := range n.Exprs {
		if s := e.String(); s != n.Names[i] {
			parts[i] = s + " AS " + n.Names[i]
		} else {
			parts[i] = s
		}
	}
	return "Project [" + strings.Join(parts, ", ") + "]"
}

// AggregateCall is one aggregate computed per group.
type AggregateCall struct {
	Fn       *functions.Aggregate
	Args     []Expr
	Distinct bool
	Star     bool
	Name     string
	Typ      core.Type
}

// Reducer returns the CombineFn to run, wrapped for DISTINCT when needed.
func (a *AggregateCall) Reducer() functions.CombineFn {
	if a.Distinct {
		return functions.Distinct(a.Fn.Fn)
	}
	return a.Fn.Fn
}

func (a *AggregateCall) String() string {
	switch {
	case a.Star:
		return a.Fn.Name + "(*)"
	case a.Distinct:
		return a.Fn.Name + "(DISTINCT " + joinExprs(a.Args) + ")"
	default:
		return a.Fn.Name + "(" + joinExprs(a.Args) + ")"
	}
}

// Aggregate groups its input by GroupBy and computes Aggs per group. The
// output schema is the group keys followed by the aggregates. Without
// GroupBy the whole input forms one group, which exists even when empty.
type Aggregate struct {
	Input      Node
	GroupBy    []Expr
	GroupNames []string
	Aggs       []*AggregateCall
}

func (n *Aggregate) Schema() core.Schema {
	fields := make([]core.Field, 0, len(n.GroupBy)+len(n.Aggs))
	for i, g := range n.GroupBy {
		fields = append(fields, core.Field{Name: n.GroupNames[i], Type: g.Type(), Nullable: true})
	}
	for _, a := range n.Aggs {
		fields = append(fields, core.Field{Name: a.Name, Type: a.Typ, Nullable: true})
	}
	return core.NewSchema(fields...)
}

func (n *Aggregate) Children() []Node { return []Node{n.Input} }

func (n *Aggregate) Describe() string {
	aggs := make([]string, len(n.Aggs))
	for i, a := range n.Aggs {
		aggs[i] = a.String()
	}
	if len(n.GroupBy) == 0 {
		return "Aggregate [" + strings.Join(aggs, ", ") + "]"
	}
	return fmt.Sprintf("Aggregate keys=[%s] [%s]", joinExprs(n.GroupBy), strings.Join(aggs, ", "))
}

// Join combines two inputs. LeftKeys/RightKeys hold the equi-join keys
// extracted from the condition (bound against each side); Residual is the
// rest of the condition, bound against the joined schema.
type Join struct {
	Left      Node
	Right     Node
	Kind      core.JoinType
	LeftKeys  []Expr
	RightKeys []Expr
	Residual  Expr
}

func (n *Join) Schema() core.Schema {
	l, r := n.Left.Schema(), n.Right.Schema()
	fields := make([]core.Field, 0, l.Len()+r.Len())
	fields = append(fields, l.Fields...)
	for _, f := range r.Fields {
		if n.Kind == core.JoinLeft {
			f.Nullable = true
		}
		fields = append(fields, f)
	}
	return core.NewSchema(fields...)
}

func (n *Join) Children() []Node { return []Node{n.Left, n.Right} }

func (n *Join) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Join %s", n.Kind)
	if len(n.LeftKeys) > 0 {
		keys := make([]string, len(n.LeftKeys))
		for i := range n.LeftKeys {
			keys[i] = n.LeftKeys[i].String() + " = " + n.RightKeys[i].String()
		}
		fmt.Fprintf(&b, " keys=[%s]", strings.Join(keys, ", "))
	}
	if n.Residual != nil {
		fmt.Fprintf(&b, " residual=%s", n.Residual)
	}
	return b.String()
}

// SortKey is one ORDER BY term.
type SortKey struct {
	Expr       Expr
	Desc       bool
	NullsFirst bool
}

// Sort orders its input; ties keep input order.
type Sort struct {
	Input Node
	Keys  []SortKey
}

func (n *Sort) Schema() core.Schema { return n.Input.Schema() }
func (n *Sort) Children() []Node    { return []Node{n.Input} }

func (n *Sort) Describe() string {
	parts := make([]string, len(n.Keys))
	for i, k := range n.Keys {
		s := k.Expr.String()
		if k.Desc {
			s += " DESC"
		}
		if k.NullsFirst {
			s += " NULLS FIRST"
		}
		parts[i] = s
	}
	return "Sort [" + strings.Join(parts, ", ") + "]"
}

// Limit skips Offset rows and then emits at most Count rows. Count < 0
// means no limit.
type Limit struct {
	Input  Node
	Count  int64
	Offset int64
}

func (n *Limit) Schema() core.Schema { return n.Input.Schema() }
func (n *Limit) Children() []Node    { return []Node{n.Input} }

func (n *Limit) Describe() string {
	if n.Count < 0 {
		return fmt.Sprintf("Limit offset=%d", n.Offset)
	}
	if n.Offset > 0 {
		return fmt.Sprintf("Limit %d offset=%d", n.Count, n.Offset)
	}
	return fmt.Sprintf("Limit %d", n.Count)
}

// Distinct removes duplicate rows, keeping the first occurrence.
type Distinct struct {
	Input Node
}

func (n *Distinct) Schema() core.Schema { return n.Input.Schema() }
func (n *Distinct) Children() []Node    { return []Node{n.Input} }
func (n *Distinct) Describe() string    { return "Distinct" }

// Union concatenates inputs with identical arity (UNION ALL). The output
// schema is the first input's.
type Union struct {
	Inputs []Node
}

func (n *Union) Schema() core.Schema { return n.Inputs[0].Schema() }
func (n *Union) Children() []Node    { return n.Inputs }
func (n *Union) Describe() string    { return "Union ALL" }

// Walk visits n and its descendants depth-first, stopping descent when fn
// returns false.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}

// Tables returns the distinct table names scanned by the plan, in visit order.
func Tables(n Node) []string {
	var names []string
	seen := make(map[string]bool)
	Walk(n, func(n Node) bool {
		if s, ok := n.(*Scan); ok && !seen[s.Table] {
			seen[s.Table] = true
			names = append(names, s.Table)
		}
		return true
	})
	return names
}

// Explain renders the plan as an indented tree.
func Explain(n Node) string {
	var b strings.Builder
	explain(&b, n, 0)
	return b.String()
}

func explain(b *strings.Builder, n Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Describe())
	b.WriteByte('\n')
	for _, c := range n.Children() {
		explain(b, c, depth+1)
	}
}

// Values emits constant rows. A SELECT without FROM reads one empty row.
type Values struct {
	Output core.Schema
	Rows   []core.Row
}

func (n *Values) Schema() core.Schema { return n.Output }
func (n *Values) Children() []Node    { return nil }
func (n *Values) Describe() string    { return fmt.Sprintf("Values rows=%d", len(n.Rows)) }
