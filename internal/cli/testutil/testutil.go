// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowsql/internal/cli/output"
)

// Fixture file contents written by SetupTestProject.
const (
	OrdersCSV = `id,customer,amount
1,ann,10.0
2,bob,5.5
3,ann,2.5
`

	CustomersJSON = `[
  {"name": "ann", "city": "Oslo"},
  {"name": "bob", "city": "Big Sur"}
]
`

	TextStar = `def slugify(s, sep="-"):
    return sep.join(s.lower().split(" "))

def _add(acc, x):
    return acc + x

fsum = aggregate(
    create = lambda: 0.0,
    add = _add,
    merge = _add,
    returns = "DOUBLE",
)
`

	ProjectYAML = `inputs:
  - name: orders
    type: csv
    path: data/orders.csv
  - name: customers
    type: json
    path: data/customers.json
functions_dir: functions
`
)

// SetupTestProject creates a temporary project with a flowsql.yaml, two
// file inputs and a functions directory. Returns the project root.
func SetupTestProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"flowsql.yaml":            ProjectYAML,
		"data/orders.csv":         OrdersCSV,
		"data/customers.json":     CustomersJSON,
		"functions/text.star":     TextStar,
		"queries/by_customer.sql": "SELECT customer, SUM(amount) AS total FROM orders GROUP BY customer ORDER BY customer;\n",
	}
	for name, body := range files {
		WriteFile(t, filepath.Join(root, name), body)
	}
	return root
}

// WriteFile writes body to path, creating parent directories.
func WriteFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a renderer in mode writing to buffers.
func NewTestRenderer(mode output.Mode) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRenderer(out, errOut, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the captured stdout output.
func (tr *TestRenderer) Output() string { return tr.Out.String() }

// ErrorOutput returns the captured stderr output.
func (tr *TestRenderer) ErrorOutput() string { return tr.ErrOut.String() }

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
