package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowsql/internal/cli/testutil"
)

// run executes the root command in dir and returns stdout and stderr.
func run(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(dir)
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"query", "explain", "functions", "watch", "version", "completion"})

	for _, flag := range []string{"config", "verbose", "output", "functions-dir", "auto-load", "dialect"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestQueryCommand(t *testing.T) {
	root := testutil.SetupTestProject(t)

	tests := []struct {
		name    string
		args    []string
		wantOut []string
	}{
		{
			name:    "aggregate over csv",
			args:    []string{"query", "-o", "csv", "SELECT customer, SUM(amount) AS total FROM orders GROUP BY customer ORDER BY customer"},
			wantOut: []string{"customer,total", "ann,12.5", "bob,5.5"},
		},
		{
			name:    "query file",
			args:    []string{"query", "-o", "csv", "--input", filepath.Join("queries", "by_customer.sql")},
			wantOut: []string{"ann,12.5", "bob,5.5"},
		},
		{
			name:    "starlark scalar over json",
			args:    []string{"query", "-o", "csv", "SELECT SLUGIFY(city) AS slug FROM customers ORDER BY slug"},
			wantOut: []string{"big-sur", "oslo"},
		},
		{
			name:    "starlark aggregate",
			args:    []string{"query", "-o", "csv", "SELECT FSUM(amount) AS s FROM orders"},
			wantOut: []string{"18"},
		},
		{
			name:    "join",
			args:    []string{"query", "-o", "csv", "SELECT o.id, c.city FROM orders o JOIN customers c ON o.customer = c.name ORDER BY o.id"},
			wantOut: []string{"1,oslo", "2,big sur", "3,oslo"},
		},
		{
			name: "table flag",
			args: []string{"query", "-o", "csv", "-t", "more=" + filepath.Join("data", "orders.csv"),
				"SELECT COUNT(*) AS n FROM more"},
			wantOut: []string{"3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := run(t, root, tt.args...)
			require.NoError(t, err)
			lower := strings.ToLower(out)
			for _, want := range tt.wantOut {
				assert.Contains(t, lower, want)
			}
		})
	}
}

func TestQueryCommand_JSON(t *testing.T) {
	root := testutil.SetupTestProject(t)
	out, _, err := run(t, root, "query", "-o", "json", "SELECT id FROM orders WHERE amount > 5 ORDER BY id")
	require.NoError(t, err)
	assert.Contains(t, out, "[")
	assert.Contains(t, out, "1")
	assert.Contains(t, out, "2")
	assert.NotContains(t, out, "3")
	testutil.AssertNoANSI(t, out)
}

func TestQueryCommand_AutoLoadDisabled(t *testing.T) {
	root := testutil.SetupTestProject(t)
	_, _, err := run(t, root, "query", "--auto-load=false", "SELECT SLUGIFY(city) FROM customers")
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "slugify")
}

func TestQueryCommand_Errors(t *testing.T) {
	root := testutil.SetupTestProject(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown table", []string{"query", "SELECT * FROM nope"}, "nope"},
		{"bad table flag", []string{"query", "-t", "x", "SELECT 1"}, "expected name=path"},
		{"empty stdin", []string{"query"}, "query text is empty"},
		{"bad output", []string{"query", "-o", "xml", "SELECT 1"}, "invalid output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, root, tt.args...)
			require.Error(t, err)
			assert.Contains(t, strings.ToLower(err.Error()), strings.ToLower(tt.want))
		})
	}
}

func TestExplainCommand(t *testing.T) {
	root := testutil.SetupTestProject(t)

	out, _, err := run(t, root, "explain", "SELECT customer FROM orders WHERE amount > 1")
	require.NoError(t, err)
	lower := strings.ToLower(out)
	assert.Contains(t, lower, "scan orders")
	assert.Contains(t, lower, "filter")

	out, _, err = run(t, root, "explain", "--pipeline", "-o", "csv", "SELECT customer FROM orders")
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(out), "kind,name,inputs,schema")

	_, _, err = run(t, root, "explain")
	assert.EqualError(t, err, "no query given")
}

func TestFunctionsCommand(t *testing.T) {
	root := testutil.SetupTestProject(t)

	out, _, err := run(t, root, "functions", "-o", "csv")
	require.NoError(t, err)
	lower := strings.ToLower(out)
	assert.Contains(t, lower, "slugify")
	assert.Contains(t, lower, "fsum")
	assert.Contains(t, lower, "provider")
	assert.Contains(t, lower, "builtin")

	out, _, err = run(t, root, "functions", "-o", "csv", "--kind", "aggregate")
	require.NoError(t, err)
	lower = strings.ToLower(out)
	assert.Contains(t, lower, "fsum")
	assert.NotContains(t, lower, "slugify")

	_, _, err = run(t, root, "functions", "--kind", "window")
	assert.ErrorContains(t, err, `invalid kind "window"`)
}

func TestVersionAndCompletion(t *testing.T) {
	dir := t.TempDir()

	out, _, err := run(t, dir, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "flowsql v"+Version)

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		out, _, err := run(t, dir, "completion", shell)
		require.NoError(t, err, shell)
		assert.NotEmpty(t, out, shell)
	}

	_, _, err = run(t, dir, "completion", "tcsh")
	assert.Error(t, err)
}
