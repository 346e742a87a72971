package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/flowsql/pkg/adapters/sqlite"
	_ "github.com/leapstack-labs/flowsql/pkg/dialects/ansi"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(body), 0o600))
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
inputs:
  - name: orders
    type: csv
    path: data/orders.csv
    params:
      delimiter: ";"
  - name: users
    type: sqlite
    path: ":memory:"
dialect: sqlite
`)

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, filepath.Join(dir, DefaultFunctionsDir), cfg.FunctionsDir)
	assert.True(t, cfg.AutoLoad)
	assert.Equal(t, "sqlite", cfg.Dialect)
	require.Len(t, cfg.Inputs, 2)
	assert.Equal(t, filepath.Join(dir, "data", "orders.csv"), cfg.Inputs[0].Path)
	assert.Equal(t, ";", cfg.Inputs[0].Params["delimiter"])
	assert.Equal(t, ":memory:", cfg.Inputs[1].Path)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromDir_NoConfig(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "auto_load: false\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	assert.Equal(t, root, FindProjectRoot(nested))
	assert.Equal(t, filepath.Join(root, ConfigFileName), FindConfigFile(root))
	assert.Empty(t, FindConfigFile(nested))
}

func TestProjectConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ProjectConfig
		errSubstr string
	}{
		{
			name: "valid",
			cfg: ProjectConfig{Inputs: []InputConfig{
				{Name: "a", Type: "csv", Path: "a.csv"},
				{Name: "b", Type: "SQLite", Path: "b.db"},
			}},
		},
		{
			name:      "missing name",
			cfg:       ProjectConfig{Inputs: []InputConfig{{Type: "csv", Path: "a.csv"}}},
			errSubstr: "input name is required",
		},
		{
			name:      "missing type",
			cfg:       ProjectConfig{Inputs: []InputConfig{{Name: "a"}}},
			errSubstr: "input a: type is required",
		},
		{
			name:      "file without path",
			cfg:       ProjectConfig{Inputs: []InputConfig{{Name: "a", Type: "json"}}},
			errSubstr: "path is required for json inputs",
		},
		{
			name:      "unknown adapter",
			cfg:       ProjectConfig{Inputs: []InputConfig{{Name: "a", Type: "mysql"}}},
			errSubstr: `unknown adapter type "mysql"`,
		},
		{
			name: "duplicate names",
			cfg: ProjectConfig{Inputs: []InputConfig{
				{Name: "a", Type: "csv", Path: "a.csv"},
				{Name: "A", Type: "yaml", Path: "a.yaml"},
			}},
			errSubstr: `duplicate input name "A"`,
		},
		{
			name:      "unknown dialect",
			cfg:       ProjectConfig{Dialect: "oracle"},
			errSubstr: `unknown dialect "oracle"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestInputConfig(t *testing.T) {
	in := InputConfig{Name: "orders", Type: "DuckDB", Path: "w.db", Params: map[string]any{"settings": map[string]any{"threads": 2}}}
	assert.False(t, in.IsFile())
	assert.Equal(t, "orders", in.TableName())

	ac := in.AdapterConfig()
	assert.Equal(t, "duckdb", ac.Type)
	assert.Equal(t, "w.db", ac.Path)
	assert.Equal(t, in.Params, ac.Params)

	in.Table = "main.orders_v2"
	assert.Equal(t, "main.orders_v2", in.TableName())

	cfg := ProjectConfig{Inputs: []InputConfig{in}}
	got, ok := cfg.Input("ORDERS")
	require.True(t, ok)
	assert.Equal(t, "DuckDB", got.Type)
	_, ok = cfg.Input("missing")
	assert.False(t, ok)
}
