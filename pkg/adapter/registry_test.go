package adapter

import (
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownAdapterError_Error(t *testing.T) {
	err := &UnknownAdapterError{Type: "fake_db", Available: []string{"duckdb", "postgres"}}
	msg := err.Error()
	assert.Contains(t, msg, `"fake_db"`)
	assert.Contains(t, msg, "[duckdb postgres]")
	assert.Contains(t, msg, "flowsql.yaml")
}

func TestRegister(t *testing.T) {
	var got *slog.Logger
	Register("Test_Adapter_Internal", func(l *slog.Logger) Adapter {
		got = l
		return nil
	})

	assert.True(t, IsRegistered("test_adapter_internal"))
	assert.True(t, IsRegistered(" TEST_ADAPTER_INTERNAL"))
	assert.Contains(t, ListAdapters(), "test_adapter_internal")
	assert.True(t, sort.StringsAreSorted(ListAdapters()))

	_, err := NewAdapter(Config{Type: "test_adapter_internal"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, got, "nil logger is replaced before calling the factory")

	_, ok := DialectFor("test_adapter_internal")
	assert.False(t, ok, "factory returned no adapter")

	assert.Panics(t, func() { Register("test_adapter_internal", func(*slog.Logger) Adapter { return nil }) })
	assert.Panics(t, func() { Register(" ", func(*slog.Logger) Adapter { return nil }) })
	assert.Panics(t, func() { Register("test_adapter_nil_factory", nil) })
}
