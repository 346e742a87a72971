package duckdb

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/flowsql/pkg/adapter"
)

// Params holds DuckDB-specific configuration decoded from
// adapter.Config.Params.
type Params struct {
	// Extensions to install and load, e.g. "httpfs" or "json".
	Extensions []string `mapstructure:"extensions"`

	// Secrets for cloud storage authentication.
	Secrets []SecretConfig `mapstructure:"secrets"`

	// Settings applied with SET after connecting.
	Settings map[string]string `mapstructure:"settings"`

	// Load maps table names to CSV, Parquet or JSON files loaded with
	// LoadFile after connecting.
	Load map[string]string `mapstructure:"load"`
}

// SecretConfig defines a DuckDB secret for cloud storage.
type SecretConfig struct {
	Type     string `mapstructure:"type"`     // s3, gcs, azure, r2
	Provider string `mapstructure:"provider"` // config, credential_chain, ...
	Region   string `mapstructure:"region"`

	// Scope limits the secret to a path prefix; a string or a list.
	Scope any `mapstructure:"scope"`

	KeyID    string `mapstructure:"key_id"`
	Secret   string `mapstructure:"secret"`
	Endpoint string `mapstructure:"endpoint"`
	URLStyle string `mapstructure:"url_style"` // vhost or path
	UseSSL   *bool  `mapstructure:"use_ssl"`
}

func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if err := adapter.DecodeParams(adapter.Config{Type: "duckdb", Params: raw}, p); err != nil {
		return nil, err
	}
	return p, nil
}

// buildCreateSecretSQL renders a CREATE SECRET statement with one option per
// line.
func buildCreateSecretSQL(s SecretConfig) string {
	opts := []string{"TYPE " + s.Type}
	if s.Provider != "" {
		opts = append(opts, "PROVIDER "+s.Provider)
	}
	if s.Region != "" {
		opts = append(opts, "REGION "+quote(s.Region))
	}
	if scope := formatScope(s.Scope); scope != "" {
		opts = append(opts, "SCOPE "+scope)
	}
	if s.KeyID != "" {
		opts = append(opts, "KEY_ID "+quote(s.KeyID))
	}
	if s.Secret != "" {
		opts = append(opts, "SECRET "+quote(s.Secret))
	}
	if s.Endpoint != "" {
		opts = append(opts, "ENDPOINT "+quote(s.Endpoint))
	}
	if s.URLStyle != "" {
		opts = append(opts, "URL_STYLE "+quote(s.URLStyle))
	}
	if s.UseSSL != nil {
		opts = append(opts, fmt.Sprintf("USE_SSL %t", *s.UseSSL))
	}
	return "CREATE SECRET (\n    " + strings.Join(opts, ",\n    ") + "\n)"
}

func formatScope(scope any) string {
	switch v := scope.(type) {
	case string:
		if v == "" {
			return ""
		}
		return quote(v)
	case []string:
		return quoteList(v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
		return quoteList(items)
	}
	return ""
}

func quoteList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = quote(item)
	}
	return "(" + strings.Join(quoted, ", ") + ")"
}

func quote(s string) string {
	return "'" + escapeString(s) + "'"
}
