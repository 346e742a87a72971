// Package config provides configuration management for the flowsql CLI.
//
// It layers CLI-only settings over the shared project configuration from
// internal/config.
package config

import (
	sharedcfg "github.com/leapstack-labs/flowsql/internal/config"
)

// InputConfig is an alias for the shared input configuration.
type InputConfig = sharedcfg.InputConfig

// ProjectConfig is an alias for the shared project configuration.
type ProjectConfig = sharedcfg.ProjectConfig

// Config holds all CLI configuration options.
type Config struct {
	Inputs       []InputConfig `koanf:"inputs"`
	FunctionsDir string        `koanf:"functions_dir"`
	AutoLoad     bool          `koanf:"auto_load"`
	Dialect      string        `koanf:"dialect"`
	Verbose      bool          `koanf:"verbose"`
	OutputFormat string        `koanf:"output"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the config file that was loaded, if any.
	ConfigFile string `koanf:"-"`
}

// Default CLI values.
const (
	DefaultOutput = "auto" // table on a terminal, markdown otherwise
	EnvPrefix     = "FLOWSQL_"
)

// OutputFormats lists the accepted values of the output setting.
var OutputFormats = []string{"auto", "table", "json", "csv", "markdown"}

// Project returns the shared project view of the configuration.
func (c *Config) Project() *ProjectConfig {
	return &ProjectConfig{
		Inputs:       c.Inputs,
		FunctionsDir: c.FunctionsDir,
		AutoLoad:     c.AutoLoad,
		Dialect:      c.Dialect,
	}
}
