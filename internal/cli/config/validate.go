package config

import (
	"fmt"
	"slices"
	"strings"
)

// Validate checks the project settings and the output format.
func (c *Config) Validate() error {
	if c.OutputFormat != "" && !slices.Contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("invalid output format %q (expected one of %s)", c.OutputFormat, strings.Join(OutputFormats, ", "))
	}
	return c.Project().Validate()
}
