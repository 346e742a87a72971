package config

// Default configuration values.
const (
	DefaultFunctionsDir = "functions"
	DefaultAutoLoad     = true
)

// Defaults returns the default configuration as koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"functions_dir": DefaultFunctionsDir,
		"auto_load":     DefaultAutoLoad,
	}
}

// ApplyDefaults fills unset fields of a ProjectConfig.
func (c *ProjectConfig) ApplyDefaults() {
	if c.FunctionsDir == "" {
		c.FunctionsDir = DefaultFunctionsDir
	}
}
