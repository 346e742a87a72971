package core

import "fmt"

// ConfigError reports a caller mistake detected before any parsing happens:
// empty query text, a duplicate input tag, or a malformed function reference.
type ConfigError struct {
	Op      string // operation that rejected the input, e.g. "register scalar function"
	Message string
}

func (e *ConfigError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Op, e.Message)
}

// Reference kinds reported by UnresolvedReferenceError.
const (
	RefTable    = "table"
	RefColumn   = "column"
	RefFunction = "function"
)

// UnresolvedReferenceError reports an identifier in the query text that is
// absent from the namespace or the function catalog.
type UnresolvedReferenceError struct {
	Kind string // RefTable, RefColumn or RefFunction
	Name string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved %s %q", e.Kind, e.Name)
}

// TranslationError reports a logical plan construct the dataflow translator
// cannot realize.
type TranslationError struct {
	Construct string
	Message   string
}

func (e *TranslationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("translation error: unsupported %s", e.Construct)
	}
	return fmt.Sprintf("translation error: unsupported %s: %s", e.Construct, e.Message)
}

// ConstructionError reports a callable-backed scalar function whose
// implementation could not be instantiated at invocation time.
type ConstructionError struct {
	Function string
	Type     string
	Err      error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("cannot construct %s for function %s: %v", e.Type, e.Function, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// ValidationError reports a query that parses but is semantically invalid,
// such as an ungrouped column next to an aggregate.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Message
}
