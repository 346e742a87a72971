package functions

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/leapstack-labs/flowsql/pkg/core"
)

// builtinScalars are available in every catalog unless shadowed.
var builtinScalars = map[string]Ref{
	"UPPER":    MustFuncRef(strings.ToUpper),
	"LOWER":    MustFuncRef(strings.ToLower),
	"TRIM":     MustFuncRef(strings.TrimSpace),
	"LENGTH":   MustFuncRef(func(s string) int64 { return int64(utf8.RuneCountInString(s)) }),
	"ABS":      MustFuncRef(abs),
	"COALESCE": MustFuncRef(coalesce),
	"CONCAT":   MustFuncRef(concat),
	"ROUND":    MustFuncRef(round),
	"SUBSTR":   MustFuncRef(substr),
	"NULLIF":   MustFuncRef(nullif),
}

// builtinAggregates are available in every catalog unless shadowed.
var builtinAggregates = map[string]CombineFn{
	"COUNT": Count,
	"SUM":   Sum,
	"AVG":   Avg,
	"MIN":   Min,
	"MAX":   Max,
}

func abs(v any) any {
	switch x := v.(type) {
	case int64:
		if x < 0 {
			return -x
		}
		return x
	case float64:
		return math.Abs(x)
	}
	if f, ok := core.ToFloat(v); ok {
		return math.Abs(f)
	}
	return nil
}

func coalesce(args ...any) any {
	for _, a := range args {
		if a != nil {
			return a
		}
	}
	return nil
}

func concat(args ...any) string {
	var b strings.Builder
	for _, a := range args {
		if a != nil {
			b.WriteString(core.ToString(a))
		}
	}
	return b.String()
}

func round(x float64, digits ...int64) float64 {
	var d int64
	if len(digits) > 0 {
		d = digits[0]
	}
	p := math.Pow(10, float64(d))
	return math.Round(x*p) / p
}

// substr uses 1-based positions like SQL SUBSTR.
func substr(s string, start int64, length ...int64) string {
	runes := []rune(s)
	from := start - 1
	if from < 0 {
		from = 0
	}
	if from >= int64(len(runes)) {
		return ""
	}
	to := int64(len(runes))
	if len(length) > 0 {
		if length[0] < 0 {
			return ""
		}
		if length[0] < to-from {
			to = from + length[0]
		}
	}
	return string(runes[from:to])
}

func nullif(a, b any) any {
	if c, ok := core.Compare(a, b); ok && c == 0 {
		return nil
	}
	return a
}
