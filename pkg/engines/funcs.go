package engines

import (
	"encoding/json"
	"fmt"
	"html/template"
	"reflect"
	"strings"
)

// DefaultFuncs returns the functions every GoEngine template can call.
// The "include" function is added per engine since it needs a finder.
func DefaultFuncs() template.FuncMap {
	return template.FuncMap{
		// Arithmetic
		"add":  add,
		"sub":  sub,
		"mult": mult,
		"div":  div,
		"mod":  mod,
		"inc":  inc,
		"dec":  dec,
		"max":  maxInt,
		"min":  minInt,

		// Logic
		"all":     all,
		"any":     anyOf,
		"isSet":   isSet,
		"default": defaultValue,

		// Collections
		"list":   list,
		"dict":   dict,
		"repeat": repeat,

		// Strings
		"upper":  strings.ToUpper,
		"lower":  strings.ToLower,
		"trim":   strings.TrimSpace,
		"join":   join,
		"safe":   safe,
		"toJSON": toJSON,
	}
}

func add(a, b int) int  { return a + b }
func sub(a, b int) int  { return a - b }
func mult(a, b int) int { return a * b }
func inc(i int) int     { return i + 1 }
func dec(i int) int     { return i - 1 }

// div is integer division; division by zero yields 0.
func div(a, b int) int {
	if b == 0 {
		return 0
	}
	return a / b
}

// mod yields 0 for a zero divisor.
func mod(a, b int) int {
	if b == 0 {
		return 0
	}
	return a % b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// all reports whether every argument is true.
func all(args ...bool) bool {
	for _, arg := range args {
		if !arg {
			return false
		}
	}
	return true
}

// anyOf reports whether at least one argument is true.
func anyOf(args ...bool) bool {
	for _, arg := range args {
		if arg {
			return true
		}
	}
	return false
}

// isSet reports whether val is neither nil nor its type's zero value.
func isSet(val any) bool {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return false
	}
	return !v.IsZero()
}

// defaultValue returns val when it is set, fallback otherwise. The argument
// order suits pipelines: {{ .title | default "Untitled" }}.
func defaultValue(fallback, val any) any {
	if isSet(val) {
		return val
	}
	return fallback
}

func list(args ...any) []any {
	return args
}

// dict builds a map from alternating keys and values, typically to pass
// data to an included view.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments (%d)", len(pairs))
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is %T, not string", pairs[i], pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

// repeat returns 0..count-1 for ranging a fixed number of times.
func repeat(count int) []int {
	if count < 0 {
		return []int{}
	}
	s := make([]int, count)
	for i := range s {
		s[i] = i
	}
	return s
}

// join concatenates the elements of a slice with sep.
func join(sep string, items any) string {
	v := reflect.ValueOf(items)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Sprint(items)
	}
	parts := make([]string, v.Len())
	for i := range parts {
		parts[i] = fmt.Sprint(v.Index(i).Interface())
	}
	return strings.Join(parts, sep)
}

// safe marks s as trusted HTML.
func safe(s string) template.HTML {
	return template.HTML(s)
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return string(b), nil
}
