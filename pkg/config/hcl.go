package config

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclFile is the top-level layout of an HCL config:
//
//	paths       = ["./views", "${env.HOME}/views"]   # or a single string
//	engines     = ["go", "pongo2"]
//	extensions  = ["html"]
//	auto_reload = true
//	shared      = { site = "example.org", year = 2024 }
//
//	pongo2 {
//	  debug       = false
//	  cache       = true
//	  auto_reload = true
//	}
//
//	namespace "blog" {
//	  paths = ["./themes/blog"]
//	}
type hclFile struct {
	Paths      cty.Value      `hcl:"paths,optional"`
	Engines    []string       `hcl:"engines,optional"`
	Extensions []string       `hcl:"extensions,optional"`
	AutoReload *bool          `hcl:"auto_reload,optional"`
	Shared     cty.Value      `hcl:"shared,optional"`
	Pongo2     *hclPongo2     `hcl:"pongo2,block"`
	Namespaces []hclNamespace `hcl:"namespace,block"`
}

type hclPongo2 struct {
	Debug      *bool `hcl:"debug,optional"`
	Cache      *bool `hcl:"cache,optional"`
	AutoReload *bool `hcl:"auto_reload,optional"`
}

type hclNamespace struct {
	Name  string    `hcl:"name,label"`
	Paths cty.Value `hcl:"paths"`
}

// LoadHCL reads an HCL config. Attributes left out keep their
// DefaultConfig values. Expressions can read environment variables
// through the env object, e.g. "${env.HOME}/views".
func LoadHCL(path string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var raw hclFile
	if diags = gohcl.DecodeBody(file.Body, evalContext(), &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	config := DefaultConfig()
	if !isUnset(raw.Paths) {
		paths, err := ctyToStrings(raw.Paths)
		if err != nil {
			return nil, fmt.Errorf("in attribute 'paths': %w", err)
		}
		config.Paths = paths
	}
	if raw.Engines != nil {
		config.Engines = raw.Engines
	}
	if raw.Extensions != nil {
		config.Extensions = raw.Extensions
	}
	if raw.AutoReload != nil {
		config.AutoReload = *raw.AutoReload
	}
	if !isUnset(raw.Shared) {
		shared, err := ctyToGo(raw.Shared)
		if err != nil {
			return nil, fmt.Errorf("in attribute 'shared': %w", err)
		}
		m, ok := shared.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("attribute 'shared' must be an object, got %s", raw.Shared.Type().FriendlyName())
		}
		config.Shared = m
	}
	if p := raw.Pongo2; p != nil {
		setBool(&config.Pongo2.Debug, p.Debug)
		setBool(&config.Pongo2.Cache, p.Cache)
		setBool(&config.Pongo2.AutoReload, p.AutoReload)
	}
	for _, ns := range raw.Namespaces {
		hints, err := ctyToStrings(ns.Paths)
		if err != nil {
			return nil, fmt.Errorf("in namespace %q: %w", ns.Name, err)
		}
		config.Namespaces[ns.Name] = append(config.Namespaces[ns.Name], hints...)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// evalContext exposes the process environment as the env object.
func evalContext() *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && utf8.ValidString(k) && utf8.ValidString(v) {
			env[k] = cty.StringVal(v)
		}
	}
	envVal := cty.MapValEmpty(cty.String)
	if len(env) > 0 {
		envVal = cty.MapVal(env)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envVal},
	}
}

func isUnset(v cty.Value) bool {
	return v.Type() == cty.NilType || v.IsNull()
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// ctyToStrings accepts a string or a list/tuple of strings.
func ctyToStrings(v cty.Value) ([]string, error) {
	if !v.IsWhollyKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	if v.Type() == cty.String {
		return []string{v.AsString()}, nil
	}
	list, err := convert.Convert(v, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	var out []string
	if err = gocty.FromCtyValue(list, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ctyToGo converts a cty value to plain Go values: strings, int or
// float64 numbers, bools, []any and map[string]any.
func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		if v.AsBigFloat().IsInt() {
			var i int
			if err := gocty.FromCtyValue(v, &i); err == nil {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, el := it.Element()
			val, err := ctyToGo(el)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, el := it.Element()
			val, err := ctyToGo(el)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			out[key.AsString()] = val
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
