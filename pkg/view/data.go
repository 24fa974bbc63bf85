package view

import (
	"fmt"
	"reflect"
	"strings"
)

// toData projects a caller-supplied data source into a fresh map.
//
// nil yields an empty map. Maps keyed by a string kind are copied entry by
// entry. Structs (or pointers to structs) contribute their exported fields,
// named by the `view` tag when present; `view:"-"` skips a field. The
// projection is a one-time shallow copy and keeps no link to the source.
func toData(src any) (map[string]any, error) {
	data := map[string]any{}
	if src == nil {
		return data, nil
	}

	switch m := src.(type) {
	case map[string]any:
		for k, v := range m {
			data[k] = v
		}
		return data, nil
	case map[string]string:
		for k, v := range m {
			data[k] = v
		}
		return data, nil
	}

	val := reflect.ValueOf(src)
	for val.Kind() == reflect.Pointer || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return data, nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("view data: map keys must be strings, got %s", val.Type().Key())
		}
		iter := val.MapRange()
		for iter.Next() {
			data[iter.Key().String()] = iter.Value().Interface()
		}
	case reflect.Struct:
		typ := val.Type()
		for i := 0; i < typ.NumField(); i++ {
			field := typ.Field(i)
			if !field.IsExported() {
				continue
			}
			name := field.Name
			if tag, ok := field.Tag.Lookup("view"); ok {
				tag = strings.Split(tag, ",")[0]
				if tag == "-" {
					continue
				}
				if tag != "" {
					name = tag
				}
			}
			data[name] = val.Field(i).Interface()
		}
	default:
		return nil, fmt.Errorf("view data: unsupported data source %T", src)
	}

	return data, nil
}

// merge layers maps left to right; later maps win on key collisions.
func merge(layers ...map[string]any) map[string]any {
	size := 0
	for _, l := range layers {
		size += len(l)
	}
	out := make(map[string]any, size)
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}

// extension returns the text after the last dot of the final path
// component, or "" when that component has no dot.
func extension(name string) string {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return ""
	}
	return base[i+1:]
}
