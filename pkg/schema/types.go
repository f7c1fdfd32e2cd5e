package schema

import (
	"fmt"
	"math"
	"reflect"
)

// ParseType converts a type name from a definition document into the
// reflect.Type used for trigger argument validation.
// Supports "string", "int", "float", "bool", "any", and slices like "[string]".
func ParseType(typeStr string) (reflect.Type, error) {
	// Handle slice types: [string], [int], etc.
	if len(typeStr) > 2 && typeStr[0] == '[' && typeStr[len(typeStr)-1] == ']' {
		elemType, err := ParseType(typeStr[1 : len(typeStr)-1])
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elemType), nil
	}

	switch typeStr {
	case "string":
		return reflect.TypeOf(""), nil
	case "int":
		return reflect.TypeOf(int(0)), nil
	case "float":
		return reflect.TypeOf(float64(0)), nil
	case "bool":
		return reflect.TypeOf(false), nil
	case "any":
		return reflect.TypeOf((*any)(nil)).Elem(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", typeStr)
	}
}

// ParseTypes converts a positional list of type names.
func ParseTypes(names []string) ([]reflect.Type, error) {
	types := make([]reflect.Type, len(names))
	for i, name := range names {
		t, err := ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		types[i] = t
	}
	return types, nil
}

// CoerceArgs aligns JSON-decoded arguments with declared parameter types
// before an invocation reaches the dispatcher, where a shape mismatch would
// be fatal. encoding/json yields float64 for every number, so integral
// values are narrowed when the parameter wants an int. Adapters that accept
// triggers over the wire share this instead of validating twice.
func CoerceArgs(types []reflect.Type, raw []any) ([]any, error) {
	if len(raw) != len(types) {
		return nil, fmt.Errorf("expected %d argument(s), got %d", len(types), len(raw))
	}
	out := make([]any, len(raw))
	for i, v := range raw {
		c, err := coerceValue(types[i], v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func coerceValue(t reflect.Type, v any) (any, error) {
	if t == nil || t.Kind() == reflect.Interface {
		return v, nil
	}

	switch t.Kind() {
	case reflect.String:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case reflect.Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil
	case reflect.Int:
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got %v", v)
		}
		return int(f), nil
	case reflect.Float64:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", v)
		}
		return f, nil
	case reflect.Slice:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %T", v)
		}
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			c, err := coerceValue(t.Elem(), item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			if c == nil {
				continue
			}
			out.Index(i).Set(reflect.ValueOf(c))
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("unsupported parameter type %s", t)
}
