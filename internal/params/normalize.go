// Package params canonicalizes request parameter trees.
//
// The normalized form is the hashing input for cache keys and the basis for
// the truncated summaries written to logs and the response table.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// MaxDepth is the deepest container nesting Normalize accepts.
const MaxDepth = 20

var (
	// ErrInvalidArgument indicates a value that is neither a scalar nor a collection
	ErrInvalidArgument = errors.New("invalid parameter value")

	// ErrTooDeep indicates the parameter tree exceeds MaxDepth
	ErrTooDeep = fmt.Errorf("%w: nesting exceeds %d levels", ErrInvalidArgument, MaxDepth)
)

// Normalize returns v in canonical form: maps become map[string]any (whose
// JSON encoding is key-ordered), canonical integer keys that form a dense
// 0..n-1 range turn the map into a list, nil entries are dropped at every
// level and lists are re-indexed after dropping.
func Normalize(v any) (any, error) {
	out, _, err := normalize(reflect.ValueOf(v), 0)
	return out, err
}

// NormalizeMap is Normalize for the common top-level map shape. A nil or
// fully-null map normalizes to an empty map.
func NormalizeMap(m map[string]any) (map[string]any, error) {
	out, err := Normalize(m)
	if err != nil {
		return nil, err
	}
	switch t := out.(type) {
	case map[string]any:
		return t, nil
	case []any:
		// "0","1",... keys collapsed into a list; keep the map shape for callers
		res := make(map[string]any, len(t))
		for i, e := range t {
			res[strconv.Itoa(i)] = e
		}
		return res, nil
	default:
		return map[string]any{}, nil
	}
}

// normalize reports keep=false for values that must be dropped (nil).
func normalize(rv reflect.Value, depth int) (out any, keep bool, err error) {
	if !rv.IsValid() {
		return nil, false, nil
	}
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true, nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true, nil
	case reflect.String:
		if n, ok := rv.Interface().(json.Number); ok {
			return n, true, nil
		}
		return rv.String(), true, nil
	case reflect.Map:
		if rv.IsNil() {
			return nil, false, nil
		}
		if depth >= MaxDepth {
			return nil, false, ErrTooDeep
		}
		return normalizeMap(rv, depth+1)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, false, nil
		}
		if depth >= MaxDepth {
			return nil, false, ErrTooDeep
		}
		return normalizeList(rv, depth+1)
	default:
		return nil, false, fmt.Errorf("%w: unsupported type %s", ErrInvalidArgument, rv.Type())
	}
}

func normalizeMap(rv reflect.Value, depth int) (any, bool, error) {
	entries := make(map[string]any, rv.Len())
	intKeys := 0

	iter := rv.MapRange()
	for iter.Next() {
		key, isInt, err := mapKey(iter.Key())
		if err != nil {
			return nil, false, err
		}
		val, keep, err := normalize(iter.Value(), depth)
		if err != nil {
			return nil, false, err
		}
		if !keep {
			continue
		}
		if isInt {
			intKeys++
		}
		entries[key] = val
	}

	if intKeys > 0 && intKeys == len(entries) {
		if list, ok := denseList(entries); ok {
			return list, true, nil
		}
	}
	return entries, true, nil
}

func normalizeList(rv reflect.Value, depth int) (any, bool, error) {
	list := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		val, keep, err := normalize(rv.Index(i), depth)
		if err != nil {
			return nil, false, err
		}
		if keep {
			list = append(list, val)
		}
	}
	return list, true, nil
}

// mapKey converts a map key to its string form and reports whether it is a
// canonical integer ("7" but not "07" or "+7").
func mapKey(k reflect.Value) (string, bool, error) {
	if k.Kind() == reflect.Interface {
		k = k.Elem()
	}
	switch k.Kind() {
	case reflect.String:
		s := k.String()
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil && strconv.FormatInt(n, 10) == s {
			return s, true, nil
		}
		return s, false, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), true, nil
	default:
		return "", false, fmt.Errorf("%w: unsupported map key type %s", ErrInvalidArgument, k.Type())
	}
}

func denseList(entries map[string]any) ([]any, bool) {
	list := make([]any, len(entries))
	for i := range list {
		v, ok := entries[strconv.Itoa(i)]
		if !ok {
			return nil, false
		}
		list[i] = v
	}
	return list, true
}

// Canonical returns the canonical JSON encoding of v.
func Canonical(v any) ([]byte, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}
