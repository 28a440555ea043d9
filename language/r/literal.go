package r

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Literal renders a Go value as R source that evaluates to an equivalent
// R value.
//
//	nil                 NULL
//	bool                TRUE / FALSE
//	integers            5L, or a double outside R's integer range
//	floats              1.5, NaN, Inf, -Inf
//	string              "quoted"
//	homogeneous slices  c(...), or character(0) etc. when empty
//	other slices        list(...)
//	string-keyed maps   list("k" = v, ...) with sorted keys
//
// JSON-decoded values ([]any, map[string]any, float64, json.Number) map
// naturally onto R vectors and lists.
func Literal(v any) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	if n, ok := v.(json.Number); ok {
		return numberLiteral(n)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return "TRUE", nil
		}
		return "FALSE", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intLiteral(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt32 {
			return strconv.FormatUint(u, 10), nil
		}
		return intLiteral(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return floatLiteral(rv.Float()), nil
	case reflect.String:
		return strconv.Quote(rv.String()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "NULL", nil
		}
		return Literal(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return emptyVector(rv.Type().Elem()), nil
		}
		return sliceLiteral(rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return "", fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		return mapLiteral(rv)
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}

// R reserves the smallest int32 for NA_integer_.
func intLiteral(i int64) string {
	if i > math.MinInt32 && i <= math.MaxInt32 {
		return strconv.FormatInt(i, 10) + "L"
	}
	return strconv.FormatInt(i, 10)
}

func floatLiteral(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func numberLiteral(n json.Number) (string, error) {
	if i, err := n.Int64(); err == nil {
		return intLiteral(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", fmt.Errorf("invalid number %q", n)
	}
	return floatLiteral(f), nil
}

func emptyVector(elem reflect.Type) string {
	switch elem.Kind() {
	case reflect.String:
		return "character(0)"
	case reflect.Bool:
		return "logical(0)"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer(0)"
	case reflect.Float32, reflect.Float64:
		return "numeric(0)"
	case reflect.Uint8:
		return "raw(0)"
	}
	return "list()"
}

func sliceLiteral(rv reflect.Value) (string, error) {
	n := rv.Len()
	if n == 0 {
		return emptyVector(rv.Type().Elem()), nil
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		parts := make([]string, n)
		for i := 0; i < n; i++ {
			parts[i] = fmt.Sprintf("0x%02x", rv.Index(i).Uint())
		}
		return "as.raw(c(" + strings.Join(parts, ", ") + "))", nil
	}

	parts := make([]string, n)
	kind := ""
	atomic := true
	for i := 0; i < n; i++ {
		elem := rv.Index(i).Interface()
		lit, err := Literal(elem)
		if err != nil {
			return "", fmt.Errorf("element %d: %w", i, err)
		}
		parts[i] = lit

		k := scalarKind(elem)
		if k == "" || (kind != "" && k != kind) {
			atomic = false
		}
		kind = k
	}

	if atomic {
		return "c(" + strings.Join(parts, ", ") + ")", nil
	}
	return "list(" + strings.Join(parts, ", ") + ")", nil
}

func mapLiteral(rv reflect.Value) (string, error) {
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		lit, err := Literal(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
		if err != nil {
			return "", fmt.Errorf("key %q: %w", k, err)
		}
		parts[i] = strconv.Quote(k) + " = " + lit
	}
	return "list(" + strings.Join(parts, ", ") + ")", nil
}

// scalarKind classifies values that R can combine into one atomic vector.
// Integers and doubles share a kind since c() widens them.
func scalarKind(v any) string {
	if v == nil {
		return ""
	}
	if _, ok := v.(json.Number); ok {
		return "numeric"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool:
		return "logical"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "numeric"
	case reflect.String:
		return "character"
	}
	return ""
}
