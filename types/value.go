package types

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/tobsdb/jsondb/pkg"
)

var (
	ErrUnsupportedValue = errors.New("unsupported value")
	ErrNotOrderable     = errors.New("values are not orderable")
)

// Normalize converts v to its canonical representation: int, float64,
// string, bool, []any or map[string]any. Containers are copied, their
// elements normalised recursively.
func Normalize(v any) (any, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		if int64(int(v)) != v {
			return nil, fmt.Errorf("%w: %d overflows int", ErrUnsupportedValue, v)
		}
		return int(v), nil
	case uint:
		return uintToInt(uint64(v))
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return uintToInt(uint64(v))
	case uint64:
		return uintToInt(v)
	case float32:
		return checkFloat(float64(v))
	case float64:
		return checkFloat(v)
	case string:
		return v, nil
	case bool:
		return v, nil
	case []any:
		return normalizeList(v)
	case []string:
		return toList(v), nil
	case []int:
		return toList(v), nil
	case []float64:
		res := make([]any, len(v))
		for i, f := range v {
			n, err := checkFloat(f)
			if err != nil {
				return nil, err
			}
			res[i] = n
		}
		return res, nil
	case []bool:
		return toList(v), nil
	case []map[string]any:
		res := make([]any, len(v))
		for i, m := range v {
			n, err := normalizeMap(m)
			if err != nil {
				return nil, err
			}
			res[i] = n
		}
		return res, nil
	case map[string]any:
		return normalizeMap(v)
	case map[string]string:
		return fromMap(v), nil
	case map[string]int:
		return fromMap(v), nil
	case map[string]float64:
		res := make(map[string]any, len(v))
		for k, f := range v {
			n, err := checkFloat(f)
			if err != nil {
				return nil, err
			}
			res[k] = n
		}
		return res, nil
	case map[string]bool:
		return fromMap(v), nil
	case pkg.Map[string, any]:
		return normalizeMap(v)
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedValue)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func checkFloat(v float64) (any, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, v)
	}
	return v, nil
}

func uintToInt(v uint64) (any, error) {
	if v > math.MaxInt {
		return nil, fmt.Errorf("%w: %d overflows int", ErrUnsupportedValue, v)
	}
	return int(v), nil
}

func toList[T int | string | bool](v []T) []any {
	res := make([]any, len(v))
	for i, e := range v {
		res[i] = e
	}
	return res
}

func fromMap[T int | string | bool](v map[string]T) map[string]any {
	res := make(map[string]any, len(v))
	for k, e := range v {
		res[k] = e
	}
	return res
}

func normalizeList(v []any) (any, error) {
	res := make([]any, len(v))
	for i, e := range v {
		n, err := Normalize(e)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
		res[i] = n
	}
	return res, nil
}

func normalizeMap(v map[string]any) (map[string]any, error) {
	res := make(map[string]any, len(v))
	for k, e := range v {
		n, err := Normalize(e)
		if err != nil {
			return nil, fmt.Errorf("map key %q: %w", k, err)
		}
		res[k] = n
	}
	return res, nil
}

// KindOf returns the field type of a canonical value, or "" when v is not
// canonical.
func KindOf(v any) FieldType {
	switch v.(type) {
	case int:
		return FieldTypeInt
	case float64:
		return FieldTypeFloat
	case string:
		return FieldTypeString
	case bool:
		return FieldTypeBool
	case []any:
		return FieldTypeList
	case map[string]any:
		return FieldTypeMap
	}
	return ""
}

// Check normalises v and reports whether it satisfies t exactly.
// An integer never satisfies Float and a float never satisfies Int.
func Check(t FieldType, v any) (any, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	if k := KindOf(n); k != t {
		return nil, fmt.Errorf("expected %s, got %s", t, k)
	}
	return n, nil
}

// Equal reports whether two canonical values are equal. Values of different
// kinds are never equal.
func Equal(a, b any) bool {
	switch a := a.(type) {
	case []any:
		b, ok := b.([]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !Equal(a[i], b[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		b, ok := b.(map[string]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for k, av := range a {
			bv, ok := b[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case int, float64, string, bool:
		return a == b
	}
	return false
}

// Compare orders two canonical values. Int and Float compare numerically
// with each other, strings compare lexically. Anything else returns
// ErrNotOrderable.
func Compare(a, b any) (int, error) {
	switch a := a.(type) {
	case int:
		switch b := b.(type) {
		case int:
			return cmpInt(a, b), nil
		case float64:
			return cmpFloat(float64(a), b), nil
		}
	case float64:
		switch b := b.(type) {
		case int:
			return cmpFloat(a, float64(b)), nil
		case float64:
			return cmpFloat(a, b), nil
		}
	case string:
		if b, ok := b.(string); ok {
			return strings.Compare(a, b), nil
		}
	}
	return 0, fmt.Errorf("%w: %s and %s", ErrNotOrderable, describe(a), describe(b))
}

func describe(v any) string {
	if k := KindOf(v); k != "" {
		return string(k)
	}
	return fmt.Sprintf("%T", v)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

type compositeKey string

// IndexKey returns a comparable key for a canonical value such that
// IndexKey(a) == IndexKey(b) iff Equal(a, b).
func IndexKey(v any) any {
	switch v.(type) {
	case []any, map[string]any:
		return compositeKey(appendKey(nil, v))
	}
	return v
}

func appendKey(buf []byte, v any) []byte {
	switch v := v.(type) {
	case int:
		buf = append(buf, 'i')
		return strconv.AppendInt(buf, int64(v), 10)
	case float64:
		buf = append(buf, 'f')
		return strconv.AppendFloat(buf, v, 'g', -1, 64)
	case string:
		buf = append(buf, 's')
		return strconv.AppendQuote(buf, v)
	case bool:
		buf = append(buf, 'b')
		return strconv.AppendBool(buf, v)
	case []any:
		buf = append(buf, '[')
		for i, e := range v {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendKey(buf, e)
		}
		return append(buf, ']')
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = strconv.AppendQuote(buf, k)
			buf = append(buf, ':')
			buf = appendKey(buf, v[k])
		}
		return append(buf, '}')
	}
	return fmt.Appendf(buf, "?%v", v)
}

// Clone deep-copies a canonical value.
func Clone(v any) any {
	switch v := v.(type) {
	case []any:
		res := make([]any, len(v))
		for i, e := range v {
			res[i] = Clone(e)
		}
		return res
	case map[string]any:
		return CloneMap(v)
	}
	return v
}

func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	res := make(map[string]any, len(m))
	for k, e := range m {
		res[k] = Clone(e)
	}
	return res
}
