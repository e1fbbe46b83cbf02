package query

import (
	"cmp"
	"math"
	"strconv"
)

// IntPtr is a helper function that returns a pointer to an int.
func IntPtr(i int) *int {
	return &i
}

// ToFloat64 is a utility function that converts a value of various numeric types
// to a float64. It returns the converted float64 and a boolean indicating whether
// the conversion was successful.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// isNumber reports whether v is a Go numeric scalar. Unlike ToFloat64 it does
// not accept numeric strings.
func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, float32, float64:
		return true
	}
	return false
}

// compareValues orders two scalars: numbers numerically (int64 pairs exactly),
// strings lexically, and any number before any string. NaN sorts before every
// other number.
func compareValues(a, b any) int {
	if ai, ok := a.(int64); ok {
		if bi, ok := b.(int64); ok {
			return cmp.Compare(ai, bi)
		}
	}
	if isNumber(a) && isNumber(b) {
		af, _ := ToFloat64(a)
		bf, _ := ToFloat64(b)
		return cmp.Compare(af, bf)
	}
	as, aIsString := a.(string)
	bs, bIsString := b.(string)
	switch {
	case aIsString && bIsString:
		return cmp.Compare(as, bs)
	case aIsString:
		return 1
	case bIsString:
		return -1
	}
	return 0
}

// valuesEqual is the group-key equality: numeric values compare by value
// regardless of Go type, and NaN equals NaN so that NaN keys form one group.
func valuesEqual(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		af, _ := ToFloat64(a)
		bf, _ := ToFloat64(b)
		if math.IsNaN(af) && math.IsNaN(bf) {
			return true
		}
		if ai, ok := a.(int64); ok {
			if bi, ok := b.(int64); ok {
				return ai == bi
			}
		}
		return af == bf
	}
	return compareValues(a, b) == 0 && isNumber(a) == isNumber(b)
}
