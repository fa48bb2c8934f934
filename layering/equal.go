package layering

import (
	"math"
	"reflect"
)

// Equal reports whether a and b are structurally equal JSON-like values.
// Numbers compare by value regardless of their Go type, maps compare key by
// key and slices element by element. A nil map or slice equals an empty one.
func Equal(a, b any) bool {
	return equalValue(reflect.ValueOf(a), reflect.ValueOf(b))
}

func equalValue(a, b reflect.Value) bool {
	a = unwrapAll(a)
	b = unwrapAll(b)
	if !a.IsValid() || !b.IsValid() {
		return !a.IsValid() && !b.IsValid()
	}

	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		if !ok {
			return false
		}
		if math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
		return fa == fb
	}

	switch a.Kind() {
	case reflect.Bool:
		return b.Kind() == reflect.Bool && a.Bool() == b.Bool()
	case reflect.String:
		return b.Kind() == reflect.String && a.String() == b.String()
	case reflect.Slice, reflect.Array:
		if b.Kind() != reflect.Slice && b.Kind() != reflect.Array {
			return false
		}
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !equalValue(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if b.Kind() != reflect.Map {
			return false
		}
		if a.Type().Key().Kind() != reflect.String || b.Type().Key().Kind() != reflect.String {
			return reflect.DeepEqual(a.Interface(), b.Interface())
		}
		if a.Len() != b.Len() {
			return false
		}
		iter := a.MapRange()
		for iter.Next() {
			other := b.MapIndex(reflect.ValueOf(iter.Key().String()).Convert(b.Type().Key()))
			if !other.IsValid() {
				return false
			}
			if !equalValue(iter.Value(), other) {
				return false
			}
		}
		return true
	default:
		if a.Type() != b.Type() {
			return false
		}
		return reflect.DeepEqual(a.Interface(), b.Interface())
	}
}

func unwrapAll(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func asFloat(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	default:
		return 0, false
	}
}
