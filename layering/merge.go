package layering

import "reflect"

// Merge layers narrow over broad and returns a new value. Objects are merged
// key by key with narrow winning; arrays and primitives from narrow replace
// broad entirely. Neither input is modified.
func Merge(broad, narrow any) any {
	if narrow == nil {
		return Clone(broad)
	}
	if broad == nil {
		return Clone(narrow)
	}
	return mergeValue(reflect.ValueOf(narrow), reflect.ValueOf(broad)).Interface()
}

// MergeAll folds values ordered from broadest to narrowest.
func MergeAll(values ...any) any {
	var merged any
	for _, value := range values {
		if value == nil {
			continue
		}
		merged = Merge(merged, value)
	}
	return merged
}

func mergeValue(strong, weak reflect.Value) reflect.Value {
	if !strong.IsValid() {
		return cloneValue(weak)
	}

	strong = unwrapInterface(strong)
	weak = unwrapInterface(weak)
	if !strong.IsValid() {
		return cloneValue(weak)
	}

	if strong.Kind() != reflect.Map || !weak.IsValid() || weak.Kind() != reflect.Map {
		return cloneValue(strong)
	}
	if strong.IsNil() {
		return cloneValue(weak)
	}
	if strong.Type().Key().Kind() != reflect.String || weak.Type().Key().Kind() != reflect.String {
		return cloneValue(strong)
	}

	result := make(map[string]any, strong.Len()+weak.Len())
	iter := weak.MapRange()
	for iter.Next() {
		result[iter.Key().String()] = cloneValue(iter.Value()).Interface()
	}
	iter = strong.MapRange()
	for iter.Next() {
		key := iter.Key().String()
		if existing, ok := result[key]; ok && existing != nil {
			result[key] = mergeValue(iter.Value(), reflect.ValueOf(existing)).Interface()
			continue
		}
		result[key] = cloneValue(iter.Value()).Interface()
	}
	return reflect.ValueOf(result)
}

// Clone returns a deep copy of value. Maps, slices, arrays and pointers are
// copied recursively; scalars are returned as is.
func Clone(value any) any {
	if value == nil {
		return nil
	}
	cloned := cloneValue(reflect.ValueOf(value))
	if !cloned.IsValid() {
		return nil
	}
	return cloned.Interface()
}

func cloneValue(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.New(v.Type().Elem())
		clone.Elem().Set(cloneValue(v.Elem()))
		return clone
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := cloneValue(v.Elem())
		if !elem.IsValid() {
			return reflect.Zero(v.Type())
		}
		return elem.Convert(v.Type())
	case reflect.Struct:
		clone := reflect.New(v.Type()).Elem()
		clone.Set(v)
		for i := 0; i < v.NumField(); i++ {
			field := clone.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(cloneValue(v.Field(i)))
		}
		return clone
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			value := cloneValue(iter.Value())
			if !value.IsValid() {
				value = reflect.Zero(v.Type().Elem())
			}
			clone.SetMapIndex(iter.Key(), value)
		}
		return clone
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			value := cloneValue(v.Index(i))
			if value.IsValid() {
				clone.Index(i).Set(value)
			}
		}
		return clone
	case reflect.Array:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i)))
		}
		return clone
	default:
		return v
	}
}

func unwrapInterface(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return reflect.Value{}
		}
		if v.Kind() == reflect.Pointer && v.Elem().Kind() != reflect.Map {
			return v
		}
		v = v.Elem()
	}
	return v
}
