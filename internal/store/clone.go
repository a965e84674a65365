package store

import "reflect"

// deepCopy returns a copy of v that shares no maps, slices or pointees
// with it. Channels and funcs are shared. Unexported struct fields cannot
// be written through reflection and are copied shallowly; states with such
// fields should implement Cloner.
func deepCopy[S any](v S) S {
	rv := reflect.ValueOf(&v).Elem()
	out := reflect.New(rv.Type()).Elem()
	copyInto(out, rv, make(map[uintptr]reflect.Value))
	return out.Interface().(S)
}

func copyInto(dst, src reflect.Value, seen map[uintptr]reflect.Value) {
	switch src.Kind() {
	case reflect.Map:
		if src.IsNil() {
			return
		}
		m := reflect.MakeMapWithSize(src.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			val := reflect.New(src.Type().Elem()).Elem()
			copyInto(val, iter.Value(), seen)
			m.SetMapIndex(iter.Key(), val)
		}
		dst.Set(m)

	case reflect.Slice:
		if src.IsNil() {
			return
		}
		s := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for i := range src.Len() {
			copyInto(s.Index(i), src.Index(i), seen)
		}
		dst.Set(s)

	case reflect.Pointer:
		if src.IsNil() {
			return
		}
		if p, ok := seen[src.Pointer()]; ok {
			dst.Set(p)
			return
		}
		p := reflect.New(src.Type().Elem())
		seen[src.Pointer()] = p
		copyInto(p.Elem(), src.Elem(), seen)
		dst.Set(p)

	case reflect.Interface:
		if src.IsNil() {
			return
		}
		inner := reflect.New(src.Elem().Type()).Elem()
		copyInto(inner, src.Elem(), seen)
		dst.Set(inner)

	case reflect.Array:
		for i := range src.Len() {
			copyInto(dst.Index(i), src.Index(i), seen)
		}

	case reflect.Struct:
		dst.Set(src)
		for i := range src.NumField() {
			if dst.Field(i).CanSet() {
				copyInto(dst.Field(i), src.Field(i), seen)
			}
		}

	default:
		dst.Set(src)
	}
}

// hasReferences reports whether values of t can share mutable data when
// copied with plain assignment.
func hasReferences(t reflect.Type) bool {
	return referenceKinds(t, make(map[reflect.Type]bool))
}

func referenceKinds(t reflect.Type, visiting map[reflect.Type]bool) bool {
	if visiting[t] {
		return false
	}
	visiting[t] = true

	switch t.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return true
	case reflect.Array:
		return referenceKinds(t.Elem(), visiting)
	case reflect.Struct:
		for i := range t.NumField() {
			if referenceKinds(t.Field(i).Type, visiting) {
				return true
			}
		}
	}
	return false
}
