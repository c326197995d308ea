package statediff

import (
	"reflect"
	"strings"

	"github.com/cuemby/ankaios-core/pkg/types"
)

// Project returns the subset of state selected by fieldMask, preserving
// the tree shape: a parent container is present in the result only if
// one of its descendants was selected, and an empty fieldMask means the
// full state. Multiple masks merge into one result the same way
// multiple subscriber masks merge when matching a diff tree.
func Project(state types.CompleteState, fieldMask []string) types.CompleteState {
	if len(fieldMask) == 0 {
		return state
	}
	var result types.CompleteState
	src := reflect.ValueOf(state)
	dst := reflect.ValueOf(&result).Elem()
	for _, mask := range fieldMask {
		projectInto(src, dst, strings.Split(mask, "."))
	}
	return result
}

// projectInto copies the portion of src selected by parts into dst,
// merging with whatever dst already holds. src and dst must share a
// type and dst must be addressable.
func projectInto(src, dst reflect.Value, parts []string) {
	if len(parts) == 0 {
		dst.Set(src)
		return
	}

	switch src.Kind() {
	case reflect.Struct:
		segment, rest := parts[0], parts[1:]
		t := src.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue
			}
			if PathSegment(field) == segment {
				projectInto(src.Field(i), dst.Field(i), rest)
				return
			}
		}
		// segment names a field absent from this struct: nothing to project.
	case reflect.Map:
		keyPart, rest := parts[0], parts[1:]
		if dst.IsNil() {
			dst.Set(reflect.MakeMap(dst.Type()))
		}
		if keyPart == wildcard {
			for _, k := range src.MapKeys() {
				projectMapEntry(src, dst, k, rest)
			}
		} else {
			k := reflect.ValueOf(keyPart)
			if src.MapIndex(k).IsValid() {
				projectMapEntry(src, dst, k, rest)
			}
		}
	default:
		// a scalar or slice reached with mask parts still remaining:
		// there is nothing deeper to select, so nothing is projected.
	}
}

func projectMapEntry(src, dst reflect.Value, key reflect.Value, rest []string) {
	elemType := src.Type().Elem()
	srcElem := src.MapIndex(key)

	tmp := reflect.New(elemType).Elem()
	if elemType.Kind() == reflect.Map || elemType.Kind() == reflect.Struct {
		if existing := dst.MapIndex(key); existing.IsValid() {
			tmp.Set(existing)
		}
		projectInto(srcElem, tmp, rest)
	} else {
		tmp.Set(srcElem)
	}
	dst.SetMapIndex(key, tmp)
}
