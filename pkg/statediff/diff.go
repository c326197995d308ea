package statediff

import (
	"reflect"
	"sort"

	"github.com/cuemby/ankaios-core/pkg/types"
)

// Diff compares two CompleteState snapshots and returns three field-path
// trees: added (present in newState only), removed (present in oldState
// only), and updated (present in both, value changed). A changed map
// entry or struct-typed field whose key is wholly new or wholly gone is
// recorded as a single leaf at that key — the highest changed level —
// rather than expanded into a set of leaf paths beneath it. A changed
// entry present on both sides is walked field by field (for structs) or
// key by key (for maps) until the precise leaves that differ are found;
// slices are compared as opaque values, since the field-mask language
// has no notion of indexing into one.
func Diff(oldState, newState types.CompleteState) (added, removed, updated Tree) {
	added, removed, updated = Tree{}, Tree{}, Tree{}
	diffStructInto(reflect.ValueOf(oldState), reflect.ValueOf(newState), added, removed, updated)
	return added, removed, updated
}

func diffValueInto(oldV, newV reflect.Value, added, removed, updated Tree) {
	switch oldV.Kind() {
	case reflect.Struct:
		diffStructInto(oldV, newV, added, removed, updated)
	case reflect.Map:
		diffMapInto(oldV, newV, added, removed, updated)
	}
}

func diffStructInto(oldV, newV reflect.Value, added, removed, updated Tree) {
	t := oldV.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		segment := PathSegment(field)
		oldF, newF := oldV.Field(i), newV.Field(i)

		switch oldF.Kind() {
		case reflect.Struct, reflect.Map:
			ac, rc, uc := Tree{}, Tree{}, Tree{}
			diffValueInto(oldF, newF, ac, rc, uc)
			attachIfNonEmpty(added, segment, ac)
			attachIfNonEmpty(removed, segment, rc)
			attachIfNonEmpty(updated, segment, uc)
		default:
			if !reflect.DeepEqual(oldF.Interface(), newF.Interface()) {
				updated[segment] = nil
			}
		}
	}
}

func diffMapInto(oldM, newM reflect.Value, added, removed, updated Tree) {
	for _, key := range unionSortedStringKeys(oldM, newM) {
		kv := reflect.ValueOf(key)
		oldVal := oldM.MapIndex(kv)
		newVal := newM.MapIndex(kv)

		switch {
		case newVal.IsValid() && !oldVal.IsValid():
			added[key] = nil
		case oldVal.IsValid() && !newVal.IsValid():
			removed[key] = nil
		default:
			switch oldVal.Kind() {
			case reflect.Struct, reflect.Map:
				ac, rc, uc := Tree{}, Tree{}, Tree{}
				diffValueInto(oldVal, newVal, ac, rc, uc)
				attachIfNonEmpty(added, key, ac)
				attachIfNonEmpty(removed, key, rc)
				attachIfNonEmpty(updated, key, uc)
			default:
				if !reflect.DeepEqual(oldVal.Interface(), newVal.Interface()) {
					updated[key] = nil
				}
			}
		}
	}
}

func attachIfNonEmpty(parent Tree, key string, child Tree) {
	if len(child) > 0 {
		parent[key] = child
	}
}

func unionSortedStringKeys(a, b reflect.Value) []string {
	seen := map[string]bool{}
	var keys []string
	for _, k := range a.MapKeys() {
		s := k.String()
		if !seen[s] {
			seen[s] = true
			keys = append(keys, s)
		}
	}
	for _, k := range b.MapKeys() {
		s := k.String()
		if !seen[s] {
			seen[s] = true
			keys = append(keys, s)
		}
	}
	sort.Strings(keys)
	return keys
}
