package serverstate

import (
	"reflect"
	"sort"
	"strings"

	"github.com/cuemby/ankaios-core/pkg/statediff"
	"github.com/cuemby/ankaios-core/pkg/types"
)

const wildcard = "*"

// mergeState applies newState into oldState through fieldMask. An empty
// fieldMask means full replacement: newState becomes the result as-is.
// A non-empty fieldMask merges only the selected fields into a copy of
// oldState, leaving everything else untouched; a map key fully selected
// by a mask (no mask parts left) that newState does not contain is
// deleted from the result, which is how a mask-scoped update expresses
// removing a single workload or config item.
func mergeState(oldState, newState types.State, fieldMask []string) types.State {
	if len(fieldMask) == 0 {
		return newState
	}

	merged := deepCopyState(oldState)
	srcV := reflect.ValueOf(newState)
	dstV := reflect.ValueOf(&merged).Elem()
	for _, mask := range fieldMask {
		mergeInto(srcV, dstV, strings.Split(mask, "."))
	}
	return merged
}

func deepCopyState(s types.State) types.State {
	out := types.State{
		APIVersion: s.APIVersion,
		Workloads:  make(map[string]types.WorkloadSpec, len(s.Workloads)),
		Configs:    make(map[string]types.ConfigItem, len(s.Configs)),
	}
	for name, spec := range s.Workloads {
		out.Workloads[name] = deepCopyWorkloadSpec(spec)
	}
	for name, item := range s.Configs {
		out.Configs[name] = item
	}
	return out
}

func deepCopyWorkloadSpec(spec types.WorkloadSpec) types.WorkloadSpec {
	out := spec
	out.Dependencies = copyStringMap(spec.Dependencies)
	out.Tags = copyMap(spec.Tags)
	out.Configs = copyMap(spec.Configs)
	if spec.ControlInterfaceAccess != nil {
		out.ControlInterfaceAccess = append([]types.AccessRule(nil), spec.ControlInterfaceAccess...)
	}
	if spec.Files != nil {
		out.Files = append([]types.FileMount(nil), spec.Files...)
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]types.AddCondition) map[string]types.AddCondition {
	if m == nil {
		return nil
	}
	out := make(map[string]types.AddCondition, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mergeInto copies the portion of src selected by parts into dst,
// merging with whatever dst already holds. src and dst must share a
// type and dst must be addressable.
func mergeInto(src, dst reflect.Value, parts []string) {
	if len(parts) == 0 {
		dst.Set(src)
		return
	}

	switch dst.Kind() {
	case reflect.Struct:
		segment, rest := parts[0], parts[1:]
		t := dst.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue
			}
			if statediff.PathSegment(field) == segment {
				mergeInto(src.Field(i), dst.Field(i), rest)
				return
			}
		}
	case reflect.Map:
		keyPart, rest := parts[0], parts[1:]
		if dst.IsNil() {
			dst.Set(reflect.MakeMap(dst.Type()))
		}
		if keyPart == wildcard {
			for _, key := range unionMapStringKeys(src, dst) {
				mergeMapEntry(src, dst, reflect.ValueOf(key), rest)
			}
		} else {
			mergeMapEntry(src, dst, reflect.ValueOf(keyPart), rest)
		}
	default:
		// a scalar or slice reached with mask parts still remaining: there
		// is nothing deeper to merge, so nothing changes.
	}
}

func mergeMapEntry(src, dst reflect.Value, key reflect.Value, rest []string) {
	srcElem := src.MapIndex(key)

	if len(rest) == 0 {
		if !srcElem.IsValid() {
			dst.SetMapIndex(key, reflect.Value{})
		} else {
			dst.SetMapIndex(key, srcElem)
		}
		return
	}

	if !srcElem.IsValid() {
		return
	}

	elemType := dst.Type().Elem()
	tmp := reflect.New(elemType).Elem()
	if existing := dst.MapIndex(key); existing.IsValid() {
		tmp.Set(existing)
	}
	mergeInto(srcElem, tmp, rest)
	dst.SetMapIndex(key, tmp)
}

func unionMapStringKeys(a, b reflect.Value) []string {
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
