// Package statediff computes the added/removed/updated field-path trees
// between two CompleteState snapshots and matches them against
// subscriber field masks, the mechanism behind filtered event delivery
// (pkg/events) and mask-projected complete-state queries
// (pkg/serverstate).
package statediff

import (
	"reflect"
	"sort"
	"strings"
	"unicode"
)

// Tree is a field-path tree: a nested mapping from path segment to
// subtree. A nil value at a key is a leaf — either a genuine scalar leaf
// (an updated value) or a composite node whose presence alone is the
// change (an added or removed map entry or struct-typed entry, recorded
// at the highest changed level rather than expanded into its own
// children).
type Tree map[string]Tree

// IsLeaf reports whether t has no children, i.e. marks the end of a
// changed path.
func (t Tree) IsLeaf() bool {
	return len(t) == 0
}

func joinPath(base, next string) string {
	if base == "" {
		return next
	}
	return base + "." + next
}

// CollectLeafPaths returns every leaf path reachable from root, each
// joined with ".". An empty root itself is reported as a single path
// equal to the empty string, matching the underlying node being treated
// as a leaf at the point it was reached.
func CollectLeafPaths(root Tree) []string {
	type frame struct {
		node Tree
		path string
	}
	var results []string
	stack := []frame{{root, ""}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(f.node) > 0 {
			keys := make([]string, 0, len(f.node))
			for k := range f.node {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				stack = append(stack, frame{f.node[k], joinPath(f.path, k)})
			}
		} else {
			results = append(results, f.path)
		}
	}
	return results
}

const wildcard = "*"

// MatchMasks walks tree against each of masks (dot-separated field-path
// patterns where a part of "*" matches any single key) and returns every
// leaf path reached. A mask part matching a key that turns out to be a
// leaf is only emitted once the mask is fully consumed; a mask that
// still has parts left when it hits a leaf matches nothing at that
// branch. Reaching the end of a mask's parts at an internal node emits
// every leaf beneath that node. Non-string keys never occur in Tree
// (string-keyed by construction) so every key participates in matching.
// Results are not deduplicated across masks, mirroring the accumulation
// behaviour subscriber field masks get combined with.
func MatchMasks(tree Tree, masks []string) []string {
	var altered []string
	for _, mask := range masks {
		altered = append(altered, matchOneMask(tree, mask)...)
	}
	return altered
}

func matchOneMask(tree Tree, mask string) []string {
	type frame struct {
		node  Tree
		parts []string
		path  string
	}
	var altered []string
	stack := []frame{{tree, strings.Split(mask, "."), ""}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(f.parts) == 0 {
			for _, leaf := range CollectLeafPaths(f.node) {
				altered = append(altered, joinPath(f.path, leaf))
			}
			continue
		}

		next := f.parts[0]
		rest := f.parts[1:]

		if next == wildcard {
			keys := make([]string, 0, len(f.node))
			for k := range f.node {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				child := f.node[key]
				newPath := joinPath(f.path, key)
				if child.IsLeaf() {
					if len(rest) == 0 {
						altered = append(altered, newPath)
					}
				} else {
					stack = append(stack, frame{child, rest, newPath})
				}
			}
		} else {
			child, ok := f.node[next]
			if !ok {
				continue
			}
			newPath := joinPath(f.path, next)
			if child.IsLeaf() {
				if len(rest) == 0 {
					altered = append(altered, newPath)
				}
			} else {
				stack = append(stack, frame{child, rest, newPath})
			}
		}
	}
	return altered
}

// PathSegment returns the path segment a struct field contributes,
// preferring its `json` tag (as used by types.State and friends) and
// falling back to a lower-camel-cased field name.
func PathSegment(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag != "" {
		if comma := strings.IndexByte(tag, ','); comma >= 0 {
			tag = tag[:comma]
		}
		if tag != "" && tag != "-" {
			return tag
		}
	}
	if f.Name == "" {
		return f.Name
	}
	r := []rune(f.Name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
