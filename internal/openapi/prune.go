package openapi

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
)

const componentPrefix = "#/components/schemas/"

var componentRef = regexp.MustCompile(`^#/components/schemas/(.+)$`)

// Prune returns a copy of doc whose components.schemas only holds the
// components reachable through $ref chains starting outside of components.
// doc itself is not modified.
func Prune(doc map[string]any) map[string]any {
	reachable := ReachableComponents(doc)

	out, _ := cloneValue(doc, make(map[uintptr]any)).(map[string]any)
	if out == nil {
		return nil
	}
	schemas := componentSchemas(out)
	for name := range schemas {
		if _, ok := reachable[name]; !ok {
			delete(schemas, name)
		}
	}
	return out
}

// ReachableComponents returns the names of the components.schemas entries
// reachable from doc.
func ReachableComponents(doc map[string]any) map[string]struct{} {
	refs := make(map[string]struct{})
	collectRefs(doc, refs, make(map[visitKey]bool))

	schemas := componentSchemas(doc)
	expanded := make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for _, ref := range sortedKeys(refs) {
			m := componentRef.FindStringSubmatch(ref)
			if m == nil || expanded[m[1]] {
				continue
			}
			body, ok := schemas[m[1]]
			if !ok {
				continue
			}
			expanded[m[1]] = true
			found := make(map[string]struct{})
			collectRefs(body, found, make(map[visitKey]bool))
			for r := range found {
				if _, seen := refs[r]; !seen {
					refs[r] = struct{}{}
					changed = true
				}
			}
		}
	}

	names := make(map[string]struct{}, len(refs))
	for ref := range refs {
		names[strings.TrimPrefix(ref, componentPrefix)] = struct{}{}
	}
	return names
}

func componentSchemas(doc map[string]any) map[string]any {
	components, _ := doc["components"].(map[string]any)
	schemas, _ := components["schemas"].(map[string]any)
	return schemas
}

type visitKey struct {
	ptr uintptr
	len int
}

// collectRefs gathers every string found under a "$ref" key. It never enters
// a "components" key and visits each map or slice at most once.
func collectRefs(node any, refs map[string]struct{}, seen map[visitKey]bool) {
	switch v := node.(type) {
	case map[string]any:
		key := visitKey{ptr: reflect.ValueOf(v).Pointer()}
		if seen[key] {
			return
		}
		seen[key] = true
		if ref, ok := v["$ref"].(string); ok {
			refs[ref] = struct{}{}
		}
		for k, child := range v {
			if k == "components" {
				continue
			}
			collectRefs(child, refs, seen)
		}
	case []any:
		if len(v) == 0 {
			return
		}
		key := visitKey{ptr: reflect.ValueOf(v).Pointer(), len: len(v)}
		if seen[key] {
			return
		}
		seen[key] = true
		for _, child := range v {
			collectRefs(child, refs, seen)
		}
	}
}

// cloneValue deep-copies maps and slices of a JSON-like tree. Shared and
// cyclic nodes keep their shape in the copy.
func cloneValue(v any, memo map[uintptr]any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		ptr := reflect.ValueOf(t).Pointer()
		if done, ok := memo[ptr]; ok {
			return done
		}
		out := make(map[string]any, len(t))
		memo[ptr] = out
		for k, child := range t {
			out[k] = cloneValue(child, memo)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneValue(child, memo)
		}
		return out
	default:
		return v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
