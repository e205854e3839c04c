package openapi

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/mark3labs/typeprovider/internal/schema"
)

// anonymousPrefix names components hoisted out of fragment $defs buckets.
const anonymousPrefix = "AnonymousSchema"

// hoister moves the generated $defs entries of every fragment in a document
// into components.schemas. A bucket shared by several fragments is hoisted
// once.
type hoister struct {
	schemas map[string]any
	renamed map[uintptr]map[string]string
	seen    map[visitKey]bool
	next    int
}

// hoistLocalDefs rewrites doc in place so that no fragment depends on a local
// $defs bucket. It returns the names of the new components.
func hoistLocalDefs(doc map[string]any, schemas map[string]any) []string {
	h := &hoister{
		schemas: schemas,
		renamed: make(map[uintptr]map[string]string),
		seen:    make(map[visitKey]bool),
	}
	var added []string
	h.walk(doc, &added)
	return added
}

func (h *hoister) walk(node any, added *[]string) {
	switch v := node.(type) {
	case map[string]any:
		key := visitKey{ptr: reflect.ValueOf(v).Pointer()}
		if h.seen[key] {
			return
		}
		h.seen[key] = true
		if bucket, ok := v["$defs"].(map[string]any); ok {
			h.hoistBucket(v, bucket, added)
		}
		for _, k := range sortedKeys(v) {
			h.walk(v[k], added)
		}
	case []any:
		for _, child := range v {
			h.walk(child, added)
		}
	}
}

func (h *hoister) hoistBucket(owner, bucket map[string]any, added *[]string) {
	ptr := reflect.ValueOf(bucket).Pointer()
	rename, done := h.renamed[ptr]
	if !done {
		rename = make(map[string]string)
		for _, name := range sortedKeys(bucket) {
			if !strings.HasPrefix(name, schema.GeneratedNamePrefix) {
				continue
			}
			target := h.freeName()
			h.schemas[target] = bucket[name]
			rename[name] = target
			*added = append(*added, target)
		}
		h.renamed[ptr] = rename
		for _, target := range rename {
			rewriteLocalRefs(h.schemas[target], rename, make(map[visitKey]bool))
		}
	}
	if len(rename) == 0 {
		return
	}

	kept := make(map[string]any, len(bucket))
	for name, body := range bucket {
		if _, moved := rename[name]; !moved {
			kept[name] = body
		}
	}
	if len(kept) == 0 {
		delete(owner, "$defs")
	} else {
		owner["$defs"] = kept
	}
	rewriteLocalRefs(owner, rename, make(map[visitKey]bool))
}

func (h *hoister) freeName() string {
	for {
		h.next++
		name := anonymousPrefix + strconv.Itoa(h.next)
		if _, taken := h.schemas[name]; !taken {
			return name
		}
	}
}

// rewriteLocalRefs points "#/$defs/<name>" references at the component that
// rename assigns to name.
func rewriteLocalRefs(node any, rename map[string]string, seen map[visitKey]bool) {
	switch v := node.(type) {
	case map[string]any:
		key := visitKey{ptr: reflect.ValueOf(v).Pointer()}
		if seen[key] {
			return
		}
		seen[key] = true
		if ref, ok := v["$ref"].(string); ok && strings.HasPrefix(ref, LocalDefsPrefix) {
			if target, ok := rename[strings.TrimPrefix(ref, LocalDefsPrefix)]; ok {
				v["$ref"] = componentPrefix + target
			}
		}
		for _, child := range v {
			rewriteLocalRefs(child, rename, seen)
		}
	case []any:
		for _, child := range v {
			rewriteLocalRefs(child, rename, seen)
		}
	}
}
