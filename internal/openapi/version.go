package openapi

import (
	"fmt"
	"strings"

	"github.com/mark3labs/typeprovider/internal/schema"
)

// Version is the OpenAPI schema dialect a fragment is rendered for.
type Version string

const (
	Version30 Version = "3.0"
	Version31 Version = "3.1"
)

// DocumentObject is the document handed to the transforms. Exactly one of
// OpenAPI and Swagger is expected to be set; Swagger documents are rejected.
type DocumentObject struct {
	OpenAPI map[string]any
	Swagger map[string]any
}

// DetectVersion returns the dialect targeted by doc.
func DetectVersion(doc DocumentObject) (Version, error) {
	if doc.Swagger != nil {
		v, _ := doc.Swagger["swagger"].(string)
		if v == "" {
			v = "2.0"
		}
		return "", &UnsupportedDialectError{Version: v}
	}
	if doc.OpenAPI == nil {
		return "", &UnsupportedDialectError{}
	}
	if sw, ok := doc.OpenAPI["swagger"]; ok {
		return "", &UnsupportedDialectError{Version: fmt.Sprint(sw)}
	}
	raw, _ := doc.OpenAPI["openapi"].(string)
	switch {
	case strings.HasPrefix(raw, "3.1"):
		return Version31, nil
	case strings.HasPrefix(raw, "3.0"):
		return Version30, nil
	}
	return "", &UnsupportedDialectError{Version: raw}
}

func isSwagger(doc DocumentObject) bool {
	if doc.Swagger != nil {
		return true
	}
	_, ok := doc.OpenAPI["swagger"]
	return ok
}

// DirectionOverride returns the per-node hook applied while converting a
// definition. Output dates render as date-time strings and output
// undefined renders as null; input is left untouched.
func DirectionOverride(dir schema.Direction) func(schema.OverrideContext) {
	return func(ctx schema.OverrideContext) {
		if dir != schema.Output {
			return
		}
		switch ctx.Type.Kind() {
		case schema.KindDate:
			ctx.JSON["type"] = "string"
			ctx.JSON["format"] = "date-time"
		case schema.KindUndefined:
			ctx.JSON["type"] = "null"
		}
	}
}

// ConvertSchemaVersion returns a copy of fragment rendered for ver. Dialect
// and identity markers are removed from the root. For 3.0, 2020-12 keywords
// are rewritten into their 3.0 equivalents.
func ConvertSchemaVersion(fragment map[string]any, ver Version) map[string]any {
	out, _ := cloneValue(fragment, make(map[uintptr]any)).(map[string]any)
	if out == nil {
		return map[string]any{}
	}
	delete(out, "$schema")
	delete(out, "$id")
	delete(out, "id")
	if ver == Version30 {
		downgrade(out)
	}
	return out
}

// keywords whose value is a single subschema
var singleSchemaKeys = []string{"items", "additionalProperties", "not", "propertyNames", "contains", "if", "then", "else"}

// keywords whose value is a list of subschemas
var listSchemaKeys = []string{"anyOf", "allOf", "oneOf", "prefixItems"}

// keywords whose value maps names to subschemas
var mapSchemaKeys = []string{"properties", "patternProperties", "$defs", "definitions"}

func downgrade(node map[string]any) {
	for _, key := range singleSchemaKeys {
		if child, ok := node[key].(map[string]any); ok {
			downgrade(child)
		}
	}
	for _, key := range listSchemaKeys {
		if list, ok := node[key].([]any); ok {
			for _, item := range list {
				if child, ok := item.(map[string]any); ok {
					downgrade(child)
				}
			}
		}
	}
	for _, key := range mapSchemaKeys {
		if m, ok := node[key].(map[string]any); ok {
			for _, item := range m {
				if child, ok := item.(map[string]any); ok {
					downgrade(child)
				}
			}
		}
	}

	if v, ok := node["const"]; ok {
		delete(node, "const")
		node["enum"] = []any{v}
	}
	downgradeType(node)
	downgradeNullBranch(node)
	for _, bound := range []string{"Minimum", "Maximum"} {
		key := "exclusive" + bound
		if v, ok := node[key]; ok {
			if _, isBool := v.(bool); !isBool {
				node[strings.ToLower(bound[:1])+bound[1:]] = v
				node[key] = true
			}
		}
	}
	if prefix, ok := node["prefixItems"].([]any); ok {
		delete(node, "prefixItems")
		branches := append([]any(nil), prefix...)
		if rest, ok := node["items"]; ok {
			branches = append(branches, rest)
		} else if _, ok := node["maxItems"]; !ok {
			node["maxItems"] = len(prefix)
		}
		node["items"] = map[string]any{"anyOf": branches}
	}
	if examples, ok := node["examples"].([]any); ok {
		delete(node, "examples")
		if len(examples) > 0 {
			node["example"] = examples[0]
		}
	}
}

func downgradeType(node map[string]any) {
	switch typ := node["type"].(type) {
	case string:
		if typ == "null" {
			delete(node, "type")
			node["nullable"] = true
		}
	case []any:
		kept := make([]any, 0, len(typ))
		for _, t := range typ {
			if t == "null" {
				node["nullable"] = true
				continue
			}
			kept = append(kept, t)
		}
		switch len(kept) {
		case 0:
			delete(node, "type")
		case 1:
			node["type"] = kept[0]
		default:
			delete(node, "type")
			branches := make([]any, 0, len(kept))
			for _, t := range kept {
				branches = append(branches, map[string]any{"type": t})
			}
			node["anyOf"] = branches
		}
	}
}

// isNullBranch matches a null alternative after it went through downgrade.
func isNullBranch(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return false
	}
	if m["type"] == "null" {
		return true
	}
	nullable, _ := m["nullable"].(bool)
	return nullable
}

func downgradeNullBranch(node map[string]any) {
	branches, ok := node["anyOf"].([]any)
	if !ok {
		return
	}
	kept := make([]any, 0, len(branches))
	for _, b := range branches {
		if !isNullBranch(b) {
			kept = append(kept, b)
		}
	}
	if len(kept) == len(branches) {
		return
	}
	node["nullable"] = true
	if len(kept) != 1 {
		node["anyOf"] = kept
		return
	}
	delete(node, "anyOf")
	only, _ := kept[0].(map[string]any)
	if _, isRef := only["$ref"]; isRef {
		// siblings of $ref are ignored in 3.0
		node["allOf"] = []any{only}
		return
	}
	for k, v := range only {
		if _, exists := node[k]; !exists {
			node[k] = v
		}
	}
}
