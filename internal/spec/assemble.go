package spec

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mark3labs/typeprovider/internal/openapi"
	"github.com/mark3labs/typeprovider/internal/schema"
)

// operationFields are route fields copied onto the OpenAPI operation object.
var operationFields = []string{"summary", "description", "operationId", "tags", "deprecated", "security", "externalDocs"}

var pathParam = regexp.MustCompile(`:([A-Za-z0-9_]+)`)

// Build transforms every route of defs that passes the filters, adds the
// visible ones to the paths of base and completes the document with the
// registry components. base is not modified.
func Build(base *Document, defs *Definitions, opts ...BuildOption) (map[string]any, error) {
	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}
	ver, err := openapi.DetectVersion(base.Object)
	if err != nil {
		return nil, err
	}
	tr := openapi.NewTransformer(append([]openapi.Option{openapi.WithRegistry(defs.Registry)}, cfg.transform...)...)

	paths := make(map[string]any)
	if existing, ok := base.Object.OpenAPI["paths"].(map[string]any); ok {
		for k, v := range existing {
			paths[k] = v
		}
	}
	for _, op := range defs.Routes {
		if !cfg.allow(op) {
			continue
		}
		res, err := tr.Transform(base.Object, op)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", op.Method, op.URL, err)
		}
		if hidden, _ := res.Schema["hide"].(bool); hidden {
			continue
		}
		operation, err := Operation(op, res, ver)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", op.Method, op.URL, err)
		}
		path := OpenAPIPath(op.URL)
		item := make(map[string]any)
		if prev, ok := paths[path].(map[string]any); ok {
			for k, v := range prev {
				item[k] = v
			}
		}
		item[strings.ToLower(op.Method)] = operation
		paths[path] = item
	}

	object := make(map[string]any, len(base.Object.OpenAPI)+1)
	for k, v := range base.Object.OpenAPI {
		object[k] = v
	}
	object["paths"] = paths
	return tr.TransformObject(openapi.DocumentObject{OpenAPI: object})
}

// OpenAPIPath rewrites ":name" route parameters to "{name}".
func OpenAPIPath(url string) string {
	return pathParam.ReplaceAllString(url, "{$1}")
}

// Operation renders a transformed route as an OpenAPI operation object.
func Operation(op openapi.Operation, res *openapi.TransformedOperation, ver openapi.Version) (map[string]any, error) {
	out := make(map[string]any)
	if res.Schema == nil {
		out["responses"] = map[string]any{"200": map[string]any{"description": "Default Response"}}
		return out, nil
	}
	for _, key := range operationFields {
		if v, ok := res.Schema[key]; ok {
			out[key] = v
		}
	}

	var params []any
	for _, loc := range []struct{ part, in string }{
		{"params", "path"},
		{"querystring", "query"},
		{"headers", "header"},
	} {
		fragment, ok := res.Schema[loc.part].(map[string]any)
		if !ok {
			continue
		}
		if _, isRef := fragment["$ref"]; isRef {
			inlined, err := inlineFragment(op, loc.part, ver)
			if err != nil {
				return nil, err
			}
			fragment = inlined
		}
		params = append(params, parameters(localRoot(fragment), loc.in)...)
	}
	if len(params) > 0 {
		out["parameters"] = params
	}

	if body, ok := res.Schema["body"].(map[string]any); ok {
		out["requestBody"] = map[string]any{
			"required": true,
			"content":  map[string]any{"application/json": map[string]any{"schema": body}},
		}
	}

	responses := make(map[string]any)
	if rs, ok := res.Schema["response"].(map[string]any); ok {
		for code, v := range rs {
			fragment, _ := v.(map[string]any)
			resp := map[string]any{"description": responseDescription(fragment)}
			if !emptyResponse(op.Schema.Response[code]) {
				resp["content"] = map[string]any{"application/json": map[string]any{"schema": fragment}}
			}
			responses[code] = resp
		}
	}
	if len(responses) == 0 {
		responses["200"] = map[string]any{"description": "Default Response"}
	}
	out["responses"] = responses
	return out, nil
}

// inlineFragment converts a registered request part without component
// references so its properties can become parameters.
func inlineFragment(op openapi.Operation, part string, ver openapi.Version) (map[string]any, error) {
	var def any
	switch part {
	case "params":
		def = op.Schema.Params
	case "querystring":
		def = op.Schema.Querystring
	case "headers":
		def = op.Schema.Headers
	}
	return openapi.SchemaToJSON(def, schema.NewRegistry(), schema.Input, ver)
}

// localRoot returns the $defs entry a recursive fragment points at, with the
// bucket attached, so its properties can be listed.
func localRoot(fragment map[string]any) map[string]any {
	ref, _ := fragment["$ref"].(string)
	if !strings.HasPrefix(ref, openapi.LocalDefsPrefix) {
		return fragment
	}
	defs, _ := fragment["$defs"].(map[string]any)
	body, ok := defs[strings.TrimPrefix(ref, openapi.LocalDefsPrefix)].(map[string]any)
	if !ok {
		return fragment
	}
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		out[k] = v
	}
	out["$defs"] = defs
	return out
}

func parameters(fragment map[string]any, in string) []any {
	props, _ := fragment["properties"].(map[string]any)
	required := make(map[string]bool)
	switch list := fragment["required"].(type) {
	case []any:
		for _, name := range list {
			if s, ok := name.(string); ok {
				required[s] = true
			}
		}
	case []string:
		for _, s := range list {
			required[s] = true
		}
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	// Recursive parts keep their $defs next to every parameter schema; the
	// document assembly moves them into components.
	defs, _ := fragment["$defs"].(map[string]any)

	out := make([]any, 0, len(names))
	for _, name := range names {
		p := map[string]any{
			"name":     name,
			"in":       in,
			"required": in == "path" || required[name],
			"schema":   withDefs(props[name], defs),
		}
		if s, ok := props[name].(map[string]any); ok {
			if desc, ok := s["description"].(string); ok {
				p["description"] = desc
			}
		}
		out = append(out, p)
	}
	return out
}

func withDefs(prop any, defs map[string]any) any {
	m, ok := prop.(map[string]any)
	if !ok || len(defs) == 0 {
		return prop
	}
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out["$defs"] = defs
	return out
}

func responseDescription(fragment map[string]any) string {
	if desc, ok := fragment["description"].(string); ok && desc != "" {
		return desc
	}
	return "Default Response"
}

func emptyResponse(def any) bool {
	t, ok := def.(*schema.Type)
	if !ok {
		return false
	}
	resolved := t.Resolve()
	return resolved != nil && resolved.Kind() == schema.KindUndefined
}
