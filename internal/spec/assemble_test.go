package spec

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/mark3labs/typeprovider/internal/openapi"
	"github.com/mark3labs/typeprovider/internal/schema"
)

const buildDefinitions = `
types:
  Group:
    id: Group
    type: object
    properties:
      name: string
  User:
    id: User
    type: object
    properties:
      id: {type: string, format: uuid}
      name: {type: string, description: Display name}
      groups: {type: array, items: {ref: Group}}
      createdAt: {type: date, optional: true}
  IDParams:
    id: IDParams
    type: object
    properties:
      id: {type: string, format: uuid}
routes:
  - method: GET
    url: /users/:id
    operationId: getUser
    params: {ref: IDParams}
    querystring:
      type: object
      properties:
        expand: {type: boolean, optional: true}
    headers:
      type: object
      properties:
        x-trace: {type: string, description: Trace id}
    response:
      200: {ref: User}
      404: undefined
  - method: POST
    url: /users
    body: {ref: User}
    response:
      201: {ref: User}
  - method: DELETE
    url: /users/:id
    hide: true
  - method: GET
    url: /ping
`

func baseDocument(version string) *Document {
	return &Document{Object: openapi.DocumentObject{OpenAPI: map[string]any{
		"openapi": version,
		"info":    map[string]any{"title": "Users", "version": "1.0.0"},
		"paths": map[string]any{
			"/health": map[string]any{"get": map[string]any{
				"responses": map[string]any{"200": map[string]any{"description": "ok"}},
			}},
		},
	}}}
}

func buildSample(t *testing.T, version string) (*Document, map[string]any) {
	t.Helper()
	defs, err := ParseDefinitions([]byte(buildDefinitions))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base := baseDocument(version)
	out, err := Build(base, defs)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return base, out
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestOpenAPIPath(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"/users":           "/users",
		"/users/:id":       "/users/{id}",
		"/a/:b/c/:d_e":     "/a/{b}/c/{d_e}",
		"/files/{already}": "/files/{already}",
	}
	for in, want := range cases {
		if got := OpenAPIPath(in); got != want {
			t.Fatalf("OpenAPIPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuild_PathsAndComponents(t *testing.T) {
	t.Parallel()
	base, out := buildSample(t, "3.1.0")

	paths := out["paths"].(map[string]any)
	if want := []string{"/health", "/ping", "/users", "/users/{id}"}; !reflect.DeepEqual(mapKeys(paths), want) {
		t.Fatalf("paths: got %v want %v", mapKeys(paths), want)
	}
	if item := paths["/users/{id}"].(map[string]any); !reflect.DeepEqual(mapKeys(item), []string{"get"}) {
		t.Fatalf("hidden DELETE must not be emitted: %v", mapKeys(item))
	}

	schemas := out["components"].(map[string]any)["schemas"].(map[string]any)
	if want := []string{"Group", "GroupInput", "User", "UserInput"}; !reflect.DeepEqual(mapKeys(schemas), want) {
		t.Fatalf("components: got %v want %v", mapKeys(schemas), want)
	}

	if got := mapKeys(base.Object.OpenAPI["paths"].(map[string]any)); !reflect.DeepEqual(got, []string{"/health"}) {
		t.Fatalf("base document modified: %v", got)
	}
	if _, ok := base.Object.OpenAPI["components"]; ok {
		t.Fatalf("base document gained components")
	}
}

func TestBuild_Operation(t *testing.T) {
	t.Parallel()
	_, out := buildSample(t, "3.1.0")
	paths := out["paths"].(map[string]any)

	get := paths["/users/{id}"].(map[string]any)["get"].(map[string]any)
	if get["operationId"] != "getUser" {
		t.Fatalf("operationId not passed through: %+v", get)
	}
	params := get["parameters"].([]any)
	type loc struct {
		name, in string
		required bool
	}
	var got []loc
	for _, p := range params {
		pm := p.(map[string]any)
		got = append(got, loc{pm["name"].(string), pm["in"].(string), pm["required"].(bool)})
	}
	want := []loc{{"id", "path", true}, {"expand", "query", false}, {"x-trace", "header", true}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parameters: got %+v want %+v", got, want)
	}
	if params[2].(map[string]any)["description"] != "Trace id" {
		t.Fatalf("header description: %+v", params[2])
	}

	responses := get["responses"].(map[string]any)
	ok := responses["200"].(map[string]any)
	schemaRef := ok["content"].(map[string]any)["application/json"].(map[string]any)["schema"]
	if !reflect.DeepEqual(schemaRef, map[string]any{"$ref": "#/components/schemas/User"}) {
		t.Fatalf("200 schema: %+v", schemaRef)
	}
	notFound := responses["404"].(map[string]any)
	if _, has := notFound["content"]; has || notFound["description"] != "Default Response" {
		t.Fatalf("404 should have no content: %+v", notFound)
	}

	post := paths["/users"].(map[string]any)["post"].(map[string]any)
	body := post["requestBody"].(map[string]any)
	if body["required"] != true {
		t.Fatalf("requestBody should be required: %+v", body)
	}
	bodySchema := body["content"].(map[string]any)["application/json"].(map[string]any)["schema"]
	if !reflect.DeepEqual(bodySchema, map[string]any{"$ref": "#/components/schemas/UserInput"}) {
		t.Fatalf("body schema: %+v", bodySchema)
	}

	ping := paths["/ping"].(map[string]any)["get"].(map[string]any)
	if !reflect.DeepEqual(mapKeys(ping["responses"].(map[string]any)), []string{"200"}) {
		t.Fatalf("ping responses: %+v", ping)
	}
}

func TestBuild_RejectsSwaggerBase(t *testing.T) {
	t.Parallel()
	defs, err := ParseDefinitions([]byte(buildDefinitions))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base := &Document{Object: openapi.DocumentObject{Swagger: map[string]any{"swagger": "2.0"}}}
	_, err = Build(base, defs)
	var ude *openapi.UnsupportedDialectError
	if !errors.As(err, &ude) {
		t.Fatalf("expected UnsupportedDialectError, got %v", err)
	}
}

func TestBuild_IDAsTitle(t *testing.T) {
	t.Parallel()
	defs, err := ParseDefinitions([]byte(buildDefinitions))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Build(baseDocument("3.0.3"), defs, WithTransformOptions(openapi.WithIDAsTitle(true)))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	user := out["components"].(map[string]any)["schemas"].(map[string]any)["User"].(map[string]any)
	if user["title"] != "User" {
		t.Fatalf("expected title from id, got %+v", user["title"])
	}
}

func TestBuild_Filters(t *testing.T) {
	t.Parallel()
	defs, err := ParseDefinitions([]byte(`
types:
  Pet: {id: Pet, type: object, properties: {name: string}}
routes:
  - {method: GET, url: /pets, tags: [pets], response: {200: {type: array, items: {ref: Pet}}}}
  - {method: POST, url: /pets, tags: [pets, admin], body: {ref: Pet}}
  - {method: GET, url: /status, tags: [ops]}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cases := map[string]struct {
		opts  []BuildOption
		paths []string
		pets  []string
	}{
		"include tag":  {opts: []BuildOption{WithIncludeTags([]string{"pets"})}, paths: []string{"/health", "/pets"}, pets: []string{"get", "post"}},
		"exclude tag":  {opts: []BuildOption{WithExcludeTags([]string{"admin"})}, paths: []string{"/health", "/pets", "/status"}, pets: []string{"get"}},
		"methods":      {opts: []BuildOption{WithMethods([]string{"post"})}, paths: []string{"/health", "/pets"}, pets: []string{"post"}},
		"path pattern": {opts: []BuildOption{WithPathPatterns([]string{"^/status$"})}, paths: []string{"/health", "/status"}},
	}
	for name, tc := range cases {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			out, err := Build(baseDocument("3.1.0"), defs, tc.opts...)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			paths := out["paths"].(map[string]any)
			if got := mapKeys(paths); !reflect.DeepEqual(got, tc.paths) {
				t.Fatalf("paths: got %v want %v", got, tc.paths)
			}
			if tc.pets != nil {
				if got := mapKeys(paths["/pets"].(map[string]any)); !reflect.DeepEqual(got, tc.pets) {
					t.Fatalf("/pets: got %v want %v", got, tc.pets)
				}
			}
		})
	}

	_, err = Build(baseDocument("3.1.0"), defs, WithPathPatterns([]string{"("}))
	var se *SpecError
	if !errors.As(err, &se) || se.Code != InputError {
		t.Fatalf("invalid pattern: expected InputError, got %v", err)
	}
}

const recursiveDefinitions = `
types:
  Node:
    type: object
    properties:
      value: string
      children: {type: array, items: {ref: Node}}
  Wrapper:
    id: Wrapper
    type: object
    properties:
      tree: {ref: Node}
routes:
  - method: POST
    url: /trees
    querystring:
      type: object
      properties:
        filter: {ref: Node, optional: true}
    body: {ref: Node}
    response:
      200: {ref: Wrapper}
`

// collectDocRefs returns every $ref value of node and whether a $defs key
// was seen.
func collectDocRefs(node any, refs map[string]bool) (sawDefs bool) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			if k == "$defs" {
				sawDefs = true
			}
			if k == "$ref" {
				if s, ok := child.(string); ok {
					refs[s] = true
				}
				continue
			}
			if collectDocRefs(child, refs) {
				sawDefs = true
			}
		}
	case []any:
		for _, child := range v {
			if collectDocRefs(child, refs) {
				sawDefs = true
			}
		}
	}
	return sawDefs
}

func TestBuild_RecursiveDefinitionsWithoutID(t *testing.T) {
	t.Parallel()
	for _, version := range []string{"3.0.3", "3.1.0"} {
		version := version
		t.Run(version, func(t *testing.T) {
			t.Parallel()
			defs, err := ParseDefinitions([]byte(recursiveDefinitions))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			out, err := Build(baseDocument(version), defs)
			if err != nil {
				t.Fatalf("build: %v", err)
			}

			refs := make(map[string]bool)
			if collectDocRefs(out, refs) {
				t.Fatalf("assembled document still carries $defs")
			}
			schemas := out["components"].(map[string]any)["schemas"].(map[string]any)
			for ref := range refs {
				name, ok := strings.CutPrefix(ref, "#/components/schemas/")
				if !ok {
					t.Fatalf("reference %q does not point at a component", ref)
				}
				if _, ok := schemas[name]; !ok {
					t.Fatalf("reference %q dangles; components: %v", ref, mapKeys(schemas))
				}
			}
			if _, ok := schemas["Wrapper"]; !ok {
				t.Fatalf("Wrapper missing: %v", mapKeys(schemas))
			}

			post := out["paths"].(map[string]any)["/trees"].(map[string]any)["post"].(map[string]any)
			body := post["requestBody"].(map[string]any)["content"].(map[string]any)["application/json"].(map[string]any)["schema"].(map[string]any)
			if len(body) != 1 || !strings.HasPrefix(body["$ref"].(string), "#/components/schemas/AnonymousSchema") {
				t.Fatalf("body should reference a hoisted component: %v", body)
			}

			if err := ValidateDocument(context.Background(), out); err != nil {
				t.Fatalf("validate: %v", err)
			}
		})
	}
}

func TestEmptyResponse(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		def  any
		want bool
	}{
		"undefined":      {def: schema.Undefined(), want: true},
		"lazy undefined": {def: schema.Lazy(func() *schema.Type { return schema.Undefined() }), want: true},
		"lazy to nil":    {def: schema.Lazy(func() *schema.Type { return nil }), want: false},
		"string":         {def: schema.String(), want: false},
		"not a type":     {def: map[string]any{}, want: false},
	}
	for name, tc := range cases {
		if got := emptyResponse(tc.def); got != tc.want {
			t.Fatalf("%s: got %v want %v", name, got, tc.want)
		}
	}
}
