package openapi

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mark3labs/typeprovider/internal/schema"
)

func openapiDoc(version string) DocumentObject {
	return DocumentObject{OpenAPI: map[string]any{
		"openapi": version,
		"info":    map[string]any{"title": "test", "version": "1.0.0"},
	}}
}

func TestTransform_HideDiscardsEverythingElse(t *testing.T) {
	t.Parallel()
	tr := NewTransformer(WithRegistry(schema.NewRegistry()))
	got, err := tr.Transform(openapiDoc("3.1.0"), Operation{
		Method: "GET",
		URL:    "/hidden",
		Schema: &RouteSchema{
			Hide:     true,
			Body:     schema.String(),
			Response: map[string]any{"200": schema.String()},
			Fields:   map[string]any{"tags": []any{"internal"}},
		},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	want := &TransformedOperation{Schema: map[string]any{"hide": true}, URL: "/hidden"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
}

func TestTransform_NoSchemaPassesThrough(t *testing.T) {
	t.Parallel()
	got, err := NewTransformer().Transform(openapiDoc("3.0.3"), Operation{Method: "GET", URL: "/plain"})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got.Schema != nil || got.URL != "/plain" {
		t.Fatalf("got %+v", got)
	}
}

func TestTransform_NoSchemaIgnoresOpenAPIVersion(t *testing.T) {
	t.Parallel()
	tr := NewTransformer(WithRegistry(schema.NewRegistry()))
	plain := Operation{Method: "GET", URL: "/plain"}
	for _, doc := range []DocumentObject{
		{OpenAPI: map[string]any{"info": map[string]any{"title": "x"}}},
		openapiDoc("4.0.0"),
	} {
		got, err := tr.Transform(doc, plain)
		if err != nil {
			t.Fatalf("transform: %v", err)
		}
		if got.Schema != nil || got.URL != "/plain" {
			t.Fatalf("got %+v", got)
		}
	}

	var de *UnsupportedDialectError
	if _, err := tr.Transform(DocumentObject{Swagger: map[string]any{"swagger": "2.0"}}, plain); !errors.As(err, &de) {
		t.Fatalf("swagger must be rejected even without a schema, got %v", err)
	}
	withSchema := Operation{Method: "GET", URL: "/typed", Schema: &RouteSchema{Body: schema.String()}}
	if _, err := tr.Transform(openapiDoc("4.0.0"), withSchema); !errors.As(err, &de) {
		t.Fatalf("unknown version with a schema: expected dialect error, got %v", err)
	}
}

func TestTransform_RejectsSwagger(t *testing.T) {
	t.Parallel()
	tr := NewTransformer(WithRegistry(schema.NewRegistry()))
	op := Operation{Method: "GET", URL: "/", Schema: &RouteSchema{Body: schema.String()}}
	for _, doc := range []DocumentObject{
		{Swagger: map[string]any{"swagger": "2.0"}},
		{OpenAPI: map[string]any{"openapi": "2.0"}},
	} {
		got, err := tr.Transform(doc, op)
		var de *UnsupportedDialectError
		if !errors.As(err, &de) || got != nil {
			t.Fatalf("Transform: expected dialect error and no result, got %+v, %v", got, err)
		}
		obj, err := tr.TransformObject(doc)
		if !errors.As(err, &de) || obj != nil {
			t.Fatalf("TransformObject: expected dialect error and no result, got %v, %v", obj, err)
		}
	}
}

func TestTransform_RequestAndResponseDirections(t *testing.T) {
	t.Parallel()
	reg := schema.NewRegistry()
	user := reg.MustAdd(schema.Object(schema.Prop("id", schema.String())), schema.Meta{ID: "User"})
	tr := NewTransformer(WithRegistry(reg))

	got, err := tr.Transform(openapiDoc("3.1.0"), Operation{
		Method: "POST",
		URL:    "/users/:id",
		Schema: &RouteSchema{
			Params:      schema.Object(schema.Prop("id", schema.String())),
			Querystring: schema.Object(schema.Prop("verbose", schema.Boolean().Optional())),
			Body:        user,
			Response:    map[string]any{"201": user, "400": schema.Object(schema.Prop("message", schema.String()))},
			Fields: map[string]any{
				"tags":    []any{"users"},
				"summary": "create",
				"hide":    true,
			},
		},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if got.URL != "/users/:id" {
		t.Fatalf("url: got %q", got.URL)
	}
	if !reflect.DeepEqual(got.Schema["body"], ref("UserInput")) {
		t.Fatalf("body: got %v", got.Schema["body"])
	}
	responses := got.Schema["response"].(map[string]any)
	if !reflect.DeepEqual(responses["201"], ref("User")) {
		t.Fatalf("201: got %v", responses["201"])
	}
	if responses["400"].(map[string]any)["type"] != "object" {
		t.Fatalf("400: got %v", responses["400"])
	}
	if _, ok := got.Schema["headers"]; ok {
		t.Fatalf("absent request parts must not be emitted")
	}
	if got.Schema["summary"] != "create" || got.Schema["tags"] == nil {
		t.Fatalf("passthrough fields lost: %v", got.Schema)
	}
	if _, ok := got.Schema["hide"]; ok {
		t.Fatalf("reserved keys in Fields must not be passed through")
	}
	if got.Schema["querystring"].(map[string]any)["type"] != "object" {
		t.Fatalf("querystring: got %v", got.Schema["querystring"])
	}
}

func TestTransform_InvalidSchemaAborts(t *testing.T) {
	t.Parallel()
	_, err := NewTransformer(WithRegistry(schema.NewRegistry())).Transform(openapiDoc("3.1.0"), Operation{
		URL:    "/bad",
		Schema: &RouteSchema{Response: map[string]any{"200": map[string]any{"type": "string"}}},
	})
	var ise *InvalidSchemaError
	if !errors.As(err, &ise) {
		t.Fatalf("expected *InvalidSchemaError, got %v", err)
	}
}

func TestTransformObject_MergesAndPrunes(t *testing.T) {
	t.Parallel()
	reg := schema.NewRegistry()
	var group *schema.Type
	group = schema.Object(
		schema.Prop("name", schema.String()),
		schema.Prop("parent", schema.Lazy(func() *schema.Type { return group }).Optional()),
	)
	reg.MustAdd(group, schema.Meta{ID: "Group"})
	user := reg.MustAdd(schema.Object(
		schema.Prop("id", schema.String()),
		schema.Prop("createdAt", schema.Date()),
		schema.Prop("groups", schema.Array(group)),
	), schema.Meta{ID: "User"})
	reg.MustAdd(schema.Number(), schema.Meta{ID: "Unused"})

	tr := NewTransformer(WithRegistry(reg))
	base := openapiDoc("3.1.0")
	op, err := tr.Transform(base, Operation{
		Method: "POST",
		URL:    "/users",
		Schema: &RouteSchema{
			Body:     schema.Object(schema.Prop("groups", schema.Array(group))),
			Response: map[string]any{"200": user},
		},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	base.OpenAPI["paths"] = map[string]any{
		"/users": map[string]any{"post": map[string]any{
			"requestBody": jsonResponse(op.Schema["body"].(map[string]any)),
			"responses": map[string]any{
				"200": jsonResponse(op.Schema["response"].(map[string]any)["200"].(map[string]any)),
				"500": jsonResponse(ref("Error")),
			},
		}},
	}
	base.OpenAPI["components"] = map[string]any{
		"schemas": map[string]any{
			"User":   map[string]any{"type": "string"},
			"Error":  map[string]any{"type": "object"},
			"Legacy": map[string]any{"type": "object"},
		},
		"securitySchemes": map[string]any{"bearer": map[string]any{"type": "http", "scheme": "bearer"}},
	}

	doc, err := tr.TransformObject(base)
	if err != nil {
		t.Fatalf("transform object: %v", err)
	}
	got := keys(componentSchemas(doc))
	if want := []string{"Error", "Group", "GroupInput", "User"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("components: got %v, want %v", got, want)
	}

	userSchema := componentSchemas(doc)["User"].(map[string]any)
	if userSchema["type"] != "object" {
		t.Fatalf("generated component should replace the existing one: %v", userSchema)
	}
	createdAt := userSchema["properties"].(map[string]any)["createdAt"]
	if want := map[string]any{"type": "string", "format": "date-time"}; !reflect.DeepEqual(createdAt, want) {
		t.Fatalf("createdAt: got %v", createdAt)
	}
	if _, ok := doc["components"].(map[string]any)["securitySchemes"]; !ok {
		t.Fatalf("existing components lost")
	}
	if _, ok := base.OpenAPI["components"].(map[string]any)["schemas"].(map[string]any)["Legacy"]; !ok {
		t.Fatalf("input document was modified")
	}
}

func TestTransformObject_IDAsTitleAnd30(t *testing.T) {
	t.Parallel()
	reg := schema.NewRegistry()
	reg.MustAdd(schema.Object(schema.Prop("nick", schema.String().Nullable())), schema.Meta{ID: "Profile"})
	tr := NewTransformer(WithRegistry(reg), WithIDAsTitle(true))

	base := openapiDoc("3.0.3")
	base.OpenAPI["paths"] = map[string]any{
		"/profile": map[string]any{"get": map[string]any{
			"responses": map[string]any{"200": jsonResponse(ref("Profile"))},
		}},
	}
	doc, err := tr.TransformObject(base)
	if err != nil {
		t.Fatalf("transform object: %v", err)
	}
	profile := componentSchemas(doc)["Profile"].(map[string]any)
	if profile["title"] != "Profile" {
		t.Fatalf("title: got %v", profile["title"])
	}
	nick := profile["properties"].(map[string]any)["nick"]
	if want := map[string]any{"type": "string", "nullable": true}; !reflect.DeepEqual(nick, want) {
		t.Fatalf("nick: got %v", nick)
	}
	if _, ok := componentSchemas(doc)["ProfileInput"]; ok {
		t.Fatalf("unreferenced input component should be pruned")
	}
}

func TestTransformObject_CollisionFailsFast(t *testing.T) {
	t.Parallel()
	reg := schema.NewRegistry()
	reg.MustAdd(schema.String(), schema.Meta{ID: "Pet"})
	reg.MustAdd(schema.String(), schema.Meta{ID: "PetInput"})

	_, err := NewTransformer(WithRegistry(reg)).TransformObject(openapiDoc("3.1.0"))
	var ce *ComponentNameCollisionError
	if !errors.As(err, &ce) || ce.Name != "PetInput" {
		t.Fatalf("expected collision on PetInput, got %v", err)
	}
}

func TestTransformObject_HoistsAnonymousRecursion(t *testing.T) {
	t.Parallel()
	var node *schema.Type
	node = schema.Object(
		schema.Prop("value", schema.String()),
		schema.Prop("children", schema.Array(schema.Lazy(func() *schema.Type { return node }))),
	)
	reg := schema.NewRegistry()
	reg.MustAdd(schema.Object(schema.Prop("tree", node)), schema.Meta{ID: "Forest"})

	tr := NewTransformer(WithRegistry(reg))
	base := openapiDoc("3.0.3")
	op, err := tr.Transform(base, Operation{
		Method: "PUT",
		URL:    "/tree",
		Schema: &RouteSchema{
			Body:     node,
			Response: map[string]any{"200": reg.Types()[0]},
		},
	})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	body := op.Schema["body"].(map[string]any)
	base.OpenAPI["paths"] = map[string]any{
		"/tree": map[string]any{"put": map[string]any{
			"requestBody": jsonResponse(body),
			"responses": map[string]any{
				"200": jsonResponse(op.Schema["response"].(map[string]any)["200"].(map[string]any)),
			},
		}},
	}

	doc, err := tr.TransformObject(base)
	if err != nil {
		t.Fatalf("transform object: %v", err)
	}
	schemas := componentSchemas(doc)
	if got, want := keys(schemas), []string{"AnonymousSchema1", "AnonymousSchema3", "Forest"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("components: got %v, want %v", got, want)
	}

	put := doc["paths"].(map[string]any)["/tree"].(map[string]any)["put"].(map[string]any)
	hoisted := put["requestBody"].(map[string]any)["content"].(map[string]any)["application/json"].(map[string]any)["schema"]
	if !reflect.DeepEqual(hoisted, ref("AnonymousSchema3")) {
		t.Fatalf("body: got %v", hoisted)
	}
	items := schemas["AnonymousSchema3"].(map[string]any)["properties"].(map[string]any)["children"].(map[string]any)["items"]
	if !reflect.DeepEqual(items, ref("AnonymousSchema3")) {
		t.Fatalf("hoisted body should reference itself: %v", items)
	}
	forest := schemas["Forest"].(map[string]any)
	if _, ok := forest["$defs"]; ok {
		t.Fatalf("component kept its $defs: %v", forest)
	}
	if !reflect.DeepEqual(forest["properties"].(map[string]any)["tree"], ref("AnonymousSchema1")) {
		t.Fatalf("Forest.tree: got %v", forest["properties"])
	}
	if _, ok := body["$defs"]; !ok {
		t.Fatalf("transformed operation was modified: %v", body)
	}
}
