package openapi

import (
	"reflect"
	"sort"
	"testing"
)

func ref(name string) map[string]any {
	return map[string]any{"$ref": componentPrefix + name}
}

func jsonResponse(schema map[string]any) map[string]any {
	return map[string]any{
		"content": map[string]any{
			"application/json": map[string]any{"schema": schema},
		},
	}
}

func docWith(paths map[string]any, schemas map[string]any) map[string]any {
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": "test", "version": "1.0.0"},
		"paths":   paths,
		"components": map[string]any{
			"schemas": schemas,
		},
	}
}

func schemaNames(t *testing.T, doc map[string]any) []string {
	t.Helper()
	names := make([]string, 0)
	for name := range componentSchemas(doc) {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func chainDoc() map[string]any {
	return docWith(
		map[string]any{
			"/chain": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{"200": jsonResponse(ref("A"))},
				},
			},
		},
		map[string]any{
			"A":    map[string]any{"type": "object", "properties": map[string]any{"b": ref("B")}},
			"B":    map[string]any{"type": "array", "items": ref("C")},
			"C":    map[string]any{"type": "string"},
			"Dead": map[string]any{"type": "object", "properties": map[string]any{"a": ref("A")}},
		},
	)
}

func TestPrune_KeepsChainsAndDropsDeadComponents(t *testing.T) {
	t.Parallel()
	got := schemaNames(t, Prune(chainDoc()))
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("retained components: got %v, want %v", got, want)
	}
}

func TestPrune_NoReferencesDropsEverything(t *testing.T) {
	t.Parallel()
	doc := docWith(
		map[string]any{"/ping": map[string]any{"get": map[string]any{"responses": map[string]any{"204": map[string]any{"description": "ok"}}}}},
		map[string]any{"A": map[string]any{"type": "string"}, "B": ref("A")},
	)
	if got := schemaNames(t, Prune(doc)); len(got) != 0 {
		t.Fatalf("expected empty components, got %v", got)
	}
}

func TestPrune_IsIdempotent(t *testing.T) {
	t.Parallel()
	once := Prune(chainDoc())
	twice := Prune(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second prune changed the document:\n%v\n%v", once, twice)
	}
}

func TestPrune_DoesNotModifyInput(t *testing.T) {
	t.Parallel()
	doc := chainDoc()
	out := Prune(doc)
	if _, ok := componentSchemas(doc)["Dead"]; !ok {
		t.Fatalf("input document lost a component")
	}
	componentSchemas(out)["A"].(map[string]any)["type"] = "mutated"
	if componentSchemas(doc)["A"].(map[string]any)["type"] != "object" {
		t.Fatalf("output shares nodes with input")
	}
}

func TestPrune_SelfCycleSurvives(t *testing.T) {
	t.Parallel()
	doc := docWith(
		map[string]any{
			"/nodes": map[string]any{"get": map[string]any{
				"responses": map[string]any{"200": jsonResponse(ref("Node"))},
			}},
		},
		map[string]any{
			"Node": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"value":    map[string]any{"type": "string"},
					"children": map[string]any{"type": "array", "items": ref("Node")},
				},
			},
			"Unused": map[string]any{"type": "number"},
		},
	)
	if got := schemaNames(t, Prune(doc)); !reflect.DeepEqual(got, []string{"Node"}) {
		t.Fatalf("got %v", got)
	}
}

func TestPrune_MutualCycleKeptOrDroppedTogether(t *testing.T) {
	t.Parallel()
	schemas := func() map[string]any {
		return map[string]any{
			"X": map[string]any{"type": "object", "properties": map[string]any{"y": ref("Y")}},
			"Y": map[string]any{"type": "object", "properties": map[string]any{"x": ref("X")}},
		}
	}

	unused := docWith(map[string]any{}, schemas())
	if got := schemaNames(t, Prune(unused)); len(got) != 0 {
		t.Fatalf("unreferenced cycle should be dropped, got %v", got)
	}

	used := docWith(map[string]any{
		"/x": map[string]any{"post": map[string]any{
			"requestBody": jsonResponse(ref("Y")),
		}},
	}, schemas())
	if got := schemaNames(t, Prune(used)); !reflect.DeepEqual(got, []string{"X", "Y"}) {
		t.Fatalf("referenced cycle should be kept, got %v", got)
	}
}

func TestPrune_ReferencesInsideComponentsDoNotCount(t *testing.T) {
	t.Parallel()
	doc := docWith(map[string]any{}, map[string]any{"A": map[string]any{"type": "string"}})
	doc["components"].(map[string]any)["responses"] = map[string]any{
		"NotFound": jsonResponse(ref("A")),
	}
	if got := schemaNames(t, Prune(doc)); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
	if _, ok := Prune(doc)["components"].(map[string]any)["responses"]; !ok {
		t.Fatalf("non-schema components must be preserved")
	}
}

func TestPrune_TerminatesOnCyclicTree(t *testing.T) {
	t.Parallel()
	loop := map[string]any{"schema": ref("A")}
	loop["self"] = loop
	doc := docWith(map[string]any{"/loop": loop}, map[string]any{
		"A": map[string]any{"type": "string"},
		"B": map[string]any{"type": "string"},
	})

	out := Prune(doc)
	if got := schemaNames(t, out); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("got %v", got)
	}
	copied := out["paths"].(map[string]any)["/loop"].(map[string]any)
	if reflect.ValueOf(copied["self"]).Pointer() != reflect.ValueOf(copied).Pointer() {
		t.Fatalf("cycle shape not preserved in copy")
	}
}

func TestReachableComponents_IgnoresForeignRefs(t *testing.T) {
	t.Parallel()
	doc := docWith(map[string]any{
		"/ext": map[string]any{"get": map[string]any{
			"responses": map[string]any{"200": jsonResponse(map[string]any{"$ref": "https://example.com/schemas/pet.json"})},
		}},
	}, map[string]any{"pet.json": map[string]any{"type": "object"}})
	if got := schemaNames(t, Prune(doc)); len(got) != 0 {
		t.Fatalf("external refs must not keep components, got %v", got)
	}
}
