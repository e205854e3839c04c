package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/mark3labs/typeprovider/internal/schema"
)

// placeholder marks references produced by the converter so they can be
// rewritten to public component URIs afterwards.
const placeholder = "__SCHEMA__PLACEHOLDER__"

const tempID = "GEN"

var placeholderRef = regexp.MustCompile(`"__SCHEMA__PLACEHOLDER__#/\$defs/(.+?)"`)

// ComponentName returns the public component name of id for dir. Input
// components are suffixed, output components keep the bare id.
func ComponentName(id string, dir schema.Direction) string {
	if dir == schema.Input {
		return id + "Input"
	}
	return id
}

// ReferenceURI returns the $ref value pointing at the component of id.
func ReferenceURI(id string, dir schema.Direction) string {
	return componentPrefix + ComponentName(id, dir)
}

// SchemaToJSON converts one definition into a fragment for dir and ver.
// Definitions registered with an id in reg become a single $ref; anything
// else is converted inline, with nested registered definitions referenced.
func SchemaToJSON(def any, reg *schema.Registry, dir schema.Direction, ver Version) (map[string]any, error) {
	t, err := Resolve(def)
	if err != nil {
		return nil, err
	}
	if id := reg.ID(t); id != "" {
		return map[string]any{"$ref": ReferenceURI(id, dir)}, nil
	}

	tmp := schema.NewRegistry()
	if err := tmp.Add(t, schema.Meta{ID: tempID}); err != nil {
		return nil, err
	}
	res, err := schema.ToJSONSchema(tmp, schema.ConvertOptions{
		Direction:       dir,
		Unrepresentable: schema.UnrepresentableAny,
		Cycles:          schema.CyclesRef,
		Metadata:        reg,
		URI:             func(id string) string { return placeholder + "#/$defs/" + id },
		Override:        DirectionOverride(dir),
		AnonymousRoots:  true,
	})
	if err != nil {
		return nil, err
	}

	fragment, err := replacePlaceholders(res.Schemas[tempID], reg, dir)
	if err != nil {
		return nil, err
	}
	return ConvertSchemaVersion(fragment, ver), nil
}

// LocalDefsPrefix starts references into the $defs bucket of the fragment
// itself. Assembled documents move those entries into components.schemas.
const LocalDefsPrefix = "#/$defs/"

// replacePlaceholders points references to registered ids at their public
// component and every other reference at the local $defs bucket.
func replacePlaceholders(fragment map[string]any, reg *schema.Registry, dir schema.Direction) (map[string]any, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fragment); err != nil {
		return nil, fmt.Errorf("encode fragment: %w", err)
	}
	replaced := placeholderRef.ReplaceAllFunc(buf.Bytes(), func(match []byte) []byte {
		id := string(placeholderRef.FindSubmatch(match)[1])
		if _, ok := reg.Lookup(id); ok {
			return []byte(`"` + ReferenceURI(id, dir) + `"`)
		}
		return []byte(`"` + LocalDefsPrefix + id + `"`)
	})
	var out map[string]any
	if err := json.Unmarshal(replaced, &out); err != nil {
		return nil, fmt.Errorf("decode fragment: %w", err)
	}
	return out, nil
}
