package openapi

import (
	"github.com/mark3labs/typeprovider/internal/schema"
)

// RegistryOptions tunes RegistryToJSON.
type RegistryOptions struct {
	// IDAsTitle sets title to the registered id when no title is present.
	IDAsTitle bool
}

// RegistryToJSON converts every definition of reg that has an id into a
// component for dir, keyed by its public component name. The registry is
// converted in one pass so registered definitions reference each other.
func RegistryToJSON(reg *schema.Registry, dir schema.Direction, ver Version, opts RegistryOptions) (map[string]any, error) {
	uri := func(id string) string {
		if _, ok := reg.Lookup(id); ok {
			return ReferenceURI(id, dir)
		}
		return LocalDefsPrefix + id
	}
	res, err := schema.ToJSONSchema(reg, schema.ConvertOptions{
		Direction:       dir,
		Unrepresentable: schema.UnrepresentableAny,
		Cycles:          schema.CyclesRef,
		URI:             uri,
		Override:        DirectionOverride(dir),
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(res.IDs))
	for _, id := range res.IDs {
		component := ConvertSchemaVersion(res.Schemas[id], ver)
		if _, ok := component["title"]; !ok && opts.IDAsTitle {
			component["title"] = id
		}
		out[ComponentName(id, dir)] = component
	}
	return out, nil
}

// MergeComponents combines the input and output component sets. An output
// name that is also an input name is a collision.
func MergeComponents(input, output map[string]any) (map[string]any, error) {
	for _, name := range sortedKeys(output) {
		if _, ok := input[name]; ok {
			return nil, &ComponentNameCollisionError{Name: name}
		}
	}
	merged := make(map[string]any, len(input)+len(output))
	for k, v := range input {
		merged[k] = v
	}
	for k, v := range output {
		merged[k] = v
	}
	return merged, nil
}
