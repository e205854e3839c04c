package openapi

import "fmt"

// InvalidSchemaError reports a value handed to the compiler that is not a
// type definition. Value is a JSON rendering of the offending value.
type InvalidSchemaError struct {
	Value string
}

func (e *InvalidSchemaError) Error() string {
	return fmt.Sprintf("openapi: invalid schema: %s", e.Value)
}

// ComponentNameCollisionError reports an output component whose name is
// already used by an input component.
type ComponentNameCollisionError struct {
	Name string
}

func (e *ComponentNameCollisionError) Error() string {
	return fmt.Sprintf("openapi: cannot create schema %q: name already taken by another user defined schema", e.Name)
}

// UnsupportedDialectError reports a document that targets a dialect other
// than OpenAPI 3.0 or 3.1.
type UnsupportedDialectError struct {
	Version string
}

func (e *UnsupportedDialectError) Error() string {
	if e.Version == "" {
		return "openapi: unsupported document object: missing openapi version"
	}
	return fmt.Sprintf("openapi: unsupported document dialect %q (only OpenAPI 3.0 and 3.1 are supported)", e.Version)
}
