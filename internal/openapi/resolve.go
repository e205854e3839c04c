package openapi

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/typeprovider/internal/schema"
)

// Resolve returns v as a type definition. Anything that is not a non-nil
// *schema.Type is rejected, including maps that merely look like a schema.
func Resolve(v any) (*schema.Type, error) {
	if t, ok := v.(*schema.Type); ok && t != nil {
		return t, nil
	}
	return nil, &InvalidSchemaError{Value: render(v)}
}

func render(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
