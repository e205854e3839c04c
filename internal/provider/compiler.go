package provider

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/typeprovider/internal/openapi"
	"github.com/mark3labs/typeprovider/internal/schema"
)

// Result is the outcome of a validation. Exactly one of Value and Error is
// meaningful.
type Result struct {
	Value any
	Error *SchemaValidationError
}

// Validator validates raw input. It never panics on bad input.
type Validator func(raw any) Result

// Serializer renders an outgoing value after validating it.
type Serializer func(value any) ([]byte, error)

// CompileValidator returns the validator for def. def must be a
// *schema.Type; anything else fails with *openapi.InvalidSchemaError.
func CompileValidator(def any) (Validator, error) {
	t, err := openapi.Resolve(def)
	if err != nil {
		return nil, err
	}
	return func(raw any) Result {
		out, err := t.Parse(raw)
		if err != nil {
			var pe *schema.ParseError
			if !errors.As(err, &pe) {
				pe = &schema.ParseError{Issues: []schema.Issue{{Code: schema.CodeCustom, Message: err.Error()}}}
			}
			return Result{Error: newSchemaValidationError(pe)}
		}
		return Result{Value: out}
	}, nil
}

// Skip can be returned by a replacer to drop a key from the output.
var Skip = skip{}

type skip struct{}

// Replacer is called for every value before encoding, starting with the
// root under the key "". Its result replaces the value.
type Replacer func(key string, value any) any

type serializerSettings struct {
	replacer Replacer
}

type SerializerOption func(*serializerSettings)

func WithReplacer(fn Replacer) SerializerOption {
	return func(s *serializerSettings) { s.replacer = fn }
}

// CompileSerializer returns the serializer for the response definition def
// of the route method+url. A value failing def yields a
// *ResponseSerializationError. A definition that allows an absent value
// serializes nil to an empty payload.
func CompileSerializer(def any, method, url string, opts ...SerializerOption) (Serializer, error) {
	t, err := openapi.Resolve(def)
	if err != nil {
		return nil, err
	}
	var settings serializerSettings
	for _, opt := range opts {
		opt(&settings)
	}
	return func(value any) ([]byte, error) {
		out, err := t.Parse(value)
		if err != nil {
			return nil, &ResponseSerializationError{Method: method, URL: url, Cause: err}
		}
		if out == nil && absentOnOutput(t) {
			return []byte{}, nil
		}
		if settings.replacer != nil {
			out = replace(settings.replacer, "", out)
			if out == Skip {
				return []byte{}, nil
			}
		}
		b, err := encode(out)
		if err != nil {
			return nil, &ResponseSerializationError{Method: method, URL: url, Cause: err}
		}
		return b, nil
	}, nil
}

func absentOnOutput(t *schema.Type) bool {
	r := t.Resolve()
	if r == nil {
		return false
	}
	switch r.Kind() {
	case schema.KindUndefined, schema.KindOptional:
		return true
	}
	return false
}

func replace(fn Replacer, key string, v any) any {
	v = fn(key, v)
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if r := replace(fn, k, child); r != Skip {
				out[k] = r
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			r := replace(fn, fmt.Sprint(i), child)
			if r == Skip {
				r = nil
			}
			out[i] = r
		}
		return out
	}
	return v
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
