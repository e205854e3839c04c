package provider

import (
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/mark3labs/typeprovider/internal/schema"
)

// Text codes attached by Categorize.
const (
	TextCodeSchemaValidation      = "SCHEMA_VALIDATION"
	TextCodeResponseSerialization = "RESPONSE_SERIALIZATION"
)

// Issue is one validation failure in the shape HTTP hosts report to clients.
type Issue struct {
	Keyword      string         `json:"keyword"`
	InstancePath string         `json:"instancePath"`
	SchemaPath   string         `json:"schemaPath"`
	Params       map[string]any `json:"params"`
	Message      string         `json:"message"`
}

// SchemaValidationError is returned in Result when input does not satisfy
// its definition.
type SchemaValidationError struct {
	Issues []Issue
	Cause  *schema.ParseError
}

func (e *SchemaValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		path := is.InstancePath
		if path == "" {
			path = "/"
		}
		msgs = append(msgs, fmt.Sprintf("%s %s", path, is.Message))
	}
	return "provider: schema validation failed: " + strings.Join(msgs, ", ")
}

func (e *SchemaValidationError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

func newSchemaValidationError(cause *schema.ParseError) *SchemaValidationError {
	issues := make([]Issue, 0, len(cause.Issues))
	for _, is := range cause.Issues {
		path := is.PathString()
		params := map[string]any{"code": is.Code}
		if is.Expected != "" {
			params["expected"] = is.Expected
		}
		if is.Received != "" {
			params["received"] = is.Received
		}
		issues = append(issues, Issue{
			Keyword:      is.Code,
			InstancePath: path,
			SchemaPath:   "#" + path + "/" + is.Code,
			Params:       params,
			Message:      is.Message,
		})
	}
	return &SchemaValidationError{Issues: issues, Cause: cause}
}

// ResponseSerializationError is returned by a serializer when the outgoing
// value does not satisfy the declared response definition.
type ResponseSerializationError struct {
	Method string
	URL    string
	Cause  error
}

func (e *ResponseSerializationError) Error() string {
	return fmt.Sprintf("provider: response doesn't match the schema (%s %s): %v", e.Method, e.URL, e.Cause)
}

func (e *ResponseSerializationError) Unwrap() error { return e.Cause }

func HasSchemaValidationErrors(err error) bool {
	var target *SchemaValidationError
	return errors.As(err, &target)
}

func IsResponseSerializationError(err error) bool {
	var target *ResponseSerializationError
	return errors.As(err, &target)
}

// Categorize wraps provider errors into go-errors values so hosts can map
// them to responses: validation failures become 400 validation errors with
// one field error per issue, serialization failures become 500 internal
// errors. Other errors are returned unchanged.
func Categorize(err error) error {
	var sve *SchemaValidationError
	if errors.As(err, &sve) {
		wrapped := goerrors.Wrap(err, goerrors.CategoryValidation, "request validation failed").
			WithCode(400).
			WithTextCode(TextCodeSchemaValidation)
		for _, is := range sve.Issues {
			wrapped.ValidationErrors = append(wrapped.ValidationErrors, goerrors.FieldError{
				Field:   is.InstancePath,
				Message: is.Message,
			})
		}
		return wrapped
	}
	var rse *ResponseSerializationError
	if errors.As(err, &rse) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "response serialization failed").
			WithCode(500).
			WithTextCode(TextCodeResponseSerialization).
			WithMetadata(map[string]any{"method": rse.Method, "url": rse.URL})
	}
	return err
}
