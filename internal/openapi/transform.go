package openapi

import (
	"sort"

	"github.com/mark3labs/typeprovider/internal/schema"
)

// Logger receives transform diagnostics. The go-logger glog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}

// RouteSchema is the schema block of an operation. Fields holds any other
// keys (tags, summary, security, ...) which are passed through untouched.
type RouteSchema struct {
	Hide        bool
	Params      any
	Headers     any
	Querystring any
	Body        any
	// Response maps a status code (or "default") to a definition.
	Response map[string]any
	Fields   map[string]any
}

// Operation describes one route as registered by the host.
type Operation struct {
	Method string
	URL    string
	Schema *RouteSchema
}

// TransformedOperation is the per-route output. Schema is nil when the
// operation had no schema.
type TransformedOperation struct {
	Schema map[string]any
	URL    string
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithRegistry sets the registry used for component lookups and for
// components.schemas. Defaults to schema.GlobalRegistry().
func WithRegistry(reg *schema.Registry) Option {
	return func(t *Transformer) {
		if reg != nil {
			t.registry = reg
		}
	}
}

// WithIDAsTitle copies component ids into their title.
func WithIDAsTitle(enabled bool) Option {
	return func(t *Transformer) { t.idAsTitle = enabled }
}

func WithLogger(l Logger) Option {
	return func(t *Transformer) {
		if l != nil {
			t.logger = l
		}
	}
}

// Transformer turns route schemas into OpenAPI fragments and builds the
// final components.schemas. It holds no state between calls.
type Transformer struct {
	registry  *schema.Registry
	idAsTitle bool
	logger    Logger
}

func NewTransformer(opts ...Option) *Transformer {
	t := &Transformer{registry: schema.GlobalRegistry(), logger: nopLogger{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// requestParts lists the request locations in emission order.
var requestParts = []string{"headers", "querystring", "body", "params"}

// Transform converts the schema of op. Request parts are rendered for the
// input direction, responses for the output direction. A hidden operation
// yields only {"hide": true}. Swagger documents are rejected before anything
// else; an operation without a schema is returned as is whatever the openapi
// version of doc.
func (t *Transformer) Transform(doc DocumentObject, op Operation) (*TransformedOperation, error) {
	if isSwagger(doc) {
		_, err := DetectVersion(doc)
		return nil, err
	}
	if op.Schema == nil {
		return &TransformedOperation{URL: op.URL}, nil
	}
	ver, err := DetectVersion(doc)
	if err != nil {
		return nil, err
	}
	if op.Schema.Hide {
		t.logger.Debug("operation hidden", "method", op.Method, "url", op.URL)
		return &TransformedOperation{Schema: map[string]any{"hide": true}, URL: op.URL}, nil
	}

	out := make(map[string]any, len(op.Schema.Fields)+5)
	for k, v := range op.Schema.Fields {
		switch k {
		case "hide", "params", "headers", "querystring", "body", "response":
			continue
		}
		out[k] = v
	}

	parts := map[string]any{
		"headers":     op.Schema.Headers,
		"querystring": op.Schema.Querystring,
		"body":        op.Schema.Body,
		"params":      op.Schema.Params,
	}
	for _, part := range requestParts {
		def := parts[part]
		if def == nil {
			continue
		}
		fragment, err := SchemaToJSON(def, t.registry, schema.Input, ver)
		if err != nil {
			return nil, err
		}
		out[part] = fragment
	}

	if op.Schema.Response != nil {
		responses := make(map[string]any, len(op.Schema.Response))
		codes := make([]string, 0, len(op.Schema.Response))
		for code := range op.Schema.Response {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			fragment, err := SchemaToJSON(op.Schema.Response[code], t.registry, schema.Output, ver)
			if err != nil {
				return nil, err
			}
			responses[code] = fragment
		}
		out["response"] = responses
	}

	t.logger.Debug("operation transformed", "method", op.Method, "url", op.URL, "version", string(ver))
	return &TransformedOperation{Schema: out, URL: op.URL}, nil
}

// TransformObject adds the registry components of both directions to the
// document, moves the $defs buckets of recursive fragments into components
// and prunes components.schemas to what is reachable. Generated
// components replace existing entries of the same name; other existing
// entries are kept. The input document is not modified.
func (t *Transformer) TransformObject(doc DocumentObject) (map[string]any, error) {
	ver, err := DetectVersion(doc)
	if err != nil {
		return nil, err
	}
	opts := RegistryOptions{IDAsTitle: t.idAsTitle}
	input, err := RegistryToJSON(t.registry, schema.Input, ver, opts)
	if err != nil {
		return nil, err
	}
	output, err := RegistryToJSON(t.registry, schema.Output, ver, opts)
	if err != nil {
		return nil, err
	}
	generated, err := MergeComponents(input, output)
	if err != nil {
		return nil, err
	}

	assembled := make(map[string]any, len(doc.OpenAPI)+1)
	for k, v := range doc.OpenAPI {
		assembled[k] = v
	}
	components := make(map[string]any)
	if existing, ok := doc.OpenAPI["components"].(map[string]any); ok {
		for k, v := range existing {
			components[k] = v
		}
	}
	schemas := make(map[string]any, len(generated))
	if existing, ok := components["schemas"].(map[string]any); ok {
		for k, v := range existing {
			schemas[k] = v
		}
	}
	for k, v := range generated {
		if _, ok := schemas[k]; ok {
			t.logger.Warn("generated component replaces existing schema", "name", k)
		}
		schemas[k] = v
	}
	components["schemas"] = schemas
	assembled["components"] = components

	assembled, _ = cloneValue(assembled, make(map[uintptr]any)).(map[string]any)
	hoisted := hoistLocalDefs(assembled, componentSchemas(assembled))
	if len(hoisted) > 0 {
		t.logger.Debug("recursive definitions moved to components", "names", hoisted)
	}

	pruned := Prune(assembled)
	t.logger.Info("components generated",
		"version", string(ver),
		"generated", len(generated),
		"hoisted", len(hoisted),
		"kept", len(componentSchemas(pruned)),
	)
	return pruned, nil
}
