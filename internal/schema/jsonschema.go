package schema

import (
	"errors"
	"fmt"
	"strconv"
)

// DraftURI is the dialect marker written on every converted root.
const DraftURI = "https://json-schema.org/draft/2020-12/schema"

// GeneratedNamePrefix starts the $defs names given to recursive definitions
// that have no id.
const GeneratedNamePrefix = "__schema"

// Policies accepted by ConvertOptions.
const (
	UnrepresentableThrow = "throw"
	UnrepresentableAny   = "any"
	CyclesRef            = "ref"
	CyclesThrow          = "throw"
)

var (
	// ErrUnrepresentable is returned for constructs without a JSON Schema
	// form when the unrepresentable policy is "throw".
	ErrUnrepresentable = errors.New("schema: definition cannot be represented in JSON Schema")
	// ErrCycle is returned for recursive definitions when the cycle policy is
	// "throw".
	ErrCycle = errors.New("schema: cycle detected")
)

// OverrideContext is handed to ConvertOptions.Override for every converted
// node. JSON may be modified in place.
type OverrideContext struct {
	Type *Type
	JSON map[string]any
}

// ConvertOptions controls ToJSONSchema. Definitions that appear more than
// once without being cyclic are always inlined.
type ConvertOptions struct {
	Direction       Direction
	Unrepresentable string
	Cycles          string
	// Metadata supplies descriptions, examples and component ids for nested
	// definitions. Nested definitions with an id become references.
	Metadata *Registry
	// URI maps a definition id to the value of the $ref pointing at it.
	URI func(id string) string
	// Override is called once per converted node, after the node is built.
	Override func(OverrideContext)
	// AnonymousRoots stops root ids from being used as reference targets;
	// a root that refers to itself is moved into the $defs bucket instead.
	AnonymousRoots bool
}

// ConvertResult holds one JSON Schema per registry id, in registration order.
type ConvertResult struct {
	IDs     []string
	Schemas map[string]map[string]any
}

// ToJSONSchema converts every definition of reg that carries an id. Nested
// definitions registered with an id (in reg or in opts.Metadata) are emitted
// as references built with opts.URI; recursive anonymous definitions are
// placed in a $defs bucket on the root that contains them.
func ToJSONSchema(reg *Registry, opts ConvertOptions) (*ConvertResult, error) {
	if opts.Direction == "" {
		opts.Direction = Output
	}
	if opts.Unrepresentable == "" {
		opts.Unrepresentable = UnrepresentableThrow
	}
	if opts.Cycles == "" {
		opts.Cycles = CyclesRef
	}
	if opts.URI == nil {
		opts.URI = func(id string) string { return id }
	}

	c := &converter{opts: opts, roots: reg}
	res := &ConvertResult{Schemas: make(map[string]map[string]any)}
	for _, t := range reg.Types() {
		meta, _ := reg.Get(t)
		if meta.ID == "" {
			continue
		}
		out, err := c.convertRoot(t, meta.ID)
		if err != nil {
			return nil, fmt.Errorf("convert %q: %w", meta.ID, err)
		}
		res.IDs = append(res.IDs, meta.ID)
		res.Schemas[meta.ID] = out
	}
	return res, nil
}

type converter struct {
	opts  ConvertOptions
	roots *Registry

	root    *Type
	onPath  map[*Type]bool
	cyclic  map[*Type]bool
	names   map[*Type]string
	defs    map[string]map[string]any
	counter int
}

func (c *converter) convertRoot(t *Type, id string) (map[string]any, error) {
	c.root = t.Resolve()
	c.onPath = make(map[*Type]bool)
	c.cyclic = make(map[*Type]bool)
	c.names = make(map[*Type]string)
	c.defs = make(map[string]map[string]any)
	if !c.opts.AnonymousRoots {
		c.names[c.root] = id
	}

	out, err := c.node(t, true)
	if err != nil {
		return nil, err
	}
	if !c.opts.AnonymousRoots {
		out["id"] = id
	}
	if len(c.defs) > 0 {
		defs := make(map[string]any, len(c.defs))
		for name, def := range c.defs {
			defs[name] = def
		}
		out["$defs"] = defs
	}
	out["$schema"] = DraftURI
	return out, nil
}

// refID returns the component id under which t is referenced instead of
// inlined.
func (c *converter) refID(t *Type) string {
	if id := c.opts.Metadata.ID(t); id != "" {
		return id
	}
	if c.opts.AnonymousRoots {
		return ""
	}
	return c.roots.ID(t)
}

func (c *converter) node(t *Type, isRoot bool) (map[string]any, error) {
	t = t.Resolve()
	if t == nil {
		return map[string]any{}, nil
	}
	if !isRoot {
		if id := c.refID(t); id != "" {
			return ref(c.opts.URI(id)), nil
		}
	}
	if name, ok := c.names[t]; ok {
		if _, extracted := c.defs[name]; extracted {
			return ref(c.opts.URI(name)), nil
		}
	}
	if c.onPath[t] {
		if c.opts.Cycles == CyclesThrow {
			return nil, ErrCycle
		}
		c.cyclic[t] = true
		return ref(c.opts.URI(c.nameFor(t))), nil
	}

	c.onPath[t] = true
	out, err := c.build(t)
	delete(c.onPath, t)
	if err != nil {
		return nil, err
	}
	c.applyMeta(t, out)
	if c.opts.Override != nil {
		c.opts.Override(OverrideContext{Type: t, JSON: out})
	}

	if !c.cyclic[t] {
		return out, nil
	}
	if t == c.root && !c.opts.AnonymousRoots {
		return out, nil
	}
	name := c.nameFor(t)
	c.defs[name] = out
	return ref(c.opts.URI(name)), nil
}

func (c *converter) nameFor(t *Type) string {
	if name, ok := c.names[t]; ok {
		return name
	}
	name := GeneratedNamePrefix + strconv.Itoa(c.counter)
	c.counter++
	c.names[t] = name
	return name
}

func (c *converter) applyMeta(t *Type, out map[string]any) {
	if t.description != "" {
		out["description"] = t.description
	}
	meta, ok := c.opts.Metadata.Get(t)
	if !ok {
		meta, ok = c.roots.Get(t)
	}
	if !ok {
		return
	}
	if meta.Title != "" {
		out["title"] = meta.Title
	}
	if meta.Description != "" {
		out["description"] = meta.Description
	}
	if meta.Example != nil {
		out["examples"] = []any{meta.Example}
	}
}

func (c *converter) unrepresentable(t *Type) (map[string]any, error) {
	if c.opts.Unrepresentable == UnrepresentableAny {
		return map[string]any{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnrepresentable, t.kind)
}

func (c *converter) build(t *Type) (map[string]any, error) {
	switch t.kind {
	case KindString:
		out := map[string]any{"type": "string"}
		if t.minLength != nil {
			out["minLength"] = *t.minLength
		}
		if t.maxLength != nil {
			out["maxLength"] = *t.maxLength
		}
		if t.pattern != nil {
			out["pattern"] = t.pattern.String()
		}
		if t.format != "" {
			out["format"] = t.format
		}
		return out, nil
	case KindNumber:
		out := map[string]any{"type": "number"}
		if t.integer {
			out["type"] = "integer"
		}
		if lo := t.lower; lo != nil {
			if lo.exclusive {
				out["exclusiveMinimum"] = lo.value
			} else {
				out["minimum"] = lo.value
			}
		}
		if hi := t.upper; hi != nil {
			if hi.exclusive {
				out["exclusiveMaximum"] = hi.value
			} else {
				out["maximum"] = hi.value
			}
		}
		if t.multipleOf != nil {
			out["multipleOf"] = *t.multipleOf
		}
		return out, nil
	case KindBoolean:
		return map[string]any{"type": "boolean"}, nil
	case KindNull:
		return map[string]any{"type": "null"}, nil
	case KindUndefined, KindDate:
		return c.unrepresentable(t)
	case KindAny, KindUnknown:
		return map[string]any{}, nil
	case KindLiteral:
		return literalSchema(t.values), nil
	case KindEnum:
		return map[string]any{"type": "string", "enum": append([]any(nil), t.values...)}, nil
	case KindObject:
		return c.object(t)
	case KindArray:
		items, err := c.node(t.inner, false)
		if err != nil {
			return nil, err
		}
		out := map[string]any{"type": "array", "items": items}
		if t.minItems != nil {
			out["minItems"] = *t.minItems
		}
		if t.maxItems != nil {
			out["maxItems"] = *t.maxItems
		}
		return out, nil
	case KindTuple:
		return c.tuple(t)
	case KindRecord:
		out := map[string]any{"type": "object"}
		if key := t.key.Resolve(); key != nil && !(key.kind == KindString && key.minLength == nil && key.maxLength == nil && key.pattern == nil && key.format == "") {
			names, err := c.node(key, false)
			if err != nil {
				return nil, err
			}
			out["propertyNames"] = names
		}
		values, err := c.node(t.inner, false)
		if err != nil {
			return nil, err
		}
		out["additionalProperties"] = values
		return out, nil
	case KindUnion, KindIntersection:
		keyword := "anyOf"
		if t.kind == KindIntersection {
			keyword = "allOf"
		}
		parts := make([]any, 0, len(t.items))
		for _, item := range t.items {
			s, err := c.node(item, false)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		return map[string]any{keyword: parts}, nil
	case KindOptional:
		return c.node(t.inner, false)
	case KindNullable:
		inner, err := c.node(t.inner, false)
		if err != nil {
			return nil, err
		}
		return map[string]any{"anyOf": []any{inner, map[string]any{"type": "null"}}}, nil
	case KindDefault:
		inner, err := c.node(t.inner, false)
		if err != nil {
			return nil, err
		}
		out := copyMap(inner)
		out["default"] = t.defaultValue
		return out, nil
	case KindTransform:
		if c.opts.Direction == Output {
			return c.unrepresentable(t)
		}
		inner, err := c.node(t.inner, false)
		if err != nil {
			return nil, err
		}
		return copyMap(inner), nil
	}
	return c.unrepresentable(t)
}

func (c *converter) object(t *Type) (map[string]any, error) {
	props := make(map[string]any, len(t.fields))
	required := make([]any, 0, len(t.fields))
	for _, f := range t.fields {
		s, err := c.node(f.Type, false)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", f.Name, err)
		}
		props[f.Name] = s
		if !c.optionalField(f.Type) {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	switch {
	case t.catchall != nil:
		extra, err := c.node(t.catchall, false)
		if err != nil {
			return nil, err
		}
		out["additionalProperties"] = extra
	case t.unknownKeys == UnknownStrict:
		out["additionalProperties"] = false
	case t.unknownKeys == UnknownPassthrough:
		out["additionalProperties"] = map[string]any{}
	case c.opts.Direction == Output:
		// stripped keys never reach the output
		out["additionalProperties"] = false
	}
	return out, nil
}

// optionalField reports whether a property of type t may be absent in the
// current direction. Defaults fill absent input, so they are required on
// output.
func (c *converter) optionalField(t *Type) bool {
	r := t.Resolve()
	if r == nil {
		return false
	}
	switch r.kind {
	case KindOptional, KindUndefined:
		return true
	case KindDefault:
		return c.opts.Direction == Input
	case KindNullable, KindTransform:
		return c.optionalField(r.inner)
	}
	return false
}

func (c *converter) tuple(t *Type) (map[string]any, error) {
	prefix := make([]any, 0, len(t.items))
	required := len(t.items)
	for required > 0 && c.optionalField(t.items[required-1]) {
		required--
	}
	for _, item := range t.items {
		s, err := c.node(item, false)
		if err != nil {
			return nil, err
		}
		prefix = append(prefix, s)
	}
	out := map[string]any{"type": "array", "prefixItems": prefix}
	if t.rest != nil {
		rest, err := c.node(t.rest, false)
		if err != nil {
			return nil, err
		}
		out["items"] = rest
	} else {
		out["maxItems"] = len(t.items)
	}
	if required > 0 {
		out["minItems"] = required
	}
	if t.minItems != nil {
		out["minItems"] = *t.minItems
	}
	if t.maxItems != nil {
		out["maxItems"] = *t.maxItems
	}
	return out, nil
}

func literalSchema(values []any) map[string]any {
	out := map[string]any{}
	typ := ""
	for i, v := range values {
		vt := jsonType(v)
		if i == 0 {
			typ = vt
		} else if vt != typ {
			typ = ""
		}
	}
	if typ != "" {
		out["type"] = typ
	}
	if len(values) == 1 {
		out["const"] = values[0]
	} else {
		out["enum"] = append([]any(nil), values...)
	}
	return out
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return ""
}

func ref(uri string) map[string]any { return map[string]any{"$ref": uri} }

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
