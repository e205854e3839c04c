package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mark3labs/typeprovider/internal/openapi"
	"github.com/mark3labs/typeprovider/internal/schema"
)

// Definitions is the result of loading a definitions file: named types (the
// ones with an id are registered as components) and the routes using them.
type Definitions struct {
	Registry *schema.Registry
	// Types holds every named type in declaration order of Names.
	Types  map[string]*schema.Type
	Names  []string
	Routes []openapi.Operation
}

// routeKeys are the route entries that are not passed through.
var routeKeys = map[string]bool{
	"method": true, "url": true, "hide": true, "params": true, "headers": true,
	"querystring": true, "body": true, "response": true,
}

// LoadDefinitions reads a YAML or JSON definitions file.
func LoadDefinitions(path string) (*Definitions, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: path, Cause: err}
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
	}
	defs, err := ParseDefinitions(raw)
	if err != nil {
		if se, ok := err.(*SpecError); ok {
			se.Location = abs
			return nil, se
		}
		return nil, err
	}
	return defs, nil
}

// ParseDefinitions decodes definitions from YAML or JSON bytes. The file has
// two top-level keys: types (a mapping of name to type node) and routes (a
// list of operations).
func ParseDefinitions(data []byte) (*Definitions, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse definitions: %v", err), Cause: err}
	}
	b := &defBuilder{
		defs: &Definitions{
			Registry: schema.NewRegistry(),
			Types:    make(map[string]*schema.Type),
		},
		refs: make(map[string]string),
	}
	if len(doc.Content) == 0 {
		return b.defs, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, b.fail(root, "#", "definitions must be a mapping")
	}
	for _, key := range []string{"types", "routes"} {
		node := lookup(root, key)
		if node == nil {
			continue
		}
		var err error
		if key == "types" {
			err = b.types(node)
		} else {
			err = b.routes(node)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, ptr := range sortedStrings(b.refs) {
		name := b.refs[ptr]
		if _, ok := b.defs.Types[name]; !ok {
			return nil, &SpecError{Code: DefinitionError, Message: fmt.Sprintf("definitions: unknown type %q", name), JSONPointer: ptr}
		}
	}
	return b.defs, nil
}

type defBuilder struct {
	defs *Definitions
	// refs maps the pointer of every ref node to the referenced name.
	refs map[string]string
}

func (b *defBuilder) fail(n *yaml.Node, ptr, msg string) error {
	return &SpecError{
		Code:        DefinitionError,
		Message:     fmt.Sprintf("definitions: %s (line %d): %s", ptr, n.Line, msg),
		JSONPointer: ptr,
	}
}

func (b *defBuilder) types(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return b.fail(node, "#/types", "types must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		body := node.Content[i+1]
		ptr := "#/types/" + escapePointer(name)
		t, err := b.typeNode(body, ptr)
		if err != nil {
			return err
		}
		meta := schema.Meta{
			ID:    scalar(body, "id"),
			Title: scalar(body, "title"),
		}
		if ex := lookup(body, "example"); ex != nil {
			var v any
			if err := ex.Decode(&v); err != nil {
				return b.fail(ex, ptr+"/example", err.Error())
			}
			meta.Example = jsonCompatible(v)
		}
		if msg := checkComponentID(meta.ID); msg != "" {
			return b.fail(body, ptr+"/id", msg)
		}
		if meta.ID != "" || meta.Title != "" || meta.Example != nil {
			if err := b.defs.Registry.Add(t, meta); err != nil {
				return b.fail(body, ptr+"/id", err.Error())
			}
		}
		b.defs.Types[name] = t
		b.defs.Names = append(b.defs.Names, name)
	}
	return nil
}

// checkComponentID rejects ids that cannot serve as a component name or as
// the file name of a split component.
func checkComponentID(id string) string {
	switch {
	case strings.ContainsAny(id, `/\`), strings.Contains(id, ".."):
		return fmt.Sprintf("id %q must not contain path separators or \"..\"", id)
	case strings.HasPrefix(id, schema.GeneratedNamePrefix):
		return fmt.Sprintf("id %q uses the reserved prefix %q", id, schema.GeneratedNamePrefix)
	}
	return ""
}

// typeNode builds a type from a node such as
//
//	{type: object, properties: {id: {type: string, format: uuid}}, nullable: true}
//	{ref: Group}
func (b *defBuilder) typeNode(n *yaml.Node, ptr string) (*schema.Type, error) {
	if n.Kind == yaml.ScalarNode {
		// shorthand: "string", "number", ...
		n = &yaml.Node{Kind: yaml.MappingNode, Line: n.Line, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "type"}, n,
		}}
	}
	if n.Kind != yaml.MappingNode {
		return nil, b.fail(n, ptr, "type must be a mapping or a type name")
	}

	var t *schema.Type
	if name := scalar(n, "ref"); name != "" {
		b.refs[ptr] = name
		types := b.defs.Types
		t = schema.Lazy(func() *schema.Type { return types[name] })
	} else {
		var err error
		if t, err = b.baseType(n, ptr); err != nil {
			return nil, err
		}
	}

	if desc := scalar(n, "description"); desc != "" {
		t = t.Describe(desc)
	}
	if d := lookup(n, "default"); d != nil {
		var v any
		if err := d.Decode(&v); err != nil {
			return nil, b.fail(d, ptr+"/default", err.Error())
		}
		t = t.Default(jsonCompatible(v))
	}
	if flag(n, "nullable") {
		t = t.Nullable()
	}
	if flag(n, "optional") {
		t = t.Optional()
	}
	return t, nil
}

func (b *defBuilder) baseType(n *yaml.Node, ptr string) (*schema.Type, error) {
	kind := scalar(n, "type")
	switch kind {
	case "string":
		t := schema.String()
		if v, ok := number(n, "minLength"); ok {
			t = t.Min(v)
		}
		if v, ok := number(n, "maxLength"); ok {
			t = t.Max(v)
		}
		if p := scalar(n, "pattern"); p != "" {
			if _, err := regexp.Compile(p); err != nil {
				return nil, b.fail(n, ptr+"/pattern", err.Error())
			}
			t = t.Regex(p)
		}
		switch f := scalar(n, "format"); f {
		case "":
		case "email":
			t = t.Email()
		case "uuid":
			t = t.UUID()
		case "uri", "url":
			t = t.URL()
		default:
			return nil, b.fail(n, ptr+"/format", fmt.Sprintf("unsupported string format %q", f))
		}
		return t, nil
	case "number", "integer":
		t := schema.Number()
		if kind == "integer" {
			t = schema.Int()
		}
		if flag(n, "coerce") {
			t = schema.CoerceNumber()
			if kind == "integer" {
				t = t.Int()
			}
		}
		if v, ok := number(n, "minimum"); ok {
			t = t.Gte(v)
		}
		if v, ok := number(n, "maximum"); ok {
			t = t.Lte(v)
		}
		if v, ok := number(n, "exclusiveMinimum"); ok {
			t = t.Gt(v)
		}
		if v, ok := number(n, "exclusiveMaximum"); ok {
			t = t.Lt(v)
		}
		if v, ok := number(n, "multipleOf"); ok {
			t = t.MultipleOf(v)
		}
		return t, nil
	case "boolean":
		return schema.Boolean(), nil
	case "null":
		return schema.Null(), nil
	case "undefined":
		return schema.Undefined(), nil
	case "date":
		return schema.Date(), nil
	case "any":
		return schema.Any(), nil
	case "unknown":
		return schema.Unknown(), nil
	case "literal", "enum":
		valuesNode := lookup(n, "values")
		if valuesNode == nil {
			valuesNode = lookup(n, "value")
		}
		if valuesNode == nil {
			return nil, b.fail(n, ptr, kind+" requires value or values")
		}
		var raw any
		if err := valuesNode.Decode(&raw); err != nil {
			return nil, b.fail(valuesNode, ptr+"/values", err.Error())
		}
		values, ok := raw.([]any)
		if !ok {
			values = []any{raw}
		}
		if kind == "literal" {
			return schema.Literal(values...), nil
		}
		names := make([]string, 0, len(values))
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				return nil, b.fail(valuesNode, ptr+"/values", "enum values must be strings")
			}
			names = append(names, s)
		}
		return schema.Enum(names...), nil
	case "object":
		return b.object(n, ptr)
	case "array":
		items := lookup(n, "items")
		if items == nil {
			return nil, b.fail(n, ptr, "array requires items")
		}
		elem, err := b.typeNode(items, ptr+"/items")
		if err != nil {
			return nil, err
		}
		t := schema.Array(elem)
		if v, ok := number(n, "minItems"); ok {
			t = t.Min(v)
		}
		if v, ok := number(n, "maxItems"); ok {
			t = t.Max(v)
		}
		return t, nil
	case "tuple":
		list, err := b.typeList(lookup(n, "items"), ptr+"/items")
		if err != nil {
			return nil, err
		}
		t := schema.Tuple(list...)
		if rest := lookup(n, "rest"); rest != nil {
			r, err := b.typeNode(rest, ptr+"/rest")
			if err != nil {
				return nil, err
			}
			t = t.Rest(r)
		}
		return t, nil
	case "record":
		key := schema.String()
		if kn := lookup(n, "keys"); kn != nil {
			k, err := b.typeNode(kn, ptr+"/keys")
			if err != nil {
				return nil, err
			}
			key = k
		}
		vn := lookup(n, "values")
		if vn == nil {
			return nil, b.fail(n, ptr, "record requires values")
		}
		v, err := b.typeNode(vn, ptr+"/values")
		if err != nil {
			return nil, err
		}
		return schema.Record(key, v), nil
	case "union":
		list, err := b.typeList(lookup(n, "anyOf"), ptr+"/anyOf")
		if err != nil {
			return nil, err
		}
		return schema.Union(list...), nil
	case "intersection":
		list, err := b.typeList(lookup(n, "allOf"), ptr+"/allOf")
		if err != nil {
			return nil, err
		}
		if len(list) != 2 {
			return nil, b.fail(n, ptr+"/allOf", "intersection requires exactly two members")
		}
		return schema.Intersection(list[0], list[1]), nil
	case "":
		return nil, b.fail(n, ptr, "missing type or ref")
	}
	return nil, b.fail(n, ptr+"/type", fmt.Sprintf("unknown type %q", kind))
}

func (b *defBuilder) object(n *yaml.Node, ptr string) (*schema.Type, error) {
	var fields []schema.Field
	if props := lookup(n, "properties"); props != nil {
		if props.Kind != yaml.MappingNode {
			return nil, b.fail(props, ptr+"/properties", "properties must be a mapping")
		}
		for i := 0; i+1 < len(props.Content); i += 2 {
			name := props.Content[i].Value
			ft, err := b.typeNode(props.Content[i+1], ptr+"/properties/"+escapePointer(name))
			if err != nil {
				return nil, err
			}
			fields = append(fields, schema.Prop(name, ft))
		}
	}
	t := schema.Object(fields...)
	switch mode := scalar(n, "unknownKeys"); mode {
	case "", "strip":
	case "strict":
		t = t.Strict()
	case "passthrough":
		t = t.Passthrough()
	default:
		return nil, b.fail(n, ptr+"/unknownKeys", fmt.Sprintf("unknown mode %q (strip, strict, passthrough)", mode))
	}
	if extra := lookup(n, "additionalProperties"); extra != nil {
		c, err := b.typeNode(extra, ptr+"/additionalProperties")
		if err != nil {
			return nil, err
		}
		t = t.Catchall(c)
	}
	return t, nil
}

func (b *defBuilder) typeList(n *yaml.Node, ptr string) ([]*schema.Type, error) {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil, &SpecError{Code: DefinitionError, Message: fmt.Sprintf("definitions: %s: expected a list of types", ptr), JSONPointer: ptr}
	}
	out := make([]*schema.Type, 0, len(n.Content))
	for i, item := range n.Content {
		t, err := b.typeNode(item, ptr+"/"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *defBuilder) routes(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return b.fail(node, "#/routes", "routes must be a list")
	}
	for i, rn := range node.Content {
		ptr := "#/routes/" + strconv.Itoa(i)
		if rn.Kind != yaml.MappingNode {
			return b.fail(rn, ptr, "route must be a mapping")
		}
		op := openapi.Operation{
			Method: strings.ToUpper(scalar(rn, "method")),
			URL:    scalar(rn, "url"),
		}
		if op.Method == "" || op.URL == "" {
			return b.fail(rn, ptr, "route requires method and url")
		}
		rs := &openapi.RouteSchema{Hide: flag(rn, "hide"), Fields: map[string]any{}}
		parts := []struct {
			key  string
			dest *any
		}{
			{"params", &rs.Params},
			{"headers", &rs.Headers},
			{"querystring", &rs.Querystring},
			{"body", &rs.Body},
		}
		for _, part := range parts {
			pn := lookup(rn, part.key)
			if pn == nil {
				continue
			}
			t, err := b.typeNode(pn, ptr+"/"+part.key)
			if err != nil {
				return err
			}
			*part.dest = t
		}
		if resp := lookup(rn, "response"); resp != nil {
			if resp.Kind != yaml.MappingNode {
				return b.fail(resp, ptr+"/response", "response must map status codes to types")
			}
			rs.Response = make(map[string]any, len(resp.Content)/2)
			for j := 0; j+1 < len(resp.Content); j += 2 {
				code := resp.Content[j].Value
				t, err := b.typeNode(resp.Content[j+1], ptr+"/response/"+escapePointer(code))
				if err != nil {
					return err
				}
				rs.Response[code] = t
			}
		}
		for j := 0; j+1 < len(rn.Content); j += 2 {
			key := rn.Content[j].Value
			if routeKeys[key] {
				continue
			}
			var v any
			if err := rn.Content[j+1].Decode(&v); err != nil {
				return b.fail(rn.Content[j+1], ptr+"/"+escapePointer(key), err.Error())
			}
			rs.Fields[key] = jsonCompatible(v)
		}
		op.Schema = rs
		b.defs.Routes = append(b.defs.Routes, op)
	}
	return nil
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func scalar(n *yaml.Node, key string) string {
	v := lookup(n, key)
	if v == nil || v.Kind != yaml.ScalarNode {
		return ""
	}
	return strings.TrimSpace(v.Value)
}

func flag(n *yaml.Node, key string) bool {
	b, _ := strconv.ParseBool(scalar(n, key))
	return b
}

func number(n *yaml.Node, key string) (float64, bool) {
	s := scalar(n, key)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func escapePointer(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "~", "~0"), "/", "~1")
}

func sortedStrings(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
