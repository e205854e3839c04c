package schema

import (
	"regexp"
	"sync"
)

// Kind identifies one member of the closed set of definition kinds. Anything
// that is not a *Type built by this package is not a definition.
type Kind string

const (
	KindString       Kind = "string"
	KindNumber       Kind = "number"
	KindBoolean      Kind = "boolean"
	KindNull         Kind = "null"
	KindUndefined    Kind = "undefined"
	KindDate         Kind = "date"
	KindAny          Kind = "any"
	KindUnknown      Kind = "unknown"
	KindLiteral      Kind = "literal"
	KindEnum         Kind = "enum"
	KindObject       Kind = "object"
	KindArray        Kind = "array"
	KindTuple        Kind = "tuple"
	KindRecord       Kind = "record"
	KindUnion        Kind = "union"
	KindIntersection Kind = "intersection"
	KindOptional     Kind = "optional"
	KindNullable     Kind = "nullable"
	KindDefault      Kind = "default"
	KindLazy         Kind = "lazy"
	KindTransform    Kind = "transform"
)

// Direction selects which side of a definition is described: what a caller
// may send (Input) or what the system produces (Output).
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// UnknownKeys controls how objects treat properties that are not declared.
type UnknownKeys int

const (
	// UnknownStrip drops undeclared properties while parsing.
	UnknownStrip UnknownKeys = iota
	// UnknownStrict rejects undeclared properties.
	UnknownStrict
	// UnknownPassthrough keeps undeclared properties as-is.
	UnknownPassthrough
)

// Field is a named object property.
type Field struct {
	Name string
	Type *Type
}

// Prop declares an object property.
func Prop(name string, t *Type) Field { return Field{Name: name, Type: t} }

type bound struct {
	value     float64
	exclusive bool
}

const maxLazyHops = 64

type lazyState struct {
	once   sync.Once
	getter func() *Type
	target *Type
}

// TransformFunc maps a parsed value to its output representation.
type TransformFunc func(v any) (any, error)

// Type is a type definition. Values are immutable once built: every builder
// method returns a new *Type, so identity (pointer equality) is what the
// registry and the JSON Schema converter key on.
type Type struct {
	kind        Kind
	description string

	// string
	minLength *int
	maxLength *int
	pattern   *regexp.Regexp
	format    string

	// number
	integer    bool
	coerce     bool
	lower      *bound
	upper      *bound
	multipleOf *float64

	// array / tuple
	minItems *int
	maxItems *int

	inner  *Type // array element, record value, wrapper target
	key    *Type // record key
	items  []*Type
	rest   *Type
	fields []Field

	unknownKeys UnknownKeys
	catchall    *Type

	values       []any
	defaultValue any
	transform    TransformFunc
	lazy         *lazyState
}

func (t *Type) clone() *Type {
	c := *t
	return &c
}

// Kind reports the kind of t.
func (t *Type) Kind() Kind { return t.kind }

// Description returns the human description attached with Describe.
func (t *Type) Description() string { return t.description }

// Unwrap returns the wrapped definition of optional, nullable, default and
// transform definitions, the element of arrays and the value of records.
func (t *Type) Unwrap() *Type { return t.inner }

// Fields returns the declared object properties in declaration order.
func (t *Type) Fields() []Field { return append([]Field(nil), t.fields...) }

// Resolve follows lazy definitions to the definition they stand for.
func (t *Type) Resolve() *Type {
	cur := t
	for hops := 0; cur != nil && cur.kind == KindLazy; hops++ {
		// a getter chain that never reaches a concrete definition
		if hops > maxLazyHops {
			return cur
		}
		st := cur.lazy
		st.once.Do(func() { st.target = st.getter() })
		cur = st.target
	}
	return cur
}

// Describe returns a copy of t carrying a description.
func (t *Type) Describe(desc string) *Type {
	c := t.clone()
	c.description = desc
	return c
}

func String() *Type    { return &Type{kind: KindString} }
func Number() *Type    { return &Type{kind: KindNumber} }
func Int() *Type       { return &Type{kind: KindNumber, integer: true} }
func Boolean() *Type   { return &Type{kind: KindBoolean} }
func Null() *Type      { return &Type{kind: KindNull} }
func Undefined() *Type { return &Type{kind: KindUndefined} }
func Date() *Type      { return &Type{kind: KindDate} }
func Any() *Type       { return &Type{kind: KindAny} }
func Unknown() *Type   { return &Type{kind: KindUnknown} }

// CoerceNumber accepts numeric strings and booleans in addition to numbers.
func CoerceNumber() *Type { return &Type{kind: KindNumber, coerce: true} }

// Literal accepts exactly one of the given JSON scalar values.
func Literal(values ...any) *Type {
	return &Type{kind: KindLiteral, values: append([]any(nil), values...)}
}

// Enum accepts one of the given strings.
func Enum(values ...string) *Type {
	vals := make([]any, 0, len(values))
	for _, v := range values {
		vals = append(vals, v)
	}
	return &Type{kind: KindEnum, values: vals}
}

// Object declares an object with the given properties. Undeclared properties
// are stripped while parsing unless Strict or Passthrough is applied.
func Object(fields ...Field) *Type {
	return &Type{kind: KindObject, fields: append([]Field(nil), fields...)}
}

func Array(elem *Type) *Type { return &Type{kind: KindArray, inner: elem} }

// Tuple declares a fixed-position array. Use Rest to allow trailing items.
func Tuple(items ...*Type) *Type {
	return &Type{kind: KindTuple, items: append([]*Type(nil), items...)}
}

// Record declares an object whose keys match key and whose values match value.
func Record(key, value *Type) *Type {
	return &Type{kind: KindRecord, key: key, inner: value}
}

func Union(options ...*Type) *Type {
	return &Type{kind: KindUnion, items: append([]*Type(nil), options...)}
}

func Intersection(left, right *Type) *Type {
	return &Type{kind: KindIntersection, items: []*Type{left, right}}
}

func Optional(t *Type) *Type { return &Type{kind: KindOptional, inner: t} }
func Nullable(t *Type) *Type { return &Type{kind: KindNullable, inner: t} }

// Lazy defers construction so definitions can refer to themselves. The
// getter is called once.
func Lazy(getter func() *Type) *Type {
	return &Type{kind: KindLazy, lazy: &lazyState{getter: getter}}
}

// Transform parses with t and then maps the result through fn. Only the input
// side of a transform has a JSON Schema representation.
func Transform(t *Type, fn TransformFunc) *Type {
	return &Type{kind: KindTransform, inner: t, transform: fn}
}

func (t *Type) Optional() *Type { return Optional(t) }
func (t *Type) Nullable() *Type { return Nullable(t) }

// Default makes the value optional on input; absent values parse to v.
func (t *Type) Default(v any) *Type {
	return &Type{kind: KindDefault, inner: t, defaultValue: v}
}

// Min sets the minimum length of strings, the minimum item count of arrays
// and the inclusive lower bound of numbers.
func (t *Type) Min(n float64) *Type {
	c := t.clone()
	switch t.kind {
	case KindString:
		c.minLength = intPtr(int(n))
	case KindArray, KindTuple:
		c.minItems = intPtr(int(n))
	default:
		c.lower = &bound{value: n}
	}
	return c
}

// Max is the upper counterpart of Min.
func (t *Type) Max(n float64) *Type {
	c := t.clone()
	switch t.kind {
	case KindString:
		c.maxLength = intPtr(int(n))
	case KindArray, KindTuple:
		c.maxItems = intPtr(int(n))
	default:
		c.upper = &bound{value: n}
	}
	return c
}

// Length fixes the exact length of strings or item count of arrays.
func (t *Type) Length(n int) *Type {
	c := t.clone()
	if t.kind == KindString {
		c.minLength, c.maxLength = intPtr(n), intPtr(n)
	} else {
		c.minItems, c.maxItems = intPtr(n), intPtr(n)
	}
	return c
}

func (t *Type) Gt(n float64) *Type {
	c := t.clone()
	c.lower = &bound{value: n, exclusive: true}
	return c
}

func (t *Type) Gte(n float64) *Type { return t.Min(n) }

func (t *Type) Lt(n float64) *Type {
	c := t.clone()
	c.upper = &bound{value: n, exclusive: true}
	return c
}

func (t *Type) Lte(n float64) *Type { return t.Max(n) }

func (t *Type) Int() *Type {
	c := t.clone()
	c.integer = true
	return c
}

func (t *Type) MultipleOf(n float64) *Type {
	c := t.clone()
	c.multipleOf = &n
	return c
}

// Regex constrains strings to match pattern. It panics on an invalid
// pattern, like regexp.MustCompile.
func (t *Type) Regex(pattern string) *Type {
	c := t.clone()
	c.pattern = regexp.MustCompile(pattern)
	return c
}

func (t *Type) Email() *Type { return t.withFormat("email") }
func (t *Type) UUID() *Type  { return t.withFormat("uuid") }
func (t *Type) URL() *Type   { return t.withFormat("uri") }

func (t *Type) withFormat(f string) *Type {
	c := t.clone()
	c.format = f
	return c
}

// Strict makes an object reject undeclared properties.
func (t *Type) Strict() *Type {
	c := t.clone()
	c.unknownKeys = UnknownStrict
	return c
}

// Passthrough makes an object keep undeclared properties.
func (t *Type) Passthrough() *Type {
	c := t.clone()
	c.unknownKeys = UnknownPassthrough
	return c
}

// Catchall validates undeclared object properties against v.
func (t *Type) Catchall(v *Type) *Type {
	c := t.clone()
	c.catchall = v
	return c
}

// Rest allows trailing tuple items matching v.
func (t *Type) Rest(v *Type) *Type {
	c := t.clone()
	c.rest = v
	return c
}

// Extend returns an object with the fields of t followed by fields. Fields
// with an existing name replace the earlier declaration in place.
func (t *Type) Extend(fields ...Field) *Type {
	c := t.clone()
	c.fields = append([]Field(nil), t.fields...)
	for _, f := range fields {
		replaced := false
		for i := range c.fields {
			if c.fields[i].Name == f.Name {
				c.fields[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			c.fields = append(c.fields, f)
		}
	}
	return c
}

// IsOptional reports whether an absent value satisfies t.
func IsOptional(t *Type) bool {
	t = t.Resolve()
	if t == nil {
		return false
	}
	switch t.kind {
	case KindOptional, KindUndefined, KindDefault:
		return true
	case KindNullable, KindTransform:
		return IsOptional(t.inner)
	default:
		return false
	}
}

func intPtr(n int) *int { return &n }
