package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Issue codes reported by Parse.
const (
	CodeInvalidType     = "invalid_type"
	CodeTooSmall        = "too_small"
	CodeTooBig          = "too_big"
	CodeInvalidFormat   = "invalid_format"
	CodeInvalidValue    = "invalid_value"
	CodeInvalidUnion    = "invalid_union"
	CodeUnrecognizedKey = "unrecognized_keys"
	CodeNotMultipleOf   = "not_multiple_of"
	CodeCustom          = "custom"
)

// Issue is a single validation failure. Path holds property names (string)
// and array indices (int) from the root of the parsed value.
type Issue struct {
	Code     string
	Path     []any
	Message  string
	Expected string
	Received string
}

// PathString renders the issue path as a JSON Pointer ("" for the root).
func (i Issue) PathString() string {
	if len(i.Path) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range i.Path {
		b.WriteByte('/')
		s := fmt.Sprint(seg)
		s = strings.ReplaceAll(s, "~", "~0")
		s = strings.ReplaceAll(s, "/", "~1")
		b.WriteString(s)
	}
	return b.String()
}

// ParseError carries every issue found while parsing a value.
type ParseError struct {
	Issues []Issue
}

func (e *ParseError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		loc := issue.PathString()
		if loc == "" {
			loc = "#"
		} else {
			loc = "#" + loc
		}
		parts = append(parts, fmt.Sprintf("%s: %s", loc, issue.Message))
	}
	return strings.Join(parts, "; ")
}

// Parse validates data against t and returns the parsed value: undeclared
// object properties are handled per the object policy, defaults are applied
// and transforms run. The error, when non-nil, is a *ParseError.
func (t *Type) Parse(data any) (any, error) {
	p := &parser{}
	out, ok := p.parse(t, data, nil)
	if !ok || len(p.issues) > 0 {
		return nil, &ParseError{Issues: p.issues}
	}
	return out, nil
}

type parser struct {
	issues []Issue
}

func (p *parser) fail(path []any, code, msg string) bool {
	p.issues = append(p.issues, Issue{
		Code:    code,
		Path:    append([]any(nil), path...),
		Message: msg,
	})
	return false
}

func (p *parser) failType(path []any, expected string, v any) bool {
	received := typeName(v)
	p.issues = append(p.issues, Issue{
		Code:     CodeInvalidType,
		Path:     append([]any(nil), path...),
		Message:  fmt.Sprintf("expected %s, received %s", expected, received),
		Expected: expected,
		Received: received,
	})
	return false
}

func (p *parser) parse(t *Type, v any, path []any) (any, bool) {
	t = t.Resolve()
	if t == nil {
		return v, true
	}
	switch t.kind {
	case KindString:
		return p.parseString(t, v, path)
	case KindNumber:
		return p.parseNumber(t, v, path)
	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, p.failType(path, "boolean", v)
		}
		return b, true
	case KindNull:
		if v != nil {
			return nil, p.failType(path, "null", v)
		}
		return nil, true
	case KindUndefined:
		if v != nil {
			return nil, p.failType(path, "undefined", v)
		}
		return nil, true
	case KindDate:
		switch d := v.(type) {
		case time.Time:
			return d, true
		case *time.Time:
			if d != nil {
				return *d, true
			}
		}
		return nil, p.failType(path, "date", v)
	case KindAny, KindUnknown:
		return v, true
	case KindLiteral, KindEnum:
		for _, want := range t.values {
			if scalarEqual(v, want) {
				return v, true
			}
		}
		return nil, p.fail(path, CodeInvalidValue, fmt.Sprintf("invalid value: expected one of %s", renderValues(t.values)))
	case KindObject:
		return p.parseObject(t, v, path)
	case KindArray:
		return p.parseArray(t, v, path)
	case KindTuple:
		return p.parseTuple(t, v, path)
	case KindRecord:
		return p.parseRecord(t, v, path)
	case KindUnion:
		return p.parseUnion(t, v, path)
	case KindIntersection:
		return p.parseIntersection(t, v, path)
	case KindOptional, KindNullable:
		if v == nil {
			return nil, true
		}
		return p.parse(t.inner, v, path)
	case KindDefault:
		if v == nil {
			return t.defaultValue, true
		}
		return p.parse(t.inner, v, path)
	case KindTransform:
		out, ok := p.parse(t.inner, v, path)
		if !ok {
			return nil, false
		}
		res, err := t.transform(out)
		if err != nil {
			return nil, p.fail(path, CodeCustom, err.Error())
		}
		return res, true
	default:
		return nil, p.fail(path, CodeCustom, fmt.Sprintf("unsupported definition kind %q", t.kind))
	}
}

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	uuidRe  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

func (p *parser) parseString(t *Type, v any, path []any) (any, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, p.failType(path, "string", v)
	}
	ok = true
	n := utf8.RuneCountInString(s)
	if t.minLength != nil && n < *t.minLength {
		ok = p.fail(path, CodeTooSmall, fmt.Sprintf("too small: expected string to have >=%d characters", *t.minLength))
	}
	if t.maxLength != nil && n > *t.maxLength {
		ok = p.fail(path, CodeTooBig, fmt.Sprintf("too big: expected string to have <=%d characters", *t.maxLength))
	}
	if t.pattern != nil && !t.pattern.MatchString(s) {
		ok = p.fail(path, CodeInvalidFormat, fmt.Sprintf("invalid string: must match pattern %s", t.pattern.String()))
	}
	switch t.format {
	case "email":
		if !emailRe.MatchString(s) {
			ok = p.fail(path, CodeInvalidFormat, "invalid email address")
		}
	case "uuid":
		if !uuidRe.MatchString(s) {
			ok = p.fail(path, CodeInvalidFormat, "invalid UUID")
		}
	case "uri":
		if u, err := url.Parse(s); err != nil || u.Scheme == "" || u.Host == "" {
			ok = p.fail(path, CodeInvalidFormat, "invalid URL")
		}
	}
	if !ok {
		return nil, false
	}
	return s, true
}

func (p *parser) parseNumber(t *Type, v any, path []any) (any, bool) {
	f, ok := toFloat(v)
	if !ok && t.coerce {
		switch c := v.(type) {
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
			f, ok = parsed, err == nil
		case bool:
			if c {
				f = 1
			}
			ok = true
		}
	}
	if !ok || math.IsNaN(f) {
		expected := "number"
		if t.integer {
			expected = "int"
		}
		return nil, p.failType(path, expected, v)
	}
	ok = true
	if t.integer && (f != math.Trunc(f) || math.IsInf(f, 0)) {
		ok = p.failType(path, "int", v)
	}
	if lo := t.lower; lo != nil {
		if (lo.exclusive && f <= lo.value) || (!lo.exclusive && f < lo.value) {
			op := ">="
			if lo.exclusive {
				op = ">"
			}
			ok = p.fail(path, CodeTooSmall, fmt.Sprintf("too small: expected number to be %s%s", op, formatNumber(lo.value)))
		}
	}
	if hi := t.upper; hi != nil {
		if (hi.exclusive && f >= hi.value) || (!hi.exclusive && f > hi.value) {
			op := "<="
			if hi.exclusive {
				op = "<"
			}
			ok = p.fail(path, CodeTooBig, fmt.Sprintf("too big: expected number to be %s%s", op, formatNumber(hi.value)))
		}
	}
	if m := t.multipleOf; m != nil && *m != 0 {
		if q := f / *m; math.Abs(q-math.Round(q)) > 1e-9 {
			ok = p.fail(path, CodeNotMultipleOf, fmt.Sprintf("invalid number: must be a multiple of %s", formatNumber(*m)))
		}
	}
	if !ok {
		return nil, false
	}
	return f, true
}

func (p *parser) parseObject(t *Type, v any, path []any) (any, bool) {
	m, ok := asMap(v)
	if !ok {
		return nil, p.failType(path, "object", v)
	}
	out := make(map[string]any, len(t.fields))
	declared := make(map[string]struct{}, len(t.fields))
	ok = true
	for _, f := range t.fields {
		declared[f.Name] = struct{}{}
		fieldPath := append(path, f.Name)
		raw, present := m[f.Name]
		if !present {
			val, include, fine := p.absent(f.Type, fieldPath)
			if !fine {
				ok = false
				continue
			}
			if include {
				out[f.Name] = val
			}
			continue
		}
		val, fine := p.parse(f.Type, raw, fieldPath)
		if !fine {
			ok = false
			continue
		}
		if val == nil && raw == nil && IsOptional(f.Type) && !isNullAccepting(f.Type) {
			continue
		}
		out[f.Name] = val
	}

	var unknown []string
	for k := range m {
		if _, known := declared[k]; !known {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	switch {
	case t.catchall != nil:
		for _, k := range unknown {
			val, fine := p.parse(t.catchall, m[k], append(path, k))
			if !fine {
				ok = false
				continue
			}
			out[k] = val
		}
	case t.unknownKeys == UnknownStrict && len(unknown) > 0:
		ok = p.fail(path, CodeUnrecognizedKey, fmt.Sprintf("unrecognized key(s) in object: %s", strings.Join(quoteAll(unknown), ", ")))
	case t.unknownKeys == UnknownPassthrough:
		for _, k := range unknown {
			out[k] = m[k]
		}
	}
	if !ok {
		return nil, false
	}
	return out, true
}

// absent resolves a missing object property: include reports whether the
// property appears in the output at all.
func (p *parser) absent(t *Type, path []any) (val any, include, ok bool) {
	r := t.Resolve()
	if r == nil {
		return nil, false, true
	}
	switch r.kind {
	case KindDefault:
		return r.defaultValue, true, true
	case KindOptional, KindUndefined:
		return nil, false, true
	case KindNullable, KindTransform:
		if IsOptional(r.inner) {
			return p.absent(r.inner, path)
		}
	}
	expected := string(r.kind)
	p.issues = append(p.issues, Issue{
		Code:     CodeInvalidType,
		Path:     append([]any(nil), path...),
		Message:  fmt.Sprintf("expected %s, received undefined", expected),
		Expected: expected,
		Received: "undefined",
	})
	return nil, false, false
}

func isNullAccepting(t *Type) bool {
	r := t.Resolve()
	if r == nil {
		return true
	}
	switch r.kind {
	case KindNull, KindNullable, KindAny, KindUnknown:
		return true
	case KindOptional, KindDefault:
		return isNullAccepting(r.inner)
	}
	return false
}

func (p *parser) parseArray(t *Type, v any, path []any) (any, bool) {
	items, ok := asSlice(v)
	if !ok {
		return nil, p.failType(path, "array", v)
	}
	ok = p.checkCount(t, len(items), path)
	out := make([]any, len(items))
	for i, item := range items {
		val, fine := p.parse(t.inner, item, append(path, i))
		if !fine {
			ok = false
			continue
		}
		out[i] = val
	}
	if !ok {
		return nil, false
	}
	return out, true
}

func (p *parser) checkCount(t *Type, n int, path []any) bool {
	ok := true
	if t.minItems != nil && n < *t.minItems {
		ok = p.fail(path, CodeTooSmall, fmt.Sprintf("too small: expected array to have >=%d items", *t.minItems))
	}
	if t.maxItems != nil && n > *t.maxItems {
		ok = p.fail(path, CodeTooBig, fmt.Sprintf("too big: expected array to have <=%d items", *t.maxItems))
	}
	return ok
}

func (p *parser) parseTuple(t *Type, v any, path []any) (any, bool) {
	items, ok := asSlice(v)
	if !ok {
		return nil, p.failType(path, "tuple", v)
	}
	required := len(t.items)
	for required > 0 && IsOptional(t.items[required-1]) {
		required--
	}
	if len(items) < required {
		return nil, p.fail(path, CodeTooSmall, fmt.Sprintf("too small: expected array to have >=%d items", required))
	}
	if t.rest == nil && len(items) > len(t.items) {
		return nil, p.fail(path, CodeTooBig, fmt.Sprintf("too big: expected array to have <=%d items", len(t.items)))
	}
	ok = p.checkCount(t, len(items), path)
	out := make([]any, len(items))
	for i, item := range items {
		elem := t.rest
		if i < len(t.items) {
			elem = t.items[i]
		}
		val, fine := p.parse(elem, item, append(path, i))
		if !fine {
			ok = false
			continue
		}
		out[i] = val
	}
	if !ok {
		return nil, false
	}
	return out, true
}

func (p *parser) parseRecord(t *Type, v any, path []any) (any, bool) {
	m, ok := asMap(v)
	if !ok {
		return nil, p.failType(path, "record", v)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(m))
	ok = true
	for _, k := range keys {
		keyPath := append(path, k)
		if t.key != nil {
			if _, fine := p.parse(t.key, k, keyPath); !fine {
				ok = false
				continue
			}
		}
		val, fine := p.parse(t.inner, m[k], keyPath)
		if !fine {
			ok = false
			continue
		}
		out[k] = val
	}
	if !ok {
		return nil, false
	}
	return out, true
}

func (p *parser) parseUnion(t *Type, v any, path []any) (any, bool) {
	for _, option := range t.items {
		sub := &parser{}
		if out, ok := sub.parse(option, v, path); ok && len(sub.issues) == 0 {
			return out, true
		}
	}
	return nil, p.fail(path, CodeInvalidUnion, "invalid input: no union member matched")
}

func (p *parser) parseIntersection(t *Type, v any, path []any) (any, bool) {
	left, okL := p.parse(t.items[0], v, path)
	right, okR := p.parse(t.items[1], v, path)
	if !okL || !okR {
		return nil, false
	}
	lm, lok := left.(map[string]any)
	rm, rok := right.(map[string]any)
	if lok && rok {
		merged := make(map[string]any, len(lm)+len(rm))
		for k, val := range lm {
			merged[k] = val
		}
		for k, val := range rm {
			merged[k] = val
		}
		return merged, true
	}
	return left, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case nil, string, bool:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func asSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, m != nil
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
			return nil, false
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, true
	case reflect.Struct:
		if _, isTime := rv.Interface().(time.Time); isTime {
			return nil, false
		}
		// structs are seen through their JSON encoding
		raw, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, false
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

func scalarEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case string:
		return "string"
	case bool:
		return "boolean"
	case time.Time, *time.Time:
		return "date"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	if _, ok := asSlice(v); ok {
		return "array"
	}
	if _, ok := asMap(v); ok {
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func renderValues(values []any) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			parts = append(parts, fmt.Sprint(v))
			continue
		}
		parts = append(parts, string(raw))
	}
	return strings.Join(parts, "|")
}

func formatNumber(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strconv.Quote(s)
	}
	return out
}
