package spec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mark3labs/typeprovider/internal/openapi"
)

// ValidateDocument checks a generated document. OpenAPI 3.0 documents are
// validated with kin-openapi. OpenAPI 3.1 documents have every component and
// operation schema compiled as JSON Schema 2020-12, so dangling or malformed
// references surface before the document is written.
func ValidateDocument(ctx context.Context, doc map[string]any) error {
	ver, err := openapi.DetectVersion(openapi.DocumentObject{OpenAPI: doc})
	if err != nil {
		return &SpecError{Code: ParseError, Message: err.Error(), Cause: err}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return &SpecError{Code: ParseError, Message: fmt.Sprintf("encode document: %v", err), Cause: err}
	}
	if ver == openapi.Version30 {
		if err := validate30(ctx, raw); err != nil {
			return mapValidateOrParseErr(err, "")
		}
		return nil
	}
	return validate31(raw, doc)
}

const documentURL = "document.json"

func validate31(raw []byte, doc map[string]any) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(documentURL, bytes.NewReader(raw)); err != nil {
		return &SpecError{Code: ParseError, Message: err.Error(), Cause: err}
	}

	for _, ptr := range schemaPointers(doc) {
		if _, err := c.Compile(documentURL + "#" + encodePointer(ptr)); err != nil {
			return &SpecError{
				Code:        ValidationError,
				Message:     fmt.Sprintf("schema %s: %v", ptr, err),
				JSONPointer: "#" + joinPointer(ptr),
				Cause:       err,
			}
		}
	}
	return nil
}

// schemaPointers lists the location of every schema of doc: the component
// schemas, then the parameter, request body and response schemas of each
// operation. Each location is a list of unescaped reference tokens.
func schemaPointers(doc map[string]any) [][]string {
	var out [][]string
	components, _ := doc["components"].(map[string]any)
	schemas, _ := components["schemas"].(map[string]any)
	for _, name := range sortedKeys(schemas) {
		out = append(out, []string{"components", "schemas", name})
	}

	paths, _ := doc["paths"].(map[string]any)
	for _, path := range sortedKeys(paths) {
		item, _ := paths[path].(map[string]any)
		base := []string{"paths", path}
		out = append(out, parameterPointers(item, base)...)
		for _, method := range sortedKeys(item) {
			op, ok := item[method].(map[string]any)
			if !ok || method == "parameters" {
				continue
			}
			at := appendToken(base, method)
			out = append(out, parameterPointers(op, at)...)
			if body, ok := op["requestBody"].(map[string]any); ok {
				out = append(out, contentPointers(body, appendToken(at, "requestBody"))...)
			}
			responses, _ := op["responses"].(map[string]any)
			for _, code := range sortedKeys(responses) {
				if resp, ok := responses[code].(map[string]any); ok {
					out = append(out, contentPointers(resp, appendToken(at, "responses", code))...)
				}
			}
		}
	}
	return out
}

func parameterPointers(owner map[string]any, at []string) [][]string {
	params, _ := owner["parameters"].([]any)
	var out [][]string
	for i, p := range params {
		pm, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := pm["schema"].(map[string]any); ok {
			out = append(out, appendToken(at, "parameters", strconv.Itoa(i), "schema"))
		}
	}
	return out
}

func contentPointers(owner map[string]any, at []string) [][]string {
	content, _ := owner["content"].(map[string]any)
	var out [][]string
	for _, mt := range sortedKeys(content) {
		media, ok := content[mt].(map[string]any)
		if !ok {
			continue
		}
		if _, ok := media["schema"].(map[string]any); ok {
			out = append(out, appendToken(at, "content", mt, "schema"))
		}
	}
	return out
}

func appendToken(base []string, tokens ...string) []string {
	out := make([]string, 0, len(base)+len(tokens))
	out = append(out, base...)
	return append(out, tokens...)
}

func joinPointer(tokens []string) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(escapePointer(t))
	}
	return b.String()
}

// encodePointer renders tokens as a URI fragment.
func encodePointer(tokens []string) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(escapePointer(t)))
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
