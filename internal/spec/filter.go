package spec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mark3labs/typeprovider/internal/openapi"
)

// BuildOption configures Build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[string]struct{}
	pathRes     []*regexp.Regexp
	transform   []openapi.Option
	err         error
}

// WithTransformOptions passes options to the transformer, e.g.
// openapi.WithIDAsTitle or openapi.WithLogger.
func WithTransformOptions(opts ...openapi.Option) BuildOption {
	return func(c *buildConfig) { c.transform = append(c.transform, opts...) }
}

// WithIncludeTags keeps only routes that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) { c.includeTags = addTags(c.includeTags, tags) }
}

// WithExcludeTags removes routes that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) { c.excludeTags = addTags(c.excludeTags, tags) }
}

// WithMethods keeps only routes using one of the provided HTTP methods.
func WithMethods(methods []string) BuildOption {
	return func(c *buildConfig) {
		for _, m := range methods {
			m = strings.ToUpper(strings.TrimSpace(m))
			if m == "" {
				continue
			}
			if c.methods == nil {
				c.methods = make(map[string]struct{}, len(methods))
			}
			c.methods[m] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only routes whose url matches at least one of the
// regular expressions. An invalid pattern makes Build fail.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				if c.err == nil {
					c.err = &SpecError{Code: InputError, Message: fmt.Sprintf("invalid path pattern %q: %v", p, err), Cause: err}
				}
				continue
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

func addTags(set map[string]struct{}, tags []string) map[string]struct{} {
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{}, len(tags))
		}
		set[t] = struct{}{}
	}
	return set
}

// allow reports whether op passes the configured filters.
func (c *buildConfig) allow(op openapi.Operation) bool {
	if len(c.methods) > 0 {
		if _, ok := c.methods[op.Method]; !ok {
			return false
		}
	}
	if len(c.pathRes) > 0 {
		matched := false
		for _, re := range c.pathRes {
			if re.MatchString(op.URL) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return allowByTags(routeTags(op), c)
}

func allowByTags(tags []string, cfg *buildConfig) bool {
	if len(cfg.includeTags) > 0 {
		ok := false
		for _, t := range tags {
			if _, yes := cfg.includeTags[t]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range tags {
		if _, blocked := cfg.excludeTags[t]; blocked {
			return false
		}
	}
	return true
}

func routeTags(op openapi.Operation) []string {
	if op.Schema == nil {
		return nil
	}
	var tags []string
	switch v := op.Schema.Fields["tags"].(type) {
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	case []string:
		tags = v
	}
	return tags
}
