package docemitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format is the serialization of the written document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("docemitter: unsupported format %q (json, yaml)", s)
}

// Options controls how the document is written.
type Options struct {
	OutDir   string // required; target directory
	FileName string // defaults to openapi.<format>
	Format   Format // defaults to json
	// SplitComponents also writes every components.schemas entry to
	// schemas/<name>.<format>.
	SplitComponents bool
	Force           bool // overwrite existing files
	DryRun          bool // don't write, only plan
	Verbose         bool
}

// PlannedFile describes a file the emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result returns the planned files and the resolved document path.
type Result struct {
	Format   Format
	Document string
	Planned  []PlannedFile
}

// Emit renders doc and writes it below opts.OutDir.
func Emit(ctx context.Context, doc map[string]any, opts Options) (*Result, error) {
	_ = ctx
	if doc == nil {
		return nil, fmt.Errorf("docemitter: nil document")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("docemitter: OutDir is required")
	}
	format := opts.Format
	if format == "" {
		format = FormatJSON
	}
	name := strings.TrimSpace(opts.FileName)
	if name == "" {
		name = "openapi." + string(format)
	}

	files := map[string][]byte{}
	body, err := Encode(doc, format)
	if err != nil {
		return nil, err
	}
	files[filepath.ToSlash(name)] = body

	if opts.SplitComponents {
		components, _ := doc["components"].(map[string]any)
		schemas, _ := components["schemas"].(map[string]any)
		for cname, s := range schemas {
			b, err := Encode(s, format)
			if err != nil {
				return nil, fmt.Errorf("docemitter: component %s: %w", cname, err)
			}
			files[filepath.ToSlash(filepath.Join("schemas", cname+"."+string(format)))] = b
		}
	}

	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, p)
	}
	sort.Strings(rels)

	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		if err := checkRelPath(rel); err != nil {
			return nil, err
		}
		planned = append(planned, PlannedFile{RelPath: rel, Size: len(files[rel]), Mode: 0o644})
	}

	if !opts.DryRun {
		if err := writeFiles(opts.OutDir, files, opts.Force); err != nil {
			return nil, err
		}
	}
	return &Result{Format: format, Document: filepath.ToSlash(name), Planned: planned}, nil
}

// Encode serializes v as indented JSON (HTML characters unescaped) or YAML.
// Output always ends with a newline.
func Encode(v any, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("docemitter: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("docemitter: encode yaml: %w", err)
		}
	case FormatJSON, "":
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return nil, fmt.Errorf("docemitter: encode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("docemitter: unsupported format %q", format)
	}
	return buf.Bytes(), nil
}

func writeFiles(outDir string, files map[string][]byte, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	// Pre-flight so nothing is written when any target already exists.
	if !force {
		for rel := range files {
			p := filepath.Join(abs, filepath.FromSlash(rel))
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("docemitter: %q already exists (use --force to overwrite)", p)
			}
		}
	}
	for rel := range files {
		if _, err := within(abs, rel); err != nil {
			return err
		}
	}
	for rel, content := range files {
		p := filepath.Join(abs, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		// atomic write via temp file + rename
		tmp := p + ".tmp-" + time.Now().Format("20060102150405")
		if err := os.WriteFile(tmp, content, 0o644); err != nil {
			return fmt.Errorf("write temp %s: %w", rel, err)
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("rename %s: %w", rel, err)
		}
	}
	return nil
}

// checkRelPath rejects planned paths that would leave the output directory.
func checkRelPath(rel string) error {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("docemitter: %q escapes the output directory", rel)
	}
	return nil
}

// within joins rel to abs and fails when the result is not below abs.
func within(abs, rel string) (string, error) {
	p := filepath.Join(abs, filepath.FromSlash(rel))
	r, err := filepath.Rel(abs, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("docemitter: %q escapes the output directory", rel)
	}
	return p, nil
}
