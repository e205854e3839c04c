package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/typeprovider/internal/emitter/docemitter"
	"github.com/mark3labs/typeprovider/internal/openapi"
	genspec "github.com/mark3labs/typeprovider/internal/spec"
)

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Base            string
	Defs            string
	Out             string
	FileName        string
	Format          string
	IncludeTags     []string
	ExcludeTags     []string
	Methods         []string
	Paths           []string
	IDAsTitle       bool
	Validate        bool
	SplitComponents bool
	ConfigPath      string
	LogFormat       string
	DryRun          bool
	Force           bool
	Verbose         bool
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{Out: ".", Format: "json", Validate: true, LogFormat: "console"}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an OpenAPI document from type definitions and routes",
		Long: "Generate an OpenAPI 3.0 or 3.1 document by merging the routes and registered types of a " +
			"definitions file into a base document. Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  typeprovider generate --base base.yaml --defs types.yaml --out ./api
  typeprovider --config config.yaml generate --format yaml --force --dry-run`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("base", "", "Path or URL to the base OpenAPI 3.0/3.1 document")
	flags.String("defs", "", "Path to the definitions file (types and routes)")
	flags.String("out", "", "Output directory; defaults to the current directory")
	flags.String("file-name", "", "Output file name; defaults to openapi.<format>")
	flags.String("format", "", "Output format (json|yaml); defaults to json")
	flags.StringSlice("include-tags", nil, "Only include routes with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude routes with these tags")
	flags.StringSlice("methods", nil, "Only include routes using these HTTP methods")
	flags.StringSlice("paths", nil, "Only include routes whose url matches one of these regular expressions")
	flags.Bool("set-id-as-title", false, "Use component ids as titles when no title is set")
	flags.Bool("validate", true, "Validate the generated document before writing it")
	flags.Bool("split-components", false, "Also write every component schema to schemas/<name>.<format>")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Overwrite existing output when set")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	strs := []struct {
		name string
		dest *string
	}{
		{"base", &cfg.Base},
		{"defs", &cfg.Defs},
		{"out", &cfg.Out},
		{"file-name", &cfg.FileName},
		{"format", &cfg.Format},
		{"log-format", &cfg.LogFormat},
	}
	for _, f := range strs {
		if !flags.Changed(f.name) {
			continue
		}
		value, err := flags.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dest = strings.TrimSpace(value)
	}

	slices := []struct {
		name string
		dest *[]string
	}{
		{"include-tags", &cfg.IncludeTags},
		{"exclude-tags", &cfg.ExcludeTags},
		{"methods", &cfg.Methods},
		{"paths", &cfg.Paths},
	}
	for _, f := range slices {
		if !flags.Changed(f.name) {
			continue
		}
		value, err := flags.GetStringSlice(f.name)
		if err != nil {
			return err
		}
		*f.dest = sanitizeTags(value)
	}

	bools := []struct {
		name string
		dest *bool
	}{
		{"set-id-as-title", &cfg.IDAsTitle},
		{"validate", &cfg.Validate},
		{"split-components", &cfg.SplitComponents},
		{"dry-run", &cfg.DryRun},
		{"force", &cfg.Force},
		{"verbose", &cfg.Verbose},
	}
	for _, f := range bools {
		if !flags.Changed(f.name) {
			continue
		}
		value, err := flags.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dest = value
	}

	return nil
}

func (c *GenerateConfig) normalize() {
	c.Base = strings.TrimSpace(c.Base)
	c.Defs = strings.TrimSpace(c.Defs)
	c.Out = strings.TrimSpace(c.Out)
	if c.Out == "" {
		c.Out = "."
	}
	c.FileName = strings.TrimSpace(c.FileName)
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.IncludeTags = sanitizeTags(c.IncludeTags)
	c.ExcludeTags = sanitizeTags(c.ExcludeTags)
	c.Methods = sanitizeTags(c.Methods)
	for i, m := range c.Methods {
		c.Methods[i] = strings.ToUpper(m)
	}
	c.Paths = sanitizeTags(c.Paths)
}

func (c *GenerateConfig) validate() error {
	if c.Base == "" {
		return newUsageError("generate: --base is required (set via flag or config file)")
	}
	if c.Defs == "" {
		return newUsageError("generate: --defs is required (set via flag or config file)")
	}

	format, err := docemitter.ParseFormat(c.Format)
	if err != nil {
		return newUsageError(fmt.Sprintf("generate: unsupported --format %q (allowed: json, yaml)", c.Format))
	}
	c.Format = string(format)

	switch c.LogFormat {
	case "", "console", "json", "pretty":
	default:
		return newUsageError(fmt.Sprintf("generate: unsupported --log-format %q (allowed: console, json, pretty)", c.LogFormat))
	}

	overlap := intersect(c.IncludeTags, c.ExcludeTags)
	if len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("generate: include/exclude tags overlap: %s", strings.Join(overlap, ", ")))
	}

	return nil
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	logger := newLogger(cfg.Verbose, cfg.LogFormat).GetLogger("generate")

	// 1) Load the base document (file or http/https URL)
	doc, err := genspec.Load(ctx, cfg.Base)
	if err != nil {
		return specUsageError(err)
	}
	logger.Debug("base document loaded", "location", doc.Location)

	// 2) Load the definitions file
	defs, err := genspec.LoadDefinitions(cfg.Defs)
	if err != nil {
		return specUsageError(err)
	}
	logger.Debug("definitions loaded", "types", len(defs.Names), "routes", len(defs.Routes))

	// 3) Transform routes and components into the document
	out, err := genspec.Build(doc, defs,
		genspec.WithIncludeTags(cfg.IncludeTags),
		genspec.WithExcludeTags(cfg.ExcludeTags),
		genspec.WithMethods(cfg.Methods),
		genspec.WithPathPatterns(cfg.Paths),
		genspec.WithTransformOptions(
			openapi.WithIDAsTitle(cfg.IDAsTitle),
			openapi.WithLogger(logger),
		),
	)
	if err != nil {
		return buildError(err)
	}

	// 4) Validate the result
	if cfg.Validate {
		if err := genspec.ValidateDocument(ctx, out); err != nil {
			return specUsageError(err)
		}
		logger.Debug("generated document validated")
	}

	// 5) Write
	absOut := cfg.Out
	if ap, err := filepath.Abs(cfg.Out); err == nil {
		absOut = ap
	}
	res, err := docemitter.Emit(ctx, out, docemitter.Options{
		OutDir:          cfg.Out,
		FileName:        cfg.FileName,
		Format:          docemitter.Format(cfg.Format),
		SplitComponents: cfg.SplitComponents,
		Force:           cfg.Force,
		DryRun:          cfg.DryRun,
		Verbose:         cfg.Verbose,
	})
	if err != nil {
		return wrapOutputError(err, absOut)
	}
	if cfg.DryRun {
		paths := make([]string, 0, len(res.Planned))
		for _, p := range res.Planned {
			paths = append(paths, p.RelPath)
		}
		printPlan(absOut, len(res.Planned), paths)
		return nil
	}
	logger.Info("document written", "path", filepath.Join(absOut, filepath.FromSlash(res.Document)), "files", len(res.Planned))
	return nil
}

// specUsageError maps structured spec errors into friendly messages.
func specUsageError(err error) error {
	var se *genspec.SpecError
	if !errors.As(err, &se) {
		return err
	}
	msg := fmt.Sprintf("spec: %s", se.Message)
	if se.Location != "" {
		msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
	}
	if se.JSONPointer != "" {
		msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
	}
	return wrapUsage(err, msg, "")
}

// buildError turns the compiler errors a user can fix in their inputs into
// usage errors.
func buildError(err error) error {
	var (
		ude *openapi.UnsupportedDialectError
		cce *openapi.ComponentNameCollisionError
		ise *openapi.InvalidSchemaError
	)
	switch {
	case errors.As(err, &ude):
		return wrapUsage(err, fmt.Sprintf("generate: %v", err), "only OpenAPI 3.0 and 3.1 base documents are supported; Swagger 2.0 is not converted.")
	case errors.As(err, &cce):
		return wrapUsage(err, fmt.Sprintf("generate: %v", err), fmt.Sprintf("rename the type whose id is %q.", strings.TrimSuffix(cce.Name, "Input")))
	case errors.As(err, &ise):
		return wrapUsage(err, fmt.Sprintf("generate: %v", err), "")
	}
	return specUsageError(err)
}

func printPlan(outDir string, count int, relPaths []string) {
	fmt.Fprintf(os.Stdout, "Planned writes to %s (%d files):\n", outDir, count)
	for _, p := range relPaths {
		fmt.Fprintf(os.Stdout, "- %s\n", p)
	}
}

func wrapOutputError(err error, outDir string) error {
	// Provide clearer guidance for common FS failures.
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") || strings.Contains(lower, "already exists") {
		return wrapUsage(err, fmt.Sprintf("output error for %s: %s", outDir, msg), "choose a different --out or use --force when appropriate.")
	}
	return err
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return wrapUsage(err, fmt.Sprintf("read config file %q: %v", path, err), "")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return wrapUsage(err, fmt.Sprintf("parse config file %q: %v", path, err), "")
	}

	strs := map[string]*string{
		"base":      &cfg.Base,
		"defs":      &cfg.Defs,
		"out":       &cfg.Out,
		"filename":  &cfg.FileName,
		"format":    &cfg.Format,
		"logformat": &cfg.LogFormat,
	}
	lists := map[string]*[]string{
		"includetags": &cfg.IncludeTags,
		"excludetags": &cfg.ExcludeTags,
		"methods":     &cfg.Methods,
		"paths":       &cfg.Paths,
	}
	bools := map[string]*bool{
		"setidastitle":    &cfg.IDAsTitle,
		"idastitle":       &cfg.IDAsTitle,
		"validate":        &cfg.Validate,
		"splitcomponents": &cfg.SplitComponents,
		"dryrun":          &cfg.DryRun,
		"force":           &cfg.Force,
		"verbose":         &cfg.Verbose,
	}

	for key, value := range raw {
		normalized := normalizeKey(key)
		if dest, ok := strs[normalized]; ok {
			str, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dest = str
			continue
		}
		if dest, ok := lists[normalized]; ok {
			list, err := valueAsStringSlice(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dest = sanitizeTags(list)
			continue
		}
		if dest, ok := bools[normalized]; ok {
			val, err := valueAsBool(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*dest = val
			continue
		}
		return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
