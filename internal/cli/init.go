package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	DefsPath   string
	Force      bool
	Verbose    bool
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample configuration and definitions file",
		Long:  "Scaffold a commented typeprovider configuration file and a sample definitions file that documents the type and route syntax.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			defs, err := cmd.Flags().GetString("defs")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				DefsPath:   defs,
				Force:      force,
				Verbose:    verbose,
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", "typeprovider.yaml", "Where to write the sample config file")
	cmd.Flags().String("defs", "definitions.yaml", "Where to write the sample definitions file")
	cmd.Flags().Bool("force", false, "Overwrite the target files if they already exist")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = "typeprovider.yaml"
	}
	defs := strings.TrimSpace(cfg.DefsPath)
	if defs == "" {
		defs = "definitions.yaml"
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}
	absDefs, err := filepath.Abs(defs)
	if err != nil {
		return fmt.Errorf("init: resolve definitions path: %w", err)
	}

	if !cfg.Force {
		for _, p := range []string{absOut, absDefs} {
			if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
				return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", p))
			}
		}
	}

	config := strings.ReplaceAll(strings.TrimSpace(sampleConfigYAML), "{{defs}}", filepath.ToSlash(defs)) + "\n"
	if err := writeAtomic(absOut, config); err != nil {
		return err
	}
	if err := writeAtomic(absDefs, strings.TrimSpace(sampleDefinitionsYAML)+"\n"); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", absOut)
	fmt.Fprintf(os.Stdout, "Wrote sample definitions to %s\n", absDefs)
	return nil
}

func writeAtomic(absPath, content string) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return wrapUsage(err, fmt.Sprintf("init: cannot create parent directory: %v", err), "")
	}
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return wrapUsage(err, fmt.Sprintf("init: cannot write temp file: %v", err), "choose a different --out or check directory permissions.")
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return wrapUsage(err, fmt.Sprintf("init: cannot place file at %s: %v", absPath, err), "")
	}
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# typeprovider configuration (YAML)
# Command-line flags override config values.

# Path or URL to the base OpenAPI 3.0/3.1 document (http/https or local file).
# base: ./base.yaml

# Definitions file with types and routes.
defs: {{defs}}

# Output directory and file. The file name defaults to openapi.<format>.
# out: ./api
# fileName: openapi.json

# Output format (json|yaml).
# format: json

# Only include routes with these tags (comma-separated or list).
# includeTags: [public]

# Exclude routes with these tags (comma-separated or list).
# excludeTags: [internal]

# Only include routes using these methods, or whose url matches a pattern.
# methods: [GET, POST]
# paths: ["^/users"]

# Use component ids as schema titles when no title is set.
# setIdAsTitle: false

# Validate the generated document before writing (kin-openapi for 3.0,
# JSON Schema 2020-12 compilation for 3.1).
# validate: true

# Also write every component to schemas/<name>.<format>.
# splitComponents: false

# Preview planned outputs without writing files.
# dryRun: false

# Overwrite existing output files.
# force: false

# Enable verbose logging; logFormat is console, json or pretty.
# verbose: false
# logFormat: console
`

// sampleDefinitionsYAML documents the definitions syntax.
const sampleDefinitionsYAML = `# Named types. A type with an id becomes a component: <id> for responses
# and <id>Input for request parts.
types:
  Group:
    id: Group
    type: object
    properties:
      name: {type: string, minLength: 1}
      parent: {ref: Group, optional: true}
  User:
    id: User
    description: A registered user
    example: {id: 7c9e6679-7425-40de-944b-e07fc1f90ae7, name: Ada, groups: []}
    type: object
    properties:
      id: {type: string, format: uuid}
      name: string
      email: {type: string, format: email, optional: true}
      groups: {type: array, items: {ref: Group}}
      createdAt: {type: date, optional: true}

# Routes reference types by ref or declare them inline. Any other key
# (summary, tags, operationId, ...) is copied onto the operation.
routes:
  - method: GET
    url: /users/:id
    summary: Fetch a user
    tags: [users]
    params:
      type: object
      properties:
        id: {type: string, format: uuid}
    response:
      200: {ref: User}
      404: undefined
  - method: POST
    url: /users
    tags: [users]
    body: {ref: User}
    response:
      201: {ref: User}
  - method: DELETE
    url: /users/:id
    hide: true
`
