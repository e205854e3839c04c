package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	genspec "github.com/mark3labs/typeprovider/internal/spec"
)

func TestInit_WritesSampleFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	defsPath := filepath.Join(dir, "defs.yaml")

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path, "--defs", defsPath})

	if err := root.Execute(); err != nil {
		t.Fatalf("init execute: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "typeprovider configuration") || !strings.Contains(s, "defs: "+filepath.ToSlash(defsPath)) {
		t.Fatalf("unexpected config contents: %s", s)
	}

	defs, err := genspec.LoadDefinitions(defsPath)
	if err != nil {
		t.Fatalf("sample definitions do not load: %v", err)
	}
	if len(defs.Routes) != 3 || defs.Registry.Len() != 2 {
		t.Fatalf("unexpected sample definitions: %d routes, %d components", len(defs.Routes), defs.Registry.Len())
	}
}

func TestInit_ExistingWithoutForce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("prewrite: %v", err)
	}

	root := NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"init", "--out", path, "--defs", filepath.Join(dir, "defs.yaml")})

	err := root.Execute()
	if err == nil {
		t.Fatalf("expected error for existing file without --force")
	}
	if _, ok := err.(*usageError); !ok {
		t.Fatalf("expected usage error, got %T: %v", err, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "defs.yaml")); err == nil {
		t.Fatalf("nothing should be written when a target exists")
	}
}
