package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go-card-matcher/internal/index"
	"go-card-matcher/internal/region"
)

func TestNewBootstrapsMissingManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "templates.toml")
	t.Setenv("MANIFEST_PATH", manifest)
	t.Setenv("INDEX_PATH", filepath.Join(dir, "reference_index.db"))
	t.Setenv("ICON_DIR", filepath.Join(dir, "no_icons"))

	c, err := New(context.Background())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer c.Close()

	if _, err := os.Stat(manifest); err != nil {
		t.Errorf("builtin manifest was not persisted: %v", err)
	}
	if got := c.Registry.DefaultID(); got != region.BuiltinDefaultID {
		t.Errorf("DefaultID() = %q, want %q", got, region.BuiltinDefaultID)
	}
	if c.Engine == nil || c.Cache == nil || c.Index == nil {
		t.Error("container left components unwired")
	}

	// The bootstrapped manifest must round-trip through a normal load.
	reloaded, err := region.Load(manifest)
	if err != nil {
		t.Fatalf("reload bootstrapped manifest: %v", err)
	}
	if len(reloaded.Templates()) != len(region.BuiltinTemplates()) {
		t.Errorf("reloaded %d templates, want %d", len(reloaded.Templates()), len(region.BuiltinTemplates()))
	}
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	t.Setenv("OPERATING_MODE", "turbo")

	if _, err := New(context.Background()); err == nil {
		t.Error("New() accepted an invalid operating mode")
	}
}

func TestLexiconFromDeduplicatesNames(t *testing.T) {
	entries := []index.Entry{
		{ImageID: "a", Name: "Pikachu"},
		{ImageID: "b", Name: "Charizard"},
		{ImageID: "c", Name: "Pikachu"},
		{ImageID: "d"},
	}

	names := lexiconFrom(entries)
	if len(names) != 2 {
		t.Fatalf("lexiconFrom() = %v, want two distinct names", names)
	}
	if names[0] != "Pikachu" || names[1] != "Charizard" {
		t.Errorf("lexiconFrom() = %v, want first-seen order", names)
	}
}
