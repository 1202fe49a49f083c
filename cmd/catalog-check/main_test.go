package main

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func writeCatalogFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}
}

const validCatalog = `{
  "fields": [
    {"id": 1, "name": "title", "kind": "text", "flags": 4, "ordering": 1},
    {"id": 10, "name": "contains", "kind": "entity_relation", "flags": 3, "reverse_field_id": 11, "ordering": 2},
    {"id": 11, "name": "contained_in", "kind": "entity_relation", "flags": 3, "reverse_field_id": 10, "ordering": 3}
  ],
  "type_fields": {"1": [1, 10], "2": [1, 11]}
}`

func TestCliSuccess(t *testing.T) {
	t.Chdir(t.TempDir())
	writeCatalogFile(t, "catalog.json", validCatalog)

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-catalog", "catalog.json"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("cli returned %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Catalog validation passed.") {
		t.Fatalf("unexpected stdout: %s", stdout.String())
	}
}

func TestCliMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-catalog", "nope.json"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("cli returned %d", code)
	}
	if !strings.Contains(stderr.String(), "Catalog validation failed") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}

func TestCliRejectsBadFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-bogus"}, &stdout, &stderr); code != 2 {
		t.Fatalf("cli returned %d for unknown flag", code)
	}
}

func TestRunRejectsAsymmetricReverse(t *testing.T) {
	t.Chdir(t.TempDir())
	writeCatalogFile(t, "catalog.json", `{
  "fields": [
    {"id": 10, "name": "contains", "kind": "entity_relation", "flags": 3, "reverse_field_id": 11, "ordering": 1},
    {"id": 11, "name": "contained_in", "kind": "entity_relation", "flags": 3, "reverse_field_id": 99, "ordering": 2}
  ],
  "type_fields": {}
}`)
	if err := run("catalog.json"); err == nil {
		t.Fatalf("expected asymmetric reverse rejection")
	}
}

func TestRunRejectsUnknownKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	writeCatalogFile(t, "catalog.json", `{"fields": [], "type_fields": {}, "extra": true}`)
	if err := run("catalog.json"); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("expected unknown-key rejection, got %v", err)
	}
}

func TestValidatePath(t *testing.T) {
	for _, bad := range []string{"", "  ", "/etc/passwd", "../outside.json", "a/../../b.json"} {
		if _, err := validatePath(bad); err == nil {
			t.Fatalf("path %q accepted", bad)
		}
	}
	clean, err := validatePath("./docs/catalog.json")
	if err != nil {
		t.Fatalf("validatePath: %v", err)
	}
	if clean != "docs/catalog.json" {
		t.Fatalf("clean = %q", clean)
	}
}
