package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ticketcore/pkg/domain"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestFileSourceLoadsCatalogData(t *testing.T) {
	path := writeFile(t, `{
  "fields": [{"id": 1, "name": "title", "kind": "text", "flags": 4, "ordering": 1}],
  "type_fields": {"1": [1]}
}`)

	data, err := FileSource{Path: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(data.Fields) != 1 || data.Fields[0].Kind != domain.KindText {
		t.Fatalf("unexpected fields: %+v", data.Fields)
	}
	if got := data.TypeFields[1]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("unexpected type fields: %+v", data.TypeFields)
	}

	// The loaded data feeds straight into catalog construction.
	if _, err := Load(context.Background(), FileSource{Path: path}); err != nil {
		t.Fatalf("Load into catalog: %v", err)
	}
}

func TestFileSourceRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, `{"fields": [], "type_fields": {}, "surprise": 1}`)
	_, err := FileSource{Path: path}.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("expected unknown-key error, got %v", err)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := FileSource{Path: filepath.Join(t.TempDir(), "absent.json")}.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read catalog file") {
		t.Fatalf("expected read error, got %v", err)
	}
}
