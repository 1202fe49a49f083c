package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"ticketcore/pkg/domain"
)

// FileSource loads catalog data from a JSON file of the shape:
//
//	{
//	  "fields": [{"id": 1, "name": "title", "kind": "text", "flags": 4, "ordering": 1}],
//	  "type_fields": {"1": [1]}
//	}
type FileSource struct {
	Path string
}

var _ domain.CatalogSource = FileSource{}

// Load reads and decodes the file. Structural validation happens in New.
func (s FileSource) Load(_ context.Context) (domain.CatalogData, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return domain.CatalogData{}, fmt.Errorf("read catalog file: %w", err)
	}
	var data domain.CatalogData
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return domain.CatalogData{}, fmt.Errorf("decode catalog file %s: %w", s.Path, err)
	}
	return data, nil
}
