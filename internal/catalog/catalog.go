// Package catalog holds the immutable field catalog loaded once at startup.
// Lookups are pure and safe for unsynchronized concurrent use.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"ticketcore/pkg/domain"
)

// Catalog is the loaded registry of field definitions and per-type field
// bindings. It has no mutation API.
type Catalog struct {
	fields     map[int64]domain.FieldDefinition
	byKind     map[domain.StorageKind][]domain.FieldDefinition
	typeFields map[int64][]int64
}

// Load reads the catalog from its source and validates cross-references.
func Load(ctx context.Context, src domain.CatalogSource) (*Catalog, error) {
	data, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return New(data)
}

// New builds a catalog from already-loaded data. It rejects duplicate ids,
// unknown storage kinds, dangling parents, and asymmetric reverse
// declarations.
func New(data domain.CatalogData) (*Catalog, error) {
	c := &Catalog{
		fields:     make(map[int64]domain.FieldDefinition, len(data.Fields)),
		byKind:     make(map[domain.StorageKind][]domain.FieldDefinition),
		typeFields: make(map[int64][]int64, len(data.TypeFields)),
	}
	for _, def := range data.Fields {
		if def.ID <= 0 {
			return nil, fmt.Errorf("field %q: id must be positive", def.Name)
		}
		if !def.Kind.Valid() {
			return nil, fmt.Errorf("field %d: unknown storage kind %q", def.ID, def.Kind)
		}
		if _, dup := c.fields[def.ID]; dup {
			return nil, fmt.Errorf("field %d: duplicate id", def.ID)
		}
		c.fields[def.ID] = def
	}
	for _, def := range c.fields {
		if def.ParentFieldID != 0 {
			if _, ok := c.fields[def.ParentFieldID]; !ok {
				return nil, fmt.Errorf("field %d: parent %d not defined", def.ID, def.ParentFieldID)
			}
		}
		if def.ReverseFieldID == 0 {
			continue
		}
		if def.Kind != domain.KindEntityRelation {
			return nil, fmt.Errorf("field %d: reverse declared on non-relation kind %s", def.ID, def.Kind)
		}
		rev, ok := c.fields[def.ReverseFieldID]
		if !ok {
			return nil, fmt.Errorf("field %d: reverse %d not defined", def.ID, def.ReverseFieldID)
		}
		if rev.Kind != domain.KindEntityRelation {
			return nil, fmt.Errorf("field %d: reverse %d is not a relation field", def.ID, rev.ID)
		}
		if rev.ReverseFieldID != def.ID {
			return nil, fmt.Errorf("field %d: reverse %d points back at %d", def.ID, rev.ID, rev.ReverseFieldID)
		}
	}
	for _, def := range c.fields {
		c.byKind[def.Kind] = append(c.byKind[def.Kind], def)
	}
	for kind := range c.byKind {
		defs := c.byKind[kind]
		sort.Slice(defs, func(i, j int) bool {
			if defs[i].Ordering != defs[j].Ordering {
				return defs[i].Ordering < defs[j].Ordering
			}
			return defs[i].ID < defs[j].ID
		})
	}
	for typeID, fieldIDs := range data.TypeFields {
		for _, id := range fieldIDs {
			if _, ok := c.fields[id]; !ok {
				return nil, fmt.Errorf("type %d: unknown field %d", typeID, id)
			}
		}
		c.typeFields[typeID] = append([]int64(nil), fieldIDs...)
	}
	return c, nil
}

// Definition returns the definition for the given field id.
func (c *Catalog) Definition(fieldID int64) (domain.FieldDefinition, error) {
	def, ok := c.fields[fieldID]
	if !ok {
		return domain.FieldDefinition{}, domain.NotFoundError{Kind: "field", ID: fieldID}
	}
	return def, nil
}

// FieldsForKind returns all fields of one storage kind, ordered by display
// ordering then id.
func (c *Catalog) FieldsForKind(kind domain.StorageKind) []domain.FieldDefinition {
	return append([]domain.FieldDefinition(nil), c.byKind[kind]...)
}

// ReverseOf returns the declared inverse field id, if any. Only the current
// mapping is reported; historical reassignments are not the catalog's
// concern.
func (c *Catalog) ReverseOf(fieldID int64) (int64, bool) {
	def, ok := c.fields[fieldID]
	if !ok || def.ReverseFieldID == 0 {
		return 0, false
	}
	return def.ReverseFieldID, true
}

// FieldsForType returns the fields visible for an entity type, in binding
// order. Types without a binding see no fields.
func (c *Catalog) FieldsForType(typeID int64) []domain.FieldDefinition {
	ids := c.typeFields[typeID]
	out := make([]domain.FieldDefinition, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.fields[id])
	}
	return out
}
