package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ticketcore/pkg/domain"
)

func validData() domain.CatalogData {
	return domain.CatalogData{
		Fields: []domain.FieldDefinition{
			{ID: 1, Name: "title", Kind: domain.KindText, Flags: domain.FlagRequired, Ordering: 1},
			{ID: 2, Name: "priority", Kind: domain.KindInteger, Ordering: 2},
			{ID: 3, Name: "estimate", Kind: domain.KindAmount, Ordering: 3},
			{ID: 4, Name: "external_ref", Kind: domain.KindUUID, Ordering: 4},
			{ID: 5, Name: "component", Kind: domain.KindCategoryRef, Ordering: 5},
			{ID: 10, Name: "contains", Kind: domain.KindEntityRelation,
				Flags: domain.FlagIsArray | domain.FlagArrayHasCount, ReverseFieldID: 11, Ordering: 10},
			{ID: 11, Name: "contained_in", Kind: domain.KindEntityRelation,
				Flags: domain.FlagIsArray | domain.FlagArrayHasCount, ReverseFieldID: 10, Ordering: 11},
		},
		TypeFields: map[int64][]int64{
			1: {1, 2, 10},
			2: {1, 11},
		},
	}
}

type sourceFunc func(ctx context.Context) (domain.CatalogData, error)

func (f sourceFunc) Load(ctx context.Context) (domain.CatalogData, error) { return f(ctx) }

func TestLoadFromSource(t *testing.T) {
	cat, err := Load(context.Background(), sourceFunc(func(context.Context) (domain.CatalogData, error) {
		return validData(), nil
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def, err := cat.Definition(10)
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	if def.Name != "contains" {
		t.Fatalf("unexpected definition: %+v", def)
	}
}

func TestLoadPropagatesSourceError(t *testing.T) {
	_, err := Load(context.Background(), sourceFunc(func(context.Context) (domain.CatalogData, error) {
		return domain.CatalogData{}, errors.New("backend down")
	}))
	if err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestDefinitionNotFound(t *testing.T) {
	cat, err := New(validData())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = cat.Definition(99)
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.Kind != "field" || nf.ID != 99 {
		t.Fatalf("unexpected not-found payload: %+v", nf)
	}
}

func TestFieldsForKindOrdering(t *testing.T) {
	data := validData()
	data.Fields = append(data.Fields, domain.FieldDefinition{ID: 6, Name: "summary", Kind: domain.KindText, Ordering: 0.5})
	cat, err := New(data)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	texts := cat.FieldsForKind(domain.KindText)
	if len(texts) != 2 {
		t.Fatalf("expected 2 text fields, got %d", len(texts))
	}
	if texts[0].ID != 6 || texts[1].ID != 1 {
		t.Fatalf("expected ordering to win: %+v", texts)
	}
}

func TestReverseOf(t *testing.T) {
	cat, err := New(validData())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rev, ok := cat.ReverseOf(10)
	if !ok || rev != 11 {
		t.Fatalf("expected reverse 11, got %d ok=%v", rev, ok)
	}
	if _, ok := cat.ReverseOf(1); ok {
		t.Fatalf("did not expect a reverse for a text field")
	}
	if _, ok := cat.ReverseOf(99); ok {
		t.Fatalf("did not expect a reverse for an unknown field")
	}
}

func TestFieldsForType(t *testing.T) {
	cat, err := New(validData())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	fields := cat.FieldsForType(1)
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields for type 1, got %d", len(fields))
	}
	if fields[2].ID != 10 {
		t.Fatalf("expected binding order to be preserved: %+v", fields)
	}
	if got := cat.FieldsForType(42); len(got) != 0 {
		t.Fatalf("expected no fields for unbound type, got %d", len(got))
	}
}

func TestNewRejectsBadCatalogs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.CatalogData)
		want   string
	}{
		{"duplicate id", func(d *domain.CatalogData) {
			d.Fields = append(d.Fields, domain.FieldDefinition{ID: 1, Name: "dup", Kind: domain.KindText})
		}, "duplicate id"},
		{"non positive id", func(d *domain.CatalogData) {
			d.Fields = append(d.Fields, domain.FieldDefinition{ID: 0, Name: "zero", Kind: domain.KindText})
		}, "id must be positive"},
		{"unknown kind", func(d *domain.CatalogData) {
			d.Fields = append(d.Fields, domain.FieldDefinition{ID: 20, Name: "blob", Kind: "blob"})
		}, "unknown storage kind"},
		{"dangling parent", func(d *domain.CatalogData) {
			d.Fields = append(d.Fields, domain.FieldDefinition{ID: 21, Name: "facet", Kind: domain.KindText, ParentFieldID: 77})
		}, "parent 77 not defined"},
		{"reverse on scalar", func(d *domain.CatalogData) {
			d.Fields = append(d.Fields, domain.FieldDefinition{ID: 22, Name: "odd", Kind: domain.KindText, ReverseFieldID: 10})
		}, "non-relation kind"},
		{"dangling reverse", func(d *domain.CatalogData) {
			d.Fields = append(d.Fields, domain.FieldDefinition{ID: 23, Name: "rel", Kind: domain.KindEntityRelation, ReverseFieldID: 88})
		}, "reverse 88 not defined"},
		{"asymmetric reverse", func(d *domain.CatalogData) {
			d.Fields = append(d.Fields,
				domain.FieldDefinition{ID: 24, Name: "a", Kind: domain.KindEntityRelation, ReverseFieldID: 25},
				domain.FieldDefinition{ID: 25, Name: "b", Kind: domain.KindEntityRelation, ReverseFieldID: 10})
		}, "points back at"},
		{"unknown type binding", func(d *domain.CatalogData) {
			d.TypeFields[9] = []int64{404}
		}, "unknown field 404"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := validData()
			tc.mutate(&data)
			_, err := New(data)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
