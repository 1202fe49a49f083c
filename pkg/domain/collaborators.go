package domain

import (
	"context"
	"time"
)

// CatalogData is the validated configuration a CatalogSource yields at
// startup. TypeFields lists, per entity type, the field ids visible to the
// read projector in display order.
type CatalogData struct {
	Fields     []FieldDefinition `json:"fields"`
	TypeFields map[int64][]int64 `json:"type_fields"`
}

// CatalogSource loads the full field catalog once at startup. The engine
// treats the result as already validated; parsing configuration files is a
// collaborator concern.
type CatalogSource interface {
	Load(ctx context.Context) (CatalogData, error)
}

// GroupResolver maps an actor to the set of group ids it belongs to. Used
// only by the access gate.
type GroupResolver interface {
	GroupsOf(ctx context.Context, actorID int64) ([]int64, error)
}

// GroupResolverFunc adapts a function to the GroupResolver interface.
type GroupResolverFunc func(ctx context.Context, actorID int64) ([]int64, error)

// GroupsOf calls f.
func (f GroupResolverFunc) GroupsOf(ctx context.Context, actorID int64) ([]int64, error) {
	return f(ctx, actorID)
}

// Clock supplies the current timestamp for entity metadata and changelog
// entries.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }
