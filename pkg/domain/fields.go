// Package domain defines the persistent record types, field catalog
// primitives, permission model, and error taxonomy used by ticketcore.
package domain

// StorageKind identifies which value store holds a field's rows. A field's
// kind is fixed for its lifetime; no field may appear in two stores.
type StorageKind string

// Supported storage kinds. The set is closed: new field behaviors are added
// by extending this enum and the matching store strategy, never at runtime.
const (
	// KindText stores free-form UTF-8 strings.
	KindText StorageKind = "text"
	// KindInteger stores signed 64-bit integers.
	KindInteger StorageKind = "integer"
	// KindFloat stores IEEE-754 doubles.
	KindFloat StorageKind = "float"
	// KindAmount stores monetary amounts as integral minor units.
	KindAmount StorageKind = "amount"
	// KindUUID stores RFC 4122 identifiers in canonical text form.
	KindUUID StorageKind = "uuid"
	// KindCategoryRef stores references into externally managed vocabularies.
	KindCategoryRef StorageKind = "category_ref"
	// KindEntityRelation stores counted links to other entities.
	KindEntityRelation StorageKind = "entity_relation"
)

// Valid reports whether k is one of the supported storage kinds.
func (k StorageKind) Valid() bool {
	switch k {
	case KindText, KindInteger, KindFloat, KindAmount, KindUUID, KindCategoryRef, KindEntityRelation:
		return true
	}
	return false
}

// FieldFlag is a bitset of field behaviors declared in the catalog.
type FieldFlag uint32

// Field behavior flags.
const (
	// FlagIsArray marks fields that may hold multiple concurrent values per entity.
	FlagIsArray FieldFlag = 1 << iota
	// FlagArrayHasCount marks array fields whose items carry an aggregate count.
	FlagArrayHasCount
	// FlagRequired marks fields that must be supplied on entity creation.
	FlagRequired
	// FlagSortable marks fields usable as sort keys by display layers.
	FlagSortable
	// FlagVisibilityConfig marks fields whose visibility is configuration driven.
	FlagVisibilityConfig
)

// Has reports whether all bits of q are set in f.
func (f FieldFlag) Has(q FieldFlag) bool { return f&q == q }

// FieldDefinition describes one field in the catalog. Definitions are
// immutable after catalog load.
type FieldDefinition struct {
	ID   int64       `json:"id"`
	Name string      `json:"name"`
	Kind StorageKind `json:"kind"`
	// Flags carries the behavior bitset declared for this field.
	Flags FieldFlag `json:"flags"`
	// ReverseFieldID names the inverse relation field, or 0 when the field
	// has no declared reverse. Only meaningful for KindEntityRelation.
	ReverseFieldID int64 `json:"reverse_field_id,omitempty"`
	// ParentFieldID links sub-facet fields to their parent, or 0.
	ParentFieldID int64 `json:"parent_field_id,omitempty"`
	// Ordering controls display order only; it never affects storage.
	Ordering float64 `json:"ordering"`
}

// IsArray reports whether the field holds multiple concurrent values.
func (d FieldDefinition) IsArray() bool { return d.Flags.Has(FlagIsArray) }

// HasCount reports whether the field's array items carry counts.
func (d FieldDefinition) HasCount() bool { return d.Flags.Has(FlagArrayHasCount) }

// HasReverse reports whether the field declares an inverse relation field.
func (d FieldDefinition) HasReverse() bool { return d.ReverseFieldID != 0 }

// Required reports whether the field must be supplied on creation.
func (d FieldDefinition) Required() bool { return d.Flags.Has(FlagRequired) }
