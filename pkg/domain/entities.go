package domain

import "time"

// SystemSubject is the changelog subject used for events that concern no
// single entity, such as ACL administration.
const SystemSubject int64 = 0

// SystemField is the changelog field id used for entries that describe an
// entity-level event (creation source, deletion) rather than a field write.
const SystemField int64 = 0

// Entity is the fixed core record of a tracked item. All attribute data
// lives in the per-kind value stores, keyed by the entity id.
type Entity struct {
	ID     int64 `json:"id"`
	TypeID int64 `json:"type_id"`
	ACLID  int64 `json:"acl_id"`
	// OwnerID is 0 for templates.
	OwnerID    int64     `json:"owner_id"`
	CreatedAt  time.Time `json:"created_at"`
	CreatedBy  int64     `json:"created_by"`
	ModifiedAt time.Time `json:"modified_at"`
	ModifiedBy int64     `json:"modified_by"`
	// IsTemplate marks blueprint entities with null owner and timestamps.
	IsTemplate bool `json:"is_template"`
	// CreatedFrom references the template or source entity this record was
	// derived from, or 0.
	CreatedFrom int64 `json:"created_from,omitempty"`
}

// ValueRef identifies a value-store row from a changelog entry. Zero means
// "none" (first write, or a removal).
type ValueRef int64

// NoValue is the absent ValueRef.
const NoValue ValueRef = 0

// IsNone reports whether the ref points at no row.
func (r ValueRef) IsNone() bool { return r == NoValue }

// ValueRow is one stored scalar value. Rows referenced by the changelog are
// orphaned (EntityID cleared to 0) instead of deleted when superseded.
type ValueRow struct {
	RowID    int64 `json:"row_id"`
	EntityID int64 `json:"entity_id"`
	FieldID  int64 `json:"field_id"`
	Value    Value `json:"value"`
}

// Link is one counted relation item supplied to or read from a relation
// field. A zero count removes the link.
type Link struct {
	TargetID int64 `json:"target_id"`
	Count    int64 `json:"count"`
}

// RelationLink is one stored relation row. For every link with a field that
// declares a reverse, a mirror row with the same count exists on the target.
type RelationLink struct {
	RowID    int64 `json:"row_id"`
	SourceID int64 `json:"source_id"`
	FieldID  int64 `json:"field_id"`
	TargetID int64 `json:"target_id"`
	Count    int64 `json:"count"`
}

// ChangeEntry is one appended audit record. Entries are never updated or
// deleted.
type ChangeEntry struct {
	ID        int64     `json:"id"`
	FieldID   int64     `json:"field_id"`
	SubjectID int64     `json:"subject_id"`
	ActorID   int64     `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	OldRef    ValueRef  `json:"old_ref"`
	NewRef    ValueRef  `json:"new_ref"`
	Note      string    `json:"note,omitempty"`
}

// Permission is a bitset of entity-level rights granted to a group.
type Permission uint8

// Independent permission bits, ORed per ACL entry.
const (
	PermRead Permission = 1 << iota
	PermUpdate
	PermCreate
	PermDelete
	PermMail
)

// Has reports whether all bits of q are granted.
func (p Permission) Has(q Permission) bool { return p&q == q }

// ACL maps group ids to permission bits. ACLs are shared across entities and
// administered independently of them.
type ACL struct {
	ID      int64                `json:"id"`
	Entries map[int64]Permission `json:"entries"`
}

// FieldValue carries one field's data across the engine boundary: a scalar
// payload for scalar kinds, or a set of counted links for relation fields.
// The zero FieldValue means "absent".
type FieldValue struct {
	Scalar Value  `json:"scalar,omitempty"`
	Links  []Link `json:"links,omitempty"`
}

// ScalarField wraps a scalar value for write APIs.
func ScalarField(v Value) FieldValue { return FieldValue{Scalar: v} }

// LinksField wraps relation links for write APIs.
func LinksField(links ...Link) FieldValue {
	return FieldValue{Links: append([]Link(nil), links...)}
}

// IsZero reports whether the value carries no data.
func (f FieldValue) IsZero() bool { return !f.Scalar.Defined() && len(f.Links) == 0 }

// View is a projected mapping of field id to current (or reconstructed)
// value for one entity.
type View map[int64]FieldValue
