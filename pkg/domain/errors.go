package domain

import (
	"fmt"
	"time"
)

// ValidationError reports a value that fails its field's type, range, or
// shape rule. It is raised before any row is touched.
type ValidationError struct {
	FieldID int64
	Reason  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("field %d: invalid value: %s", e.FieldID, e.Reason)
}

// AccessDeniedError reports a gate denial. The enclosing operation aborts
// with zero side effects.
type AccessDeniedError struct {
	ActorID  int64
	ACLID    int64
	Required Permission
}

func (e AccessDeniedError) Error() string {
	return fmt.Sprintf("actor %d denied permission %#x on acl %d", e.ActorID, e.Required, e.ACLID)
}

// NotFoundError reports a missing entity, field, or ACL.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// ConflictError reports a failed optimistic-concurrency check: the entity was
// modified after the timestamp the caller based its edit on.
type ConflictError struct {
	EntityID int64
	Expected time.Time
	Actual   time.Time
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("entity %d modified at %s, expected %s", e.EntityID,
		e.Actual.Format(time.RFC3339Nano), e.Expected.Format(time.RFC3339Nano))
}

// ConstraintViolation reports a uniqueness or foreign-key rule rejected by
// the storage substrate. The enclosing transaction rolls back in full.
type ConstraintViolation struct {
	Op  string
	Err error
}

func (e ConstraintViolation) Error() string {
	return fmt.Sprintf("%s: constraint violated: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying driver error.
func (e ConstraintViolation) Unwrap() error { return e.Err }

// ConsistencyViolation reports a failed symmetric relation update. It is
// always fatal to the enclosing transaction; partial symmetry is never
// committed.
type ConsistencyViolation struct {
	SourceID int64
	FieldID  int64
	TargetID int64
	Reason   string
}

func (e ConsistencyViolation) Error() string {
	return fmt.Sprintf("relation %d: %d -> %d: %s", e.FieldID, e.SourceID, e.TargetID, e.Reason)
}
