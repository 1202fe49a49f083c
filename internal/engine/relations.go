package engine

import (
	"context"
	"database/sql"
	"fmt"

	"ticketcore/pkg/domain"
)

// syncReverse propagates one batch of forward-link changes to the declared
// reverse field. Mirror rows are derived state: they are written in the same
// transaction but never produce their own changelog entries.
func syncReverse(ctx context.Context, tx *sql.Tx, d Dialect, rev domain.FieldDefinition, sourceID int64, changes []linkChange) error {
	for _, ch := range changes {
		if ch.newRef.IsNone() {
			if err := orphanMirror(ctx, tx, d, rev.ID, ch.targetID, sourceID); err != nil {
				return wrapConsistency(sourceID, rev.ID, ch.targetID, err)
			}
			continue
		}
		if err := upsertMirror(ctx, tx, d, rev.ID, ch.targetID, sourceID, ch.count); err != nil {
			return wrapConsistency(sourceID, rev.ID, ch.targetID, err)
		}
	}
	return nil
}

// orphanMirror retires the live mirror row target -> source on the reverse
// field. A missing row is tolerated: the forward side may have been written
// before the reverse declaration existed.
func orphanMirror(ctx context.Context, tx *sql.Tx, d Dialect, revFieldID, mirrorEntityID, mirrorTargetID int64) error {
	_, err := tx.ExecContext(ctx, d.rebind(
		`UPDATE field_relation SET entity_id = NULL
		 WHERE entity_id = ? AND field_id = ? AND target_id = ?`),
		mirrorEntityID, revFieldID, mirrorTargetID)
	if err != nil {
		return fmt.Errorf("orphan mirror link: %w", err)
	}
	return nil
}

// upsertMirror makes the live mirror row target -> source carry the given
// count, replacing any prior live row.
func upsertMirror(ctx context.Context, tx *sql.Tx, d Dialect, revFieldID, mirrorEntityID, mirrorTargetID int64, count int64) error {
	var rowID int64
	var existing int64
	err := tx.QueryRowContext(ctx, d.rebind(
		`SELECT id, count FROM field_relation
		 WHERE entity_id = ? AND field_id = ? AND target_id = ?`),
		mirrorEntityID, revFieldID, mirrorTargetID).Scan(&rowID, &existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("read mirror link: %w", err)
	case existing == count:
		return nil
	default:
		if err := orphanMirror(ctx, tx, d, revFieldID, mirrorEntityID, mirrorTargetID); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, d.rebind(
		`INSERT INTO field_relation (entity_id, field_id, target_id, count) VALUES (?, ?, ?, ?)`),
		mirrorEntityID, revFieldID, mirrorTargetID, count)
	if err != nil {
		return classifyWrite("insert mirror link", err)
	}
	return nil
}

func wrapConsistency(sourceID, fieldID, targetID int64, err error) error {
	return domain.ConsistencyViolation{
		SourceID: sourceID,
		FieldID:  fieldID,
		TargetID: targetID,
		Reason:   err.Error(),
	}
}

// VerifyRelationSymmetry audits every paired relation field declared for the
// entity's type, checking both directions. Useful after bulk imports and in
// consistency tests.
func (s *Service) VerifyRelationSymmetry(ctx context.Context, entityID int64) error {
	entity, err := s.entityFrom(ctx, s.store.db, entityID)
	if err != nil {
		return err
	}
	for _, def := range s.catalog.FieldsForType(entity.TypeID) {
		if def.Kind != domain.KindEntityRelation || !def.HasReverse() {
			continue
		}
		rev, err := s.catalog.Definition(def.ReverseFieldID)
		if err != nil {
			return err
		}
		if err := verifyReverseSymmetry(ctx, s.store.db, s.store.dialect, def, rev, entityID); err != nil {
			return err
		}
	}
	return nil
}

// verifyReverseSymmetry checks that every live link on def has a live mirror
// on its reverse field with an equal count. Checking both directions is the
// caller's job; VerifyRelationSymmetry covers every declared pair of a type.
func verifyReverseSymmetry(ctx context.Context, q queryer, d Dialect, def, rev domain.FieldDefinition, entityID int64) error {
	forward, err := relationStore{}.readLinks(ctx, q, d, entityID, def.ID)
	if err != nil {
		return err
	}
	for _, link := range forward {
		mirrors, err := relationStore{}.readLinks(ctx, q, d, link.TargetID, rev.ID)
		if err != nil {
			return err
		}
		found := false
		for _, m := range mirrors {
			if m.TargetID == entityID {
				found = true
				if m.Count != link.Count {
					return domain.ConsistencyViolation{
						SourceID: entityID, FieldID: def.ID, TargetID: link.TargetID,
						Reason: fmt.Sprintf("count mismatch: forward %d, mirror %d", link.Count, m.Count),
					}
				}
			}
		}
		if !found {
			return domain.ConsistencyViolation{
				SourceID: entityID, FieldID: def.ID, TargetID: link.TargetID,
				Reason: "missing mirror link",
			}
		}
	}
	return nil
}
