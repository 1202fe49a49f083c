package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ticketcore/pkg/domain"
)

// Notes attached to system-level changelog entries (field id 0).
const (
	noteEntityDeleted = "entity deleted"
	noteACLCreated    = "acl created"
	noteACLEntrySet   = "acl entry set"
)

// appendChange writes one audit entry. It must run inside the transaction of
// the value write it describes: never before a validated write, never
// skipped after one.
func appendChange(ctx context.Context, tx *sql.Tx, d Dialect, entry domain.ChangeEntry) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, d.rebind(
		`INSERT INTO changelog (field_id, subject_id, actor_id, ts, old_ref, new_ref, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		entry.FieldID, entry.SubjectID, entry.ActorID, toMicros(entry.Timestamp),
		refArg(entry.OldRef), refArg(entry.NewRef), entry.Note).Scan(&id)
	if err != nil {
		return 0, classifyWrite("append changelog", err)
	}
	return id, nil
}

func refArg(r domain.ValueRef) any {
	if r.IsNone() {
		return nil
	}
	return int64(r)
}

// EntryIterator streams changelog entries in commit order. It is restartable
// in the sense that EntriesFor hands out a fresh iterator on every call.
type EntryIterator struct {
	rows *sql.Rows
	cur  domain.ChangeEntry
	err  error
}

// Next advances the iterator. It returns false at the end of the sequence or
// on error; check Err afterwards.
func (it *EntryIterator) Next() bool {
	if it.err != nil || it.rows == nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}
	var ts int64
	var oldRef, newRef sql.NullInt64
	if err := it.rows.Scan(&it.cur.ID, &it.cur.FieldID, &it.cur.SubjectID, &it.cur.ActorID,
		&ts, &oldRef, &newRef, &it.cur.Note); err != nil {
		it.err = fmt.Errorf("scan changelog: %w", err)
		return false
	}
	it.cur.Timestamp = fromMicros(ts)
	it.cur.OldRef = domain.ValueRef(oldRef.Int64)
	it.cur.NewRef = domain.ValueRef(newRef.Int64)
	return true
}

// Entry returns the current entry. Valid only after Next reported true.
func (it *EntryIterator) Entry() domain.ChangeEntry { return it.cur }

// Err reports a scan or iteration failure.
func (it *EntryIterator) Err() error { return it.err }

// Close releases the underlying cursor.
func (it *EntryIterator) Close() error {
	if it.rows == nil {
		return nil
	}
	return it.rows.Close()
}

// EntriesFor streams the audit entries for one subject, ascending by commit
// order. A non-zero fieldID restricts the stream to that field. The iterator
// reads outside any transaction and never blocks writers.
func (s *Service) EntriesFor(ctx context.Context, subjectID, fieldID int64) (*EntryIterator, error) {
	d := s.store.dialect
	query := `SELECT id, field_id, subject_id, actor_id, ts, old_ref, new_ref, note
		 FROM changelog WHERE subject_id = ?`
	args := []any{subjectID}
	if fieldID != 0 {
		query += ` AND field_id = ?`
		args = append(args, fieldID)
	}
	query += ` ORDER BY id ASC`
	rows, err := s.store.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query changelog: %w", err)
	}
	return &EntryIterator{rows: rows}, nil
}

// replayAsOf reconstructs a subject's field refs at the cutoff by replaying
// entries in commit order. Scalar fields keep the latest new ref; relation
// fields accumulate per-target row refs through adds and removals. An
// entity-deletion entry clears everything recorded so far.
func (s *Service) replayAsOf(ctx context.Context, subjectID int64, cutoff time.Time) (scalarRefs map[int64]domain.ValueRef, linkRefs map[int64]map[int64]domain.ValueRef, err error) {
	// Buffer the entries before resolving refs so no cursor is held open
	// across the row lookups.
	entries, err := s.collectEntries(ctx, subjectID, 0)
	if err != nil {
		return nil, nil, err
	}

	limit := toMicros(cutoff)
	scalarRefs = make(map[int64]domain.ValueRef)
	linkRefs = make(map[int64]map[int64]domain.ValueRef)
	for _, entry := range entries {
		if toMicros(entry.Timestamp) > limit {
			break
		}
		if entry.FieldID == domain.SystemField {
			if entry.Note == noteEntityDeleted {
				scalarRefs = make(map[int64]domain.ValueRef)
				linkRefs = make(map[int64]map[int64]domain.ValueRef)
			}
			continue
		}
		def, defErr := s.catalog.Definition(entry.FieldID)
		if defErr != nil {
			// Fields dropped from the catalog still appear in old entries;
			// they are invisible to reconstructed views.
			continue
		}
		if def.Kind == domain.KindEntityRelation {
			if err := s.replayLink(ctx, entry, linkRefs); err != nil {
				return nil, nil, err
			}
			continue
		}
		if entry.NewRef.IsNone() {
			delete(scalarRefs, entry.FieldID)
			continue
		}
		scalarRefs[entry.FieldID] = entry.NewRef
	}
	return scalarRefs, linkRefs, nil
}

// collectEntries drains EntriesFor into memory. Replay and export resolve
// value rows per entry, which must not run while the entry cursor is open.
func (s *Service) collectEntries(ctx context.Context, subjectID, fieldID int64) ([]domain.ChangeEntry, error) {
	it, err := s.EntriesFor(ctx, subjectID, fieldID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	var entries []domain.ChangeEntry
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) replayLink(ctx context.Context, entry domain.ChangeEntry, linkRefs map[int64]map[int64]domain.ValueRef) error {
	targets := linkRefs[entry.FieldID]
	if targets == nil {
		targets = make(map[int64]domain.ValueRef)
		linkRefs[entry.FieldID] = targets
	}
	if entry.NewRef.IsNone() {
		link, ok, err := relationStore{}.linkByRowID(ctx, s.store.db, s.store.dialect, int64(entry.OldRef))
		if err != nil {
			return err
		}
		if ok {
			delete(targets, link.TargetID)
		}
		return nil
	}
	link, ok, err := relationStore{}.linkByRowID(ctx, s.store.db, s.store.dialect, int64(entry.NewRef))
	if err != nil {
		return err
	}
	if ok {
		targets[link.TargetID] = entry.NewRef
	}
	return nil
}
