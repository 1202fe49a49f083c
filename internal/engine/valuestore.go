package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/google/uuid"

	"ticketcore/pkg/domain"
)

// maxTextBytes bounds free-form text values; anything larger belongs in
// attachment storage, which is out of scope here.
const maxTextBytes = 1 << 20

// scalarStore is the value-store strategy for one scalar storage kind. Each
// kind owns exactly one table; no field can appear in two stores.
type scalarStore struct {
	kind  domain.StorageKind
	table string
}

var scalarStores = map[domain.StorageKind]scalarStore{
	domain.KindText:        {domain.KindText, "field_text"},
	domain.KindInteger:     {domain.KindInteger, "field_int"},
	domain.KindFloat:       {domain.KindFloat, "field_float"},
	domain.KindAmount:      {domain.KindAmount, "field_amount"},
	domain.KindUUID:        {domain.KindUUID, "field_uuid"},
	domain.KindCategoryRef: {domain.KindCategoryRef, "field_category"},
}

// scalarStoreFor returns the strategy for a scalar kind. Relation fields are
// served by relationStore instead.
func scalarStoreFor(kind domain.StorageKind) (scalarStore, bool) {
	s, ok := scalarStores[kind]
	return s, ok
}

// validate checks the value's shape and range against the field's declared
// kind. It runs before any row is touched.
func (s scalarStore) validate(def domain.FieldDefinition, v domain.Value) error {
	if !v.Defined() {
		// Clearing a value is always well formed.
		return nil
	}
	if v.Kind() != s.kind {
		return domain.ValidationError{FieldID: def.ID, Reason: fmt.Sprintf("kind %s does not match field kind %s", v.Kind(), s.kind)}
	}
	switch s.kind {
	case domain.KindText:
		if !utf8.ValidString(v.Text()) {
			return domain.ValidationError{FieldID: def.ID, Reason: "text is not valid UTF-8"}
		}
		if len(v.Text()) > maxTextBytes {
			return domain.ValidationError{FieldID: def.ID, Reason: "text exceeds maximum length"}
		}
	case domain.KindFloat:
		if math.IsNaN(v.Float()) || math.IsInf(v.Float(), 0) {
			return domain.ValidationError{FieldID: def.ID, Reason: "float must be finite"}
		}
	case domain.KindUUID:
		if _, err := uuid.Parse(v.Text()); err != nil {
			return domain.ValidationError{FieldID: def.ID, Reason: "not a valid uuid"}
		}
	case domain.KindCategoryRef:
		if v.Int() <= 0 {
			return domain.ValidationError{FieldID: def.ID, Reason: "category reference must be positive"}
		}
	}
	return nil
}

// arg renders the value as the table's single value column.
func (s scalarStore) arg(v domain.Value) any {
	switch s.kind {
	case domain.KindText, domain.KindUUID:
		return v.Text()
	case domain.KindFloat:
		return v.Float()
	default:
		return v.Int()
	}
}

func (s scalarStore) value(text string, integer int64, float float64) domain.Value {
	switch s.kind {
	case domain.KindText:
		return domain.TextValue(text)
	case domain.KindUUID:
		return domain.UUIDValue(text)
	case domain.KindInteger:
		return domain.IntValue(integer)
	case domain.KindAmount:
		return domain.AmountValue(integer)
	case domain.KindCategoryRef:
		return domain.CategoryValue(integer)
	default:
		return domain.FloatValue(float)
	}
}

func (s scalarStore) scanValue(row interface{ Scan(...any) error }, dst *domain.ValueRow) error {
	var text string
	var integer int64
	var float float64
	var entity sql.NullInt64
	var err error
	switch s.kind {
	case domain.KindText, domain.KindUUID:
		err = row.Scan(&dst.RowID, &entity, &dst.FieldID, &text)
	case domain.KindFloat:
		err = row.Scan(&dst.RowID, &entity, &dst.FieldID, &float)
	default:
		err = row.Scan(&dst.RowID, &entity, &dst.FieldID, &integer)
	}
	if err != nil {
		return err
	}
	dst.EntityID = entity.Int64
	dst.Value = s.value(text, integer, float)
	return nil
}

// read returns the live row for (entity, field), or nil when none exists.
// Non-array scalar fields hold at most one live row, enforced by a partial
// unique index.
func (s scalarStore) read(ctx context.Context, q queryer, d Dialect, entityID, fieldID int64) (*domain.ValueRow, error) {
	row := q.QueryRowContext(ctx, d.rebind(
		`SELECT id, entity_id, field_id, value FROM `+s.table+` WHERE entity_id = ? AND field_id = ?`),
		entityID, fieldID)
	var out domain.ValueRow
	if err := s.scanValue(row, &out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.table, err)
	}
	return &out, nil
}

// rowByID fetches a row regardless of orphan state, for changelog-ref
// resolution during history replay.
func (s scalarStore) rowByID(ctx context.Context, q queryer, d Dialect, rowID int64) (domain.ValueRow, bool, error) {
	row := q.QueryRowContext(ctx, d.rebind(
		`SELECT id, entity_id, field_id, value FROM `+s.table+` WHERE id = ?`), rowID)
	var out domain.ValueRow
	if err := s.scanValue(row, &out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ValueRow{}, false, nil
		}
		return domain.ValueRow{}, false, fmt.Errorf("resolve %s row %d: %w", s.table, rowID, err)
	}
	return out, true, nil
}

// writeOne replaces the live scalar row. The superseded row is orphaned, not
// deleted, so changelog refs stay resolvable. An undefined value clears the
// field. Writing the current value is a no-op.
func (s scalarStore) writeOne(ctx context.Context, tx *sql.Tx, d Dialect, entityID, fieldID int64, v domain.Value) (old *domain.ValueRow, newRef domain.ValueRef, changed bool, err error) {
	old, err = s.read(ctx, tx, d, entityID, fieldID)
	if err != nil {
		return nil, domain.NoValue, false, err
	}
	if old == nil && !v.Defined() {
		return nil, domain.NoValue, false, nil
	}
	if old != nil && old.Value.Equal(v) {
		return old, domain.ValueRef(old.RowID), false, nil
	}
	if old != nil {
		if _, err := tx.ExecContext(ctx, d.rebind(
			`UPDATE `+s.table+` SET entity_id = NULL WHERE id = ?`), old.RowID); err != nil {
			return nil, domain.NoValue, false, classifyWrite("orphan "+s.table, err)
		}
	}
	if !v.Defined() {
		return old, domain.NoValue, true, nil
	}
	var rowID int64
	err = tx.QueryRowContext(ctx, d.rebind(
		`INSERT INTO `+s.table+` (entity_id, field_id, value) VALUES (?, ?, ?) RETURNING id`),
		entityID, fieldID, s.arg(v)).Scan(&rowID)
	if err != nil {
		return nil, domain.NoValue, false, classifyWrite("insert "+s.table, err)
	}
	return old, domain.ValueRef(rowID), true, nil
}

// relationStore is the value-store strategy for the entity-relation kind.
type relationStore struct{}

// linkChange is one applied difference produced by writeArray. Count zero
// records a removal.
type linkChange struct {
	targetID int64
	oldRef   domain.ValueRef
	newRef   domain.ValueRef
	count    int64
}

func (relationStore) validate(def domain.FieldDefinition, items []domain.Link) error {
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if item.TargetID <= 0 {
			return domain.ValidationError{FieldID: def.ID, Reason: "relation target must be positive"}
		}
		if item.Count < 0 {
			return domain.ValidationError{FieldID: def.ID, Reason: "relation count must not be negative"}
		}
		if _, dup := seen[item.TargetID]; dup {
			return domain.ValidationError{FieldID: def.ID, Reason: fmt.Sprintf("duplicate target %d", item.TargetID)}
		}
		seen[item.TargetID] = struct{}{}
	}
	return nil
}

// readLinks returns the live links for (entity, field), ordered by target.
func (relationStore) readLinks(ctx context.Context, q queryer, d Dialect, entityID, fieldID int64) ([]domain.RelationLink, error) {
	rows, err := q.QueryContext(ctx, d.rebind(
		`SELECT id, entity_id, field_id, target_id, count FROM field_relation
		 WHERE entity_id = ? AND field_id = ? ORDER BY target_id ASC`),
		entityID, fieldID)
	if err != nil {
		return nil, fmt.Errorf("read field_relation: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.RelationLink
	for rows.Next() {
		var link domain.RelationLink
		var entity sql.NullInt64
		if err := rows.Scan(&link.RowID, &entity, &link.FieldID, &link.TargetID, &link.Count); err != nil {
			return nil, fmt.Errorf("scan field_relation: %w", err)
		}
		link.SourceID = entity.Int64
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field_relation: %w", err)
	}
	return out, nil
}

// linkByRowID fetches a relation row regardless of orphan state.
func (relationStore) linkByRowID(ctx context.Context, q queryer, d Dialect, rowID int64) (domain.RelationLink, bool, error) {
	row := q.QueryRowContext(ctx, d.rebind(
		`SELECT id, entity_id, field_id, target_id, count FROM field_relation WHERE id = ?`), rowID)
	var link domain.RelationLink
	var entity sql.NullInt64
	if err := row.Scan(&link.RowID, &entity, &link.FieldID, &link.TargetID, &link.Count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RelationLink{}, false, nil
		}
		return domain.RelationLink{}, false, fmt.Errorf("resolve field_relation row %d: %w", rowID, err)
	}
	link.SourceID = entity.Int64
	return link, true, nil
}

// writeArray applies the supplied items as a delta against the live set:
// count zero removes the link for that target, any other count upserts it.
// Targets not mentioned stay untouched; a new link to a nonexistent entity
// fails with NotFoundError. Superseded rows are orphaned. Returned changes
// are ordered by target id for deterministic changelog appends.
func (r relationStore) writeArray(ctx context.Context, tx *sql.Tx, d Dialect, def domain.FieldDefinition, entityID int64, items []domain.Link) ([]linkChange, error) {
	current, err := r.readLinks(ctx, tx, d, entityID, def.ID)
	if err != nil {
		return nil, err
	}
	byTarget := make(map[int64]domain.RelationLink, len(current))
	for _, link := range current {
		byTarget[link.TargetID] = link
	}

	sorted := append([]domain.Link(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TargetID < sorted[j].TargetID })

	// Plan first so shape violations surface before any row is touched.
	type plannedChange struct {
		targetID int64
		old      *domain.RelationLink
		count    int64
	}
	var plan []plannedChange
	liveAfter := len(current)
	for _, item := range sorted {
		count := item.Count
		if count != 0 && !def.HasCount() {
			count = 1
		}
		existing, exists := byTarget[item.TargetID]
		switch {
		case count == 0 && !exists:
			// Removing an absent link is a no-op.
			continue
		case count == 0:
			old := existing
			plan = append(plan, plannedChange{targetID: item.TargetID, old: &old})
			liveAfter--
		case exists && existing.Count == count:
			continue
		case exists:
			old := existing
			plan = append(plan, plannedChange{targetID: item.TargetID, old: &old, count: count})
		default:
			// New links may only point at existing entities. Live links imply
			// a live target, so only this case needs the lookup.
			var one int64
			err := tx.QueryRowContext(ctx, d.rebind(
				`SELECT 1 FROM entities WHERE id = ?`), item.TargetID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.NotFoundError{Kind: "entity", ID: item.TargetID}
			}
			if err != nil {
				return nil, fmt.Errorf("check relation target %d: %w", item.TargetID, err)
			}
			plan = append(plan, plannedChange{targetID: item.TargetID, count: count})
			liveAfter++
		}
	}
	if !def.IsArray() && liveAfter > 1 {
		return nil, domain.ValidationError{FieldID: def.ID, Reason: "non-array relation holds at most one link"}
	}

	var changes []linkChange
	for _, p := range plan {
		change := linkChange{targetID: p.targetID, count: p.count}
		if p.old != nil {
			if _, err := tx.ExecContext(ctx, d.rebind(
				`UPDATE field_relation SET entity_id = NULL WHERE id = ?`), p.old.RowID); err != nil {
				return nil, classifyWrite("orphan field_relation", err)
			}
			change.oldRef = domain.ValueRef(p.old.RowID)
		}
		if p.count != 0 {
			var rowID int64
			err := tx.QueryRowContext(ctx, d.rebind(
				`INSERT INTO field_relation (entity_id, field_id, target_id, count) VALUES (?, ?, ?, ?) RETURNING id`),
				entityID, def.ID, p.targetID, p.count).Scan(&rowID)
			if err != nil {
				return nil, classifyWrite("insert field_relation", err)
			}
			change.newRef = domain.ValueRef(rowID)
		}
		changes = append(changes, change)
	}
	return changes, nil
}
