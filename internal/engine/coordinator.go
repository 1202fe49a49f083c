package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"ticketcore/internal/catalog"
	"ticketcore/pkg/domain"
)

// Service owns every mutating entry point. Each operation runs as a single
// transaction: gate check, value write, changelog append, reverse sync, in
// that order, committing together or not at all.
type Service struct {
	store   *Store
	catalog *catalog.Catalog
	groups  domain.GroupResolver
	clock   domain.Clock
	logger  Logger
	metrics MetricsRecorder
	audit   AuditRecorder
}

// ServiceOption customizes a Service at construction time.
type ServiceOption func(*Service)

// WithClock overrides the timestamp source, typically for tests.
func WithClock(clock domain.Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger attaches a structured logger to the service.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder attaches a metrics sink to the service.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithAuditRecorder attaches an operation-level audit sink to the service.
func WithAuditRecorder(rec AuditRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// NewService wires a store, an immutable catalog, and a group resolver into
// the mutation coordinator.
func NewService(store *Store, cat *catalog.Catalog, groups domain.GroupResolver, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		catalog: cat,
		groups:  groups,
		clock:   domain.ClockFunc(time.Now),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		audit:   noopAuditRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog exposes the immutable field catalog the service was built with.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

// GetEntity loads one core record.
func (s *Service) GetEntity(ctx context.Context, entityID int64) (domain.Entity, error) {
	return s.entityFrom(ctx, s.store.db, entityID)
}

func (s *Service) entityFrom(ctx context.Context, q queryer, entityID int64) (domain.Entity, error) {
	row := q.QueryRowContext(ctx, s.store.dialect.rebind(
		`SELECT id, type_id, acl_id, owner_id, created_at, created_by,
		        modified_at, modified_by, is_template, created_from
		 FROM entities WHERE id = ?`), entityID)
	var e domain.Entity
	var createdAt, modifiedAt int64
	err := row.Scan(&e.ID, &e.TypeID, &e.ACLID, &e.OwnerID, &createdAt, &e.CreatedBy,
		&modifiedAt, &e.ModifiedBy, &e.IsTemplate, &e.CreatedFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entity{}, domain.NotFoundError{Kind: "entity", ID: entityID}
	}
	if err != nil {
		return domain.Entity{}, fmt.Errorf("read entity %d: %w", entityID, err)
	}
	e.CreatedAt = fromMicros(createdAt)
	e.ModifiedAt = fromMicros(modifiedAt)
	return e, nil
}

// CreateEntity inserts a new core record and applies the supplied field
// values through the full write pipeline. The actor needs the create bit on
// the ACL the entity will reference.
func (s *Service) CreateEntity(ctx context.Context, actorID, typeID, aclID int64, values map[int64]domain.FieldValue) (entity domain.Entity, err error) {
	start := s.clock.Now()
	defer func() { s.observe(ctx, "create_entity", entity.ID, actorID, start, err) }()

	if err = s.checkAccess(ctx, s.store.db, aclID, actorID, domain.PermCreate); err != nil {
		return domain.Entity{}, err
	}
	defs, err := s.resolveWriteSet(typeID, values, true)
	if err != nil {
		return domain.Entity{}, err
	}

	now := start
	err = s.store.runInTx(ctx, func(tx *sql.Tx) error {
		entity, err = s.insertEntity(ctx, tx, domain.Entity{
			TypeID:     typeID,
			ACLID:      aclID,
			OwnerID:    actorID,
			CreatedAt:  now,
			CreatedBy:  actorID,
			ModifiedAt: now,
			ModifiedBy: actorID,
		})
		if err != nil {
			return err
		}
		for _, def := range defs {
			if _, _, err := s.applyField(ctx, tx, actorID, entity.ID, def, values[def.ID], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Entity{}, err
	}
	return entity, nil
}

// CreateFromTemplate instantiates an entity from a template's live field
// values, with overrides applied on top. The new record points back at the
// template through created_from.
func (s *Service) CreateFromTemplate(ctx context.Context, actorID, templateID, aclID int64, overrides map[int64]domain.FieldValue) (entity domain.Entity, err error) {
	start := s.clock.Now()
	defer func() { s.observe(ctx, "create_from_template", entity.ID, actorID, start, err) }()

	template, err := s.entityFrom(ctx, s.store.db, templateID)
	if err != nil {
		return domain.Entity{}, err
	}
	if !template.IsTemplate {
		return domain.Entity{}, domain.ValidationError{FieldID: domain.SystemField, Reason: fmt.Sprintf("entity %d is not a template", templateID)}
	}
	if err = s.checkAccess(ctx, s.store.db, aclID, actorID, domain.PermCreate); err != nil {
		return domain.Entity{}, err
	}

	values, err := s.projectCurrent(ctx, s.store.db, template)
	if err != nil {
		return domain.Entity{}, err
	}
	for fieldID, v := range overrides {
		if v.IsZero() {
			delete(values, fieldID)
			continue
		}
		values[fieldID] = v
	}
	defs, err := s.resolveWriteSet(template.TypeID, values, true)
	if err != nil {
		return domain.Entity{}, err
	}

	now := start
	err = s.store.runInTx(ctx, func(tx *sql.Tx) error {
		entity, err = s.insertEntity(ctx, tx, domain.Entity{
			TypeID:      template.TypeID,
			ACLID:       aclID,
			OwnerID:     actorID,
			CreatedAt:   now,
			CreatedBy:   actorID,
			ModifiedAt:  now,
			ModifiedBy:  actorID,
			CreatedFrom: templateID,
		})
		if err != nil {
			return err
		}
		for _, def := range defs {
			if _, _, err := s.applyField(ctx, tx, actorID, entity.ID, def, values[def.ID], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Entity{}, err
	}
	return entity, nil
}

// CreateTemplate inserts a blueprint entity: no owner, usable only as a
// source for CreateFromTemplate. Field values go through the same pipeline.
func (s *Service) CreateTemplate(ctx context.Context, actorID, typeID, aclID int64, values map[int64]domain.FieldValue) (entity domain.Entity, err error) {
	start := s.clock.Now()
	defer func() { s.observe(ctx, "create_template", entity.ID, actorID, start, err) }()

	if err = s.checkAccess(ctx, s.store.db, aclID, actorID, domain.PermCreate); err != nil {
		return domain.Entity{}, err
	}
	// Templates carry no required-field obligation; instances fill those in.
	defs, err := s.resolveWriteSet(typeID, values, false)
	if err != nil {
		return domain.Entity{}, err
	}

	// Templates carry null owner and timestamps; instances get real ones.
	now := start
	err = s.store.runInTx(ctx, func(tx *sql.Tx) error {
		entity, err = s.insertEntity(ctx, tx, domain.Entity{
			TypeID:     typeID,
			ACLID:      aclID,
			CreatedBy:  actorID,
			ModifiedBy: actorID,
			IsTemplate: true,
		})
		if err != nil {
			return err
		}
		for _, def := range defs {
			if _, _, err := s.applyField(ctx, tx, actorID, entity.ID, def, values[def.ID], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Entity{}, err
	}
	return entity, nil
}

// UpdateField writes one field through the full pipeline and returns the
// value it replaced. A non-zero expectedModAt arms the optimistic concurrency
// guard: the write fails with ConflictError when the entity was modified
// after that timestamp.
func (s *Service) UpdateField(ctx context.Context, actorID, entityID, fieldID int64, value domain.FieldValue, expectedModAt time.Time) (old domain.FieldValue, err error) {
	start := s.clock.Now()
	defer func() { s.observe(ctx, "update_field", entityID, actorID, start, err) }()

	entity, err := s.entityFrom(ctx, s.store.db, entityID)
	if err != nil {
		return domain.FieldValue{}, err
	}
	if err = s.checkAccess(ctx, s.store.db, entity.ACLID, actorID, domain.PermUpdate); err != nil {
		return domain.FieldValue{}, err
	}
	def, err := s.catalog.Definition(fieldID)
	if err != nil {
		return domain.FieldValue{}, err
	}
	if !s.declaredFor(entity.TypeID, fieldID) {
		return domain.FieldValue{}, domain.ValidationError{FieldID: fieldID, Reason: fmt.Sprintf("field not declared for type %d", entity.TypeID)}
	}
	if err = s.validateValue(def, value); err != nil {
		return domain.FieldValue{}, err
	}

	now := start
	err = s.store.runInTx(ctx, func(tx *sql.Tx) error {
		// Re-read inside the transaction so the guard sees committed state.
		current, err := s.entityFrom(ctx, tx, entityID)
		if err != nil {
			return err
		}
		if !expectedModAt.IsZero() && !current.ModifiedAt.Equal(expectedModAt) {
			return domain.ConflictError{EntityID: entityID, Expected: expectedModAt, Actual: current.ModifiedAt}
		}
		prior, changed, err := s.applyField(ctx, tx, actorID, entityID, def, value, now)
		if err != nil {
			return err
		}
		old = prior
		if !changed {
			return nil
		}
		return s.touchEntity(ctx, tx, entityID, actorID, now)
	})
	if err != nil {
		return domain.FieldValue{}, err
	}
	return old, nil
}

// DeleteEntity retires an entity: every live value row is orphaned so the
// changelog's references stay resolvable, inbound links from surviving
// entities are removed, a system-level deletion entry is appended, and the
// core record is removed. History for the id remains readable.
func (s *Service) DeleteEntity(ctx context.Context, actorID, entityID int64) (err error) {
	start := s.clock.Now()
	defer func() { s.observe(ctx, "delete_entity", entityID, actorID, start, err) }()

	entity, err := s.entityFrom(ctx, s.store.db, entityID)
	if err != nil {
		return err
	}
	if err = s.checkAccess(ctx, s.store.db, entity.ACLID, actorID, domain.PermDelete); err != nil {
		return err
	}

	now := start
	return s.store.runInTx(ctx, func(tx *sql.Tx) error {
		if err := s.orphanInboundLinks(ctx, tx, actorID, entityID, now); err != nil {
			return err
		}
		for _, st := range scalarStores {
			if _, err := tx.ExecContext(ctx, s.store.dialect.rebind(
				`UPDATE `+st.table+` SET entity_id = NULL WHERE entity_id = ?`), entityID); err != nil {
				return classifyWrite("orphan "+st.table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.store.dialect.rebind(
			`UPDATE field_relation SET entity_id = NULL WHERE entity_id = ?`), entityID); err != nil {
			return classifyWrite("orphan field_relation", err)
		}
		if _, err := appendChange(ctx, tx, s.store.dialect, domain.ChangeEntry{
			FieldID:   domain.SystemField,
			SubjectID: entityID,
			ActorID:   actorID,
			Timestamp: now,
			Note:      noteEntityDeleted,
		}); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.store.dialect.rebind(
			`DELETE FROM entities WHERE id = ?`), entityID); err != nil {
			return classifyWrite("delete entity", err)
		}
		return nil
	})
}

// orphanInboundLinks retires live relation rows on other entities that point
// at the one being deleted. Rows whose creation was logged on the surviving
// entity get a matching removal entry; derived mirror rows were never logged
// and stay unlogged.
func (s *Service) orphanInboundLinks(ctx context.Context, tx *sql.Tx, actorID, entityID int64, now time.Time) error {
	d := s.store.dialect
	rows, err := tx.QueryContext(ctx, d.rebind(
		`SELECT id, entity_id, field_id FROM field_relation
		 WHERE target_id = ? AND entity_id IS NOT NULL AND entity_id <> ?
		 ORDER BY id ASC`), entityID, entityID)
	if err != nil {
		return fmt.Errorf("query inbound links: %w", err)
	}
	type inbound struct {
		rowID    int64
		sourceID int64
		fieldID  int64
	}
	var links []inbound
	for rows.Next() {
		var l inbound
		if err := rows.Scan(&l.rowID, &l.sourceID, &l.fieldID); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan inbound link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterate inbound links: %w", err)
	}
	_ = rows.Close()

	for _, l := range links {
		if _, err := tx.ExecContext(ctx, d.rebind(
			`UPDATE field_relation SET entity_id = NULL WHERE id = ?`), l.rowID); err != nil {
			return classifyWrite("orphan inbound link", err)
		}
		logged, err := s.rowWasLogged(ctx, tx, l.sourceID, l.fieldID, l.rowID)
		if err != nil {
			return err
		}
		if !logged {
			continue
		}
		if _, err := appendChange(ctx, tx, d, domain.ChangeEntry{
			FieldID:   l.fieldID,
			SubjectID: l.sourceID,
			ActorID:   actorID,
			Timestamp: now,
			OldRef:    domain.ValueRef(l.rowID),
		}); err != nil {
			return err
		}
	}
	return nil
}

// rowWasLogged reports whether a value row's creation appears in the
// subject's changelog. Derived mirror rows do not.
func (s *Service) rowWasLogged(ctx context.Context, tx *sql.Tx, subjectID, fieldID, rowID int64) (bool, error) {
	var one int64
	err := tx.QueryRowContext(ctx, s.store.dialect.rebind(
		`SELECT 1 FROM changelog WHERE subject_id = ? AND field_id = ? AND new_ref = ? LIMIT 1`),
		subjectID, fieldID, rowID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check changelog for row %d: %w", rowID, err)
	}
	return true, nil
}

// EnsureACL creates an empty ACL if the id is not yet taken. The event is
// recorded under the system sentinel subject.
func (s *Service) EnsureACL(ctx context.Context, actorID, aclID int64) (err error) {
	start := s.clock.Now()
	defer func() { s.observe(ctx, "ensure_acl", aclID, actorID, start, err) }()

	if aclID <= 0 {
		return domain.ValidationError{FieldID: domain.SystemField, Reason: "acl id must be positive"}
	}
	now := start
	return s.store.runInTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.store.dialect.rebind(
			`INSERT INTO acls (id) VALUES (?) ON CONFLICT (id) DO NOTHING`), aclID)
		if err != nil {
			return classifyWrite("insert acl", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert acl: %w", err)
		}
		if inserted == 0 {
			return nil
		}
		_, err = appendChange(ctx, tx, s.store.dialect, domain.ChangeEntry{
			FieldID:   domain.SystemField,
			SubjectID: domain.SystemSubject,
			ActorID:   actorID,
			Timestamp: now,
			Note:      fmt.Sprintf("%s %d", noteACLCreated, aclID),
		})
		return err
	})
}

// SetACLEntry grants or replaces one group's permission bits on an ACL. A
// zero mask removes the entry.
func (s *Service) SetACLEntry(ctx context.Context, actorID, aclID, groupID int64, perms domain.Permission) (err error) {
	start := s.clock.Now()
	defer func() { s.observe(ctx, "set_acl_entry", aclID, actorID, start, err) }()

	if _, err = s.loadACL(ctx, s.store.db, aclID); err != nil {
		return err
	}
	now := start
	return s.store.runInTx(ctx, func(tx *sql.Tx) error {
		if perms == 0 {
			if _, err := tx.ExecContext(ctx, s.store.dialect.rebind(
				`DELETE FROM acl_entries WHERE acl_id = ? AND group_id = ?`), aclID, groupID); err != nil {
				return classifyWrite("delete acl entry", err)
			}
		} else {
			_, err := tx.ExecContext(ctx, s.store.dialect.rebind(
				`INSERT INTO acl_entries (acl_id, group_id, perms) VALUES (?, ?, ?)
				 ON CONFLICT (acl_id, group_id) DO UPDATE SET perms = excluded.perms`),
				aclID, groupID, int64(perms))
			if err != nil {
				return classifyWrite("upsert acl entry", err)
			}
		}
		_, err := appendChange(ctx, tx, s.store.dialect, domain.ChangeEntry{
			FieldID:   domain.SystemField,
			SubjectID: domain.SystemSubject,
			ActorID:   actorID,
			Timestamp: now,
			Note:      fmt.Sprintf("%s acl=%d group=%d perms=%#x", noteACLEntrySet, aclID, groupID, perms),
		})
		return err
	})
}

// resolveWriteSet maps the supplied values onto the type's declared fields,
// validates every value, enforces required fields when requireAll is set,
// and returns the definitions in ascending field-id order so changelog
// appends are deterministic.
func (s *Service) resolveWriteSet(typeID int64, values map[int64]domain.FieldValue, requireAll bool) ([]domain.FieldDefinition, error) {
	declared := make(map[int64]domain.FieldDefinition)
	for _, def := range s.catalog.FieldsForType(typeID) {
		declared[def.ID] = def
	}
	if len(declared) == 0 {
		return nil, domain.NotFoundError{Kind: "type", ID: typeID}
	}
	defs := make([]domain.FieldDefinition, 0, len(values))
	for fieldID, v := range values {
		def, ok := declared[fieldID]
		if !ok {
			return nil, domain.ValidationError{FieldID: fieldID, Reason: fmt.Sprintf("field not declared for type %d", typeID)}
		}
		if err := s.validateValue(def, v); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if requireAll {
		for _, def := range declared {
			if !def.Required() {
				continue
			}
			if v, ok := values[def.ID]; !ok || v.IsZero() {
				return nil, domain.ValidationError{FieldID: def.ID, Reason: "required field missing"}
			}
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs, nil
}

// declaredFor reports whether the type's field binding includes the field.
// Writes to undeclared fields are rejected on update exactly as on create;
// CurrentView only projects declared fields.
func (s *Service) declaredFor(typeID, fieldID int64) bool {
	for _, def := range s.catalog.FieldsForType(typeID) {
		if def.ID == fieldID {
			return true
		}
	}
	return false
}

// validateValue routes shape validation to the field's store strategy.
func (s *Service) validateValue(def domain.FieldDefinition, v domain.FieldValue) error {
	if def.Kind == domain.KindEntityRelation {
		if v.Scalar.Defined() {
			return domain.ValidationError{FieldID: def.ID, Reason: "relation field takes links, not a scalar"}
		}
		return relationStore{}.validate(def, v.Links)
	}
	if len(v.Links) > 0 {
		return domain.ValidationError{FieldID: def.ID, Reason: "scalar field takes no links"}
	}
	if def.Required() && !v.Scalar.Defined() {
		return domain.ValidationError{FieldID: def.ID, Reason: "required field cannot be cleared"}
	}
	st, ok := scalarStoreFor(def.Kind)
	if !ok {
		return domain.ValidationError{FieldID: def.ID, Reason: fmt.Sprintf("unsupported storage kind %s", def.Kind)}
	}
	return st.validate(def, v.Scalar)
}

// applyField performs the value write, changelog append, and reverse sync
// for a single field inside the caller's transaction. It returns the value
// that was in place before the write.
func (s *Service) applyField(ctx context.Context, tx *sql.Tx, actorID, entityID int64, def domain.FieldDefinition, value domain.FieldValue, now time.Time) (domain.FieldValue, bool, error) {
	d := s.store.dialect
	if def.Kind == domain.KindEntityRelation {
		before, err := relationStore{}.readLinks(ctx, tx, d, entityID, def.ID)
		if err != nil {
			return domain.FieldValue{}, false, err
		}
		changes, err := relationStore{}.writeArray(ctx, tx, d, def, entityID, value.Links)
		if err != nil {
			return domain.FieldValue{}, false, err
		}
		for _, ch := range changes {
			if _, err := appendChange(ctx, tx, d, domain.ChangeEntry{
				FieldID:   def.ID,
				SubjectID: entityID,
				ActorID:   actorID,
				Timestamp: now,
				OldRef:    ch.oldRef,
				NewRef:    ch.newRef,
			}); err != nil {
				return domain.FieldValue{}, false, err
			}
		}
		if revID, ok := s.catalog.ReverseOf(def.ID); ok && len(changes) > 0 {
			rev, err := s.catalog.Definition(revID)
			if err != nil {
				return domain.FieldValue{}, false, err
			}
			if err := syncReverse(ctx, tx, d, rev, entityID, changes); err != nil {
				return domain.FieldValue{}, false, err
			}
		}
		old := domain.FieldValue{}
		for _, link := range before {
			old.Links = append(old.Links, domain.Link{TargetID: link.TargetID, Count: link.Count})
		}
		return old, len(changes) > 0, nil
	}

	st, ok := scalarStoreFor(def.Kind)
	if !ok {
		return domain.FieldValue{}, false, domain.ValidationError{FieldID: def.ID, Reason: fmt.Sprintf("unsupported storage kind %s", def.Kind)}
	}
	oldRow, newRef, changed, err := st.writeOne(ctx, tx, d, entityID, def.ID, value.Scalar)
	if err != nil {
		return domain.FieldValue{}, false, err
	}
	old := domain.FieldValue{}
	var oldRef domain.ValueRef
	if oldRow != nil {
		old.Scalar = oldRow.Value
		oldRef = domain.ValueRef(oldRow.RowID)
	}
	if !changed {
		return old, false, nil
	}
	if _, err := appendChange(ctx, tx, d, domain.ChangeEntry{
		FieldID:   def.ID,
		SubjectID: entityID,
		ActorID:   actorID,
		Timestamp: now,
		OldRef:    oldRef,
		NewRef:    newRef,
	}); err != nil {
		return domain.FieldValue{}, false, err
	}
	return old, true, nil
}

func (s *Service) insertEntity(ctx context.Context, tx *sql.Tx, e domain.Entity) (domain.Entity, error) {
	err := tx.QueryRowContext(ctx, s.store.dialect.rebind(
		`INSERT INTO entities (type_id, acl_id, owner_id, created_at, created_by,
		                       modified_at, modified_by, is_template, created_from)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		e.TypeID, e.ACLID, e.OwnerID, toMicros(e.CreatedAt), e.CreatedBy,
		toMicros(e.ModifiedAt), e.ModifiedBy, e.IsTemplate, e.CreatedFrom).Scan(&e.ID)
	if err != nil {
		return domain.Entity{}, classifyWrite("insert entity", err)
	}
	return e, nil
}

func (s *Service) touchEntity(ctx context.Context, tx *sql.Tx, entityID, actorID int64, now time.Time) error {
	if _, err := tx.ExecContext(ctx, s.store.dialect.rebind(
		`UPDATE entities SET modified_at = ?, modified_by = ? WHERE id = ?`),
		toMicros(now), actorID, entityID); err != nil {
		return classifyWrite("touch entity", err)
	}
	return nil
}
