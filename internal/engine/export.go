package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ticketcore/internal/infra/archive"
	"ticketcore/pkg/domain"
)

// ExportedEntry is one changelog entry enriched with resolved value
// snapshots for archive consumers that cannot query the value tables.
type ExportedEntry struct {
	ID        int64              `json:"id"`
	FieldID   int64              `json:"field_id"`
	Kind      domain.StorageKind `json:"kind,omitempty"`
	ActorID   int64              `json:"actor_id"`
	Timestamp time.Time          `json:"timestamp"`
	OldValue  json.RawMessage    `json:"old_value,omitempty"`
	NewValue  json.RawMessage    `json:"new_value,omitempty"`
	Note      string             `json:"note,omitempty"`
}

// HistoryDocument is the JSON document ExportHistory writes.
type HistoryDocument struct {
	SubjectID  int64           `json:"subject_id"`
	ExportedAt time.Time       `json:"exported_at"`
	Entries    []ExportedEntry `json:"entries"`
}

// ExportHistory streams a subject's full changelog, with value refs resolved
// to snapshots, into the archive under a fresh key. It returns the stored
// document's info.
func (s *Service) ExportHistory(ctx context.Context, sink archive.Store, subjectID int64) (info archive.Info, err error) {
	start := s.clock.Now()
	defer func() { s.observe(ctx, "export_history", subjectID, domain.SystemSubject, start, err) }()

	entries, err := s.collectEntries(ctx, subjectID, 0)
	if err != nil {
		return archive.Info{}, err
	}

	doc := HistoryDocument{SubjectID: subjectID, ExportedAt: start}
	for _, entry := range entries {
		exported := ExportedEntry{
			ID:        entry.ID,
			FieldID:   entry.FieldID,
			ActorID:   entry.ActorID,
			Timestamp: entry.Timestamp,
			Note:      entry.Note,
		}
		if old, err := s.resolveRef(ctx, entry.FieldID, entry.OldRef); err != nil {
			return archive.Info{}, err
		} else if old.Defined() {
			exported.OldValue = old.Raw()
			exported.Kind = old.Kind()
		}
		if next, err := s.resolveRef(ctx, entry.FieldID, entry.NewRef); err != nil {
			return archive.Info{}, err
		} else if next.Defined() {
			exported.NewValue = next.Raw()
			exported.Kind = next.Kind()
		}
		doc.Entries = append(doc.Entries, exported)
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return archive.Info{}, fmt.Errorf("encode history document: %w", err)
	}
	key := fmt.Sprintf("history/%d/%s.json", subjectID, uuid.NewString())
	info, err = sink.Put(ctx, key, bytes.NewReader(raw), archive.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"subject_id": fmt.Sprintf("%d", subjectID)},
	})
	if err != nil {
		return archive.Info{}, err
	}
	return info, nil
}

// resolveRef snapshots the value row a changelog ref points at. System
// entries and first-write old refs carry no ref and resolve to undefined.
func (s *Service) resolveRef(ctx context.Context, fieldID int64, ref domain.ValueRef) (domain.HistoryPayload, error) {
	if ref.IsNone() || fieldID == domain.SystemField {
		return domain.UndefinedHistoryPayload(), nil
	}
	def, err := s.catalog.Definition(fieldID)
	if err != nil {
		// Entries for fields since dropped from the catalog export refs only.
		return domain.UndefinedHistoryPayload(), nil
	}
	if def.Kind == domain.KindEntityRelation {
		link, found, err := relationStore{}.linkByRowID(ctx, s.store.db, s.store.dialect, int64(ref))
		if err != nil {
			return domain.UndefinedHistoryPayload(), err
		}
		if !found {
			return domain.UndefinedHistoryPayload(), nil
		}
		return domain.NewHistoryPayloadFromValue(def.Kind, domain.Link{TargetID: link.TargetID, Count: link.Count})
	}
	st, ok := scalarStoreFor(def.Kind)
	if !ok {
		return domain.UndefinedHistoryPayload(), nil
	}
	row, found, err := st.rowByID(ctx, s.store.db, s.store.dialect, int64(ref))
	if err != nil {
		return domain.UndefinedHistoryPayload(), err
	}
	if !found {
		return domain.UndefinedHistoryPayload(), nil
	}
	return domain.NewHistoryPayloadFromValue(def.Kind, row.Value)
}
