package engine

import (
	"context"
	"sort"
	"time"

	"ticketcore/pkg/domain"
)

// CurrentView assembles the live value of every field declared for the
// entity's type. It reads without a transaction and never blocks writers; a
// concurrent write may or may not be visible, but never partially.
func (s *Service) CurrentView(ctx context.Context, entityID int64) (domain.View, error) {
	entity, err := s.entityFrom(ctx, s.store.db, entityID)
	if err != nil {
		return nil, err
	}
	return s.projectCurrent(ctx, s.store.db, entity)
}

func (s *Service) projectCurrent(ctx context.Context, q queryer, entity domain.Entity) (domain.View, error) {
	d := s.store.dialect
	view := make(domain.View)
	for _, def := range s.catalog.FieldsForType(entity.TypeID) {
		if def.Kind == domain.KindEntityRelation {
			links, err := relationStore{}.readLinks(ctx, q, d, entity.ID, def.ID)
			if err != nil {
				return nil, err
			}
			if len(links) == 0 {
				continue
			}
			fv := domain.FieldValue{}
			for _, link := range links {
				fv.Links = append(fv.Links, domain.Link{TargetID: link.TargetID, Count: link.Count})
			}
			view[def.ID] = fv
			continue
		}
		st, ok := scalarStoreFor(def.Kind)
		if !ok {
			continue
		}
		row, err := st.read(ctx, q, d, entity.ID, def.ID)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		view[def.ID] = domain.ScalarField(row.Value)
	}
	return view, nil
}

// HistoricalView reconstructs the entity's field values as they stood at the
// cutoff by replaying its changelog. It works for deleted entities too; the
// view is empty for timestamps after the deletion entry.
func (s *Service) HistoricalView(ctx context.Context, entityID int64, asOf time.Time) (domain.View, error) {
	scalarRefs, linkRefs, err := s.replayAsOf(ctx, entityID, asOf)
	if err != nil {
		return nil, err
	}
	d := s.store.dialect
	view := make(domain.View)
	for fieldID, ref := range scalarRefs {
		def, err := s.catalog.Definition(fieldID)
		if err != nil {
			continue
		}
		st, ok := scalarStoreFor(def.Kind)
		if !ok {
			continue
		}
		row, found, err := st.rowByID(ctx, s.store.db, d, int64(ref))
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		view[fieldID] = domain.ScalarField(row.Value)
	}
	for fieldID, targets := range linkRefs {
		if len(targets) == 0 {
			continue
		}
		fv := domain.FieldValue{}
		for _, ref := range targets {
			link, found, err := relationStore{}.linkByRowID(ctx, s.store.db, d, int64(ref))
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			fv.Links = append(fv.Links, domain.Link{TargetID: link.TargetID, Count: link.Count})
		}
		if len(fv.Links) == 0 {
			continue
		}
		sort.Slice(fv.Links, func(i, j int) bool { return fv.Links[i].TargetID < fv.Links[j].TargetID })
		view[fieldID] = fv
	}
	return view, nil
}
