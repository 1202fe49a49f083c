package engine

import (
	"context"
	"fmt"

	"ticketcore/pkg/domain"
)

// Evaluate decides whether an actor holding the given group memberships has
// the required permissions under acl. It is a pure function of its inputs:
// the actor's own id is matched against entries exactly like a group id, and
// a single entry granting the full mask suffices.
func Evaluate(acl domain.ACL, actorID int64, groups []int64, required domain.Permission) bool {
	if required == 0 {
		return true
	}
	if acl.Entries[actorID].Has(required) {
		return true
	}
	for _, g := range groups {
		if acl.Entries[g].Has(required) {
			return true
		}
	}
	return false
}

// loadACL reads an ACL and its entries. A missing ACL is a hard failure, not
// an implicit deny: it means the referenced ACL id is dangling.
func (s *Service) loadACL(ctx context.Context, q queryer, aclID int64) (domain.ACL, error) {
	d := s.store.dialect
	var exists int64
	err := q.QueryRowContext(ctx, d.rebind(`SELECT id FROM acls WHERE id = ?`), aclID).Scan(&exists)
	if err != nil {
		return domain.ACL{}, domain.NotFoundError{Kind: "acl", ID: aclID}
	}
	rows, err := q.QueryContext(ctx, d.rebind(
		`SELECT group_id, perms FROM acl_entries WHERE acl_id = ?`), aclID)
	if err != nil {
		return domain.ACL{}, fmt.Errorf("query acl entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	acl := domain.ACL{ID: aclID, Entries: make(map[int64]domain.Permission)}
	for rows.Next() {
		var groupID int64
		var perms int64
		if err := rows.Scan(&groupID, &perms); err != nil {
			return domain.ACL{}, fmt.Errorf("scan acl entry: %w", err)
		}
		acl.Entries[groupID] = domain.Permission(perms)
	}
	if err := rows.Err(); err != nil {
		return domain.ACL{}, fmt.Errorf("iterate acl entries: %w", err)
	}
	return acl, nil
}

// checkAccess gates a mutation. It runs before any write is planned so that
// a denial leaves the store byte-for-byte untouched. There is no implicit
// grant: every actor id, including the changelog's system sentinel, is
// evaluated against the ACL's entries.
func (s *Service) checkAccess(ctx context.Context, q queryer, aclID, actorID int64, required domain.Permission) error {
	acl, err := s.loadACL(ctx, q, aclID)
	if err != nil {
		return err
	}
	groups, err := s.groups.GroupsOf(ctx, actorID)
	if err != nil {
		return fmt.Errorf("resolve groups for actor %d: %w", actorID, err)
	}
	if !Evaluate(acl, actorID, groups, required) {
		return domain.AccessDeniedError{ActorID: actorID, ACLID: aclID, Required: required}
	}
	return nil
}
