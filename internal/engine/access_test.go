package engine

import (
	"testing"

	"ticketcore/pkg/domain"
)

func TestEvaluateGrantsThroughGroups(t *testing.T) {
	acl := domain.ACL{ID: 1, Entries: map[int64]domain.Permission{
		100: domain.PermRead | domain.PermUpdate,
		200: domain.PermDelete,
	}}

	cases := []struct {
		name     string
		actor    int64
		groups   []int64
		required domain.Permission
		want     bool
	}{
		{"group grants read", 7, []int64{100}, domain.PermRead, true},
		{"group grants combined bits", 7, []int64{100}, domain.PermRead | domain.PermUpdate, true},
		{"no entry denies", 7, []int64{300}, domain.PermRead, false},
		{"partial mask denies", 7, []int64{200}, domain.PermRead | domain.PermDelete, false},
		{"second group suffices", 7, []int64{300, 200}, domain.PermDelete, true},
		{"zero requirement allows", 7, nil, 0, true},
		{"no groups denies", 7, nil, domain.PermRead, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(acl, tc.actor, tc.groups, tc.required); got != tc.want {
				t.Fatalf("Evaluate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateMatchesActorEntryDirectly(t *testing.T) {
	acl := domain.ACL{ID: 2, Entries: map[int64]domain.Permission{
		7: domain.PermMail,
	}}
	if !Evaluate(acl, 7, nil, domain.PermMail) {
		t.Fatalf("expected direct actor entry to grant")
	}
	if Evaluate(acl, 8, nil, domain.PermMail) {
		t.Fatalf("expected other actor to be denied")
	}
}
