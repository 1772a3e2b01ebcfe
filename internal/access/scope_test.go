// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package access

import (
	"testing"

	"github.com/google/uuid"
)

func TestOrgScope_MembershipAndFilter(t *testing.T) {
	orgA := uuid.New()
	orgB := uuid.New()

	s := NewOrgScope([]uuid.UUID{orgA, orgB, orgA})

	if !s.CanAccessOrg(orgA) || !s.CanAccessOrg(orgB) {
		t.Error("listed organizations must be accessible")
	}
	if s.CanAccessOrg(uuid.New()) {
		t.Error("unlisted organization must not be accessible")
	}
	if got := s.OrgFilter(); len(got) != 2 {
		t.Errorf("filter should deduplicate, got %d ids", len(got))
	}
}

func TestOrgScope_EmptySeesNothing(t *testing.T) {
	// A token carrying no usable org claims must deny everything. The
	// filter stays non-nil so SQL consumers match no rows instead of
	// mistaking it for an unrestricted scope.
	for name, s := range map[string]Scope{
		"nil input":   NewOrgScope(nil),
		"empty input": NewOrgScope([]uuid.UUID{}),
	} {
		if s.CanAccessOrg(uuid.New()) {
			t.Errorf("%s: empty scope must not grant access", name)
		}
		filter := s.OrgFilter()
		if filter == nil {
			t.Errorf("%s: empty scope filter must be non-nil", name)
		}
		if len(filter) != 0 {
			t.Errorf("%s: empty scope filter must be empty, got %d", name, len(filter))
		}
	}
}

func TestUnrestricted(t *testing.T) {
	s := Unrestricted()

	if !s.CanAccessOrg(uuid.New()) {
		t.Error("unrestricted scope must see every organization")
	}
	if s.OrgFilter() != nil {
		t.Error("unrestricted scope must have a nil filter")
	}
}
