// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package access defines the caller scope predicate used to restrict every
// policy, assignment, and resolution operation to the organizations the
// caller may see. The engine never computes authorization itself; scopes
// are built by the auth layer and passed down.
package access

import "github.com/google/uuid"

// Scope answers whether an organization is visible to the caller.
type Scope interface {
	// CanAccessOrg reports whether the caller may see the organization.
	CanAccessOrg(orgID uuid.UUID) bool

	// OrgFilter returns the accessible organization ids for SQL scoping,
	// or nil when the caller is unrestricted. An org scope always returns
	// a non-nil slice: a caller with no organizations gets an empty filter
	// that matches nothing, never an unrestricted one.
	OrgFilter() []uuid.UUID
}

// orgScope restricts access to an explicit set of organizations.
type orgScope struct {
	orgs map[uuid.UUID]bool
	ids  []uuid.UUID
}

// NewOrgScope builds a scope limited to the given organizations. An empty
// set yields a scope that can see nothing.
func NewOrgScope(orgIDs []uuid.UUID) Scope {
	s := &orgScope{
		orgs: make(map[uuid.UUID]bool, len(orgIDs)),
		ids:  make([]uuid.UUID, 0, len(orgIDs)),
	}
	for _, id := range orgIDs {
		if !s.orgs[id] {
			s.orgs[id] = true
			s.ids = append(s.ids, id)
		}
	}
	return s
}

func (s *orgScope) CanAccessOrg(orgID uuid.UUID) bool {
	return s.orgs[orgID]
}

func (s *orgScope) OrgFilter() []uuid.UUID {
	return s.ids
}

// unrestricted grants access to every organization (platform admins).
type unrestricted struct{}

// Unrestricted returns a scope that can see every organization.
func Unrestricted() Scope {
	return unrestricted{}
}

func (unrestricted) CanAccessOrg(uuid.UUID) bool { return true }

func (unrestricted) OrgFilter() []uuid.UUID { return nil }
