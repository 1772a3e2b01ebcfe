// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package resolution

import "strings"

// Closer reports whether candidate a outranks candidate b.
//
// Precedence, in order:
//  1. level specificity, device > device_group > site > organization > partner
//  2. assignment priority, lower number wins
//  3. assignment creation time, older wins
//  4. assignment ID, for a stable total order when everything else ties
//
// Specificity always dominates: a device-level assignment with priority 100
// still beats an organization-level assignment with priority 1.
func Closer(a, b CandidateRow) bool {
	sa, sb := a.Level.Specificity(), b.Level.Specificity()
	if sa != sb {
		return sa > sb
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.AssignedAt.Equal(b.AssignedAt) {
		return a.AssignedAt.Before(b.AssignedAt)
	}
	return strings.Compare(a.AssignmentID.String(), b.AssignmentID.String()) < 0
}
