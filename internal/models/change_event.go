// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package models

import (
	"time"

	"github.com/google/uuid"
)

// Change event resource kinds.
const (
	ChangeResourcePolicy     = "policy"
	ChangeResourceAssignment = "assignment"
)

// ChangeEvent notifies subscribers (agents, sync workers, UIs) that the
// effective configuration of some subtree may have changed. Consumers
// re-resolve; the event carries provenance, not settings.
type ChangeEvent struct {
	ID           uuid.UUID  `json:"id"`
	ResourceType string     `json:"resource_type"`
	ResourceID   uuid.UUID  `json:"resource_id"`
	Action       string     `json:"action"`
	OrgID        uuid.UUID  `json:"org_id"`
	PolicyID     *uuid.UUID `json:"policy_id,omitempty"`

	// Level and TargetID are set for assignment events so consumers can
	// scope re-resolution to the affected subtree.
	Level    HierarchyLevel `json:"level,omitempty"`
	TargetID *uuid.UUID     `json:"target_id,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
