// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package models

import (
	"time"

	"github.com/google/uuid"
)

// HierarchyLevel identifies one tier of the device hierarchy.
type HierarchyLevel string

const (
	LevelPartner      HierarchyLevel = "partner"
	LevelOrganization HierarchyLevel = "organization"
	LevelSite         HierarchyLevel = "site"
	LevelDeviceGroup  HierarchyLevel = "device_group"
	LevelDevice       HierarchyLevel = "device"
)

// ValidHierarchyLevels is the set of accepted assignment levels.
var ValidHierarchyLevels = map[HierarchyLevel]bool{
	LevelPartner:      true,
	LevelOrganization: true,
	LevelSite:         true,
	LevelDeviceGroup:  true,
	LevelDevice:       true,
}

// levelSpecificity ranks levels for "closest wins" resolution. A higher
// value always beats a lower one regardless of assignment priority.
var levelSpecificity = map[HierarchyLevel]int{
	LevelDevice:       5,
	LevelDeviceGroup:  4,
	LevelSite:         3,
	LevelOrganization: 2,
	LevelPartner:      1,
}

// Specificity returns the rank of the level (device=5 .. partner=1).
// Unknown levels rank 0 and lose to everything.
func (l HierarchyLevel) Specificity() int {
	return levelSpecificity[l]
}

// Assignment binds one configuration policy to one hierarchy node.
// Duplicate (policy, level, target) bindings are legal; they rank against
// each other via priority, then creation time.
type Assignment struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	ConfigPolicyID uuid.UUID      `json:"config_policy_id" db:"config_policy_id"`
	Level          HierarchyLevel `json:"level" db:"level"`
	TargetID       uuid.UUID      `json:"target_id" db:"target_id"`
	Priority       int            `json:"priority" db:"priority"`
	AssignedBy     *uuid.UUID     `json:"assigned_by,omitempty" db:"assigned_by"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// TargetAssignment is an assignment joined with its policy for display
// ("what's assigned to this node").
type TargetAssignment struct {
	Assignment
	PolicyName   string       `json:"policy_name" db:"policy_name"`
	PolicyStatus PolicyStatus `json:"policy_status" db:"policy_status"`
	PolicyOrgID  uuid.UUID    `json:"policy_org_id" db:"policy_org_id"`
}

// AssignmentDraft is a hypothetical assignment used by the preview engine.
type AssignmentDraft struct {
	ConfigPolicyID uuid.UUID      `json:"config_policy_id"`
	Level          HierarchyLevel `json:"level"`
	TargetID       uuid.UUID      `json:"target_id"`
	Priority       int            `json:"priority"`
}
