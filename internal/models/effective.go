// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ResolvedFeature is the winning settings for one feature type plus the
// provenance of where it came from in the hierarchy.
type ResolvedFeature struct {
	FeatureType     FeatureType     `json:"feature_type"`
	Settings        json.RawMessage `json:"settings"`
	FeaturePolicyID *uuid.UUID      `json:"feature_policy_id,omitempty"`
	SourceLevel     HierarchyLevel  `json:"source_level"`
	SourceTargetID  uuid.UUID       `json:"source_target_id"`
	SourcePolicyID  uuid.UUID       `json:"source_policy_id"`
	SourcePriority  int             `json:"source_priority"`
}

// InheritanceEntry records one (level, target, policy) tuple that
// contributed, or attempted to contribute, feature types during
// resolution. Surfaced to administrators to explain why a setting won.
type InheritanceEntry struct {
	Level        HierarchyLevel `json:"level"`
	TargetID     uuid.UUID      `json:"target_id"`
	PolicyID     uuid.UUID      `json:"policy_id"`
	PolicyName   string         `json:"policy_name"`
	Priority     int            `json:"priority"`
	FeatureTypes []FeatureType  `json:"feature_types"`
}

// EffectiveConfiguration is the derived, never-persisted result of
// resolving every assignment that matches a device's ancestry.
type EffectiveConfiguration struct {
	DeviceID         uuid.UUID                        `json:"device_id"`
	Features         map[FeatureType]*ResolvedFeature `json:"features"`
	InheritanceChain []InheritanceEntry               `json:"inheritance_chain"`
	ResolvedAt       time.Time                        `json:"resolved_at"`
}

// ConfigurationPreview is the before/after pair computed by the preview
// engine for a hypothetical set of assignment changes.
type ConfigurationPreview struct {
	Current  *EffectiveConfiguration `json:"current"`
	Proposed *EffectiveConfiguration `json:"proposed"`
}

// PreviewChanges describes the hypothetical mutation to preview.
type PreviewChanges struct {
	Add    []AssignmentDraft `json:"add,omitempty"`
	Remove []uuid.UUID       `json:"remove,omitempty"`
}
