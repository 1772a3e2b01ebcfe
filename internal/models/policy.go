// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package models contains the shared data model for the configuration
// policy engine.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PolicyStatus is the lifecycle state of a configuration policy.
type PolicyStatus string

const (
	PolicyStatusActive   PolicyStatus = "active"
	PolicyStatusInactive PolicyStatus = "inactive"
	// PolicyStatusArchived is terminal: an archived policy accepts no
	// further mutation and never contributes to resolution.
	PolicyStatusArchived PolicyStatus = "archived"
)

// ValidPolicyStatuses is the set of accepted policy statuses.
var ValidPolicyStatuses = map[PolicyStatus]bool{
	PolicyStatusActive:   true,
	PolicyStatusInactive: true,
	PolicyStatusArchived: true,
}

// FeatureType is a category of device behavior governed by configuration.
type FeatureType string

const (
	FeaturePatch       FeatureType = "patch"
	FeatureAlertRule   FeatureType = "alert_rule"
	FeatureBackup      FeatureType = "backup"
	FeatureSecurity    FeatureType = "security"
	FeatureMonitoring  FeatureType = "monitoring"
	FeatureMaintenance FeatureType = "maintenance"
	FeatureCompliance  FeatureType = "compliance"
	FeatureAutomation  FeatureType = "automation"
)

// ValidFeatureTypes is the set of accepted feature types.
var ValidFeatureTypes = map[FeatureType]bool{
	FeaturePatch:       true,
	FeatureAlertRule:   true,
	FeatureBackup:      true,
	FeatureSecurity:    true,
	FeatureMonitoring:  true,
	FeatureMaintenance: true,
	FeatureCompliance:  true,
	FeatureAutomation:  true,
}

// NormalizedFeatureTypes are the feature types backed by a feature-specific
// settings table. The rest (backup, security, monitoring) carry opaque JSON.
var NormalizedFeatureTypes = map[FeatureType]bool{
	FeaturePatch:       true,
	FeatureMaintenance: true,
	FeatureAlertRule:   true,
	FeatureAutomation:  true,
	FeatureCompliance:  true,
}

// ListFeatureTypes are normalized feature types whose settings are an
// ordered list of rows rather than a single row.
var ListFeatureTypes = map[FeatureType]bool{
	FeatureAlertRule:  true,
	FeatureAutomation: true,
	FeatureCompliance: true,
}

// SupportsFeaturePolicyRef reports whether a feature type may reference a
// standalone feature policy. Monitoring only supports inline settings.
func (ft FeatureType) SupportsFeaturePolicyRef() bool {
	return ft != FeatureMonitoring
}

// ConfigurationPolicy is a named, org-owned bundle of per-feature settings
// that can be assigned anywhere in the device hierarchy.
type ConfigurationPolicy struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	OrgID       uuid.UUID    `json:"org_id" db:"org_id"`
	Name        string       `json:"name" db:"name"`
	Description string       `json:"description,omitempty" db:"description"`
	Status      PolicyStatus `json:"status" db:"status"`
	CreatedBy   *uuid.UUID   `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`

	// Features is populated on detail reads, not on list reads.
	Features []*FeatureLink `json:"features,omitempty" db:"-"`
}

// FeatureLink associates one feature type's settings with one policy.
// Settings travel either by reference (FeaturePolicyID, owned by a
// feature-specific subsystem) or inline (InlineSettings). When both are
// set the reference takes precedence.
type FeatureLink struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	ConfigPolicyID  uuid.UUID       `json:"config_policy_id" db:"config_policy_id"`
	FeatureType     FeatureType     `json:"feature_type" db:"feature_type"`
	FeaturePolicyID *uuid.UUID      `json:"feature_policy_id,omitempty" db:"feature_policy_id"`
	InlineSettings  json.RawMessage `json:"inline_settings,omitempty" db:"inline_settings"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// PolicyListOptions filters and paginates policy listings.
type PolicyListOptions struct {
	Status *PolicyStatus
	Search string
	OrgID  *uuid.UUID
	Limit  int
	Offset int
}

// CreatePolicyInput is the payload for creating a policy.
type CreatePolicyInput struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Status      PolicyStatus `json:"status,omitempty"`
}

// UpdatePolicyInput is a partial update; nil fields are left unchanged.
type UpdatePolicyInput struct {
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Status      *PolicyStatus `json:"status,omitempty"`
}
