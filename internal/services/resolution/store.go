// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package resolution computes the effective configuration of a device by
// walking every assignment that matches its ancestry and keeping, per
// feature type, the closest one.
package resolution

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonrmm/halcyon/internal/models"
)

// Ancestry is the full hierarchy path of one device, resolved once per
// request. A device has exactly one site, org and (optionally) partner,
// and any number of device groups.
type Ancestry struct {
	DeviceID  uuid.UUID
	GroupIDs  []uuid.UUID
	SiteID    uuid.UUID
	OrgID     uuid.UUID
	PartnerID *uuid.UUID
}

// CandidateRow is one (assignment, feature link) pair that matched the
// device's ancestry.
type CandidateRow struct {
	AssignmentID uuid.UUID
	Level        models.HierarchyLevel
	TargetID     uuid.UUID
	Priority     int
	AssignedAt   time.Time

	PolicyID     uuid.UUID
	PolicyName   string
	PolicyOrgID  uuid.UUID
	PolicyStatus models.PolicyStatus

	FeatureLinkID   uuid.UUID
	FeatureType     models.FeatureType
	FeaturePolicyID *uuid.UUID
	InlineSettings  json.RawMessage
}

// Store provides the reads resolution needs. Implementations may be bound
// to the connection pool or to an open transaction; the resolver does not
// care which.
type Store interface {
	// Device returns the device or a not-found error.
	Device(ctx context.Context, id uuid.UUID) (*models.Device, error)
	// Organization returns the device's organization.
	Organization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	// DeviceGroupIDs returns the groups the device belongs to.
	DeviceGroupIDs(ctx context.Context, deviceID uuid.UUID) ([]uuid.UUID, error)
	// Candidates returns every (assignment, feature link) pair matching
	// the ancestry where the owning policy is active.
	Candidates(ctx context.Context, anc Ancestry) ([]CandidateRow, error)
	// PolicyOrg returns the owning organization of a policy, or a
	// not-found error when the policy does not exist.
	PolicyOrg(ctx context.Context, policyID uuid.UUID) (uuid.UUID, error)
	// AssembleSettings rebuilds the canonical payload for a feature link
	// from its normalized rows; the bool is false when no rows exist.
	AssembleSettings(ctx context.Context, featureType models.FeatureType, linkID uuid.UUID) (json.RawMessage, bool, error)
}

// PreviewStore extends Store with the hypothetical mutations applied
// inside a discarded transaction.
type PreviewStore interface {
	Store
	InsertDraft(ctx context.Context, draft models.AssignmentDraft) error
	DeleteAssignment(ctx context.Context, id uuid.UUID) error
}

// TxRunner runs fn against a PreviewStore bound to a transaction that is
// always rolled back, whatever fn returns.
type TxRunner interface {
	InDiscardedTx(ctx context.Context, fn func(store PreviewStore) error) error
}
