// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/halcyonrmm/halcyon/internal/pkg/errors"

	"github.com/halcyonrmm/halcyon/internal/access"
	"github.com/halcyonrmm/halcyon/internal/models"
	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
	"github.com/halcyonrmm/halcyon/internal/services/normalize"
)

// Service resolves effective configurations and previews hypothetical
// assignment changes.
type Service struct {
	store  Store
	runner TxRunner
	logger *logger.Logger
}

// NewService creates a resolution service. runner may be nil when preview
// is not needed (tests that only resolve).
func NewService(store Store, runner TxRunner, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:  store,
		runner: runner,
		logger: log.Named("resolution"),
	}
}

// Resolve computes the effective configuration for one device.
//
// A device outside the caller's scope resolves to the same not-found error
// as a device that does not exist, so callers cannot probe for devices in
// other tenants.
func (s *Service) Resolve(ctx context.Context, deviceID uuid.UUID, scope access.Scope) (*models.EffectiveConfiguration, error) {
	return s.resolveWith(ctx, s.store, deviceID, scope)
}

// Preview computes the current effective configuration and the one that
// would result from applying the given changes. The changes are inserted
// into a transaction that is rolled back unconditionally; nothing about a
// preview is durable.
func (s *Service) Preview(ctx context.Context, deviceID uuid.UUID, changes models.PreviewChanges, scope access.Scope) (*models.ConfigurationPreview, error) {
	if s.runner == nil {
		return nil, apperrors.Internal("preview requires a transaction runner")
	}

	current, err := s.resolveWith(ctx, s.store, deviceID, scope)
	if err != nil {
		return nil, err
	}

	// Every drafted assignment must reference a policy the caller can
	// see; otherwise the proposed side would disclose another tenant's
	// policy name and settings.
	for _, draft := range changes.Add {
		orgID, err := s.store.PolicyOrg(ctx, draft.ConfigPolicyID)
		if err != nil {
			return nil, err
		}
		if scope != nil && !scope.CanAccessOrg(orgID) {
			// Indistinguishable from a policy that does not exist.
			return nil, apperrors.NotFound("policy")
		}
	}

	var proposed *models.EffectiveConfiguration
	err = s.runner.InDiscardedTx(ctx, func(store PreviewStore) error {
		for _, id := range changes.Remove {
			if err := store.DeleteAssignment(ctx, id); err != nil {
				return err
			}
		}
		for _, draft := range changes.Add {
			if err := store.InsertDraft(ctx, draft); err != nil {
				return err
			}
		}

		proposed, err = s.resolveWith(ctx, store, deviceID, scope)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("configuration preview computed",
		"device_id", deviceID,
		"added", len(changes.Add),
		"removed", len(changes.Remove))

	return &models.ConfigurationPreview{Current: current, Proposed: proposed}, nil
}

func (s *Service) resolveWith(ctx context.Context, store Store, deviceID uuid.UUID, scope access.Scope) (*models.EffectiveConfiguration, error) {
	device, err := store.Device(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if scope != nil && !scope.CanAccessOrg(device.OrgID) {
		// Indistinguishable from a missing device.
		return nil, apperrors.NotFound("device")
	}

	anc, err := s.ancestry(ctx, store, device)
	if err != nil {
		return nil, err
	}

	rows, err := store.Candidates(ctx, anc)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool { return Closer(rows[i], rows[j]) })

	features := make(map[models.FeatureType]*models.ResolvedFeature)
	var chain []models.InheritanceEntry
	chainIdx := make(map[chainKey]int)

	for _, row := range rows {
		// Inactive and archived policies never participate, whatever
		// the store handed back.
		if row.PolicyStatus != models.PolicyStatusActive {
			continue
		}

		// Duplicate assignments of the same policy to the same node
		// collapse into a single chain entry.
		key := chainKey{level: row.Level, targetID: row.TargetID, policyID: row.PolicyID}
		idx, seen := chainIdx[key]
		if !seen {
			chain = append(chain, models.InheritanceEntry{
				Level:      row.Level,
				TargetID:   row.TargetID,
				PolicyID:   row.PolicyID,
				PolicyName: row.PolicyName,
				Priority:   row.Priority,
			})
			idx = len(chain) - 1
			chainIdx[key] = idx
		}
		if !hasFeatureType(chain[idx].FeatureTypes, row.FeatureType) {
			chain[idx].FeatureTypes = append(chain[idx].FeatureTypes, row.FeatureType)
		}

		if _, won := features[row.FeatureType]; won {
			continue
		}

		settings, err := s.settingsFor(ctx, store, row)
		if err != nil {
			return nil, err
		}

		features[row.FeatureType] = &models.ResolvedFeature{
			FeatureType:     row.FeatureType,
			Settings:        settings,
			FeaturePolicyID: row.FeaturePolicyID,
			SourceLevel:     row.Level,
			SourceTargetID:  row.TargetID,
			SourcePolicyID:  row.PolicyID,
			SourcePriority:  row.Priority,
		}
	}

	return &models.EffectiveConfiguration{
		DeviceID:         deviceID,
		Features:         features,
		InheritanceChain: chain,
		ResolvedAt:       time.Now().UTC(),
	}, nil
}

// chainKey identifies one (level, target, policy) node in the
// inheritance chain.
type chainKey struct {
	level    models.HierarchyLevel
	targetID uuid.UUID
	policyID uuid.UUID
}

func hasFeatureType(types []models.FeatureType, ft models.FeatureType) bool {
	for _, t := range types {
		if t == ft {
			return true
		}
	}
	return false
}

// settingsFor picks the winning link's settings payload: normalized rows
// first, inline JSON as fallback, fully-defaulted settings when neither
// exists. Resolution never fails on a malformed payload.
func (s *Service) settingsFor(ctx context.Context, store Store, row CandidateRow) (json.RawMessage, error) {
	assembled, found, err := store.AssembleSettings(ctx, row.FeatureType, row.FeatureLinkID)
	if err != nil {
		return nil, fmt.Errorf("assemble settings for %s: %w", row.FeatureType, err)
	}
	if found {
		return assembled, nil
	}

	if len(row.InlineSettings) > 0 && json.Valid(row.InlineSettings) {
		if models.NormalizedFeatureTypes[row.FeatureType] {
			// Re-normalize so a raw inline payload still comes out in
			// canonical, defaulted shape.
			return normalize.Encode(normalize.Decompose(row.FeatureType, row.InlineSettings)), nil
		}
		return row.InlineSettings, nil
	}

	return normalize.Encode(normalize.Decompose(row.FeatureType, nil)), nil
}

func (s *Service) ancestry(ctx context.Context, store Store, device *models.Device) (Ancestry, error) {
	anc := Ancestry{
		DeviceID: device.ID,
		SiteID:   device.SiteID,
		OrgID:    device.OrgID,
	}

	groups, err := store.DeviceGroupIDs(ctx, device.ID)
	if err != nil {
		return anc, err
	}
	anc.GroupIDs = groups

	org, err := store.Organization(ctx, device.OrgID)
	if err != nil {
		return anc, err
	}
	anc.PartnerID = org.PartnerID

	return anc, nil
}
