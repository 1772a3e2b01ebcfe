// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package normalize

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/halcyonrmm/halcyon/internal/models"
	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
)

// Store persists decomposed settings rows for feature links.
type Store interface {
	ReplaceDecomposed(ctx context.Context, linkID uuid.UUID, d *Decomposed) error
	DeleteForLink(ctx context.Context, linkID uuid.UUID) error
	GetPatch(ctx context.Context, linkID uuid.UUID) (*models.PatchSettings, error)
	GetMaintenance(ctx context.Context, linkID uuid.UUID) (*models.MaintenanceSettings, error)
	ListAlertRules(ctx context.Context, linkID uuid.UUID) ([]models.AlertRule, error)
	ListAutomations(ctx context.Context, linkID uuid.UUID) ([]models.AutomationRule, error)
	ListComplianceChecks(ctx context.Context, linkID uuid.UUID) ([]models.ComplianceCheck, error)
}

// Service normalizes feature settings in and out of the settings tables.
type Service struct {
	store  Store
	logger *logger.Logger
}

// NewService creates a normalization service.
func NewService(store Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, logger: log.Named("normalize")}
}

// WithStore returns a copy bound to a different store, typically one bound
// to an open transaction.
func (s *Service) WithStore(store Store) *Service {
	return &Service{store: store, logger: s.logger}
}

// Persist decomposes a settings payload and replaces the stored rows for
// the link. Non-normalized feature types are left to the caller, which
// stores the payload inline; their rows (if any) are cleared.
func (s *Service) Persist(ctx context.Context, linkID uuid.UUID, featureType models.FeatureType, raw json.RawMessage) (*Decomposed, error) {
	d := Decompose(featureType, raw)

	if !models.NormalizedFeatureTypes[featureType] {
		if err := s.store.DeleteForLink(ctx, linkID); err != nil {
			return nil, fmt.Errorf("clear settings rows: %w", err)
		}
		return d, nil
	}

	if err := s.store.ReplaceDecomposed(ctx, linkID, d); err != nil {
		return nil, fmt.Errorf("replace settings rows: %w", err)
	}

	s.logger.Debug("persisted normalized settings",
		"feature_link_id", linkID,
		"feature_type", featureType)
	return d, nil
}

// Assemble rebuilds the canonical settings payload for a link from its
// normalized rows. The second return is false when no rows exist, which
// tells the caller to fall back to the link's inline JSON.
func (s *Service) Assemble(ctx context.Context, featureType models.FeatureType, linkID uuid.UUID) (json.RawMessage, bool, error) {
	if !models.NormalizedFeatureTypes[featureType] {
		return nil, false, nil
	}

	d := &Decomposed{FeatureType: featureType}
	switch featureType {
	case models.FeaturePatch:
		patch, err := s.store.GetPatch(ctx, linkID)
		if err != nil {
			return nil, false, err
		}
		if patch == nil {
			return nil, false, nil
		}
		d.Patch = patch
	case models.FeatureMaintenance:
		maint, err := s.store.GetMaintenance(ctx, linkID)
		if err != nil {
			return nil, false, err
		}
		if maint == nil {
			return nil, false, nil
		}
		d.Maintenance = maint
	case models.FeatureAlertRule:
		rules, err := s.store.ListAlertRules(ctx, linkID)
		if err != nil {
			return nil, false, err
		}
		if rules == nil {
			return nil, false, nil
		}
		d.AlertRules = rules
	case models.FeatureAutomation:
		rules, err := s.store.ListAutomations(ctx, linkID)
		if err != nil {
			return nil, false, err
		}
		if rules == nil {
			return nil, false, nil
		}
		d.Automations = rules
	case models.FeatureCompliance:
		checks, err := s.store.ListComplianceChecks(ctx, linkID)
		if err != nil {
			return nil, false, err
		}
		if checks == nil {
			return nil, false, nil
		}
		d.ComplianceChecks = checks
	}

	return Encode(d), true, nil
}
