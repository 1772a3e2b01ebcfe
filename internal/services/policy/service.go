// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package policy manages configuration policy lifecycle and feature links.
package policy

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/halcyonrmm/halcyon/internal/pkg/errors"

	"github.com/halcyonrmm/halcyon/internal/access"
	"github.com/halcyonrmm/halcyon/internal/models"
	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
)

// Repository defines the persistence interface for policy operations.
type Repository interface {
	Create(ctx context.Context, policy *models.ConfigurationPolicy) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConfigurationPolicy, error)
	List(ctx context.Context, opts models.PolicyListOptions, orgFilter []uuid.UUID) ([]*models.ConfigurationPolicy, int, error)
	Update(ctx context.Context, id uuid.UUID, input models.UpdatePolicyInput) (*models.ConfigurationPolicy, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetFeatureLink(ctx context.Context, policyID uuid.UUID, featureType models.FeatureType) (*models.FeatureLink, error)
	SetFeatureLink(ctx context.Context, policyID uuid.UUID, featureType models.FeatureType, featurePolicyID *uuid.UUID, settings json.RawMessage) (*models.FeatureLink, error)
	RemoveFeatureLink(ctx context.Context, policyID uuid.UUID, featureType models.FeatureType) error
}

// FeaturePolicyChecker verifies that a referenced feature policy exists in
// its owning subsystem before a link to it is stored.
type FeaturePolicyChecker interface {
	FeaturePolicyExists(ctx context.Context, featureType models.FeatureType, id uuid.UUID) (bool, error)
}

// Events receives change notifications after successful mutations.
type Events interface {
	PolicyChanged(ctx context.Context, action string, policy *models.ConfigurationPolicy)
}

// Service handles configuration policy operations.
type Service struct {
	repo    Repository
	checker FeaturePolicyChecker
	events  Events
	logger  *logger.Logger
}

// NewService creates a policy service. checker and events may be nil.
func NewService(repo Repository, checker FeaturePolicyChecker, events Events, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:    repo,
		checker: checker,
		events:  events,
		logger:  log.Named("policy"),
	}
}

// Create creates a new policy in the given organization.
func (s *Service) Create(ctx context.Context, scope access.Scope, orgID uuid.UUID, input models.CreatePolicyInput, actor *uuid.UUID) (*models.ConfigurationPolicy, error) {
	if scope != nil && !scope.CanAccessOrg(orgID) {
		return nil, apperrors.NotFound("organization")
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.ValidationFailed(map[string]string{"name": "name is required"})
	}
	if len(name) > 255 {
		return nil, apperrors.ValidationFailed(map[string]string{"name": "name must be at most 255 characters"})
	}

	status := input.Status
	if status == "" {
		status = models.PolicyStatusActive
	}
	if !models.ValidPolicyStatuses[status] {
		return nil, apperrors.ValidationFailed(map[string]string{"status": "invalid status"})
	}

	policy := &models.ConfigurationPolicy{
		ID:          uuid.New(),
		OrgID:       orgID,
		Name:        name,
		Description: input.Description,
		Status:      status,
		CreatedBy:   actor,
	}
	if err := s.repo.Create(ctx, policy); err != nil {
		return nil, err
	}

	s.logger.Info("policy created", "policy_id", policy.ID, "org_id", orgID, "name", name)
	s.notify(ctx, models.AuditActionCreate, policy)
	return policy, nil
}

// Get returns a policy with its feature links. A policy in an inaccessible
// organization is reported as not found.
func (s *Service) Get(ctx context.Context, scope access.Scope, id uuid.UUID) (*models.ConfigurationPolicy, error) {
	policy, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scope != nil && !scope.CanAccessOrg(policy.OrgID) {
		return nil, apperrors.NotFound("policy")
	}
	return policy, nil
}

// List returns policies visible to the caller.
func (s *Service) List(ctx context.Context, scope access.Scope, opts models.PolicyListOptions) ([]*models.ConfigurationPolicy, int, error) {
	var orgFilter []uuid.UUID
	if scope != nil {
		orgFilter = scope.OrgFilter()
	}
	if opts.OrgID != nil && scope != nil && !scope.CanAccessOrg(*opts.OrgID) {
		// An org filter outside the caller's scope yields nothing rather
		// than an error that would confirm the org exists.
		return []*models.ConfigurationPolicy{}, 0, nil
	}
	return s.repo.List(ctx, opts, orgFilter)
}

// Update applies a partial update. Archived policies reject all mutation.
func (s *Service) Update(ctx context.Context, scope access.Scope, id uuid.UUID, input models.UpdatePolicyInput) (*models.ConfigurationPolicy, error) {
	current, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.PolicyStatusArchived {
		return nil, apperrors.Conflict("policy is archived")
	}

	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if trimmed == "" {
			return nil, apperrors.ValidationFailed(map[string]string{"name": "name is required"})
		}
		input.Name = &trimmed
	}
	if input.Status != nil && !models.ValidPolicyStatuses[*input.Status] {
		return nil, apperrors.ValidationFailed(map[string]string{"status": "invalid status"})
	}

	updated, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return nil, err
	}

	action := models.AuditActionUpdate
	if input.Status != nil && *input.Status == models.PolicyStatusArchived {
		action = models.AuditActionArchive
	}
	s.logger.Info("policy updated", "policy_id", id, "action", action)
	s.notify(ctx, action, updated)
	return updated, nil
}

// Archive marks a policy archived. Idempotent only in the sense that the
// first call wins; archiving twice is a conflict like any other mutation
// of an archived policy.
func (s *Service) Archive(ctx context.Context, scope access.Scope, id uuid.UUID) (*models.ConfigurationPolicy, error) {
	archived := models.PolicyStatusArchived
	return s.Update(ctx, scope, id, models.UpdatePolicyInput{Status: &archived})
}

// Delete removes a policy along with its feature links, settings rows and
// assignments.
func (s *Service) Delete(ctx context.Context, scope access.Scope, id uuid.UUID) error {
	policy, err := s.Get(ctx, scope, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("policy deleted", "policy_id", id, "org_id", policy.OrgID)
	s.notify(ctx, models.AuditActionDelete, policy)
	return nil
}

// SetFeature creates or replaces the feature link for (policy, feature
// type). Settings may arrive by reference, inline, or both; monitoring
// never accepts a reference.
func (s *Service) SetFeature(ctx context.Context, scope access.Scope, policyID uuid.UUID, featureType models.FeatureType, featurePolicyID *uuid.UUID, settings json.RawMessage) (*models.FeatureLink, error) {
	if !models.ValidFeatureTypes[featureType] {
		return nil, apperrors.ValidationFailed(map[string]string{"feature_type": "unknown feature type"})
	}
	if featurePolicyID != nil && !featureType.SupportsFeaturePolicyRef() {
		return nil, apperrors.ValidationFailed(map[string]string{
			"feature_policy_id": "monitoring settings are always inline",
		})
	}
	if featurePolicyID == nil && len(settings) == 0 {
		return nil, apperrors.ValidationFailed(map[string]string{
			"settings": "either settings or feature_policy_id is required",
		})
	}
	if len(settings) > 0 && !json.Valid(settings) {
		return nil, apperrors.InvalidInput("settings is not valid JSON")
	}

	policy, err := s.Get(ctx, scope, policyID)
	if err != nil {
		return nil, err
	}
	if policy.Status == models.PolicyStatusArchived {
		return nil, apperrors.Conflict("policy is archived")
	}

	if featurePolicyID != nil && s.checker != nil {
		exists, err := s.checker.FeaturePolicyExists(ctx, featureType, *featurePolicyID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperrors.NotFound("feature policy")
		}
	}

	link, err := s.repo.SetFeatureLink(ctx, policyID, featureType, featurePolicyID, settings)
	if err != nil {
		return nil, err
	}

	s.logger.Info("feature link set",
		"policy_id", policyID,
		"feature_type", featureType,
		"by_reference", featurePolicyID != nil)
	s.notify(ctx, models.AuditActionSetFeature, policy)
	return link, nil
}

// RemoveFeature deletes the feature link for (policy, feature type).
func (s *Service) RemoveFeature(ctx context.Context, scope access.Scope, policyID uuid.UUID, featureType models.FeatureType) error {
	if !models.ValidFeatureTypes[featureType] {
		return apperrors.ValidationFailed(map[string]string{"feature_type": "unknown feature type"})
	}

	policy, err := s.Get(ctx, scope, policyID)
	if err != nil {
		return err
	}
	if policy.Status == models.PolicyStatusArchived {
		return apperrors.Conflict("policy is archived")
	}

	if err := s.repo.RemoveFeatureLink(ctx, policyID, featureType); err != nil {
		return err
	}

	s.logger.Info("feature link removed", "policy_id", policyID, "feature_type", featureType)
	s.notify(ctx, models.AuditActionRemoveFeature, policy)
	return nil
}

func (s *Service) notify(ctx context.Context, action string, policy *models.ConfigurationPolicy) {
	if s.events != nil {
		s.events.PolicyChanged(ctx, action, policy)
	}
}
