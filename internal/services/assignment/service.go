// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package assignment binds configuration policies to hierarchy nodes.
package assignment

import (
	"context"

	"github.com/google/uuid"

	apperrors "github.com/halcyonrmm/halcyon/internal/pkg/errors"

	"github.com/halcyonrmm/halcyon/internal/access"
	"github.com/halcyonrmm/halcyon/internal/models"
	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
)

// Repository defines the persistence interface for assignment operations.
type Repository interface {
	Create(ctx context.Context, a *models.Assignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListForPolicy(ctx context.Context, policyID uuid.UUID) ([]*models.Assignment, error)
	ListForTarget(ctx context.Context, level models.HierarchyLevel, targetID uuid.UUID) ([]*models.TargetAssignment, error)
}

// PolicyStore reads policies for ownership and lifecycle checks.
type PolicyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConfigurationPolicy, error)
}

// Directory reads the device hierarchy for target validation.
type Directory interface {
	DeviceByID(ctx context.Context, id uuid.UUID) (*models.Device, error)
	SiteByID(ctx context.Context, id uuid.UUID) (*models.Site, error)
	DeviceGroupByID(ctx context.Context, id uuid.UUID) (*models.DeviceGroup, error)
	OrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	PartnerExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Events receives change notifications after successful mutations.
type Events interface {
	AssignmentChanged(ctx context.Context, action string, a *models.Assignment, orgID uuid.UUID)
}

// Service handles assignment operations.
type Service struct {
	repo      Repository
	policies  PolicyStore
	directory Directory
	events    Events
	logger    *logger.Logger
}

// NewService creates an assignment service. events may be nil.
func NewService(repo Repository, policies PolicyStore, directory Directory, events Events, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:      repo,
		policies:  policies,
		directory: directory,
		events:    events,
		logger:    log.Named("assignment"),
	}
}

// Assign binds a policy to a hierarchy node. Duplicate bindings of the
// same policy to the same node are allowed; they rank by priority, then
// creation time.
func (s *Service) Assign(ctx context.Context, scope access.Scope, draft models.AssignmentDraft, actor *uuid.UUID) (*models.Assignment, error) {
	if !models.ValidHierarchyLevels[draft.Level] {
		return nil, apperrors.ValidationFailed(map[string]string{"level": "unknown hierarchy level"})
	}
	if draft.Priority < 0 {
		return nil, apperrors.ValidationFailed(map[string]string{"priority": "priority must not be negative"})
	}

	policy, err := s.accessiblePolicy(ctx, scope, draft.ConfigPolicyID)
	if err != nil {
		return nil, err
	}
	if policy.Status == models.PolicyStatusArchived {
		return nil, apperrors.Conflict("policy is archived")
	}

	if err := s.validateTarget(ctx, scope, policy, draft.Level, draft.TargetID); err != nil {
		return nil, err
	}

	a := &models.Assignment{
		ID:             uuid.New(),
		ConfigPolicyID: draft.ConfigPolicyID,
		Level:          draft.Level,
		TargetID:       draft.TargetID,
		Priority:       draft.Priority,
		AssignedBy:     actor,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info("policy assigned",
		"assignment_id", a.ID,
		"policy_id", a.ConfigPolicyID,
		"level", a.Level,
		"target_id", a.TargetID,
		"priority", a.Priority)
	if s.events != nil {
		s.events.AssignmentChanged(ctx, models.AuditActionAssign, a, policy.OrgID)
	}
	return a, nil
}

// Unassign removes an assignment.
func (s *Service) Unassign(ctx context.Context, scope access.Scope, id uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	policy, err := s.accessiblePolicy(ctx, scope, a.ConfigPolicyID)
	if err != nil {
		// The assignment exists but its policy is out of scope; report the
		// assignment itself as missing.
		return apperrors.NotFound("assignment")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("policy unassigned", "assignment_id", id, "policy_id", a.ConfigPolicyID)
	if s.events != nil {
		s.events.AssignmentChanged(ctx, models.AuditActionUnassign, a, policy.OrgID)
	}
	return nil
}

// ListForPolicy returns all assignments of one policy.
func (s *Service) ListForPolicy(ctx context.Context, scope access.Scope, policyID uuid.UUID) ([]*models.Assignment, error) {
	if _, err := s.accessiblePolicy(ctx, scope, policyID); err != nil {
		return nil, err
	}
	return s.repo.ListForPolicy(ctx, policyID)
}

// ListForTarget returns assignments bound directly to one hierarchy node.
func (s *Service) ListForTarget(ctx context.Context, scope access.Scope, level models.HierarchyLevel, targetID uuid.UUID) ([]*models.TargetAssignment, error) {
	if !models.ValidHierarchyLevels[level] {
		return nil, apperrors.ValidationFailed(map[string]string{"level": "unknown hierarchy level"})
	}

	assignments, err := s.repo.ListForTarget(ctx, level, targetID)
	if err != nil {
		return nil, err
	}
	if scope == nil {
		return assignments, nil
	}

	visible := make([]*models.TargetAssignment, 0, len(assignments))
	for _, a := range assignments {
		if scope.CanAccessOrg(a.PolicyOrgID) {
			visible = append(visible, a)
		}
	}
	return visible, nil
}

func (s *Service) accessiblePolicy(ctx context.Context, scope access.Scope, policyID uuid.UUID) (*models.ConfigurationPolicy, error) {
	policy, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if scope != nil && !scope.CanAccessOrg(policy.OrgID) {
		return nil, apperrors.NotFound("policy")
	}
	return policy, nil
}

// validateTarget checks that the target node exists and belongs to the
// policy's organization. Targets the caller cannot see report as missing.
func (s *Service) validateTarget(ctx context.Context, scope access.Scope, policy *models.ConfigurationPolicy, level models.HierarchyLevel, targetID uuid.UUID) error {
	var targetOrg uuid.UUID

	switch level {
	case models.LevelDevice:
		device, err := s.directory.DeviceByID(ctx, targetID)
		if err != nil {
			return err
		}
		targetOrg = device.OrgID
	case models.LevelDeviceGroup:
		group, err := s.directory.DeviceGroupByID(ctx, targetID)
		if err != nil {
			return err
		}
		targetOrg = group.OrgID
	case models.LevelSite:
		site, err := s.directory.SiteByID(ctx, targetID)
		if err != nil {
			return err
		}
		targetOrg = site.OrgID
	case models.LevelOrganization:
		org, err := s.directory.OrganizationByID(ctx, targetID)
		if err != nil {
			return err
		}
		targetOrg = org.ID
	case models.LevelPartner:
		exists, err := s.directory.PartnerExists(ctx, targetID)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NotFound("partner")
		}
		// A partner-level assignment must come from an organization that
		// the partner actually manages.
		org, err := s.directory.OrganizationByID(ctx, policy.OrgID)
		if err != nil {
			return err
		}
		if org.PartnerID == nil || *org.PartnerID != targetID {
			return apperrors.InvalidInput("target partner does not manage the policy's organization")
		}
		return nil
	}

	if scope != nil && !scope.CanAccessOrg(targetOrg) {
		return apperrors.NotFound(string(level))
	}
	if targetOrg != policy.OrgID {
		return apperrors.InvalidInput("target is not in the policy's organization")
	}
	return nil
}
