// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package audit records administrative actions against the configuration
// engine.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonrmm/halcyon/internal/models"
	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
	"github.com/halcyonrmm/halcyon/internal/repository/postgres"
)

// Resource types recorded in the audit trail.
const (
	ResourceTypePolicy     = "policy"
	ResourceTypeAssignment = "assignment"
	ResourceTypeFeature    = "feature_link"
)

// Repository defines the persistence interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, input *postgres.CreateAuditLogInput) error
	List(ctx context.Context, opts postgres.AuditLogListOptions) ([]*models.AuditLogEntry, int, error)
	GetByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*models.AuditLogEntry, error)
	GetRecent(ctx context.Context, limit int) ([]*models.AuditLogEntry, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Config contains configuration for the audit service.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool
	// RetentionDays is how long to keep audit logs (0 = forever).
	RetentionDays int
	// CleanupInterval is how often to run cleanup.
	CleanupInterval time.Duration
}

// DefaultConfig returns default audit configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
	}
}

// Service handles audit logging operations.
type Service struct {
	repo   Repository
	logger *logger.Logger
	config Config
}

// NewService creates a new audit service.
func NewService(repo Repository, log *logger.Logger, config Config) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:   repo,
		logger: log.Named("audit"),
		config: config,
	}
}

// LogEntry represents an entry to be logged.
type LogEntry struct {
	ActorID      *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *string
	Details      map[string]any
	Success      bool
	ErrorMsg     *string
}

// Log creates a new audit log entry. Audit failures are logged but never
// propagated; they must not break the operation being audited.
func (s *Service) Log(ctx context.Context, entry LogEntry) error {
	if !s.config.Enabled {
		return nil
	}

	input := &postgres.CreateAuditLogInput{
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		Success:      entry.Success,
		ErrorMsg:     entry.ErrorMsg,
	}

	if err := s.repo.Create(ctx, input); err != nil {
		s.logger.Error("failed to create audit log entry",
			"action", entry.Action,
			"resource_type", entry.ResourceType,
			"error", err,
		)
		return nil
	}
	return nil
}

// LogAsync logs an entry asynchronously (fire-and-forget).
func (s *Service) LogAsync(ctx context.Context, entry LogEntry) {
	go func() {
		// The request context may be cancelled by the time this runs.
		_ = s.Log(context.Background(), entry)
	}()
}

// ============================================================================
// Convenience methods for common audit actions
// ============================================================================

// LogPolicyAction records a policy lifecycle action.
func (s *Service) LogPolicyAction(ctx context.Context, actorID *uuid.UUID, action string, policyID uuid.UUID, details map[string]any) {
	s.LogAsync(ctx, LogEntry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: ResourceTypePolicy,
		ResourceID:   ptr(policyID.String()),
		Details:      details,
		Success:      true,
	})
}

// LogFeatureAction records a feature link mutation on a policy.
func (s *Service) LogFeatureAction(ctx context.Context, actorID *uuid.UUID, action string, policyID uuid.UUID, featureType models.FeatureType) {
	s.LogAsync(ctx, LogEntry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: ResourceTypeFeature,
		ResourceID:   ptr(policyID.String()),
		Details: map[string]any{
			"feature_type": string(featureType),
		},
		Success: true,
	})
}

// LogAssignmentAction records an assign/unassign.
func (s *Service) LogAssignmentAction(ctx context.Context, actorID *uuid.UUID, action string, a *models.Assignment) {
	s.LogAsync(ctx, LogEntry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: ResourceTypeAssignment,
		ResourceID:   ptr(a.ID.String()),
		Details: map[string]any{
			"policy_id": a.ConfigPolicyID.String(),
			"level":     string(a.Level),
			"target_id": a.TargetID.String(),
			"priority":  a.Priority,
		},
		Success: true,
	})
}

// ============================================================================
// Query methods
// ============================================================================

// List retrieves audit logs with filtering.
func (s *Service) List(ctx context.Context, opts postgres.AuditLogListOptions) ([]*models.AuditLogEntry, int, error) {
	return s.repo.List(ctx, opts)
}

// GetByResource retrieves audit logs for a resource.
func (s *Service) GetByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*models.AuditLogEntry, error) {
	return s.repo.GetByResource(ctx, resourceType, resourceID, limit)
}

// GetRecent retrieves recent audit logs.
func (s *Service) GetRecent(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	return s.repo.GetRecent(ctx, limit)
}

// ============================================================================
// Cleanup
// ============================================================================

// StartCleanupWorker starts a background worker that prunes old entries.
func (s *Service) StartCleanupWorker(ctx context.Context) {
	if s.config.RetentionDays <= 0 {
		s.logger.Info("audit log retention disabled (keeping forever)")
		return
	}

	go func() {
		ticker := time.NewTicker(s.config.CleanupInterval)
		defer ticker.Stop()

		s.cleanup(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup(ctx)
			}
		}
	}()

	s.logger.Info("audit log cleanup worker started",
		"retention_days", s.config.RetentionDays,
		"cleanup_interval", s.config.CleanupInterval,
	)
}

func (s *Service) cleanup(ctx context.Context) {
	before := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	count, err := s.repo.DeleteOlderThan(ctx, before)
	if err != nil {
		s.logger.Error("audit log cleanup failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("audit logs cleaned up", "count", count, "older_than", before)
	}
}

func ptr(s string) *string {
	return &s
}
