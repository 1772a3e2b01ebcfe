// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/halcyonrmm/halcyon/internal/pkg/errors"

	"github.com/halcyonrmm/halcyon/internal/models"
)

// AssignmentRepository persists policy-to-hierarchy assignments.
type AssignmentRepository struct {
	q Querier
}

// NewAssignmentRepository creates a repository bound to the pool.
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{q: db}
}

// WithQuerier returns a copy bound to q, typically an open transaction.
func (r *AssignmentRepository) WithQuerier(q Querier) *AssignmentRepository {
	return &AssignmentRepository{q: q}
}

// Create inserts a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, a *models.Assignment) error {
	query := `
		INSERT INTO config_assignments (id, config_policy_id, level, target_id, priority, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.q.QueryRow(ctx, query,
		a.ID, a.ConfigPolicyID, string(a.Level), a.TargetID, a.Priority, a.AssignedBy,
	).Scan(&a.CreatedAt)
	if err != nil {
		if IsForeignKeyError(err) {
			return apperrors.NotFound("policy")
		}
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// GetByID returns an assignment, or ErrNotFound.
func (r *AssignmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	query := `
		SELECT id, config_policy_id, level, target_id, priority, assigned_by, created_at
		FROM config_assignments
		WHERE id = $1`

	var a models.Assignment
	err := r.q.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.ConfigPolicyID, &a.Level, &a.TargetID,
		&a.Priority, &a.AssignedBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("assignment")
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

// Delete removes an assignment.
func (r *AssignmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, "DELETE FROM config_assignments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("assignment")
	}
	return nil
}

// ListForPolicy returns all assignments of one policy, most specific level
// first.
func (r *AssignmentRepository) ListForPolicy(ctx context.Context, policyID uuid.UUID) ([]*models.Assignment, error) {
	query := `
		SELECT id, config_policy_id, level, target_id, priority, assigned_by, created_at
		FROM config_assignments
		WHERE config_policy_id = $1
		ORDER BY
			CASE level
				WHEN 'device' THEN 5
				WHEN 'device_group' THEN 4
				WHEN 'site' THEN 3
				WHEN 'organization' THEN 2
				WHEN 'partner' THEN 1
			END DESC,
			priority, created_at`

	rows, err := r.q.Query(ctx, query, policyID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for policy: %w", err)
	}
	defer rows.Close()

	var assignments []*models.Assignment
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(
			&a.ID, &a.ConfigPolicyID, &a.Level, &a.TargetID,
			&a.Priority, &a.AssignedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

// ListForTarget returns assignments bound directly to one hierarchy node,
// joined with the owning policy for display.
func (r *AssignmentRepository) ListForTarget(ctx context.Context, level models.HierarchyLevel, targetID uuid.UUID) ([]*models.TargetAssignment, error) {
	query := `
		SELECT a.id, a.config_policy_id, a.level, a.target_id, a.priority,
		       a.assigned_by, a.created_at,
		       p.name, p.status, p.org_id
		FROM config_assignments a
		JOIN config_policies p ON p.id = a.config_policy_id
		WHERE a.level = $1 AND a.target_id = $2
		ORDER BY a.priority, a.created_at, a.id`

	rows, err := r.q.Query(ctx, query, string(level), targetID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for target: %w", err)
	}
	defer rows.Close()

	var assignments []*models.TargetAssignment
	for rows.Next() {
		var a models.TargetAssignment
		if err := rows.Scan(
			&a.ID, &a.ConfigPolicyID, &a.Level, &a.TargetID, &a.Priority,
			&a.AssignedBy, &a.CreatedAt,
			&a.PolicyName, &a.PolicyStatus, &a.PolicyOrgID); err != nil {
			return nil, fmt.Errorf("scan target assignment: %w", err)
		}
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}
