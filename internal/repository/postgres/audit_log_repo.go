// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonrmm/halcyon/internal/models"
)

// CreateAuditLogInput is the payload for recording one audit entry.
type CreateAuditLogInput struct {
	ActorID      *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *string
	Details      map[string]any
	Success      bool
	ErrorMsg     *string
}

// AuditLogListOptions filters audit log listings.
type AuditLogListOptions struct {
	ActorID      *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Since        *time.Time
	Limit        int
	Offset       int
}

// AuditLogRepository persists the audit trail.
type AuditLogRepository struct {
	q Querier
}

// NewAuditLogRepository creates a repository bound to the pool.
func NewAuditLogRepository(db *DB) *AuditLogRepository {
	return &AuditLogRepository{q: db}
}

// Create records one audit entry.
func (r *AuditLogRepository) Create(ctx context.Context, input *CreateAuditLogInput) error {
	var details []byte
	if len(input.Details) > 0 {
		var err error
		details, err = json.Marshal(input.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (actor_id, action, resource_type, resource_id, details, success, error_msg)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.q.Exec(ctx, query,
		input.ActorID, input.Action, input.ResourceType, input.ResourceID,
		details, input.Success, input.ErrorMsg)
	if err != nil {
		return fmt.Errorf("create audit log entry: %w", err)
	}
	return nil
}

// List returns audit entries matching the options, newest first.
func (r *AuditLogRepository) List(ctx context.Context, opts AuditLogListOptions) ([]*models.AuditLogEntry, int, error) {
	where := "WHERE 1=1"
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.ActorID != nil {
		where += " AND actor_id = " + arg(*opts.ActorID)
	}
	if opts.Action != "" {
		where += " AND action = " + arg(opts.Action)
	}
	if opts.ResourceType != "" {
		where += " AND resource_type = " + arg(opts.ResourceType)
	}
	if opts.ResourceID != "" {
		where += " AND resource_id = " + arg(opts.ResourceID)
	}
	if opts.Since != nil {
		where += " AND created_at >= " + arg(*opts.Since)
	}

	var total int
	if err := r.q.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit log: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, actor_id, action, resource_type, resource_id, details,
		       success, error_msg, created_at
		FROM audit_log
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT %s OFFSET %s`, where, arg(limit), arg(offset))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		var details []byte
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID,
			&details, &e.Success, &e.ErrorMsg, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit log entry: %w", err)
		}
		if len(details) > 0 {
			// Malformed stored details are surfaced as nil rather than
			// failing the whole listing.
			_ = json.Unmarshal(details, &e.Details)
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}

// GetByResource returns the most recent entries for one resource.
func (r *AuditLogRepository) GetByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*models.AuditLogEntry, error) {
	entries, _, err := r.List(ctx, AuditLogListOptions{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Limit:        limit,
	})
	return entries, err
}

// GetRecent returns the most recent entries across all resources.
func (r *AuditLogRepository) GetRecent(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	entries, _, err := r.List(ctx, AuditLogListOptions{Limit: limit})
	return entries, err
}

// DeleteOlderThan removes entries created before the cutoff and returns the
// number removed.
func (r *AuditLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, "DELETE FROM audit_log WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("delete old audit log entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
