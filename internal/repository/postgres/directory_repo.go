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

// DirectoryRepository reads the device hierarchy: partners, organizations,
// sites, device groups and devices. The configuration engine only reads
// this inventory; writes belong to the enrollment subsystem.
type DirectoryRepository struct {
	q Querier
}

// NewDirectoryRepository creates a repository bound to the pool.
func NewDirectoryRepository(db *DB) *DirectoryRepository {
	return &DirectoryRepository{q: db}
}

// WithQuerier returns a copy bound to q, typically an open transaction.
func (r *DirectoryRepository) WithQuerier(q Querier) *DirectoryRepository {
	return &DirectoryRepository{q: q}
}

// DeviceByID returns a device, or ErrNotFound.
func (r *DirectoryRepository) DeviceByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `
		SELECT id, org_id, site_id, hostname, created_at
		FROM devices
		WHERE id = $1`

	var d models.Device
	err := r.q.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.OrgID, &d.SiteID, &d.Hostname, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("device")
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return &d, nil
}

// OrganizationByID returns an organization, or ErrNotFound.
func (r *DirectoryRepository) OrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	query := `SELECT id, partner_id, name FROM organizations WHERE id = $1`

	var o models.Organization
	err := r.q.QueryRow(ctx, query, id).Scan(&o.ID, &o.PartnerID, &o.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("organization")
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &o, nil
}

// SiteByID returns a site, or ErrNotFound.
func (r *DirectoryRepository) SiteByID(ctx context.Context, id uuid.UUID) (*models.Site, error) {
	query := `SELECT id, org_id, name FROM sites WHERE id = $1`

	var s models.Site
	err := r.q.QueryRow(ctx, query, id).Scan(&s.ID, &s.OrgID, &s.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("site")
		}
		return nil, fmt.Errorf("get site: %w", err)
	}
	return &s, nil
}

// DeviceGroupByID returns a device group, or ErrNotFound.
func (r *DirectoryRepository) DeviceGroupByID(ctx context.Context, id uuid.UUID) (*models.DeviceGroup, error) {
	query := `SELECT id, org_id, name FROM device_groups WHERE id = $1`

	var g models.DeviceGroup
	err := r.q.QueryRow(ctx, query, id).Scan(&g.ID, &g.OrgID, &g.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("device group")
		}
		return nil, fmt.Errorf("get device group: %w", err)
	}
	return &g, nil
}

// PartnerExists reports whether a partner with the given ID exists.
func (r *DirectoryRepository) PartnerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM partners WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check partner: %w", err)
	}
	return exists, nil
}

// DeviceGroupIDs returns the IDs of every group the device belongs to.
func (r *DirectoryRepository) DeviceGroupIDs(ctx context.Context, deviceID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT group_id
		FROM device_group_members
		WHERE device_id = $1
		ORDER BY group_id`

	rows, err := r.q.Query(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list device groups: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
