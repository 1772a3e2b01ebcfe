// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/halcyonrmm/halcyon/internal/pkg/errors"

	"github.com/halcyonrmm/halcyon/internal/models"
	"github.com/halcyonrmm/halcyon/internal/services/normalize"
)

// PolicyRepository persists configuration policies and their feature links.
type PolicyRepository struct {
	db *DB
	q  Querier
}

// NewPolicyRepository creates a repository bound to the pool.
func NewPolicyRepository(db *DB) *PolicyRepository {
	return &PolicyRepository{db: db, q: db}
}

// WithQuerier returns a copy bound to q, typically an open transaction.
// Transactional helpers (SetFeatureLink) are unavailable on the copy when
// q is already a transaction; plain reads and writes run against q.
func (r *PolicyRepository) WithQuerier(q Querier) *PolicyRepository {
	return &PolicyRepository{db: r.db, q: q}
}

// Create inserts a new configuration policy.
func (r *PolicyRepository) Create(ctx context.Context, policy *models.ConfigurationPolicy) error {
	query := `
		INSERT INTO config_policies (id, org_id, name, description, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.q.QueryRow(ctx, query,
		policy.ID, policy.OrgID, policy.Name, policy.Description,
		policy.Status, policy.CreatedBy,
	).Scan(&policy.CreatedAt, &policy.UpdatedAt)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return apperrors.AlreadyExists("policy")
		}
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}

// GetByID returns a policy with its feature links, or ErrNotFound.
func (r *PolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ConfigurationPolicy, error) {
	query := `
		SELECT id, org_id, name, description, status, created_by, created_at, updated_at
		FROM config_policies
		WHERE id = $1`

	var p models.ConfigurationPolicy
	err := r.q.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.OrgID, &p.Name, &p.Description, &p.Status,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("policy")
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}

	links, err := r.ListFeatureLinks(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Features = links
	return &p, nil
}

// List returns policies matching the options. orgFilter restricts results
// to the given org IDs; nil means unrestricted.
func (r *PolicyRepository) List(ctx context.Context, opts models.PolicyListOptions, orgFilter []uuid.UUID) ([]*models.ConfigurationPolicy, int, error) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if orgFilter != nil {
		conds = append(conds, fmt.Sprintf("org_id = ANY(%s)", arg(orgFilter)))
	}
	if opts.OrgID != nil {
		conds = append(conds, fmt.Sprintf("org_id = %s", arg(*opts.OrgID)))
	}
	if opts.Status != nil {
		conds = append(conds, fmt.Sprintf("status = %s", arg(string(*opts.Status))))
	}
	if opts.Search != "" {
		pattern := "%" + escapeLike(opts.Search) + "%"
		conds = append(conds, fmt.Sprintf("(name ILIKE %s ESCAPE '\\' OR description ILIKE %s ESCAPE '\\')",
			arg(pattern), arg(pattern)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM config_policies %s", where)
	if err := r.q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count policies: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, org_id, name, description, status, created_by, created_at, updated_at
		FROM config_policies
		%s
		ORDER BY name, id
		LIMIT %s OFFSET %s`, where, arg(limit), arg(offset))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.ConfigurationPolicy
	for rows.Next() {
		var p models.ConfigurationPolicy
		if err := rows.Scan(
			&p.ID, &p.OrgID, &p.Name, &p.Description, &p.Status,
			&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, &p)
	}
	return policies, total, rows.Err()
}

// Update applies a partial update and returns the updated policy.
func (r *PolicyRepository) Update(ctx context.Context, id uuid.UUID, input models.UpdatePolicyInput) (*models.ConfigurationPolicy, error) {
	var sets []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if input.Name != nil {
		sets = append(sets, fmt.Sprintf("name = %s", arg(*input.Name)))
	}
	if input.Description != nil {
		sets = append(sets, fmt.Sprintf("description = %s", arg(*input.Description)))
	}
	if input.Status != nil {
		sets = append(sets, fmt.Sprintf("status = %s", arg(string(*input.Status))))
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}
	sets = append(sets, "updated_at = now()")

	query := fmt.Sprintf(`
		UPDATE config_policies
		SET %s
		WHERE id = %s
		RETURNING id, org_id, name, description, status, created_by, created_at, updated_at`,
		strings.Join(sets, ", "), arg(id))

	var p models.ConfigurationPolicy
	err := r.q.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.OrgID, &p.Name, &p.Description, &p.Status,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("policy")
		}
		if IsDuplicateKeyError(err) {
			return nil, apperrors.AlreadyExists("policy")
		}
		return nil, fmt.Errorf("update policy: %w", err)
	}
	return &p, nil
}

// Delete removes a policy. Feature links, settings rows and assignments
// cascade at the schema level.
func (r *PolicyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, "DELETE FROM config_policies WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("policy")
	}
	return nil
}

// ListFeatureLinks returns a policy's feature links ordered by feature type.
func (r *PolicyRepository) ListFeatureLinks(ctx context.Context, policyID uuid.UUID) ([]*models.FeatureLink, error) {
	query := `
		SELECT id, config_policy_id, feature_type, feature_policy_id,
		       inline_settings, created_at, updated_at
		FROM config_policy_features
		WHERE config_policy_id = $1
		ORDER BY feature_type`

	rows, err := r.q.Query(ctx, query, policyID)
	if err != nil {
		return nil, fmt.Errorf("list feature links: %w", err)
	}
	defer rows.Close()

	var links []*models.FeatureLink
	for rows.Next() {
		var link models.FeatureLink
		if err := rows.Scan(
			&link.ID, &link.ConfigPolicyID, &link.FeatureType,
			&link.FeaturePolicyID, &link.InlineSettings,
			&link.CreatedAt, &link.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan feature link: %w", err)
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

// GetFeatureLink returns the link for (policy, feature type), or ErrNotFound.
func (r *PolicyRepository) GetFeatureLink(ctx context.Context, policyID uuid.UUID, featureType models.FeatureType) (*models.FeatureLink, error) {
	query := `
		SELECT id, config_policy_id, feature_type, feature_policy_id,
		       inline_settings, created_at, updated_at
		FROM config_policy_features
		WHERE config_policy_id = $1 AND feature_type = $2`

	var link models.FeatureLink
	err := r.q.QueryRow(ctx, query, policyID, string(featureType)).Scan(
		&link.ID, &link.ConfigPolicyID, &link.FeatureType,
		&link.FeaturePolicyID, &link.InlineSettings,
		&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("feature link")
		}
		return nil, fmt.Errorf("get feature link: %w", err)
	}
	return &link, nil
}

// SetFeatureLink upserts the link for (policy, feature type) and replaces
// its normalized settings rows, all in one transaction. The inline JSON is
// the canonical re-encoding of the submitted settings so the two stores
// never disagree. When featurePolicyID is set and no inline settings are
// given, the rows are cleared: the referenced feature policy owns the
// settings.
func (r *PolicyRepository) SetFeatureLink(ctx context.Context, policyID uuid.UUID, featureType models.FeatureType, featurePolicyID *uuid.UUID, settings json.RawMessage) (*models.FeatureLink, error) {
	var link *models.FeatureLink
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var inline json.RawMessage
		var decomposed *normalize.Decomposed
		if len(settings) > 0 {
			decomposed = normalize.Decompose(featureType, settings)
			inline = normalize.Encode(decomposed)
		}

		query := `
			INSERT INTO config_policy_features (id, config_policy_id, feature_type, feature_policy_id, inline_settings)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT ON CONSTRAINT uq_policy_feature DO UPDATE
			SET feature_policy_id = EXCLUDED.feature_policy_id,
			    inline_settings = EXCLUDED.inline_settings,
			    updated_at = now()
			RETURNING id, config_policy_id, feature_type, feature_policy_id,
			          inline_settings, created_at, updated_at`

		var l models.FeatureLink
		err := tx.QueryRow(ctx, query,
			uuid.New(), policyID, string(featureType), featurePolicyID, inline,
		).Scan(
			&l.ID, &l.ConfigPolicyID, &l.FeatureType, &l.FeaturePolicyID,
			&l.InlineSettings, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			if IsForeignKeyError(err) {
				return apperrors.NotFound("policy")
			}
			return fmt.Errorf("upsert feature link: %w", err)
		}

		settingsRepo := &FeatureSettingsRepository{q: tx}
		if decomposed != nil {
			if err := settingsRepo.ReplaceDecomposed(ctx, l.ID, decomposed); err != nil {
				return err
			}
		} else {
			if err := settingsRepo.DeleteForLink(ctx, l.ID); err != nil {
				return err
			}
		}

		link = &l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// RemoveFeatureLink deletes the link for (policy, feature type). Settings
// rows cascade.
func (r *PolicyRepository) RemoveFeatureLink(ctx context.Context, policyID uuid.UUID, featureType models.FeatureType) error {
	tag, err := r.q.Exec(ctx,
		"DELETE FROM config_policy_features WHERE config_policy_id = $1 AND feature_type = $2",
		policyID, string(featureType))
	if err != nil {
		return fmt.Errorf("remove feature link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("feature link")
	}
	return nil
}

// escapeLike escapes LIKE/ILIKE metacharacters in user-supplied search
// input so they match literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
