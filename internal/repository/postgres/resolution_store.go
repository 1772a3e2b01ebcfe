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
	"github.com/halcyonrmm/halcyon/internal/services/resolution"
)

// ResolutionStore implements resolution.Store and resolution.TxRunner on
// top of the shared pool. Inside a preview transaction the same store is
// rebound to the transaction so the hypothetical writes are visible to the
// reads that follow.
type ResolutionStore struct {
	db        *DB
	q         Querier
	directory *DirectoryRepository
	assembler *normalize.Service
}

// NewResolutionStore creates a store bound to the pool.
func NewResolutionStore(db *DB) *ResolutionStore {
	return &ResolutionStore{
		db:        db,
		q:         db,
		directory: NewDirectoryRepository(db),
		assembler: normalize.NewService(NewFeatureSettingsRepository(db), nil),
	}
}

func (s *ResolutionStore) withTx(tx pgx.Tx) *ResolutionStore {
	settings := &FeatureSettingsRepository{q: tx}
	return &ResolutionStore{
		db:        s.db,
		q:         tx,
		directory: s.directory.WithQuerier(tx),
		assembler: s.assembler.WithStore(settings),
	}
}

// InDiscardedTx runs fn against a transaction-bound copy of the store and
// unconditionally rolls the transaction back.
func (s *ResolutionStore) InDiscardedTx(ctx context.Context, fn func(store resolution.PreviewStore) error) error {
	return s.db.RunAndDiscard(ctx, func(tx pgx.Tx) error {
		return fn(s.withTx(tx))
	})
}

// Device implements resolution.Store.
func (s *ResolutionStore) Device(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	return s.directory.DeviceByID(ctx, id)
}

// Organization implements resolution.Store.
func (s *ResolutionStore) Organization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return s.directory.OrganizationByID(ctx, id)
}

// DeviceGroupIDs implements resolution.Store.
func (s *ResolutionStore) DeviceGroupIDs(ctx context.Context, deviceID uuid.UUID) ([]uuid.UUID, error) {
	return s.directory.DeviceGroupIDs(ctx, deviceID)
}

// AssembleSettings implements resolution.Store.
func (s *ResolutionStore) AssembleSettings(ctx context.Context, featureType models.FeatureType, linkID uuid.UUID) (json.RawMessage, bool, error) {
	return s.assembler.Assemble(ctx, featureType, linkID)
}

// Candidates returns every (assignment, feature link) pair whose target
// lies on the device's ancestry and whose policy is active. Inactive and
// archived policies never produce candidates.
func (s *ResolutionStore) Candidates(ctx context.Context, anc resolution.Ancestry) ([]resolution.CandidateRow, error) {
	var preds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	preds = append(preds, fmt.Sprintf("(a.level = 'device' AND a.target_id = %s)", arg(anc.DeviceID)))
	if len(anc.GroupIDs) > 0 {
		preds = append(preds, fmt.Sprintf("(a.level = 'device_group' AND a.target_id = ANY(%s))", arg(anc.GroupIDs)))
	}
	preds = append(preds, fmt.Sprintf("(a.level = 'site' AND a.target_id = %s)", arg(anc.SiteID)))
	preds = append(preds, fmt.Sprintf("(a.level = 'organization' AND a.target_id = %s)", arg(anc.OrgID)))
	if anc.PartnerID != nil {
		preds = append(preds, fmt.Sprintf("(a.level = 'partner' AND a.target_id = %s)", arg(*anc.PartnerID)))
	}

	query := fmt.Sprintf(`
		SELECT a.id, a.level, a.target_id, a.priority, a.created_at,
		       p.id, p.name, p.org_id, p.status,
		       f.id, f.feature_type, f.feature_policy_id, f.inline_settings
		FROM config_assignments a
		JOIN config_policies p ON p.id = a.config_policy_id AND p.status = 'active'
		JOIN config_policy_features f ON f.config_policy_id = p.id
		WHERE %s`, strings.Join(preds, "\n		   OR "))

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query resolution candidates: %w", err)
	}
	defer rows.Close()

	var candidates []resolution.CandidateRow
	for rows.Next() {
		var c resolution.CandidateRow
		if err := rows.Scan(
			&c.AssignmentID, &c.Level, &c.TargetID, &c.Priority, &c.AssignedAt,
			&c.PolicyID, &c.PolicyName, &c.PolicyOrgID, &c.PolicyStatus,
			&c.FeatureLinkID, &c.FeatureType, &c.FeaturePolicyID, &c.InlineSettings); err != nil {
			return nil, fmt.Errorf("scan resolution candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// PolicyOrg implements resolution.Store.
func (s *ResolutionStore) PolicyOrg(ctx context.Context, policyID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := s.q.QueryRow(ctx, "SELECT org_id FROM config_policies WHERE id = $1", policyID).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperrors.NotFound("policy")
		}
		return uuid.Nil, fmt.Errorf("get policy org: %w", err)
	}
	return orgID, nil
}

// InsertDraft inserts a hypothetical assignment. Only meaningful inside a
// discarded transaction; the row never survives.
func (s *ResolutionStore) InsertDraft(ctx context.Context, draft models.AssignmentDraft) error {
	query := `
		INSERT INTO config_assignments (id, config_policy_id, level, target_id, priority)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.Exec(ctx, query,
		uuid.New(), draft.ConfigPolicyID, string(draft.Level), draft.TargetID, draft.Priority)
	if err != nil {
		if IsForeignKeyError(err) {
			return apperrors.NotFound("policy")
		}
		return fmt.Errorf("insert draft assignment: %w", err)
	}
	return nil
}

// DeleteAssignment removes an assignment. Missing IDs are ignored so a
// preview can speculatively remove assignments that are already gone.
func (s *ResolutionStore) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	if _, err := s.q.Exec(ctx, "DELETE FROM config_assignments WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}
