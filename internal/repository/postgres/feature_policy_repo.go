// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/halcyonrmm/halcyon/internal/models"
)

// FeaturePolicyRegistry checks standalone feature policy references against
// the feature_policies registry. Full policy definitions live with the
// feature subsystems; only existence and type matter here.
type FeaturePolicyRegistry struct {
	q Querier
}

// NewFeaturePolicyRegistry creates a registry bound to the pool.
func NewFeaturePolicyRegistry(db *DB) *FeaturePolicyRegistry {
	return &FeaturePolicyRegistry{q: db}
}

// FeaturePolicyExists reports whether a feature policy with the given ID
// and feature type exists. A policy of a different type does not count.
func (r *FeaturePolicyRegistry) FeaturePolicyExists(ctx context.Context, featureType models.FeatureType, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM feature_policies WHERE id = $1 AND feature_type = $2)`,
		id, string(featureType)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check feature policy: %w", err)
	}
	return exists, nil
}
