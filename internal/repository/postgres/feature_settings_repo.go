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

	"github.com/halcyonrmm/halcyon/internal/models"
	"github.com/halcyonrmm/halcyon/internal/services/normalize"
)

// FeatureSettingsRepository persists normalized feature settings rows.
// It binds to a Querier so the same operations can run against the pool
// or inside an open transaction.
type FeatureSettingsRepository struct {
	q Querier
}

// NewFeatureSettingsRepository creates a repository bound to the pool.
func NewFeatureSettingsRepository(db *DB) *FeatureSettingsRepository {
	return &FeatureSettingsRepository{q: db}
}

// WithQuerier returns a copy bound to q, typically an open transaction.
func (r *FeatureSettingsRepository) WithQuerier(q Querier) *FeatureSettingsRepository {
	return &FeatureSettingsRepository{q: q}
}

// ReplaceDecomposed deletes all settings rows for the link and inserts the
// decomposed result. Callers are expected to run this inside a transaction
// alongside the feature link upsert.
func (r *FeatureSettingsRepository) ReplaceDecomposed(ctx context.Context, linkID uuid.UUID, d *normalize.Decomposed) error {
	if err := r.DeleteForLink(ctx, linkID); err != nil {
		return err
	}

	switch d.FeatureType {
	case models.FeaturePatch:
		if d.Patch != nil {
			return r.insertPatch(ctx, linkID, d.Patch)
		}
	case models.FeatureMaintenance:
		if d.Maintenance != nil {
			return r.insertMaintenance(ctx, linkID, d.Maintenance)
		}
	case models.FeatureAlertRule:
		return r.insertAlertRules(ctx, linkID, d.AlertRules)
	case models.FeatureAutomation:
		return r.insertAutomations(ctx, linkID, d.Automations)
	case models.FeatureCompliance:
		return r.insertComplianceChecks(ctx, linkID, d.ComplianceChecks)
	}
	return nil
}

// DeleteForLink removes all normalized rows belonging to the feature link.
func (r *FeatureSettingsRepository) DeleteForLink(ctx context.Context, linkID uuid.UUID) error {
	tables := []string{
		"patch_settings",
		"maintenance_settings",
		"alert_rule_settings",
		"automation_settings",
		"compliance_settings",
	}
	for _, table := range tables {
		query := fmt.Sprintf("DELETE FROM %s WHERE feature_link_id = $1", table)
		if _, err := r.q.Exec(ctx, query, linkID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

func (r *FeatureSettingsRepository) insertPatch(ctx context.Context, linkID uuid.UUID, s *models.PatchSettings) error {
	query := `
		INSERT INTO patch_settings (
			feature_link_id, sources, auto_approve, auto_approve_severities,
			schedule_frequency, schedule_time, schedule_day_of_week,
			schedule_day_of_month, reboot_policy
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.q.Exec(ctx, query,
		linkID, s.Sources, s.AutoApprove, s.AutoApproveSeverities,
		s.ScheduleFrequency, s.ScheduleTime, s.ScheduleDayOfWeek,
		s.ScheduleDayOfMonth, s.RebootPolicy)
	if err != nil {
		return fmt.Errorf("insert patch settings: %w", err)
	}
	return nil
}

func (r *FeatureSettingsRepository) insertMaintenance(ctx context.Context, linkID uuid.UUID, s *models.MaintenanceSettings) error {
	query := `
		INSERT INTO maintenance_settings (
			feature_link_id, schedule, duration_minutes, suppress_alerts,
			notify_before_minutes
		) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.q.Exec(ctx, query,
		linkID, s.Schedule, s.DurationMinutes, s.SuppressAlerts, s.NotifyBeforeMinutes)
	if err != nil {
		return fmt.Errorf("insert maintenance settings: %w", err)
	}
	return nil
}

func (r *FeatureSettingsRepository) insertAlertRules(ctx context.Context, linkID uuid.UUID, rules []models.AlertRule) error {
	query := `
		INSERT INTO alert_rule_settings (
			feature_link_id, sort_order, name, metric, operator, threshold,
			duration_minutes, severity, auto_resolve, notify_channels
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for i, rule := range rules {
		_, err := r.q.Exec(ctx, query,
			linkID, i, rule.Name, rule.Metric, rule.Operator, rule.Threshold,
			rule.DurationMinutes, rule.Severity, rule.AutoResolve, rule.NotifyChannels)
		if err != nil {
			return fmt.Errorf("insert alert rule %d: %w", i, err)
		}
	}
	return nil
}

func (r *FeatureSettingsRepository) insertAutomations(ctx context.Context, linkID uuid.UUID, rules []models.AutomationRule) error {
	query := `
		INSERT INTO automation_settings (
			feature_link_id, sort_order, name, trigger_type, schedule, action,
			run_as, timeout_seconds, continue_on_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for i, rule := range rules {
		_, err := r.q.Exec(ctx, query,
			linkID, i, rule.Name, rule.Trigger, rule.Schedule, rule.Action,
			rule.RunAs, rule.TimeoutSeconds, rule.ContinueOnError)
		if err != nil {
			return fmt.Errorf("insert automation %d: %w", i, err)
		}
	}
	return nil
}

func (r *FeatureSettingsRepository) insertComplianceChecks(ctx context.Context, linkID uuid.UUID, checks []models.ComplianceCheck) error {
	query := `
		INSERT INTO compliance_settings (
			feature_link_id, sort_order, name, category, check_type, expected,
			severity, remediate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for i, check := range checks {
		_, err := r.q.Exec(ctx, query,
			linkID, i, check.Name, check.Category, check.CheckType, check.Expected,
			check.Severity, check.Remediate)
		if err != nil {
			return fmt.Errorf("insert compliance check %d: %w", i, err)
		}
	}
	return nil
}

// GetPatch returns the patch settings for the link, or nil when absent.
func (r *FeatureSettingsRepository) GetPatch(ctx context.Context, linkID uuid.UUID) (*models.PatchSettings, error) {
	query := `
		SELECT sources, auto_approve, auto_approve_severities,
		       schedule_frequency, schedule_time, schedule_day_of_week,
		       schedule_day_of_month, reboot_policy
		FROM patch_settings
		WHERE feature_link_id = $1`

	var s models.PatchSettings
	err := r.q.QueryRow(ctx, query, linkID).Scan(
		&s.Sources, &s.AutoApprove, &s.AutoApproveSeverities,
		&s.ScheduleFrequency, &s.ScheduleTime, &s.ScheduleDayOfWeek,
		&s.ScheduleDayOfMonth, &s.RebootPolicy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get patch settings: %w", err)
	}
	return &s, nil
}

// GetMaintenance returns the maintenance settings for the link, or nil when
// absent.
func (r *FeatureSettingsRepository) GetMaintenance(ctx context.Context, linkID uuid.UUID) (*models.MaintenanceSettings, error) {
	query := `
		SELECT schedule, duration_minutes, suppress_alerts, notify_before_minutes
		FROM maintenance_settings
		WHERE feature_link_id = $1`

	var s models.MaintenanceSettings
	err := r.q.QueryRow(ctx, query, linkID).Scan(
		&s.Schedule, &s.DurationMinutes, &s.SuppressAlerts, &s.NotifyBeforeMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get maintenance settings: %w", err)
	}
	return &s, nil
}

// ListAlertRules returns the alert rules for the link in sort order.
func (r *FeatureSettingsRepository) ListAlertRules(ctx context.Context, linkID uuid.UUID) ([]models.AlertRule, error) {
	query := `
		SELECT name, metric, operator, threshold, duration_minutes, severity,
		       auto_resolve, notify_channels
		FROM alert_rule_settings
		WHERE feature_link_id = $1
		ORDER BY sort_order`

	rows, err := r.q.Query(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AlertRule
	for rows.Next() {
		var rule models.AlertRule
		if err := rows.Scan(
			&rule.Name, &rule.Metric, &rule.Operator, &rule.Threshold,
			&rule.DurationMinutes, &rule.Severity, &rule.AutoResolve,
			&rule.NotifyChannels); err != nil {
			return nil, fmt.Errorf("scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListAutomations returns the automation rules for the link in sort order.
func (r *FeatureSettingsRepository) ListAutomations(ctx context.Context, linkID uuid.UUID) ([]models.AutomationRule, error) {
	query := `
		SELECT name, trigger_type, schedule, action, run_as, timeout_seconds,
		       continue_on_error
		FROM automation_settings
		WHERE feature_link_id = $1
		ORDER BY sort_order`

	rows, err := r.q.Query(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()

	var rules []models.AutomationRule
	for rows.Next() {
		var rule models.AutomationRule
		if err := rows.Scan(
			&rule.Name, &rule.Trigger, &rule.Schedule, &rule.Action,
			&rule.RunAs, &rule.TimeoutSeconds, &rule.ContinueOnError); err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListComplianceChecks returns the compliance checks for the link in sort
// order.
func (r *FeatureSettingsRepository) ListComplianceChecks(ctx context.Context, linkID uuid.UUID) ([]models.ComplianceCheck, error) {
	query := `
		SELECT name, category, check_type, expected, severity, remediate
		FROM compliance_settings
		WHERE feature_link_id = $1
		ORDER BY sort_order`

	rows, err := r.q.Query(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("list compliance checks: %w", err)
	}
	defer rows.Close()

	var checks []models.ComplianceCheck
	for rows.Next() {
		var check models.ComplianceCheck
		if err := rows.Scan(
			&check.Name, &check.Category, &check.CheckType, &check.Expected,
			&check.Severity, &check.Remediate); err != nil {
			return nil, fmt.Errorf("scan compliance check: %w", err)
		}
		checks = append(checks, check)
	}
	return checks, rows.Err()
}
