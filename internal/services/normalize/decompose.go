// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

// Package normalize converts loosely-typed feature settings payloads into
// strongly validated rows and reconstructs the payload from those rows.
// The decompose direction is deliberately permissive: invalid or missing
// fields coerce to defaults so partial and legacy payloads still produce
// usable settings.
package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/halcyonrmm/halcyon/internal/models"
)

// Decomposed holds the typed result of decomposing one settings payload.
// Exactly one field group is populated, matching the feature type.
type Decomposed struct {
	FeatureType models.FeatureType

	Patch            *models.PatchSettings
	Maintenance      *models.MaintenanceSettings
	AlertRules       []models.AlertRule
	Automations      []models.AutomationRule
	ComplianceChecks []models.ComplianceCheck

	// Opaque carries the payload untouched for non-normalized feature
	// types (backup, security, monitoring).
	Opaque json.RawMessage
}

// Decompose parses a raw settings payload for the given feature type.
// It never fails: unparseable input yields a fully-defaulted result.
func Decompose(featureType models.FeatureType, raw json.RawMessage) *Decomposed {
	d := &Decomposed{FeatureType: featureType}

	switch featureType {
	case models.FeaturePatch:
		d.Patch = decodePatch(raw)
	case models.FeatureMaintenance:
		d.Maintenance = decodeMaintenance(raw)
	case models.FeatureAlertRule:
		d.AlertRules = decodeAlertRules(raw)
	case models.FeatureAutomation:
		d.Automations = decodeAutomations(raw)
	case models.FeatureCompliance:
		d.ComplianceChecks = decodeComplianceChecks(raw)
	default:
		if len(raw) > 0 && json.Valid(raw) {
			d.Opaque = raw
		} else {
			d.Opaque = json.RawMessage(`{}`)
		}
	}
	return d
}

// Encode rebuilds the canonical payload shape from a decomposed value.
func Encode(d *Decomposed) json.RawMessage {
	var v any
	switch d.FeatureType {
	case models.FeaturePatch:
		v = d.Patch
	case models.FeatureMaintenance:
		v = d.Maintenance
	case models.FeatureAlertRule:
		v = d.AlertRules
	case models.FeatureAutomation:
		v = d.Automations
	case models.FeatureCompliance:
		v = d.ComplianceChecks
	default:
		return d.Opaque
	}

	out, err := json.Marshal(v)
	if err != nil {
		// Only reachable with NaN-style values, which the decoders
		// never produce.
		return json.RawMessage(`{}`)
	}
	return out
}

var timeOfDayRe = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

func decodePatch(raw json.RawMessage) *models.PatchSettings {
	m := asObject(raw)
	s := &models.PatchSettings{
		Sources:               strSlice(m, "sources", []string{}),
		AutoApprove:           boolVal(m, "auto_approve", false),
		AutoApproveSeverities: strSlice(m, "auto_approve_severities", []string{}),
		ScheduleFrequency:     strVal(m, "schedule_frequency", models.PatchFrequencyWeekly),
		ScheduleTime:          strVal(m, "schedule_time", "02:00"),
		ScheduleDayOfWeek:     intVal(m, "schedule_day_of_week", 0),
		ScheduleDayOfMonth:    intVal(m, "schedule_day_of_month", 1),
		RebootPolicy:          strVal(m, "reboot_policy", models.RebootIfRequired),
	}

	switch s.ScheduleFrequency {
	case models.PatchFrequencyDaily, models.PatchFrequencyWeekly, models.PatchFrequencyMonthly:
	default:
		s.ScheduleFrequency = models.PatchFrequencyWeekly
	}
	switch s.RebootPolicy {
	case models.RebootNever, models.RebootIfRequired, models.RebootAlways:
	default:
		s.RebootPolicy = models.RebootIfRequired
	}
	if !timeOfDayRe.MatchString(s.ScheduleTime) {
		s.ScheduleTime = "02:00"
	}
	if s.ScheduleDayOfWeek < 0 || s.ScheduleDayOfWeek > 6 {
		s.ScheduleDayOfWeek = 0
	}
	if s.ScheduleDayOfMonth < 1 || s.ScheduleDayOfMonth > 31 {
		s.ScheduleDayOfMonth = 1
	}
	return s
}

func decodeMaintenance(raw json.RawMessage) *models.MaintenanceSettings {
	m := asObject(raw)
	s := &models.MaintenanceSettings{
		Schedule:            strVal(m, "schedule", ""),
		DurationMinutes:     intVal(m, "duration_minutes", 60),
		SuppressAlerts:      boolVal(m, "suppress_alerts", true),
		NotifyBeforeMinutes: intVal(m, "notify_before_minutes", 0),
	}
	if s.DurationMinutes <= 0 {
		s.DurationMinutes = 60
	}
	if s.NotifyBeforeMinutes < 0 {
		s.NotifyBeforeMinutes = 0
	}
	return s
}

func decodeAlertRules(raw json.RawMessage) []models.AlertRule {
	items := asArray(raw)
	rules := make([]models.AlertRule, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := models.AlertRule{
			Name:            strVal(m, "name", ""),
			Metric:          strVal(m, "metric", ""),
			Operator:        strVal(m, "operator", "gt"),
			Threshold:       floatVal(m, "threshold", 0),
			DurationMinutes: intVal(m, "duration_minutes", 0),
			Severity:        strVal(m, "severity", models.AlertSeverityWarning),
			AutoResolve:     boolVal(m, "auto_resolve", false),
			NotifyChannels:  strSlice(m, "notify_channels", []string{}),
		}
		switch r.Operator {
		case "gt", "gte", "lt", "lte", "eq", "neq":
		default:
			r.Operator = "gt"
		}
		switch r.Severity {
		case models.AlertSeverityInfo, models.AlertSeverityWarning, models.AlertSeverityCritical:
		default:
			r.Severity = models.AlertSeverityWarning
		}
		if r.DurationMinutes < 0 {
			r.DurationMinutes = 0
		}
		rules = append(rules, r)
	}
	return rules
}

func decodeAutomations(raw json.RawMessage) []models.AutomationRule {
	items := asArray(raw)
	rules := make([]models.AutomationRule, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := models.AutomationRule{
			Name:            strVal(m, "name", ""),
			Trigger:         strVal(m, "trigger", "schedule"),
			Schedule:        strVal(m, "schedule", ""),
			Action:          strVal(m, "action", ""),
			RunAs:           strVal(m, "run_as", "system"),
			TimeoutSeconds:  intVal(m, "timeout_seconds", 300),
			ContinueOnError: boolVal(m, "continue_on_error", false),
		}
		switch r.Trigger {
		case "schedule", "event", "alert":
		default:
			r.Trigger = "schedule"
		}
		if r.TimeoutSeconds <= 0 {
			r.TimeoutSeconds = 300
		}
		rules = append(rules, r)
	}
	return rules
}

func decodeComplianceChecks(raw json.RawMessage) []models.ComplianceCheck {
	items := asArray(raw)
	checks := make([]models.ComplianceCheck, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := models.ComplianceCheck{
			Name:      strVal(m, "name", ""),
			Category:  strVal(m, "category", ""),
			CheckType: strVal(m, "check_type", ""),
			Expected:  strVal(m, "expected", ""),
			Severity:  strVal(m, "severity", models.AlertSeverityWarning),
			Remediate: boolVal(m, "remediate", false),
		}
		switch c.Severity {
		case models.AlertSeverityInfo, models.AlertSeverityWarning, models.AlertSeverityCritical:
		default:
			c.Severity = models.AlertSeverityWarning
		}
		checks = append(checks, c)
	}
	return checks
}

// ============================================================================
// Permissive coercion helpers
// ============================================================================

func asObject(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func asArray(raw json.RawMessage) []any {
	if len(raw) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err == nil {
		return items
	}
	// Tolerate a single object where a list is expected.
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil && len(m) > 0 {
		return []any{m}
	}
	return nil
}

func strVal(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return def
		}
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return def
	}
}

func boolVal(m map[string]any, key string, def bool) bool {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.ToLower(t)); err == nil {
			return b
		}
		return def
	case float64:
		return t != 0
	default:
		return def
	}
}

func intVal(m map[string]any, key string, def int) int {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
		return def
	default:
		return def
	}
}

func floatVal(m map[string]any, key string, def float64) float64 {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
		return def
	default:
		return def
	}
}

func strSlice(m map[string]any, key string, def []string) []string {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return def
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	default:
		return def
	}
}
