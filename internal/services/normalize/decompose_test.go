// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package normalize

import (
	"encoding/json"
	"testing"

	"github.com/halcyonrmm/halcyon/internal/models"
)

func TestDecompose_PatchDefaults(t *testing.T) {
	d := Decompose(models.FeaturePatch, nil)

	if d.Patch == nil {
		t.Fatal("expected patch settings")
	}
	if d.Patch.ScheduleFrequency != models.PatchFrequencyWeekly {
		t.Errorf("expected weekly default, got %q", d.Patch.ScheduleFrequency)
	}
	if d.Patch.ScheduleTime != "02:00" {
		t.Errorf("expected 02:00 default, got %q", d.Patch.ScheduleTime)
	}
	if d.Patch.RebootPolicy != models.RebootIfRequired {
		t.Errorf("expected if_required default, got %q", d.Patch.RebootPolicy)
	}
	if d.Patch.ScheduleDayOfMonth != 1 {
		t.Errorf("expected day of month 1, got %d", d.Patch.ScheduleDayOfMonth)
	}
	if d.Patch.Sources == nil || len(d.Patch.Sources) != 0 {
		t.Errorf("expected empty non-nil sources, got %v", d.Patch.Sources)
	}
}

func TestDecompose_PatchCoercion(t *testing.T) {
	raw := json.RawMessage(`{
		"sources": "os, third_party",
		"auto_approve": "true",
		"schedule_frequency": "hourly",
		"schedule_time": "24:00",
		"schedule_day_of_week": "3",
		"schedule_day_of_month": 45,
		"reboot_policy": "sometimes"
	}`)

	d := Decompose(models.FeaturePatch, raw)
	p := d.Patch

	if len(p.Sources) != 2 || p.Sources[0] != "os" || p.Sources[1] != "third_party" {
		t.Errorf("expected comma-split sources, got %v", p.Sources)
	}
	if !p.AutoApprove {
		t.Error("expected string \"true\" to coerce to bool")
	}
	if p.ScheduleFrequency != models.PatchFrequencyWeekly {
		t.Errorf("invalid frequency should fall back to weekly, got %q", p.ScheduleFrequency)
	}
	if p.ScheduleTime != "02:00" {
		t.Errorf("invalid time should fall back to 02:00, got %q", p.ScheduleTime)
	}
	if p.ScheduleDayOfWeek != 3 {
		t.Errorf("expected numeric string coercion to 3, got %d", p.ScheduleDayOfWeek)
	}
	if p.ScheduleDayOfMonth != 1 {
		t.Errorf("out-of-range day of month should fall back to 1, got %d", p.ScheduleDayOfMonth)
	}
	if p.RebootPolicy != models.RebootIfRequired {
		t.Errorf("invalid reboot policy should fall back, got %q", p.RebootPolicy)
	}
}

func TestDecompose_PatchGarbageInput(t *testing.T) {
	for _, raw := range []json.RawMessage{
		json.RawMessage(`not json at all`),
		json.RawMessage(`[1,2,3]`),
		json.RawMessage(`"string"`),
	} {
		d := Decompose(models.FeaturePatch, raw)
		if d.Patch == nil {
			t.Fatalf("garbage input %q should yield defaulted settings", raw)
		}
		if d.Patch.ScheduleFrequency != models.PatchFrequencyWeekly {
			t.Errorf("garbage input %q: expected weekly default", raw)
		}
	}
}

func TestDecompose_MaintenanceDefaults(t *testing.T) {
	d := Decompose(models.FeatureMaintenance, json.RawMessage(`{"duration_minutes": -5}`))

	if d.Maintenance == nil {
		t.Fatal("expected maintenance settings")
	}
	if d.Maintenance.DurationMinutes != 60 {
		t.Errorf("negative duration should fall back to 60, got %d", d.Maintenance.DurationMinutes)
	}
	if !d.Maintenance.SuppressAlerts {
		t.Error("suppress_alerts should default to true")
	}
}

func TestDecompose_AlertRules(t *testing.T) {
	raw := json.RawMessage(`[
		{"name": "cpu high", "metric": "cpu", "operator": "gte", "threshold": 90, "severity": "critical"},
		{"name": "weird", "operator": "between", "severity": "fatal", "duration_minutes": -1},
		"not an object"
	]`)

	d := Decompose(models.FeatureAlertRule, raw)
	if len(d.AlertRules) != 2 {
		t.Fatalf("expected 2 rules (non-object skipped), got %d", len(d.AlertRules))
	}

	first := d.AlertRules[0]
	if first.Operator != "gte" || first.Severity != models.AlertSeverityCritical || first.Threshold != 90 {
		t.Errorf("valid rule mangled: %+v", first)
	}

	second := d.AlertRules[1]
	if second.Operator != "gt" {
		t.Errorf("invalid operator should fall back to gt, got %q", second.Operator)
	}
	if second.Severity != models.AlertSeverityWarning {
		t.Errorf("invalid severity should fall back to warning, got %q", second.Severity)
	}
	if second.DurationMinutes != 0 {
		t.Errorf("negative duration should clamp to 0, got %d", second.DurationMinutes)
	}
}

func TestDecompose_ListTypeToleratesSingleObject(t *testing.T) {
	raw := json.RawMessage(`{"name": "nightly restart", "action": "restart_service"}`)

	d := Decompose(models.FeatureAutomation, raw)
	if len(d.Automations) != 1 {
		t.Fatalf("single object should decode as one-item list, got %d", len(d.Automations))
	}
	if d.Automations[0].Trigger != "schedule" {
		t.Errorf("missing trigger should default to schedule, got %q", d.Automations[0].Trigger)
	}
	if d.Automations[0].TimeoutSeconds != 300 {
		t.Errorf("missing timeout should default to 300, got %d", d.Automations[0].TimeoutSeconds)
	}
}

func TestDecompose_ComplianceChecks(t *testing.T) {
	raw := json.RawMessage(`[{"name": "firewall on", "category": "network", "check_type": "service", "expected": "running", "severity": "info", "remediate": true}]`)

	d := Decompose(models.FeatureCompliance, raw)
	if len(d.ComplianceChecks) != 1 {
		t.Fatalf("expected 1 check, got %d", len(d.ComplianceChecks))
	}
	c := d.ComplianceChecks[0]
	if c.Severity != models.AlertSeverityInfo || !c.Remediate {
		t.Errorf("check mangled: %+v", c)
	}
}

func TestDecompose_OpaqueTypes(t *testing.T) {
	raw := json.RawMessage(`{"retention_days": 30}`)

	d := Decompose(models.FeatureBackup, raw)
	if string(d.Opaque) != string(raw) {
		t.Errorf("opaque payload should pass through untouched, got %s", d.Opaque)
	}

	d = Decompose(models.FeatureMonitoring, json.RawMessage(`garbage`))
	if string(d.Opaque) != `{}` {
		t.Errorf("invalid opaque payload should become {}, got %s", d.Opaque)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	raw := json.RawMessage(`{"schedule_frequency": "daily", "schedule_time": "04:30", "reboot_policy": "never"}`)

	out := Encode(Decompose(models.FeaturePatch, raw))

	var p models.PatchSettings
	if err := json.Unmarshal(out, &p); err != nil {
		t.Fatalf("encoded payload not valid JSON: %v", err)
	}
	if p.ScheduleFrequency != models.PatchFrequencyDaily {
		t.Errorf("expected daily, got %q", p.ScheduleFrequency)
	}
	if p.ScheduleTime != "04:30" {
		t.Errorf("expected 04:30, got %q", p.ScheduleTime)
	}
	if p.RebootPolicy != models.RebootNever {
		t.Errorf("expected never, got %q", p.RebootPolicy)
	}
}

func TestEncode_ListTypesStayArrays(t *testing.T) {
	out := Encode(Decompose(models.FeatureAlertRule, nil))
	var rules []models.AlertRule
	if err := json.Unmarshal(out, &rules); err != nil {
		t.Fatalf("empty rule list should encode as array: %v (payload %s)", err, out)
	}
	if len(rules) != 0 {
		t.Errorf("expected empty list, got %d", len(rules))
	}
}
