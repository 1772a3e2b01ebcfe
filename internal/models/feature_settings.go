// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package models

// Typed settings for the normalizable feature types. These are the shapes
// rebuilt by the normalizer's assemble step; the raw JSON on a feature
// link is a convenience representation of the same data.

// Patch schedule frequencies.
const (
	PatchFrequencyDaily   = "daily"
	PatchFrequencyWeekly  = "weekly"
	PatchFrequencyMonthly = "monthly"
)

// Patch reboot policies.
const (
	RebootNever      = "never"
	RebootIfRequired = "if_required"
	RebootAlways     = "always"
)

// PatchSettings controls OS and third-party patching (singleton).
type PatchSettings struct {
	Sources               []string `json:"sources"`
	AutoApprove           bool     `json:"auto_approve"`
	AutoApproveSeverities []string `json:"auto_approve_severities"`
	ScheduleFrequency     string   `json:"schedule_frequency"`
	ScheduleTime          string   `json:"schedule_time"`
	ScheduleDayOfWeek     int      `json:"schedule_day_of_week"`
	ScheduleDayOfMonth    int      `json:"schedule_day_of_month"`
	RebootPolicy          string   `json:"reboot_policy"`
}

// MaintenanceSettings defines a recurring maintenance window (singleton).
type MaintenanceSettings struct {
	Schedule            string `json:"schedule"`
	DurationMinutes     int    `json:"duration_minutes"`
	SuppressAlerts      bool   `json:"suppress_alerts"`
	NotifyBeforeMinutes int    `json:"notify_before_minutes"`
}

// Alert severities.
const (
	AlertSeverityInfo     = "info"
	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

// AlertRule is one metric threshold rule (list type).
type AlertRule struct {
	Name            string   `json:"name"`
	Metric          string   `json:"metric"`
	Operator        string   `json:"operator"`
	Threshold       float64  `json:"threshold"`
	DurationMinutes int      `json:"duration_minutes"`
	Severity        string   `json:"severity"`
	AutoResolve     bool     `json:"auto_resolve"`
	NotifyChannels  []string `json:"notify_channels"`
}

// AutomationRule is one scheduled or event-driven action (list type).
type AutomationRule struct {
	Name            string `json:"name"`
	Trigger         string `json:"trigger"`
	Schedule        string `json:"schedule,omitempty"`
	Action          string `json:"action"`
	RunAs           string `json:"run_as"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	ContinueOnError bool   `json:"continue_on_error"`
}

// ComplianceCheck is one compliance assertion (list type).
type ComplianceCheck struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	CheckType string `json:"check_type"`
	Expected  string `json:"expected"`
	Severity  string `json:"severity"`
	Remediate bool   `json:"remediate"`
}
