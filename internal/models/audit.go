// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the configuration engine.
const (
	AuditActionCreate        = "create"
	AuditActionUpdate        = "update"
	AuditActionDelete        = "delete"
	AuditActionArchive       = "archive"
	AuditActionAssign        = "assign"
	AuditActionUnassign      = "unassign"
	AuditActionSetFeature    = "set_feature"
	AuditActionRemoveFeature = "remove_feature"
)

// AuditLogEntry is one recorded administrative action.
type AuditLogEntry struct {
	ID           int64          `json:"id" db:"id"`
	ActorID      *uuid.UUID     `json:"actor_id,omitempty" db:"actor_id"`
	Action       string         `json:"action" db:"action"`
	ResourceType string         `json:"resource_type" db:"resource_type"`
	ResourceID   *string        `json:"resource_id,omitempty" db:"resource_id"`
	Details      map[string]any `json:"details,omitempty" db:"details"`
	Success      bool           `json:"success" db:"success"`
	ErrorMsg     *string        `json:"error_msg,omitempty" db:"error_msg"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}
