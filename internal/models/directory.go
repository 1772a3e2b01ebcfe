// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is a managed endpoint as seen by the configuration engine.
// The device inventory is owned by the enrollment subsystem; resolution
// only needs the ancestry fields.
type Device struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrgID     uuid.UUID `json:"org_id" db:"org_id"`
	SiteID    uuid.UUID `json:"site_id" db:"site_id"`
	Hostname  string    `json:"hostname" db:"hostname"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Organization is a tenant. PartnerID is set when the organization is
// managed by an MSP partner.
type Organization struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	PartnerID *uuid.UUID `json:"partner_id,omitempty" db:"partner_id"`
	Name      string     `json:"name" db:"name"`
}

// Site is a physical or logical location within an organization.
type Site struct {
	ID    uuid.UUID `json:"id" db:"id"`
	OrgID uuid.UUID `json:"org_id" db:"org_id"`
	Name  string    `json:"name" db:"name"`
}

// DeviceGroup is an arbitrary grouping of devices within an organization.
type DeviceGroup struct {
	ID    uuid.UUID `json:"id" db:"id"`
	OrgID uuid.UUID `json:"org_id" db:"org_id"`
	Name  string    `json:"name" db:"name"`
}
