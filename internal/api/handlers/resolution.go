// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/halcyonrmm/halcyon/internal/api/errors"
	"github.com/halcyonrmm/halcyon/internal/models"
	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
	"github.com/halcyonrmm/halcyon/internal/services/resolution"
)

// ResolutionHandler handles effective-configuration endpoints for devices.
type ResolutionHandler struct {
	BaseHandler
	resolver *resolution.Service
}

// NewResolutionHandler creates a new resolution handler.
func NewResolutionHandler(resolver *resolution.Service, log *logger.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		BaseHandler: NewBaseHandler(log),
		resolver:    resolver,
	}
}

// Routes returns the device resolution routes.
func (h *ResolutionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{deviceID}/effective-configuration", h.EffectiveConfiguration)
	r.Post("/{deviceID}/preview", h.Preview)

	return r
}

type previewRequest struct {
	Add    []previewAssignment `json:"add" validate:"omitempty,dive"`
	Remove []string            `json:"remove" validate:"omitempty,dive,uuid"`
}

type previewAssignment struct {
	ConfigPolicyID string `json:"config_policy_id" validate:"required,uuid"`
	Level          string `json:"level" validate:"required,hierarchy_level"`
	TargetID       string `json:"target_id" validate:"required,uuid"`
	Priority       int    `json:"priority" validate:"gte=0"`
}

// EffectiveConfiguration handles GET /api/v1/devices/{deviceID}/effective-configuration
func (h *ResolutionHandler) EffectiveConfiguration(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	deviceID, err := h.URLParamUUID(r, "deviceID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	effective, err := h.resolver.Resolve(r.Context(), deviceID, scope)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.OK(w, effective)
}

// Preview handles POST /api/v1/devices/{deviceID}/preview
func (h *ResolutionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	deviceID, err := h.URLParamUUID(r, "deviceID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req previewRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	changes, err := req.toChanges()
	if err != nil {
		h.HandleError(w, err)
		return
	}

	preview, err := h.resolver.Preview(r.Context(), deviceID, changes, scope)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.OK(w, preview)
}

func (req *previewRequest) toChanges() (models.PreviewChanges, error) {
	changes := models.PreviewChanges{}

	for _, a := range req.Add {
		policyID, err := uuid.Parse(a.ConfigPolicyID)
		if err != nil {
			return changes, apierrors.InvalidInput("invalid config_policy_id format")
		}
		targetID, err := uuid.Parse(a.TargetID)
		if err != nil {
			return changes, apierrors.InvalidInput("invalid target_id format")
		}
		changes.Add = append(changes.Add, models.AssignmentDraft{
			ConfigPolicyID: policyID,
			Level:          models.HierarchyLevel(a.Level),
			TargetID:       targetID,
			Priority:       a.Priority,
		})
	}

	for _, raw := range req.Remove {
		id, err := uuid.Parse(raw)
		if err != nil {
			return changes, apierrors.InvalidInput("invalid assignment id in remove list")
		}
		changes.Remove = append(changes.Remove, id)
	}

	return changes, nil
}
