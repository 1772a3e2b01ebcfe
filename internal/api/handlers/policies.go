// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/halcyonrmm/halcyon/internal/api/errors"
	"github.com/halcyonrmm/halcyon/internal/models"
	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
	"github.com/halcyonrmm/halcyon/internal/services/audit"
	"github.com/halcyonrmm/halcyon/internal/services/policy"
)

// PolicyHandler handles configuration policy endpoints.
type PolicyHandler struct {
	BaseHandler
	policies *policy.Service
	audit    *audit.Service
}

// NewPolicyHandler creates a new policy handler. auditSvc may be nil.
func NewPolicyHandler(policies *policy.Service, auditSvc *audit.Service, log *logger.Logger) *PolicyHandler {
	return &PolicyHandler{
		BaseHandler: NewBaseHandler(log),
		policies:    policies,
		audit:       auditSvc,
	}
}

// Routes returns the policy routes.
func (h *PolicyHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{policyID}", h.Get)
	r.Put("/{policyID}", h.Update)
	r.Delete("/{policyID}", h.Delete)
	r.Post("/{policyID}/archive", h.Archive)
	r.Put("/{policyID}/features/{featureType}", h.SetFeature)
	r.Delete("/{policyID}/features/{featureType}", h.RemoveFeature)

	return r
}

// ============================================================================
// Request types
// ============================================================================

type createPolicyRequest struct {
	OrgID       string `json:"org_id" validate:"required,uuid"`
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"omitempty,max=2000"`
	Status      string `json:"status" validate:"omitempty,oneof=active inactive"`
}

type updatePolicyRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Status      *string `json:"status" validate:"omitempty,oneof=active inactive archived"`
}

type setFeatureRequest struct {
	FeaturePolicyID *string         `json:"feature_policy_id" validate:"omitempty,uuid"`
	Settings        json.RawMessage `json:"settings"`
}

// ============================================================================
// Handlers
// ============================================================================

// List handles GET /api/v1/policies
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	pagination := h.GetPagination(r)
	opts := models.PolicyListOptions{
		Search: h.QueryParam(r, "search"),
		OrgID:  h.QueryParamUUID(r, "org_id"),
		Limit:  pagination.PerPage,
		Offset: pagination.Offset,
	}
	if status := h.QueryParam(r, "status"); status != "" {
		ps := models.PolicyStatus(status)
		if !models.ValidPolicyStatuses[ps] {
			h.Error(w, apierrors.InvalidInput("unknown policy status"))
			return
		}
		opts.Status = &ps
	}

	policies, total, err := h.policies.List(r.Context(), scope, opts)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.OK(w, NewPaginatedResponse(policies, int64(total), pagination))
}

// Create handles POST /api/v1/policies
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req createPolicyRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		h.Error(w, apierrors.InvalidInput("invalid org_id format"))
		return
	}

	actor := h.GetActorID(r)
	created, err := h.policies.Create(r.Context(), scope, orgID, models.CreatePolicyInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      models.PolicyStatus(req.Status),
	}, actor)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogPolicyAction(r.Context(), actor, models.AuditActionCreate, created.ID, map[string]any{
			"name":   created.Name,
			"org_id": created.OrgID.String(),
		})
	}
	h.Created(w, created)
}

// Get handles GET /api/v1/policies/{policyID}
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	policyID, err := h.URLParamUUID(r, "policyID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	p, err := h.policies.Get(r.Context(), scope, policyID)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.OK(w, p)
}

// Update handles PUT /api/v1/policies/{policyID}
func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	policyID, err := h.URLParamUUID(r, "policyID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req updatePolicyRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	input := models.UpdatePolicyInput{
		Name:        req.Name,
		Description: req.Description,
	}
	if req.Status != nil {
		status := models.PolicyStatus(*req.Status)
		input.Status = &status
	}

	updated, err := h.policies.Update(r.Context(), scope, policyID, input)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if h.audit != nil {
		action := models.AuditActionUpdate
		if updated.Status == models.PolicyStatusArchived {
			action = models.AuditActionArchive
		}
		h.audit.LogPolicyAction(r.Context(), h.GetActorID(r), action, updated.ID, map[string]any{
			"name": updated.Name,
		})
	}
	h.OK(w, updated)
}

// Archive handles POST /api/v1/policies/{policyID}/archive
func (h *PolicyHandler) Archive(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	policyID, err := h.URLParamUUID(r, "policyID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	archived, err := h.policies.Archive(r.Context(), scope, policyID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogPolicyAction(r.Context(), h.GetActorID(r), models.AuditActionArchive, archived.ID, map[string]any{
			"name": archived.Name,
		})
	}
	h.OK(w, archived)
}

// Delete handles DELETE /api/v1/policies/{policyID}
func (h *PolicyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	policyID, err := h.URLParamUUID(r, "policyID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.policies.Delete(r.Context(), scope, policyID); err != nil {
		h.HandleError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogPolicyAction(r.Context(), h.GetActorID(r), models.AuditActionDelete, policyID, nil)
	}
	h.NoContent(w)
}

// SetFeature handles PUT /api/v1/policies/{policyID}/features/{featureType}
func (h *PolicyHandler) SetFeature(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	policyID, err := h.URLParamUUID(r, "policyID")
	if err != nil {
		h.HandleError(w, err)
		return
	}
	featureType, err := h.featureTypeParam(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req setFeatureRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	var featurePolicyID *uuid.UUID
	if req.FeaturePolicyID != nil {
		id, err := uuid.Parse(*req.FeaturePolicyID)
		if err != nil {
			h.Error(w, apierrors.InvalidInput("invalid feature_policy_id format"))
			return
		}
		featurePolicyID = &id
	}

	link, err := h.policies.SetFeature(r.Context(), scope, policyID, featureType, featurePolicyID, req.Settings)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFeatureAction(r.Context(), h.GetActorID(r), models.AuditActionSetFeature, policyID, featureType)
	}
	h.OK(w, link)
}

// RemoveFeature handles DELETE /api/v1/policies/{policyID}/features/{featureType}
func (h *PolicyHandler) RemoveFeature(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	policyID, err := h.URLParamUUID(r, "policyID")
	if err != nil {
		h.HandleError(w, err)
		return
	}
	featureType, err := h.featureTypeParam(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.policies.RemoveFeature(r.Context(), scope, policyID, featureType); err != nil {
		h.HandleError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFeatureAction(r.Context(), h.GetActorID(r), models.AuditActionRemoveFeature, policyID, featureType)
	}
	h.NoContent(w)
}

func (h *PolicyHandler) featureTypeParam(r *http.Request) (models.FeatureType, error) {
	raw := h.URLParam(r, "featureType")
	ft := models.FeatureType(raw)
	if !models.ValidFeatureTypes[ft] {
		return "", apierrors.UnknownFeatureType(raw)
	}
	return ft, nil
}
