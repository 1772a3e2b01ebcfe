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
	"github.com/halcyonrmm/halcyon/internal/services/assignment"
	"github.com/halcyonrmm/halcyon/internal/services/audit"
)

// AssignmentHandler handles policy assignment endpoints.
type AssignmentHandler struct {
	BaseHandler
	assignments *assignment.Service
	audit       *audit.Service
}

// NewAssignmentHandler creates a new assignment handler. auditSvc may be nil.
func NewAssignmentHandler(assignments *assignment.Service, auditSvc *audit.Service, log *logger.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		BaseHandler: NewBaseHandler(log),
		assignments: assignments,
		audit:       auditSvc,
	}
}

// Routes returns the assignment routes.
func (h *AssignmentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Assign)
	r.Delete("/{assignmentID}", h.Unassign)
	r.Get("/policy/{policyID}", h.ListForPolicy)
	r.Get("/target/{level}/{targetID}", h.ListForTarget)

	return r
}

type assignRequest struct {
	ConfigPolicyID string `json:"config_policy_id" validate:"required,uuid"`
	Level          string `json:"level" validate:"required,hierarchy_level"`
	TargetID       string `json:"target_id" validate:"required,uuid"`
	Priority       int    `json:"priority" validate:"gte=0"`
}

// Assign handles POST /api/v1/assignments
func (h *AssignmentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	var req assignRequest
	if err := h.ParseJSON(r, &req); err != nil {
		h.HandleError(w, err)
		return
	}

	policyID, err := uuid.Parse(req.ConfigPolicyID)
	if err != nil {
		h.Error(w, apierrors.InvalidInput("invalid config_policy_id format"))
		return
	}
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		h.Error(w, apierrors.InvalidInput("invalid target_id format"))
		return
	}

	actor := h.GetActorID(r)
	created, err := h.assignments.Assign(r.Context(), scope, models.AssignmentDraft{
		ConfigPolicyID: policyID,
		Level:          models.HierarchyLevel(req.Level),
		TargetID:       targetID,
		Priority:       req.Priority,
	}, actor)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogAssignmentAction(r.Context(), actor, models.AuditActionAssign, created)
	}
	h.Created(w, created)
}

// Unassign handles DELETE /api/v1/assignments/{assignmentID}
func (h *AssignmentHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	assignmentID, err := h.URLParamUUID(r, "assignmentID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.assignments.Unassign(r.Context(), scope, assignmentID); err != nil {
		h.HandleError(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogAssignmentAction(r.Context(), h.GetActorID(r), models.AuditActionUnassign, &models.Assignment{ID: assignmentID})
	}
	h.NoContent(w)
}

// ListForPolicy handles GET /api/v1/assignments/policy/{policyID}
func (h *AssignmentHandler) ListForPolicy(w http.ResponseWriter, r *http.Request) {
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

	assignments, err := h.assignments.ListForPolicy(r.Context(), scope, policyID)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.OK(w, assignments)
}

// ListForTarget handles GET /api/v1/assignments/target/{level}/{targetID}
func (h *AssignmentHandler) ListForTarget(w http.ResponseWriter, r *http.Request) {
	scope, err := h.GetScope(r)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	level := models.HierarchyLevel(h.URLParam(r, "level"))
	if !models.ValidHierarchyLevels[level] {
		h.Error(w, apierrors.InvalidInput("unknown hierarchy level"))
		return
	}

	targetID, err := h.URLParamUUID(r, "targetID")
	if err != nil {
		h.HandleError(w, err)
		return
	}

	assignments, err := h.assignments.ListForTarget(r.Context(), scope, level, targetID)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.OK(w, assignments)
}
