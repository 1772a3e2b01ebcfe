// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/halcyonrmm/halcyon/internal/api/errors"
	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
	"github.com/halcyonrmm/halcyon/internal/repository/postgres"
	"github.com/halcyonrmm/halcyon/internal/services/audit"
)

// AuditHandler handles audit log endpoints (admin only).
type AuditHandler struct {
	BaseHandler
	audit *audit.Service
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(auditSvc *audit.Service, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		BaseHandler: NewBaseHandler(log),
		audit:       auditSvc,
	}
}

// Routes returns the audit routes.
func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/recent", h.Recent)
	r.Get("/{resourceType}/{resourceID}", h.ByResource)

	return r
}

// List handles GET /api/v1/audit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	pagination := h.GetPagination(r)
	opts := postgres.AuditLogListOptions{
		ActorID:      h.QueryParamUUID(r, "actor_id"),
		Action:       h.QueryParam(r, "action"),
		ResourceType: h.QueryParam(r, "resource_type"),
		ResourceID:   h.QueryParam(r, "resource_id"),
		Limit:        pagination.PerPage,
		Offset:       pagination.Offset,
	}
	if raw := h.QueryParam(r, "since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.Error(w, apierrors.InvalidInput("since must be RFC 3339"))
			return
		}
		opts.Since = &since
	}

	entries, total, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.OK(w, NewPaginatedResponse(entries, int64(total), pagination))
}

// Recent handles GET /api/v1/audit/recent
func (h *AuditHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := h.QueryParamInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	entries, err := h.audit.GetRecent(r.Context(), limit)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.OK(w, entries)
}

// ByResource handles GET /api/v1/audit/{resourceType}/{resourceID}
func (h *AuditHandler) ByResource(w http.ResponseWriter, r *http.Request) {
	resourceType := h.URLParam(r, "resourceType")
	resourceID := h.URLParam(r, "resourceID")
	if resourceType == "" || resourceID == "" {
		h.Error(w, apierrors.InvalidInput("resource type and id are required"))
		return
	}

	limit := h.QueryParamInt(r, "limit", 100)
	if limit < 1 || limit > 500 {
		limit = 100
	}

	entries, err := h.audit.GetByResource(r.Context(), resourceType, resourceID, limit)
	if err != nil {
		h.HandleError(w, err)
		return
	}
	h.OK(w, entries)
}
