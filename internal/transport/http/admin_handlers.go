// Copyright 2026 The GeoVision Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/geovision/geoaccess/internal/audit"
	"github.com/geovision/geoaccess/internal/identity"
	"github.com/geovision/geoaccess/internal/observability/logger"
	"github.com/geovision/geoaccess/internal/org"
)

// AuditEventPayload is the wire form of an audit event
type AuditEventPayload struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	PrincipalID string         `json:"principal_id,omitempty"`
	Route       string         `json:"route,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ListAuditEvents returns audit events matching the query filters
// @Summary List Audit Events
// @Description Query the audit log
// @Tags Admin
// @Produce json
// @Param principal_id query string false "Filter by principal"
// @Param route query string false "Filter by route"
// @Param action query string false "Filter by action"
// @Success 200 {object} map[string]any
// @Router /admin/audit-events [get]
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{
		PrincipalID: q.Get("principal_id"),
		Route:       q.Get("route"),
		Action:      q.Get("action"),
		Limit:       queryInt(q.Get("limit"), 50),
		Offset:      queryInt(q.Get("offset"), 0),
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		filter.Since = t
	}
	if until := q.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid until timestamp")
			return
		}
		filter.Until = t
	}

	events, err := h.auditStore.List(r.Context(), filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list audit events", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}

	payload := make([]AuditEventPayload, len(events))
	for i, e := range events {
		payload[i] = AuditEventPayload{
			ID:          e.ID,
			Action:      e.Action,
			PrincipalID: e.PrincipalID,
			Route:       e.Route,
			Metadata:    e.Metadata,
			IPAddress:   e.IPAddress,
			UserAgent:   e.UserAgent,
			Timestamp:   e.Timestamp,
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{"events": payload})
}

// ProfilePayload is the wire form of a profile
type ProfilePayload struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	FullName           string     `json:"full_name,omitempty"`
	Role               string     `json:"role"`
	OrgID              string     `json:"org_id,omitempty"`
	SubscriptionTier   string     `json:"subscription_tier"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	SubscriptionActive bool       `json:"subscription_active"`
}

// ListProfiles returns profiles, paged
// @Summary List Profiles
// @Description List identity profiles
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]any
// @Router /admin/profiles [get]
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	profiles, err := h.identityService.ListProfiles(r.Context(), queryInt(q.Get("limit"), 0), queryInt(q.Get("offset"), 0))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list profiles", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}

	payload := make([]ProfilePayload, len(profiles))
	for i, p := range profiles {
		payload[i] = profilePayload(p)
	}

	respondJSON(w, http.StatusOK, map[string]any{"profiles": payload})
}

// UpdateRoleRequest carries a role change
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateProfileRole changes the role on a profile
// @Summary Update Profile Role
// @Description Change the role on a profile
// @Tags Admin
// @Accept json
// @Produce json
// @Param profileID path string true "Profile ID"
// @Param request body UpdateRoleRequest true "New role"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/profiles/{profileID}/role [put]
func (h *Handler) UpdateProfileRole(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.identityService.ChangeRole(r.Context(), GetAPIKeyID(r.Context()), profileID, req.Role)
	if err != nil {
		switch err {
		case identity.ErrProfileNotFound:
			respondError(w, http.StatusNotFound, "profile not found")
		case identity.ErrUnknownRole:
			respondError(w, http.StatusBadRequest, "unknown role")
		default:
			slog.ErrorContext(r.Context(), "failed to change role", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to change role")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "role updated"})
}

// UpdateSubscriptionRequest carries a subscription change
type UpdateSubscriptionRequest struct {
	Tier   string `json:"tier" binding:"required"`
	Active bool   `json:"active"`
}

// UpdateProfileSubscription changes tier and active flag on a profile
// @Summary Update Profile Subscription
// @Description Change subscription tier and active flag on a profile
// @Tags Admin
// @Accept json
// @Produce json
// @Param profileID path string true "Profile ID"
// @Param request body UpdateSubscriptionRequest true "New subscription"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/profiles/{profileID}/subscription [put]
func (h *Handler) UpdateProfileSubscription(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "profileID")

	var req UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.identityService.ChangeSubscription(r.Context(), GetAPIKeyID(r.Context()), profileID, req.Tier, req.Active)
	if err != nil {
		switch err {
		case identity.ErrProfileNotFound:
			respondError(w, http.StatusNotFound, "profile not found")
		case identity.ErrUnknownTier:
			respondError(w, http.StatusBadRequest, "unknown subscription tier")
		default:
			slog.ErrorContext(r.Context(), "failed to change subscription", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to change subscription")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "subscription updated"})
}

// CreateOrgRequest carries a new organization
type CreateOrgRequest struct {
	ID   string `json:"id"`
	Name string `json:"name" binding:"required"`
}

// CreateOrg creates an organization
// @Summary Create Organization
// @Description Create a new organization
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body CreateOrgRequest true "Organization"
// @Success 201 {object} org.Organization
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /admin/orgs [post]
func (h *Handler) CreateOrg(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.orgService.Create(r.Context(), GetAPIKeyID(r.Context()), req.ID, req.Name)
	if err != nil {
		switch err {
		case org.ErrOrgAlreadyExists:
			respondError(w, http.StatusConflict, "organization already exists")
		case org.ErrInvalidOrgName:
			respondError(w, http.StatusBadRequest, "invalid organization name")
		default:
			slog.ErrorContext(r.Context(), "failed to create organization", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to create organization")
		}
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// GetOrg retrieves an organization
// @Summary Get Organization
// @Description Retrieve an organization by ID
// @Tags Admin
// @Produce json
// @Param orgID path string true "Organization ID"
// @Success 200 {object} org.Organization
// @Failure 404 {object} map[string]string
// @Router /admin/orgs/{orgID} [get]
func (h *Handler) GetOrg(w http.ResponseWriter, r *http.Request) {
	o, err := h.orgService.Get(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		if err == org.ErrOrgNotFound {
			respondError(w, http.StatusNotFound, "organization not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to get organization", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to get organization")
		return
	}

	respondJSON(w, http.StatusOK, o)
}

// ListOrgs lists organizations
// @Summary List Organizations
// @Description List organizations, paged
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]any
// @Router /admin/orgs [get]
func (h *Handler) ListOrgs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	orgs, err := h.orgService.List(r.Context(), queryInt(q.Get("limit"), 0), queryInt(q.Get("offset"), 0))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list organizations", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list organizations")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

// UpdateOrgRequest carries organization changes
type UpdateOrgRequest struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// UpdateOrg renames an organization or changes its status
// @Summary Update Organization
// @Description Rename an organization or change its status
// @Tags Admin
// @Accept json
// @Produce json
// @Param orgID path string true "Organization ID"
// @Param request body UpdateOrgRequest true "Changes"
// @Success 200 {object} org.Organization
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/orgs/{orgID} [put]
func (h *Handler) UpdateOrg(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req UpdateOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID := GetAPIKeyID(r.Context())
	var updated *org.Organization
	var err error

	switch {
	case req.Name != "":
		updated, err = h.orgService.Rename(r.Context(), actorID, orgID, req.Name)
	case req.Status != "":
		updated, err = h.orgService.SetStatus(r.Context(), actorID, orgID, req.Status)
	default:
		respondError(w, http.StatusBadRequest, "name or status is required")
		return
	}

	if err != nil {
		switch err {
		case org.ErrOrgNotFound:
			respondError(w, http.StatusNotFound, "organization not found")
		case org.ErrInvalidOrgName, org.ErrInvalidOrgStatus:
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			slog.ErrorContext(r.Context(), "failed to update organization", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to update organization")
		}
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

func profilePayload(p *identity.Profile) ProfilePayload {
	return ProfilePayload{
		ID:                 p.ID,
		Email:              p.Email,
		FullName:           p.FullName,
		Role:               p.Role,
		OrgID:              p.OrgID,
		SubscriptionTier:   p.SubscriptionTier,
		TrialEnd:           p.TrialEnd,
		SubscriptionActive: p.SubscriptionActive,
	}
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
