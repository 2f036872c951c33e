package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

// minPasswordLength is the minimum accepted password length for new
// accounts.
const minPasswordLength = 8

// teamMember is one row in the team list: the principal joined with their
// role inside the active tenant.
type teamMember struct {
	Principal *auth.Principal `json:"principal"`
	Role      auth.Role       `json:"role"`
}

// createTeamMemberRequest creates either a full account (email + password)
// or a kiosk employee profile (PIN generated server-side, shown once).
type createTeamMemberRequest struct {
	Kind        auth.PrincipalKind `json:"kind"`
	Email       string             `json:"email,omitempty"`
	DisplayName string             `json:"display_name"`
	Password    string             `json:"password,omitempty"`
	Role        auth.Role          `json:"role,omitempty"`
}

type updateTeamMemberRequest struct {
	Role     *auth.Role `json:"role,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
}

// handleListTeam returns the active tenant's members with their roles.
func (s *Server) handleListTeam(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	memberships, err := s.tenants.ListMembershipsByTenant(r.Context(), claims.ActiveTenant)
	if err != nil {
		s.logger.Error("list team failed", "error", err)
		writeInternalError(w, "failed to list team")
		return
	}

	members := make([]teamMember, 0, len(memberships))
	for _, m := range memberships {
		principal, err := s.principals.GetByID(r.Context(), m.PrincipalID)
		if err != nil {
			if errors.Is(err, auth.ErrPrincipalNotFound) {
				continue
			}
			s.logger.Error("load team member failed", "error", err, "principal_id", m.PrincipalID)
			writeInternalError(w, "failed to list team")
			return
		}
		members = append(members, teamMember{Principal: principal, Role: m.Role})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// handleCreateTeamMember creates an account or kiosk employee profile in
// the active tenant. The actor can only hand out roles strictly below
// their own.
func (s *Server) handleCreateTeamMember(w http.ResponseWriter, r *http.Request) { //nolint:gocognit // member creation: validation + role gate + two principal kinds
	claims := claimsFromContext(r.Context())

	var req createTeamMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DisplayName == "" {
		writeBadRequest(w, "display_name is required")
		return
	}
	if req.Kind == "" {
		req.Kind = auth.KindAccount
	}

	role := req.Role
	if role == "" {
		if req.Kind == auth.KindEmployee {
			role = auth.RoleEmployee
		} else {
			role = auth.RoleMember
		}
	}
	if !auth.IsValidRole(role) {
		writeBadRequest(w, "invalid role")
		return
	}
	if !auth.CanActOn(claims.Role, role) {
		writeForbidden(w, "cannot create members at or above your own role")
		return
	}

	principal := &auth.Principal{
		DisplayName:     req.DisplayName,
		Kind:            req.Kind,
		Role:            role,
		IsActive:        true,
		DefaultTenantID: claims.ActiveTenant,
		CreatedBy:       claims.Subject,
	}

	var generatedPIN string
	switch req.Kind {
	case auth.KindEmployee:
		pin, err := auth.GeneratePIN()
		if err != nil {
			s.logger.Error("generate pin failed", "error", err)
			writeInternalError(w, "failed to create team member")
			return
		}
		pinHash, err := auth.HashPassword(pin)
		if err != nil {
			s.logger.Error("hash pin failed", "error", err)
			writeInternalError(w, "failed to create team member")
			return
		}
		principal.PINHash = pinHash
		generatedPIN = pin

	case auth.KindAccount:
		if !auth.IsValidEmail(req.Email) {
			writeBadRequest(w, "a valid email is required for accounts")
			return
		}
		if len(req.Password) < minPasswordLength {
			writeBadRequest(w, "password must be at least 8 characters")
			return
		}
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			s.logger.Error("hash password failed", "error", err)
			writeInternalError(w, "failed to create team member")
			return
		}
		principal.Email = req.Email
		principal.PasswordHash = hash

	default:
		writeBadRequest(w, `kind must be "account" or "employee"`)
		return
	}

	if err := s.principals.Create(r.Context(), principal); err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			writeConflict(w, "email already registered")
			return
		}
		s.logger.Error("create principal failed", "error", err)
		writeInternalError(w, "failed to create team member")
		return
	}

	membership := &auth.TenantMembership{
		PrincipalID: principal.ID,
		TenantID:    claims.ActiveTenant,
		Role:        role,
	}
	if err := s.tenants.CreateMembership(r.Context(), membership); err != nil {
		s.logger.Error("create membership failed", "error", err, "principal_id", principal.ID)
		writeInternalError(w, "failed to create team member")
		return
	}

	s.logger.Info("team member created",
		"principal_id", principal.ID,
		"kind", principal.Kind,
		"role", role,
		"created_by", claims.Subject,
	)
	s.auditLog("team.member.created", "principal", principal.ID, claims.Subject, map[string]any{
		"kind": string(principal.Kind),
		"role": string(role),
	})

	resp := map[string]any{"principal": principal, "role": role}
	if generatedPIN != "" {
		// Shown once; only the hash survives.
		resp["pin"] = generatedPIN
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleUpdateTeamMember changes a member's role or active flag. Both the
// member's current role and any new role must be strictly below the
// actor's, and the actor cannot touch their own membership.
func (s *Server) handleUpdateTeamMember(w http.ResponseWriter, r *http.Request) { //nolint:gocognit // role change: self guard + double CanActOn gate + field patching
	claims := claimsFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if id == claims.Subject {
		writeForbidden(w, "cannot modify your own membership")
		return
	}

	var req updateTeamMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	membership, err := s.tenants.GetMembership(r.Context(), id, claims.ActiveTenant)
	if err != nil {
		if errors.Is(err, auth.ErrNotAMember) {
			writeNotFound(w, "not a member of this tenant")
			return
		}
		s.logger.Error("get membership failed", "error", err)
		writeInternalError(w, "failed to update team member")
		return
	}

	if !auth.CanActOn(claims.Role, membership.Role) {
		writeForbidden(w, "cannot act on members at or above your own role")
		return
	}

	if req.Role != nil {
		if !auth.IsValidRole(*req.Role) {
			writeBadRequest(w, "invalid role")
			return
		}
		if !auth.CanActOn(claims.Role, *req.Role) {
			writeForbidden(w, "cannot assign roles at or above your own")
			return
		}
		if err := s.tenants.UpdateMembershipRole(r.Context(), id, claims.ActiveTenant, *req.Role); err != nil {
			s.logger.Error("update membership role failed", "error", err)
			writeInternalError(w, "failed to update team member")
			return
		}
		s.auditLog("team.member.role_changed", "principal", id, claims.Subject, map[string]any{
			"from": string(membership.Role),
			"to":   string(*req.Role),
		})
	}

	if req.IsActive != nil {
		principal, err := s.principals.GetByID(r.Context(), id)
		if err != nil {
			s.logger.Error("get principal for update failed", "error", err)
			writeInternalError(w, "failed to update team member")
			return
		}
		principal.IsActive = *req.IsActive
		if err := s.principals.Update(r.Context(), principal); err != nil {
			s.logger.Error("update principal failed", "error", err)
			writeInternalError(w, "failed to update team member")
			return
		}
		s.auditLog("team.member.active_changed", "principal", id, claims.Subject, map[string]any{
			"is_active": *req.IsActive,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleUnlockTeamMember clears all lockout scopes for a member, including
// permanent locks. This is the only way out of a permanent lock.
func (s *Server) handleUnlockTeamMember(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id := chi.URLParam(r, "id")

	membership, err := s.tenants.GetMembership(r.Context(), id, claims.ActiveTenant)
	if err != nil {
		if errors.Is(err, auth.ErrNotAMember) {
			writeNotFound(w, "not a member of this tenant")
			return
		}
		s.logger.Error("get membership failed", "error", err)
		writeInternalError(w, "failed to unlock member")
		return
	}
	if !auth.CanActOn(claims.Role, membership.Role) {
		writeForbidden(w, "cannot act on members at or above your own role")
		return
	}

	if err := s.auth.Lockouts().AdminReset(r.Context(), id); err != nil {
		s.logger.Error("admin lockout reset failed", "error", err)
		writeInternalError(w, "failed to unlock member")
		return
	}

	s.logger.Info("lockout reset", "principal_id", id, "reset_by", claims.Subject)
	s.auditLog("team.member.unlocked", "principal", id, claims.Subject, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

// handleRotateTeamPIN issues a fresh PIN for a kiosk employee profile.
// The new PIN is shown once in the response.
func (s *Server) handleRotateTeamPIN(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id := chi.URLParam(r, "id")

	membership, err := s.tenants.GetMembership(r.Context(), id, claims.ActiveTenant)
	if err != nil {
		if errors.Is(err, auth.ErrNotAMember) {
			writeNotFound(w, "not a member of this tenant")
			return
		}
		s.logger.Error("get membership failed", "error", err)
		writeInternalError(w, "failed to rotate PIN")
		return
	}
	if !auth.CanActOn(claims.Role, membership.Role) {
		writeForbidden(w, "cannot act on members at or above your own role")
		return
	}

	pin, err := auth.GeneratePIN()
	if err != nil {
		s.logger.Error("generate pin failed", "error", err)
		writeInternalError(w, "failed to rotate PIN")
		return
	}
	pinHash, err := auth.HashPassword(pin)
	if err != nil {
		s.logger.Error("hash pin failed", "error", err)
		writeInternalError(w, "failed to rotate PIN")
		return
	}

	if err := s.principals.UpdatePIN(r.Context(), id, pinHash); err != nil {
		if errors.Is(err, auth.ErrPrincipalNotFound) {
			writeNotFound(w, "member not found")
			return
		}
		s.logger.Error("update pin failed", "error", err)
		writeInternalError(w, "failed to rotate PIN")
		return
	}

	s.auditLog("team.member.pin_rotated", "principal", id, claims.Subject, nil)
	writeJSON(w, http.StatusOK, map[string]string{"pin": pin})
}
