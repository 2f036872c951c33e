package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the response body for a completed login (all flows:
// password, two-factor verify, backup code).
type loginResponse struct {
	AccessToken    string          `json:"accessToken"`
	Principal      *auth.Principal `json:"principal"`
	ActiveTenantID string          `json:"activeTenantId,omitempty"`
	Role           auth.Role       `json:"role"`
}

// twoFactorPendingResponse is returned when the password passed but a
// second factor is still owed. No session exists yet.
type twoFactorPendingResponse struct {
	RequiresTwoFactor bool   `json:"requiresTwoFactor"`
	TempToken         string `json:"tempToken"`
}

// handleLogin authenticates an account by email and password.
//
// Responses: 200 with tokens (cookies set), 200 with a two-factor
// challenge, 401 generic on any credential failure (with a countdown once
// attempts are being recorded), 423 when the password modality is locked.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	result, err := s.auth.Login(r.Context(), req.Email, req.Password, metaFromRequest(r))
	if err != nil {
		s.writePasswordFlowError(w, err)
		return
	}

	if result.TwoFactorRequired {
		writeJSON(w, http.StatusOK, twoFactorPendingResponse{
			RequiresTwoFactor: true,
			TempToken:         result.TwoFactorToken,
		})
		return
	}

	s.writeIssuance(w, result)
}

// refreshRequest is the request body for POST /auth/refresh. The refresh
// token normally arrives as a cookie; the body form serves non-browser
// clients.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// handleRefresh exchanges a refresh token for a new access token.
// A token whose session row is gone answers session_not_found: the
// single-session rule means another device logged in.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(refreshCookieName); err == nil {
		token = c.Value
	}
	if token == "" {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		writeBadRequest(w, "refresh token is required")
		return
	}

	result, err := s.auth.Refresh(r.Context(), token, metaFromRequest(r))
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			s.clearAuthCookies(w)
			writeError(w, http.StatusUnauthorized, ErrCodeSessionNotFound, "session no longer exists; log in again")
			return
		}
		s.logger.Error("refresh failed", "error", err)
		writeInternalError(w, "failed to refresh token")
		return
	}

	s.setAuthCookies(w, result.AccessToken, result.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken": result.AccessToken,
	})
}

// handleLogout revokes the current session and clears cookies. Both tokens
// die with the session row.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if err := s.auth.Logout(r.Context(), claims.Subject, claims.SessionID, metaFromRequest(r)); err != nil {
		s.logger.Error("logout failed", "error", err, "principal_id", claims.Subject)
		writeInternalError(w, "failed to log out")
		return
	}

	s.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleMe returns the authenticated principal with tenant memberships.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	principal, err := s.principals.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrPrincipalNotFound) {
			writeUnauthorized(w, "account no longer exists")
			return
		}
		s.logger.Error("get principal failed", "error", err)
		writeInternalError(w, "failed to load account")
		return
	}

	memberships, err := s.tenants.ListMembershipsByPrincipal(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("list memberships failed", "error", err)
		writeInternalError(w, "failed to load memberships")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"principal":      principal,
		"memberships":    memberships,
		"activeTenantId": claims.ActiveTenant,
		"role":           claims.Role,
	})
}

// switchTenantRequest is the request body for POST /auth/switch-tenant.
type switchTenantRequest struct {
	TenantID string `json:"tenantId"`
}

// handleSwitchTenant re-issues the access token against a different tenant
// the principal belongs to. The session and refresh token are untouched.
func (s *Server) handleSwitchTenant(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req switchTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.TenantID == "" {
		writeBadRequest(w, "tenantId is required")
		return
	}

	result, err := s.auth.SwitchTenant(r.Context(), claims.Subject, claims.SessionID, req.TenantID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotAMember):
			writeForbidden(w, "not a member of that tenant")
		case errors.Is(err, auth.ErrSessionNotFound):
			writeError(w, http.StatusUnauthorized, ErrCodeSessionNotFound, "session no longer exists; log in again")
		default:
			s.logger.Error("switch tenant failed", "error", err)
			writeInternalError(w, "failed to switch tenant")
		}
		return
	}

	s.setAuthCookies(w, result.AccessToken, "")
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:    result.AccessToken,
		Principal:      result.Principal,
		ActiveTenantID: result.ActiveTenantID,
		Role:           result.Role,
	})
}

// writeIssuance sets auth cookies and writes the standard login response.
func (s *Server) writeIssuance(w http.ResponseWriter, result *auth.LoginResult) {
	s.setAuthCookies(w, result.AccessToken, result.RefreshToken)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:    result.AccessToken,
		Principal:      result.Principal,
		ActiveTenantID: result.ActiveTenantID,
		Role:           result.Role,
	})
}

// writePasswordFlowError maps password-modality auth errors to responses.
// Credential failures stay deliberately vague: unknown email and wrong
// password produce the identical body.
func (s *Server) writePasswordFlowError(w http.ResponseWriter, err error) {
	var attemptErr *auth.AttemptError
	var lockErr *auth.LockedError

	switch {
	case errors.As(err, &lockErr):
		writeLocked(w, http.StatusLocked, lockErr)
	case errors.As(err, &attemptErr):
		writeAttempt(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials", attemptErr.Remaining)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrTokenInvalid):
		writeUnauthorized(w, "invalid credentials")
	default:
		s.logger.Error("login failed", "error", err)
		writeInternalError(w, "login failed")
	}
}
