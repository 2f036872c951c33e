package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

// pinLoginRequest is the request body for POST /auth/pin-login. Kiosk
// terminals show a staff picker, so the principal is chosen by ID and only
// the PIN is secret.
type pinLoginRequest struct {
	PrincipalID string `json:"principalId"`
	PIN         string `json:"pin"`
}

// activeSession is the token bundle returned to kiosk clients, which hold
// tokens in app state instead of cookies.
type activeSession struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// handlePinLogin authenticates a kiosk employee by PIN and issues a real
// session through the standard single-session path.
//
// PIN failures use 403 with the remaining count, and lockouts 429: the
// kiosk flow is a shared terminal, and these map to throttling semantics
// rather than the 423 used for account passwords.
func (s *Server) handlePinLogin(w http.ResponseWriter, r *http.Request) {
	var req pinLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.PrincipalID == "" || req.PIN == "" {
		writeBadRequest(w, "principalId and pin are required")
		return
	}

	result, err := s.auth.PinLogin(r.Context(), req.PrincipalID, req.PIN, metaFromRequest(r))
	if err != nil {
		s.writePINFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated":  true,
		"principal":      result.Principal,
		"activeTenantId": result.ActiveTenantID,
		"role":           result.Role,
		"activeSession": activeSession{
			ID:           result.SessionID,
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
			ExpiresAt:    time.Now().UTC().Add(s.auth.Tokens().AccessTTL()),
		},
	})
}

// posOverrideRequest is the request body for POST /auth/pos/override. The
// tenant comes from the caller's token when the terminal is logged in, or
// the body otherwise.
type posOverrideRequest struct {
	ManagerID string `json:"managerId"`
	PIN       string `json:"pin"`
	TenantID  string `json:"tenantId,omitempty"`
}

// handlePOSOverride verifies a manager's PIN to approve an action on
// someone else's terminal. No session is created; the approval is the
// entire outcome.
func (s *Server) handlePOSOverride(w http.ResponseWriter, r *http.Request) {
	var req posOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ManagerID == "" || req.PIN == "" {
		writeBadRequest(w, "managerId and pin are required")
		return
	}

	tenantID := req.TenantID
	if claims := claimsFromContext(r.Context()); claims != nil && claims.ActiveTenant != "" {
		tenantID = claims.ActiveTenant
	}
	if tenantID == "" {
		writeBadRequest(w, "tenantId is required")
		return
	}

	manager, err := s.auth.ManagerOverride(r.Context(), tenantID, req.ManagerID, req.PIN, metaFromRequest(r))
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			writeForbidden(w, "manager cannot approve overrides in this tenant")
			return
		}
		s.writePINFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"approved":   true,
		"approverId": manager.ID,
	})
}

// writePINFlowError maps PIN-modality auth errors to responses: 403 with
// countdown for wrong PINs, 429 with unlock detail once locked.
func (s *Server) writePINFlowError(w http.ResponseWriter, err error) {
	var attemptErr *auth.AttemptError
	var lockErr *auth.LockedError

	switch {
	case errors.As(err, &lockErr):
		writeLocked(w, http.StatusTooManyRequests, lockErr)
	case errors.As(err, &attemptErr):
		writeAttempt(w, http.StatusForbidden, ErrCodeTooManyAttempts, "incorrect PIN", attemptErr.Remaining)
	case errors.Is(err, auth.ErrPINNotSet):
		writeBadRequest(w, "no PIN configured for this profile")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeForbidden(w, "invalid credentials")
	default:
		s.logger.Error("pin check failed", "error", err)
		writeInternalError(w, "pin check failed")
	}
}
