package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

// lowBackupCodeThreshold is the remaining-count at which responses start
// warning the user to regenerate.
const lowBackupCodeThreshold = 3

// handleTwoFactorSetup provisions a TOTP secret and backup codes for the
// authenticated principal. The secret and codes are shown exactly once;
// enforcement starts only after /2fa/enable confirms a working code.
func (s *Server) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	principal, err := s.principals.GetByID(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("get principal for 2fa setup failed", "error", err)
		writeInternalError(w, "failed to set up two-factor")
		return
	}
	if principal.Email == "" {
		writeBadRequest(w, "two-factor requires an account with an email address")
		return
	}

	setup, err := s.auth.TwoFactor().Setup(r.Context(), principal.ID, principal.Email)
	if err != nil {
		if errors.Is(err, auth.ErrTwoFactorConflict) {
			writeConflict(w, "two-factor is already enabled; disable it before setting up again")
			return
		}
		s.logger.Error("2fa setup failed", "error", err, "principal_id", principal.ID)
		writeInternalError(w, "failed to set up two-factor")
		return
	}

	s.auditLog("auth.2fa.setup", "twofactor", principal.ID, principal.ID, nil)
	writeJSON(w, http.StatusOK, setup)
}

// twoFactorCodeRequest carries a single TOTP code.
type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

// handleTwoFactorEnable confirms a pending setup with a live code, moving
// the config to enabled. From here on, password logins owe a second factor.
func (s *Server) handleTwoFactorEnable(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req twoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Code == "" {
		writeBadRequest(w, "code is required")
		return
	}

	err := s.auth.TwoFactor().Confirm(r.Context(), claims.Subject, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTwoFactorNotSetUp):
			writeBadRequest(w, "two-factor has not been set up")
		case errors.Is(err, auth.ErrTwoFactorConflict):
			writeConflict(w, "two-factor is already enabled")
		case errors.Is(err, auth.ErrBadTwoFactorCode):
			writeBadRequest(w, "code rejected; check your authenticator app")
		default:
			s.logger.Error("2fa enable failed", "error", err)
			writeInternalError(w, "failed to enable two-factor")
		}
		return
	}

	s.auditLog("auth.2fa.enabled", "twofactor", claims.Subject, claims.Subject, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// twoFactorProofRequest re-proves either factor before a sensitive
// two-factor change: the current password or a live TOTP code. An active
// session alone is not enough; a hijacked session must not be able to
// strip or harvest the second factor.
type twoFactorProofRequest struct {
	Password string `json:"password,omitempty"`
	TOTPCode string `json:"totpCode,omitempty"`
}

// requireFreshProof checks the caller's re-proof and writes the refusal
// when it fails. Returns true only when the proof held up.
func (s *Server) requireFreshProof(w http.ResponseWriter, r *http.Request, principalID string, req twoFactorProofRequest) bool {
	if req.Password == "" && req.TOTPCode == "" {
		writeBadRequest(w, "password or totpCode is required")
		return false
	}

	switch {
	case req.TOTPCode != "":
		if err := s.auth.TwoFactor().VerifyCode(r.Context(), principalID, req.TOTPCode); err != nil {
			if errors.Is(err, auth.ErrBadTwoFactorCode) || errors.Is(err, auth.ErrTwoFactorNotSetUp) {
				writeForbidden(w, "verification failed")
				return false
			}
			s.logger.Error("2fa re-proof verification failed", "error", err)
			writeInternalError(w, "failed to verify identity")
			return false
		}
	default:
		principal, err := s.principals.GetByID(r.Context(), principalID)
		if err != nil {
			s.logger.Error("get principal for 2fa re-proof failed", "error", err)
			writeInternalError(w, "failed to verify identity")
			return false
		}
		ok, err := auth.VerifyPassword(req.Password, principal.PasswordHash)
		if err != nil || !ok {
			writeForbidden(w, "verification failed")
			return false
		}
	}
	return true
}

// handleTwoFactorDisable turns two-factor off and deletes the backup codes.
func (s *Server) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req twoFactorProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !s.requireFreshProof(w, r, claims.Subject, req) {
		return
	}

	if err := s.auth.TwoFactor().Disable(r.Context(), claims.Subject); err != nil {
		if errors.Is(err, auth.ErrTwoFactorNotSetUp) {
			writeConflict(w, "two-factor is not enabled")
			return
		}
		s.logger.Error("2fa disable failed", "error", err)
		writeInternalError(w, "failed to disable two-factor")
		return
	}

	s.auditLog("auth.2fa.disabled", "twofactor", claims.Subject, claims.Subject, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// twoFactorVerifyRequest carries the intermediate token from the login
// step plus the TOTP code.
type twoFactorVerifyRequest struct {
	TempToken string `json:"tempToken"`
	Code      string `json:"code"`
}

// handleTwoFactorVerify completes a two-factor login. The temp token proves
// the password already passed; wrong codes count against the password
// lockout scope.
func (s *Server) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var req twoFactorVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.TempToken == "" || req.Code == "" {
		writeBadRequest(w, "tempToken and code are required")
		return
	}

	result, err := s.auth.CompleteTwoFactor(r.Context(), req.TempToken, req.Code, metaFromRequest(r))
	if err != nil {
		s.writePasswordFlowError(w, err)
		return
	}

	s.writeIssuance(w, result)
}

// twoFactorBackupRequest redeems a backup code. Action "login" finishes an
// interrupted login (tempToken required); action "settings" burns a code
// from an authenticated session to report the remaining count.
type twoFactorBackupRequest struct {
	Code      string `json:"code"`
	Action    string `json:"action"`
	TempToken string `json:"tempToken,omitempty"`
}

// handleTwoFactorBackup redeems a single-use backup code.
func (s *Server) handleTwoFactorBackup(w http.ResponseWriter, r *http.Request) {
	var req twoFactorBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Code == "" {
		writeBadRequest(w, "code is required")
		return
	}

	switch req.Action {
	case "login":
		if req.TempToken == "" {
			writeBadRequest(w, "tempToken is required for login redemption")
			return
		}
		// CompleteTwoFactor accepts backup codes in place of TOTP codes.
		result, err := s.auth.CompleteTwoFactor(r.Context(), req.TempToken, req.Code, metaFromRequest(r))
		if err != nil {
			s.writePasswordFlowError(w, err)
			return
		}
		s.writeIssuance(w, result)

	case "settings":
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeUnauthorized(w, "authentication required")
			return
		}
		remaining, err := s.auth.TwoFactor().ConsumeBackupCode(r.Context(), claims.Subject, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrBadTwoFactorCode):
				writeBadRequest(w, "backup code rejected")
			case errors.Is(err, auth.ErrTwoFactorNotSetUp):
				writeBadRequest(w, "two-factor is not enabled")
			default:
				s.logger.Error("backup code consume failed", "error", err)
				writeInternalError(w, "failed to redeem backup code")
			}
			return
		}
		resp := map[string]any{"remaining": remaining}
		if remaining <= lowBackupCodeThreshold {
			resp["warning"] = "backup codes running low; regenerate a fresh batch"
		}
		s.auditLog("auth.2fa.backup_code_used", "twofactor", claims.Subject, claims.Subject, map[string]any{"remaining": remaining})
		writeJSON(w, http.StatusOK, resp)

	default:
		writeBadRequest(w, `action must be "login" or "settings"`)
	}
}

// handleTwoFactorRegenerate replaces the backup code batch. The old codes
// die immediately; the new ones are shown once. Like disable, it demands
// fresh proof: the new cleartext codes are login credentials, and a stolen
// session must not be able to mint itself a batch.
func (s *Server) handleTwoFactorRegenerate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req twoFactorProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !s.requireFreshProof(w, r, claims.Subject, req) {
		return
	}

	codes, err := s.auth.TwoFactor().RegenerateBackupCodes(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrTwoFactorNotSetUp) {
			writeBadRequest(w, "two-factor is not enabled")
			return
		}
		s.logger.Error("backup code regenerate failed", "error", err)
		writeInternalError(w, "failed to regenerate backup codes")
		return
	}

	s.auditLog("auth.2fa.backup_codes_regenerated", "twofactor", claims.Subject, claims.Subject, nil)
	writeJSON(w, http.StatusOK, map[string]any{"backupCodes": codes})
}
