package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

// sessionView is one row in the session list. Current is true for the
// session backing the bearer token making the request, matched by token
// hash rather than trusting any client-supplied ID.
type sessionView struct {
	auth.Session
	Current bool `json:"current"`
}

// handleListSessions returns the caller's sessions. Under single-session
// enforcement this is at most one row, but the shape allows more.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	token := accessTokenFromContext(r.Context())

	sessions, err := s.auth.ListSessions(r.Context(), claims.Subject)
	if err != nil {
		s.logger.Error("list sessions failed", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}

	currentHash := auth.HashToken(token)
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sessionView{
			Session: sess,
			Current: sess.AccessTokenHash == currentHash,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": views,
		"count":    len(views),
	})
}

// handleRevokeSession deletes one of the caller's own sessions by ID.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id := chi.URLParam(r, "id")

	err := s.auth.RevokeSession(r.Context(), claims.Subject, id, metaFromRequest(r))
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		s.logger.Error("revoke session failed", "error", err)
		writeInternalError(w, "failed to revoke session")
		return
	}

	if id == claims.SessionID {
		// Revoking the current session is a logout.
		s.clearAuthCookies(w)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleRevokeOtherSessions deletes every session except the current one.
func (s *Server) handleRevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	n, err := s.auth.RevokeOtherSessions(r.Context(), claims.Subject, claims.SessionID, metaFromRequest(r))
	if err != nil {
		s.logger.Error("revoke other sessions failed", "error", err)
		writeInternalError(w, "failed to revoke sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"revoked": n})
}
