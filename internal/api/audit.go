package api

import (
	"net/http"
	"strconv"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/audit"
)

// auditLog records one API-sourced audit event through the async recorder
// (best-effort; a full buffer drops the entry rather than delaying the
// request).
func (s *Server) auditLog(action, entityType, entityID, principalID string, details map[string]any) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(action, entityType, entityID, principalID, "api", details)
}

// handleListAuditLogs returns paginated audit entries with optional filters.
//
// Query parameters:
//   - action: filter by action (auth.login.success, team.member.created, ...)
//   - entity_type: filter by entity type (session, principal, twofactor)
//   - principal_id: filter by acting principal
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:      q.Get("action"),
		EntityType:  q.Get("entity_type"),
		PrincipalID: q.Get("principal_id"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
