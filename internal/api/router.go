package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware. The gatekeeper runs last so every earlier layer
	// (logging, recovery, headers) also covers its redirects and 401s.
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.gatekeeperMiddleware)

	// Browser pages (embedded templates). The gatekeeper has already
	// redirected anonymous visitors away from protected pages.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	r.Get("/login", s.handleLoginPage)
	r.Get("/dashboard", s.handleDashboardPage)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public system endpoints
		r.Get("/system/info", s.handleSystemInfo)
		r.Get("/system/stats", s.handleSystemStats)

		r.Route("/auth", func(r chi.Router) {
			// Credential-submission endpoints, rate-limited per IP.
			r.Group(func(r chi.Router) {
				r.Use(s.rateLimitMiddleware)

				r.Post("/login", s.handleLogin)
				r.Post("/pin-login", s.handlePinLogin)
				r.Post("/2fa/verify", s.handleTwoFactorVerify)
				r.Post("/2fa/backup", s.handleTwoFactorBackup)
				r.Post("/pos/override", s.handlePOSOverride)
				r.Post("/refresh", s.handleRefresh)
			})

			// Endpoints requiring a live session.
			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)

				r.Get("/me", s.handleMe)
				r.Post("/logout", s.handleLogout)
				r.Post("/switch-tenant", s.handleSwitchTenant)

				r.Post("/2fa/setup", s.handleTwoFactorSetup)
				r.Post("/2fa/enable", s.handleTwoFactorEnable)
				r.Post("/2fa/disable", s.handleTwoFactorDisable)
				r.Post("/2fa/backup/regenerate", s.handleTwoFactorRegenerate)

				r.Get("/sessions", s.handleListSessions)
				r.Post("/sessions/revoke-all", s.handleRevokeOtherSessions)
				r.Post("/sessions/{id}/revoke", s.handleRevokeSession)
			})
		})

		// Team management, tenant-scoped.
		r.Group(func(r chi.Router) {
			r.Use(s.requireActiveTenant)
			r.Use(s.requirePermission(auth.PermTeamManage))

			r.Get("/team", s.handleListTeam)
			r.Post("/team", s.handleCreateTeamMember)
			r.Patch("/team/{id}", s.handleUpdateTeamMember)
			r.Post("/team/{id}/unlock", s.handleUnlockTeamMember)
			r.Post("/team/{id}/pin", s.handleRotateTeamPIN)
		})

		// Audit trail, owner-level.
		r.Group(func(r chi.Router) {
			r.Use(s.requireActiveTenant)
			r.Use(s.requirePermission(auth.PermTenantAdmin))

			r.Get("/audit", s.handleListAuditLogs)
		})
	})

	// Health check at the root, outside the versioned tree, for load
	// balancer probes.
	r.Get("/healthz", s.handleHealthz)

	return r
}

// handleHealthz returns the server health status.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
