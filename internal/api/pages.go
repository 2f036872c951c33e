package api

import (
	"io"
	"net/http"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/web"
)

// handleLoginPage renders the login form. The gatekeeper already bounced
// authenticated browsers to the dashboard.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, web.RenderLogin)
}

// handleDashboardPage renders the dashboard shell. Anonymous visitors
// never reach here; the gatekeeper redirected them to /login.
func (s *Server) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, web.RenderDashboard)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, render func(wr io.Writer, data web.PageData) error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")

	data := web.PageData{
		Nonce:   CSPNonce(r.Context()),
		Version: s.version,
	}
	if err := render(w, data); err != nil {
		s.logger.Error("page render failed", "error", err, "path", r.URL.Path)
	}
}
