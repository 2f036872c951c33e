// Package web serves the small embedded browser pages (login, dashboard)
// via go:embed. The pages are deliberately thin: the web client proper is
// a separate frontend build, and these exist so the page-redirect flows
// have real destinations.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var content embed.FS

var pages = template.Must(template.ParseFS(content, "templates/*.html"))

// PageData carries per-request values into the templates. Nonce is the CSP
// nonce minted by the security-headers middleware; inline assets must
// carry it or the browser drops them.
type PageData struct {
	Nonce   string
	Version string
}

// RenderLogin writes the login page.
func RenderLogin(w io.Writer, data PageData) error {
	if err := pages.ExecuteTemplate(w, "login.html", data); err != nil {
		return fmt.Errorf("rendering login page: %w", err)
	}
	return nil
}

// RenderDashboard writes the dashboard shell.
func RenderDashboard(w io.Writer, data PageData) error {
	if err := pages.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		return fmt.Errorf("rendering dashboard page: %w", err)
	}
	return nil
}
