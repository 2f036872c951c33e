package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

func TestLoginPage_RendersWithMatchingNonce(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}

	// The nonce in the page must be the one the CSP header allows.
	csp := w.Header().Get("Content-Security-Policy")
	start := strings.Index(csp, "'nonce-")
	if start < 0 {
		t.Fatalf("no nonce in CSP header: %q", csp)
	}
	rest := csp[start+len("'nonce-"):]
	nonce := rest[:strings.IndexByte(rest, '\'')]
	if nonce == "" {
		t.Fatalf("empty nonce in CSP header: %q", csp)
	}
	if !strings.Contains(w.Body.String(), `nonce="`+nonce+`"`) {
		t.Errorf("page body does not carry the CSP nonce %q", nonce)
	}
}

func TestDashboardPage_RequiresSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "owner@example.com", auth.RoleOwner)
	_, cookies := env.login(t, "owner@example.com", testPassword)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: accessCookieName, Value: cookieValue(cookies, accessCookieName)})

	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with session cookie, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "</html>") {
		t.Errorf("dashboard response does not look like a page")
	}
}
