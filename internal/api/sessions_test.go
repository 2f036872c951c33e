package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

func TestListSessions_MarksCurrent(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "owner@example.com", auth.RoleOwner)
	token, _ := env.login(t, "owner@example.com", testPassword)

	w := env.do(authed(httptest.NewRequest(http.MethodGet, "/api/v1/auth/sessions", nil), token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["count"] != float64(1) {
		t.Fatalf("count = %v, want 1 under single-session enforcement", body["count"])
	}
	sessions, _ := body["sessions"].([]any)
	first, _ := sessions[0].(map[string]any)
	if first["current"] != true {
		t.Errorf("the only session should be marked current: %v", first)
	}
	if first["access_token_hash"] != nil || first["refresh_token_hash"] != nil {
		t.Errorf("session rows must not expose token hashes: %v", first)
	}
}

func TestRevokeSession_CurrentActsAsLogout(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "owner@example.com", auth.RoleOwner)
	token, _ := env.login(t, "owner@example.com", testPassword)

	w := env.do(authed(httptest.NewRequest(http.MethodGet, "/api/v1/auth/sessions", nil), token))
	sessions, _ := decode(t, w)["sessions"].([]any)
	id, _ := sessions[0].(map[string]any)["id"].(string)
	if id == "" {
		t.Fatalf("no session id in list response")
	}

	w = env.do(authed(httptest.NewRequest(http.MethodPost, "/api/v1/auth/sessions/"+id+"/revoke", nil), token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cleared := false
	for _, c := range readCookies(w) {
		if c.Name == accessCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Errorf("revoking the current session should clear auth cookies")
	}

	// The token is now dead.
	w = env.do(authed(httptest.NewRequest(http.MethodGet, "/api/v1/auth/sessions", nil), token))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after revoking own session, got %d", w.Code)
	}
}

func TestRevokeSession_UnknownID(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "owner@example.com", auth.RoleOwner)
	token, _ := env.login(t, "owner@example.com", testPassword)

	w := env.do(authed(httptest.NewRequest(http.MethodPost, "/api/v1/auth/sessions/no-such-session/revoke", nil), token))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRevokeOtherSessions(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "owner@example.com", auth.RoleOwner)
	token, _ := env.login(t, "owner@example.com", testPassword)

	w := env.do(authed(httptest.NewRequest(http.MethodPost, "/api/v1/auth/sessions/revoke-all", nil), token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	// Single-session enforcement: nothing besides the current one existed.
	if got := decode(t, w)["revoked"]; got != float64(0) {
		t.Errorf("revoked = %v, want 0", got)
	}

	// The current session survives.
	w = env.do(authed(httptest.NewRequest(http.MethodGet, "/api/v1/auth/sessions", nil), token))
	if w.Code != http.StatusOK {
		t.Errorf("current session should survive revoke-all, got %d", w.Code)
	}
}
