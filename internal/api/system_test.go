package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/audit"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

func TestSystemInfo(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["name"] != "YardBooks" {
		t.Errorf("name = %v, want YardBooks", body["name"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
	if body["environment"] != "development" {
		t.Errorf("environment = %v, want development", body["environment"])
	}
}

func TestSystemStats(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "owner@example.com", auth.RoleOwner)
	env.login(t, "owner@example.com", testPassword)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/system/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	authStats, _ := body["auth"].(map[string]any)
	if authStats == nil {
		t.Fatalf("expected auth stats block: %s", w.Body.String())
	}
	if authStats["active_sessions"] != float64(1) {
		t.Errorf("active_sessions = %v, want 1", authStats["active_sessions"])
	}
	rt, _ := body["runtime"].(map[string]any)
	if rt == nil || rt["goroutines"] == nil {
		t.Errorf("expected runtime stats block: %s", w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decode(t, w)["status"] != "ok" {
		t.Errorf("status = %v, want ok", decode(t, w)["status"])
	}
}

func TestAuditList_RequiresTenantAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "admin@example.com", auth.RoleAdmin)
	token, _ := env.login(t, "admin@example.com", testPassword)

	// Admins manage the team but do not hold tenant administration.
	w := env.do(authed(httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil), token))
	if w.Code != http.StatusForbidden {
		t.Fatalf("admin reading audit: expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuditList_FiltersAndPagination(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "owner@example.com", auth.RoleOwner)
	token, _ := env.login(t, "owner@example.com", testPassword)

	for i, action := range []string{"auth.login.success", "auth.login.failed", "auth.login.failed"} {
		entry := &audit.Entry{
			Action:      action,
			EntityType:  "session",
			PrincipalID: "prn-test",
			Source:      "api",
			Details:     map[string]any{"n": i},
		}
		if err := env.auditRepo.Create(t.Context(), entry); err != nil {
			t.Fatalf("seeding audit entry: %v", err)
		}
	}

	w := env.do(authed(httptest.NewRequest(http.MethodGet, "/api/v1/audit?action=auth.login.failed", nil), token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["total"] != float64(2) {
		t.Errorf("total = %v, want 2", body["total"])
	}
	entries, _ := body["entries"].([]any)
	for _, e := range entries {
		row, _ := e.(map[string]any)
		if row["action"] != "auth.login.failed" {
			t.Errorf("filter leaked action %v", row["action"])
		}
	}

	w = env.do(authed(httptest.NewRequest(http.MethodGet, "/api/v1/audit?limit=1&offset=0", nil), token))
	body = decode(t, w)
	if entries, _ := body["entries"].([]any); len(entries) != 1 {
		t.Errorf("limit=1 returned %d entries", len(entries))
	}
}
