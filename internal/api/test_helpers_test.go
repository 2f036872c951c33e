package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/audit"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/config"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/database"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/logging"
	_ "github.com/Mani87-nq/yardbooks-web-sub010/migrations"
)

// testEnv bundles a fully wired server with direct handles on its
// dependencies for seeding and inspection.
type testEnv struct {
	srv        *Server
	router     http.Handler
	principals auth.PrincipalRepository
	tenants    auth.TenantRepository
	sessions   auth.SessionRepository
	auditRepo  audit.Repository
	authSvc    *auth.Service
	tenant     *auth.Tenant
}

const (
	testPassword = "correct-horse-battery"
	testPIN      = "4321"
)

// newTestEnv builds a server against a migrated temp database with one
// seeded tenant. Rate limiting is off so tests can hammer the login
// endpoint freely; the rate limiter has its own unit tests.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	logger := logging.Default()
	principals := auth.NewPrincipalRepository(db.DB)
	tenants := auth.NewTenantRepository(db.DB)
	sessions := auth.NewSessionRepository(db.DB)
	twoFactorRepo := auth.NewTwoFactorRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret: "test-secret-key-for-jwt-signing!",
		Issuer: "yardbooks-test",
	})
	twoFactor := auth.NewTwoFactorManager(twoFactorRepo, "YardBooks Test")
	lockouts := auth.NewLockoutTracker(db.DB)

	authSvc := auth.NewService(
		principals, tenants, sessions,
		lockouts, twoFactor, tokens,
		logger, nil,
	)

	cfg := &config.Config{
		App: config.AppConfig{
			Name:        "YardBooks",
			Environment: "development",
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Issuer:            "yardbooks-test",
				AccessTokenTTL:    15,
				RefreshTokenTTL:   168,
				TwoFactorTokenTTL: 5,
			},
		},
	}

	srv, err := New(Deps{
		Config:     cfg,
		Logger:     logger,
		Auth:       authSvc,
		Principals: principals,
		Tenants:    tenants,
		Sessions:   sessions,
		AuditRepo:  auditRepo,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("creating test server: %v", err)
	}

	tenant := &auth.Tenant{Name: "Test Workspace"}
	if err := tenants.CreateTenant(t.Context(), tenant); err != nil {
		t.Fatalf("creating test tenant: %v", err)
	}

	return &testEnv{
		srv:        srv,
		router:     srv.buildRouter(),
		principals: principals,
		tenants:    tenants,
		sessions:   sessions,
		auditRepo:  auditRepo,
		authSvc:    authSvc,
		tenant:     tenant,
	}
}

// seedAccount creates an active account with testPassword, joined to the
// env tenant under the given role.
func (e *testEnv) seedAccount(t *testing.T, email string, role auth.Role) *auth.Principal {
	t.Helper()

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing test password: %v", err)
	}
	p := &auth.Principal{
		Email:           email,
		DisplayName:     email,
		PasswordHash:    hash,
		Kind:            auth.KindAccount,
		Role:            role,
		IsActive:        true,
		DefaultTenantID: e.tenant.ID,
	}
	if err := e.principals.Create(t.Context(), p); err != nil {
		t.Fatalf("creating test account %s: %v", email, err)
	}
	m := &auth.TenantMembership{PrincipalID: p.ID, TenantID: e.tenant.ID, Role: role}
	if err := e.tenants.CreateMembership(t.Context(), m); err != nil {
		t.Fatalf("creating test membership for %s: %v", email, err)
	}
	return p
}

// seedEmployee creates a kiosk employee profile with testPIN.
func (e *testEnv) seedEmployee(t *testing.T, name string) *auth.Principal {
	t.Helper()

	pinHash, err := auth.HashPassword(testPIN)
	if err != nil {
		t.Fatalf("hashing test pin: %v", err)
	}
	p := &auth.Principal{
		DisplayName:     name,
		PINHash:         pinHash,
		Kind:            auth.KindEmployee,
		Role:            auth.RoleEmployee,
		IsActive:        true,
		DefaultTenantID: e.tenant.ID,
	}
	if err := e.principals.Create(t.Context(), p); err != nil {
		t.Fatalf("creating test employee %s: %v", name, err)
	}
	m := &auth.TenantMembership{PrincipalID: p.ID, TenantID: e.tenant.ID, Role: auth.RoleEmployee}
	if err := e.tenants.CreateMembership(t.Context(), m); err != nil {
		t.Fatalf("creating test membership for %s: %v", name, err)
	}
	return p
}

// do runs one request through the router.
func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// postJSON builds a POST request with a JSON body.
func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshalling request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decode unmarshals a JSON response body into a map.
func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return m
}

// login performs a password login and returns the access token plus the
// set cookies.
func (e *testEnv) login(t *testing.T, email, password string) (string, []*http.Cookie) {
	t.Helper()

	w := e.do(postJSON(t, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("login for %s: status %d body %s", email, w.Code, w.Body.String())
	}
	body := decode(t, w)
	token, _ := body["accessToken"].(string)
	if token == "" {
		t.Fatalf("login for %s returned no access token: %s", email, w.Body.String())
	}
	return token, readCookies(w)
}

// readCookies parses Set-Cookie headers off a response.
func readCookies(w *httptest.ResponseRecorder) []*http.Cookie {
	res := http.Response{Header: w.Header()}
	return res.Cookies()
}

// cookieValue returns the named cookie's value, or "".
func cookieValue(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// authed adds a bearer token to a request.
func authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
