package auth

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE principals (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE,
			display_name TEXT NOT NULL,
			password_hash TEXT,
			pin_hash TEXT,
			kind TEXT NOT NULL DEFAULT 'account' CHECK (kind IN ('account', 'employee')),
			role TEXT NOT NULL DEFAULT 'member',
			is_active INTEGER NOT NULL DEFAULT 1,
			default_tenant_id TEXT,
			created_by TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (default_tenant_id) REFERENCES tenants(id) ON DELETE SET NULL,
			FOREIGN KEY (created_by) REFERENCES principals(id) ON DELETE SET NULL
		) STRICT;

		CREATE INDEX idx_principals_email ON principals(email);
		CREATE INDEX idx_principals_kind ON principals(kind);

		CREATE TABLE tenant_memberships (
			principal_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (principal_id, tenant_id),
			FOREIGN KEY (principal_id) REFERENCES principals(id) ON DELETE CASCADE,
			FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
		) STRICT;

		CREATE INDEX idx_tenant_memberships_tenant ON tenant_memberships(tenant_id);

		CREATE TABLE sessions (
			id TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL,
			access_token_hash TEXT NOT NULL,
			refresh_token_hash TEXT NOT NULL,
			user_agent TEXT,
			ip TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			expires_at TEXT NOT NULL,
			FOREIGN KEY (principal_id) REFERENCES principals(id) ON DELETE CASCADE
		) STRICT;

		CREATE INDEX idx_sessions_principal ON sessions(principal_id);
		CREATE INDEX idx_sessions_expires ON sessions(expires_at);

		CREATE TABLE lockout_states (
			principal_id TEXT NOT NULL,
			scope TEXT NOT NULL CHECK (scope IN ('password', 'kiosk_pin', 'manager_pin')),
			failed_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until TEXT,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (principal_id, scope),
			FOREIGN KEY (principal_id) REFERENCES principals(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE twofactor_configs (
			principal_id TEXT PRIMARY KEY,
			secret TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'enabled')),
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			confirmed_at TEXT,
			FOREIGN KEY (principal_id) REFERENCES principals(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE twofactor_backup_codes (
			principal_id TEXT NOT NULL,
			code_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (principal_id, code_hash),
			FOREIGN KEY (principal_id) REFERENCES principals(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			principal_id TEXT,
			source TEXT NOT NULL DEFAULT 'api',
			details TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying auth schema: %v", err)
	}

	return db
}

// seedTestTenant inserts a tenant and returns it.
func seedTestTenant(t *testing.T, db *sql.DB, name string) *Tenant {
	t.Helper()

	repo := NewTenantRepository(db)
	tenant := &Tenant{Name: name}
	if err := repo.CreateTenant(t.Context(), tenant); err != nil {
		t.Fatalf("creating test tenant %s: %v", name, err)
	}
	return tenant
}

// seedTestAccount inserts an account principal with password "test-password".
func seedTestAccount(t *testing.T, db *sql.DB, email string, role Role) *Principal {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	repo := NewPrincipalRepository(db)
	p := &Principal{
		Email:        email,
		DisplayName:  email,
		PasswordHash: hash,
		Kind:         KindAccount,
		Role:         role,
		IsActive:     true,
	}
	if err := repo.Create(t.Context(), p); err != nil {
		t.Fatalf("creating test account %s: %v", email, err)
	}
	return p
}

// seedTestEmployee inserts a kiosk employee profile with PIN "4321".
func seedTestEmployee(t *testing.T, db *sql.DB, name string) *Principal {
	t.Helper()

	pinHash, err := HashPassword("4321")
	if err != nil {
		t.Fatalf("hashing pin: %v", err)
	}

	repo := NewPrincipalRepository(db)
	p := &Principal{
		DisplayName: name,
		PINHash:     pinHash,
		Kind:        KindEmployee,
		Role:        RoleEmployee,
		IsActive:    true,
	}
	if err := repo.Create(t.Context(), p); err != nil {
		t.Fatalf("creating test employee %s: %v", name, err)
	}
	return p
}

// seedTestMembership joins a principal to a tenant at the given role.
func seedTestMembership(t *testing.T, db *sql.DB, principalID, tenantID string, role Role) {
	t.Helper()

	repo := NewTenantRepository(db)
	m := &TenantMembership{PrincipalID: principalID, TenantID: tenantID, Role: role}
	if err := repo.CreateMembership(t.Context(), m); err != nil {
		t.Fatalf("creating test membership: %v", err)
	}
}
