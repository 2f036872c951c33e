package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TenantRepository defines the interface for tenant and membership
// persistence. Memberships are the authority on which tenants a principal
// may act within and at what role.
type TenantRepository interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	CreateMembership(ctx context.Context, m *TenantMembership) error
	GetMembership(ctx context.Context, principalID, tenantID string) (*TenantMembership, error)
	UpdateMembershipRole(ctx context.Context, principalID, tenantID string, role Role) error
	DeleteMembership(ctx context.Context, principalID, tenantID string) error
	ListMembershipsByPrincipal(ctx context.Context, principalID string) ([]TenantMembership, error)
	ListMembershipsByTenant(ctx context.Context, tenantID string) ([]TenantMembership, error)
}

// SQLiteTenantRepository implements TenantRepository using SQLite.
type SQLiteTenantRepository struct {
	db *sql.DB
}

// NewTenantRepository creates a new SQLite-backed tenant repository.
func NewTenantRepository(db *sql.DB) *SQLiteTenantRepository {
	return &SQLiteTenantRepository{db: db}
}

// CreateTenant inserts a new tenant. The ID is generated if empty.
func (r *SQLiteTenantRepository) CreateTenant(ctx context.Context, t *Tenant) error {
	if t.ID == "" {
		t.ID = "tnt-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	t.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO tenants (id, name, created_at) VALUES (?, ?, ?)",
		t.ID, t.Name, now,
	)
	if err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}
	return nil
}

// GetTenant retrieves a tenant by ID.
func (r *SQLiteTenantRepository) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM tenants WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("getting tenant: %w", err)
	}

	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &t, nil
}

// CreateMembership grants a principal a role within a tenant.
func (r *SQLiteTenantRepository) CreateMembership(ctx context.Context, m *TenantMembership) error {
	now := time.Now().UTC().Format(time.RFC3339)
	m.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO tenant_memberships (principal_id, tenant_id, role, created_at) VALUES (?, ?, ?, ?)",
		m.PrincipalID, m.TenantID, string(m.Role), now,
	)
	if err != nil {
		return fmt.Errorf("creating membership: %w", err)
	}
	return nil
}

// GetMembership retrieves one membership row.
func (r *SQLiteTenantRepository) GetMembership(ctx context.Context, principalID, tenantID string) (*TenantMembership, error) {
	var m TenantMembership
	var role, createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT principal_id, tenant_id, role, created_at FROM tenant_memberships WHERE principal_id = ? AND tenant_id = ?",
		principalID, tenantID,
	).Scan(&m.PrincipalID, &m.TenantID, &role, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotAMember
		}
		return nil, fmt.Errorf("getting membership: %w", err)
	}

	m.Role = Role(role)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &m, nil
}

// UpdateMembershipRole changes the role a principal holds in one tenant.
func (r *SQLiteTenantRepository) UpdateMembershipRole(ctx context.Context, principalID, tenantID string, role Role) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE tenant_memberships SET role = ? WHERE principal_id = ? AND tenant_id = ?",
		string(role), principalID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("updating membership role: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotAMember
	}
	return nil
}

// DeleteMembership removes a principal from a tenant.
func (r *SQLiteTenantRepository) DeleteMembership(ctx context.Context, principalID, tenantID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM tenant_memberships WHERE principal_id = ? AND tenant_id = ?",
		principalID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotAMember
	}
	return nil
}

// ListMembershipsByPrincipal returns all memberships for one principal,
// oldest first. The first row is the fallback active tenant at login when
// no default is set.
func (r *SQLiteTenantRepository) ListMembershipsByPrincipal(ctx context.Context, principalID string) ([]TenantMembership, error) {
	return r.listMemberships(ctx,
		"SELECT principal_id, tenant_id, role, created_at FROM tenant_memberships WHERE principal_id = ? ORDER BY created_at ASC",
		principalID)
}

// ListMembershipsByTenant returns all memberships within one tenant.
func (r *SQLiteTenantRepository) ListMembershipsByTenant(ctx context.Context, tenantID string) ([]TenantMembership, error) {
	return r.listMemberships(ctx,
		"SELECT principal_id, tenant_id, role, created_at FROM tenant_memberships WHERE tenant_id = ? ORDER BY created_at ASC",
		tenantID)
}

func (r *SQLiteTenantRepository) listMemberships(ctx context.Context, query string, args ...any) ([]TenantMembership, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	defer rows.Close()

	var memberships []TenantMembership
	for rows.Next() {
		var m TenantMembership
		var role, createdAt string

		if err := rows.Scan(&m.PrincipalID, &m.TenantID, &role, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}

		m.Role = Role(role)
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memberships: %w", err)
	}

	if memberships == nil {
		memberships = []TenantMembership{}
	}
	return memberships, nil
}
