package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PrincipalRepository defines the interface for principal persistence.
// Principals cover both primary account holders and kiosk employee profiles.
type PrincipalRepository interface {
	Create(ctx context.Context, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	List(ctx context.Context) ([]Principal, error)
	Update(ctx context.Context, p *Principal) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdatePIN(ctx context.Context, id, pinHash string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// SQLitePrincipalRepository implements PrincipalRepository using SQLite.
type SQLitePrincipalRepository struct {
	db *sql.DB
}

// NewPrincipalRepository creates a new SQLite-backed principal repository.
func NewPrincipalRepository(db *sql.DB) *SQLitePrincipalRepository {
	return &SQLitePrincipalRepository{db: db}
}

const principalColumns = "id, email, display_name, password_hash, pin_hash, kind, role, is_active, default_tenant_id, created_by, created_at, updated_at"

// Create inserts a new principal. The ID is generated if empty.
func (r *SQLitePrincipalRepository) Create(ctx context.Context, p *Principal) error {
	if p.ID == "" {
		p.ID = "prn-" + uuid.NewString()[:8]
	}
	if p.Kind == "" {
		p.Kind = KindAccount
	}

	now := time.Now().UTC().Format(time.RFC3339)
	p.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO principals (id, email, display_name, password_hash, pin_hash, kind, role, is_active, default_tenant_id, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullString(p.Email), p.DisplayName,
		nullString(p.PasswordHash), nullString(p.PINHash),
		string(p.Kind), string(p.Role), boolToInt(p.IsActive),
		nullString(p.DefaultTenantID), nullString(p.CreatedBy), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating principal: %w", err)
	}

	return nil
}

// GetByID retrieves a principal by their unique ID.
func (r *SQLitePrincipalRepository) GetByID(ctx context.Context, id string) (*Principal, error) {
	return r.getPrincipal(ctx, "SELECT "+principalColumns+" FROM principals WHERE id = ?", id)
}

// GetByEmail retrieves a principal by their email address.
// Kiosk employee profiles have no email and are never returned here.
func (r *SQLitePrincipalRepository) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	return r.getPrincipal(ctx, "SELECT "+principalColumns+" FROM principals WHERE email = ?", email)
}

// List returns all principals ordered by creation date.
func (r *SQLitePrincipalRepository) List(ctx context.Context) ([]Principal, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+principalColumns+" FROM principals ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing principals: %w", err)
	}
	defer rows.Close()

	var principals []Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		principals = append(principals, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}

	if principals == nil {
		principals = []Principal{}
	}
	return principals, nil
}

// Update modifies a principal's mutable fields (display_name, email, role,
// is_active, default_tenant_id).
func (r *SQLitePrincipalRepository) Update(ctx context.Context, p *Principal) error {
	now := time.Now().UTC().Format(time.RFC3339)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE principals SET display_name = ?, email = ?, role = ?, is_active = ?, default_tenant_id = ?, updated_at = ? WHERE id = ?`,
		p.DisplayName, nullString(p.Email), string(p.Role), boolToInt(p.IsActive),
		nullString(p.DefaultTenantID), now, p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating principal: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// UpdatePassword changes a principal's password hash.
func (r *SQLitePrincipalRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateCredential(ctx, "password_hash", id, passwordHash)
}

// UpdatePIN changes a principal's PIN hash. Used for kiosk employee PINs
// and manager override PINs alike.
func (r *SQLitePrincipalRepository) UpdatePIN(ctx context.Context, id, pinHash string) error {
	return r.updateCredential(ctx, "pin_hash", id, pinHash)
}

// updateCredential sets one credential-hash column. The column name is one
// of two compile-time constants, never caller input.
func (r *SQLitePrincipalRepository) updateCredential(ctx context.Context, column, id, hash string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE principals SET %s = ?, updated_at = ? WHERE id = ?", column), //nolint:gosec // column is a compile-time constant
		hash, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating %s: %w", strings.ReplaceAll(column, "_", " "), err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// Delete removes a principal by ID.
func (r *SQLitePrincipalRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM principals WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting principal: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// Count returns the total number of principals.
func (r *SQLitePrincipalRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM principals").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting principals: %w", err)
	}
	return count, nil
}

// getPrincipal executes a query and scans a single principal result.
func (r *SQLitePrincipalRepository) getPrincipal(ctx context.Context, query string, args ...any) (*Principal, error) {
	return scanPrincipal(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanPrincipal scans a principal from any scanner (Row or Rows).
func scanPrincipal(s scanner) (*Principal, error) {
	var p Principal
	var email, passwordHash, pinHash, defaultTenant, createdBy sql.NullString
	var kind, role string
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(&p.ID, &email, &p.DisplayName, &passwordHash, &pinHash,
		&kind, &role, &isActive, &defaultTenant, &createdBy,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("scanning principal: %w", err)
	}

	p.Kind = PrincipalKind(kind)
	p.Role = Role(role)
	p.IsActive = isActive != 0
	if email.Valid {
		p.Email = email.String
	}
	if passwordHash.Valid {
		p.PasswordHash = passwordHash.String
	}
	if pinHash.Valid {
		p.PINHash = pinHash.String
	}
	if defaultTenant.Valid {
		p.DefaultTenantID = defaultTenant.String
	}
	if createdBy.Valid {
		p.CreatedBy = createdBy.String
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &p, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
