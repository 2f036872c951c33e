package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TwoFactorRepository defines the interface for two-factor persistence.
// The config row holds the TOTP secret and enforcement status; backup
// codes live in a separate table as one-way hashes.
type TwoFactorRepository interface {
	GetConfig(ctx context.Context, principalID string) (*TwoFactorConfig, error)
	UpsertConfig(ctx context.Context, cfg *TwoFactorConfig) error
	MarkEnabled(ctx context.Context, principalID string, confirmedAt time.Time) error
	DeleteConfig(ctx context.Context, principalID string) error
	ReplaceBackupCodes(ctx context.Context, principalID string, codeHashes []string) error
	ConsumeBackupCode(ctx context.Context, principalID, codeHash string) (consumed bool, remaining int, err error)
	CountBackupCodes(ctx context.Context, principalID string) (int, error)
}

// SQLiteTwoFactorRepository implements TwoFactorRepository using SQLite.
type SQLiteTwoFactorRepository struct {
	db *sql.DB
}

// NewTwoFactorRepository creates a new SQLite-backed two-factor repository.
func NewTwoFactorRepository(db *sql.DB) *SQLiteTwoFactorRepository {
	return &SQLiteTwoFactorRepository{db: db}
}

// GetConfig retrieves a principal's two-factor configuration.
// Returns ErrTwoFactorNotSetUp when no row exists.
func (r *SQLiteTwoFactorRepository) GetConfig(ctx context.Context, principalID string) (*TwoFactorConfig, error) {
	var cfg TwoFactorConfig
	var status, createdAt string
	var confirmedAt sql.NullString

	err := r.db.QueryRowContext(ctx,
		"SELECT principal_id, secret, status, created_at, confirmed_at FROM twofactor_configs WHERE principal_id = ?",
		principalID,
	).Scan(&cfg.PrincipalID, &cfg.Secret, &status, &createdAt, &confirmedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTwoFactorNotSetUp
		}
		return nil, fmt.Errorf("getting two-factor config: %w", err)
	}

	cfg.Status = TwoFactorStatus(status)
	cfg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	if confirmedAt.Valid {
		t, parseErr := time.Parse(time.RFC3339, confirmedAt.String)
		if parseErr == nil {
			cfg.ConfirmedAt = &t
		}
	}

	return &cfg, nil
}

// UpsertConfig writes the config row. Re-running setup replaces the
// pending secret; the status resets to pending either way.
func (r *SQLiteTwoFactorRepository) UpsertConfig(ctx context.Context, cfg *TwoFactorConfig) error {
	now := time.Now().UTC().Format(time.RFC3339)
	cfg.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	if cfg.Status == "" {
		cfg.Status = TwoFactorPending
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO twofactor_configs (principal_id, secret, status, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(principal_id) DO UPDATE SET
		   secret = excluded.secret,
		   status = excluded.status,
		   created_at = excluded.created_at,
		   confirmed_at = NULL`,
		cfg.PrincipalID, cfg.Secret, string(cfg.Status), now,
	)
	if err != nil {
		return fmt.Errorf("upserting two-factor config: %w", err)
	}
	return nil
}

// MarkEnabled flips the status to enabled after the first successful code
// check. Enforcement begins here, not at setup.
func (r *SQLiteTwoFactorRepository) MarkEnabled(ctx context.Context, principalID string, confirmedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE twofactor_configs SET status = ?, confirmed_at = ? WHERE principal_id = ?",
		string(TwoFactorEnabled), confirmedAt.UTC().Format(time.RFC3339), principalID,
	)
	if err != nil {
		return fmt.Errorf("enabling two-factor: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrTwoFactorNotSetUp
	}
	return nil
}

// DeleteConfig removes the config row and, via cascade in callers, the
// backup codes. Used by disable.
func (r *SQLiteTwoFactorRepository) DeleteConfig(ctx context.Context, principalID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM twofactor_configs WHERE principal_id = ?", principalID)
	if err != nil {
		return fmt.Errorf("deleting two-factor config: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrTwoFactorNotSetUp
	}

	// Backup codes are useless without a secret; clear them in the same call.
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM twofactor_backup_codes WHERE principal_id = ?", principalID); err != nil {
		return fmt.Errorf("deleting backup codes: %w", err)
	}
	return nil
}

// ReplaceBackupCodes swaps the full backup-code set in one transaction.
// Used at setup and regeneration.
func (r *SQLiteTwoFactorRepository) ReplaceBackupCodes(ctx context.Context, principalID string, codeHashes []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning backup-code replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM twofactor_backup_codes WHERE principal_id = ?", principalID); err != nil {
		return fmt.Errorf("clearing backup codes: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, hash := range codeHashes {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO twofactor_backup_codes (principal_id, code_hash, created_at) VALUES (?, ?, ?)",
			principalID, hash, now); err != nil {
			return fmt.Errorf("inserting backup code: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing backup-code replace: %w", err)
	}
	return nil
}

// ConsumeBackupCode removes the matching hash row. The single-row DELETE
// is the atomic consume-once step: two concurrent redemptions of the same
// code race on the row and exactly one wins.
func (r *SQLiteTwoFactorRepository) ConsumeBackupCode(ctx context.Context, principalID, codeHash string) (bool, int, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM twofactor_backup_codes WHERE principal_id = ? AND code_hash = ?",
		principalID, codeHash)
	if err != nil {
		return false, 0, fmt.Errorf("consuming backup code: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	remaining, err := r.CountBackupCodes(ctx, principalID)
	if err != nil {
		return rows > 0, 0, err
	}
	return rows > 0, remaining, nil
}

// CountBackupCodes returns how many unused backup codes remain.
func (r *SQLiteTwoFactorRepository) CountBackupCodes(ctx context.Context, principalID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM twofactor_backup_codes WHERE principal_id = ?", principalID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting backup codes: %w", err)
	}
	return count, nil
}
