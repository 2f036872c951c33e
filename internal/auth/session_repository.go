package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionRepository defines the interface for session persistence.
//
// Sessions are the source of truth for login validity: a signed refresh
// token is only as alive as the row it references. Replace enforces the
// single-session-per-principal invariant.
type SessionRepository interface {
	Replace(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	GetByAccessHash(ctx context.Context, accessHash string) (*Session, error)
	ListByPrincipal(ctx context.Context, principalID string) ([]Session, error)
	UpdateAccessHash(ctx context.Context, id, accessHash string) error
	Delete(ctx context.Context, id, principalID string) error
	DeleteAllExcept(ctx context.Context, principalID, keepID string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int, error)
}

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite-backed session repository.
func NewSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw tokens are never stored — only their hashes — so a leaked database
// row never yields a usable bearer credential.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Replace deletes ALL existing session rows for the principal and inserts
// exactly one new row, in a single transaction. Logging in on a new device
// always evicts every other active device — a deliberate anti-sharing
// control. Two near-simultaneous logins may each evict the other's fresh
// row; the last writer survives and the at-most-one invariant holds.
func (r *SQLiteSessionRepository) Replace(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = "ses-" + uuid.NewString()[:16]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	session.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning session replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sessions WHERE principal_id = ?", session.PrincipalID); err != nil {
		return fmt.Errorf("evicting prior sessions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, principal_id, access_token_hash, refresh_token_hash, user_agent, ip, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.PrincipalID,
		session.AccessTokenHash, session.RefreshTokenHash,
		nullString(session.UserAgent), nullString(session.IP),
		now, session.ExpiresAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session replace: %w", err)
	}
	return nil
}

const sessionColumns = "id, principal_id, access_token_hash, refresh_token_hash, user_agent, ip, created_at, expires_at"

// GetByID retrieves a session by its ID.
func (r *SQLiteSessionRepository) GetByID(ctx context.Context, id string) (*Session, error) {
	return r.getSession(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
}

// GetByAccessHash retrieves the session whose stored access-token hash
// matches. This is how "current session" is identified: by comparing the
// presented bearer token's hash, never by trusting a client-supplied ID.
func (r *SQLiteSessionRepository) GetByAccessHash(ctx context.Context, accessHash string) (*Session, error) {
	return r.getSession(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE access_token_hash = ?", accessHash)
}

// ListByPrincipal returns the principal's sessions, newest first.
func (r *SQLiteSessionRepository) ListByPrincipal(ctx context.Context, principalID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE principal_id = ? ORDER BY created_at DESC",
		principalID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

// UpdateAccessHash swaps the stored access-token hash after a transparent
// refresh re-mints the access token, so current-session matching keeps
// working against the new bearer value.
func (r *SQLiteSessionRepository) UpdateAccessHash(ctx context.Context, id, accessHash string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET access_token_hash = ? WHERE id = ?", accessHash, id)
	if err != nil {
		return fmt.Errorf("updating session access hash: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes one session, scoped to the owning principal. The scoping
// prevents a caller from revoking another principal's session by guessing
// an ID.
func (r *SQLiteSessionRepository) Delete(ctx context.Context, id, principalID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE id = ? AND principal_id = ?", id, principalID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteAllExcept removes every session for the principal except keepID.
// Returns the number of revoked rows.
func (r *SQLiteSessionRepository) DeleteAllExcept(ctx context.Context, principalID, keepID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE principal_id = ? AND id != ?", principalID, keepID)
	if err != nil {
		return 0, fmt.Errorf("deleting other sessions: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// DeleteExpired removes sessions past their expiry, freeing storage.
// Returns the number of deleted rows.
func (r *SQLiteSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

// Count returns the total number of live session rows.
func (r *SQLiteSessionRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return count, nil
}

// getSession executes a query and scans a single session result.
func (r *SQLiteSessionRepository) getSession(ctx context.Context, query string, args ...any) (*Session, error) {
	return scanSession(r.db.QueryRowContext(ctx, query, args...))
}

// scanSession scans a session from any scanner (Row or Rows).
func scanSession(s scanner) (*Session, error) {
	var sess Session
	var userAgent, ip sql.NullString
	var createdAt, expiresAt string

	err := s.Scan(&sess.ID, &sess.PrincipalID,
		&sess.AccessTokenHash, &sess.RefreshTokenHash,
		&userAgent, &ip, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	if userAgent.Valid {
		sess.UserAgent = userAgent.String
	}
	if ip.Valid {
		sess.IP = ip.String
	}

	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	sess.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled

	return &sess, nil
}
