package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Escalation ladder. Compiled-in policy, not configuration: the thresholds
// are part of the security contract.
const (
	// maxFreeAttempts failures carry no lockout; the response reports how
	// many attempts remain before the first window.
	maxFreeAttempts = 3

	// shortLockoutThreshold .. mediumLockoutThreshold-1 failures earn the
	// short window.
	shortLockoutThreshold  = 3
	mediumLockoutThreshold = 5
	permanentThreshold     = 10

	shortLockoutWindow  = 30 * time.Second
	mediumLockoutWindow = 5 * time.Minute
)

// permanentLockout is the far-future sentinel for lockouts that only an
// administrator can clear.
var permanentLockout = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// LockedError reports an active lockout window. It unwraps to
// ErrAccountLocked and carries the machine-readable unlock time the
// response body must include.
type LockedError struct {
	Scope LockoutScope
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked in scope %s until %s", e.Scope, e.Until.Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrAccountLocked) true for LockedError values.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// Permanent reports whether the lockout requires manual reset.
func (e *LockedError) Permanent() bool {
	return e.Until.Equal(permanentLockout)
}

// AttemptError reports a failed credential check while attempts remain
// before the next lockout boundary. It unwraps to ErrInvalidCredentials so
// handlers can keep the generic response body.
type AttemptError struct {
	Remaining int
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("invalid credentials (%d attempts remaining)", e.Remaining)
}

// Is makes errors.Is(err, ErrInvalidCredentials) true for AttemptError values.
func (e *AttemptError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// LockoutTracker maintains durable per-principal failure counters, one
// counter space per login modality. Counters live in the shared store, not
// in memory: a multi-instance deployment with in-memory counters would let
// an attacker bypass lockout by spreading attempts across instances.
//
// Increments are best-effort rather than linearizable under concurrent
// failures; this control is defense-in-depth behind edge rate limiting,
// and partial state always fails toward "more suspicious".
type LockoutTracker struct {
	db  *sql.DB
	now func() time.Time
}

// NewLockoutTracker creates a lockout tracker backed by the shared store.
func NewLockoutTracker(db *sql.DB) *LockoutTracker {
	return &LockoutTracker{db: db, now: time.Now}
}

// Check reports whether the principal is currently locked in the given
// scope. It MUST run before any credential comparison: a locked principal
// never reaches the cryptographic check, and callers surface the distinct
// locked status instead of an ordinary wrong-credential response.
func (t *LockoutTracker) Check(ctx context.Context, principalID string, scope LockoutScope) error {
	state, err := t.Get(ctx, principalID, scope)
	if err != nil {
		return err
	}
	if state == nil || state.LockedUntil == nil {
		return nil
	}
	if t.now().UTC().Before(*state.LockedUntil) {
		return &LockedError{Scope: scope, Until: *state.LockedUntil}
	}
	return nil
}

// Get returns the current lockout state, or nil if the principal has never
// failed in this scope.
func (t *LockoutTracker) Get(ctx context.Context, principalID string, scope LockoutScope) (*LockoutState, error) {
	var state LockoutState
	var lockedUntil sql.NullString
	var updatedAt string

	err := t.db.QueryRowContext(ctx,
		"SELECT principal_id, scope, failed_attempts, locked_until, updated_at FROM lockout_states WHERE principal_id = ? AND scope = ?",
		principalID, string(scope),
	).Scan(&state.PrincipalID, &state.Scope, &state.FailedAttempts, &lockedUntil, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting lockout state: %w", err)
	}

	if lockedUntil.Valid {
		until, parseErr := time.Parse(time.RFC3339, lockedUntil.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing locked_until %q: %w", lockedUntil.String, parseErr)
		}
		state.LockedUntil = &until
	}
	state.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &state, nil
}

// RecordFailure increments the failure counter atomically at the store
// level (INSERT ... ON CONFLICT increment) and applies the escalation
// ladder to the new count. Returns the resulting error the caller should
// surface: a LockedError when a window just started, or an AttemptError
// with the remaining free attempts.
func (t *LockoutTracker) RecordFailure(ctx context.Context, principalID string, scope LockoutScope) (*LockoutState, error) {
	now := t.now().UTC()
	nowStr := now.Format(time.RFC3339)

	// Atomic increment; lazily creates the row on first failure.
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO lockout_states (principal_id, scope, failed_attempts, updated_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(principal_id, scope) DO UPDATE SET
		   failed_attempts = failed_attempts + 1,
		   updated_at = excluded.updated_at`,
		principalID, string(scope), nowStr,
	)
	if err != nil {
		return nil, fmt.Errorf("recording failure: %w", err)
	}

	state, err := t.Get(ctx, principalID, scope)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("lockout state missing after increment")
	}

	until := lockoutWindow(state.FailedAttempts, now)
	if until != nil {
		if _, err := t.db.ExecContext(ctx,
			"UPDATE lockout_states SET locked_until = ?, updated_at = ? WHERE principal_id = ? AND scope = ?",
			until.Format(time.RFC3339), nowStr, principalID, string(scope),
		); err != nil {
			return nil, fmt.Errorf("setting lockout window: %w", err)
		}
		state.LockedUntil = until
	}

	return state, nil
}

// Reset atomically zeroes the counter and clears the lockout timestamp.
// Called on any successful authentication in the scope.
func (t *LockoutTracker) Reset(ctx context.Context, principalID string, scope LockoutScope) error {
	_, err := t.db.ExecContext(ctx,
		"UPDATE lockout_states SET failed_attempts = 0, locked_until = NULL, updated_at = ? WHERE principal_id = ? AND scope = ?",
		t.now().UTC().Format(time.RFC3339), principalID, string(scope),
	)
	if err != nil {
		return fmt.Errorf("resetting lockout state: %w", err)
	}
	return nil
}

// AdminReset clears every scope for the principal, including the permanent
// sentinel. This is the manual-unlock path for team management.
func (t *LockoutTracker) AdminReset(ctx context.Context, principalID string) error {
	_, err := t.db.ExecContext(ctx,
		"UPDATE lockout_states SET failed_attempts = 0, locked_until = NULL, updated_at = ? WHERE principal_id = ?",
		t.now().UTC().Format(time.RFC3339), principalID,
	)
	if err != nil {
		return fmt.Errorf("admin-resetting lockout state: %w", err)
	}
	return nil
}

// LockedCount returns how many counter rows currently carry an active
// lockout window. Used by the system stats endpoint.
func (t *LockoutTracker) LockedCount(ctx context.Context) (int, error) {
	var count int
	err := t.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM lockout_states WHERE locked_until IS NOT NULL AND locked_until > ?",
		t.now().UTC().Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting lockouts: %w", err)
	}
	return count, nil
}

// RemainingAttempts returns how many more failures are allowed before the
// first lockout window, given the current counter.
func RemainingAttempts(failedAttempts int) int {
	remaining := maxFreeAttempts - failedAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// lockoutWindow maps a failure count to the end of its lockout window.
// Returns nil while the count is below the first threshold. The ladder is
// monotonic: windows only lengthen as consecutive failures accumulate.
func lockoutWindow(failedAttempts int, now time.Time) *time.Time {
	var until time.Time
	switch {
	case failedAttempts >= permanentThreshold:
		until = permanentLockout
	case failedAttempts >= mediumLockoutThreshold:
		until = now.Add(mediumLockoutWindow)
	case failedAttempts >= shortLockoutThreshold:
		until = now.Add(shortLockoutWindow)
	default:
		return nil
	}
	return &until
}
