package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/logging"
)

// AuditFunc receives one audit event per security-relevant outcome. The
// service calls it inline; sinks that might block should buffer.
type AuditFunc func(action, entityType, entityID, principalID, source string, details map[string]any)

// Metadata is per-request client context recorded on sessions and audit
// entries.
type Metadata struct {
	IP        string
	UserAgent string
}

// LoginResult is the outcome of a successful credential exchange. When
// TwoFactorRequired is set, only TwoFactorToken is populated and no
// session exists yet.
type LoginResult struct {
	Principal         *Principal
	SessionID         string
	AccessToken       string
	RefreshToken      string
	ActiveTenantID    string
	Role              Role
	TwoFactorRequired bool
	TwoFactorToken    string
}

// Service wires credentials, lockout tracking, two-factor, sessions, and
// tokens into the login flows. It owns the ordering rules: lockout check
// before credential compare, failure recorded before the error returns,
// session replaced only after every gate has passed.
type Service struct {
	principals PrincipalRepository
	tenants    TenantRepository
	sessions   SessionRepository
	lockouts   *LockoutTracker
	twoFactor  *TwoFactorManager
	tokens     *TokenService
	logger     *logging.Logger
	audit      AuditFunc
	now        func() time.Time
}

// NewService creates the auth service. audit may be nil.
func NewService(
	principals PrincipalRepository,
	tenants TenantRepository,
	sessions SessionRepository,
	lockouts *LockoutTracker,
	twoFactor *TwoFactorManager,
	tokens *TokenService,
	logger *logging.Logger,
	audit AuditFunc,
) *Service {
	return &Service{
		principals: principals,
		tenants:    tenants,
		sessions:   sessions,
		lockouts:   lockouts,
		twoFactor:  twoFactor,
		tokens:     tokens,
		logger:     logger,
		audit:      audit,
		now:        time.Now,
	}
}

// TwoFactor exposes the two-factor manager for settings handlers.
func (s *Service) TwoFactor() *TwoFactorManager { return s.twoFactor }

// Tokens exposes the token service for middleware.
func (s *Service) Tokens() *TokenService { return s.tokens }

// Lockouts exposes the lockout tracker for admin handlers.
func (s *Service) Lockouts() *LockoutTracker { return s.lockouts }

// Login authenticates an account holder by email and password.
//
// Order matters here. The lockout gate runs before the password compare so
// a locked account rejects even the correct password. A failed compare is
// recorded before the error returns, so the caller can never race the
// counter. The session is only replaced once every gate — including the
// two-factor branch — has passed, so a login that still owes a code does
// not evict the existing session.
func (s *Service) Login(ctx context.Context, email, password string, meta Metadata) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			// Run a throwaway hash compare so unknown emails cost the
			// same wall time as wrong passwords.
			_, _ = VerifyPassword(password, dummyPasswordHash) //nolint:errcheck
			s.emit("auth.login.failed", "principal", "", "", meta, map[string]any{"email": email, "reason": "unknown_email"})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !principal.IsActive {
		s.emit("auth.login.failed", "principal", principal.ID, principal.ID, meta, map[string]any{"reason": "inactive"})
		return nil, ErrInvalidCredentials
	}
	if principal.PasswordHash == "" {
		// Employee profiles have no password; they use the kiosk flow.
		s.emit("auth.login.failed", "principal", principal.ID, principal.ID, meta, map[string]any{"reason": "no_password"})
		return nil, ErrInvalidCredentials
	}

	if err := s.lockouts.Check(ctx, principal.ID, ScopePassword); err != nil {
		s.emit("auth.login.locked", "principal", principal.ID, principal.ID, meta, map[string]any{"scope": string(ScopePassword)})
		return nil, err
	}

	ok, err := VerifyPassword(password, principal.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, s.recordFailure(ctx, principal.ID, ScopePassword, meta)
	}

	if err := s.lockouts.Reset(ctx, principal.ID, ScopePassword); err != nil {
		return nil, err
	}

	enabled, err := s.twoFactor.Enabled(ctx, principal.ID)
	if err != nil {
		return nil, err
	}
	if enabled {
		token, err := s.tokens.SignTwoFactorToken(principal.ID)
		if err != nil {
			return nil, err
		}
		s.emit("auth.login.2fa_pending", "principal", principal.ID, principal.ID, meta, nil)
		return &LoginResult{
			Principal:         principal,
			TwoFactorRequired: true,
			TwoFactorToken:    token,
		}, nil
	}

	return s.issueSession(ctx, principal, meta, "password")
}

// CompleteTwoFactor finishes a login that stopped at the two-factor gate.
// The token proves the password already passed; the code proves the second
// factor. Backup codes are accepted in place of a TOTP code.
func (s *Service) CompleteTwoFactor(ctx context.Context, twoFactorToken, code string, meta Metadata) (*LoginResult, error) {
	claims, err := s.tokens.VerifyTwoFactorToken(twoFactorToken)
	if err != nil {
		return nil, err
	}

	principal, err := s.principals.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !principal.IsActive {
		return nil, ErrTokenInvalid
	}

	// Wrong codes count against the password scope: the two-factor prompt
	// is the second half of a password login, not its own modality.
	if err := s.lockouts.Check(ctx, principal.ID, ScopePassword); err != nil {
		return nil, err
	}

	if err := s.twoFactor.VerifyCode(ctx, principal.ID, code); err != nil {
		if errors.Is(err, ErrBadTwoFactorCode) {
			// Fall back to backup codes before declaring failure.
			_, bcErr := s.twoFactor.ConsumeBackupCode(ctx, principal.ID, code)
			switch {
			case bcErr == nil:
				s.emit("auth.login.backup_code_used", "principal", principal.ID, principal.ID, meta, nil)
				if err := s.lockouts.Reset(ctx, principal.ID, ScopePassword); err != nil {
					return nil, err
				}
				return s.issueSession(ctx, principal, meta, "backup_code")
			case errors.Is(bcErr, ErrBadTwoFactorCode), errors.Is(bcErr, ErrTwoFactorNotSetUp):
				// Genuinely wrong code; counts against the lockout.
				return nil, s.recordFailure(ctx, principal.ID, ScopePassword, meta)
			default:
				// Storage trouble is not the caller's fault and must not
				// burn one of their attempts.
				return nil, bcErr
			}
		}
		return nil, err
	}

	if err := s.lockouts.Reset(ctx, principal.ID, ScopePassword); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, principal, meta, "totp")
}

// PinLogin authenticates a kiosk employee by profile ID and PIN. It issues
// a real session, same as a password login; only the credential differs.
func (s *Service) PinLogin(ctx context.Context, principalID, pin string, meta Metadata) (*LoginResult, error) {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !principal.IsActive {
		return nil, ErrInvalidCredentials
	}
	if principal.PINHash == "" {
		return nil, ErrPINNotSet
	}

	if err := s.lockouts.Check(ctx, principal.ID, ScopeKioskPIN); err != nil {
		s.emit("auth.pin_login.locked", "principal", principal.ID, principal.ID, meta, map[string]any{"scope": string(ScopeKioskPIN)})
		return nil, err
	}

	ok, err := VerifyPassword(pin, principal.PINHash)
	if err != nil {
		return nil, fmt.Errorf("verifying pin: %w", err)
	}
	if !ok {
		return nil, s.recordFailure(ctx, principal.ID, ScopeKioskPIN, meta)
	}

	if err := s.lockouts.Reset(ctx, principal.ID, ScopeKioskPIN); err != nil {
		return nil, err
	}
	return s.issueSession(ctx, principal, meta, "kiosk_pin")
}

// ManagerOverride verifies a manager's PIN to approve a point-of-sale
// action on someone else's terminal. The manager must hold pos:override in
// the tenant; no session is created or replaced — the approval is the
// entire outcome.
func (s *Service) ManagerOverride(ctx context.Context, tenantID, managerID, pin string, meta Metadata) (*Principal, error) {
	manager, err := s.principals.GetByID(ctx, managerID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !manager.IsActive {
		return nil, ErrInvalidCredentials
	}
	if manager.PINHash == "" {
		return nil, ErrPINNotSet
	}

	membership, err := s.tenants.GetMembership(ctx, manager.ID, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotAMember) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if !HasPermission(membership.Role, PermPOSOverride) {
		return nil, ErrForbidden
	}

	if err := s.lockouts.Check(ctx, manager.ID, ScopeManagerPIN); err != nil {
		s.emit("auth.override.locked", "principal", manager.ID, manager.ID, meta, map[string]any{"scope": string(ScopeManagerPIN)})
		return nil, err
	}

	ok, err := VerifyPassword(pin, manager.PINHash)
	if err != nil {
		return nil, fmt.Errorf("verifying manager pin: %w", err)
	}
	if !ok {
		return nil, s.recordFailure(ctx, manager.ID, ScopeManagerPIN, meta)
	}

	if err := s.lockouts.Reset(ctx, manager.ID, ScopeManagerPIN); err != nil {
		return nil, err
	}

	s.emit("auth.override.approved", "tenant", tenantID, manager.ID, meta, map[string]any{"manager_id": manager.ID})
	return manager, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// session row is the authority: a refresh token whose session no longer
// exists, or no longer matches its hash, is dead regardless of signature.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta Metadata) (*LoginResult, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if session.PrincipalID != claims.Subject || session.RefreshTokenHash != HashToken(refreshToken) {
		return nil, ErrTokenInvalid
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.sessions.Delete(ctx, session.ID, session.PrincipalID) //nolint:errcheck // best-effort cleanup
		return nil, ErrTokenInvalid
	}

	principal, err := s.principals.GetByID(ctx, session.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !principal.IsActive {
		return nil, ErrTokenInvalid
	}

	tenantID, role, tenantIDs, err := s.resolveTenantContext(ctx, principal)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.signAccess(principal, session.ID, tenantID, role, tenantIDs)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateAccessHash(ctx, session.ID, HashToken(accessToken)); err != nil {
		return nil, err
	}

	return &LoginResult{
		Principal:      principal,
		SessionID:      session.ID,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ActiveTenantID: tenantID,
		Role:           role,
	}, nil
}

// Logout deletes the session, killing both tokens at once.
func (s *Service) Logout(ctx context.Context, principalID, sessionID string, meta Metadata) error {
	err := s.sessions.Delete(ctx, sessionID, principalID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	s.emit("auth.logout", "session", sessionID, principalID, meta, nil)
	return nil
}

// SwitchTenant re-issues the access token with a different active tenant.
// The refresh token is untouched; only the access context changes.
func (s *Service) SwitchTenant(ctx context.Context, principalID, sessionID, tenantID string) (*LoginResult, error) {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		return nil, err
	}

	membership, err := s.tenants.GetMembership(ctx, principalID, tenantID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.PrincipalID != principalID {
		return nil, ErrSessionNotFound
	}

	memberships, err := s.tenants.ListMembershipsByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	tenantIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		tenantIDs = append(tenantIDs, m.TenantID)
	}

	accessToken, err := s.signAccess(principal, session.ID, tenantID, membership.Role, tenantIDs)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateAccessHash(ctx, session.ID, HashToken(accessToken)); err != nil {
		return nil, err
	}

	return &LoginResult{
		Principal:      principal,
		SessionID:      session.ID,
		AccessToken:    accessToken,
		ActiveTenantID: tenantID,
		Role:           membership.Role,
	}, nil
}

// ListSessions returns the principal's sessions. With single-session
// enforcement this is zero or one rows, but the shape allows more.
func (s *Service) ListSessions(ctx context.Context, principalID string) ([]Session, error) {
	return s.sessions.ListByPrincipal(ctx, principalID)
}

// RevokeSession deletes one of the principal's own sessions by ID.
func (s *Service) RevokeSession(ctx context.Context, principalID, sessionID string, meta Metadata) error {
	if err := s.sessions.Delete(ctx, sessionID, principalID); err != nil {
		return err
	}
	s.emit("auth.session.revoked", "session", sessionID, principalID, meta, nil)
	return nil
}

// RevokeOtherSessions deletes every session except the current one.
func (s *Service) RevokeOtherSessions(ctx context.Context, principalID, currentSessionID string, meta Metadata) (int64, error) {
	n, err := s.sessions.DeleteAllExcept(ctx, principalID, currentSessionID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.emit("auth.session.revoked_others", "principal", principalID, principalID, meta, map[string]any{"count": n})
	}
	return n, nil
}

// CurrentSession resolves the session a bearer access token belongs to by
// hash comparison. Returns ErrSessionNotFound when the token is stale.
func (s *Service) CurrentSession(ctx context.Context, accessToken string) (*Session, error) {
	return s.sessions.GetByAccessHash(ctx, HashToken(accessToken))
}

// issueSession evicts any existing session and creates the new one, then
// signs both tokens against it. All single-session enforcement lives here.
func (s *Service) issueSession(ctx context.Context, principal *Principal, meta Metadata, method string) (*LoginResult, error) {
	tenantID, role, tenantIDs, err := s.resolveTenantContext(ctx, principal)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &Session{
		ID:          "ses-" + uuid.NewString()[:16],
		PrincipalID: principal.ID,
		UserAgent:   meta.UserAgent,
		IP:          meta.IP,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.tokens.RefreshTTL()),
	}

	accessToken, err := s.signAccess(principal, session.ID, tenantID, role, tenantIDs)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.SignRefreshToken(principal.ID, session.ID)
	if err != nil {
		return nil, err
	}

	session.AccessTokenHash = HashToken(accessToken)
	session.RefreshTokenHash = HashToken(refreshToken)

	if err := s.sessions.Replace(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("session issued",
		"principal_id", principal.ID,
		"session_id", session.ID,
		"method", method,
	)
	s.emit("auth.login.success", "session", session.ID, principal.ID, meta, map[string]any{"method": method})

	return &LoginResult{
		Principal:      principal,
		SessionID:      session.ID,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ActiveTenantID: tenantID,
		Role:           role,
	}, nil
}

// resolveTenantContext picks the active tenant (default first, then oldest
// membership) and the role the principal acts as inside it. A principal
// with no memberships gets an empty tenant context and their base role.
func (s *Service) resolveTenantContext(ctx context.Context, principal *Principal) (tenantID string, role Role, tenantIDs []string, err error) {
	memberships, err := s.tenants.ListMembershipsByPrincipal(ctx, principal.ID)
	if err != nil {
		return "", "", nil, err
	}
	if len(memberships) == 0 {
		return "", principal.Role, nil, nil
	}

	tenantIDs = make([]string, 0, len(memberships))
	active := memberships[0]
	for _, m := range memberships {
		tenantIDs = append(tenantIDs, m.TenantID)
		if principal.DefaultTenantID != "" && m.TenantID == principal.DefaultTenantID {
			active = m
		}
	}
	return active.TenantID, active.Role, tenantIDs, nil
}

func (s *Service) signAccess(principal *Principal, sessionID, tenantID string, role Role, tenantIDs []string) (string, error) {
	claims := AccessClaims{
		Role:         role,
		SessionID:    sessionID,
		ActiveTenant: tenantID,
		TenantIDs:    tenantIDs,
	}
	claims.Subject = principal.ID
	return s.tokens.SignAccessToken(claims)
}

// recordFailure books a failed attempt and translates the resulting state
// into the error the caller returns: LockedError once a lock engaged,
// AttemptError with the remaining count while attempts are still free.
func (s *Service) recordFailure(ctx context.Context, principalID string, scope LockoutScope, meta Metadata) error {
	state, err := s.lockouts.RecordFailure(ctx, principalID, scope)
	if err != nil {
		return err
	}

	details := map[string]any{
		"scope":           string(scope),
		"failed_attempts": state.FailedAttempts,
	}
	s.emit("auth.attempt.failed", "principal", principalID, principalID, meta, details)

	if state.LockedUntil != nil {
		s.logger.Warn("lockout engaged",
			"principal_id", principalID,
			"scope", string(scope),
			"failed_attempts", state.FailedAttempts,
			"locked_until", state.LockedUntil.Format(time.RFC3339),
		)
		return &LockedError{Scope: scope, Until: *state.LockedUntil}
	}
	return &AttemptError{Remaining: RemainingAttempts(state.FailedAttempts)}
}

func (s *Service) emit(action, entityType, entityID, principalID string, meta Metadata, details map[string]any) {
	if s.audit == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	if meta.IP != "" {
		details["ip"] = meta.IP
	}
	s.audit(action, entityType, entityID, principalID, "auth", details)
}

// dummyPasswordHash is a valid argon2id hash of a random value, compared
// against when an email is unknown so timing does not reveal existence.
var dummyPasswordHash = func() string {
	h, err := HashPassword(uuid.NewString())
	if err != nil {
		panic(fmt.Sprintf("hashing dummy password: %v", err))
	}
	return h
}()
