package auth

import (
	"errors"
	"regexp"
	"time"
)

// emailPattern is a pragmatic format check; deliverability is not our problem.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// maxEmailLength is the maximum allowed email length (RFC 5321 limit).
const maxEmailLength = 254

// IsValidEmail checks if an email address meets format requirements.
func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// pinPattern defines the valid format for kiosk and manager PINs: 4-6 digits.
var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

// IsValidPIN checks if a PIN meets format requirements.
// PINs are short on purpose — the lockout tracker is what makes them safe.
func IsValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// Role represents an authorisation tier in the system.
// Roles form a strict total order from least to most privileged:
// employee < member < admin < owner.
type Role string

const (
	// RoleEmployee is a kiosk staff profile: clocks in, operates the
	// point-of-sale terminal. Authenticates by PIN, never by password.
	RoleEmployee Role = "employee"

	// RoleMember is a standard account holder: works with invoices and
	// customers inside the tenants they belong to.
	RoleMember Role = "member"

	// RoleAdmin manages the team, payroll, and reports for a tenant, and
	// can approve point-of-sale overrides with their manager PIN.
	RoleAdmin Role = "admin"

	// RoleOwner has everything admin can do plus billing and tenant
	// administration. Every tenant has at least one.
	RoleOwner Role = "owner"
)

// ValidRoles is the set of assignable roles, in hierarchy order.
var ValidRoles = []Role{RoleEmployee, RoleMember, RoleAdmin, RoleOwner}

// IsValidRole returns true if the role is one of the defined tiers.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// PrincipalKind distinguishes the two authenticable identity types.
type PrincipalKind string

const (
	// KindAccount is a primary account holder: email + password login,
	// optional two-factor, full web access.
	KindAccount PrincipalKind = "account"

	// KindEmployee is a kiosk employee profile: PIN login at a shared
	// terminal, no email or password of its own.
	KindEmployee PrincipalKind = "employee"
)

// Principal represents an authenticable identity — either a primary
// account holder or a kiosk employee profile.
type Principal struct {
	ID              string        `json:"id"`
	Email           string        `json:"email,omitempty"`
	DisplayName     string        `json:"display_name"`
	PasswordHash    string        `json:"-"` // never serialised
	PINHash         string        `json:"-"` // never serialised
	Kind            PrincipalKind `json:"kind"`
	Role            Role          `json:"role"`
	IsActive        bool          `json:"is_active"`
	DefaultTenantID string        `json:"default_tenant_id,omitempty"`
	CreatedBy       string        `json:"created_by,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Tenant represents one business workspace on the platform.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TenantMembership grants a principal a role within one tenant.
// The membership role is what the principal acts as inside that tenant;
// Principal.Role is only the default applied when memberships are created.
type TenantMembership struct {
	PrincipalID string    `json:"principal_id"`
	TenantID    string    `json:"tenant_id"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is the durable source of truth for login validity. Tokens are
// bearer proofs referencing it: the refresh token carries only the session
// ID and is dead the moment this row is gone. At most one live session
// exists per principal.
//
// Token values are stored as SHA-256 hashes only, so a leaked database row
// never yields a usable credential. "Current session" is identified by
// hashing the presented bearer token and comparing against
// AccessTokenHash — never by trusting a client-supplied session ID.
type Session struct {
	ID               string    `json:"id"`
	PrincipalID      string    `json:"principal_id"`
	AccessTokenHash  string    `json:"-"` // never serialised
	RefreshTokenHash string    `json:"-"` // never serialised
	UserAgent        string    `json:"user_agent,omitempty"`
	IP               string    `json:"ip,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// LockoutScope is the counter space a failed attempt lands in. Each login
// modality escalates independently: wrong kiosk PINs never lock the
// account's password, and vice versa.
type LockoutScope string

const (
	// ScopePassword covers primary email + password logins.
	ScopePassword LockoutScope = "password"

	// ScopeKioskPIN covers employee PIN entry at a kiosk terminal.
	ScopeKioskPIN LockoutScope = "kiosk_pin"

	// ScopeManagerPIN covers manager PIN approval of point-of-sale overrides.
	ScopeManagerPIN LockoutScope = "manager_pin"
)

// LockoutState tracks consecutive authentication failures for one
// principal in one scope. Created lazily on first failure, escalated on
// each subsequent failure, reset to zero on any success.
type LockoutState struct {
	PrincipalID    string       `json:"principal_id"`
	Scope          LockoutScope `json:"scope"`
	FailedAttempts int          `json:"failed_attempts"`
	LockedUntil    *time.Time   `json:"locked_until,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TwoFactorStatus tracks whether a stored secret is actually enforced.
type TwoFactorStatus string

const (
	// TwoFactorPending means setup ran and the secret is persisted, but the
	// holder has not yet proven they can produce a code. Login does not
	// require a second factor in this state.
	TwoFactorPending TwoFactorStatus = "pending"

	// TwoFactorEnabled means a code check has succeeded at least once and
	// login now demands the second factor.
	TwoFactorEnabled TwoFactorStatus = "enabled"
)

// TwoFactorConfig holds a principal's TOTP secret and its enforcement
// status. Backup codes live in their own table as one-way hashes.
type TwoFactorConfig struct {
	PrincipalID string          `json:"principal_id"`
	Secret      string          `json:"-"` // never serialised
	Status      TwoFactorStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

// Sentinel errors for auth operations.
var (
	// ErrInvalidCredentials is returned for both unknown accounts and wrong
	// credentials — callers must not be able to tell which half failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalInactive = errors.New("principal is inactive")
	ErrEmailExists       = errors.New("email already registered")
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrNotAMember        = errors.New("principal is not a member of tenant")
	ErrAccountLocked     = errors.New("account locked")
	ErrTokenInvalid      = errors.New("invalid token")
	ErrSessionNotFound   = errors.New("session not found")
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	ErrTwoFactorNotSetUp = errors.New("two-factor is not set up")
	ErrTwoFactorConflict = errors.New("two-factor already in requested state")
	ErrBadTwoFactorCode  = errors.New("two-factor code rejected")
	ErrPINNotSet         = errors.New("principal has no PIN configured")
	ErrForbidden         = errors.New("insufficient permissions")
	ErrSelfModification  = errors.New("cannot modify own account in this way")
)
