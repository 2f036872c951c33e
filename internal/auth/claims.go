package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token purpose discriminators. Access tokens carry no purpose claim;
// every other token type does, and every verifier checks it. This is what
// stops a narrow two-factor bridging token from passing as a full access
// token anywhere else, even though both carry valid signatures.
const (
	PurposeRefresh   = "refresh"
	PurposeTwoFactor = "2fa_verify"
)

// Default token lifetimes.
const (
	defaultAccessTTL    = 15 * time.Minute
	defaultRefreshTTL   = 7 * 24 * time.Hour
	defaultTwoFactorTTL = 5 * time.Minute
)

// AccessClaims carries identity and authorisation context for one request:
// who is acting, as what role, inside which tenant, bound to which session.
type AccessClaims struct {
	jwt.RegisteredClaims
	Role         Role     `json:"role"`
	SessionID    string   `json:"sid"`
	ActiveTenant string   `json:"tid,omitempty"`
	TenantIDs    []string `json:"tenants,omitempty"`
	Purpose      string   `json:"purpose,omitempty"` // always empty on real access tokens
}

// RefreshClaims carry only a subject and a session ID. No business claims
// on purpose: everything else must be re-resolved against the session row
// on use, which is what makes an otherwise-unrevocable signed token
// effectively revocable.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Purpose   string `json:"purpose"`
}

// TwoFactorClaims bridge "primary credential verified" and "fully
// authenticated". Their sole claim of interest is that step one passed.
type TwoFactorClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// TokenConfig configures the token service.
type TokenConfig struct {
	Secret       string
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	TwoFactorTTL time.Duration
}

// TokenService signs and verifies the three token types. It is a pure
// cryptographic component: no storage access, safe for concurrent use.
type TokenService struct {
	secret       []byte
	issuer       string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	twoFactorTTL time.Duration
	now          func() time.Time
}

// NewTokenService creates a token service. Zero TTLs fall back to the
// defaults (15 min access, 7 day refresh, 5 min two-factor).
func NewTokenService(cfg TokenConfig) *TokenService {
	s := &TokenService{
		secret:       []byte(cfg.Secret),
		issuer:       cfg.Issuer,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		twoFactorTTL: cfg.TwoFactorTTL,
		now:          time.Now,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = defaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = defaultRefreshTTL
	}
	if s.twoFactorTTL <= 0 {
		s.twoFactorTTL = defaultTwoFactorTTL
	}
	return s
}

// AccessTTL returns the configured access-token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// SignAccessToken stamps issuer, issue time, expiry, and a token ID onto
// the given claims and signs them. Callers fill Subject, Role, SessionID,
// ActiveTenant, and TenantIDs.
func (s *TokenService) SignAccessToken(claims AccessClaims) (string, error) {
	now := s.now()
	claims.Issuer = s.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.accessTTL))
	claims.ID = uuid.NewString()
	claims.Purpose = ""

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// SignRefreshToken creates a refresh token bound to one session row.
func (s *TokenService) SignRefreshToken(principalID, sessionID string) (string, error) {
	now := s.now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			ID:        uuid.NewString(),
		},
		SessionID: sessionID,
		Purpose:   PurposeRefresh,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, nil
}

// SignTwoFactorToken creates the short-lived intermediate token issued
// when a correct primary credential meets an enabled second factor.
func (s *TokenService) SignTwoFactorToken(principalID string) (string, error) {
	now := s.now()
	claims := TwoFactorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.twoFactorTTL)),
			ID:        uuid.NewString(),
		},
		Purpose: PurposeTwoFactor,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing two-factor token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature, issuer, and expiry, and rejects any
// token carrying a purpose discriminator. Every failure collapses to
// ErrTokenInvalid — callers get no signal about which check failed.
func (s *TokenService) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := s.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.Role == "" || claims.Purpose != "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// VerifyRefreshToken checks signature, issuer, expiry, and the refresh
// purpose. The referenced session must still be resolved by the caller —
// a verified refresh token alone proves nothing about validity.
func (s *TokenService) VerifyRefreshToken(tokenString string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := s.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.Purpose != PurposeRefresh {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// VerifyTwoFactorToken checks signature, issuer, expiry, and the 2fa_verify
// purpose. Only the two-factor completion endpoints accept this token.
func (s *TokenService) VerifyTwoFactorToken(tokenString string) (*TwoFactorClaims, error) {
	var claims TwoFactorClaims
	if err := s.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.Purpose != PurposeTwoFactor {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

// parse runs the shared signature/issuer/expiry validation into claims.
func (s *TokenService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
