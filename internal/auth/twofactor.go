package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters. SHA-1, 6 digits, 30-second period is what every
// mainstream authenticator app supports out of the box; deviating breaks
// enrolment silently for some of them.
const (
	totpPeriod uint = 30
	totpSkew   uint = 1
)

// Backup code shape: two groups of four from an unambiguous alphabet,
// shown once as XXXX-XXXX.
const (
	backupCodeCount    = 10
	backupCodeGroupLen = 4
	backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	// backupCodeLowWater is the remaining-count threshold at which
	// responses carry a regeneration warning.
	backupCodeLowWater = 3
)

// TwoFactorSetup is what the holder sees exactly once: the secret, the
// provisioning URL for authenticator apps, and the cleartext backup codes.
// Only hashes survive this value.
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	OtpauthURL  string   `json:"otpauthUrl"`
	BackupCodes []string `json:"backupCodes"`
}

// TwoFactorManager implements TOTP secret/backup-code generation and
// verification. It bridges "primary credential verified" and "fully
// authenticated" together with the token service's purpose-scoped token.
type TwoFactorManager struct {
	repo   TwoFactorRepository
	issuer string
	now    func() time.Time
}

// NewTwoFactorManager creates a two-factor manager. The issuer is the
// label shown in authenticator apps.
func NewTwoFactorManager(repo TwoFactorRepository, issuer string) *TwoFactorManager {
	return &TwoFactorManager{repo: repo, issuer: issuer, now: time.Now}
}

// Setup generates a fresh TOTP secret and backup-code batch and persists
// them with status pending. Enforcement does not begin until Confirm sees
// the first valid code — persisting a secret the holder never enrolled
// must not lock them out of their account.
//
// Returns ErrTwoFactorConflict when a config is already enabled: re-setup
// would downgrade it to pending and strip enforcement with nothing but an
// active session. Disable (with fresh proof) first, then set up again.
func (m *TwoFactorManager) Setup(ctx context.Context, principalID, accountName string) (*TwoFactorSetup, error) {
	existing, err := m.repo.GetConfig(ctx, principalID)
	switch {
	case err == nil:
		if existing.Status == TwoFactorEnabled {
			return nil, ErrTwoFactorConflict
		}
	case errors.Is(err, ErrTwoFactorNotSetUp):
		// First enrolment, or a pending setup being restarted.
	default:
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generating totp secret: %w", err)
	}

	codes, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	cfg := &TwoFactorConfig{
		PrincipalID: principalID,
		Secret:      key.Secret(),
		Status:      TwoFactorPending,
	}
	if err := m.repo.UpsertConfig(ctx, cfg); err != nil {
		return nil, err
	}
	if err := m.repo.ReplaceBackupCodes(ctx, principalID, hashes); err != nil {
		return nil, err
	}

	return &TwoFactorSetup{
		Secret:      key.Secret(),
		OtpauthURL:  key.URL(),
		BackupCodes: codes,
	}, nil
}

// Confirm verifies a first code against a pending secret and flips the
// config to enabled. Returns ErrTwoFactorConflict if already enabled.
func (m *TwoFactorManager) Confirm(ctx context.Context, principalID, code string) error {
	cfg, err := m.repo.GetConfig(ctx, principalID)
	if err != nil {
		return err
	}
	if cfg.Status == TwoFactorEnabled {
		return ErrTwoFactorConflict
	}
	if !m.validateCode(code, cfg.Secret) {
		return ErrBadTwoFactorCode
	}
	return m.repo.MarkEnabled(ctx, principalID, m.now().UTC())
}

// Enabled reports whether the principal has an enforced second factor.
// A pending setup does not count.
func (m *TwoFactorManager) Enabled(ctx context.Context, principalID string) (bool, error) {
	cfg, err := m.repo.GetConfig(ctx, principalID)
	if err != nil {
		if err == ErrTwoFactorNotSetUp {
			return false, nil
		}
		return false, err
	}
	return cfg.Status == TwoFactorEnabled, nil
}

// VerifyCode checks a time-based code against the enabled secret.
func (m *TwoFactorManager) VerifyCode(ctx context.Context, principalID, code string) error {
	cfg, err := m.repo.GetConfig(ctx, principalID)
	if err != nil {
		return err
	}
	if cfg.Status != TwoFactorEnabled {
		return ErrTwoFactorNotSetUp
	}
	if !m.validateCode(code, cfg.Secret) {
		return ErrBadTwoFactorCode
	}
	return nil
}

// ConsumeBackupCode normalizes and hashes the supplied code, then
// atomically removes the matching hash. Each code succeeds exactly once.
// Returns the remaining count so callers can prompt for regeneration when
// it runs low.
func (m *TwoFactorManager) ConsumeBackupCode(ctx context.Context, principalID, code string) (int, error) {
	enabled, err := m.Enabled(ctx, principalID)
	if err != nil {
		return 0, err
	}
	if !enabled {
		return 0, ErrTwoFactorNotSetUp
	}

	hash := HashToken(NormalizeBackupCode(code))
	consumed, remaining, err := m.repo.ConsumeBackupCode(ctx, principalID, hash)
	if err != nil {
		return 0, err
	}
	if !consumed {
		return remaining, ErrBadTwoFactorCode
	}
	return remaining, nil
}

// RegenerateBackupCodes replaces the backup-code batch and returns the new
// cleartext codes, shown once.
func (m *TwoFactorManager) RegenerateBackupCodes(ctx context.Context, principalID string) ([]string, error) {
	enabled, err := m.Enabled(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, ErrTwoFactorNotSetUp
	}

	codes, hashes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := m.repo.ReplaceBackupCodes(ctx, principalID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

// Disable clears the secret and backup codes. Callers must have verified
// fresh proof of identity first (current password or a valid code) — an
// active session alone is not enough, or a hijacked session could silently
// strip the second factor.
func (m *TwoFactorManager) Disable(ctx context.Context, principalID string) error {
	return m.repo.DeleteConfig(ctx, principalID)
}

// BackupCodesRemaining returns the unused backup-code count.
func (m *TwoFactorManager) BackupCodesRemaining(ctx context.Context, principalID string) (int, error) {
	return m.repo.CountBackupCodes(ctx, principalID)
}

// validateCode runs the TOTP check at the manager's clock.
func (m *TwoFactorManager) validateCode(code, secret string) bool {
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, m.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// NormalizeBackupCode uppercases a backup code and strips separators and
// whitespace, so "a2b4-c6d8" and "A2B4 C6D8" hash identically.
func NormalizeBackupCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// generateBackupCodes returns a cleartext batch and the matching hash set.
func generateBackupCodes() (codes, hashes []string, err error) {
	codes = make([]string, 0, backupCodeCount)
	hashes = make([]string, 0, backupCodeCount)

	for i := 0; i < backupCodeCount; i++ {
		code, err := generateBackupCode()
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, HashToken(NormalizeBackupCode(code)))
	}

	return codes, hashes, nil
}

// generateBackupCode builds one XXXX-XXXX code from the unambiguous alphabet.
func generateBackupCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(backupCodeAlphabet)))

	var b strings.Builder
	for i := 0; i < backupCodeGroupLen*2; i++ {
		if i == backupCodeGroupLen {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generating backup code: %w", err)
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
