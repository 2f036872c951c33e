package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// currentCode computes the TOTP code for a secret at the manager's clock.
func currentCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generating test code: %v", err)
	}
	return code
}

func newTestTwoFactorManager(t *testing.T) (*TwoFactorManager, *Principal) {
	t.Helper()
	db := testDB(t)
	p := seedTestAccount(t, db, "totp@example.com", RoleMember)
	return NewTwoFactorManager(NewTwoFactorRepository(db), "YardBooks Test"), p
}

func TestTwoFactorSetupAndConfirm(t *testing.T) {
	mgr, p := newTestTwoFactorManager(t)
	ctx := context.Background()

	setup, err := mgr.Setup(ctx, p.ID, p.Email)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if setup.Secret == "" {
		t.Fatal("Setup should return a secret")
	}
	if !strings.Contains(setup.OtpauthURL, "otpauth://totp/") {
		t.Errorf("OtpauthURL = %q, want otpauth URL", setup.OtpauthURL)
	}
	if len(setup.BackupCodes) != backupCodeCount {
		t.Fatalf("backup codes = %d, want %d", len(setup.BackupCodes), backupCodeCount)
	}
	for _, code := range setup.BackupCodes {
		if len(code) != 9 || code[4] != '-' {
			t.Errorf("backup code %q should be XXXX-XXXX", code)
		}
	}

	// Pending setup does not enforce the second factor.
	enabled, err := mgr.Enabled(ctx, p.ID)
	if err != nil {
		t.Fatalf("Enabled() error = %v", err)
	}
	if enabled {
		t.Error("pending setup should not report enabled")
	}

	// A wrong code does not confirm.
	if err := mgr.Confirm(ctx, p.ID, "000000"); !errors.Is(err, ErrBadTwoFactorCode) {
		t.Errorf("Confirm(wrong code) error = %v, want ErrBadTwoFactorCode", err)
	}

	if err := mgr.Confirm(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	enabled, err = mgr.Enabled(ctx, p.ID)
	if err != nil {
		t.Fatalf("Enabled() error = %v", err)
	}
	if !enabled {
		t.Error("confirmed setup should report enabled")
	}

	// Confirming again is a conflict.
	if err := mgr.Confirm(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); !errors.Is(err, ErrTwoFactorConflict) {
		t.Errorf("second Confirm() error = %v, want ErrTwoFactorConflict", err)
	}
}

func TestTwoFactorVerifyCode(t *testing.T) {
	mgr, p := newTestTwoFactorManager(t)
	ctx := context.Background()

	// Not set up at all.
	if err := mgr.VerifyCode(ctx, p.ID, "123456"); !errors.Is(err, ErrTwoFactorNotSetUp) {
		t.Errorf("VerifyCode(no setup) error = %v, want ErrTwoFactorNotSetUp", err)
	}

	setup, err := mgr.Setup(ctx, p.ID, p.Email)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	// Pending is not enough to verify against.
	if err := mgr.VerifyCode(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); !errors.Is(err, ErrTwoFactorNotSetUp) {
		t.Errorf("VerifyCode(pending) error = %v, want ErrTwoFactorNotSetUp", err)
	}

	if err := mgr.Confirm(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if err := mgr.VerifyCode(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); err != nil {
		t.Errorf("VerifyCode(valid) error = %v", err)
	}
	if err := mgr.VerifyCode(ctx, p.ID, "000000"); !errors.Is(err, ErrBadTwoFactorCode) {
		t.Errorf("VerifyCode(wrong) error = %v, want ErrBadTwoFactorCode", err)
	}
}

func TestTwoFactorVerifyCode_ClockSkew(t *testing.T) {
	mgr, p := newTestTwoFactorManager(t)
	ctx := context.Background()

	setup, err := mgr.Setup(ctx, p.ID, p.Email)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := mgr.Confirm(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	base := time.Now()
	mgr.now = func() time.Time { return base }

	// One period behind or ahead is inside the skew window.
	if err := mgr.VerifyCode(ctx, p.ID, currentCode(t, setup.Secret, base.Add(-30*time.Second))); err != nil {
		t.Errorf("code one period behind rejected: %v", err)
	}
	if err := mgr.VerifyCode(ctx, p.ID, currentCode(t, setup.Secret, base.Add(30*time.Second))); err != nil {
		t.Errorf("code one period ahead rejected: %v", err)
	}

	// Three periods away is outside.
	if err := mgr.VerifyCode(ctx, p.ID, currentCode(t, setup.Secret, base.Add(-90*time.Second))); !errors.Is(err, ErrBadTwoFactorCode) {
		t.Errorf("stale code error = %v, want ErrBadTwoFactorCode", err)
	}
}

func TestBackupCodes_SingleUse(t *testing.T) {
	mgr, p := newTestTwoFactorManager(t)
	ctx := context.Background()

	setup, err := mgr.Setup(ctx, p.ID, p.Email)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := mgr.Confirm(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	code := setup.BackupCodes[0]

	remaining, err := mgr.ConsumeBackupCode(ctx, p.ID, code)
	if err != nil {
		t.Fatalf("ConsumeBackupCode() error = %v", err)
	}
	if remaining != backupCodeCount-1 {
		t.Errorf("remaining = %d, want %d", remaining, backupCodeCount-1)
	}

	// Second use of the same code fails.
	if _, err := mgr.ConsumeBackupCode(ctx, p.ID, code); !errors.Is(err, ErrBadTwoFactorCode) {
		t.Errorf("reused code error = %v, want ErrBadTwoFactorCode", err)
	}

	// Normalization: lowercase with spaces instead of the dash still works.
	sloppy := strings.ToLower(strings.ReplaceAll(setup.BackupCodes[1], "-", " "))
	if _, err := mgr.ConsumeBackupCode(ctx, p.ID, sloppy); err != nil {
		t.Errorf("normalized code rejected: %v", err)
	}

	count, err := mgr.BackupCodesRemaining(ctx, p.ID)
	if err != nil {
		t.Fatalf("BackupCodesRemaining() error = %v", err)
	}
	if count != backupCodeCount-2 {
		t.Errorf("remaining count = %d, want %d", count, backupCodeCount-2)
	}
}

func TestBackupCodes_Regenerate(t *testing.T) {
	mgr, p := newTestTwoFactorManager(t)
	ctx := context.Background()

	setup, err := mgr.Setup(ctx, p.ID, p.Email)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := mgr.Confirm(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	fresh, err := mgr.RegenerateBackupCodes(ctx, p.ID)
	if err != nil {
		t.Fatalf("RegenerateBackupCodes() error = %v", err)
	}
	if len(fresh) != backupCodeCount {
		t.Fatalf("regenerated codes = %d, want %d", len(fresh), backupCodeCount)
	}

	// Old batch is dead, new batch works.
	if _, err := mgr.ConsumeBackupCode(ctx, p.ID, setup.BackupCodes[0]); !errors.Is(err, ErrBadTwoFactorCode) {
		t.Errorf("old batch code error = %v, want ErrBadTwoFactorCode", err)
	}
	if _, err := mgr.ConsumeBackupCode(ctx, p.ID, fresh[0]); err != nil {
		t.Errorf("new batch code rejected: %v", err)
	}
}

func TestTwoFactorDisable(t *testing.T) {
	mgr, p := newTestTwoFactorManager(t)
	ctx := context.Background()

	setup, err := mgr.Setup(ctx, p.ID, p.Email)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := mgr.Confirm(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if err := mgr.Disable(ctx, p.ID); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}

	enabled, err := mgr.Enabled(ctx, p.ID)
	if err != nil {
		t.Fatalf("Enabled() error = %v", err)
	}
	if enabled {
		t.Error("disabled config should not report enabled")
	}

	// Backup codes die with the config.
	count, err := mgr.BackupCodesRemaining(ctx, p.ID)
	if err != nil {
		t.Fatalf("BackupCodesRemaining() error = %v", err)
	}
	if count != 0 {
		t.Errorf("backup codes after disable = %d, want 0", count)
	}

	if err := mgr.Disable(ctx, p.ID); !errors.Is(err, ErrTwoFactorNotSetUp) {
		t.Errorf("second Disable() error = %v, want ErrTwoFactorNotSetUp", err)
	}
}

func TestNormalizeBackupCode(t *testing.T) {
	cases := []struct{ in, want string }{
		{"A2B4-C6D8", "A2B4C6D8"},
		{"a2b4-c6d8", "A2B4C6D8"},
		{" a2b4 c6d8 ", "A2B4C6D8"},
		{"A2B4C6D8", "A2B4C6D8"},
	}
	for _, tc := range cases {
		if got := NormalizeBackupCode(tc.in); got != tc.want {
			t.Errorf("NormalizeBackupCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTwoFactorSetup_ReplacesPending(t *testing.T) {
	mgr, p := newTestTwoFactorManager(t)
	ctx := context.Background()

	first, err := mgr.Setup(ctx, p.ID, p.Email)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	second, err := mgr.Setup(ctx, p.ID, p.Email)
	if err != nil {
		t.Fatalf("second Setup() error = %v", err)
	}
	if first.Secret == second.Secret {
		t.Error("re-running setup should mint a fresh secret")
	}

	// Only the latest secret confirms.
	if err := mgr.Confirm(ctx, p.ID, currentCode(t, first.Secret, time.Now())); !errors.Is(err, ErrBadTwoFactorCode) {
		t.Errorf("old secret confirm error = %v, want ErrBadTwoFactorCode", err)
	}
	if err := mgr.Confirm(ctx, p.ID, currentCode(t, second.Secret, time.Now())); err != nil {
		t.Errorf("new secret confirm error = %v", err)
	}
}

func TestTwoFactorSetup_RefusedWhileEnabled(t *testing.T) {
	mgr, p := newTestTwoFactorManager(t)
	ctx := context.Background()

	setup, err := mgr.Setup(ctx, p.ID, p.Email)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := mgr.Confirm(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	// Re-running setup against an enabled config must refuse: it would
	// downgrade the config to pending and quietly stop enforcement.
	if _, err := mgr.Setup(ctx, p.ID, p.Email); !errors.Is(err, ErrTwoFactorConflict) {
		t.Fatalf("Setup(while enabled) error = %v, want ErrTwoFactorConflict", err)
	}

	enabled, err := mgr.Enabled(ctx, p.ID)
	if err != nil {
		t.Fatalf("Enabled() error = %v", err)
	}
	if !enabled {
		t.Fatal("refused re-setup must leave enforcement on")
	}

	// The original secret still verifies; nothing was overwritten.
	if err := mgr.VerifyCode(ctx, p.ID, currentCode(t, setup.Secret, time.Now())); err != nil {
		t.Errorf("VerifyCode after refused re-setup error = %v", err)
	}
}
