package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/logging"
)

// seedPasswordBytes is the number of random bytes for the seed owner password.
const seedPasswordBytes = 16

// seedOwnerEmail is the login for the bootstrap account.
const seedOwnerEmail = "owner@yardbooks.local"

// SeedOwner bootstraps an empty database: one tenant, one owner account,
// and the membership joining them. The generated password is logged once —
// it must be changed immediately. Returns the password, or an empty string
// if principals already exist and seeding was skipped.
func SeedOwner(ctx context.Context, principals PrincipalRepository, tenants TenantRepository, logger *logging.Logger) (string, error) {
	count, err := principals.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking principal count: %w", err)
	}

	if count > 0 {
		logger.Info("principals exist, skipping owner seed")
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	tenant := &Tenant{Name: "Default Workspace"}
	if err := tenants.CreateTenant(ctx, tenant); err != nil {
		return "", fmt.Errorf("creating seed tenant: %w", err)
	}

	owner := &Principal{
		Email:           seedOwnerEmail,
		DisplayName:     "System Owner",
		PasswordHash:    hash,
		Kind:            KindAccount,
		Role:            RoleOwner,
		IsActive:        true,
		DefaultTenantID: tenant.ID,
	}
	if err := principals.Create(ctx, owner); err != nil {
		return "", fmt.Errorf("creating seed owner: %w", err)
	}

	membership := &TenantMembership{
		PrincipalID: owner.ID,
		TenantID:    tenant.ID,
		Role:        RoleOwner,
	}
	if err := tenants.CreateMembership(ctx, membership); err != nil {
		return "", fmt.Errorf("creating seed membership: %w", err)
	}

	logger.Warn("seed owner account created",
		"email", seedOwnerEmail,
		"password", password,
		"tenant_id", tenant.ID,
		"action_required", "change this password immediately",
	)

	return password, nil
}
