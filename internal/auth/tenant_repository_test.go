package auth

import (
	"context"
	"errors"
	"testing"
)

func TestTenantCreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewTenantRepository(db)
	ctx := context.Background()

	tenant := &Tenant{Name: "Acme Landscaping"}
	if err := repo.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("CreateTenant() error = %v", err)
	}
	if tenant.ID == "" {
		t.Fatal("CreateTenant should generate an ID")
	}

	got, err := repo.GetTenant(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("GetTenant() error = %v", err)
	}
	if got.Name != "Acme Landscaping" {
		t.Errorf("Name = %q, want %q", got.Name, "Acme Landscaping")
	}

	if _, err := repo.GetTenant(ctx, "tnt-missing"); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("GetTenant(missing) error = %v, want ErrTenantNotFound", err)
	}
}

func TestMembershipLifecycle(t *testing.T) {
	db := testDB(t)
	repo := NewTenantRepository(db)
	ctx := context.Background()

	tenant := seedTestTenant(t, db, "Membership Co")
	p := seedTestAccount(t, db, "member@example.com", RoleMember)

	seedTestMembership(t, db, p.ID, tenant.ID, RoleMember)

	m, err := repo.GetMembership(ctx, p.ID, tenant.ID)
	if err != nil {
		t.Fatalf("GetMembership() error = %v", err)
	}
	if m.Role != RoleMember {
		t.Errorf("Role = %q, want %q", m.Role, RoleMember)
	}

	if err := repo.UpdateMembershipRole(ctx, p.ID, tenant.ID, RoleAdmin); err != nil {
		t.Fatalf("UpdateMembershipRole() error = %v", err)
	}
	m, err = repo.GetMembership(ctx, p.ID, tenant.ID)
	if err != nil {
		t.Fatalf("GetMembership() after update error = %v", err)
	}
	if m.Role != RoleAdmin {
		t.Errorf("Role after update = %q, want %q", m.Role, RoleAdmin)
	}

	if err := repo.DeleteMembership(ctx, p.ID, tenant.ID); err != nil {
		t.Fatalf("DeleteMembership() error = %v", err)
	}
	if _, err := repo.GetMembership(ctx, p.ID, tenant.ID); !errors.Is(err, ErrNotAMember) {
		t.Errorf("GetMembership(deleted) error = %v, want ErrNotAMember", err)
	}
	if err := repo.DeleteMembership(ctx, p.ID, tenant.ID); !errors.Is(err, ErrNotAMember) {
		t.Errorf("DeleteMembership(missing) error = %v, want ErrNotAMember", err)
	}
}

func TestMembership_NotAMember(t *testing.T) {
	db := testDB(t)
	repo := NewTenantRepository(db)
	ctx := context.Background()

	tenant := seedTestTenant(t, db, "Exclusive Co")
	outsider := seedTestAccount(t, db, "outsider@example.com", RoleMember)

	if _, err := repo.GetMembership(ctx, outsider.ID, tenant.ID); !errors.Is(err, ErrNotAMember) {
		t.Errorf("GetMembership(outsider) error = %v, want ErrNotAMember", err)
	}
	if err := repo.UpdateMembershipRole(ctx, outsider.ID, tenant.ID, RoleAdmin); !errors.Is(err, ErrNotAMember) {
		t.Errorf("UpdateMembershipRole(outsider) error = %v, want ErrNotAMember", err)
	}
}

func TestListMemberships(t *testing.T) {
	db := testDB(t)
	repo := NewTenantRepository(db)
	ctx := context.Background()

	first := seedTestTenant(t, db, "First Co")
	second := seedTestTenant(t, db, "Second Co")
	p := seedTestAccount(t, db, "multi@example.com", RoleMember)
	other := seedTestAccount(t, db, "other@example.com", RoleMember)

	seedTestMembership(t, db, p.ID, first.ID, RoleAdmin)
	seedTestMembership(t, db, p.ID, second.ID, RoleMember)
	seedTestMembership(t, db, other.ID, first.ID, RoleOwner)

	byPrincipal, err := repo.ListMembershipsByPrincipal(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListMembershipsByPrincipal() error = %v", err)
	}
	if len(byPrincipal) != 2 {
		t.Fatalf("memberships for principal = %d, want 2", len(byPrincipal))
	}
	seen := map[string]bool{}
	for _, m := range byPrincipal {
		seen[m.TenantID] = true
	}
	if !seen[first.ID] || !seen[second.ID] {
		t.Errorf("memberships = %v, want both tenants", byPrincipal)
	}

	byTenant, err := repo.ListMembershipsByTenant(ctx, first.ID)
	if err != nil {
		t.Fatalf("ListMembershipsByTenant() error = %v", err)
	}
	if len(byTenant) != 2 {
		t.Errorf("memberships in tenant = %d, want 2", len(byTenant))
	}

	empty, err := repo.ListMembershipsByPrincipal(ctx, "prn-nobody")
	if err != nil {
		t.Fatalf("ListMembershipsByPrincipal(nobody) error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("memberships for unknown principal = %v, want empty non-nil slice", empty)
	}
}
