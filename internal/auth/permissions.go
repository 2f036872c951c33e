package auth

// Permission represents a named capability in the core vocabulary.
type Permission string

// Permission constants.
const (
	PermPOSOperate     Permission = "pos:operate"
	PermPOSOverride    Permission = "pos:override"
	PermTimeclockUse   Permission = "timeclock:use"
	PermInvoiceRead    Permission = "invoice:read"
	PermInvoiceManage  Permission = "invoice:manage"
	PermCustomerRead   Permission = "customer:read"
	PermCustomerManage Permission = "customer:manage"
	PermReportView     Permission = "report:view"
	PermPayrollManage  Permission = "payroll:manage"
	PermTeamManage     Permission = "team:manage"
	PermBillingManage  Permission = "billing:manage"
	PermTenantAdmin    Permission = "tenant:admin"
)

// roleGrants maps each role to the permissions it introduces, NOT its full
// effective set. This is the single source of truth for the authorisation
// model: a role's effective permissions are its own grants plus everything
// granted to strictly lower roles, so privilege is monotonic up the
// hierarchy by construction.
var roleGrants = map[Role][]Permission{
	RoleEmployee: {
		PermPOSOperate,
		PermTimeclockUse,
	},
	RoleMember: {
		PermInvoiceRead,
		PermInvoiceManage,
		PermCustomerRead,
		PermCustomerManage,
	},
	RoleAdmin: {
		PermReportView,
		PermPayrollManage,
		PermTeamManage,
		PermPOSOverride,
	},
	RoleOwner: {
		PermBillingManage,
		PermTenantAdmin,
	},
}

// roleRank orders roles from least to most privileged. CompareRoles and
// the effective-permission union both derive from this table.
var roleRank = map[Role]int{
	RoleEmployee: 0,
	RoleMember:   1,
	RoleAdmin:    2,
	RoleOwner:    3,
}

// effectivePermissions is the computed role → full permission set table.
// Built once at package init; all permission checks are map lookups.
var effectivePermissions map[Role]map[Permission]bool

func init() {
	effectivePermissions = make(map[Role]map[Permission]bool, len(ValidRoles))
	for _, role := range ValidRoles {
		set := make(map[Permission]bool)
		for _, other := range ValidRoles {
			if roleRank[other] > roleRank[role] {
				continue
			}
			for _, p := range roleGrants[other] {
				set[p] = true
			}
		}
		effectivePermissions[role] = set
	}
}

// HasPermission returns true if the role's effective permission set
// contains the given permission. Unknown roles have no permissions.
func HasPermission(role Role, perm Permission) bool {
	return effectivePermissions[role][perm]
}

// HasAnyPermission returns true if the role holds at least one of the
// given permissions.
func HasAnyPermission(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions returns true if the role holds every one of the given
// permissions.
func HasAllPermissions(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// PermissionsForRole returns the role's full effective permission set.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	set, ok := effectivePermissions[role]
	if !ok {
		return nil
	}
	result := make([]Permission, 0, len(set))
	for p := range set {
		result = append(result, p)
	}
	return result
}

// CompareRoles orders two roles by privilege: negative when a is below b,
// zero when equal, positive when a is above b. Unknown roles compare below
// every valid role.
func CompareRoles(a, b Role) int {
	ra, aOK := roleRank[a]
	rb, bOK := roleRank[b]
	switch {
	case !aOK && !bOK:
		return 0
	case !aOK:
		return -1
	case !bOK:
		return 1
	}
	return ra - rb
}

// CanActOn enforces the team-management rule: an actor may only act upon,
// or assign, roles strictly below their own. This is structural and
// deliberately separate from the flat permission checks — holding
// team:manage does not let an admin touch another admin.
func CanActOn(actor, target Role) bool {
	return CompareRoles(actor, target) > 0
}
