package auth

// ModulePermission names a capability contributed by a pluggable feature
// module (e.g. "scheduling:dispatch"). Module permissions are open-ended
// strings resolved through a registered ModuleResolver, unlike the closed
// core Permission set.
type ModulePermission string

// ModuleResolver is the secondary lookup for module-contributed
// permissions. Feature modules register one resolver; the core never
// guesses about permissions it does not own.
type ModuleResolver interface {
	Allows(role Role, perm ModulePermission) bool
}

// ModuleResolverFunc adapts a plain function to the ModuleResolver interface.
type ModuleResolverFunc func(role Role, perm ModulePermission) bool

// Allows implements ModuleResolver.
func (f ModuleResolverFunc) Allows(role Role, perm ModulePermission) bool {
	return f(role, perm)
}

// PermissionRef is a tagged reference to either a core permission or a
// module-contributed one. Construct with Core or Module; the zero value
// refers to nothing and is never allowed.
type PermissionRef struct {
	core     Permission
	module   ModulePermission
	isModule bool
}

// Core wraps a closed-set core permission.
func Core(p Permission) PermissionRef {
	return PermissionRef{core: p}
}

// Module wraps an open-ended module permission.
func Module(p ModulePermission) PermissionRef {
	return PermissionRef{module: p, isModule: true}
}

// IsModule reports whether the reference points at a module permission.
func (r PermissionRef) IsModule() bool { return r.isModule }

// String returns the referenced permission name, for logs and audit detail.
func (r PermissionRef) String() string {
	if r.isModule {
		return string(r.module)
	}
	return string(r.core)
}

// Checker composes the static core permission table with an optional
// module resolver. Core checks never consult the resolver, and module
// checks never fall back to the core table — the two vocabularies stay
// disjoint.
type Checker struct {
	resolver ModuleResolver
}

// NewChecker creates a permission checker. A nil resolver is valid and
// denies every module permission.
func NewChecker(resolver ModuleResolver) *Checker {
	return &Checker{resolver: resolver}
}

// Allows answers a permission check for either side of the tagged union.
func (c *Checker) Allows(role Role, ref PermissionRef) bool {
	if ref.isModule {
		if c == nil || c.resolver == nil {
			return false
		}
		return c.resolver.Allows(role, ref.module)
	}
	return HasPermission(role, ref.core)
}
