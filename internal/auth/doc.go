// Package auth provides authentication and authorisation for YardBooks.
//
// It implements a 4-tier role model (employee → member → admin → owner) with:
//   - Argon2id password and PIN hashing (OWASP 2025 recommendation)
//   - JWT access/refresh/two-factor tokens bound to a single session row
//   - Escalating lockout across three independent modalities (password,
//     kiosk PIN, manager PIN)
//   - TOTP two-factor with single-use backup codes
//   - Static role-permission mapping (compile-time, no database lookup)
//
// At most one session exists per principal: every login replaces whatever
// session came before, and revoking the session row kills both tokens at
// once. Tenant membership decides the role a principal acts as; the
// effective permission set of a role always contains everything granted to
// lower roles.
package auth
