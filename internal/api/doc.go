// Package api implements the HTTP surface for the YardBooks auth core.
//
// This package provides:
//   - Auth endpoints: password login, transparent refresh, two-factor
//     setup/verify, kiosk PIN login, manager POS override
//   - Session management (list, revoke, revoke-all) and team management
//   - The gatekeeper middleware: token extraction, route classification,
//     transparent refresh, and the JSON-vs-redirect split
//   - Middleware stack (request ID, logging, recovery, CORS, body limit,
//     security headers with per-request CSP nonce, per-IP rate limiting)
//   - TLS support for production deployments
//
// # Architecture
//
// The server sits between clients (browser, kiosk terminals) and the auth
// service. Browsers authenticate with httpOnly cookies; kiosks and API
// clients use bearer headers. All authorisation decisions reduce to the
// role carried in the verified access token, checked against the static
// permission tables in the auth package.
//
// # Security
//
// Access tokens are short-lived JWTs; refresh tokens are only valid while
// their backing session row exists, which is what makes logout and
// single-session eviction effective immediately. Failed logins feed the
// escalating lockout ladder before any response is written.
//
// # Graceful Degradation
//
// Audit logging is best-effort and asynchronous — a slow or failing audit
// sink never delays or blocks an auth decision.
package api
