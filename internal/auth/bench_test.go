package auth

import "testing"

// ─── Password hashing (Argon2id — intentionally slow) ───────────────

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HashPassword("correct-horse-battery-staple") //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		b.Fatalf("HashPassword: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VerifyPassword("correct-horse-battery-staple", hash) //nolint:errcheck // benchmark
	}
}

// ─── JWT tokens (per-request hot path) ──────────────────────────────

func BenchmarkSignAccessToken(b *testing.B) {
	svc := testTokenService()
	claims := AccessClaims{Role: RoleAdmin, SessionID: "ses-bench", ActiveTenant: "tnt-bench"}
	claims.Subject = "prn-bench"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.SignAccessToken(claims) //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyAccessToken(b *testing.B) {
	svc := testTokenService()
	claims := AccessClaims{Role: RoleAdmin, SessionID: "ses-bench"}
	claims.Subject = "prn-bench"
	token, err := svc.SignAccessToken(claims)
	if err != nil {
		b.Fatalf("SignAccessToken: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		svc.VerifyAccessToken(token) //nolint:errcheck // benchmark
	}
}

// ─── Permission checks (every guarded request) ──────────────────────

func BenchmarkHasPermission(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HasPermission(RoleAdmin, PermTeamManage)
	}
}

func BenchmarkHashTokenSHA256(b *testing.B) {
	token := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.bench.payload"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		HashToken(token)
	}
}
