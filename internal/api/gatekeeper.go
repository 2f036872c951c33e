package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
)

// Auth cookie names. The access cookie rides on every request; the refresh
// cookie is scoped down to the auth endpoints so it is presented as rarely
// as possible.
const (
	accessCookieName  = "yb_access"
	refreshCookieName = "yb_refresh"

	refreshCookiePath = "/api/v1/auth"

	// transparentRefreshTimeout bounds the mid-request token refresh. A
	// slow database must degrade to "please log in", never to a hung page.
	transparentRefreshTimeout = 5 * time.Second
)

// routeClass determines how the gatekeeper treats a path.
type routeClass int

const (
	// routePublic requires no authentication and gets no redirects.
	routePublic routeClass = iota
	// routeAuthEntry is a credential-submission endpoint or the login
	// page: open to anonymous callers, but an already-authenticated
	// browser hitting the login page is bounced to the dashboard.
	routeAuthEntry
	// routeAPI is a protected JSON endpoint: unauthenticated calls get a
	// structured 401.
	routeAPI
	// routePage is a protected browser page: unauthenticated visits get
	// a 302 to the login page with cookies cleared.
	routePage
)

// classifyRoute buckets a request path. Everything not otherwise claimed
// is a protected page, so new pages are protected by default.
func classifyRoute(path string) routeClass {
	switch {
	case path == "/healthz",
		strings.HasPrefix(path, "/api/v1/system/"),
		strings.HasPrefix(path, "/static/"),
		path == "/favicon.ico":
		return routePublic
	case path == "/login",
		path == "/api/v1/auth/login",
		path == "/api/v1/auth/pin-login",
		path == "/api/v1/auth/2fa/verify",
		path == "/api/v1/auth/2fa/backup",
		path == "/api/v1/auth/pos/override",
		path == "/api/v1/auth/refresh":
		return routeAuthEntry
	case strings.HasPrefix(path, "/api/"):
		return routeAPI
	default:
		return routePage
	}
}

// gatekeeperMiddleware authenticates every non-prefetch request before it
// reaches a handler.
//
// Token resolution order: Authorization bearer header, then the access
// cookie. A failed verification with a refresh cookie present triggers one
// transparent refresh attempt under a short timeout — an expired access
// token on an otherwise live session costs the user nothing. What happens
// to unauthenticated requests depends on the route class: APIs answer 401,
// pages redirect to the login screen, auth-entry and public routes simply
// proceed anonymous.
func (s *Server) gatekeeperMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPrefetch(r) {
			next.ServeHTTP(w, r)
			return
		}

		class := classifyRoute(r.URL.Path)

		token := extractToken(r)
		claims, token := s.verifyOrRefresh(w, r, token)

		if claims != nil {
			if class == routeAuthEntry && r.URL.Path == "/login" {
				http.Redirect(w, r, "/dashboard", http.StatusFound)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			ctx = context.WithValue(ctx, ctxKeyAccessToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		switch class {
		case routePublic, routeAuthEntry:
			next.ServeHTTP(w, r)
		case routeAPI:
			writeUnauthorized(w, "authentication required")
		case routePage:
			s.clearAuthCookies(w)
			http.Redirect(w, r, "/login?redirect="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		}
	})
}

// verifyOrRefresh validates the access token, falling back to a transparent
// refresh when the token is missing or stale but a refresh cookie exists.
// On refresh success the new access token is set as a cookie and returned
// so the rest of the request acts under it.
func (s *Server) verifyOrRefresh(w http.ResponseWriter, r *http.Request, token string) (*auth.AccessClaims, string) {
	if token != "" {
		if claims, err := s.auth.Tokens().VerifyAccessToken(token); err == nil {
			return claims, token
		}
	}

	refreshCookie, err := r.Cookie(refreshCookieName)
	if err != nil || refreshCookie.Value == "" {
		return nil, ""
	}

	ctx, cancel := context.WithTimeout(r.Context(), transparentRefreshTimeout)
	defer cancel()

	result, err := s.auth.Refresh(ctx, refreshCookie.Value, metaFromRequest(r))
	if err != nil {
		// Invalid, evicted, or timed out — treat as unauthenticated.
		return nil, ""
	}

	claims, err := s.auth.Tokens().VerifyAccessToken(result.AccessToken)
	if err != nil {
		return nil, ""
	}

	s.setAuthCookies(w, result.AccessToken, result.RefreshToken)
	return claims, result.AccessToken
}

// extractToken pulls the bearer token from the Authorization header, or the
// access cookie when no header is present.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
		return ""
	}
	if c, err := r.Cookie(accessCookieName); err == nil {
		return c.Value
	}
	return ""
}

// setAuthCookies writes both auth cookies. Lifetimes mirror the token TTLs
// so the browser forgets a token at the same moment it stops verifying.
func (s *Server) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	secure := s.cfg.CookiesSecure()
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(s.auth.Tokens().AccessTTL().Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	if refreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookieName,
			Value:    refreshToken,
			Path:     refreshCookiePath,
			MaxAge:   int(s.auth.Tokens().RefreshTTL().Seconds()),
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// clearAuthCookies expires both auth cookies.
func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	secure := s.cfg.CookiesSecure()
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// metaFromRequest captures client context for session rows and audit entries.
func metaFromRequest(r *http.Request) auth.Metadata {
	return auth.Metadata{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// clientIP resolves the originating client address, preferring the first
// X-Forwarded-For hop when a proxy sits in front.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	return host
}
