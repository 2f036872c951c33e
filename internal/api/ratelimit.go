package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitorIdleTTL is how long an idle visitor's limiter survives before the
// cleanup sweep drops it.
const visitorIdleTTL = 10 * time.Minute

// ipLimiter throttles the credential-submission endpoints per client IP.
// This is the edge control against spray attacks from one source; the
// durable per-principal lockout ladder is the real defence and is not
// affected by anything here.
type ipLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPLimiter creates a limiter allowing requestsPerMinute sustained with
// the given burst per client IP.
func newIPLimiter(requestsPerMinute, burst int) *ipLimiter {
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

// allow reports whether the given IP may make another request now.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// sweep drops limiters for IPs not seen within visitorIdleTTL.
func (l *ipLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-visitorIdleTTL)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

// sweepLoop runs sweep periodically until the context is cancelled.
func (l *ipLimiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(visitorIdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// rateLimitMiddleware applies the per-IP limiter to auth-entry routes.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "too many requests; slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
