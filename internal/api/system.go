package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemStats represents the system statistics response.
type SystemStats struct {
	Timestamp     string       `json:"timestamp"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Runtime       RuntimeStats `json:"runtime"`
	Auth          AuthStats    `json:"auth"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// AuthStats contains session and lockout counters.
type AuthStats struct {
	ActiveSessions   int `json:"active_sessions"`
	LockedPrincipals int `json:"locked_principals"`
	AuditEntries     int `json:"audit_entries"`
}

// handleSystemInfo returns basic identity about the running service.
func (s *Server) handleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        s.cfg.App.Name,
		"version":     s.version,
		"environment": s.cfg.App.Environment,
		"go_version":  runtime.Version(),
	})
}

// handleSystemStats returns runtime and auth statistics.
func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := SystemStats{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if n, err := s.sessions.Count(r.Context()); err == nil {
		stats.Auth.ActiveSessions = n
	}
	if n, err := s.auth.Lockouts().LockedCount(r.Context()); err == nil {
		stats.Auth.LockedPrincipals = n
	}
	if s.auditRepo != nil {
		if n, err := s.auditRepo.Count(r.Context()); err == nil {
			stats.Auth.AuditEntries = n
		}
	}

	writeJSON(w, http.StatusOK, stats)
}
