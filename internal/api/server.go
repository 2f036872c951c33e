// Package api provides the HTTP surface for YardBooks: the auth endpoints
// (login, refresh, two-factor, kiosk PIN), session and team management, and
// the gatekeeper middleware that authenticates every request.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/audit"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/config"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// sessionSweepInterval is how often expired session rows are purged.
const sessionSweepInterval = time.Hour

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     *config.Config
	Logger     *logging.Logger
	Auth       *auth.Service
	Principals auth.PrincipalRepository
	Tenants    auth.TenantRepository
	Sessions   auth.SessionRepository
	AuditRepo  audit.Repository
	Recorder   *audit.Recorder // optional; Start runs its drain loop
	Version    string
}

// Server is the HTTP API server for YardBooks.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg        *config.Config
	logger     *logging.Logger
	auth       *auth.Service
	principals auth.PrincipalRepository
	tenants    auth.TenantRepository
	sessions   auth.SessionRepository
	auditRepo  audit.Repository
	recorder   *audit.Recorder
	version    string
	startTime  time.Time
	server     *http.Server
	limiter    *ipLimiter
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Principals == nil || deps.Tenants == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("repositories are required")
	}

	s := &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		auth:       deps.Auth,
		principals: deps.Principals,
		tenants:    deps.Tenants,
		sessions:   deps.Sessions,
		auditRepo:  deps.AuditRepo,
		recorder:   deps.Recorder,
		version:    deps.Version,
		startTime:  time.Now(),
	}

	rl := deps.Config.Security.RateLimit
	if rl.Enabled {
		s.limiter = newIPLimiter(rl.RequestsPerMinute, rl.Burst)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the background loops (audit drain, session
// sweep, rate-limit cleanup), and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.recorder != nil {
		go s.recorder.Run(srvCtx)
	}
	if s.limiter != nil {
		go s.limiter.sweepLoop(srvCtx)
	}
	go s.sweepSessionsLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.API.Host, s.cfg.API.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.API.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.API.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.API.TLS.CertFile, s.cfg.API.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// sweepSessionsLoop purges expired session rows periodically. Expired
// sessions already fail every check; the sweep just keeps the table tidy.
func (s *Server) sweepSessionsLoop(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.DeleteExpired(ctx)
			if err != nil {
				s.logger.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired sessions purged", "count", n)
			}
		}
	}
}
