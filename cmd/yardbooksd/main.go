// YardBooks - auth and authorization core
//
// This is the main entry point for the YardBooks identity service. It
// fronts every other module on the platform with token-based login,
// single-session enforcement, escalating lockouts, TOTP two-factor, and
// role-based authorization over tenant memberships.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/Mani87-nq/yardbooks-web-sub010/migrations"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/api"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/audit"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/auth"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/config"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/database"
	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting YardBooks auth core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	principals := auth.NewPrincipalRepository(db.DB)
	tenants := auth.NewTenantRepository(db.DB)
	sessions := auth.NewSessionRepository(db.DB)
	twoFactorRepo := auth.NewTwoFactorRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// First-boot bootstrap: default tenant + owner with a printed-once
	// password.
	if _, seedErr := auth.SeedOwner(ctx, principals, tenants, log); seedErr != nil {
		return fmt.Errorf("seeding owner account: %w", seedErr)
	}

	// Auth service
	recorder := audit.NewRecorder(auditRepo, log)
	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret:       cfg.Security.JWT.Secret,
		Issuer:       cfg.Security.JWT.Issuer,
		AccessTTL:    cfg.Security.JWT.AccessTTL(),
		RefreshTTL:   cfg.Security.JWT.RefreshTTL(),
		TwoFactorTTL: cfg.Security.JWT.TwoFactorTTL(),
	})
	twoFactor := auth.NewTwoFactorManager(twoFactorRepo, cfg.Security.TwoFactor.Issuer)
	lockouts := auth.NewLockoutTracker(db.DB)

	authService := auth.NewService(
		principals, tenants, sessions,
		lockouts, twoFactor, tokens,
		log, recorder.Record,
	)

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:     cfg,
		Logger:     log,
		Auth:       authService,
		Principals: principals,
		Tenants:    tenants,
		Sessions:   sessions,
		AuditRepo:  auditRepo,
		Recorder:   recorder,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify connections are healthy
	if err := healthCheck(ctx, db, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (drains in-flight requests and the audit buffer)
	// 2. Database

	log.Info("YardBooks auth core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses the YARDBOOKS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("YARDBOOKS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure components are healthy.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
