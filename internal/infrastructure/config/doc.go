// Package config handles loading and validating YardBooks configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (JWT secret) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - JWT secrets must be at least 32 characters and never committed
//
// Lockout thresholds and escalation windows are compiled-in policy in the
// auth package, not configuration — they are part of the security contract,
// not an operator knob.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.App.Name)
package config
