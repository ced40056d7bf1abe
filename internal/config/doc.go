// Package config provides loading, environment overlay, and validation for
// Zerobus Station configuration. It exposes a Default() baseline, Load() for
// JSON or YAML files, FromEnv() for ZEROBUS_* overrides, and a
// CredentialsFromEnv() helper for the OAuth client secrets (which are never
// part of the file config).
//
// Example:
//
//	cfg, err := config.Load("config.json")
//	if err != nil { ... }
//	config.FromEnv(&cfg)
//	if err := config.Validate(&cfg); err != nil { ... }
//	creds, err := config.CredentialsFromEnv()
package config
