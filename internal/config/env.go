package config

import (
	"errors"
	"os"
)

// FromEnv overlays ZEROBUS_* environment variables onto cfg. Connection
// settings only; table schemas always come from the file.
func FromEnv(cfg *Config) {
	if v := os.Getenv("ZEROBUS_SERVER_ENDPOINT"); v != "" {
		cfg.Databricks.ServerEndpoint = v
	}
	if v := os.Getenv("ZEROBUS_WORKSPACE_ID"); v != "" {
		cfg.Databricks.WorkspaceID = v
	}
	if v := os.Getenv("ZEROBUS_WORKSPACE_URL"); v != "" {
		cfg.Databricks.WorkspaceURL = v
	}
}

// Credentials holds the OAuth client pair used for every stream creation.
// Values are opaque to this service and must never be logged.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// CredentialsFromEnv reads the service principal credentials from the
// environment. Both variables are required.
func CredentialsFromEnv() (Credentials, error) {
	id := os.Getenv("DATABRICKS_CLIENT_ID")
	secret := os.Getenv("DATABRICKS_CLIENT_SECRET")
	if id == "" || secret == "" {
		return Credentials{}, errors.New("DATABRICKS_CLIENT_ID and DATABRICKS_CLIENT_SECRET must be set")
	}
	return Credentials{ClientID: id, ClientSecret: secret}, nil
}
