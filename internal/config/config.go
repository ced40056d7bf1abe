package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Databricks DatabricksConfig       `json:"databricks" yaml:"databricks"`
	Tables     map[string]TableConfig `json:"tables" yaml:"tables" validate:"required,min=1"`
}

// DatabricksConfig holds the connection settings shared by every stream.
type DatabricksConfig struct {
	ServerEndpoint string `json:"server_endpoint" yaml:"server_endpoint" validate:"required"`
	WorkspaceID    string `json:"workspace_id" yaml:"workspace_id" validate:"required"`
	WorkspaceURL   string `json:"workspace_url" yaml:"workspace_url" validate:"required,url"`
}

// TableConfig describes one ingestion destination: the fully qualified table,
// the protobuf message name, and the record fields used to synthesize the
// wire schema at load time.
type TableConfig struct {
	TableName   string        `json:"table_name" yaml:"table_name" validate:"required"`
	MessageName string        `json:"message_name" yaml:"message_name" validate:"required"`
	Fields      []FieldConfig `json:"fields" yaml:"fields" validate:"required,min=1,dive"`
	// Filter is an optional CEL expression gating records before submission.
	Filter string `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// FieldConfig describes one record field.
type FieldConfig struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Type string `json:"type" yaml:"type" validate:"required"`
}

// FieldTypes lists the record field types the schema codec understands.
// Unknown types fall back to string, matching the original service.
var FieldTypes = map[string]struct{}{
	"string": {},
	"int32":  {},
	"int64":  {},
	"float":  {},
	"double": {},
	"bool":   {},
}

// Default returns built-in defaults. The table map is empty; a deployment is
// expected to provide a config file.
func Default() Config {
	return Config{Tables: map[string]TableConfig{}}
}

// Load reads configuration from a JSON or YAML file (by extension).
// If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("yaml decode %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("json decode %s: %w", path, err)
		}
	}
	return cfg, nil
}
