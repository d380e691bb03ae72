package policy

import (
	"encoding/json"
	"fmt"
	"os"
)

// StatusRule lists the actions a role may perform while a record sits in a
// given lifecycle status. Actions are HTTP method names.
type StatusRule struct {
	Status  string   `json:"status"`
	Actions []string `json:"actions"`
}

// Permission is the configured rule set for one role.
type Permission struct {
	Role  string       `json:"role"`
	Rules []StatusRule `json:"rules"`
}

// Config is the externally loaded permission matrix. The matrix is advisory:
// when Enabled is false every action is permitted.
type Config struct {
	Enabled           bool         `json:"enabled"`
	RoleAccessEnabled bool         `json:"roleAccessEnabled"`
	Permissions       []Permission `json:"permissions"`
}

// LoadFile reads the permission matrix from a JSON file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", path, err)
	}
	return &cfg, nil
}
