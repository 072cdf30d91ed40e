// Package config loads the server's declarative configuration, grounded on
// the teacher's internal/server.ServerConfig (HCL blocks, gohcl.DecodeBody,
// default-then-override sequencing) and generalized per spec §6's
// environment-variable surface. Bind address, admin allow-list, abandonment
// grace, action timeout, session secret and auth URL have environment
// overrides; the other settings come only from the file or the defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerSettings  `hcl:"server,block"`
	Table   TableDefaults   `hcl:"table,block"`
	Session SessionSettings `hcl:"session,block"`
}

// ServerSettings controls the HTTP/WS bind address and admin surface.
type ServerSettings struct {
	BindAddress   string   `hcl:"bind_address,optional"`
	AdminAllowList []string `hcl:"admin_allow_list,optional"`
	LogLevel      string   `hcl:"log_level,optional"`
}

// TableDefaults are applied to every table the table manager creates; there
// is no per-table override.
type TableDefaults struct {
	MaxSeats             int `hcl:"max_seats,optional"`
	SmallBlind           int `hcl:"small_blind,optional"`
	BigBlind             int `hcl:"big_blind,optional"`
	InitialStack         int `hcl:"initial_stack,optional"`
	ActionTimeoutMs      int `hcl:"action_timeout_ms,optional"`
	AbandonmentGraceMs   int `hcl:"abandonment_grace_ms,optional"`
}

// SessionSettings controls session token minting and external auth.
type SessionSettings struct {
	Secret     string `hcl:"secret,optional"`
	TTLSeconds int    `hcl:"ttl_seconds,optional"`
	AuthURL    string `hcl:"auth_url,optional"`
}

// Default returns the configuration used when no file is present, matching
// the spec's worked example (blinds 1/2, stack 100).
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			BindAddress: ":8080",
			LogLevel:    "info",
		},
		Table: TableDefaults{
			MaxSeats:           6,
			SmallBlind:         1,
			BigBlind:           2,
			InitialStack:       100,
			ActionTimeoutMs:    20000,
			AbandonmentGraceMs: 60000,
		},
		Session: SessionSettings{
			TTLSeconds: 3600,
		},
	}
}

// Load reads an HCL config file if present, falling back to Default(), then
// applies environment overrides. A missing file is not an error, matching
// the teacher's LoadServerConfig behavior.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			parser := hclparse.NewParser()
			file, diags := parser.ParseHCLFile(path)
			if diags.HasErrors() {
				return nil, fmt.Errorf("parse config %s: %s", path, diags.Error())
			}
			parsed := Default()
			if diags := gohcl.DecodeBody(file.Body, nil, parsed); diags.HasErrors() {
				return nil, fmt.Errorf("decode config %s: %s", path, diags.Error())
			}
			cfg = parsed
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MOLTPOKER_BIND_ADDRESS"); v != "" {
		cfg.Server.BindAddress = v
	}
	if v := os.Getenv("MOLTPOKER_ADMIN_ALLOW_LIST"); v != "" {
		cfg.Server.AdminAllowList = splitCSV(v)
	}
	if v := os.Getenv("MOLTPOKER_ABANDONMENT_GRACE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Table.AbandonmentGraceMs = n
		}
	}
	if v := os.Getenv("MOLTPOKER_ACTION_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Table.ActionTimeoutMs = n
		}
	}
	if v := os.Getenv("MOLTPOKER_SESSION_SECRET"); v != "" {
		cfg.Session.Secret = v
	}
	if v := os.Getenv("MOLTPOKER_AUTH_URL"); v != "" {
		cfg.Session.AuthURL = v
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// Validate checks the configuration is internally consistent, mirroring the
// teacher's ServerConfig.Validate.
func (c *Config) Validate() error {
	if c.Table.SmallBlind <= 0 {
		return fmt.Errorf("config: small_blind must be positive")
	}
	if c.Table.BigBlind <= c.Table.SmallBlind {
		return fmt.Errorf("config: big_blind must exceed small_blind")
	}
	if c.Table.MaxSeats < 2 || c.Table.MaxSeats > 10 {
		return fmt.Errorf("config: max_seats must be between 2 and 10")
	}
	if c.Table.InitialStack <= 0 {
		return fmt.Errorf("config: initial_stack must be positive")
	}
	if c.Table.ActionTimeoutMs <= 0 {
		return fmt.Errorf("config: action_timeout_ms must be positive")
	}
	return nil
}
