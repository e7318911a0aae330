package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eduba/publishgw/internal/auth"
)

// Environment overrides.
const (
	EnvPythonBin = "PYTHON_BIN"
	EnvListen    = "PUBLISHGW_LISTEN"
	EnvLogLevel  = "PUBLISHGW_LOG_LEVEL"

	// EnvConfig names the config file when --config is not given.
	EnvConfig = "PUBLISHGW_CONFIG"
)

// DotEnvFiles are loaded in order; earlier files win because godotenv never
// overrides a variable that is already set.
var DotEnvFiles = []string{".env.local", ".env"}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadDotEnv loads DotEnvFiles from dir into the process environment.
// Missing files are skipped.
func LoadDotEnv(dir string) error {
	for _, name := range DotEnvFiles {
		path := filepath.Join(dir, name)
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads configuration from configPath, applies defaults and environment
// overrides, and validates the result. An empty configPath yields defaults
// plus environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}
		loaded, err := loadConfigFile(absPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		cfg.SourceFile = absPath
	}

	cfg = applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", path)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML %s: %w", path, err)
	}
	return &cfg, nil
}

// applyConfigDefaults fills every field left at its zero value.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.API.MaxUploadSize == 0 {
		cfg.API.MaxUploadSize = defaults.API.MaxUploadSize
	}
	if cfg.API.MaxConcurrent == 0 {
		cfg.API.MaxConcurrent = defaults.API.MaxConcurrent
	}

	if cfg.Agent.Executable == "" {
		cfg.Agent.Executable = defaults.Agent.Executable
	}
	if cfg.Agent.Module == "" && len(cfg.Agent.Args) == 0 {
		cfg.Agent.Module = defaults.Agent.Module
	}
	if cfg.Agent.Timeout == 0 {
		cfg.Agent.Timeout = defaults.Agent.Timeout
	}
	if cfg.Agent.GracePeriod == 0 {
		cfg.Agent.GracePeriod = defaults.Agent.GracePeriod
	}
	if cfg.Agent.MaxOutput == 0 {
		cfg.Agent.MaxOutput = defaults.Agent.MaxOutput
	}

	if cfg.Workspace.Prefix == "" {
		cfg.Workspace.Prefix = defaults.Workspace.Prefix
	}
	if cfg.Workspace.SweepInterval == 0 {
		cfg.Workspace.SweepInterval = defaults.Workspace.SweepInterval
	}
	if cfg.Workspace.StaleAfter == 0 {
		cfg.Workspace.StaleAfter = defaults.Workspace.StaleAfter
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.State.Retention == 0 {
		cfg.State.Retention = defaults.State.Retention
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvPythonBin)); v != "" {
		cfg.Agent.Executable = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.API.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Service.LogLevel = strings.ToLower(v)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "text": true, "auto": true}
	if !validFormats[cfg.Service.LogFormat] {
		return fmt.Errorf("service.log_format must be one of: json, text, auto (got %q)", cfg.Service.LogFormat)
	}

	if cfg.API.MaxUploadSize < 0 {
		return fmt.Errorf("api.max_upload_size must be positive")
	}
	if cfg.API.MaxConcurrent < -1 {
		return fmt.Errorf("api.max_concurrent must be -1 (unbounded) or positive")
	}
	for i, tok := range cfg.API.Auth.Tokens {
		if tok.Token == "" {
			return fmt.Errorf("api.auth.tokens[%d].token is required", i)
		}
		if m := envVarPattern.FindStringSubmatch(tok.Token); len(m) > 1 {
			return fmt.Errorf("api.auth.tokens[%d].token: environment variable ${%s} is not set", i, m[1])
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
		}
		for _, s := range tok.Scopes {
			if !auth.KnownScope(strings.TrimSpace(s)) {
				return fmt.Errorf("api.auth.tokens[%d]: unknown scope %q", i, s)
			}
		}
	}

	if m := envVarPattern.FindStringSubmatch(cfg.Agent.Executable); len(m) > 1 {
		return fmt.Errorf("agent.executable: environment variable ${%s} is not set", m[1])
	}
	if cfg.Agent.GracePeriod < 0 {
		return fmt.Errorf("agent.grace_period must not be negative")
	}
	for k, v := range cfg.Agent.Env {
		if k == "" || strings.Contains(k, "=") {
			return fmt.Errorf("agent.env: invalid variable name %q", k)
		}
		if m := envVarPattern.FindStringSubmatch(v); len(m) > 1 {
			return fmt.Errorf("agent.env.%s: environment variable ${%s} is not set", k, m[1])
		}
	}

	if strings.ContainsAny(cfg.Workspace.Prefix, `/\`) {
		return fmt.Errorf("workspace.prefix must not contain path separators")
	}
	if cfg.Workspace.SweepInterval < 0 || cfg.Workspace.StaleAfter < 0 {
		return fmt.Errorf("workspace.sweep_interval and workspace.stale_after must not be negative")
	}
	// A sweep must never remove the workspace of a run that is still allowed
	// to be going.
	if cfg.Agent.Timeout > 0 && cfg.Workspace.StaleAfter <= cfg.Agent.Timeout+cfg.Agent.GracePeriod {
		return fmt.Errorf("workspace.stale_after (%s) must exceed agent.timeout plus agent.grace_period (%s)",
			cfg.Workspace.StaleAfter, cfg.Agent.Timeout+cfg.Agent.GracePeriod)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.State.Retention < 0 {
		return fmt.Errorf("state.retention must not be negative")
	}
	return nil
}

// AgentTimeout returns agent.timeout with a negative value mapped to 0
// (no limit).
func (c *Config) AgentTimeout() time.Duration {
	if c.Agent.Timeout < 0 {
		return 0
	}
	return c.Agent.Timeout
}

// ConcurrencyLimit returns api.max_concurrent with -1 mapped to 0 (unbounded).
func (c *Config) ConcurrencyLimit() int {
	if c.API.MaxConcurrent < 0 {
		return 0
	}
	return c.API.MaxConcurrent
}

// Selector returns the argv prefix placed before the agent flags.
func (c *Config) Selector() []string {
	if len(c.Agent.Args) > 0 {
		return append([]string(nil), c.Agent.Args...)
	}
	if c.Agent.Module == "" {
		return []string{}
	}
	return []string{"-m", c.Agent.Module}
}

// AgentEnv returns agent.env as sorted KEY=value entries.
func (c *Config) AgentEnv() []string {
	keys := make([]string, 0, len(c.Agent.Env))
	for k := range c.Agent.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.Agent.Env[k])
	}
	return out
}
