package config

import (
	"time"

	"github.com/eduba/publishgw/internal/auth"
)

// Config represents the complete publishgw configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	API       APIConfig       `yaml:"api"`
	Agent     AgentConfig     `yaml:"agent"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	State     StateConfig     `yaml:"state"`

	// SourceFile is the file the config was read from; empty for defaults.
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// APIConfig defines HTTP server settings.
type APIConfig struct {
	Listen        string        `yaml:"listen"`
	MaxUploadSize ByteSize      `yaml:"max_upload_size"`
	// MaxConcurrent caps in-flight agent runs; -1 removes the cap.
	MaxConcurrent int           `yaml:"max_concurrent"`
	CORSOrigins   []string      `yaml:"cors_origins,omitempty"`
	Auth          APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig lists the bearer tokens accepted on operator endpoints.
type APIAuthConfig struct {
	Tokens []auth.TokenConfig `yaml:"tokens,omitempty"`
}

// AgentConfig describes how the publishing agent is launched.
type AgentConfig struct {
	Executable string `yaml:"executable"`
	Module     string `yaml:"module"`
	// Args replaces the "-m <module>" selector when set.
	Args         []string          `yaml:"args,omitempty"`
	Workdir      string            `yaml:"workdir,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	// Timeout bounds one run; 0 takes the default and a negative value
	// (e.g. -1s) disables the limit.
	Timeout      time.Duration     `yaml:"timeout"`
	GracePeriod  time.Duration     `yaml:"grace_period"`
	MaxOutput    ByteSize          `yaml:"max_output"`
	StopOnCancel bool              `yaml:"stop_on_cancel"`
}

// WorkspaceConfig defines where uploads are staged.
type WorkspaceConfig struct {
	Root          string        `yaml:"root,omitempty"`
	Prefix        string        `yaml:"prefix"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// StateConfig defines run log storage.
type StateConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// Defaults returns a Config with the out-of-the-box settings.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "publishgw",
			LogLevel:  "info",
			LogFormat: "json",
		},
		API: APIConfig{
			Listen:        "127.0.0.1:8080",
			MaxUploadSize: 64 * MB,
			MaxConcurrent: 4,
		},
		Agent: AgentConfig{
			Executable:  "python3",
			Module:      "agent.cli",
			Timeout:     10 * time.Minute,
			GracePeriod: 5 * time.Second,
			MaxOutput:   4 * MB,
		},
		Workspace: WorkspaceConfig{
			Prefix:        "eduba-",
			SweepInterval: 10 * time.Minute,
			StaleAfter:    time.Hour,
		},
		State: StateConfig{
			Path:      "./data/state.db",
			Retention: 30 * 24 * time.Hour,
		},
	}
}
