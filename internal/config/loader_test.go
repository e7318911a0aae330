package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearOverrides blanks the override variables so the host environment
// cannot leak into a test.
func clearOverrides(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvPythonBin, EnvListen, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal config gets defaults",
			yaml: `
service:
  name: site-gw
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "site-gw" {
					t.Errorf("service.name = %q", cfg.Service.Name)
				}
				if cfg.Agent.Executable != "python3" || cfg.Agent.Module != "agent.cli" {
					t.Errorf("agent defaults not applied: %+v", cfg.Agent)
				}
				if cfg.API.MaxUploadSize != 64*MB {
					t.Errorf("max_upload_size = %d", cfg.API.MaxUploadSize)
				}
				if cfg.Workspace.Prefix != "eduba-" {
					t.Errorf("workspace.prefix = %q", cfg.Workspace.Prefix)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  log_level: debug
  log_format: text
api:
  listen: 0.0.0.0:9000
  max_upload_size: 10MB
  max_concurrent: 2
  cors_origins: ["https://eduba.example"]
  auth:
    tokens:
      - name: ops
        token: abc
        scopes: ["invocations:ro", "events:ro"]
agent:
  executable: /opt/venv/bin/python
  module: agent.cli
  workdir: /srv/agent
  env:
    OPENAI_MODEL: gpt-x
  timeout: 2m
  grace_period: 3s
  max_output: 1MB
  stop_on_cancel: true
workspace:
  root: /var/tmp/publishgw
  prefix: site-
  sweep_interval: 5m
  stale_after: 30m
state:
  path: /var/lib/publishgw/state.db
  retention: 168h
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Listen != "0.0.0.0:9000" || cfg.API.MaxUploadSize != 10*MB || cfg.API.MaxConcurrent != 2 {
					t.Errorf("api not parsed: %+v", cfg.API)
				}
				if len(cfg.API.Auth.Tokens) != 1 || cfg.API.Auth.Tokens[0].Name != "ops" {
					t.Errorf("tokens not parsed: %+v", cfg.API.Auth.Tokens)
				}
				if cfg.Agent.Timeout != 2*time.Minute || cfg.Agent.GracePeriod != 3*time.Second {
					t.Errorf("agent durations not parsed: %+v", cfg.Agent)
				}
				if cfg.Agent.MaxOutput != MB || !cfg.Agent.StopOnCancel {
					t.Errorf("agent limits not parsed: %+v", cfg.Agent)
				}
				if cfg.Workspace.Root != "/var/tmp/publishgw" || cfg.Workspace.StaleAfter != 30*time.Minute {
					t.Errorf("workspace not parsed: %+v", cfg.Workspace)
				}
				if cfg.State.Retention != 7*24*time.Hour {
					t.Errorf("state.retention = %s", cfg.State.Retention)
				}
			},
		},
		{
			name: "negative timeout disables the limit",
			yaml: `
agent:
  timeout: -1s
workspace:
  stale_after: 30m
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.AgentTimeout() != 0 {
					t.Errorf("AgentTimeout() = %s, want 0", cfg.AgentTimeout())
				}
			},
		},
		{
			name: "env var interpolation",
			yaml: `
state:
  path: ${DB_PATH}
api:
  auth:
    tokens:
      - token: ${OPS_TOKEN}
        scopes: ["*"]
`,
			env: map[string]string{"DB_PATH": "/tmp/test.db", "OPS_TOKEN": "s3cret"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.State.Path != "/tmp/test.db" {
					t.Errorf("env var not interpolated in state.path: %s", cfg.State.Path)
				}
				if cfg.API.Auth.Tokens[0].Token != "s3cret" {
					t.Errorf("env var not interpolated in token")
				}
			},
		},
		{
			name: "missing env var in token fails validation",
			yaml: `
api:
  auth:
    tokens:
      - token: ${MISSING_TOKEN_VAR}
        scopes: ["*"]
`,
			wantErr: "MISSING_TOKEN_VAR",
		},
		{
			name: "overrides beat the file",
			yaml: `
service:
  log_level: info
api:
  listen: 127.0.0.1:1
agent:
  executable: python3
`,
			env: map[string]string{
				EnvPythonBin: "/usr/bin/python3.12",
				EnvListen:    ":8181",
				EnvLogLevel:  "DEBUG",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Agent.Executable != "/usr/bin/python3.12" {
					t.Errorf("PYTHON_BIN not applied: %s", cfg.Agent.Executable)
				}
				if cfg.API.Listen != ":8181" {
					t.Errorf("listen override not applied: %s", cfg.API.Listen)
				}
				if cfg.Service.LogLevel != "debug" {
					t.Errorf("log level override not applied: %s", cfg.Service.LogLevel)
				}
			},
		},
		{
			name: "invalid log level",
			yaml: `
service:
  log_level: loud
`,
			wantErr: "service.log_level",
		},
		{
			name: "invalid size",
			yaml: `
api:
  max_upload_size: lots
`,
			wantErr: "invalid size",
		},
		{
			name: "unknown scope",
			yaml: `
api:
  auth:
    tokens:
      - token: abc
        scopes: ["plugin:rw"]
`,
			wantErr: "unknown scope",
		},
		{
			name: "stale_after must outlive the agent",
			yaml: `
agent:
  timeout: 1h
workspace:
  stale_after: 30m
`,
			wantErr: "workspace.stale_after",
		},
		{
			name: "prefix with separator",
			yaml: `
workspace:
  prefix: a/b
`,
			wantErr: "workspace.prefix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearOverrides(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if cfg.SourceFile != path {
				t.Errorf("SourceFile = %q, want %q", cfg.SourceFile, path)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadWithoutFile(t *testing.T) {
	clearOverrides(t)
	t.Setenv(EnvPythonBin, "/usr/local/bin/python3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.SourceFile != "" {
		t.Errorf("SourceFile = %q, want empty", cfg.SourceFile)
	}
	if cfg.Agent.Executable != "/usr/local/bin/python3" {
		t.Errorf("executable = %q", cfg.Agent.Executable)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearOverrides(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("PUBLISHGW_TEST_A=local\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PUBLISHGW_TEST_A=shared\nPUBLISHGW_TEST_B=shared\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PUBLISHGW_TEST_A", "")
	t.Setenv("PUBLISHGW_TEST_B", "")
	os.Unsetenv("PUBLISHGW_TEST_A")
	os.Unsetenv("PUBLISHGW_TEST_B")

	if err := LoadDotEnv(dir); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("PUBLISHGW_TEST_A"); got != "local" {
		t.Errorf("PUBLISHGW_TEST_A = %q, want .env.local to win", got)
	}
	if got := os.Getenv("PUBLISHGW_TEST_B"); got != "shared" {
		t.Errorf("PUBLISHGW_TEST_B = %q", got)
	}
}

func TestLoadDotEnvMissingFilesIgnored(t *testing.T) {
	if err := LoadDotEnv(t.TempDir()); err != nil {
		t.Fatalf("LoadDotEnv on empty dir: %v", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("PUBLISHGW_TEST_HOST", "example.com")

	got := interpolateEnv("https://${PUBLISHGW_TEST_HOST}/x ${PUBLISHGW_TEST_UNSET_VAR}")
	want := "https://example.com/x ${PUBLISHGW_TEST_UNSET_VAR}"
	if got != want {
		t.Errorf("interpolateEnv() = %q, want %q", got, want)
	}
}

func TestSelectorAndEnv(t *testing.T) {
	cfg := Defaults()
	if got := cfg.Selector(); len(got) != 2 || got[0] != "-m" || got[1] != "agent.cli" {
		t.Errorf("Selector() = %v", got)
	}

	cfg.Agent.Args = []string{"run.py"}
	if got := cfg.Selector(); len(got) != 1 || got[0] != "run.py" {
		t.Errorf("Selector() with args = %v", got)
	}

	cfg.Agent.Env = map[string]string{"B": "2", "A": "1"}
	if got := strings.Join(cfg.AgentEnv(), ","); got != "A=1,B=2" {
		t.Errorf("AgentEnv() = %q", got)
	}

	cfg.API.MaxConcurrent = -1
	if cfg.ConcurrencyLimit() != 0 {
		t.Errorf("ConcurrencyLimit() = %d, want 0", cfg.ConcurrencyLimit())
	}
}
