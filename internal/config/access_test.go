package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) *Config {
	t.Helper()
	clearOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestGetPath(t *testing.T) {
	cfg := writeConfig(t, `
agent:
  timeout: 90s
api:
  max_upload_size: 8MB
  auth:
    tokens:
      - name: ops
        token: very-secret
        scopes: ["*"]
`)

	got, err := cfg.GetPath("agent.timeout")
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if got != "1m30s" {
		t.Errorf("agent.timeout = %v", got)
	}

	got, err = cfg.GetPath("api.max_upload_size")
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if got != "8MB" {
		t.Errorf("api.max_upload_size = %v", got)
	}

	got, err = cfg.GetPath("api.auth")
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	if s := fmt.Sprint(got); strings.Contains(s, "very-secret") {
		t.Errorf("token leaked through GetPath: %s", s)
	}
	if cfg.API.Auth.Tokens[0].Token != "very-secret" {
		t.Errorf("GetPath mutated the live config")
	}

	if _, err := cfg.GetPath("agent.nope"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := cfg.GetPath("agent.timeout.deeper"); err == nil {
		t.Error("expected error for path through a scalar")
	}
}

func TestSetPath(t *testing.T) {
	cfg := writeConfig(t, "agent:\n  executable: python3\n")

	if err := cfg.SetPath("agent.timeout", "3m"); err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	reloaded, err := Load(cfg.SourceFile)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Agent.Timeout.String() != "3m0s" {
		t.Errorf("agent.timeout = %s", reloaded.Agent.Timeout)
	}

	if err := cfg.SetPath("api.max_concurrent", "8"); err != nil {
		t.Fatalf("SetPath int: %v", err)
	}
	reloaded, err = Load(cfg.SourceFile)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.API.MaxConcurrent != 8 {
		t.Errorf("api.max_concurrent = %d", reloaded.API.MaxConcurrent)
	}
}

func TestSetPathRollsBackInvalid(t *testing.T) {
	cfg := writeConfig(t, "service:\n  log_level: info\n")
	before, err := os.ReadFile(cfg.SourceFile)
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.SetPath("service.log_level", "shouting"); err == nil {
		t.Fatal("expected validation error")
	}
	after, err := os.ReadFile(cfg.SourceFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Errorf("file not restored:\n%s", after)
	}
}

func TestSetPathWithoutFile(t *testing.T) {
	if err := Defaults().SetPath("agent.timeout", "1m"); err == nil {
		t.Fatal("expected error without a source file")
	}
}

func TestFingerprint(t *testing.T) {
	cfg := writeConfig(t, "service:\n  name: a\n")
	fp, err := cfg.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if !strings.HasPrefix(fp, "blake3:") || len(fp) != len("blake3:")+16 {
		t.Errorf("Fingerprint = %q", fp)
	}

	if err := os.WriteFile(cfg.SourceFile, []byte("service:\n  name: b\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	fp2, err := cfg.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if fp == fp2 {
		t.Error("fingerprint did not change with the file")
	}

	empty, err := Defaults().Fingerprint()
	if err != nil || empty != "" {
		t.Errorf("Defaults().Fingerprint() = %q, %v", empty, err)
	}
}
