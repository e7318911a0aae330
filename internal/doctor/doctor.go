// Package doctor checks a loaded publishgw configuration against the host it
// is about to run on: can the agent be found, can workspaces be created, is
// the run log path usable.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/eduba/publishgw/internal/config"
	"github.com/eduba/publishgw/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against the local host.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
	mountOf  func(string) (storage.Mount, error)
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath, mountOf: storage.Inspect}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateAgent(r)
	d.validateWorkspace(r)
	d.validateState(r)
	d.validateTokens(r)
	d.warnExposedListener(r)
	d.warnEmptyAgentEnv(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateAgent checks the executable resolves and the module is where the
// interpreter will look for it.
func (d *Doctor) validateAgent(r *Result) {
	a := d.cfg.Agent
	if _, err := d.lookPath(a.Executable); err != nil {
		d.addError(r, "agent", "agent.executable",
			fmt.Sprintf("executable %q not found: %v (set %s to override)", a.Executable, err, config.EnvPythonBin))
	}

	if a.Workdir != "" {
		info, err := os.Stat(a.Workdir)
		if err != nil || !info.IsDir() {
			d.addError(r, "agent", "agent.workdir", fmt.Sprintf("workdir %q is not a directory", a.Workdir))
			return
		}
	}

	if a.Module == "" || len(a.Args) > 0 {
		return
	}
	base := a.Workdir
	if base == "" {
		base = "."
	}
	modPath := filepath.Join(append([]string{base}, strings.Split(a.Module, ".")...)...)
	if !exists(modPath+".py") && !exists(filepath.Join(modPath, "__main__.py")) {
		d.addWarning(r, "agent", "agent.module",
			fmt.Sprintf("module %q not found under %s; it must be importable from the agent's environment", a.Module, base))
	}
}

// validateWorkspace creates and removes a probe directory under the root.
func (d *Doctor) validateWorkspace(r *Result) {
	root := d.cfg.Workspace.Root
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		d.addError(r, "workspace", "workspace.root", fmt.Sprintf("cannot create %q: %v", root, err))
		return
	}
	probe, err := os.MkdirTemp(root, d.cfg.Workspace.Prefix+"doctor-")
	if err != nil {
		d.addError(r, "workspace", "workspace.root", fmt.Sprintf("%q is not writable: %v", root, err))
		return
	}
	_ = os.RemoveAll(probe)

	if m, err := d.mountOf(root); err == nil && m.Network {
		d.addWarning(r, "workspace", "workspace.root",
			fmt.Sprintf("%q is on %s; staging and stale sweeps expect local disk", root, m.Type))
	}
}

func (d *Doctor) validateState(r *Result) {
	dir := filepath.Dir(d.cfg.State.Path)
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		d.addError(r, "state", "state.path", fmt.Sprintf("%q is not a directory", dir))
	}
	if m, err := d.mountOf(d.cfg.State.Path); err == nil && m.Network {
		d.addError(r, "state", "state.path",
			fmt.Sprintf("%q is on %s; the run log needs a local filesystem", d.cfg.State.Path, m.Type))
	}
	if d.cfg.State.Retention > 0 && d.cfg.State.Retention < d.cfg.Workspace.SweepInterval {
		d.addWarning(r, "state", "state.retention",
			"retention is shorter than the sweep interval; rows are pruned on every sweep")
	}
}

func (d *Doctor) validateTokens(r *Result) {
	seen := map[string]int{}
	for i, tok := range d.cfg.API.Auth.Tokens {
		field := fmt.Sprintf("api.auth.tokens[%d]", i)
		if j, dup := seen[tok.Token]; dup {
			d.addError(r, "auth", field+".token", fmt.Sprintf("duplicate of api.auth.tokens[%d].token", j))
		}
		seen[tok.Token] = i
		if tok.Name == "" {
			d.addWarning(r, "auth", field+".name", "unnamed token; log lines cannot attribute requests")
		}
		if len(tok.Token) < 16 {
			d.addWarning(r, "auth", field+".token", "token is shorter than 16 characters")
		}
	}
	if len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "auth", "api.auth.tokens", "no tokens configured; /api/invocations and /events are disabled")
	}
}

// warnExposedListener flags non-loopback listeners: the submission routes
// are unauthenticated and run a process per request.
func (d *Doctor) warnExposedListener(r *Result) {
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if host == "localhost" {
		return
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return
	}
	d.addWarning(r, "api", "api.listen",
		fmt.Sprintf("listening on %q; submission routes are unauthenticated, keep them behind the site's proxy", d.cfg.API.Listen))
}

func (d *Doctor) warnEmptyAgentEnv(r *Result) {
	for k, v := range d.cfg.Agent.Env {
		if v == "" {
			d.addWarning(r, "env_vars", "agent.env."+k, "value is empty (possibly unresolved environment variable)")
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
