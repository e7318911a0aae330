package workspace

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/eduba/publishgw/internal/command"
	"github.com/eduba/publishgw/internal/log"
)

// DefaultPrefix names every workspace directory so sweeps never touch
// unrelated temp entries.
const DefaultPrefix = "eduba-"

// FSManager stages invocation workspaces on local disk.
type FSManager struct {
	root   string
	prefix string
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

var _ Manager = (*FSManager)(nil)

// NewFSManager creates a filesystem-backed workspace manager. An empty root
// means the platform temp directory; an empty prefix means DefaultPrefix.
func NewFSManager(root, prefix string) (*FSManager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = os.TempDir()
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if strings.ContainsAny(prefix, `/\`) {
		return nil, fmt.Errorf("workspace prefix %q must not contain path separators", prefix)
	}
	// Staged paths are handed to an agent that may run in another directory.
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root %q: %w", root, err)
	}

	return &FSManager{
		root:   abs,
		prefix: prefix,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.WithComponent("workspace"),
	}, nil
}

// Root returns the directory workspaces are created under.
func (m *FSManager) Root() string {
	return m.root
}

// Acquire creates root/<prefix><uuid>. os.Mkdir fails on an existing path so
// two invocations can never share a directory.
func (m *FSManager) Acquire(ctx context.Context) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("%w: create workspace root: %v", ErrStaging, err)
	}

	id := m.newID()
	dir := filepath.Join(m.root, m.prefix+id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return Workspace{}, fmt.Errorf("%w: create workspace %q: %v", ErrStaging, id, err)
	}

	return Workspace{ID: id, Dir: dir}, nil
}

// Materialize writes each upload into ws.Dir. Output order matches input
// order. A repeated filename overwrites the earlier file.
func (m *FSManager) Materialize(ctx context.Context, ws Workspace, uploads []command.Upload) ([]StagedFile, error) {
	staged := make([]StagedFile, 0, len(uploads))
	seen := make(map[string]int, len(uploads))

	for i, up := range uploads {
		if err := ctx.Err(); err != nil {
			return staged, err
		}

		name := stagedName(up.Filename, i+1)
		path := filepath.Join(ws.Dir, name)

		if prev, ok := seen[name]; ok {
			m.logger.Warn("duplicate upload filename overwrites earlier document",
				"workspace", ws.ID, "filename", name, "first_index", prev, "index", i)
		}
		seen[name] = i

		if err := os.WriteFile(path, up.Content, 0o600); err != nil {
			return staged, fmt.Errorf("%w: write %q: %v", ErrStaging, name, err)
		}

		sum := blake3.Sum256(up.Content)
		staged = append(staged, StagedFile{
			Name:   name,
			Path:   path,
			Size:   int64(len(up.Content)),
			Digest: "blake3:" + hex.EncodeToString(sum[:]),
		})
	}

	return staged, nil
}

// Release removes the workspace. os.RemoveAll already treats a missing path
// as success.
func (m *FSManager) Release(ws Workspace) error {
	if ws.Dir == "" {
		return nil
	}
	if err := m.owns(ws.Dir); err != nil {
		return err
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return fmt.Errorf("remove workspace %q: %w", ws.ID, err)
	}
	return nil
}

// Sweep removes prefixed workspace directories whose modification time is
// older than olderThan. These are left behind only when the process died
// mid-invocation.
func (m *FSManager) Sweep(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.root)
	if os.IsNotExist(err) {
		return CleanupReport{}, nil
	}
	if err != nil {
		return CleanupReport{}, fmt.Errorf("read workspace root: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := CleanupReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), m.prefix) {
			continue
		}

		info, err := entry.Info()
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return report, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(m.root, entry.Name())); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
	}

	return report, nil
}

// owns guards Release against paths outside this manager's namespace.
func (m *FSManager) owns(dir string) error {
	clean := filepath.Clean(dir)
	if filepath.Dir(clean) != m.root || !strings.HasPrefix(filepath.Base(clean), m.prefix) {
		return fmt.Errorf("path %q is not a workspace under %q", dir, m.root)
	}
	return nil
}

// stagedName reduces an upload filename to a safe base name, falling back to
// document-<n> when nothing usable is left.
func stagedName(filename string, n int) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		return fmt.Sprintf("document-%d", n)
	}
	return name
}
