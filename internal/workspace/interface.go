package workspace

import (
	"context"
	"errors"
	"time"

	"github.com/eduba/publishgw/internal/command"
)

// ErrStaging marks failures to create a workspace or write uploads into it.
var ErrStaging = errors.New("staging failed")

// Workspace is a private directory owned by exactly one in-flight invocation.
type Workspace struct {
	ID  string
	Dir string
}

// StagedFile is an upload materialized inside a workspace.
type StagedFile struct {
	Name   string `json:"name"`
	Path   string `json:"-"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// CleanupReport summarizes a sweep run.
type CleanupReport struct {
	DeletedDirs int
}

//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/eduba/publishgw/internal/workspace Manager

// Manager governs the scoped lifecycle of invocation workspaces.
//
// Callers must defer Release immediately after a successful Acquire.
type Manager interface {
	// Acquire creates a fresh, uniquely named workspace.
	Acquire(ctx context.Context) (Workspace, error)

	// Materialize writes uploads into ws in order and returns their paths.
	Materialize(ctx context.Context, ws Workspace, uploads []command.Upload) ([]StagedFile, error)

	// Release removes ws recursively. Missing or partial state is not an error.
	Release(ws Workspace) error

	// Sweep removes leftover workspaces older than olderThan.
	Sweep(ctx context.Context, olderThan time.Duration) (CleanupReport, error)
}
