package janitor

import (
	"context"
	"time"

	"github.com/eduba/publishgw/internal/workspace"
)

//go:generate mockgen -destination=mocks/mock_janitor.go -package=mocks github.com/eduba/publishgw/internal/janitor WorkspaceSweeper,RunLogService

// WorkspaceSweeper removes leftover invocation workspaces.
type WorkspaceSweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) (workspace.CleanupReport, error)
}

// RunLogService defines the run log operations used by the janitor.
type RunLogService interface {
	MarkAbandoned(ctx context.Context) (int64, error)
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}
