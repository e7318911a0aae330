// Package gateway runs one submission end to end: validate, stage uploads in
// a private workspace, run the agent, extract the result and remove the
// workspace before returning.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/eduba/publishgw/internal/command"
	"github.com/eduba/publishgw/internal/events"
	"github.com/eduba/publishgw/internal/log"
	"github.com/eduba/publishgw/internal/protocol"
	"github.com/eduba/publishgw/internal/runlog"
	"github.com/eduba/publishgw/internal/runner"
	"github.com/eduba/publishgw/internal/workspace"
)

// ErrBusy is returned when MaxConcurrent invocations are already in flight.
var ErrBusy = errors.New("too many concurrent agent runs")

// DefaultSelector runs the agent's CLI module.
var DefaultSelector = []string{"-m", "agent.cli"}

// AgentRunner runs the agent with an argument vector.
type AgentRunner interface {
	Run(ctx context.Context, argv []string) (runner.Outcome, error)
}

// RunLog records invocations. Failures are logged, never surfaced.
type RunLog interface {
	Start(ctx context.Context, req runlog.StartRequest) (string, error)
	Complete(ctx context.Context, id string, c runlog.Completion) error
}

type Config struct {
	// Selector is prepended to every argument vector.
	Selector []string
	// MaxConcurrent bounds in-flight invocations; 0 means unbounded.
	MaxConcurrent int
}

// Invocation is the outcome of one Invoke call.
type Invocation struct {
	ID        string
	Kind      command.Kind
	Result    protocol.Result
	Outcome   runner.Outcome
	Documents []workspace.StagedFile
}

type Gateway struct {
	cfg        Config
	workspaces workspace.Manager
	agent      AgentRunner
	runs       RunLog
	events     events.Publisher
	logger     *slog.Logger

	sem      chan struct{}
	inFlight atomic.Int64
}

// New wires a gateway. runs and hub may be nil.
func New(cfg Config, workspaces workspace.Manager, agent AgentRunner, runs RunLog, hub events.Publisher) (*Gateway, error) {
	if workspaces == nil {
		return nil, fmt.Errorf("workspace manager is nil")
	}
	if agent == nil {
		return nil, fmt.Errorf("agent runner is nil")
	}
	if cfg.MaxConcurrent < 0 {
		return nil, fmt.Errorf("max concurrent must not be negative")
	}
	if cfg.Selector == nil {
		cfg.Selector = DefaultSelector
	}

	g := &Gateway{
		cfg:        cfg,
		workspaces: workspaces,
		agent:      agent,
		runs:       runs,
		events:     hub,
		logger:     log.WithComponent("gateway"),
	}
	if cfg.MaxConcurrent > 0 {
		g.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return g, nil
}

// InFlight returns the number of invocations currently running.
func (g *Gateway) InFlight() int64 {
	return g.inFlight.Load()
}

// Invoke runs d through the pipeline. Agent failures come back as a Result
// with OK false; the error return is reserved for validation, ErrBusy,
// workspace.ErrStaging, runner.ErrLaunch and unexpected faults.
//
// The workspace is released before Invoke returns, whatever the outcome.
func (g *Gateway) Invoke(ctx context.Context, d command.Descriptor) (Invocation, error) {
	if err := d.Validate(); err != nil {
		return Invocation{Kind: d.Kind}, err
	}

	if g.sem != nil {
		select {
		case g.sem <- struct{}{}:
			defer func() { <-g.sem }()
		default:
			return Invocation{Kind: d.Kind}, ErrBusy
		}
	}
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	inv := Invocation{ID: uuid.NewString(), Kind: d.Kind}
	logger := log.WithInvocation(inv.ID).With("component", "gateway", "kind", d.Kind)
	g.begin(ctx, inv, d, logger)

	err := g.run(ctx, &inv, d, logger)
	g.finish(ctx, inv, err, logger)
	return inv, err
}

func (g *Gateway) run(ctx context.Context, inv *Invocation, d command.Descriptor, logger *slog.Logger) error {
	ws, err := g.workspaces.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := g.workspaces.Release(ws); rerr != nil {
			logger.Error("failed to release workspace", "dir", ws.Dir, "error", rerr)
		}
	}()

	staged, err := g.workspaces.Materialize(ctx, ws, d.Documents)
	if err != nil {
		return err
	}
	inv.Documents = staged

	paths := make([]string, len(staged))
	for i, f := range staged {
		paths[i] = f.Path
	}
	argv := protocol.EncodeArgs(g.cfg.Selector, d, paths)
	logger.Info("running agent", "documents", len(staged), "links", len(d.Links), "dry_run", d.DryRun)

	out, err := g.agent.Run(runner.WithInvocationID(ctx, inv.ID), argv)
	if err != nil {
		return err
	}
	inv.Outcome = out

	switch {
	case out.TimedOut:
		inv.Result = protocol.Failure(protocol.TimeoutReason, out.Stdout, out.Stderr)
	case out.Canceled:
		inv.Result = protocol.Failure(protocol.CanceledReason, out.Stdout, out.Stderr)
	default:
		inv.Result = protocol.DecodeResult(out.ExitCode, out.Stdout, out.Stderr, protocol.MarkersFor(d.Kind))
	}
	return nil
}

func (g *Gateway) begin(ctx context.Context, inv Invocation, d command.Descriptor, logger *slog.Logger) {
	if g.runs != nil {
		_, err := g.runs.Start(ctx, runlog.StartRequest{
			ID:        inv.ID,
			Kind:      string(d.Kind),
			Company:   d.Company,
			Sector:    d.Sector,
			Slug:      d.Slug,
			RequestID: RequestIDFromContext(ctx),
			LinkCount: len(d.Links),
			DryRun:    d.DryRun,
		})
		if err != nil {
			logger.Warn("failed to record invocation start", "error", err)
		}
	}
	g.publish(events.TypeInvocationStarted, startedEvent{
		InvocationID: inv.ID,
		Kind:         string(d.Kind),
		Company:      d.Company,
		Sector:       d.Sector,
		Slug:         d.Slug,
		Documents:    len(d.Documents),
		Links:        len(d.Links),
	})
}

func (g *Gateway) finish(ctx context.Context, inv Invocation, runErr error, logger *slog.Logger) {
	c := completionFor(inv, runErr)

	switch {
	case runErr != nil:
		logger.Error("invocation failed", "status", c.Status, "error", runErr)
	case inv.Result.OK:
		logger.Info("invocation succeeded", "exit_code", inv.Outcome.ExitCode,
			"duration_ms", inv.Outcome.Duration.Milliseconds(), "url", derefString(inv.Result.URL))
	default:
		logger.Warn("agent run failed", "status", c.Status, "exit_code", inv.Outcome.ExitCode,
			"duration_ms", inv.Outcome.Duration.Milliseconds())
	}

	if g.runs != nil {
		// The run log is written even when the client has gone away.
		if err := g.runs.Complete(context.WithoutCancel(ctx), inv.ID, c); err != nil {
			logger.Warn("failed to record invocation completion", "error", err)
		}
	}

	ev := completedEvent{
		InvocationID: inv.ID,
		Kind:         string(inv.Kind),
		Status:       string(c.Status),
		DurationMS:   inv.Outcome.Duration.Milliseconds(),
		ExitCode:     c.ExitCode,
		URL:          inv.Result.URL,
	}
	if c.Status == runlog.StatusSucceeded {
		g.publish(events.TypeInvocationCompleted, ev)
		return
	}
	if c.LastError != nil {
		ev.Error = *c.LastError
	}
	g.publish(events.TypeInvocationFailed, ev)
}

func (g *Gateway) publish(eventType string, data any) {
	if g.events != nil {
		g.events.Publish(eventType, data)
	}
}

func completionFor(inv Invocation, runErr error) runlog.Completion {
	c := runlog.Completion{Duration: inv.Outcome.Duration}
	if len(inv.Documents) > 0 {
		c.Documents = make([]runlog.Document, len(inv.Documents))
		for i, f := range inv.Documents {
			c.Documents[i] = runlog.Document{Name: f.Name, Size: f.Size, Digest: f.Digest}
		}
	}

	if runErr != nil {
		msg := runErr.Error()
		c.Status = runlog.StatusError
		c.LastError = &msg
		return c
	}

	exitCode := inv.Outcome.ExitCode
	c.ExitCode = &exitCode
	if inv.Outcome.Stderr != "" {
		stderr := inv.Outcome.Stderr
		c.Stderr = &stderr
	}

	switch {
	case inv.Outcome.TimedOut:
		c.Status = runlog.StatusTimedOut
	case inv.Outcome.Canceled:
		c.Status = runlog.StatusCanceled
	case inv.Result.OK:
		c.Status = runlog.StatusSucceeded
		c.PublishedURL = inv.Result.URL
		return c
	default:
		c.Status = runlog.StatusFailed
	}
	reason := inv.Result.Reason
	c.LastError = &reason
	return c
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
