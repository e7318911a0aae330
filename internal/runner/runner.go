package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/eduba/publishgw/internal/log"
)

const (
	// DefaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	DefaultGracePeriod = 5 * time.Second

	// DefaultMaxOutputBytes caps each captured stream.
	DefaultMaxOutputBytes = 4 << 20
)

// ErrLaunch marks a failure to spawn the agent process.
var ErrLaunch = errors.New("agent launch failed")

// Config is injected at construction so tests can point at a fake agent.
type Config struct {
	Executable string
	// Env entries ("KEY=value") are appended to the inherited environment.
	Env            []string
	Dir            string
	Timeout        time.Duration
	GracePeriod    time.Duration
	MaxOutputBytes int
	StopOnCancel   bool
}

// Outcome is what one agent run produced.
type Outcome struct {
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"-"`
	Stderr    string        `json:"-"`
	Duration  time.Duration `json:"duration"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Canceled  bool          `json:"canceled,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
}

// Runner spawns the agent executable.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Runner, error) {
	cfg.Executable = strings.TrimSpace(cfg.Executable)
	if cfg.Executable == "" {
		return nil, fmt.Errorf("agent executable is empty")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative")
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	return &Runner{cfg: cfg, logger: log.WithComponent("runner")}, nil
}

// Executable returns the configured agent binary.
func (r *Runner) Executable() string {
	return r.cfg.Executable
}

// Run executes the agent with argv and blocks until it has exited and both
// output streams are fully drained.
func (r *Runner) Run(ctx context.Context, argv []string) (Outcome, error) {
	cmd := exec.Command(r.cfg.Executable, argv...)
	cmd.Dir = r.cfg.Dir
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	setProcessGroup(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: create stdout pipe: %v", ErrLaunch, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: create stderr pipe: %v", ErrLaunch, err)
	}

	logger := r.logger
	if id, ok := ctx.Value(invocationKey{}).(string); ok {
		logger = logger.With("invocation_id", id)
	}
	logger.Debug("spawning agent", "executable", r.cfg.Executable, "args", len(argv), "timeout", r.cfg.Timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	stdout := newCappedBuffer(r.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(r.cfg.MaxOutputBytes)

	// Both readers run while the child runs; Wait is only called once
	// they hit EOF, as os/exec requires for pipes.
	var drained sync.WaitGroup
	drained.Add(2)
	go drain(&drained, stdoutPipe, stdout)
	go drain(&drained, stderrPipe, stderr)

	waitErr := make(chan error, 1)
	go func() {
		drained.Wait()
		waitErr <- cmd.Wait()
	}()

	var timeoutC <-chan time.Time
	if r.cfg.Timeout > 0 {
		timer := time.NewTimer(r.cfg.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var cancelC <-chan struct{}
	if r.cfg.StopOnCancel {
		cancelC = ctx.Done()
	}

	out := Outcome{}
	select {
	case err = <-waitErr:
	case <-timeoutC:
		logger.Warn("agent run timed out, sending SIGTERM", "timeout", r.cfg.Timeout)
		out.TimedOut = true
		err = r.terminate(cmd, waitErr, logger)
	case <-cancelC:
		logger.Warn("caller went away, stopping agent")
		out.Canceled = true
		err = r.terminate(cmd, waitErr, logger)
	}

	out.Duration = time.Since(start)
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	out.Truncated = stdout.Truncated() || stderr.Truncated()

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return out, fmt.Errorf("wait for agent: %w", err)
		}
		// -1 when the child was killed by a signal.
		out.ExitCode = exitErr.ExitCode()
	}

	logger.Debug("agent exited", "exit_code", out.ExitCode, "duration_ms", out.Duration.Milliseconds())
	return out, nil
}

// terminate sends SIGTERM, waits for the grace period, then SIGKILL. It
// always returns the child's wait error so the process is reaped.
func (r *Runner) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) error {
	if err := signalTerminate(cmd); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(r.cfg.GracePeriod)
	defer grace.Stop()

	select {
	case err := <-waitErr:
		logger.Info("agent exited after SIGTERM")
		return err
	case <-grace.C:
		logger.Warn("agent did not exit after SIGTERM, sending SIGKILL")
		if err := signalKill(cmd); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		return <-waitErr
	}
}

func drain(wg *sync.WaitGroup, src io.Reader, dst io.Writer) {
	defer wg.Done()
	// The writer never fails, so Copy only stops at EOF or a closed pipe.
	_, _ = io.Copy(dst, src)
}

type invocationKey struct{}

// WithInvocationID tags ctx so runner logs carry the invocation ID.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationKey{}, id)
}
