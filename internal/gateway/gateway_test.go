package gateway

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduba/publishgw/internal/command"
	"github.com/eduba/publishgw/internal/events"
	"github.com/eduba/publishgw/internal/log"
	"github.com/eduba/publishgw/internal/protocol"
	"github.com/eduba/publishgw/internal/runlog"
	"github.com/eduba/publishgw/internal/runner"
	"github.com/eduba/publishgw/internal/storage"
	"github.com/eduba/publishgw/internal/workspace"
	"github.com/eduba/publishgw/internal/workspace/mocks"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

type harness struct {
	gw      *Gateway
	root    string
	argsLog string
	runs    *runlog.Store
	hub     *events.Hub
}

// newHarness wires a gateway around a shell script agent. The script sees
// ARGS_LOG, where it may record its argv one element per line.
func newHarness(t *testing.T, script string, cfg Config) *harness {
	t.Helper()

	bin := t.TempDir()
	agent := filepath.Join(bin, "agent.sh")
	require.NoError(t, os.WriteFile(agent, []byte("#!/bin/sh\n"+script), 0o755))
	argsLog := filepath.Join(bin, "args.log")

	root := filepath.Join(t.TempDir(), "workspaces")
	wm, err := workspace.NewFSManager(root, "")
	require.NoError(t, err)

	r, err := runner.New(runner.Config{
		Executable: agent,
		Env:        []string{"ARGS_LOG=" + argsLog},
		Timeout:    10 * time.Second,
	})
	require.NoError(t, err)

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	runs := runlog.New(db)
	hub := events.NewHub(16)

	if cfg.Selector == nil {
		cfg.Selector = []string{}
	}
	gw, err := New(cfg, wm, r, runs, hub)
	require.NoError(t, err)

	return &harness{gw: gw, root: root, argsLog: argsLog, runs: runs, hub: hub}
}

// workspaceEntries probes the workspace root directly.
func (h *harness) workspaceEntries(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (h *harness) recordedArgs(t *testing.T) []string {
	t.Helper()
	b, err := os.ReadFile(h.argsLog)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

const recordArgs = `for a in "$@"; do printf '%s\n' "$a" >> "$ARGS_LOG"; done
`

func createDescriptor() command.Descriptor {
	return command.Descriptor{
		Kind:    command.KindCreate,
		Company: "Acme",
		Sector:  "Retail",
		Context: "ctx",
		Links:   []string{"https://a.com", "https://b.com"},
		Documents: []command.Upload{
			{Filename: "deck.pdf", Content: []byte("deck")},
			{Filename: "", Content: []byte("anon")},
		},
	}
}

func TestInvokeSuccessExtractsURLAndCleansUp(t *testing.T) {
	h := newHarness(t, recordArgs+`
while [ $# -gt 0 ]; do
  if [ "$1" = "--doc" ]; then test -f "$2" || exit 9; shift; fi
  shift
done
echo noise
echo "Published: https://example.com/acme"
echo more
`, Config{})

	inv, err := h.gw.Invoke(context.Background(), createDescriptor())
	require.NoError(t, err)
	require.True(t, inv.Result.OK, "diagnostic: %s", inv.Result.Diagnostic)
	require.NotNil(t, inv.Result.URL)
	assert.Equal(t, "https://example.com/acme", *inv.Result.URL)
	assert.Contains(t, inv.Result.Output, "noise\n")
	assert.Empty(t, h.workspaceEntries(t), "workspace must be removed before Invoke returns")

	args := h.recordedArgs(t)
	require.Len(t, args, 6+4+4)
	assert.Equal(t, []string{"--company", "Acme", "--sector", "Retail", "--context", "ctx"}, args[:6])
	assert.Equal(t, "--doc", args[6])
	assert.Equal(t, "deck.pdf", filepath.Base(args[7]))
	assert.Equal(t, "document-2", filepath.Base(args[9]))
	assert.Equal(t, []string{"--link", "https://a.com", "--link", "https://b.com"}, args[10:])

	rec, err := h.runs.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusSucceeded, rec.Status)
	require.Len(t, rec.Documents, 2)
	assert.True(t, strings.HasPrefix(rec.Documents[0].Digest, "blake3:"))

	snap := h.hub.SnapshotSince(0)
	require.Len(t, snap, 2)
	assert.Equal(t, events.TypeInvocationStarted, snap[0].Type)
	assert.Equal(t, events.TypeInvocationCompleted, snap[1].Type)
}

func TestInvokeNoMarkerIsSoftSuccess(t *testing.T) {
	h := newHarness(t, "echo done\n", Config{})

	inv, err := h.gw.Invoke(context.Background(), createDescriptor())
	require.NoError(t, err)
	assert.True(t, inv.Result.OK)
	assert.Nil(t, inv.Result.URL)
	assert.Equal(t, "done\n", inv.Result.Output)
}

func TestInvokeAgentFailureCleansUp(t *testing.T) {
	h := newHarness(t, "echo 'only stdout'\nexit 1\n", Config{})

	inv, err := h.gw.Invoke(context.Background(), createDescriptor())
	require.NoError(t, err)
	assert.False(t, inv.Result.OK)
	assert.Equal(t, protocol.FailureReason, inv.Result.Reason)
	assert.Equal(t, "only stdout\n", inv.Result.Diagnostic)
	assert.Equal(t, 1, inv.Outcome.ExitCode)
	assert.Empty(t, h.workspaceEntries(t))

	rec, err := h.runs.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, runlog.StatusFailed, rec.Status)

	snap := h.hub.SnapshotSince(0)
	require.Len(t, snap, 2)
	assert.Equal(t, events.TypeInvocationFailed, snap[1].Type)
}

func TestInvokeLaunchFailureCleansUp(t *testing.T) {
	root := filepath.Join(t.TempDir(), "workspaces")
	wm, err := workspace.NewFSManager(root, "")
	require.NoError(t, err)
	r, err := runner.New(runner.Config{Executable: filepath.Join(t.TempDir(), "missing-agent")})
	require.NoError(t, err)
	gw, err := New(Config{}, wm, r, nil, nil)
	require.NoError(t, err)

	_, err = gw.Invoke(context.Background(), createDescriptor())
	require.ErrorIs(t, err, runner.ErrLaunch)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvokeValidationCreatesNoWorkspace(t *testing.T) {
	h := newHarness(t, recordArgs, Config{})

	d := createDescriptor()
	d.Company = ""
	_, err := h.gw.Invoke(context.Background(), d)
	require.ErrorIs(t, err, command.ErrValidation)
	assert.Empty(t, h.workspaceEntries(t))
	_, statErr := os.Stat(h.argsLog)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "agent must not run")
	assert.Empty(t, h.hub.SnapshotSince(0))
}

func TestInvokeRefine(t *testing.T) {
	h := newHarness(t, recordArgs+`echo "Updated: https://example.com/retail"
echo "Published: https://example.com/other"
`, Config{Selector: []string{"-m", "agent.cli"}})

	inv, err := h.gw.Invoke(context.Background(), command.Descriptor{
		Kind:         command.KindRefine,
		Slug:         "retail",
		Instructions: "shorter intro",
		DryRun:       true,
	})
	require.NoError(t, err)
	require.NotNil(t, inv.Result.URL)
	assert.Equal(t, "https://example.com/retail", *inv.Result.URL)
	assert.Equal(t, []string{
		"-m", "agent.cli", "--edit-slug", "retail", "--instructions", "shorter intro", "--context", "", "--no-publish",
	}, h.recordedArgs(t))
}

func TestInvokeTimeoutReportsFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "workspaces")
	wm, err := workspace.NewFSManager(root, "")
	require.NoError(t, err)

	agent := filepath.Join(t.TempDir(), "agent.sh")
	require.NoError(t, os.WriteFile(agent, []byte("#!/bin/sh\necho starting >&2\nexec sleep 30\n"), 0o755))
	r, err := runner.New(runner.Config{Executable: agent, Timeout: 200 * time.Millisecond, GracePeriod: 200 * time.Millisecond})
	require.NoError(t, err)
	gw, err := New(Config{}, wm, r, nil, nil)
	require.NoError(t, err)

	inv, err := gw.Invoke(context.Background(), createDescriptor())
	require.NoError(t, err)
	assert.False(t, inv.Result.OK)
	assert.Equal(t, protocol.TimeoutReason, inv.Result.Reason)
	assert.Equal(t, "starting\n", inv.Result.Diagnostic)
	assert.True(t, inv.Outcome.TimedOut)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvokeStagingFailureReleasesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	wm := mocks.NewMockManager(ctrl)
	ws := workspace.Workspace{ID: "x", Dir: "/tmp/eduba-x"}
	stageErr := errors.New("disk full")

	gomock.InOrder(
		wm.EXPECT().Acquire(gomock.Any()).Return(ws, nil),
		wm.EXPECT().Materialize(gomock.Any(), ws, gomock.Any()).Return(nil, stageErr),
		wm.EXPECT().Release(ws).Return(nil).Times(1),
	)

	agent := &blockingAgent{}
	gw, err := New(Config{}, wm, agent, nil, nil)
	require.NoError(t, err)

	_, err = gw.Invoke(context.Background(), createDescriptor())
	require.ErrorIs(t, err, stageErr)
	assert.Zero(t, agent.calls)
}

func TestInvokeReleaseFailureDoesNotMaskResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	wm := mocks.NewMockManager(ctrl)
	ws := workspace.Workspace{ID: "x", Dir: "/tmp/eduba-x"}
	wm.EXPECT().Acquire(gomock.Any()).Return(ws, nil)
	wm.EXPECT().Materialize(gomock.Any(), ws, gomock.Any()).Return([]workspace.StagedFile{}, nil)
	wm.EXPECT().Release(ws).Return(errors.New("busy"))

	agent := &blockingAgent{out: runner.Outcome{Stdout: "Published: https://x\n"}}
	gw, err := New(Config{}, wm, agent, nil, nil)
	require.NoError(t, err)

	inv, err := gw.Invoke(context.Background(), command.Descriptor{Kind: command.KindCreate, Company: "A", Sector: "B"})
	require.NoError(t, err)
	require.True(t, inv.Result.OK)
	assert.Equal(t, "https://x", *inv.Result.URL)
}

func TestInvokeBusy(t *testing.T) {
	root := filepath.Join(t.TempDir(), "workspaces")
	wm, err := workspace.NewFSManager(root, "")
	require.NoError(t, err)

	agent := &blockingAgent{started: make(chan struct{}), release: make(chan struct{})}
	gw, err := New(Config{MaxConcurrent: 1}, wm, agent, nil, nil)
	require.NoError(t, err)

	d := command.Descriptor{Kind: command.KindCreate, Company: "A", Sector: "B"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := gw.Invoke(context.Background(), d)
		assert.NoError(t, err)
	}()

	select {
	case <-agent.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first invocation never reached the agent")
	}
	assert.Equal(t, int64(1), gw.InFlight())

	_, err = gw.Invoke(context.Background(), d)
	assert.ErrorIs(t, err, ErrBusy)

	close(agent.release)
	wg.Wait()
	assert.Equal(t, int64(0), gw.InFlight())

	_, err = gw.Invoke(context.Background(), d)
	assert.NoError(t, err)
}

func TestConcurrentInvocationsUseDistinctWorkspaces(t *testing.T) {
	h := newHarness(t, `pwd_doc=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--doc" ]; then pwd_doc="$2"; shift; fi
  shift
done
echo "Published: $(dirname "$pwd_doc")"
`, Config{})

	const n = 8
	dirs := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inv, err := h.gw.Invoke(context.Background(), createDescriptor())
			if assert.NoError(t, err) && assert.NotNil(t, inv.Result.URL) {
				dirs[i] = *inv.Result.URL
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, d := range dirs {
		assert.False(t, seen[d], "workspace %s shared", d)
		seen[d] = true
	}
	assert.Empty(t, h.workspaceEntries(t))
}

func TestInvokeRecordsRequestID(t *testing.T) {
	h := newHarness(t, "echo ok\n", Config{})

	ctx := WithRequestID(context.Background(), "req-42")
	inv, err := h.gw.Invoke(ctx, createDescriptor())
	require.NoError(t, err)

	rec, err := h.runs.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "req-42", rec.RequestID)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{}, nil, &blockingAgent{}, nil, nil)
	assert.Error(t, err)

	ctrl := gomock.NewController(t)
	wm := mocks.NewMockManager(ctrl)
	_, err = New(Config{}, wm, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{MaxConcurrent: -1}, wm, &blockingAgent{}, nil, nil)
	assert.Error(t, err)

	gw, err := New(Config{}, wm, &blockingAgent{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSelector, gw.cfg.Selector)
}

// blockingAgent is an AgentRunner that optionally parks until released.
type blockingAgent struct {
	mu      sync.Mutex
	calls   int
	out     runner.Outcome
	started chan struct{}
	release chan struct{}
}

func (a *blockingAgent) Run(ctx context.Context, argv []string) (runner.Outcome, error) {
	a.mu.Lock()
	a.calls++
	first := a.calls == 1
	a.mu.Unlock()

	if first && a.started != nil {
		close(a.started)
		<-a.release
	}
	return a.out, nil
}
