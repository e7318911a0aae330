// Package runner launches the publishing agent and captures its output.
//
// Each Run spawns exactly one child process with an explicit argument vector
// (no shell), drains stdout and stderr on two goroutines while the child
// runs, and reaps the child before returning. A nonzero exit status is a
// normal Outcome, not an error; only a failure to start the process is
// reported as ErrLaunch.
//
// Timeout handling:
//   - Config.Timeout of zero disables the wall-clock limit
//   - on expiry SIGTERM is sent to the child's process group
//   - after Config.GracePeriod SIGKILL follows if it is still running
//   - the Outcome is marked TimedOut
//
// By default a cancelled caller context does not stop the child; set
// Config.StopOnCancel to terminate it the same way a timeout does.
package runner
