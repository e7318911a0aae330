package protocol

import (
	"strings"

	"github.com/eduba/publishgw/internal/command"
)

// EncodeArgs builds the agent argument vector. selector is prepended as-is
// (e.g. "-m", "agent.cli"). Every value is its own element, so nothing in
// the descriptor can be reinterpreted by a shell.
func EncodeArgs(selector []string, d command.Descriptor, docPaths []string) []string {
	args := make([]string, 0, len(selector)+10+2*(len(docPaths)+len(d.Links)))
	args = append(args, selector...)

	switch d.Kind {
	case command.KindRefine:
		args = append(args, FlagEditSlug, d.Slug)
		if d.Sector != "" {
			args = append(args, FlagSector, d.Sector)
		}
		args = append(args, FlagInstructions, d.Instructions, FlagContext, d.Context)
	default:
		args = append(args,
			FlagCompany, d.Company,
			FlagSector, d.Sector,
			FlagContext, d.Context,
		)
		if d.Slug != "" {
			args = append(args, FlagSlug, d.Slug)
		}
	}

	for _, p := range docPaths {
		args = append(args, FlagDoc, p)
	}
	for _, l := range d.Links {
		args = append(args, FlagLink, l)
	}
	if d.DryRun {
		args = append(args, FlagNoPublish)
	}
	return args
}

// DecodeResult turns an exit code and captured streams into a Result.
//
// A zero exit is always a success; the marker line is advisory, so a
// missing marker yields a nil URL rather than a failure.
func DecodeResult(exitCode int, stdout, stderr string, markers []string) Result {
	if exitCode != 0 {
		return Failure(FailureReason, stdout, stderr)
	}

	return Result{OK: true, URL: findMarker(stdout, markers), Output: stdout}
}

// Failure builds a failed Result whose diagnostic is stderr, or stdout when
// stderr is empty.
func Failure(reason, stdout, stderr string) Result {
	diag := stderr
	if diag == "" {
		diag = stdout
	}
	return Result{OK: false, Reason: reason, Diagnostic: diag}
}

func findMarker(stdout string, markers []string) *string {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		for _, m := range markers {
			if rest, ok := strings.CutPrefix(line, m); ok {
				url := strings.TrimSpace(rest)
				return &url
			}
		}
	}
	return nil
}
