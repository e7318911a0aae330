// Package protocol defines the command-line contract with the publishing
// agent: how a descriptor becomes an argument vector, and how the agent's
// exit code and output become a Result.
package protocol

import "github.com/eduba/publishgw/internal/command"

// Result markers printed by the agent on stdout.
const (
	MarkerPublished = "Published:"
	MarkerUpdated   = "Updated:"
)

// Failure reasons.
const (
	FailureReason  = "agent run failed"
	TimeoutReason  = "agent run timed out"
	CanceledReason = "agent run canceled"
)

// Agent flags.
const (
	FlagCompany      = "--company"
	FlagSector       = "--sector"
	FlagContext      = "--context"
	FlagSlug         = "--slug"
	FlagEditSlug     = "--edit-slug"
	FlagInstructions = "--instructions"
	FlagDoc          = "--doc"
	FlagLink         = "--link"
	FlagNoPublish    = "--no-publish"
)

// Result is the outcome of one agent run.
//
// When OK is true, URL is the published page (nil when the agent printed no
// marker line) and Output carries the full stdout. When OK is false, Reason
// and Diagnostic describe the failure; Diagnostic carries the captured
// stream text.
type Result struct {
	OK         bool
	URL        *string
	Output     string
	Reason     string
	Diagnostic string
}

// MarkersFor returns the marker prefixes checked for kind, in priority order.
func MarkersFor(kind command.Kind) []string {
	if kind == command.KindRefine {
		return []string{MarkerUpdated, MarkerPublished}
	}
	return []string{MarkerPublished}
}
