package runlog

import (
	"errors"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCanceled  Status = "canceled"
	// StatusError covers staging, launch and unexpected faults.
	StatusError     Status = "error"
	// StatusAbandoned marks rows left running by a gateway that exited mid-run.
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusCanceled, StatusError, StatusAbandoned:
		return true
	}
	return false
}

// Document is the run-log view of a staged upload.
type Document struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

type StartRequest struct {
	ID        string
	Kind      string
	Company   string
	Sector    string
	Slug      string
	RequestID string
	LinkCount int
	DryRun    bool
}

type Completion struct {
	Status       Status
	ExitCode     *int
	Duration     time.Duration
	PublishedURL *string
	LastError    *string
	Stderr       *string
	Documents    []Document
}

// Record is one row of the invocation log.
type Record struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	Status       Status     `json:"status"`
	Company      string     `json:"company,omitempty"`
	Sector       string     `json:"sector,omitempty"`
	Slug         string     `json:"slug,omitempty"`
	RequestID    string     `json:"request_id,omitempty"`
	Documents    []Document `json:"documents"`
	LinkCount    int        `json:"link_count"`
	DryRun       bool       `json:"dry_run"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	DurationMS   *int64     `json:"duration_ms,omitempty"`
	PublishedURL *string    `json:"published_url,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	Stderr       *string    `json:"stderr,omitempty"`
}

var ErrNotFound = errors.New("invocation not found")
