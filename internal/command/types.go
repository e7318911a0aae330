package command

import (
	"errors"
	"fmt"
)

// Kind selects the agent sub-command.
type Kind string

const (
	KindCreate Kind = "create"
	KindRefine Kind = "refine"
)

// Upload is one uploaded document as received from the client.
type Upload struct {
	Filename string
	Content  []byte
}

// Descriptor is a decoded submission.
type Descriptor struct {
	Kind         Kind
	Company      string
	Sector       string
	Slug         string
	Context      string
	Instructions string
	Links        []string
	Documents    []Upload
	// DryRun asks the agent to generate without publishing.
	DryRun bool
}

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError names the field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is invalid", e.Field)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func missing(field string) error {
	return &ValidationError{Field: field, Message: field + " is required"}
}

// Validate checks the identity fields required by the descriptor's kind.
func (d Descriptor) Validate() error {
	switch d.Kind {
	case KindCreate:
		if d.Company == "" {
			return missing("company")
		}
		if d.Sector == "" {
			return missing("sector")
		}
	case KindRefine:
		if d.Slug == "" {
			return missing("slug")
		}
		// The agent falls back to context when instructions are empty.
		if d.Instructions == "" && d.Context == "" {
			return missing("instructions")
		}
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown command kind %q", d.Kind)}
	}
	return nil
}
