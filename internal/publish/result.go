package publish

import (
	"time"

	"git.home.luguber.info/inful/relpub/internal/coordinate"
	ferrors "git.home.luguber.info/inful/relpub/internal/foundation/errors"
)

// Status is a destination outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// DestinationResult is the outcome of one destination.
type DestinationResult struct {
	Destination string                `json:"destination"`
	URL         string                `json:"url"`
	Status      Status                `json:"status"`
	Counted     bool                  `json:"counted"`
	Category    ferrors.ErrorCategory `json:"error_kind,omitempty"`
	Message     string                `json:"message,omitempty"`
	Hint        string                `json:"hint,omitempty"`
	Attempts    int                   `json:"attempts"`
	Duration    time.Duration         `json:"duration_ns"`
	Uploaded    []string              `json:"uploaded,omitempty"`

	err error
}

// Err returns the failure cause, or nil.
func (r DestinationResult) Err() error { return r.err }

// Result is the outcome of one publish invocation.
type Result struct {
	RunID        string                `json:"run_id"`
	Coordinate   coordinate.Coordinate `json:"coordinate"`
	StartedAt    time.Time             `json:"started_at"`
	Duration     time.Duration         `json:"duration_ns"`
	Canceled     bool                  `json:"canceled,omitempty"`
	Destinations []DestinationResult   `json:"destinations"`
}

// Succeeded is false iff a counted destination failed. Optional destinations
// and destinations published with signing bypassed never fail the run.
func (r *Result) Succeeded() bool {
	for _, d := range r.Destinations {
		if d.Counted && d.Status == StatusFailure {
			return false
		}
	}
	return true
}

// Err returns the first counted failure in descriptor order, which decides the
// process exit code, or a cancellation error when the run was interrupted.
func (r *Result) Err() error {
	for _, d := range r.Destinations {
		if d.Counted && d.Status == StatusFailure {
			if d.err != nil {
				return d.err
			}
			return ferrors.NewError(d.Category, d.Message).WithHint(d.Hint).Build()
		}
	}
	if r.Canceled {
		return ferrors.NewError(ferrors.CategoryCanceled, "publication canceled before every destination started").Build()
	}
	return nil
}

// Count returns the number of destinations with the given status.
func (r *Result) Count(s Status) int {
	n := 0
	for _, d := range r.Destinations {
		if d.Status == s {
			n++
		}
	}
	return n
}
