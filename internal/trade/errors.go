package trade

import (
	"errors"
	"fmt"

	"github.com/erazemk/menjava/internal/model"
)

// Error classes. Callers test with errors.Is.
var (
	// ErrEligibility: the caller may not act now (time window, geofence,
	// no event). Not retryable until time or location changes.
	ErrEligibility = errors.New("not eligible")
	// ErrConflict: the match is not in a state that allows the action.
	// Refetch and decide again.
	ErrConflict  = errors.New("conflict")
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid request")
)

// ConflictError carries the current state of the match a transition was
// attempted on.
type ConflictError struct {
	Match  *model.Match
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Match != nil {
		return fmt.Sprintf("conflict: %s (match %s is %s)", e.Reason, e.Match.ID, e.Match.Status)
	}
	return "conflict: " + e.Reason
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func ineligible(reason string) error {
	return fmt.Errorf("%w: %s", ErrEligibility, reason)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
