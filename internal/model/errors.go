package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is returned for malformed input: empty titles, non-positive
	// hours, unknown enum values.
	ErrValidation = errors.New("validation failed")

	// ErrIllegalTransition is returned when a status change is not in the
	// transition table.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrBlockedByDependency is returned when completing an item that still has
	// unfinished blockers.
	ErrBlockedByDependency = errors.New("blocked by unfinished dependencies")

	// ErrCyclicDependency is returned when an edge or parent link would close a cycle.
	ErrCyclicDependency = errors.New("dependency would create a cycle")

	// ErrForbidden is returned when the actor may not mutate the record.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a referenced item, user, edge or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an item changed between load and save.
	ErrConflict = errors.New("concurrent modification")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for building a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TransitionError carries the allowed targets so callers can present them.
type TransitionError struct {
	ItemID  string
	From    Status
	To      Status
	Allowed []Status
}

func (e *TransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	list := strings.Join(allowed, ", ")
	if list == "" {
		list = "none"
	}
	return fmt.Sprintf("cannot move %s from %s to %s (allowed: %s)", e.ItemID, e.From, e.To, list)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// BlockedError lists the unfinished items blocking completion.
type BlockedError struct {
	ItemID      string
	BlockingIDs []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s is blocked by %s", e.ItemID, strings.Join(e.BlockingIDs, ", "))
}

func (e *BlockedError) Unwrap() error { return ErrBlockedByDependency }

// CycleError reports the existing path that the rejected edge would close.
type CycleError struct {
	BlockingID  string
	DependentID string
	// Path runs from DependentID to BlockingID along existing edges.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s cannot block %s: cycle via %s", e.BlockingID, e.DependentID, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicDependency }

// NotFound wraps ErrNotFound with the missing record.
func NotFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

// ErrorKind names an error category for presentation layers.
type ErrorKind string

const (
	ErrKindValidation        ErrorKind = "ValidationError"
	ErrKindIllegalTransition ErrorKind = "IllegalTransition"
	ErrKindBlocked           ErrorKind = "BlockedByDependency"
	ErrKindCyclic            ErrorKind = "CyclicDependency"
	ErrKindForbidden         ErrorKind = "Forbidden"
	ErrKindNotFound          ErrorKind = "NotFound"
	ErrKindConflict          ErrorKind = "Conflict"
	ErrKindInternal          ErrorKind = "Internal"
)

// KindOf maps an error to its taxonomy kind. Errors outside the taxonomy
// (storage failures) report ErrKindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return ErrKindValidation
	case errors.Is(err, ErrIllegalTransition):
		return ErrKindIllegalTransition
	case errors.Is(err, ErrBlockedByDependency):
		return ErrKindBlocked
	case errors.Is(err, ErrCyclicDependency):
		return ErrKindCyclic
	case errors.Is(err, ErrForbidden):
		return ErrKindForbidden
	case errors.Is(err, ErrNotFound):
		return ErrKindNotFound
	case errors.Is(err, ErrConflict):
		return ErrKindConflict
	default:
		return ErrKindInternal
	}
}

// OffendingIDs returns the item ids carried by blocked and cyclic errors.
func OffendingIDs(err error) []string {
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return blocked.BlockingIDs
	}
	var cycle *CycleError
	if errors.As(err, &cycle) {
		return cycle.Path
	}
	return nil
}
