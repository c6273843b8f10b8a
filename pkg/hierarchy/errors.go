package hierarchy

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a unit, user or department is absent
	ErrNotFound = errors.New("hierarchy: not found")

	// ErrUserNotFound is returned when the user row does not exist
	ErrUserNotFound = fmt.Errorf("%w: user", ErrNotFound)

	// ErrAuthorizationDenied is returned when a permission or scope check fails
	ErrAuthorizationDenied = errors.New("hierarchy: authorization denied")

	// ErrNoActivePosition is returned for non-MASTER users without an active position
	ErrNoActivePosition = errors.New("hierarchy: no active position")

	// ErrCyclicHierarchy is returned when traversal revisits a unit
	ErrCyclicHierarchy = errors.New("hierarchy: cyclic hierarchy")

	// ErrInvalidPlacement is returned when a unit violates the type/depth rules
	ErrInvalidPlacement = errors.New("hierarchy: invalid placement")
)

// DeniedError is an authorization denial with an audit-safe reason
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied: %s", e.Reason)
}

// Unwrap makes errors.Is(err, ErrAuthorizationDenied) succeed
func (e *DeniedError) Unwrap() error {
	return ErrAuthorizationDenied
}

// Deny creates a DeniedError
func Deny(reason string) error {
	return &DeniedError{Reason: reason}
}

// CycleError reports the unit at which a cycle was detected
type CycleError struct {
	UnitID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic hierarchy detected at unit %s", e.UnitID)
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicHierarchy
}

// PlacementError reports a violated placement rule
type PlacementError struct {
	Reason string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("invalid placement: %s", e.Reason)
}

func (e *PlacementError) Unwrap() error {
	return ErrInvalidPlacement
}

// NotFound wraps ErrNotFound with the missing entity kind
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDenied checks if an error is an authorization failure. A missing active
// position counts as a denial.
func IsDenied(err error) bool {
	return errors.Is(err, ErrAuthorizationDenied) || errors.Is(err, ErrNoActivePosition)
}

// DenialReason returns the audit-safe reason of a denial, or "" if err is not one
func DenialReason(err error) string {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Reason
	}
	if errors.Is(err, ErrNoActivePosition) {
		return "no active position"
	}
	return ""
}
