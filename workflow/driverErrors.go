package workflow

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/fleet_backend/models"
)

var (
	// ErrReferentialIntegrity: a staged row references a driver that does not exist.
	ErrReferentialIntegrity = errors.New("staged driver references a missing driver record")
	ErrMalformedId          = errors.New("malformed driver identifier")
	ErrInvalidChoice        = errors.New("invalid resolution choice")
	ErrPendingNotFound      = errors.New("pending driver not found")
	// ErrResolutionMismatch: the authoritative id given does not match the staged row's reference.
	ErrResolutionMismatch = errors.New("authoritative id does not match the staged driver's reference")
	ErrStaleRevision      = models.ErrStaleRevision
)

// ResolutionStep names the store call a resolution was executing when it failed.
type ResolutionStep string

const (
	StepInsertDriver    ResolutionStep = "insert-driver"
	StepOverwriteDriver ResolutionStep = "overwrite-driver"
	StepDeletePending   ResolutionStep = "delete-pending"
	StepJournal         ResolutionStep = "journal"
)

// PartialResolutionError reports a resolution whose first mutation landed but a later one did not.
// Both records are left in place; retrying the same operation completes it.
type PartialResolutionError struct {
	PendingId string
	DriverId  string
	Step      ResolutionStep
	Err       error
}

func (e *PartialResolutionError) Error() string {
	return fmt.Sprintf("resolution of pending driver %s half-applied (driver %s updated, %s failed): %v",
		e.PendingId, e.DriverId, e.Step, e.Err)
}

func (e *PartialResolutionError) Unwrap() error {
	return e.Err
}

func IsPartialResolution(err error) bool {
	var target *PartialResolutionError
	return errors.As(err, &target)
}
