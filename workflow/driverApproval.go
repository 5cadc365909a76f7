package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type ApprovalOutcome string

const (
	OutcomeApprovedNew       ApprovalOutcome = "approved-new"
	OutcomeActionRequired    ApprovalOutcome = "action-required"
	OutcomeKeepAuthoritative ApprovalOutcome = "approved-merge-keep-authoritative"
	OutcomeKeepStaged        ApprovalOutcome = "approved-merge-keep-staged"
	OutcomeRejected          ApprovalOutcome = "rejected"
)

// ApprovalResult carries the outcome and the records involved.
// For action-required both the staged row and its authoritative driver are set.
type ApprovalResult struct {
	Outcome ApprovalOutcome       `json:"outcome"`
	Pending *models.PendingDriver `json:"pending,omitempty"`
	Driver  *models.Driver        `json:"driver,omitempty"`
}

type BulkItemError struct {
	Id      string `json:"id"`
	Message string `json:"message"`
}

// BulkResult always reports all three counts.
type BulkResult struct {
	Succeeded int             `json:"succeeded"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Errors    []BulkItemError `json:"errors"`
}

func (r *BulkResult) fail(id string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, BulkItemError{Id: id, Message: err.Error()})
}

const defaultResolutionLockTTL = 30 * time.Second

// Resolver drives staged rows to a terminal state. Every mutation is a separate store call;
// the staged row is always deleted last so an interrupted operation can be retried as-is.
type Resolver struct {
	Records RecordStore
	Staging StagingStore
	Journal ResolutionJournal
	Locker  Locker
	Logger  *logrus.Logger
	LockTTL time.Duration
}

func NewResolver(records RecordStore, staging StagingStore, journal ResolutionJournal, locker Locker, logger *logrus.Logger) *Resolver {
	if locker == nil {
		locker = noopLocker{}
	}
	return &Resolver{
		Records: records,
		Staging: staging,
		Journal: journal,
		Locker:  locker,
		Logger:  logger,
		LockTTL: defaultResolutionLockTTL,
	}
}

// ValidIdentifier reports whether id has the canonical 36-character UUID shape.
func ValidIdentifier(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func requireIdentifier(id string) error {
	if !ValidIdentifier(id) {
		return fmt.Errorf("%w: %q", ErrMalformedId, id)
	}
	return nil
}

func (r *Resolver) loadPending(ctx context.Context, pendingId string) (*models.PendingDriver, error) {
	pending, err := r.Staging.GetPendingDriver(ctx, pendingId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPendingNotFound, pendingId)
		}
		return nil, err
	}
	return pending, nil
}

// loadReferenced resolves the staged row's authoritative driver; a dangling reference is an integrity fault.
func (r *Resolver) loadReferenced(ctx context.Context, pending *models.PendingDriver, driverId string) (*models.Driver, error) {
	driver, err := r.Records.GetDriver(ctx, driverId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, fmt.Errorf("%w: pending driver %s references %s", ErrReferentialIntegrity, pending.ID, driverId)
		}
		return nil, err
	}
	return driver, nil
}

// Approve accepts a new driver directly. A staged duplicate is never auto-resolved:
// the result is action-required with both records so the operator can choose.
func (r *Resolver) Approve(ctx context.Context, pendingId string) (*ApprovalResult, error) {
	ctx, span := tracer.Start(ctx, "ApprovePendingDriver")
	defer span.End()
	span.SetAttributes(attribute.String("pending_id", pendingId))

	if err := requireIdentifier(pendingId); err != nil {
		return nil, err
	}
	pending, err := r.loadPending(ctx, pendingId)
	if err != nil {
		return nil, err
	}

	if pending.IsDuplicate() {
		driver, err := r.loadReferenced(ctx, pending, *pending.OriginalDriverId)
		if err != nil {
			config.LogError(r.Logger, "driverApproval.go", "Approve", "loadReferenced", pending.ID, err)
			return nil, err
		}
		return &ApprovalResult{Outcome: OutcomeActionRequired, Pending: pending, Driver: driver}, nil
	}

	driver, err := r.approveNew(ctx, pending)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &ApprovalResult{Outcome: OutcomeApprovedNew, Pending: pending, Driver: driver}, nil
}

// approveNew inserts the staged row under its own id, then deletes it.
// A retry after a failed delete finds the driver already present and only deletes.
func (r *Resolver) approveNew(ctx context.Context, pending *models.PendingDriver) (*models.Driver, error) {
	driver, err := r.Records.GetDriver(ctx, pending.ID)
	if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, err
	}
	if driver == nil {
		candidate := pending.AsDriver()
		if err := r.Records.InsertDrivers(ctx, []*models.Driver{candidate}); err != nil {
			if !utils.IsDuplicateKeyError(err) {
				config.LogError(r.Logger, "driverApproval.go", "approveNew", "InsertDrivers", pending.ID, err)
				return nil, err
			}
			// a concurrent approval of the same row won the insert
			if driver, err = r.Records.GetDriver(ctx, pending.ID); err != nil {
				return nil, err
			}
		} else {
			driver = candidate
		}
	}

	if _, err := r.Staging.DeletePendingDriver(ctx, pending.ID); err != nil {
		config.LogError(r.Logger, "driverApproval.go", "approveNew", "DeletePendingDriver", pending.ID, err)
		return driver, &PartialResolutionError{PendingId: pending.ID, DriverId: driver.ID, Step: StepDeletePending, Err: err}
	}
	return driver, nil
}

// Resolve applies the operator's choice for a staged duplicate. Identifiers and the choice are
// validated before any store call.
func (r *Resolver) Resolve(ctx context.Context, pendingId string, choice models.ResolutionChoice, authoritativeId string) (*ApprovalResult, error) {
	ctx, span := tracer.Start(ctx, "ResolvePendingDriver")
	defer span.End()
	span.SetAttributes(
		attribute.String("pending_id", pendingId),
		attribute.String("driver_id", authoritativeId),
		attribute.String("choice", string(choice)),
	)

	if !choice.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}
	if err := requireIdentifier(authoritativeId); err != nil {
		return nil, err
	}
	if err := requireIdentifier(pendingId); err != nil {
		return nil, err
	}

	pending, err := r.loadPending(ctx, pendingId)
	if err != nil {
		return nil, err
	}
	if !pending.IsDuplicate() || *pending.OriginalDriverId != authoritativeId {
		return nil, fmt.Errorf("%w: pending driver %s", ErrResolutionMismatch, pendingId)
	}

	var result *ApprovalResult
	if choice == models.ResolutionKeepAuthoritative {
		result, err = r.keepAuthoritative(ctx, pending)
	} else {
		result, err = r.keepStaged(ctx, pending, utils.GetOperatorIdFromContext(ctx))
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

func (r *Resolver) keepAuthoritative(ctx context.Context, pending *models.PendingDriver) (*ApprovalResult, error) {
	driver, err := r.loadReferenced(ctx, pending, *pending.OriginalDriverId)
	if err != nil {
		return nil, err
	}
	if _, err := r.Staging.DeletePendingDriver(ctx, pending.ID); err != nil {
		config.LogError(r.Logger, "driverApproval.go", "keepAuthoritative", "DeletePendingDriver", pending.ID, err)
		return nil, err
	}
	return &ApprovalResult{Outcome: OutcomeKeepAuthoritative, Pending: pending, Driver: driver}, nil
}

// keepStaged overwrites the authoritative driver with the staged values, then deletes the staged row.
// A journal row stays open between the two calls; the driver revision rejects concurrent overwrites.
func (r *Resolver) keepStaged(ctx context.Context, pending *models.PendingDriver, userId *int) (*ApprovalResult, error) {
	driverId := *pending.OriginalDriverId
	release, err := r.Locker.Obtain(ctx, "driver:"+driverId, r.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	driver, err := r.loadReferenced(ctx, pending, driverId)
	if err != nil {
		return nil, err
	}

	journal := models.NewDriverResolution(pending, driver, models.ResolutionKeepStaged, userId)
	if err := r.Journal.OpenResolution(ctx, journal); err != nil {
		config.LogError(r.Logger, "driverApproval.go", "keepStaged", "OpenResolution", pending.ID, err)
		return nil, err
	}

	updated, err := r.Records.OverwriteDriver(ctx, driver.ID, pending.DriverFields, driver.Revision)
	if err != nil {
		config.LogError(r.Logger, "driverApproval.go", "keepStaged", "OverwriteDriver", driver.ID, err)
		if closeErr := r.Journal.CloseResolution(ctx, journal.ID, models.ResolutionStatusAborted, err.Error()); closeErr != nil {
			config.LogError(r.Logger, "driverApproval.go", "keepStaged", "CloseResolution aborted", journal.ID, closeErr)
		}
		return nil, err
	}

	if _, err := r.Staging.DeletePendingDriver(ctx, pending.ID); err != nil {
		config.LogError(r.Logger, "driverApproval.go", "keepStaged", "DeletePendingDriver", pending.ID, err)
		return nil, &PartialResolutionError{PendingId: pending.ID, DriverId: driver.ID, Step: StepDeletePending, Err: err}
	}

	if err := r.Journal.CloseResolution(ctx, journal.ID, models.ResolutionStatusCompleted, ""); err != nil {
		// both records are final; the repair tool closes the entry once it sees the staged row gone
		config.LogError(r.Logger, "driverApproval.go", "keepStaged", "CloseResolution completed", journal.ID, err)
	}
	return &ApprovalResult{Outcome: OutcomeKeepStaged, Pending: pending, Driver: updated}, nil
}

// Reject deletes a staged row whatever its conflict state. Unknown ids are a no-op.
func (r *Resolver) Reject(ctx context.Context, pendingId string) (bool, error) {
	ctx, span := tracer.Start(ctx, "RejectPendingDriver")
	defer span.End()

	if err := requireIdentifier(pendingId); err != nil {
		return false, err
	}
	deleted, err := r.Staging.DeletePendingDriver(ctx, pendingId)
	if err != nil {
		config.LogError(r.Logger, "driverApproval.go", "Reject", "DeletePendingDriver", pendingId, err)
		return false, err
	}
	return deleted, nil
}

// BulkApprove approves each non-duplicate row independently, in order.
// Rows referencing an authoritative driver are skipped and left staged.
func (r *Resolver) BulkApprove(ctx context.Context, ids []string) BulkResult {
	ctx, span := tracer.Start(ctx, "BulkApprovePendingDrivers")
	defer span.End()

	result := BulkResult{Errors: []BulkItemError{}}
	for _, id := range ids {
		if err := requireIdentifier(id); err != nil {
			result.fail(id, err)
			continue
		}
		pending, err := r.loadPending(ctx, id)
		if err != nil {
			result.fail(id, err)
			continue
		}
		if pending.IsDuplicate() {
			result.Skipped++
			continue
		}
		if _, err := r.approveNew(ctx, pending); err != nil {
			result.fail(id, err)
			continue
		}
		result.Succeeded++
	}
	span.SetAttributes(
		attribute.Int("succeeded", result.Succeeded),
		attribute.Int("skipped", result.Skipped),
		attribute.Int("failed", result.Failed),
	)
	return result
}

// BulkReject rejects each id independently; already-removed ids still count as rejected.
func (r *Resolver) BulkReject(ctx context.Context, ids []string) BulkResult {
	result := BulkResult{Errors: []BulkItemError{}}
	for _, id := range ids {
		if _, err := r.Reject(ctx, id); err != nil {
			result.fail(id, err)
			continue
		}
		result.Succeeded++
	}
	return result
}
