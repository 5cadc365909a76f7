package workflow

import (
	"context"
	"errors"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
)

type RepairAction string

const (
	RepairClosed    RepairAction = "closed"
	RepairReapplied RepairAction = "reapplied"
	RepairFailed    RepairAction = "failed"
)

type RepairEntry struct {
	ResolutionId int          `json:"resolution_id"`
	PendingId    string       `json:"pending_id"`
	DriverId     string       `json:"driver_id"`
	Action       RepairAction `json:"action"`
	Error        string       `json:"error,omitempty"`
}

type RepairReport struct {
	Closed    int           `json:"closed"`
	Reapplied int           `json:"reapplied"`
	Failed    int           `json:"failed"`
	Entries   []RepairEntry `json:"entries"`
}

// RepairOpenResolutions finishes keep-staged resolutions left open.
// When the staged row is gone only the journal entry is closed; otherwise the overwrite and
// delete are re-run against the driver's current revision. dryRun reports without mutating.
func (r *Resolver) RepairOpenResolutions(ctx context.Context, dryRun bool) (*RepairReport, error) {
	open, err := r.Journal.ListOpenResolutions(ctx)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{Entries: []RepairEntry{}}
	for _, res := range open {
		entry := RepairEntry{ResolutionId: res.ID, PendingId: res.PendingDriverId, DriverId: res.DriverId}

		pending, err := r.Staging.GetPendingDriver(ctx, res.PendingDriverId)
		switch {
		case errors.Is(err, utils.ErrorRecordNotFound):
			entry.Action = RepairClosed
			if !dryRun {
				err = r.Journal.CloseResolution(ctx, res.ID, models.ResolutionStatusCompleted, "")
			} else {
				err = nil
			}
		case err != nil:
		default:
			entry.Action = RepairReapplied
			if !dryRun {
				err = r.reapply(ctx, res, pending)
			}
		}

		if err != nil {
			config.LogError(r.Logger, "driverRepair.go", "RepairOpenResolutions", string(entry.Action), res.ID, err)
			entry.Action = RepairFailed
			entry.Error = err.Error()
		}
		switch entry.Action {
		case RepairClosed:
			report.Closed++
		case RepairReapplied:
			report.Reapplied++
		default:
			report.Failed++
		}
		report.Entries = append(report.Entries, entry)
	}
	return report, nil
}

func (r *Resolver) reapply(ctx context.Context, res *models.DriverResolution, pending *models.PendingDriver) error {
	release, err := r.Locker.Obtain(ctx, "driver:"+res.DriverId, r.LockTTL)
	if err != nil {
		return err
	}
	defer release()

	driver, err := r.loadReferenced(ctx, pending, res.DriverId)
	if err != nil {
		return err
	}
	if _, err := r.Records.OverwriteDriver(ctx, driver.ID, pending.DriverFields, driver.Revision); err != nil {
		return err
	}
	if _, err := r.Staging.DeletePendingDriver(ctx, pending.ID); err != nil {
		return &PartialResolutionError{PendingId: pending.ID, DriverId: driver.ID, Step: StepDeletePending, Err: err}
	}
	return r.Journal.CloseResolution(ctx, res.ID, models.ResolutionStatusCompleted, "")
}
