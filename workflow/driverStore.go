package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/fleet_backend/models"
)

// RecordStore is the authoritative driver table.
type RecordStore interface {
	ListDriverKeys(ctx context.Context) ([]models.DriverKey, error)
	ListDrivers(ctx context.Context) ([]*models.Driver, error)
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	InsertDrivers(ctx context.Context, drivers []*models.Driver) error
	OverwriteDriver(ctx context.Context, id string, fields models.DriverFields, revision int) (*models.Driver, error)
}

// StagingStore holds rows awaiting an operator decision.
type StagingStore interface {
	InsertPendingDrivers(ctx context.Context, rows []*models.PendingDriver) error
	ListPendingDrivers(ctx context.Context) ([]*models.PendingDriver, error)
	GetPendingDriver(ctx context.Context, id string) (*models.PendingDriver, error)
	DeletePendingDriver(ctx context.Context, id string) (bool, error)
}

// ResolutionJournal records keep-staged resolutions so half-applied ones can be found later.
type ResolutionJournal interface {
	OpenResolution(ctx context.Context, resolution *models.DriverResolution) error
	CloseResolution(ctx context.Context, id int, status models.ResolutionStatus, errMsg string) error
	ListOpenResolutions(ctx context.Context) ([]*models.DriverResolution, error)
}

// Locker serializes resolutions touching the same authoritative driver.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

type noopLocker struct{}

func (noopLocker) Obtain(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

var _ RecordStore = (*models.DriverStore)(nil)
var _ StagingStore = (*models.DriverStore)(nil)
var _ ResolutionJournal = (*models.DriverStore)(nil)
