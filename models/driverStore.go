package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
)

// ErrStaleRevision means the driver changed since it was read.
var ErrStaleRevision = errors.New("driver was modified by another operation")

// DriverKey is the slice of an accepted driver the batch classifier needs.
type DriverKey struct {
	ID  string
	Cpf string
	Cnh *string
}

// DriverStore is the gorm-backed record store, staging store and resolution journal.
// Each method is one independent round-trip; nothing spans both tables in a transaction.
type DriverStore struct {
	db *gorm.DB
}

func NewDriverStore(db *gorm.DB) *DriverStore {
	return &DriverStore{db: db}
}

/* record store */

// ListDriverKeys returns id/cpf/cnh of every accepted driver, oldest first.
func (s *DriverStore) ListDriverKeys(ctx context.Context) ([]DriverKey, error) {
	var keys []DriverKey
	err := s.db.WithContext(ctx).Model(&Driver{}).
		Select("id", "cpf", "cnh").
		Order("created_at, id").
		Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *DriverStore) ListDrivers(ctx context.Context) ([]*Driver, error) {
	var results []*Driver
	if err := s.db.WithContext(ctx).Order("full_name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// may return RecordNotFound error
func (s *DriverStore) GetDriver(ctx context.Context, id string) (*Driver, error) {
	var result Driver
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// InsertDrivers writes all rows in one statement.
func (s *DriverStore) InsertDrivers(ctx context.Context, drivers []*Driver) error {
	if len(drivers) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&drivers).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert drivers: duplicate key: %w", err)
		}
		return fmt.Errorf("insert drivers: %w", err)
	}
	return nil
}

// OverwriteDriver replaces every mutable field of the driver when its revision still matches.
// CPF is never written.
func (s *DriverStore) OverwriteDriver(ctx context.Context, id string, fields DriverFields, revision int) (*Driver, error) {
	columns := fields.MutableColumns()
	columns["revision"] = gorm.Expr("revision + 1")

	tx := s.db.WithContext(ctx).Model(&Driver{}).
		Where("id = ? AND revision = ?", id, revision).
		Updates(columns)
	if tx.Error != nil {
		return nil, fmt.Errorf("overwrite driver %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		if _, err := s.GetDriver(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStaleRevision
	}
	return s.GetDriver(ctx, id)
}

/* staging store */

func (s *DriverStore) InsertPendingDrivers(ctx context.Context, rows []*PendingDriver) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert pending drivers: %w", err)
	}
	return nil
}

func (s *DriverStore) ListPendingDrivers(ctx context.Context) ([]*PendingDriver, error) {
	var results []*PendingDriver
	err := s.db.WithContext(ctx).
		Where("status = ?", PendingStatusPending).
		Order("full_name").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// may return RecordNotFound error
func (s *DriverStore) GetPendingDriver(ctx context.Context, id string) (*PendingDriver, error) {
	var result PendingDriver
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// DeletePendingDriver is a no-op for ids that are already gone.
func (s *DriverStore) DeletePendingDriver(ctx context.Context, id string) (bool, error) {
	tx := s.db.WithContext(ctx).Where("id = ?", id).Delete(&PendingDriver{})
	if tx.Error != nil {
		return false, fmt.Errorf("delete pending driver %s: %w", id, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

/* resolution journal */

func (s *DriverStore) OpenResolution(ctx context.Context, resolution *DriverResolution) error {
	resolution.Status = ResolutionStatusOpen
	return s.db.WithContext(ctx).Create(resolution).Error
}

func (s *DriverStore) CloseResolution(ctx context.Context, id int, status ResolutionStatus, errMsg string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&DriverResolution{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"error":        errMsg,
			"completed_at": &now,
		}).Error
}

func (s *DriverStore) ListOpenResolutions(ctx context.Context) ([]*DriverResolution, error) {
	var results []*DriverResolution
	err := s.db.WithContext(ctx).
		Where("status = ?", ResolutionStatusOpen).
		Order("id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
