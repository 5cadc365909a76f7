package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PendingDriver is a staged row awaiting an operator decision: either a new driver
// or a row that collided with an accepted driver or with another row of its batch.
type PendingDriver struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	DriverFields `gorm:"embedded"`
	Status       PendingStatus   `gorm:"size:20;not null;default:pending;index" json:"status"`
	Reason       ConflictReasons `gorm:"column:reason;type:varchar(120)" json:"reason"`
	// OriginalDriverId references the accepted driver this row collides with.
	// Nil for new drivers and for purely intra-batch conflicts.
	OriginalDriverId *string   `gorm:"size:36;index" json:"original_driver_id"`
	UploadedBy       *int      `gorm:"index" json:"uploaded_by"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PendingDriver) TableName() string {
	return "pending_driver_records"
}

func (p *PendingDriver) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = PendingStatusPending
	}
	return nil
}

// IsDuplicate reports a collision with an accepted driver; those always need an explicit choice.
func (p PendingDriver) IsDuplicate() bool {
	return p.OriginalDriverId != nil && *p.OriginalDriverId != ""
}

func (p PendingDriver) IsConflicting() bool {
	return !p.Reason.Empty()
}

// AsDriver builds the accepted record created when this row is approved as a new driver.
// The driver takes over the staged id so a retried approval finds it instead of inserting twice.
func (p PendingDriver) AsDriver() *Driver {
	return &Driver{
		ID:           p.ID,
		DriverFields: p.DriverFields,
	}
}
