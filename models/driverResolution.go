package models

import (
	"encoding/json"
	"time"
)

// DriverResolution journals a keep-staged overwrite. A row left open after the
// request finished marks a half-applied resolution (driver overwritten, staged row still present).
type DriverResolution struct {
	ID              int              `gorm:"primary_key" json:"id"`
	PendingDriverId string           `gorm:"size:36;not null;index" json:"pending_driver_id"`
	DriverId        string           `gorm:"size:36;not null;index" json:"driver_id"`
	Choice          ResolutionChoice `gorm:"size:30;not null" json:"choice"`
	Status          ResolutionStatus `gorm:"size:12;not null;index" json:"status"`
	Before          string           `gorm:"type:text" json:"before"`
	After           string           `gorm:"type:text" json:"after"`
	Error           string           `gorm:"type:text" json:"error"`
	UserId          *int             `gorm:"index" json:"user_id"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at"`
}

func NewDriverResolution(pending *PendingDriver, driver *Driver, choice ResolutionChoice, userId *int) *DriverResolution {
	b, _ := json.Marshal(driver)
	a, _ := json.Marshal(pending)
	return &DriverResolution{
		PendingDriverId: pending.ID,
		DriverId:        driver.ID,
		Choice:          choice,
		Status:          ResolutionStatusOpen,
		Before:          string(b),
		After:           string(a),
		UserId:          userId,
	}
}
