package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mmdatafocus/fleet_backend/utils"
	"gorm.io/gorm"
)

// OmnilinkValidityMonths is the fixed validity window of an Omnilink score registration.
const OmnilinkValidityMonths = 6

var validate = validator.New()

// DriverFields are the business fields shared by accepted and staged drivers.
type DriverFields struct {
	FullName                 string            `gorm:"size:150;not null;index" json:"full_name" validate:"required"`
	Cpf                      string            `gorm:"size:20;not null;index" json:"cpf" validate:"required,numeric"`
	Cnh                      *string           `gorm:"size:20;index" json:"cnh"`
	CnhExpiry                *time.Time        `gorm:"type:date" json:"cnh_expiry"`
	Phone                    *string           `gorm:"size:30" json:"phone"`
	Type                     *string           `gorm:"size:50" json:"type"`
	OmnilinkRegistrationDate *time.Time        `gorm:"type:date" json:"omnilink_registration_date"`
	OmnilinkExpiryDate       *time.Time        `gorm:"type:date" json:"omnilink_expiry_date"`
	OmnilinkStatus           *OmnilinkStatus   `gorm:"size:10" json:"omnilink_status"`
	IndicationStatus         *IndicationStatus `gorm:"size:20" json:"indication_status"`
	IndicationReason         *string           `gorm:"type:text" json:"indication_reason"`
}

// Driver is an accepted (authoritative) driver record.
type Driver struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	DriverFields `gorm:"embedded"`
	// Revision is bumped on every overwrite and guards concurrent resolutions.
	Revision  int       `gorm:"not null;default:0" json:"revision"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Driver) TableName() string {
	return "driver_records"
}

func (d *Driver) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// DeriveOmnilink returns registration + 6 months and whether that expiry is still in the future at now.
func DeriveOmnilink(registration *time.Time, now time.Time) (*time.Time, *OmnilinkStatus) {
	if registration == nil {
		return nil, nil
	}
	expiry := utils.DateOnly(registration.AddDate(0, OmnilinkValidityMonths, 0))
	status := OmnilinkStatusLapsed
	if expiry.After(now) {
		status = OmnilinkStatusCurrent
	}
	return &expiry, &status
}

// ApplyOmnilink recomputes the derived expiry and status from the registration date.
func (f *DriverFields) ApplyOmnilink(now time.Time) {
	f.OmnilinkExpiryDate, f.OmnilinkStatus = DeriveOmnilink(f.OmnilinkRegistrationDate, now)
}

// OmnilinkStatusAt evaluates the status at now. The stored status was computed at import time and goes stale.
func (f DriverFields) OmnilinkStatusAt(now time.Time) *OmnilinkStatus {
	if f.OmnilinkExpiryDate == nil {
		return f.OmnilinkStatus
	}
	status := OmnilinkStatusLapsed
	if f.OmnilinkExpiryDate.After(now) {
		status = OmnilinkStatusCurrent
	}
	return &status
}

// Normalize strips CPF/CNH to digits, trims text and drops empty optionals.
func (f *DriverFields) Normalize() {
	f.FullName = strings.TrimSpace(f.FullName)
	f.Cpf = utils.DigitsOnly(f.Cpf)
	if f.Cnh != nil {
		f.Cnh = utils.NilIfEmpty(utils.DigitsOnly(*f.Cnh))
	}
	if f.Phone != nil {
		f.Phone = utils.NilIfEmpty(utils.NormalizePhone(*f.Phone))
	}
	if f.Type != nil {
		f.Type = utils.NilIfEmpty(strings.TrimSpace(*f.Type))
	}
	if f.IndicationReason != nil {
		f.IndicationReason = utils.NilIfEmpty(strings.TrimSpace(*f.IndicationReason))
	}
	if f.IndicationStatus != nil && !f.IndicationStatus.IsValid() {
		f.IndicationStatus = nil
	}
	// the rejection reason only means something for not-indicated drivers
	if f.IndicationStatus == nil || *f.IndicationStatus != IndicationStatusNotIndicated {
		f.IndicationReason = nil
	}
	for _, d := range []**time.Time{&f.CnhExpiry, &f.OmnilinkRegistrationDate, &f.OmnilinkExpiryDate} {
		if *d != nil {
			v := utils.DateOnly(**d)
			*d = &v
		}
	}
}

// Validate checks the minimum a row needs to enter classification: a name and a CPF.
func (f DriverFields) Validate() error {
	return validate.Struct(f)
}

// MutableColumns lists every business column an overwrite may change. CPF is immutable once recorded.
func (f DriverFields) MutableColumns() map[string]interface{} {
	return map[string]interface{}{
		"full_name":                  f.FullName,
		"cnh":                        f.Cnh,
		"cnh_expiry":                 f.CnhExpiry,
		"phone":                      f.Phone,
		"type":                       f.Type,
		"omnilink_registration_date": f.OmnilinkRegistrationDate,
		"omnilink_expiry_date":       f.OmnilinkExpiryDate,
		"omnilink_status":            f.OmnilinkStatus,
		"indication_status":          f.IndicationStatus,
		"indication_reason":          f.IndicationReason,
	}
}
