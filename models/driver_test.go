package models_test

import (
	"testing"
	"time"

	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestDeriveOmnilink_SixMonthWindow(t *testing.T) {
	now := time.Date(2024, time.September, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name         string
		registration *time.Time
		expiry       *time.Time
		status       models.OmnilinkStatus
	}{
		{"one day past the window", date(2024, time.March, 14), date(2024, time.September, 14), models.OmnilinkStatusLapsed},
		{"one day inside the window", date(2024, time.March, 16), date(2024, time.September, 16), models.OmnilinkStatusCurrent},
		{"expiring today", date(2024, time.March, 15), date(2024, time.September, 15), models.OmnilinkStatusLapsed},
	}
	for _, tc := range cases {
		expiry, status := models.DeriveOmnilink(tc.registration, now)
		if expiry == nil || status == nil {
			t.Fatalf("%s: expected expiry and status", tc.name)
		}
		if !expiry.Equal(*tc.expiry) {
			t.Fatalf("%s: expected expiry %s, got %s", tc.name, tc.expiry, expiry)
		}
		if *status != tc.status {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.status, *status)
		}
	}

	if expiry, status := models.DeriveOmnilink(nil, now); expiry != nil || status != nil {
		t.Fatalf("expected nil expiry/status without a registration date")
	}
}

func TestOmnilinkStatusAt_ReevaluatesStoredStatus(t *testing.T) {
	f := models.DriverFields{OmnilinkRegistrationDate: date(2024, time.January, 10)}
	f.ApplyOmnilink(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	if *f.OmnilinkStatus != models.OmnilinkStatusCurrent {
		t.Fatalf("expected current at import time, got %s", *f.OmnilinkStatus)
	}

	later := time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC)
	if got := f.OmnilinkStatusAt(later); got == nil || *got != models.OmnilinkStatusLapsed {
		t.Fatalf("expected lapsed after the expiry, got %v", got)
	}
}

func TestDriverFields_Normalize(t *testing.T) {
	status := models.IndicationStatusIndicated
	f := models.DriverFields{
		FullName:         "  Maria Souza ",
		Cpf:              "123.456.789-00",
		Cnh:              utils.NilIfEmpty("0123-4567-890"),
		Type:             utils.NilIfEmpty("   "),
		IndicationStatus: &status,
		IndicationReason: utils.NilIfEmpty("documento vencido"),
	}
	f.Normalize()

	if f.FullName != "Maria Souza" {
		t.Fatalf("unexpected name %q", f.FullName)
	}
	if f.Cpf != "12345678900" {
		t.Fatalf("unexpected cpf %q", f.Cpf)
	}
	if f.Cnh == nil || *f.Cnh != "01234567890" {
		t.Fatalf("unexpected cnh %v", f.Cnh)
	}
	if f.Type != nil {
		t.Fatalf("expected blank type to become nil")
	}
	if f.IndicationReason != nil {
		t.Fatalf("expected the reason to be dropped for an indicated driver")
	}
}

func TestDriverFields_NormalizeKeepsReasonForNotIndicated(t *testing.T) {
	f := models.DriverFields{
		FullName:         "João",
		Cpf:              "1",
		IndicationStatus: models.ParseIndicationStatus("Não indicado"),
		IndicationReason: utils.NilIfEmpty(" pendência "),
	}
	f.Normalize()
	if f.IndicationStatus == nil || *f.IndicationStatus != models.IndicationStatusNotIndicated {
		t.Fatalf("unexpected status %v", f.IndicationStatus)
	}
	if f.IndicationReason == nil || *f.IndicationReason != "pendência" {
		t.Fatalf("unexpected reason %v", f.IndicationReason)
	}
}

func TestDriverFields_Validate(t *testing.T) {
	if err := (models.DriverFields{FullName: "Ana", Cpf: "12345678900"}).Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	for _, f := range []models.DriverFields{
		{FullName: "", Cpf: "12345678900"},
		{FullName: "Ana", Cpf: ""},
	} {
		if err := f.Validate(); err == nil {
			t.Fatalf("expected %+v to be invalid", f)
		}
	}
}

func TestMutableColumns_NeverIncludesCpf(t *testing.T) {
	cols := models.DriverFields{FullName: "Ana", Cpf: "1"}.MutableColumns()
	if _, ok := cols["cpf"]; ok {
		t.Fatalf("cpf must not be overwritable")
	}
	if cols["full_name"] != "Ana" {
		t.Fatalf("expected full_name in the overwrite set")
	}
}

func TestPendingDriver_AsDriverKeepsStagedId(t *testing.T) {
	p := models.PendingDriver{ID: "a8f5f167-f44f-4964-a6c8-ac6d6a3b8bb1", DriverFields: models.DriverFields{FullName: "Ana", Cpf: "1"}}
	d := p.AsDriver()
	if d.ID != p.ID || d.FullName != "Ana" {
		t.Fatalf("unexpected driver %+v", d)
	}
	if p.IsDuplicate() {
		t.Fatalf("a row without reference is not a duplicate")
	}
	empty := ""
	p.OriginalDriverId = &empty
	if p.IsDuplicate() {
		t.Fatalf("an empty reference is not a duplicate")
	}
}
