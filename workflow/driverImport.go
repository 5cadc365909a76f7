package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("fleet_backend/workflow")

// ImportRow is one parsed spreadsheet row, cell text by logical field.
type ImportRow struct {
	Line                     int    `json:"line,omitempty"`
	FullName                 string `json:"full_name"`
	Cpf                      string `json:"cpf"`
	Cnh                      string `json:"cnh"`
	CnhExpiry                string `json:"cnh_expiry"`
	Phone                    string `json:"phone"`
	Type                     string `json:"type"`
	OmnilinkRegistrationDate string `json:"omnilink_registration_date"`
	IndicationStatus         string `json:"indication_status"`
	IndicationReason         string `json:"indication_reason"`
}

// Fields converts the row into normalized driver fields with the Omnilink expiry/status derived at now.
// Unparseable dates become nil.
func (r ImportRow) Fields(now time.Time) models.DriverFields {
	f := models.DriverFields{
		FullName:                 r.FullName,
		Cpf:                      r.Cpf,
		Cnh:                      utils.NilIfEmpty(r.Cnh),
		CnhExpiry:                utils.ParseSheetDate(r.CnhExpiry),
		Phone:                    utils.NilIfEmpty(r.Phone),
		Type:                     utils.NilIfEmpty(r.Type),
		OmnilinkRegistrationDate: utils.ParseSheetDate(r.OmnilinkRegistrationDate),
		IndicationStatus:         models.ParseIndicationStatus(r.IndicationStatus),
		IndicationReason:         utils.NilIfEmpty(r.IndicationReason),
	}
	f.Normalize()
	f.ApplyOmnilink(now)
	return f
}

// PrepareRows normalizes rows and drops those without a name or CPF, returning how many were dropped.
func PrepareRows(rows []ImportRow, now time.Time) ([]models.DriverFields, int) {
	prepared := make([]models.DriverFields, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		f := row.Fields(now)
		if err := f.Validate(); err != nil {
			skipped++
			continue
		}
		prepared = append(prepared, f)
	}
	return prepared, skipped
}

// StagedRow is a row the classifier held back for review.
type StagedRow struct {
	Fields           models.DriverFields
	Reason           models.ConflictReasons
	OriginalDriverId *string
}

type Classification struct {
	Accepted []models.DriverFields
	Staged   []StagedRow
}

// ClassifyBatch splits rows into conflict-free rows and rows needing review.
// Rows are processed in order; the first row carrying a CPF/CNH claims it within the batch.
// When both CPF and CNH hit existing drivers the CPF match is the reference.
func ClassifyBatch(rows []models.DriverFields, existing []models.DriverKey) Classification {
	storeCpf := make(map[string]string, len(existing))
	storeCnh := make(map[string]string, len(existing))
	for _, key := range existing {
		if _, ok := storeCpf[key.Cpf]; !ok {
			storeCpf[key.Cpf] = key.ID
		}
		if key.Cnh != nil && *key.Cnh != "" {
			if _, ok := storeCnh[*key.Cnh]; !ok {
				storeCnh[*key.Cnh] = key.ID
			}
		}
	}

	batchCpf := make(map[string]struct{})
	batchCnh := make(map[string]struct{})
	var result Classification

	for _, row := range rows {
		var reason models.ConflictReasons
		var reference *string

		if id, ok := storeCpf[row.Cpf]; ok {
			reason.Add(models.ConflictDuplicateCpf)
			ref := id
			reference = &ref
		}
		hasCnh := row.Cnh != nil && *row.Cnh != ""
		if hasCnh {
			if id, ok := storeCnh[*row.Cnh]; ok {
				reason.Add(models.ConflictDuplicateCnh)
				if reference == nil {
					ref := id
					reference = &ref
				}
			}
		}
		if _, ok := batchCpf[row.Cpf]; ok {
			reason.Add(models.ConflictBatchDuplicateCpf)
		} else {
			batchCpf[row.Cpf] = struct{}{}
		}
		if hasCnh {
			if _, ok := batchCnh[*row.Cnh]; ok {
				reason.Add(models.ConflictBatchDuplicateCnh)
			} else {
				batchCnh[*row.Cnh] = struct{}{}
			}
		}

		if reason.Empty() {
			result.Accepted = append(result.Accepted, row)
		} else {
			result.Staged = append(result.Staged, StagedRow{
				Fields:           row,
				Reason:           reason,
				OriginalDriverId: reference,
			})
		}
	}
	return result
}

type ImportResult struct {
	Inserted int `json:"inserted"`
	Staged   int `json:"staged"`
	Skipped  int `json:"skipped"`
}

type Importer struct {
	Records RecordStore
	Staging StagingStore
	Logger  *logrus.Logger
	Now     func() time.Time
}

func NewImporter(records RecordStore, staging StagingStore, logger *logrus.Logger) *Importer {
	return &Importer{
		Records: records,
		Staging: staging,
		Logger:  logger,
		Now:     time.Now,
	}
}

// Import classifies one batch and writes both partitions with one bulk insert each.
// A failure of one insert does not undo the other; the counts reflect what was written.
func (im *Importer) Import(ctx context.Context, rows []ImportRow, uploadedBy *int) (ImportResult, error) {
	ctx, span := tracer.Start(ctx, "ImportDrivers")
	defer span.End()

	now := im.Now()
	fields, skipped := PrepareRows(rows, now)
	result := ImportResult{Skipped: skipped}

	keys, err := im.Records.ListDriverKeys(ctx)
	if err != nil {
		config.LogError(im.Logger, "driverImport.go", "Import", "ListDriverKeys", nil, err)
		return result, err
	}
	classified := ClassifyBatch(fields, keys)
	span.SetAttributes(
		attribute.Int("rows", len(rows)),
		attribute.Int("accepted", len(classified.Accepted)),
		attribute.Int("staged", len(classified.Staged)),
	)

	drivers := make([]*models.Driver, len(classified.Accepted))
	for i, f := range classified.Accepted {
		drivers[i] = &models.Driver{DriverFields: f}
	}
	pending := make([]*models.PendingDriver, len(classified.Staged))
	for i, s := range classified.Staged {
		pending[i] = &models.PendingDriver{
			DriverFields:     s.Fields,
			Status:           models.PendingStatusPending,
			Reason:           s.Reason,
			OriginalDriverId: s.OriginalDriverId,
			UploadedBy:       uploadedBy,
		}
	}

	var errs []error
	if err := im.Records.InsertDrivers(ctx, drivers); err != nil {
		config.LogError(im.Logger, "driverImport.go", "Import", "InsertDrivers", len(drivers), err)
		errs = append(errs, err)
	} else {
		result.Inserted = len(drivers)
	}
	if err := im.Staging.InsertPendingDrivers(ctx, pending); err != nil {
		config.LogError(im.Logger, "driverImport.go", "Import", "InsertPendingDrivers", len(pending), err)
		errs = append(errs, err)
	} else {
		result.Staged = len(pending)
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return result, err
	}
	return result, nil
}
