package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(name, cpf, cnh string) models.DriverFields {
	return models.DriverFields{FullName: name, Cpf: cpf, Cnh: utils.NilIfEmpty(cnh)}
}

func TestClassifyBatch(t *testing.T) {
	existing := []models.DriverKey{
		{ID: driverAnaId, Cpf: "111", Cnh: utils.NilIfEmpty("900")},
		{ID: driverBetoId, Cpf: "222", Cnh: utils.NilIfEmpty("800")},
	}

	cases := []struct {
		name      string
		rows      []models.DriverFields
		accepted  int
		reasons   []string
		reference []string
	}{
		{
			name:     "new drivers pass through",
			rows:     []models.DriverFields{fields("Carla", "333", ""), fields("Dora", "444", "700")},
			accepted: 2,
		},
		{
			name:      "cpf already recorded",
			rows:      []models.DriverFields{fields("Ana", "111", "")},
			reasons:   []string{"duplicate-cpf"},
			reference: []string{driverAnaId},
		},
		{
			name:      "cnh already recorded",
			rows:      []models.DriverFields{fields("Eva", "555", "800")},
			reasons:   []string{"duplicate-cnh"},
			reference: []string{driverBetoId},
		},
		{
			name:      "cpf reference wins over cnh",
			rows:      []models.DriverFields{fields("Ana", "111", "800")},
			reasons:   []string{"duplicate-cpf,duplicate-cnh"},
			reference: []string{driverAnaId},
		},
		{
			name:      "second batch row with the same cpf",
			rows:      []models.DriverFields{fields("Fábio", "666", ""), fields("Fabio", "666", "")},
			accepted:  1,
			reasons:   []string{"batch-duplicate-cpf"},
			reference: []string{""},
		},
		{
			name:      "batch cnh collision",
			rows:      []models.DriverFields{fields("Gil", "777", "500"), fields("Hugo", "778", "500")},
			accepted:  1,
			reasons:   []string{"batch-duplicate-cnh"},
			reference: []string{""},
		},
		{
			name:      "recorded cpf repeated in batch carries both tags",
			rows:      []models.DriverFields{fields("Ana", "111", ""), fields("Ana 2", "111", "")},
			reasons:   []string{"duplicate-cpf", "duplicate-cpf,batch-duplicate-cpf"},
			reference: []string{driverAnaId, driverAnaId},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyBatch(tc.rows, existing)
			assert.Len(t, got.Accepted, tc.accepted)
			require.Len(t, got.Staged, len(tc.reasons))
			for i, staged := range got.Staged {
				assert.Equal(t, tc.reasons[i], staged.Reason.String())
				assert.Equal(t, tc.reference[i], utils.DereferencePtr(staged.OriginalDriverId))
			}
		})
	}
}

func TestClassifyBatch_NullCnhNeverCollides(t *testing.T) {
	existing := []models.DriverKey{{ID: driverAnaId, Cpf: "111"}}
	got := ClassifyBatch([]models.DriverFields{fields("Ana", "333", ""), fields("Bia", "444", "")}, existing)
	assert.Len(t, got.Accepted, 2)
	assert.Empty(t, got.Staged)
}

func TestPrepareRows_SkipsRowsWithoutNameOrCpf(t *testing.T) {
	rows := []ImportRow{
		{FullName: "Ana", Cpf: "123.456.789-00", CnhExpiry: "15/03/2030", OmnilinkRegistrationDate: "45366"},
		{FullName: "", Cpf: "22222222222"},
		{FullName: "Sem CPF", Cpf: "--"},
	}
	prepared, skipped := PrepareRows(rows, sampleNow())
	require.Len(t, prepared, 1)
	assert.Equal(t, 2, skipped)

	f := prepared[0]
	assert.Equal(t, "12345678900", f.Cpf)
	assert.Equal(t, "2030-03-15", utils.FormatDate(f.CnhExpiry))
	assert.Equal(t, "2024-09-15", utils.FormatDate(f.OmnilinkExpiryDate))
	require.NotNil(t, f.OmnilinkStatus)
	assert.Equal(t, models.OmnilinkStatusLapsed, *f.OmnilinkStatus)
}

func TestImportRow_UnparseableDateBecomesNil(t *testing.T) {
	f := ImportRow{FullName: "Ana", Cpf: "1", CnhExpiry: "amanhã", OmnilinkRegistrationDate: "?"}.Fields(sampleNow())
	assert.Nil(t, f.CnhExpiry)
	assert.Nil(t, f.OmnilinkRegistrationDate)
	assert.Nil(t, f.OmnilinkExpiryDate)
	assert.Nil(t, f.OmnilinkStatus)
}

func TestImportRow_NonDecimalNumberIsNotADate(t *testing.T) {
	for _, cell := range []string{"NaN", "Inf", "1e4", "0x1p10"} {
		f := ImportRow{FullName: "Ana", Cpf: "1", CnhExpiry: cell, OmnilinkRegistrationDate: cell}.Fields(sampleNow())
		assert.Nil(t, f.CnhExpiry, cell)
		assert.Nil(t, f.OmnilinkRegistrationDate, cell)
		assert.Nil(t, f.OmnilinkStatus, cell)
	}
}

func newTestImporter(store *memStore) *Importer {
	im := NewImporter(store, store, testLogger())
	im.Now = sampleNow
	return im
}

func TestImport_EndToEndGroupsDuplicateAndTail(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedDriver(driverBetoId, "Bruno Prado", "22222222222", "")
	uploader := 3

	result, err := newTestImporter(store).Import(ctx, []ImportRow{
		{FullName: "Alice Ramos", Cpf: "111.111.111-11"},
		{FullName: "Bruno P.", Cpf: "222.222.222-22"},
		{FullName: "Célia Ramos", Cpf: "11111111111"},
	}, &uploader)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Inserted: 1, Staged: 2}, result)

	assert.Equal(t, 1, store.driversWithCpf("11111111111"))
	assert.Equal(t, 1, store.driversWithCpf("22222222222"))

	pending, _ := store.ListPendingDrivers(ctx)
	require.Len(t, pending, 2)
	byName := map[string]*models.PendingDriver{}
	for _, p := range pending {
		byName[p.FullName] = p
		assert.Equal(t, &uploader, p.UploadedBy)
	}
	require.Contains(t, byName, "Bruno P.")
	require.Contains(t, byName, "Célia Ramos")
	assert.Equal(t, "duplicate-cpf", byName["Bruno P."].Reason.String())
	assert.Equal(t, driverBetoId, *byName["Bruno P."].OriginalDriverId)
	assert.Equal(t, "batch-duplicate-cpf", byName["Célia Ramos"].Reason.String())
	assert.Nil(t, byName["Célia Ramos"].OriginalDriverId)

	drivers, _ := store.ListDrivers(ctx)
	rows := BuildDriverView(drivers, pending, nil, ViewQuery{}, sampleNow())
	require.Len(t, rows, 4)
	assert.Equal(t, "Alice Ramos", rows[0].FullName)
	assert.Equal(t, "Bruno Prado", rows[1].FullName)
	assert.Equal(t, "Bruno P.", rows[2].FullName)
	assert.True(t, rows[2].IsPending())
	assert.Equal(t, "Célia Ramos", rows[3].FullName)
	assert.True(t, rows[3].IsPending())
}

func TestImport_PartialFailureKeepsOtherPartition(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedDriver(driverAnaId, "Ana", "11111111111", "")
	store.failInsertDrivers = errStoreDown

	result, err := newTestImporter(store).Import(ctx, []ImportRow{
		{FullName: "Nova", Cpf: "99999999999"},
		{FullName: "Ana de novo", Cpf: "11111111111"},
		{FullName: "", Cpf: "1"},
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStoreDown))
	assert.Equal(t, ImportResult{Inserted: 0, Staged: 1, Skipped: 1}, result)

	pending, _ := store.ListPendingDrivers(ctx)
	assert.Len(t, pending, 1)
}

func TestImport_StagingFailureStillInsertsDrivers(t *testing.T) {
	store := newMemStore()
	store.seedDriver(driverAnaId, "Ana", "11111111111", "")
	store.failInsertPending = errStoreDown

	result, err := newTestImporter(store).Import(context.Background(), []ImportRow{
		{FullName: "Nova", Cpf: "99999999999"},
		{FullName: "Ana de novo", Cpf: "11111111111"},
	}, nil)
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 0, result.Staged)
	assert.Equal(t, 1, store.driversWithCpf("99999999999"))
}

func TestImport_OmnilinkDerivedAtImport(t *testing.T) {
	store := newMemStore()
	im := newTestImporter(store)
	im.Now = func() time.Time { return time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC) }

	_, err := im.Import(context.Background(), []ImportRow{
		{FullName: "Ana", Cpf: "1", OmnilinkRegistrationDate: "2024-03-15"},
	}, nil)
	require.NoError(t, err)

	drivers, _ := store.ListDrivers(context.Background())
	require.Len(t, drivers, 1)
	assert.Equal(t, "2024-09-15", utils.FormatDate(drivers[0].OmnilinkExpiryDate))
	assert.Equal(t, models.OmnilinkStatusCurrent, *drivers[0].OmnilinkStatus)
}
