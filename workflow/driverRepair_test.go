package workflow

import (
	"context"
	"testing"

	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairOpenResolutions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedDriver(driverAnaId, "Ana Lima", "11111111111", "")
	store.seedDriver(driverBetoId, "Beto Alves", "22222222222", "")
	store.seedPending(pendingOneId, "Ana Souza", "11111111111", driverAnaId, models.ConflictDuplicateCpf)
	store.seedPending(pendingTwoId, "Beto A.", "22222222222", driverBetoId, models.ConflictDuplicateCpf)
	resolver := newTestResolver(store)

	// Leave two half-applied resolutions behind.
	store.failDeletes = 2
	_, err := resolver.Resolve(ctx, pendingOneId, models.ResolutionKeepStaged, driverAnaId)
	require.True(t, IsPartialResolution(err))
	_, err = resolver.Resolve(ctx, pendingTwoId, models.ResolutionKeepStaged, driverBetoId)
	require.True(t, IsPartialResolution(err))

	// The operator rejects one staged row by hand.
	_, err = resolver.Reject(ctx, pendingTwoId)
	require.NoError(t, err)

	dry, err := resolver.RepairOpenResolutions(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, dry.Reapplied)
	assert.Equal(t, 1, dry.Closed)
	open, _ := store.ListOpenResolutions(ctx)
	assert.Len(t, open, 2, "a dry run changes nothing")

	report, err := resolver.RepairOpenResolutions(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reapplied)
	assert.Equal(t, 1, report.Closed)
	assert.Equal(t, 0, report.Failed)

	open, _ = store.ListOpenResolutions(ctx)
	assert.Empty(t, open)
	assert.Zero(t, store.pendingReferencing(driverAnaId))
	driver, _ := store.GetDriver(ctx, driverAnaId)
	assert.Equal(t, "Ana Souza", driver.FullName)
	assert.Equal(t, 2, driver.Revision)
}

func TestRepairOpenResolutions_ReportsFailures(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedDriver(driverAnaId, "Ana Lima", "11111111111", "")
	store.seedPending(pendingOneId, "Ana Souza", "11111111111", driverAnaId, models.ConflictDuplicateCpf)
	resolver := newTestResolver(store)

	store.failDeletes = 2
	_, err := resolver.Resolve(ctx, pendingOneId, models.ResolutionKeepStaged, driverAnaId)
	require.True(t, IsPartialResolution(err))

	report, err := resolver.RepairOpenResolutions(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, RepairFailed, report.Entries[0].Action)
	assert.NotEmpty(t, report.Entries[0].Error)

	open, _ := store.ListOpenResolutions(ctx)
	assert.Len(t, open, 1)
}
