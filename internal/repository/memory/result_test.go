package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/repository/memory"
)

func newResult(orderID uuid.UUID, testCode, value string, completedAt time.Time) *model.Result {
	return &model.Result{
		ID:          uuid.New(),
		OrderID:     orderID,
		TestCode:    testCode,
		PatientID:   "patient-1",
		Value:       value,
		Unit:        "mmol/L",
		CompletedAt: completedAt,
		UpdatedAt:   completedAt,
	}
}

func TestResultUpsertInsert(t *testing.T) {
	repo := memory.NewResultRepository(memory.NewStore())
	ctx := context.Background()

	orderID := uuid.New()
	result := newResult(orderID, "K", "4.1", time.Now().UTC())

	previous, err := repo.Upsert(ctx, result)
	require.NoError(t, err)
	assert.Nil(t, previous)

	got, err := repo.Get(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, "4.1", got.Value)
}

func TestResultUpsertReplacesInPlace(t *testing.T) {
	repo := memory.NewResultRepository(memory.NewStore())
	ctx := context.Background()

	orderID := uuid.New()
	first := newResult(orderID, "K", "4.1", time.Now().UTC().Add(-time.Hour))
	_, err := repo.Upsert(ctx, first)
	require.NoError(t, err)

	second := newResult(orderID, "K", "6.9", time.Now().UTC())
	previous, err := repo.Upsert(ctx, second)
	require.NoError(t, err)

	require.NotNil(t, previous)
	assert.Equal(t, "4.1", previous.Value)

	// The pair keeps one row: same identity, original completion time.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)

	results, err := repo.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "6.9", results[0].Value)
}

func TestResultListByOrderOrdering(t *testing.T) {
	repo := memory.NewResultRepository(memory.NewStore())
	ctx := context.Background()

	orderID := uuid.New()
	base := time.Now().UTC()
	late := newResult(orderID, "GLU", "90", base)
	early := newResult(orderID, "K", "4.1", base.Add(-time.Hour))
	other := newResult(uuid.New(), "NA", "140", base)

	for _, r := range []*model.Result{late, early, other} {
		_, err := repo.Upsert(ctx, r)
		require.NoError(t, err)
	}

	results, err := repo.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "K", results[0].TestCode)
	assert.Equal(t, "GLU", results[1].TestCode)
}

func TestResultCountDistinctTests(t *testing.T) {
	repo := memory.NewResultRepository(memory.NewStore())
	ctx := context.Background()

	orderID := uuid.New()
	now := time.Now().UTC()

	for _, r := range []*model.Result{
		newResult(orderID, "K", "4.1", now),
		newResult(orderID, "K", "4.3", now),
		newResult(orderID, "GLU", "90", now),
	} {
		_, err := repo.Upsert(ctx, r)
		require.NoError(t, err)
	}

	count, err := repo.CountDistinctTests(ctx, orderID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
