package workflow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestStore(defs []StatusDefinition) (*StatusConfigStore, *MockStatusConfigRepository, *MockWorkItemRepository) {
	repo := new(MockStatusConfigRepository)
	items := new(MockWorkItemRepository)
	orgID := uuid.New()
	repo.On("List", mock.Anything, orgID).Return(defs, nil)
	return NewStatusConfigStore(orgID, repo, items), repo, items
}

func TestStatusStoreListPinsFixedStatuses(t *testing.T) {
	defs := []StatusDefinition{
		{Key: StatusKeyDelivered, Label: "Entregue", DisplayOrder: 1, IsActive: true, Fixed: true},
		{Key: "metrologia", Label: "Metrologia", DisplayOrder: 50, IsActive: true},
		{Key: StatusKeyEntry, Label: "Entrada", DisplayOrder: 100, IsActive: true, Fixed: true},
	}
	store, _, _ := newTestStore(defs)

	listed, err := store.List(context.Background())

	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, StatusKeyEntry, listed[0].Key)
	assert.Equal(t, "metrologia", listed[1].Key)
	assert.Equal(t, StatusKeyDelivered, listed[2].Key)
}

func TestStatusStoreCachesUntilInvalidated(t *testing.T) {
	store, repo, _ := newTestStore(activeStatuses())
	ctx := context.Background()

	_, err := store.List(ctx)
	require.NoError(t, err)
	_, err = store.List(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "List", 1)

	store.Invalidate()
	_, err = store.List(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "List", 2)
}

func TestStatusStoreDeleteFixedStatusRejected(t *testing.T) {
	store, repo, _ := newTestStore(activeStatuses())

	err := store.Delete(context.Background(), StatusKeyEntry)

	var reserved *ReservedStatusError
	require.ErrorAs(t, err, &reserved)
	assert.Equal(t, StatusKeyEntry, reserved.Key)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestStatusStoreDeleteUnreferencedStatus(t *testing.T) {
	store, repo, items := newTestStore(activeStatuses())
	repo.On("Delete", mock.Anything, mock.Anything, "pronto").Return(nil)
	items.On("CountOpenByStatus", mock.Anything, mock.Anything, "pronto").Return(0, nil)

	err := store.Delete(context.Background(), "pronto")

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestStatusStoreDeleteReferencedStatusRejected(t *testing.T) {
	store, repo, items := newTestStore(activeStatuses())
	items.On("CountOpenByStatus", mock.Anything, mock.Anything, "pronto").Return(1, nil)

	err := store.Delete(context.Background(), "pronto")

	var inUse *StatusInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, "pronto", inUse.Key)
	assert.Equal(t, 1, inUse.OpenItems)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestStatusStoreDeleteUnknownStatus(t *testing.T) {
	store, _, _ := newTestStore(activeStatuses())

	err := store.Delete(context.Background(), "lavagem")

	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestStatusStoreUpsertAppliesThresholdDefault(t *testing.T) {
	store, repo, _ := newTestStore(activeStatuses())
	repo.On("Upsert", mock.Anything, mock.Anything, mock.MatchedBy(func(def StatusDefinition) bool {
		return def.SLA.WarningThresholdPercent == DefaultWarningThresholdPercent
	})).Return(nil)

	err := store.Upsert(context.Background(), StatusDefinition{
		Key:      "lavagem",
		Label:    "Lavagem",
		IsActive: true,
		SLA:      SLAConfig{MaxHours: floatPtr(8)},
	})

	require.NoError(t, err)
	// The matcher above only accepts a defaulted threshold, so one recorded
	// call means the default was applied.
	repo.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestStatusStoreUpsertRejectsBadThreshold(t *testing.T) {
	store, repo, _ := newTestStore(activeStatuses())

	err := store.Upsert(context.Background(), StatusDefinition{
		Key: "lavagem",
		SLA: SLAConfig{WarningThresholdPercent: 150},
	})

	assert.Error(t, err)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestStatusStoreUpsertCannotDeactivateFixedStatus(t *testing.T) {
	store, repo, _ := newTestStore(activeStatuses())

	err := store.Upsert(context.Background(), StatusDefinition{
		Key:      StatusKeyDelivered,
		Label:    "Entregue",
		IsActive: false,
	})

	var reserved *ReservedStatusError
	require.ErrorAs(t, err, &reserved)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestStatusStoreNextByDisplayOrder(t *testing.T) {
	store, _, _ := newTestStore(activeStatuses())
	ctx := context.Background()

	next, err := store.NextByDisplayOrder(ctx, "usinagem")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "montagem", next.Key)

	last, err := store.NextByDisplayOrder(ctx, StatusKeyDelivered)
	require.NoError(t, err)
	assert.Nil(t, last)
}
