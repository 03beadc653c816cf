package workflow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// captureNotifier records every outcome the service reports.
type captureNotifier struct {
	outcomes []Outcome
}

func (n *captureNotifier) Notify(_ uuid.UUID, outcome Outcome) {
	n.outcomes = append(n.outcomes, outcome)
}

func newTestService(cfgRepo *MockStatusConfigRepository, items *MockWorkItemRepository, notifier Notifier) *Service {
	return NewService(cfgRepo, nil, items, nil, new(MockHistoryRepository), notifier, zap.NewNop())
}

func TestSeedDefaultStatuses(t *testing.T) {
	cfgRepo := new(MockStatusConfigRepository)
	cfgRepo.On("List", mock.Anything, mock.Anything).Return([]StatusDefinition{}, nil)
	cfgRepo.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(cfgRepo, new(MockWorkItemRepository), nil)

	err := svc.SeedDefaultStatuses(context.Background(), uuid.New())

	require.NoError(t, err)
	cfgRepo.AssertNumberOfCalls(t, "Upsert", len(DefaultStatusDefinitions()))
}

func TestSeedDefaultStatusesSkipsConfiguredOrg(t *testing.T) {
	cfgRepo := new(MockStatusConfigRepository)
	cfgRepo.On("List", mock.Anything, mock.Anything).Return(activeStatuses(), nil)

	svc := newTestService(cfgRepo, new(MockWorkItemRepository), nil)

	err := svc.SeedDefaultStatuses(context.Background(), uuid.New())

	require.NoError(t, err)
	cfgRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestTimelineScopedToOrganization(t *testing.T) {
	items := new(MockWorkItemRepository)
	history := new(MockHistoryRepository)
	svc := NewService(new(MockStatusConfigRepository), nil, items, nil, history, nil, zap.NewNop())

	item := WorkItem{ID: uuid.New(), OrgID: uuid.New(), Status: "usinagem"}
	items.On("GetWorkItem", mock.Anything, item.ID).Return(&item, nil)

	_, _, err := svc.Timeline(context.Background(), uuid.New(), item.ID)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	history.AssertNotCalled(t, "ListByWorkItem", mock.Anything, mock.Anything)
}

func TestTimelineReturnsHistoryForOwnOrganization(t *testing.T) {
	items := new(MockWorkItemRepository)
	history := new(MockHistoryRepository)
	svc := NewService(new(MockStatusConfigRepository), nil, items, nil, history, nil, zap.NewNop())

	item := WorkItem{ID: uuid.New(), OrgID: uuid.New(), Status: "usinagem"}
	items.On("GetWorkItem", mock.Anything, item.ID).Return(&item, nil)
	history.On("ListByWorkItem", mock.Anything, item.ID).Return([]HistoryEntry{
		{WorkItemID: item.ID, NewStatus: "usinagem"},
	}, nil)

	entries, stages, err := svc.Timeline(context.Background(), item.OrgID, item.ID)

	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.NotEmpty(t, stages)
}

func TestMoveOrderReportsValidationOutcome(t *testing.T) {
	cfgRepo := new(MockStatusConfigRepository)
	cfgRepo.On("List", mock.Anything, mock.Anything).Return(activeStatuses(), nil)
	notifier := &captureNotifier{}

	svc := newTestService(cfgRepo, new(MockWorkItemRepository), notifier)

	_, err := svc.MoveOrder(context.Background(), uuid.New(), uuid.New(), StatusKeyEntry, "usinagem", "", "maria")

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, notifier.outcomes, 1)
	assert.Equal(t, OutcomeValidationError, notifier.outcomes[0].Kind)
}
