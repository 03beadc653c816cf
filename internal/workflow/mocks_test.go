package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockWorkItemRepository is a mock implementation of WorkItemRepository.
type MockWorkItemRepository struct {
	mock.Mock
}

func (m *MockWorkItemRepository) ListOpenByOrganization(ctx context.Context, orgID uuid.UUID) ([]WorkItem, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).([]WorkItem), args.Error(1)
}

func (m *MockWorkItemRepository) ListOpenByOrder(ctx context.Context, orderID uuid.UUID) ([]WorkItem, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]WorkItem), args.Error(1)
}

func (m *MockWorkItemRepository) GetWorkItem(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*WorkItem), args.Error(1)
}

func (m *MockWorkItemRepository) CountOpenByStatus(ctx context.Context, orgID uuid.UUID, statusKey string) (int, error) {
	args := m.Called(ctx, orgID, statusKey)
	return args.Int(0), args.Error(1)
}

func (m *MockWorkItemRepository) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string, note *string) (*WorkItem, error) {
	args := m.Called(ctx, id, newStatus, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*WorkItem), args.Error(1)
}

func (m *MockWorkItemRepository) SetLifecycle(ctx context.Context, id uuid.UUID, startedAt, completedAt *time.Time, assignedTo *uuid.UUID) (*WorkItem, error) {
	args := m.Called(ctx, id, startedAt, completedAt, assignedTo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*WorkItem), args.Error(1)
}

// MockHistoryRepository is a mock implementation of HistoryRepository.
type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Append(ctx context.Context, entry *HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockHistoryRepository) ListByWorkItem(ctx context.Context, workItemID uuid.UUID) ([]HistoryEntry, error) {
	args := m.Called(ctx, workItemID)
	return args.Get(0).([]HistoryEntry), args.Error(1)
}

// MockStatusConfigRepository is a mock implementation of StatusConfigRepository.
type MockStatusConfigRepository struct {
	mock.Mock
}

func (m *MockStatusConfigRepository) List(ctx context.Context, orgID uuid.UUID) ([]StatusDefinition, error) {
	args := m.Called(ctx, orgID)
	return args.Get(0).([]StatusDefinition), args.Error(1)
}

func (m *MockStatusConfigRepository) Upsert(ctx context.Context, orgID uuid.UUID, def StatusDefinition) error {
	args := m.Called(ctx, orgID, def)
	return args.Error(0)
}

func (m *MockStatusConfigRepository) Delete(ctx context.Context, orgID uuid.UUID, key string) error {
	args := m.Called(ctx, orgID, key)
	return args.Error(0)
}

// staticGraphSource serves a fixed rule graph to the executor.
type staticGraphSource struct {
	graph *PrerequisiteGraph
}

func (s *staticGraphSource) Graph(ctx context.Context) (*PrerequisiteGraph, error) {
	return s.graph, nil
}

// activeStatuses builds the default status set for tests.
func activeStatuses() []StatusDefinition {
	return DefaultStatusDefinitions()
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
