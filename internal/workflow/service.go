package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutcomeKind discriminates the result reported to the notification sink.
type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeValidationError OutcomeKind = "validation_error"
	OutcomePartialFailure  OutcomeKind = "partial_failure"
)

// Outcome is the engine-side description of what happened to a user action.
// Presenting it (toast, websocket push) is the sink's concern.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message"`
	Move    *MoveResult `json:"move,omitempty"`
}

// Notifier receives fire-and-forget outcome reports.
type Notifier interface {
	Notify(orgID uuid.UUID, outcome Outcome)
}

// NopNotifier discards outcomes.
type NopNotifier struct{}

func (NopNotifier) Notify(uuid.UUID, Outcome) {}

// Service is the organization-scoped façade over the workflow engine: board
// projection, stage lifecycle, moves, and configuration administration.
type Service struct {
	cfgRepo    StatusConfigRepository
	prereqRepo PrerequisiteRepository
	items      WorkItemRepository
	orders     OrderRepository
	history    HistoryRepository
	notifier   Notifier
	logger     *zap.Logger

	mu       sync.Mutex
	runtimes map[uuid.UUID]*orgRuntime
}

// NewService creates the workflow service.
func NewService(cfgRepo StatusConfigRepository, prereqRepo PrerequisiteRepository, items WorkItemRepository, orders OrderRepository, history HistoryRepository, notifier Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		cfgRepo:    cfgRepo,
		prereqRepo: prereqRepo,
		items:      items,
		orders:     orders,
		history:    history,
		notifier:   notifier,
		logger:     logger,
		runtimes:   make(map[uuid.UUID]*orgRuntime),
	}
}

// orgRuntime holds the per-organization store, cached rule graph and
// executor. Built once and reused; caches are invalidated on admin writes.
type orgRuntime struct {
	orgID    uuid.UUID
	store    *StatusConfigStore
	executor *TransitionExecutor

	prereqRepo PrerequisiteRepository
	graphMu    sync.Mutex
	graph      *PrerequisiteGraph
}

func (rt *orgRuntime) Graph(ctx context.Context) (*PrerequisiteGraph, error) {
	rt.graphMu.Lock()
	defer rt.graphMu.Unlock()
	if rt.graph != nil {
		return rt.graph, nil
	}
	rules, err := rt.prereqRepo.List(ctx, rt.orgID)
	if err != nil {
		return nil, err
	}
	rt.graph = NewPrerequisiteGraph(rules)
	return rt.graph, nil
}

func (rt *orgRuntime) invalidateGraph() {
	rt.graphMu.Lock()
	rt.graph = nil
	rt.graphMu.Unlock()
}

func (s *Service) runtime(orgID uuid.UUID) *orgRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.runtimes[orgID]
	if !ok {
		rt = &orgRuntime{
			orgID:      orgID,
			store:      NewStatusConfigStore(orgID, s.cfgRepo, s.items),
			prereqRepo: s.prereqRepo,
		}
		rt.executor = NewTransitionExecutor(rt.store, rt, s.items, s.history, s.logger)
		s.runtimes[orgID] = rt
	}
	return rt
}

// =====================================================
// Board (read path)
// =====================================================

// Board projects the organization's open work-items into status columns.
func (s *Service) Board(ctx context.Context, orgID uuid.UUID, filters BoardFilters) (*Board, error) {
	rt := s.runtime(orgID)
	statuses, err := rt.store.List(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListOpenByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListOpenByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	board := ProjectBoard(orders, items, statuses, filters)
	return &board, nil
}

// Timeline returns a work-item's status history with reconstructed per-stage
// durations. A work-item of another organization reads as not found.
func (s *Service) Timeline(ctx context.Context, orgID, workItemID uuid.UUID) ([]HistoryEntry, []StageDuration, error) {
	item, err := s.items.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, nil, err
	}
	if item.OrgID != orgID {
		return nil, nil, &NotFoundError{Kind: "work-item", ID: workItemID.String()}
	}
	entries, err := s.history.ListByWorkItem(ctx, workItemID)
	if err != nil {
		return nil, nil, err
	}
	return entries, StageDurations(entries, *item, time.Now()), nil
}

// =====================================================
// Stage lifecycle and moves (write path)
// =====================================================

// StartStage begins work on a work-item's current stage, assigning the actor
// when the item has no assignee yet.
func (s *Service) StartStage(ctx context.Context, orgID, workItemID uuid.UUID, actor uuid.UUID) (*WorkItem, error) {
	rt := s.runtime(orgID)
	item, err := rt.executor.StartStage(ctx, workItemID, &actor)
	if err != nil {
		s.report(orgID, err)
		return nil, err
	}
	s.notifier.Notify(orgID, Outcome{Kind: OutcomeSuccess, Message: fmt.Sprintf("stage %s started", item.Status)})
	return item, nil
}

// CompleteStage finishes work on the current stage, optionally offering the
// item to the next status.
func (s *Service) CompleteStage(ctx context.Context, orgID, workItemID uuid.UUID, actor string, autoAdvance bool) (*WorkItem, error) {
	rt := s.runtime(orgID)
	item, err := rt.executor.CompleteStage(ctx, workItemID, actor, autoAdvance)
	if err != nil {
		s.report(orgID, err)
		return nil, err
	}
	s.notifier.Notify(orgID, Outcome{Kind: OutcomeSuccess, Message: fmt.Sprintf("stage %s completed", item.Status)})
	return item, nil
}

// MoveOrder moves an order (or one of its components) between statuses.
func (s *Service) MoveOrder(ctx context.Context, orgID, orderID uuid.UUID, from, to, component, actor string) (*MoveResult, error) {
	rt := s.runtime(orgID)
	result, err := rt.executor.MoveOrder(ctx, orderID, from, to, component, actor)
	if err != nil {
		s.report(orgID, err)
		return nil, err
	}
	s.notifier.Notify(orgID, Outcome{
		Kind:    OutcomeSuccess,
		Message: fmt.Sprintf("order moved from %s to %s", from, to),
		Move:    result,
	})
	return result, nil
}

// report translates an engine error into an outcome for the sink. Partial
// failures carry the succeeded subset so callers can reconcile.
func (s *Service) report(orgID uuid.UUID, err error) {
	var partial *PartialMoveFailure
	if errors.As(err, &partial) {
		s.notifier.Notify(orgID, Outcome{
			Kind:    OutcomePartialFailure,
			Message: partial.Error(),
			Move: &MoveResult{
				OrderID: partial.OrderID,
				From:    partial.From,
				To:      partial.To,
				Moved:   partial.Succeeded,
			},
		})
		return
	}
	s.notifier.Notify(orgID, Outcome{Kind: OutcomeValidationError, Message: err.Error()})
}

// =====================================================
// Configuration administration
// =====================================================

// ListStatuses returns the org's statuses in board order.
func (s *Service) ListStatuses(ctx context.Context, orgID uuid.UUID) ([]StatusDefinition, error) {
	return s.runtime(orgID).store.List(ctx)
}

// UpsertStatus creates or updates a status definition.
func (s *Service) UpsertStatus(ctx context.Context, orgID uuid.UUID, def StatusDefinition) error {
	return s.runtime(orgID).store.Upsert(ctx, def)
}

// DeleteStatus removes a non-fixed, unreferenced status.
func (s *Service) DeleteStatus(ctx context.Context, orgID uuid.UUID, key string) error {
	return s.runtime(orgID).store.Delete(ctx, key)
}

// SeedDefaultStatuses installs the default workflow for an organization that
// has no statuses yet. Safe to call repeatedly; an already-configured
// organization is left untouched.
func (s *Service) SeedDefaultStatuses(ctx context.Context, orgID uuid.UUID) error {
	existing, err := s.cfgRepo.List(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to list statuses: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, def := range DefaultStatusDefinitions() {
		if err := s.cfgRepo.Upsert(ctx, orgID, def); err != nil {
			return fmt.Errorf("failed to seed status %q: %w", def.Key, err)
		}
	}
	s.runtime(orgID).store.Invalidate()
	s.logger.Info("seeded default workflow", zap.String("org_id", orgID.String()))
	return nil
}

// ListPrerequisites returns the org's configured transition rules.
func (s *Service) ListPrerequisites(ctx context.Context, orgID uuid.UUID) ([]StatusPrerequisite, error) {
	return s.prereqRepo.List(ctx, orgID)
}

// UpsertPrerequisite saves a transition rule and invalidates the cached
// graph so the next validation sees it.
func (s *Service) UpsertPrerequisite(ctx context.Context, orgID uuid.UUID, rule StatusPrerequisite) (*StatusPrerequisite, error) {
	saved, err := s.prereqRepo.Upsert(ctx, orgID, rule)
	if err != nil {
		return nil, err
	}
	s.runtime(orgID).invalidateGraph()
	return saved, nil
}

// DeletePrerequisite removes a transition rule.
func (s *Service) DeletePrerequisite(ctx context.Context, orgID uuid.UUID, id uuid.UUID) error {
	if err := s.prereqRepo.Delete(ctx, orgID, id); err != nil {
		return err
	}
	s.runtime(orgID).invalidateGraph()
	return nil
}
