package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GraphSource yields the live prerequisite graph. The service caches the
// graph per organization and invalidates it on every rule edit, so the
// executor always validates against current rules.
type GraphSource interface {
	Graph(ctx context.Context) (*PrerequisiteGraph, error)
}

// MoveResult reports a successful (possibly auto-advanced) order move.
type MoveResult struct {
	OrderID        uuid.UUID   `json:"order_id"`
	From           string      `json:"from"`
	To             string      `json:"to"`
	Component      string      `json:"component,omitempty"`
	Moved          []uuid.UUID `json:"moved"`
	AutoAdvancedTo string      `json:"auto_advanced_to,omitempty"`
}

// TransitionExecutor validates and performs work-item moves and stage
// lifecycle changes for one organization.
//
// Two orthogonal state machines act on each work-item: stage position
// (Status, governed by the prerequisite graph) and stage execution
// (StartedAt/CompletedAt, governed by explicit start/complete calls).
type TransitionExecutor struct {
	store   *StatusConfigStore
	graphs  GraphSource
	items   WorkItemRepository
	history HistoryRepository
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*orderLock

	now func() time.Time
}

// orderLock serializes moves on one order. refs counts holders and waiters so
// the map entry can be dropped once the last one releases; the map only ever
// holds in-flight orders.
type orderLock struct {
	mu   sync.Mutex
	refs int
}

// NewTransitionExecutor creates an executor bound to one organization's
// status store and rule graph.
func NewTransitionExecutor(store *StatusConfigStore, graphs GraphSource, items WorkItemRepository, history HistoryRepository, logger *zap.Logger) *TransitionExecutor {
	return &TransitionExecutor{
		store:   store,
		graphs:  graphs,
		items:   items,
		history: history,
		logger:  logger,
		locks:   make(map[uuid.UUID]*orderLock),
		now:     time.Now,
	}
}

func (e *TransitionExecutor) lockOrder(orderID uuid.UUID) *orderLock {
	e.mu.Lock()
	lock, ok := e.locks[orderID]
	if !ok {
		lock = &orderLock{}
		e.locks[orderID] = lock
	}
	lock.refs++
	e.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (e *TransitionExecutor) unlockOrder(orderID uuid.UUID, lock *orderLock) {
	lock.mu.Unlock()

	e.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(e.locks, orderID)
	}
	e.mu.Unlock()
}

// StartStage marks a work-item's current stage as running. Permitted only
// when the stage has never started, or has already completed (resuming);
// a second start on a running stage is rejected and changes nothing.
func (e *TransitionExecutor) StartStage(ctx context.Context, workItemID uuid.UUID, actor *uuid.UUID) (*WorkItem, error) {
	item, err := e.items.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	if item.StartedAt != nil && item.CompletedAt == nil {
		return nil, &StageLifecycleError{WorkItemID: workItemID, Reason: "stage already running"}
	}

	started := e.now()
	assignTo := actor
	if item.AssignedTo != nil {
		assignTo = nil
	}
	updated, err := e.items.SetLifecycle(ctx, workItemID, &started, nil, assignTo)
	if err != nil {
		return nil, err
	}

	e.logger.Info("stage started",
		zap.String("work_item_id", workItemID.String()),
		zap.String("status", updated.Status))
	return updated, nil
}

// CompleteStage marks a running stage as completed. With autoAdvance the
// item is then offered to the display-order successor status under the same
// validation as a manual move; a rejected auto-advance does not undo the
// completion.
func (e *TransitionExecutor) CompleteStage(ctx context.Context, workItemID uuid.UUID, actor string, autoAdvance bool) (*WorkItem, error) {
	item, err := e.items.GetWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	if item.StartedAt == nil {
		return nil, &StageLifecycleError{WorkItemID: workItemID, Reason: "stage has not been started"}
	}
	if item.CompletedAt != nil {
		return nil, &StageLifecycleError{WorkItemID: workItemID, Reason: "stage already completed"}
	}

	completed := e.now()
	updated, err := e.items.SetLifecycle(ctx, workItemID, item.StartedAt, &completed, nil)
	if err != nil {
		return nil, err
	}

	if autoAdvance {
		next, err := e.store.NextByDisplayOrder(ctx, updated.Status)
		if err != nil || next == nil {
			return updated, nil
		}
		if _, err := e.MoveOrder(ctx, updated.OrderID, updated.Status, next.Key, updated.Component, actor); err != nil {
			e.logger.Info("auto-advance after completion rejected",
				zap.String("work_item_id", workItemID.String()),
				zap.String("from", updated.Status),
				zap.String("to", next.Key),
				zap.Error(err))
			return updated, nil
		}
		return e.items.GetWorkItem(ctx, workItemID)
	}
	return updated, nil
}

// MoveOrder moves all of an order's work-items currently in fromStatus (or
// the single named component, when the source column is split) to toStatus.
//
// Validation happens before any mutation. The batch update is one logical
// unit but individual failures are not rolled back; a PartialMoveFailure
// lists which items moved so the caller can retry the rest.
func (e *TransitionExecutor) MoveOrder(ctx context.Context, orderID uuid.UUID, fromStatus, toStatus, component, actor string) (*MoveResult, error) {
	lock := e.lockOrder(orderID)
	defer e.unlockOrder(orderID, lock)
	return e.moveLocked(ctx, orderID, fromStatus, toStatus, component, actor, true)
}

func (e *TransitionExecutor) moveLocked(ctx context.Context, orderID uuid.UUID, fromStatus, toStatus, component, actor string, allowChain bool) (*MoveResult, error) {
	if fromStatus == toStatus {
		return nil, &InvalidTransitionError{From: fromStatus, To: toStatus, Component: component}
	}
	if fromStatus == StatusKeyEntry && toStatus != StatusKeyIntakeReview {
		return nil, &InvalidTransitionError{From: fromStatus, To: toStatus, Component: component}
	}
	if _, err := e.store.Get(ctx, toStatus); err != nil {
		return nil, err
	}

	graph, err := e.graphs.Graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load transition rules: %w", err)
	}
	if !graph.IsAllowed(fromStatus, toStatus, component) {
		return nil, &InvalidTransitionError{From: fromStatus, To: toStatus, Component: component}
	}

	// Re-read immediately before applying: a concurrent move may have
	// shifted the items since the caller projected the board.
	open, err := e.items.ListOpenByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var selected []WorkItem
	for _, it := range open {
		if it.Status != fromStatus {
			continue
		}
		if component != "" && it.Component != component {
			continue
		}
		selected = append(selected, it)
	}
	if len(selected) == 0 {
		return nil, &NotFoundError{Kind: "work-items in status", ID: fmt.Sprintf("%s/%s", orderID, fromStatus)}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Component < selected[j].Component })

	result := &MoveResult{OrderID: orderID, From: fromStatus, To: toStatus, Component: component}
	var failed []uuid.UUID
	var firstErr error
	for _, it := range selected {
		if _, err := e.items.UpdateStatus(ctx, it.ID, toStatus, nil); err != nil {
			failed = append(failed, it.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.Moved = append(result.Moved, it.ID)

		prev := it.Status
		entry := &HistoryEntry{
			WorkItemID:     it.ID,
			PreviousStatus: &prev,
			NewStatus:      toStatus,
			ChangedAt:      e.now(),
			Actor:          actor,
		}
		if err := e.history.Append(ctx, entry); err != nil {
			// The move itself stuck; a missing audit row is logged,
			// not surfaced as a move failure.
			e.logger.Error("failed to append history entry",
				zap.String("work_item_id", it.ID.String()),
				zap.Error(err))
		}
	}

	if len(failed) > 0 {
		return nil, &PartialMoveFailure{
			OrderID:   orderID,
			From:      fromStatus,
			To:        toStatus,
			Succeeded: result.Moved,
			Failed:    failed,
			Cause:     firstErr,
		}
	}

	e.logger.Info("order moved",
		zap.String("order_id", orderID.String()),
		zap.String("from", fromStatus),
		zap.String("to", toStatus),
		zap.Int("items", len(result.Moved)))

	if allowChain {
		if advanced, ok := e.tryAutoAdvance(ctx, orderID, toStatus, actor); ok {
			result.AutoAdvancedTo = advanced
		}
	}
	return result, nil
}

// tryAutoAdvance chains one further hop when the order is now fully in the
// given status and an active automatic-type rule leads onward.
func (e *TransitionExecutor) tryAutoAdvance(ctx context.Context, orderID uuid.UUID, status, actor string) (string, bool) {
	open, err := e.items.ListOpenByOrder(ctx, orderID)
	if err != nil || len(open) == 0 {
		return "", false
	}
	for _, it := range open {
		if it.Status != status {
			return "", false
		}
	}

	graph, err := e.graphs.Graph(ctx)
	if err != nil {
		return "", false
	}
	next, ok := graph.NextAutomatic(status, "")
	if !ok {
		return "", false
	}

	if _, err := e.moveLocked(ctx, orderID, status, next, "", actor, false); err != nil {
		e.logger.Info("automatic advance rejected",
			zap.String("order_id", orderID.String()),
			zap.String("from", status),
			zap.String("to", next),
			zap.Error(err))
		return "", false
	}
	return next, true
}
