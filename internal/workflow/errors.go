package workflow

import (
	"fmt"

	"github.com/google/uuid"
)

// ReservedStatusError rejects deletion or deactivation of a fixed status.
type ReservedStatusError struct {
	Key string
}

func (e *ReservedStatusError) Error() string {
	return fmt.Sprintf("status %q is reserved and cannot be deleted or deactivated", e.Key)
}

// StatusInUseError rejects deletion of a status still referenced by open
// work-items.
type StatusInUseError struct {
	Key       string
	OpenItems int
}

func (e *StatusInUseError) Error() string {
	return fmt.Sprintf("status %q is referenced by %d open work-item(s)", e.Key, e.OpenItems)
}

// InvalidTransitionError carries the attempted move for diagnostics.
type InvalidTransitionError struct {
	From      string
	To        string
	Component string
}

func (e *InvalidTransitionError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("transition %s -> %s not allowed for component %q", e.From, e.To, e.Component)
	}
	return fmt.Sprintf("transition %s -> %s not allowed", e.From, e.To)
}

// StageLifecycleError rejects start/complete calls that violate the stage
// execution lifecycle (not_started -> running -> completed).
type StageLifecycleError struct {
	WorkItemID uuid.UUID
	Reason     string
}

func (e *StageLifecycleError) Error() string {
	return fmt.Sprintf("work-item %s: %s", e.WorkItemID, e.Reason)
}

// PartialMoveFailure reports a batch move where some items were updated and
// others were not. The engine does not roll back the succeeded subset; the
// caller retries or reconciles the failed ids.
type PartialMoveFailure struct {
	OrderID   uuid.UUID
	From      string
	To        string
	Succeeded []uuid.UUID
	Failed    []uuid.UUID
	Cause     error
}

func (e *PartialMoveFailure) Error() string {
	return fmt.Sprintf("move %s -> %s for order %s partially failed: %d moved, %d failed: %v",
		e.From, e.To, e.OrderID, len(e.Succeeded), len(e.Failed), e.Cause)
}

func (e *PartialMoveFailure) Unwrap() error { return e.Cause }

// NotFoundError reports a missing order, work-item or status.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
