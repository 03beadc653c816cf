package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// WorkItemRepository is the abstract persistence surface the engine mutates.
type WorkItemRepository interface {
	ListOpenByOrganization(ctx context.Context, orgID uuid.UUID) ([]WorkItem, error)
	ListOpenByOrder(ctx context.Context, orderID uuid.UUID) ([]WorkItem, error)
	GetWorkItem(ctx context.Context, id uuid.UUID) (*WorkItem, error)
	CountOpenByStatus(ctx context.Context, orgID uuid.UUID, statusKey string) (int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string, note *string) (*WorkItem, error)
	SetLifecycle(ctx context.Context, id uuid.UUID, startedAt, completedAt *time.Time, assignedTo *uuid.UUID) (*WorkItem, error)
}

// OrderRepository provides the order summaries the board joins against.
type OrderRepository interface {
	ListOpenByOrganization(ctx context.Context, orgID uuid.UUID) ([]OrderSummary, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*OrderSummary, error)
}

// HistoryRepository is the append-only status-change log.
type HistoryRepository interface {
	Append(ctx context.Context, entry *HistoryEntry) error
	ListByWorkItem(ctx context.Context, workItemID uuid.UUID) ([]HistoryEntry, error)
}

// =====================================================
// Postgres implementations
// =====================================================

// PostgresRepository implements the work-item, order and history
// repositories over a single sqlx handle.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const workItemColumns = `
	id, org_id, order_id, component, status, assigned_to, notes,
	started_at, completed_at, created_at, updated_at
`

func (r *PostgresRepository) ListOpenByOrganization(ctx context.Context, orgID uuid.UUID) ([]WorkItem, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM work_items
		WHERE org_id = $1 AND status != $2
		ORDER BY order_id, component
	`, workItemColumns)

	var items []WorkItem
	if err := r.db.SelectContext(ctx, &items, query, orgID, StatusKeyDelivered); err != nil {
		return nil, fmt.Errorf("failed to list open work-items: %w", err)
	}
	return items, nil
}

func (r *PostgresRepository) ListOpenByOrder(ctx context.Context, orderID uuid.UUID) ([]WorkItem, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM work_items
		WHERE order_id = $1 AND status != $2
		ORDER BY component
	`, workItemColumns)

	var items []WorkItem
	if err := r.db.SelectContext(ctx, &items, query, orderID, StatusKeyDelivered); err != nil {
		return nil, fmt.Errorf("failed to list work-items for order %s: %w", orderID, err)
	}
	return items, nil
}

func (r *PostgresRepository) GetWorkItem(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM work_items WHERE id = $1`, workItemColumns)

	var item WorkItem
	err := r.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "work-item", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work-item %s: %w", id, err)
	}
	return &item, nil
}

func (r *PostgresRepository) CountOpenByStatus(ctx context.Context, orgID uuid.UUID, statusKey string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM work_items WHERE org_id = $1 AND status = $2`
	if err := r.db.GetContext(ctx, &count, query, orgID, statusKey); err != nil {
		return 0, fmt.Errorf("failed to count work-items in status %q: %w", statusKey, err)
	}
	return count, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus string, note *string) (*WorkItem, error) {
	query := fmt.Sprintf(`
		UPDATE work_items
		SET status = $2,
		    notes = COALESCE($3, notes),
		    started_at = NULL,
		    completed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, workItemColumns)

	var item WorkItem
	err := r.db.GetContext(ctx, &item, query, id, newStatus, note)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "work-item", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update status of work-item %s: %w", id, err)
	}
	return &item, nil
}

func (r *PostgresRepository) SetLifecycle(ctx context.Context, id uuid.UUID, startedAt, completedAt *time.Time, assignedTo *uuid.UUID) (*WorkItem, error) {
	query := fmt.Sprintf(`
		UPDATE work_items
		SET started_at = $2,
		    completed_at = $3,
		    assigned_to = COALESCE($4, assigned_to),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, workItemColumns)

	var item WorkItem
	err := r.db.GetContext(ctx, &item, query, id, startedAt, completedAt, assignedTo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "work-item", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set lifecycle of work-item %s: %w", id, err)
	}
	return &item, nil
}

// Orders returns the order-summary view of the repository.
func (r *PostgresRepository) Orders() OrderRepository { return (*postgresOrderRepository)(r) }

type postgresOrderRepository PostgresRepository

func (r *postgresOrderRepository) ListOpenByOrganization(ctx context.Context, orgID uuid.UUID) ([]OrderSummary, error) {
	query := `
		SELECT DISTINCT o.id, o.org_id, o.number, o.customer_name, o.engine_model
		FROM orders o
		JOIN work_items w ON w.order_id = o.id
		WHERE o.org_id = $1 AND w.status != $2
		ORDER BY o.number
	`

	var orders []OrderSummary
	if err := r.db.SelectContext(ctx, &orders, query, orgID, StatusKeyDelivered); err != nil {
		return nil, fmt.Errorf("failed to list open orders: %w", err)
	}
	return orders, nil
}

func (r *postgresOrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*OrderSummary, error) {
	query := `SELECT id, org_id, number, customer_name, engine_model FROM orders WHERE id = $1`

	var order OrderSummary
	err := r.db.GetContext(ctx, &order, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "order", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return &order, nil
}

// History returns the history-log view of the repository.
func (r *PostgresRepository) History() HistoryRepository { return (*postgresHistoryRepository)(r) }

type postgresHistoryRepository PostgresRepository

func (r *postgresHistoryRepository) Append(ctx context.Context, entry *HistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO work_item_history (id, work_item_id, previous_status, new_status, changed_at, actor)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.WorkItemID, entry.PreviousStatus, entry.NewStatus, entry.ChangedAt, entry.Actor)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (r *postgresHistoryRepository) ListByWorkItem(ctx context.Context, workItemID uuid.UUID) ([]HistoryEntry, error) {
	query := `
		SELECT id, work_item_id, previous_status, new_status, changed_at, actor
		FROM work_item_history
		WHERE work_item_id = $1
		ORDER BY changed_at
	`

	var entries []HistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, workItemID); err != nil {
		return nil, fmt.Errorf("failed to list history for work-item %s: %w", workItemID, err)
	}
	return entries, nil
}
