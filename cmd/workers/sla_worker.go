package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pinn-product-builder/erp-retifica-formiguense-sub002/internal/config"
	"github.com/pinn-product-builder/erp-retifica-formiguense-sub002/internal/workflow"
)

// SLAWorker periodically evaluates the dwell time of every open work-item
// against its status's SLA config and records escalations for breaches.
// The engine itself stays request/response; this sweep lives outside it.
type SLAWorker struct {
	db       *sqlx.DB
	logger   *zap.Logger
	cooldown time.Duration
}

// openItemRow joins a work-item with its status SLA config and the moment it
// entered the current status (last history entry, or creation).
type openItemRow struct {
	ID        uuid.UUID       `db:"id"`
	OrgID     uuid.UUID       `db:"org_id"`
	OrderID   uuid.UUID       `db:"order_id"`
	Component string          `db:"component"`
	Status    string          `db:"status"`
	EnteredAt time.Time       `db:"entered_at"`
	SLAConfig json.RawMessage `db:"sla_config"`
}

func NewSLAWorker(db *sqlx.DB, logger *zap.Logger, cooldown time.Duration) *SLAWorker {
	return &SLAWorker{db: db, logger: logger, cooldown: cooldown}
}

// EnsureSchema creates the escalation table the sweep writes to.
func (w *SLAWorker) EnsureSchema(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_escalations (
			id UUID PRIMARY KEY,
			org_id UUID NOT NULL,
			work_item_id UUID NOT NULL,
			status TEXT NOT NULL,
			level TEXT NOT NULL,
			percent DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Sweep evaluates every open work-item once.
func (w *SLAWorker) Sweep(ctx context.Context) {
	var rows []openItemRow
	query := `
		SELECT w.id, w.org_id, w.order_id, w.component, w.status,
		       COALESCE(MAX(h.changed_at), w.created_at) AS entered_at,
		       s.sla_config
		FROM work_items w
		JOIN workflow_statuses s ON s.org_id = w.org_id AND s.key = w.status
		LEFT JOIN work_item_history h ON h.work_item_id = w.id
		WHERE w.status != $1
		GROUP BY w.id, w.org_id, w.order_id, w.component, w.status, w.created_at, s.sla_config
	`
	if err := w.db.SelectContext(ctx, &rows, query, workflow.StatusKeyDelivered); err != nil {
		w.logger.Error("SLA sweep query failed", zap.Error(err))
		return
	}

	now := time.Now()
	var warnings, breaches int
	for _, row := range rows {
		var cfg workflow.SLAConfig
		if len(row.SLAConfig) > 0 {
			if err := json.Unmarshal(row.SLAConfig, &cfg); err != nil {
				w.logger.Warn("Skipping work-item with corrupt sla config",
					zap.String("work_item_id", row.ID.String()),
					zap.Error(err))
				continue
			}
		}
		if !cfg.AlertsEnabled {
			continue
		}

		status := workflow.EvaluateSLA(now.Sub(row.EnteredAt), cfg)
		switch status.Level {
		case workflow.SLAWarning:
			warnings++
			w.logger.Warn("Work-item approaching SLA limit",
				zap.String("work_item_id", row.ID.String()),
				zap.String("status", row.Status),
				zap.Float64("percent", status.Percent))
		case workflow.SLABreached:
			breaches++
			w.logger.Warn("Work-item breached SLA",
				zap.String("work_item_id", row.ID.String()),
				zap.String("status", row.Status),
				zap.Float64("percent", status.Percent))
			if cfg.AutoEscalation {
				w.escalate(ctx, row, status)
			}
		}
	}

	w.logger.Info("SLA sweep finished",
		zap.Int("items", len(rows)),
		zap.Int("warnings", warnings),
		zap.Int("breaches", breaches))
}

// escalate records a breach unless one was already recorded within the
// cooldown window.
func (w *SLAWorker) escalate(ctx context.Context, row openItemRow, status workflow.SLAStatus) {
	query := `
		INSERT INTO workflow_escalations (id, org_id, work_item_id, status, level, percent)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE NOT EXISTS (
			SELECT 1 FROM workflow_escalations
			WHERE work_item_id = $3 AND status = $4 AND created_at > $7
		)
	`
	_, err := w.db.ExecContext(ctx, query,
		uuid.New(), row.OrgID, row.ID, row.Status, string(status.Level), status.Percent,
		time.Now().Add(-w.cooldown))
	if err != nil {
		w.logger.Error("Failed to record escalation",
			zap.String("work_item_id", row.ID.String()),
			zap.Error(err))
	}
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	worker := NewSLAWorker(db, logger, cfg.Workflow.EscalationCooldown)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := worker.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure escalation schema", zap.Error(err))
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Workflow.SLASweepCron, func() { worker.Sweep(ctx) }); err != nil {
		logger.Fatal("Invalid sweep cron expression",
			zap.String("cron", cfg.Workflow.SLASweepCron),
			zap.Error(err))
	}

	logger.Info("Starting SLA worker", zap.String("cron", cfg.Workflow.SLASweepCron))
	worker.Sweep(ctx)
	scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("SLA worker shutting down")
	<-scheduler.Stop().Done()
}
