package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Reserved status keys. The entry and delivery statuses are system-seeded,
// always active and pinned to the first/last board positions.
const (
	StatusKeyEntry        = "entrada"
	StatusKeyIntakeReview = "orcamentos"
	StatusKeyDelivered    = "entregue"
)

// TransitionType classifies how a configured transition is triggered.
type TransitionType string

const (
	TransitionAutomatic        TransitionType = "automatic"
	TransitionManual           TransitionType = "manual"
	TransitionApprovalRequired TransitionType = "approval_required"
	TransitionConditional      TransitionType = "conditional"
)

// SLAConfig holds the per-status dwell-time limits.
// MaxHours nil means the status has no SLA.
type SLAConfig struct {
	MaxHours                *float64 `json:"max_hours,omitempty"`
	WarningThresholdPercent int      `json:"warning_threshold_percent"`
	AlertsEnabled           bool     `json:"alerts_enabled"`
	AutoEscalation          bool     `json:"auto_escalation"`
	BusinessHoursOnly       bool     `json:"business_hours_only"`
}

// DefaultWarningThresholdPercent applies when a stored config carries no
// explicit warning threshold.
const DefaultWarningThresholdPercent = 80

// VisualConfig holds board rendering hints for a status column.
type VisualConfig struct {
	AllowComponentSplit bool   `json:"allow_component_split"`
	Color               string `json:"color,omitempty"`
	Icon                string `json:"icon,omitempty"`
}

// StatusDefinition is one step of the repair workflow.
//
// AllowedComponents distinguishes nil ("all components visible") from an
// empty non-nil slice ("nothing visible in this column").
type StatusDefinition struct {
	Key               string       `json:"key"`
	Label             string       `json:"label"`
	DisplayOrder      int          `json:"display_order"`
	IsActive          bool         `json:"is_active"`
	Fixed             bool         `json:"fixed"`
	SLA               SLAConfig    `json:"sla_config"`
	Visual            VisualConfig `json:"visual_config"`
	AllowedComponents []string     `json:"allowed_components,omitempty"`
}

// AllowsComponent reports whether work-items of the given component are
// visible in this status column.
func (d StatusDefinition) AllowsComponent(component string) bool {
	if d.AllowedComponents == nil {
		return true
	}
	for _, c := range d.AllowedComponents {
		if c == component {
			return true
		}
	}
	return false
}

// StatusPrerequisite permits a specific status-to-status transition,
// optionally scoped to a single component (nil Component applies to all).
type StatusPrerequisite struct {
	ID             uuid.UUID      `json:"id"`
	FromStatus     string         `json:"from_status"`
	ToStatus       string         `json:"to_status"`
	Component      *string        `json:"component,omitempty"`
	TransitionType TransitionType `json:"transition_type"`
	IsActive       bool           `json:"is_active"`
}

// OrderSummary is the slice of a service order the board needs.
type OrderSummary struct {
	ID           uuid.UUID `json:"id" db:"id"`
	OrgID        uuid.UUID `json:"org_id" db:"org_id"`
	Number       string    `json:"number" db:"number"`
	CustomerName string    `json:"customer_name" db:"customer_name"`
	EngineModel  string    `json:"engine_model" db:"engine_model"`
}

// WorkItem tracks one component of one order through the workflow.
// Exactly one open work-item exists per (order, component) at any time;
// moving it rewrites Status rather than creating a duplicate row.
type WorkItem struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	OrgID       uuid.UUID  `json:"org_id" db:"org_id"`
	OrderID     uuid.UUID  `json:"order_id" db:"order_id"`
	Component   string     `json:"component" db:"component"`
	Status      string     `json:"status" db:"status"`
	AssignedTo  *uuid.UUID `json:"assigned_to,omitempty" db:"assigned_to"`
	Notes       *string    `json:"notes,omitempty" db:"notes"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// LastActivity returns the most recent touch point of the item, used for
// card ordering within a column.
func (w WorkItem) LastActivity() time.Time {
	if !w.UpdatedAt.IsZero() {
		return w.UpdatedAt
	}
	if w.StartedAt != nil {
		return *w.StartedAt
	}
	return w.CreatedAt
}

// HistoryEntry is one append-only record of a status change.
type HistoryEntry struct {
	ID             uuid.UUID `json:"id" db:"id"`
	WorkItemID     uuid.UUID `json:"work_item_id" db:"work_item_id"`
	PreviousStatus *string   `json:"previous_status,omitempty" db:"previous_status"`
	NewStatus      string    `json:"new_status" db:"new_status"`
	ChangedAt      time.Time `json:"changed_at" db:"changed_at"`
	Actor          string    `json:"actor" db:"actor"`
}

// DefaultStatusDefinitions returns the seed set for a new organization.
// Display orders leave gaps so custom statuses can be slotted in between.
func DefaultStatusDefinitions() []StatusDefinition {
	return []StatusDefinition{
		{Key: StatusKeyEntry, Label: "Entrada", DisplayOrder: 0, IsActive: true, Fixed: true},
		{Key: StatusKeyIntakeReview, Label: "Orçamentos", DisplayOrder: 10, IsActive: true},
		{Key: "metrologia", Label: "Metrologia", DisplayOrder: 20, IsActive: true},
		{Key: "usinagem", Label: "Usinagem", DisplayOrder: 30, IsActive: true},
		{Key: "montagem", Label: "Montagem", DisplayOrder: 40, IsActive: true},
		{Key: "pronto", Label: "Pronto", DisplayOrder: 50, IsActive: true},
		{Key: StatusKeyDelivered, Label: "Entregue", DisplayOrder: 60, IsActive: true, Fixed: true},
	}
}
