package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusConfigRepository persists status definitions per organization.
type StatusConfigRepository interface {
	List(ctx context.Context, orgID uuid.UUID) ([]StatusDefinition, error)
	Upsert(ctx context.Context, orgID uuid.UUID, def StatusDefinition) error
	Delete(ctx context.Context, orgID uuid.UUID, key string) error
}

// PrerequisiteRepository persists transition rules per organization.
type PrerequisiteRepository interface {
	List(ctx context.Context, orgID uuid.UUID) ([]StatusPrerequisite, error)
	Upsert(ctx context.Context, orgID uuid.UUID, rule StatusPrerequisite) (*StatusPrerequisite, error)
	Delete(ctx context.Context, orgID uuid.UUID, id uuid.UUID) error
}

// statusRecord is the GORM row shape. The JSON columns are decoded into the
// typed config records at this boundary; nothing downstream touches raw JSON.
type statusRecord struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey"`
	OrgID             uuid.UUID      `gorm:"type:uuid;uniqueIndex:idx_status_org_key;not null"`
	Key               string         `gorm:"uniqueIndex:idx_status_org_key;not null"`
	Label             string         `gorm:"not null"`
	DisplayOrder      int            `gorm:"not null;default:0"`
	IsActive          bool           `gorm:"not null;default:true"`
	Fixed             bool           `gorm:"not null;default:false"`
	SLAConfig         datatypes.JSON `gorm:"column:sla_config"`
	VisualConfig      datatypes.JSON `gorm:"column:visual_config"`
	AllowedComponents datatypes.JSON `gorm:"column:allowed_components"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (statusRecord) TableName() string { return "workflow_statuses" }

type prerequisiteRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrgID          uuid.UUID `gorm:"type:uuid;index;not null"`
	FromStatus     string    `gorm:"not null"`
	ToStatus       string    `gorm:"not null"`
	Component      *string
	TransitionType string `gorm:"not null;default:manual"`
	IsActive       bool   `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (prerequisiteRecord) TableName() string { return "workflow_prerequisites" }

// AutoMigrateConfig creates/updates the configuration tables.
func AutoMigrateConfig(db *gorm.DB) error {
	return db.AutoMigrate(&statusRecord{}, &prerequisiteRecord{})
}

// GormConfigRepository implements both configuration repositories.
type GormConfigRepository struct {
	db *gorm.DB
}

func NewGormConfigRepository(db *gorm.DB) *GormConfigRepository {
	return &GormConfigRepository{db: db}
}

func (r *GormConfigRepository) List(ctx context.Context, orgID uuid.UUID) ([]StatusDefinition, error) {
	var records []statusRecord
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("display_order").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load status records: %w", err)
	}

	defs := make([]StatusDefinition, 0, len(records))
	for _, rec := range records {
		def, err := rec.toDefinition()
		if err != nil {
			return nil, fmt.Errorf("corrupt config for status %q: %w", rec.Key, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (r *GormConfigRepository) Upsert(ctx context.Context, orgID uuid.UUID, def StatusDefinition) error {
	rec, err := recordFromDefinition(orgID, def)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"label", "display_order", "is_active", "fixed",
				"sla_config", "visual_config", "allowed_components", "updated_at",
			}),
		}).
		Create(&rec).Error
}

func (r *GormConfigRepository) Delete(ctx context.Context, orgID uuid.UUID, key string) error {
	result := r.db.WithContext(ctx).
		Where("org_id = ? AND key = ?", orgID, key).
		Delete(&statusRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Kind: "status", ID: key}
	}
	return nil
}

// Prerequisites returns the rule view of the repository.
func (r *GormConfigRepository) Prerequisites() PrerequisiteRepository {
	return (*gormPrerequisiteRepository)(r)
}

type gormPrerequisiteRepository GormConfigRepository

func (r *gormPrerequisiteRepository) List(ctx context.Context, orgID uuid.UUID) ([]StatusPrerequisite, error) {
	var records []prerequisiteRecord
	if err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("from_status, to_status").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load prerequisites: %w", err)
	}

	rules := make([]StatusPrerequisite, 0, len(records))
	for _, rec := range records {
		rules = append(rules, StatusPrerequisite{
			ID:             rec.ID,
			FromStatus:     rec.FromStatus,
			ToStatus:       rec.ToStatus,
			Component:      rec.Component,
			TransitionType: TransitionType(rec.TransitionType),
			IsActive:       rec.IsActive,
		})
	}
	return rules, nil
}

func (r *gormPrerequisiteRepository) Upsert(ctx context.Context, orgID uuid.UUID, rule StatusPrerequisite) (*StatusPrerequisite, error) {
	if rule.FromStatus == rule.ToStatus {
		return nil, fmt.Errorf("prerequisite from and to status must differ, got %q", rule.FromStatus)
	}
	switch rule.TransitionType {
	case TransitionAutomatic, TransitionManual, TransitionApprovalRequired, TransitionConditional:
	case "":
		rule.TransitionType = TransitionManual
	default:
		return nil, fmt.Errorf("unknown transition type %q", rule.TransitionType)
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	rec := prerequisiteRecord{
		ID:             rule.ID,
		OrgID:          orgID,
		FromStatus:     rule.FromStatus,
		ToStatus:       rule.ToStatus,
		Component:      rule.Component,
		TransitionType: string(rule.TransitionType),
		IsActive:       rule.IsActive,
	}
	if err := r.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to save prerequisite: %w", err)
	}
	return &rule, nil
}

func (r *gormPrerequisiteRepository) Delete(ctx context.Context, orgID uuid.UUID, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Delete(&prerequisiteRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Kind: "prerequisite", ID: id.String()}
	}
	return nil
}

// =====================================================
// Row <-> domain conversion
// =====================================================

func (rec statusRecord) toDefinition() (StatusDefinition, error) {
	def := StatusDefinition{
		Key:          rec.Key,
		Label:        rec.Label,
		DisplayOrder: rec.DisplayOrder,
		IsActive:     rec.IsActive,
		Fixed:        rec.Fixed,
	}
	if len(rec.SLAConfig) > 0 {
		if err := json.Unmarshal(rec.SLAConfig, &def.SLA); err != nil {
			return def, fmt.Errorf("sla_config: %w", err)
		}
	}
	if len(rec.VisualConfig) > 0 {
		if err := json.Unmarshal(rec.VisualConfig, &def.Visual); err != nil {
			return def, fmt.Errorf("visual_config: %w", err)
		}
	}
	if len(rec.AllowedComponents) > 0 {
		// JSON null round-trips to a nil slice, preserving the
		// "all components" meaning; [] stays an empty slice.
		if err := json.Unmarshal(rec.AllowedComponents, &def.AllowedComponents); err != nil {
			return def, fmt.Errorf("allowed_components: %w", err)
		}
	}
	return def, nil
}

func recordFromDefinition(orgID uuid.UUID, def StatusDefinition) (statusRecord, error) {
	slaJSON, err := json.Marshal(def.SLA)
	if err != nil {
		return statusRecord{}, fmt.Errorf("failed to marshal sla config: %w", err)
	}
	visualJSON, err := json.Marshal(def.Visual)
	if err != nil {
		return statusRecord{}, fmt.Errorf("failed to marshal visual config: %w", err)
	}
	componentsJSON, err := json.Marshal(def.AllowedComponents)
	if err != nil {
		return statusRecord{}, fmt.Errorf("failed to marshal allowed components: %w", err)
	}

	now := time.Now()
	return statusRecord{
		ID:                uuid.New(),
		OrgID:             orgID,
		Key:               def.Key,
		Label:             def.Label,
		DisplayOrder:      def.DisplayOrder,
		IsActive:          def.IsActive,
		Fixed:             def.Fixed,
		SLAConfig:         datatypes.JSON(slaJSON),
		VisualConfig:      datatypes.JSON(visualJSON),
		AllowedComponents: datatypes.JSON(componentsJSON),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

