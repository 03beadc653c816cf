package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// StatusRefCounter reports how many open work-items currently reference a
// status key. Satisfied by the work-item repository.
type StatusRefCounter interface {
	CountOpenByStatus(ctx context.Context, orgID uuid.UUID, statusKey string) (int, error)
}

// StatusConfigStore holds one organization's status definitions. It is
// read-mostly: List/Get serve from a cached snapshot which is invalidated on
// every admin write, so the transition validator always sees the live rules.
type StatusConfigStore struct {
	orgID uuid.UUID
	repo  StatusConfigRepository
	refs  StatusRefCounter

	mu     sync.RWMutex
	cached []StatusDefinition
}

// NewStatusConfigStore creates a store for one organization.
func NewStatusConfigStore(orgID uuid.UUID, repo StatusConfigRepository, refs StatusRefCounter) *StatusConfigStore {
	return &StatusConfigStore{orgID: orgID, repo: repo, refs: refs}
}

// List returns the organization's statuses in board display order: the entry
// status first, the delivery status last, everything else sorted by
// DisplayOrder. The fixed statuses' positions never derive from their stored
// order values.
func (s *StatusConfigStore) List(ctx context.Context) ([]StatusDefinition, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	defs, err := s.repo.List(ctx, s.orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status definitions: %w", err)
	}
	SortStatuses(defs)

	s.mu.Lock()
	s.cached = defs
	s.mu.Unlock()
	return defs, nil
}

// Get returns a single status definition by key.
func (s *StatusConfigStore) Get(ctx context.Context, key string) (*StatusDefinition, error) {
	defs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range defs {
		if defs[i].Key == key {
			return &defs[i], nil
		}
	}
	return nil, &NotFoundError{Kind: "status", ID: key}
}

// Upsert creates or updates a status definition. SLA config is validated and
// normalized here, at the boundary, so nothing downstream re-checks it.
// Fixed statuses keep their Fixed flag and stay active; trying to deactivate
// one is rejected.
func (s *StatusConfigStore) Upsert(ctx context.Context, def StatusDefinition) error {
	if def.Key == "" {
		return fmt.Errorf("status key is required")
	}
	if err := normalizeSLAConfig(&def.SLA); err != nil {
		return fmt.Errorf("invalid sla config for status %q: %w", def.Key, err)
	}

	if def.Key == StatusKeyEntry || def.Key == StatusKeyDelivered {
		if !def.IsActive {
			return &ReservedStatusError{Key: def.Key}
		}
		def.Fixed = true
	} else {
		def.Fixed = false
	}

	if err := s.repo.Upsert(ctx, s.orgID, def); err != nil {
		return fmt.Errorf("failed to upsert status %q: %w", def.Key, err)
	}
	s.Invalidate()
	return nil
}

// Delete removes a non-fixed status. It fails with ReservedStatusError for
// the entry/delivery statuses and with StatusInUseError when any open
// work-item still sits in the column.
func (s *StatusConfigStore) Delete(ctx context.Context, key string) error {
	if key == StatusKeyEntry || key == StatusKeyDelivered {
		return &ReservedStatusError{Key: key}
	}
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}

	count, err := s.refs.CountOpenByStatus(ctx, s.orgID, key)
	if err != nil {
		return fmt.Errorf("failed to count work-items in status %q: %w", key, err)
	}
	if count > 0 {
		return &StatusInUseError{Key: key, OpenItems: count}
	}

	if err := s.repo.Delete(ctx, s.orgID, key); err != nil {
		return fmt.Errorf("failed to delete status %q: %w", key, err)
	}
	s.Invalidate()
	return nil
}

// Invalidate drops the cached snapshot. Called after every admin write.
func (s *StatusConfigStore) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// NextByDisplayOrder returns the active status that follows the given key in
// board order, used by auto-advance after completing a stage.
func (s *StatusConfigStore) NextByDisplayOrder(ctx context.Context, key string) (*StatusDefinition, error) {
	defs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range defs {
		if defs[i].Key != key {
			continue
		}
		for j := i + 1; j < len(defs); j++ {
			if defs[j].IsActive {
				return &defs[j], nil
			}
		}
		return nil, nil
	}
	return nil, &NotFoundError{Kind: "status", ID: key}
}

// SortStatuses orders definitions for board display in place: entry first,
// delivery last, the rest by DisplayOrder (key as tie-break).
func SortStatuses(defs []StatusDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		a, b := defs[i], defs[j]
		ra, rb := statusRank(a), statusRank(b)
		if ra != rb {
			return ra < rb
		}
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.Key < b.Key
	})
}

func statusRank(d StatusDefinition) int {
	switch d.Key {
	case StatusKeyEntry:
		return 0
	case StatusKeyDelivered:
		return 2
	default:
		return 1
	}
}

func normalizeSLAConfig(cfg *SLAConfig) error {
	if cfg.WarningThresholdPercent == 0 {
		cfg.WarningThresholdPercent = DefaultWarningThresholdPercent
	}
	if cfg.WarningThresholdPercent < 1 || cfg.WarningThresholdPercent > 100 {
		return fmt.Errorf("warning threshold must be between 1 and 100, got %d", cfg.WarningThresholdPercent)
	}
	if cfg.MaxHours != nil && *cfg.MaxHours <= 0 {
		return fmt.Errorf("max hours must be positive, got %v", *cfg.MaxHours)
	}
	return nil
}
