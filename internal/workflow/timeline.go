package workflow

import (
	"sort"
	"time"
)

// StageDuration is the reconstructed dwell time of a work-item in one
// status, derived from consecutive history entries.
type StageDuration struct {
	Status    string        `json:"status"`
	EnteredAt time.Time     `json:"entered_at"`
	LeftAt    *time.Time    `json:"left_at,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// StageDurations reconstructs the per-stage timeline of a work-item from its
// history. The current stage runs from the last entry until the item's
// CompletedAt, or now when the stage is still open.
func StageDurations(entries []HistoryEntry, item WorkItem, now time.Time) []StageDuration {
	if len(entries) == 0 {
		entered := item.CreatedAt
		end := now
		if item.CompletedAt != nil {
			end = *item.CompletedAt
		}
		return []StageDuration{{
			Status:    item.Status,
			EnteredAt: entered,
			Duration:  end.Sub(entered),
		}}
	}

	sorted := make([]HistoryEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ChangedAt.Before(sorted[j].ChangedAt)
	})

	var stages []StageDuration

	// Time before the first recorded change belongs to the previous status
	// of that first entry, when one was recorded.
	first := sorted[0]
	if first.PreviousStatus != nil {
		stages = append(stages, StageDuration{
			Status:    *first.PreviousStatus,
			EnteredAt: item.CreatedAt,
			LeftAt:    &first.ChangedAt,
			Duration:  first.ChangedAt.Sub(item.CreatedAt),
		})
	}

	for i := range sorted {
		entered := sorted[i].ChangedAt
		if i+1 < len(sorted) {
			left := sorted[i+1].ChangedAt
			stages = append(stages, StageDuration{
				Status:    sorted[i].NewStatus,
				EnteredAt: entered,
				LeftAt:    &left,
				Duration:  left.Sub(entered),
			})
			continue
		}

		end := now
		if item.CompletedAt != nil {
			end = *item.CompletedAt
		}
		stages = append(stages, StageDuration{
			Status:    sorted[i].NewStatus,
			EnteredAt: entered,
			Duration:  end.Sub(entered),
		})
	}
	return stages
}
