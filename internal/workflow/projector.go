package workflow

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BoardFilters narrows the projection. Empty values filter nothing.
type BoardFilters struct {
	// Components keeps only work-items of the selected components.
	Components []string `json:"components,omitempty"`
	// Search keeps only orders whose number contains the substring
	// (case-insensitive).
	Search string `json:"search,omitempty"`
}

// BoardCard is one rendered card: an order's work-items in one column. In a
// split column the card carries exactly one work-item and its Component is
// set; otherwise the card bundles all of the order's items in that status.
type BoardCard struct {
	Order     OrderSummary `json:"order"`
	Component string       `json:"component,omitempty"`
	Items     []WorkItem   `json:"items"`
}

// BoardColumn is one status column with its config snapshot, so the renderer
// sees exactly the rules the projection applied.
type BoardColumn struct {
	Status StatusDefinition `json:"status"`
	Cards  []BoardCard      `json:"cards"`
}

// Board maps the open work-item set into display columns.
type Board struct {
	Columns []BoardColumn `json:"columns"`
}

// ProjectBoard groups open work-items into status columns. It is a pure
// function of its inputs and is recomputed fully on every read; the open set
// per organization is small enough that nothing incremental is needed.
//
// An empty column, or an order whose items are all filtered out, is a normal
// empty state, not an error.
func ProjectBoard(orders []OrderSummary, items []WorkItem, statuses []StatusDefinition, filters BoardFilters) Board {
	ordersByID := make(map[uuid.UUID]OrderSummary, len(orders))
	for _, o := range orders {
		ordersByID[o.ID] = o
	}

	// Arena-style index: items carry an order FK, the order->items index is
	// built on demand here rather than embedded in the models.
	itemsByOrder := make(map[uuid.UUID][]WorkItem)
	for _, it := range items {
		itemsByOrder[it.OrderID] = append(itemsByOrder[it.OrderID], it)
	}

	search := strings.ToLower(strings.TrimSpace(filters.Search))
	selected := make(map[string]bool, len(filters.Components))
	for _, c := range filters.Components {
		selected[c] = true
	}

	board := Board{}
	for _, status := range statuses {
		if !status.IsActive {
			continue
		}
		column := BoardColumn{Status: status}

		for _, order := range orders {
			if search != "" && !strings.Contains(strings.ToLower(order.Number), search) {
				continue
			}
			orderItems := itemsByOrder[order.ID]
			if len(orderItems) == 0 {
				continue
			}

			var visible []WorkItem
			for _, it := range orderItems {
				if it.Status != status.Key {
					continue
				}
				if !status.AllowsComponent(it.Component) {
					continue
				}
				if len(selected) > 0 && !selected[it.Component] {
					continue
				}
				visible = append(visible, it)
			}
			if len(visible) == 0 {
				continue
			}

			if status.Visual.AllowComponentSplit {
				for _, it := range visible {
					column.Cards = append(column.Cards, BoardCard{
						Order:     order,
						Component: it.Component,
						Items:     []WorkItem{it},
					})
				}
			} else {
				column.Cards = append(column.Cards, BoardCard{
					Order: order,
					Items: visible,
				})
			}
		}

		sortCards(column.Cards)
		board.Columns = append(board.Columns, column)
	}
	return board
}

// sortCards orders cards by most recent activity, newest first.
func sortCards(cards []BoardCard) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cardActivity(cards[i]).After(cardActivity(cards[j]))
	})
}

func cardActivity(card BoardCard) time.Time {
	var latest time.Time
	for _, it := range card.Items {
		if t := it.LastActivity(); t.After(latest) {
			latest = t
		}
	}
	return latest
}
