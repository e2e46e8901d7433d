// Package priority defines the total order used to rank orders inside a department queue.
package priority

import (
	"cmp"
	"slices"
	"strings"

	"github.com/dukex/prodflow/pkg/models"
)

// Compare orders a before b when a should be served first.
// Keys: priority score descending, due date ascending with missing dates last,
// enqueue time ascending, order id ascending. It returns 0 only for the same order id.
func Compare(a, b *models.ProductionOrder) int {
	if c := cmp.Compare(b.PriorityScore, a.PriorityScore); c != 0 {
		return c
	}

	switch {
	case a.DueDate != nil && b.DueDate == nil:
		return -1
	case a.DueDate == nil && b.DueDate != nil:
		return 1
	case a.DueDate != nil && b.DueDate != nil:
		if c := a.DueDate.Compare(*b.DueDate); c != 0 {
			return c
		}
	}

	if c := a.EnqueuedAt.Compare(b.EnqueuedAt); c != 0 {
		return c
	}

	return strings.Compare(a.OrderID, b.OrderID)
}

// Less reports whether a ranks strictly before b.
func Less(a, b *models.ProductionOrder) bool {
	return Compare(a, b) < 0
}

// Sort ranks orders in place.
func Sort(orders []*models.ProductionOrder) {
	slices.SortFunc(orders, Compare)
}

// IsSorted reports whether orders already follow the ranking.
func IsSorted(orders []*models.ProductionOrder) bool {
	return slices.IsSortedFunc(orders, Compare)
}

// SearchPosition returns the index at which o keeps a ranked slice ranked.
func SearchPosition(orders []*models.ProductionOrder, o *models.ProductionOrder) int {
	i, _ := slices.BinarySearchFunc(orders, o, Compare)

	return i
}
