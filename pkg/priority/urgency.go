package priority

import (
	"slices"
	"strings"

	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/periodclock"
)

const (
	criticalWithinDays = 2
	highWithinDays     = 5
	mediumWithinDays   = 10
)

// Stock model values that mean the order cannot be built without more detail.
var placeholderStockModels = []string{"", "none", "unprocessed", "universal"}

// Classify buckets an order by how close its due date is to asOf.
// The result is advisory and never feeds into Compare.
func Classify(o *models.ProductionOrder, asOf periodclock.Date) models.Urgency {
	if o.DueDate == nil {
		return models.UrgencyLow
	}

	days := asOf.DaysUntil(*o.DueDate)

	switch {
	case days <= criticalWithinDays:
		return models.UrgencyCritical
	case days <= highWithinDays:
		return models.UrgencyHigh
	case days <= mediumWithinDays:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

// NeedsInformation reports whether the order's stock model is missing or a placeholder.
func NeedsInformation(o *models.ProductionOrder) bool {
	return slices.Contains(placeholderStockModels, strings.ToLower(strings.TrimSpace(o.StockModel)))
}
