package priority_test

import (
	"testing"

	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/periodclock"
	"github.com/dukex/prodflow/pkg/priority"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	asOf := periodclock.MustParseDate("2025-07-10")

	tests := []struct {
		name     string
		dueDate  *periodclock.Date
		expected models.Urgency
	}{
		{"no due date", nil, models.UrgencyLow},
		{"overdue", due("2025-07-01"), models.UrgencyCritical},
		{"due in two days", due("2025-07-12"), models.UrgencyCritical},
		{"due in five days", due("2025-07-15"), models.UrgencyHigh},
		{"due in ten days", due("2025-07-20"), models.UrgencyMedium},
		{"due later", due("2025-08-20"), models.UrgencyLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o := &models.ProductionOrder{OrderID: "AA001", DueDate: tt.dueDate}
			assert.Equal(t, tt.expected, priority.Classify(o, asOf))
		})
	}
}

func TestNeedsInformation(t *testing.T) {
	t.Parallel()

	for _, model := range []string{"", "none", "Unprocessed", " universal "} {
		assert.True(t, priority.NeedsInformation(&models.ProductionOrder{StockModel: model}), "%q", model)
	}

	assert.False(t, priority.NeedsInformation(&models.ProductionOrder{StockModel: "cf_alpine_hunter"}))
}
