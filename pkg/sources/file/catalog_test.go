package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/prodflow/pkg/intake"
	"github.com/dukex/prodflow/pkg/sources/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func newValidator(t *testing.T) *intake.Validator {
	t.Helper()

	v, err := intake.NewValidator()
	require.NoError(t, err)

	return v
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, `[
		{"order_id": "AB002", "customer": "Acme", "product": "Stock", "quantity": 1, "priority_score": 5},
		{"order_id": "AB001", "customer": " Beta ", "product": "Stock", "quantity": 2, "priority_score": 9, "due_date": "2025-07-20"},
		{"order_id": "AB003", "customer": "Acme"}
	]`)

	catalog := file.NewCatalog("file://"+path, newValidator(t))

	ids, err := catalog.OrderIDs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"AB001", "AB002", "AB003"}, ids)

	order, err := catalog.Order(t.Context(), "AB001")
	require.NoError(t, err)
	assert.Equal(t, "Beta", order.Customer)
	require.NotNil(t, order.DueDate)
	assert.Equal(t, "2025-07-20", order.DueDate.String())

	_, err = catalog.Order(t.Context(), "AB003")
	assert.True(t, intake.IsValidation(err))

	_, err = catalog.Order(t.Context(), "AB404")
	assert.Error(t, err)
}

func TestCatalog_BadFiles(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not an array":   `{"order_id": "AB001"}`,
		"missing id":     `[{"customer": "Acme"}]`,
		"malformed json": `[{"order_id": }]`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := file.NewCatalog(writeCatalog(t, content), newValidator(t)).OrderIDs(t.Context())
			assert.Error(t, err)
		})
	}

	_, err := file.NewCatalog(filepath.Join(t.TempDir(), "missing.json"), newValidator(t)).OrderIDs(t.Context())
	assert.Error(t, err)
}
