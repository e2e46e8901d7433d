// Package file provides file-based persistence for production orders and their stage history.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/prodflow/pkg/models"
	"github.com/dukex/prodflow/pkg/persistence"
)

// orderRecord is the on-disk document of one order: its latest state and
// every transition it took.
type orderRecord struct {
	Order       *models.ProductionOrder  `json:"order"`
	Transitions []models.StageTransition `json:"transitions"`
	Reason      string                   `json:"reason,omitempty"`
}

// Persistence implements persistence.Persistence with one JSON document per
// order under <root>/orders.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a file persistence rooted at root, which may carry a
// file:// prefix.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.TrimPrefix(root, "file://")}
}

func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the orders directory can be created and written.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	dir := fp.ordersDir()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("orders directory unavailable: %w", err)
	}

	probe, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return fmt.Errorf("orders directory not writable: %w", err)
	}

	_ = probe.Close()

	return os.Remove(probe.Name())
}

// Apply writes the order's latest state and appends its transition in one
// atomic file replacement.
func (fp *Persistence) Apply(ctx context.Context, change models.OrderChange) error {
	if err := persistence.ValidateChange("apply", change); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	record, err := fp.read(change.Order.OrderID)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if record == nil {
		record = &orderRecord{}
	}

	record.Order = change.Order
	record.Reason = change.Reason

	if change.Transition != nil {
		record.Transitions = append(record.Transitions, *change.Transition)
	}

	return fp.write(record)
}

// ActiveOrders returns every order still in the pipeline, sorted by id.
func (fp *Persistence) ActiveOrders(ctx context.Context) ([]*models.ProductionOrder, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	files, err := fs.Glob(os.DirFS(fp.ordersDir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list order files: %w", err)
	}

	orders := make([]*models.ProductionOrder, 0, len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := fp.readFile(filepath.Join(fp.ordersDir(), file))
		if err != nil {
			return nil, err
		}

		if record.Order != nil && record.Order.State.Active() {
			orders = append(orders, record.Order)
		}
	}

	slices.SortFunc(orders, func(a, b *models.ProductionOrder) int {
		return strings.Compare(a.OrderID, b.OrderID)
	})

	return orders, nil
}

func (fp *Persistence) OrderByID(_ context.Context, orderID string) (*models.ProductionOrder, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	record, err := fp.read(orderID)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewOrderError("get_order", orderID, persistence.ErrOrderNotFound)
	}

	if err != nil {
		return nil, err
	}

	return record.Order, nil
}

func (fp *Persistence) Transitions(_ context.Context, orderID string) ([]models.StageTransition, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	record, err := fp.read(orderID)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.StageTransition{}, nil
	}

	if err != nil {
		return nil, err
	}

	if record.Transitions == nil {
		return []models.StageTransition{}, nil
	}

	return record.Transitions, nil
}

func (fp *Persistence) ordersDir() string {
	return filepath.Join(fp.root, "orders")
}

func (fp *Persistence) path(orderID string) string {
	return filepath.Join(fp.ordersDir(), url.PathEscape(orderID)+".json")
}

func (fp *Persistence) read(orderID string) (*orderRecord, error) {
	return fp.readFile(fp.path(orderID))
}

func (fp *Persistence) readFile(path string) (*orderRecord, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the escaped order id
	if err != nil {
		return nil, err
	}

	var record orderRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}

	return &record, nil
}

// write replaces the order file through a temp file and rename, so readers
// never observe a partial document.
func (fp *Persistence) write(record *orderRecord) error {
	if err := os.MkdirAll(fp.ordersDir(), 0o750); err != nil {
		return fmt.Errorf("failed to create orders directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode order %s: %w", record.Order.OrderID, err)
	}

	tmp, err := os.CreateTemp(fp.ordersDir(), ".order-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write order %s: %w", record.Order.OrderID, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return err
	}

	if err := os.Rename(tmp.Name(), fp.path(record.Order.OrderID)); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace order %s: %w", record.Order.OrderID, err)
	}

	return nil
}
