// Package file reads the upstream order catalog from a JSON export on disk.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/dukex/prodflow/pkg/models"
)

// Decoder validates one raw order record.
type Decoder interface {
	Decode(payload []byte) (models.OrderData, error)
}

// Catalog serves a JSON array of order records. The file is read on every
// call so an export replaced between reconciliation runs is picked up.
type Catalog struct {
	path    string
	decoder Decoder
}

func NewCatalog(path string, decoder Decoder) *Catalog {
	return &Catalog{path: strings.TrimPrefix(path, "file://"), decoder: decoder}
}

func (c *Catalog) OrderIDs(ctx context.Context) ([]string, error) {
	records, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.id)
	}

	slices.Sort(ids)

	return slices.Compact(ids), nil
}

func (c *Catalog) Order(ctx context.Context, orderID string) (*models.OrderData, error) {
	records, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.id != orderID {
			continue
		}

		data, err := c.decoder.Decode(record.raw)
		if err != nil {
			return nil, err
		}

		return &data, nil
	}

	return nil, fmt.Errorf("order %s is not in catalog %s", orderID, c.path)
}

type rawRecord struct {
	id  string
	raw json.RawMessage
}

func (c *Catalog) load(ctx context.Context) ([]rawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(content, &raws); err != nil {
		return nil, fmt.Errorf("catalog %s is not a JSON array: %w", c.path, err)
	}

	records := make([]rawRecord, 0, len(raws))

	for i, raw := range raws {
		var head struct {
			OrderID string `json:"order_id"`
		}

		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("catalog record %d: %w", i, err)
		}

		id := strings.TrimSpace(head.OrderID)
		if id == "" {
			return nil, fmt.Errorf("catalog record %d has no order_id", i)
		}

		records = append(records, rawRecord{id: id, raw: raw})
	}

	return records, nil
}
