package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/prodflow/pkg/persistence"
	"github.com/dukex/prodflow/pkg/persistence/file"
	"github.com/dukex/prodflow/pkg/persistence/postgresql"
)

// NewPersistence picks the implementation from the URL scheme. A URL without a
// scheme is treated as a file directory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "file":
		p := file.NewPersistence(databaseURL)

		err := p.HealthCheck(ctx)
		if err != nil {
			return nil, fmt.Errorf("file persistence at %s is not usable: %w", databaseURL, err)
		}

		return p, nil
	default:
		return nil, fmt.Errorf("unsupported persistence URL: %s", databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
