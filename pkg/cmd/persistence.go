// Package cmd provides shared construction helpers for the service binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/strackan/playbook-engine/pkg/persistence"
	"github.com/strackan/playbook-engine/pkg/persistence/file"
	"github.com/strackan/playbook-engine/pkg/persistence/postgresql"
)

// NewPersistence builds the persistence layer from the database URL scheme.
// postgres:// selects PostgreSQL; anything else is treated as a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create PostgreSQL persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
