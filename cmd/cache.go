package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunescope/internal/repositories"
	"github.com/desertthunder/tunescope/internal/shared"
)

// CachePurge deletes cached advanced analyses older than the configured TTL from the
// backend database.
func (r *Runner) CachePurge(ctx context.Context, cmd *cli.Command) error {
	path := r.config.Database.Path
	db, err := shared.NewDatabase(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ttl := r.config.Analysis.CacheTTL()
	removed, err := repositories.NewAnalysisCacheRepository(db, ttl).Purge()
	if err != nil {
		return err
	}

	r.logger.Info("purged analysis cache", "path", path, "removed", removed, "ttl", ttl)
	return r.writeSuccess("Removed %d cached analyses older than %s", removed, ttl)
}
