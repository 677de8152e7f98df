package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunescope/internal/shared"
)

// SetupDatabase initializes the backend and client databases and runs migrations.
//
// With --status it lists the migrations of the backend database instead; with --rollback
// it rolls back the backend database's most recent migration.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.config

	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.writeSuccess("Config file created at %s", r.configPath)
		}
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	switch {
	case cmd.Bool("status"):
		return r.writeMigrationStatus(db, config.Database.Path)
	case cmd.Bool("rollback"):
		if err := shared.RollbackMigration(db); err != nil {
			return fmt.Errorf("failed to roll back: %w", err)
		}
		return r.writeSuccess("Rolled back the latest migration of %s", config.Database.Path)
	}

	for _, path := range []string{config.Database.Path, config.Database.ClientPath} {
		if path == "" {
			continue
		}
		r.logger.Info("running database migrations", "path", path)
		if err := migrate(db, path, config.Database.Path); err != nil {
			return err
		}
		r.writeSuccess("Database ready: %s", path)
	}
	return nil
}

// migrate runs migrations on path, reusing db when path is the already open backend database.
func migrate(db *sql.DB, path, backendPath string) error {
	if path != backendPath {
		other, err := shared.NewDatabase(path)
		if err != nil {
			return fmt.Errorf("failed to create database %s: %w", path, err)
		}
		defer other.Close()
		db = other
	}

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations on %s: %w", path, err)
	}
	return nil
}

func (r *Runner) writeMigrationStatus(db *sql.DB, path string) error {
	states, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}

	r.writeHeader("Migrations: " + path)
	for _, s := range states {
		mark := " "
		if s.Applied {
			mark = "✓"
		}
		r.writePlain("  [%s] %04d %s\n", mark, s.Version, s.Name)
	}
	return nil
}

// SetupConfig writes the embedded config template, or with --force the current settings.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("force") {
		if err := shared.SaveConfig(r.configPath, r.config); err != nil {
			return err
		}
		return r.writeSuccess("Config saved to %s", r.configPath)
	}

	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return fmt.Errorf("%w: %v (use --force to overwrite)", shared.ErrInvalidArgument, err)
	}
	r.writeSuccess("Config file created at %s", r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret (or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET)\n")
	r.writePlain("2. Set auth.jwt_secret (or JWT_SECRET_KEY)\n")
	r.writePlain("3. Run 'tunescope setup database' then 'tunescope serve'\n")
	return nil
}
