package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunescope/internal/analysis"
	"github.com/desertthunder/tunescope/internal/auth"
	"github.com/desertthunder/tunescope/internal/repositories"
	"github.com/desertthunder/tunescope/internal/server"
	"github.com/desertthunder/tunescope/internal/services"
	"github.com/desertthunder/tunescope/internal/shared"
)

// Serve opens the backend database, runs pending migrations and serves the API until
// SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	if host := cmd.String("host"); host != "" {
		config.Server.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		config.Server.Port = port
	}

	if err := config.Validate(); err != nil {
		return err
	}

	if !cmd.Bool("no-banner") {
		figure.NewFigure("tunescope", "cybermedium", true).Print()
		fmt.Println()
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	spotify, err := services.NewSpotifyServiceFromConfig(config, shared.WithLogger(r.logger, "component", "spotify"))
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	app := server.New(server.App{
		Config:   config,
		Logger:   r.logger,
		Issuer:   auth.NewIssuerFromConfig(config.Auth),
		Spotify:  spotify,
		Users:    repositories.NewUserRepository(db),
		Tracks:   repositories.NewTrackRepository(db),
		History:  repositories.NewListeningHistoryRepository(db),
		Cache:    repositories.NewAnalysisCacheRepository(db, config.Analysis.CacheTTL()),
		Analyzer: analysis.NewAnalyzer(analysis.ConfigFrom(config.Analysis), shared.WithLogger(r.logger, "component", "analysis")),
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("starting backend", "addr", config.Server.Addr(), "database", config.Database.Path)
	return app.ListenAndServe(ctx)
}
