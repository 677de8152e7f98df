package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

// Profile prints the Spotify profile of the logged in user.
func (r *Runner) Profile(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSession(); err != nil {
		return err
	}

	var profile models.UserProfile
	if err := r.api.GetJSON(ctx, "/user/profile", &profile); err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(profile, true)
	}

	r.writeHeader(profile.DisplayName)
	r.writePlain("ID:      %s\n", profile.ID)
	if profile.Email != "" {
		r.writePlain("Email:   %s\n", profile.Email)
	}
	if profile.Country != "" {
		r.writePlain("Country: %s\n", profile.Country)
	}
	if profile.Product != "" {
		r.writePlain("Product: %s\n", shared.TitleCase(profile.Product))
	}
	return nil
}

// Playlists lists the playlists of the logged in user with an optional limit.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSession(); err != nil {
		return err
	}

	var resp models.ListResponse[models.PlaylistSummary]
	if err := r.api.GetJSON(ctx, "/user/playlists", &resp); err != nil {
		return fmt.Errorf("failed to fetch playlists: %w", err)
	}

	playlists := resp.Items
	if limit := cmd.Int("limit"); limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}

	r.writePlain("Found %d playlists:\n\n", resp.Total)
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", shared.Truncate(p.Description, 80))
		}
		r.writePlain("\n")
	}
	return nil
}
