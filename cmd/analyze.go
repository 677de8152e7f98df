package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunescope/internal/formatter"
	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

// Analyze fetches the analysis of a playlist and renders it.
//
// Without --output the result is printed. With --output, markdown writes a directory with
// README.md and the cover image, csv writes the clusters/tracks/metadata file set and the
// other formats write a single file.
func (r *Runner) Analyze(ctx context.Context, cmd *cli.Command) error {
	playlistID := cmd.StringArg("playlist")
	if playlistID == "" {
		return fmt.Errorf("%w: playlist ID", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	if err := r.requireSession(); err != nil {
		return err
	}

	r.logger.Info("analyzing playlist", "playlist", playlistID)
	a, err := r.fetcher.Fetch(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("failed to analyze playlist: %w", err)
	}

	if a.Tier == models.TierFallback {
		r.writeWarning("Advanced analysis unavailable, showing simple analysis")
	}

	output := cmd.String("output")
	if output == "" {
		data, err := formatter.Render(a, format)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	}

	switch format {
	case formatter.FormatMarkdown:
		warn := func(err error) { r.writeWarning("Cover image skipped: %v", err) }
		result, err := formatter.WriteMarkdownExport(ctx, a, output, formatter.CoverImageURL(a), warn)
		if err != nil {
			return err
		}
		r.writeSuccess("Exported to %s/", result.Directory)
		for _, f := range result.Files {
			r.writePlain("  %s\n", f)
		}
	case formatter.FormatCSV:
		result, err := formatter.WriteCSVExport(a, output)
		if err != nil {
			return err
		}
		r.writeSuccess("Exported analysis")
		r.writePlain("  %s\n  %s\n  %s\n", result.ClustersFile, result.TracksFile, result.MetadataFile)
	default:
		path, err := formatter.WriteFile(a, format, output)
		if err != nil {
			return err
		}
		r.writeSuccess("Exported to %s", path)
	}
	return nil
}
