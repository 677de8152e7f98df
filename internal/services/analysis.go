package services

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

// AnalysisFetcher retrieves playlist analyses, preferring the advanced endpoint and
// degrading to the simple one on any failure.
//
// It keeps no cache; every call goes to the network.
type AnalysisFetcher struct {
	api    *APIService
	logger *log.Logger
}

// NewAnalysisFetcher creates a fetcher on top of an authenticated client.
func NewAnalysisFetcher(api *APIService, logger *log.Logger) *AnalysisFetcher {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &AnalysisFetcher{api: api, logger: logger}
}

// AdvancedPath is the backend route of the advanced analysis.
func AdvancedPath(playlistID string) string {
	return "/stats/advanced-playlist-analysis/" + url.PathEscape(playlistID)
}

// SimplePath is the backend route of the simple analysis.
func SimplePath(playlistID string) string {
	return "/stats/simple-playlist-analysis/" + url.PathEscape(playlistID)
}

// Fetch returns the analysis of a playlist tagged with the tier that produced it.
//
// Each tier is attempted once. An advanced result with no clusters is still a success.
// The advanced call is cancelled before the fallback starts, so at most one result is ever used.
// An error from the simple tier is returned unchanged.
func (f *AnalysisFetcher) Fetch(ctx context.Context, playlistID string) (models.Analysis, error) {
	if playlistID == "" {
		return models.Analysis{}, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	advCtx, cancel := context.WithCancel(ctx)
	var advanced models.AnalysisResult
	err := f.api.GetJSON(advCtx, AdvancedPath(playlistID), &advanced)
	cancel()

	if err == nil {
		f.logger.Debug("advanced analysis", "playlist", playlistID, "clusters", len(advanced.BaseAnalysis.Clusters))
		return models.NewAdvancedAnalysis(advanced), nil
	}

	f.logger.Warn("advanced analysis failed, falling back to simple analysis", "playlist", playlistID, "err", err)

	var base models.ClusterSet
	if err := f.api.GetJSON(ctx, SimplePath(playlistID), &base); err != nil {
		return models.Analysis{}, err
	}

	fallback := models.NewFallbackAnalysis(base)
	fallback.Result.PlaylistID = playlistID
	return fallback, nil
}
