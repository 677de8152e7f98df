package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/tunescope/internal/models"
)

// Advanced produces the full analysis: the simple partition as base plus the ML, genre,
// temporal and artist insights.
//
// The base analysis is required and its error is returned. The insights run concurrently and
// a failure in one is recorded inside it without affecting the others, except ML, which is
// left out and reported through EnhancedML. Genres are looked up once and shared by the ML
// and genre insights.
func (a *Analyzer) Advanced(ctx context.Context, p Playlist, lookup GenreLookup) (models.AnalysisResult, error) {
	base, err := a.Simple(p)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	artistGenres := sync.OnceValues(func() (map[string][]string, error) {
		if lookup == nil {
			return nil, nil
		}
		return lookup.ArtistGenres(ctx, p.PrimaryArtistIDs())
	})

	var insights models.SpecializedInsights
	var g errgroup.Group

	g.Go(func() error {
		genres, err := artistGenres()
		if err != nil {
			a.logger.Warn("genre lookup failed, clustering without genres", "playlist", p.ID, "err", err)
			genres = nil
		}
		if set := a.guard("ml", func() (*models.InsightSet, error) { return a.ML(p, genres) }); !set.Failed() {
			insights.MLClusters = set
		}
		return nil
	})

	g.Go(func() error {
		insights.GenreClusters = a.guard("genre", func() (*models.InsightSet, error) {
			genres, err := artistGenres()
			if err != nil {
				return nil, fmt.Errorf("artist genre lookup: %w", err)
			}
			return a.Genre(p, genres), nil
		})
		return nil
	})

	g.Go(func() error {
		insights.TemporalClusters = a.guard("temporal", func() (*models.InsightSet, error) { return a.Temporal(p), nil })
		return nil
	})

	g.Go(func() error {
		insights.ArtistClusters = a.guard("artist", func() (*models.InsightSet, error) { return a.Artists(p), nil })
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.AnalysisResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.AnalysisResult{}, err
	}

	return models.AnalysisResult{
		BaseAnalysis:        base,
		SpecializedInsights: insights,
		PlaylistID:          p.ID,
		Timestamp:           a.now().UTC().Format(time.RFC3339),
		EnhancedML:          insights.MLClusters != nil,
	}, nil
}

// guard runs one insight, turning an error or panic into a failed insight.
func (a *Analyzer) guard(name string, fn func() (*models.InsightSet, error)) (set *models.InsightSet) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("insight panicked", "insight", name, "panic", r)
			set = models.FailedInsight(fmt.Errorf("%s insight: %v", name, r))
		}
	}()

	set, err := fn()
	if err != nil {
		a.logger.Warn("insight failed", "insight", name, "err", err)
		return models.FailedInsight(err)
	}
	return set
}
