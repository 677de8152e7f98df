package models

import (
	"fmt"
	"math"
)

// Tier records which analysis endpoint produced a result.
type Tier string

const (
	TierAdvanced Tier = "advanced"
	TierFallback Tier = "fallback"
)

// AudioProfile is the synthesized feature profile of a cluster.
// Every dimension except Tempo lies in [0,1]; Tempo is in BPM.
type AudioProfile struct {
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Valence          float64 `json:"valence"`
	Speechiness      float64 `json:"speechiness"`
	Liveness         float64 `json:"liveness"`
	Tempo            float64 `json:"tempo"`
}

// TrackSample is the track shape carried inside analysis clusters.
type TrackSample struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Artists       []string `json:"artists"`
	PrimaryArtist string   `json:"primary_artist"`
	Album         string   `json:"album"`
	ImageURL      string   `json:"image_url,omitempty"`
	Popularity    int      `json:"popularity"`
	AddedAt       string   `json:"added_at,omitempty"`
	ReleaseDate   string   `json:"release_date,omitempty"`
	Explicit      bool     `json:"explicit"`
}

// Cluster is one group of a [ClusterSet].
type Cluster struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	Count        int           `json:"count"`
	Percentage   float64       `json:"percentage"`
	AudioProfile AudioProfile  `json:"audio_profile"`
	Tracks       []TrackSample `json:"tracks"`
	TotalTracks  int           `json:"total_tracks"`
}

// ClusterSet is the base analysis both tiers produce.
type ClusterSet struct {
	Clusters        []Cluster `json:"clusters"`
	TotalTracks     int       `json:"total_tracks"`
	AnalyzedTracks  int       `json:"analyzed_tracks"`
	OptimalClusters int       `json:"optimal_clusters"`
	SilhouetteScore float64   `json:"silhouette_score"`
}

// PercentageTolerance bounds how far cluster percentages may drift from 100.
const PercentageTolerance = 0.5

// Validate checks that percentages sum to 100 and that no cluster samples more tracks than it holds.
// An empty set is valid.
func (s ClusterSet) Validate() error {
	if len(s.Clusters) == 0 {
		return nil
	}

	var sum float64
	for _, c := range s.Clusters {
		if len(c.Tracks) > c.TotalTracks {
			return fmt.Errorf("cluster %d samples %d tracks but holds %d", c.ID, len(c.Tracks), c.TotalTracks)
		}
		sum += c.Percentage
	}

	if math.Abs(sum-100) > PercentageTolerance {
		return fmt.Errorf("cluster percentages sum to %.1f", sum)
	}
	return nil
}

// Timeline spans the release years covered by a temporal insight.
type Timeline struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Span  int `json:"span"`
}

// InsightCluster is a group inside one of the specialized insights.
// Only the fields relevant to the insight's method are populated.
type InsightCluster struct {
	ID                int           `json:"id"`
	Name              string        `json:"name"`
	Tracks            []TrackSample `json:"tracks"`
	TrackCount        int           `json:"track_count"`
	GenreTags         []string      `json:"genre_tags,omitempty"`
	Artists           []string      `json:"artists,omitempty"`
	ArtistCount       int           `json:"artist_count,omitempty"`
	Decade            string        `json:"decade,omitempty"`
	Percentage        float64       `json:"percentage,omitempty"`
	YearRange         string        `json:"year_range,omitempty"`
	TimePeriod        string        `json:"time_period,omitempty"`
	ArtistName        string        `json:"artist_name,omitempty"`
	Collaborators     []string      `json:"collaborators,omitempty"`
	CollaboratorCount int           `json:"collaborator_count,omitempty"`
	AudioProfile      *AudioProfile `json:"audio_profile,omitempty"`
}

// InsightSet is one specialized insight. Error is set when the insight could not be computed.
type InsightSet struct {
	Clusters        []InsightCluster `json:"clusters"`
	Method          string           `json:"method,omitempty"`
	TotalTracks     int              `json:"total_tracks"`
	Note            string           `json:"note,omitempty"`
	Error           string           `json:"error,omitempty"`
	UniqueGenres    int              `json:"unique_genres,omitempty"`
	TracksWithDates int              `json:"tracks_with_dates,omitempty"`
	EarliestYear    int              `json:"earliest_year,omitempty"`
	LatestYear      int              `json:"latest_year,omitempty"`
	Timeline        *Timeline        `json:"timeline,omitempty"`
	UniqueArtists   int              `json:"unique_artists,omitempty"`
	MostProlific    string           `json:"most_prolific,omitempty"`
	SilhouetteScore float64          `json:"silhouette_score,omitempty"`
	BalanceWarning  bool             `json:"balance_warning,omitempty"`
}

// FailedInsight records an insight that errored.
func FailedInsight(err error) *InsightSet {
	return &InsightSet{Clusters: []InsightCluster{}, Error: err.Error()}
}

// Failed reports whether the insight carries an error.
func (s *InsightSet) Failed() bool { return s != nil && s.Error != "" }

// SpecializedInsights groups the optional insights of an advanced analysis.
type SpecializedInsights struct {
	MLClusters       *InsightSet `json:"ml_clusters,omitempty"`
	GenreClusters    *InsightSet `json:"genre_clusters,omitempty"`
	TemporalClusters *InsightSet `json:"temporal_clusters,omitempty"`
	ArtistClusters   *InsightSet `json:"artist_clusters,omitempty"`
}

// Empty reports whether no insight is present.
func (s SpecializedInsights) Empty() bool {
	return s.MLClusters == nil && s.GenreClusters == nil && s.TemporalClusters == nil && s.ArtistClusters == nil
}

// AnalysisResult is the normalized analysis shape.
type AnalysisResult struct {
	BaseAnalysis        ClusterSet          `json:"base_analysis"`
	SpecializedInsights SpecializedInsights `json:"specialized_insights"`
	PlaylistID          string              `json:"playlist_id,omitempty"`
	Timestamp           string              `json:"timestamp,omitempty"`
	EnhancedML          bool                `json:"enhanced_ml,omitempty"`
}

// Analysis is a fetched result tagged with the tier that produced it.
type Analysis struct {
	Tier   Tier
	Result AnalysisResult
}

// NewAdvancedAnalysis tags an advanced-tier body as-is.
func NewAdvancedAnalysis(r AnalysisResult) Analysis {
	return Analysis{Tier: TierAdvanced, Result: r}
}

// NewFallbackAnalysis wraps a simple-tier cluster set as the base analysis with no insights.
func NewFallbackAnalysis(base ClusterSet) Analysis {
	return Analysis{
		Tier:   TierFallback,
		Result: AnalysisResult{BaseAnalysis: base, SpecializedInsights: SpecializedInsights{}},
	}
}

// Clusters returns the base clusters regardless of tier.
func (a Analysis) Clusters() []Cluster { return a.Result.BaseAnalysis.Clusters }

// IsFallback reports whether the simple tier produced the result.
func (a Analysis) IsFallback() bool { return a.Tier == TierFallback }
