package analysis

import (
	"fmt"
	"sort"

	"github.com/desertthunder/tunescope/internal/models"
)

// Temporal groups dated tracks by release decade. Decades with a single track are left out.
func (a *Analyzer) Temporal(p Playlist) *models.InsightSet {
	var dated []TrackInput
	byDecade := make(map[int][]TrackInput)
	earliest, latest := 0, 0

	for _, t := range p.Tracks {
		year, ok := t.Year()
		if !ok {
			continue
		}
		dated = append(dated, t)
		byDecade[decadeOf(year)] = append(byDecade[decadeOf(year)], t)
		if earliest == 0 || year < earliest {
			earliest = year
		}
		if year > latest {
			latest = year
		}
	}

	if len(dated) < 3 {
		return &models.InsightSet{
			Clusters: []models.InsightCluster{{
				ID:         1,
				Name:       "All Tracks",
				Tracks:     a.sample(p.Tracks),
				TrackCount: len(p.Tracks),
				TimePeriod: "Unknown",
			}},
			Method:      "simplified-temporal-analysis",
			TotalTracks: len(p.Tracks),
			Note:        "Insufficient release date data",
		}
	}

	decades := make([]int, 0, len(byDecade))
	for d := range byDecade {
		decades = append(decades, d)
	}
	sort.Ints(decades)

	var out []models.InsightCluster
	for _, d := range decades {
		tracks := byDecade[d]
		if len(tracks) < 2 {
			continue
		}
		out = append(out, models.InsightCluster{
			ID:         len(out) + 1,
			Name:       fmt.Sprintf("%ds Era", d),
			Tracks:     a.sample(tracks),
			TrackCount: len(tracks),
			Decade:     fmt.Sprintf("%ds", d),
			Percentage: round1(float64(len(tracks)) * 100 / float64(len(dated))),
			YearRange:  fmt.Sprintf("%d-%d", d, d+9),
		})
	}

	if len(out) == 0 {
		return &models.InsightSet{
			Clusters: []models.InsightCluster{{
				ID:         1,
				Name:       "Mixed Eras",
				Tracks:     a.sample(dated),
				TrackCount: len(dated),
				TimePeriod: fmt.Sprintf("%d-%d", earliest, latest),
			}},
			Method:      "simplified-temporal-analysis",
			TotalTracks: len(p.Tracks),
			Note:        "Could not create distinct era clusters",
		}
	}

	return &models.InsightSet{
		Clusters:        out,
		Method:          "temporal-clustering",
		TotalTracks:     len(p.Tracks),
		TracksWithDates: len(dated),
		EarliestYear:    earliest,
		LatestYear:      latest,
		Timeline:        &models.Timeline{Start: earliest, End: latest, Span: latest - earliest},
	}
}
