package analysis

import (
	"sort"

	"github.com/desertthunder/tunescope/internal/models"
)

const maxArtistClusters = 5

type artistEntry struct {
	name          string
	tracks        []TrackInput
	collaborators []string
	seen          map[string]bool
}

// Artists groups tracks under every credited artist with at least two tracks, keeping the top five.
func (a *Analyzer) Artists(p Playlist) *models.InsightSet {
	var order []string
	entries := make(map[string]*artistEntry)

	for _, t := range p.Tracks {
		for _, name := range t.Artists {
			e, ok := entries[name]
			if !ok {
				e = &artistEntry{name: name, seen: make(map[string]bool)}
				entries[name] = e
				order = append(order, name)
			}
			e.tracks = append(e.tracks, t)

			for _, other := range t.Artists {
				if other != name && !e.seen[other] {
					e.seen[other] = true
					e.collaborators = append(e.collaborators, other)
				}
			}
		}
	}

	var significant []*artistEntry
	for _, name := range order {
		if e := entries[name]; len(e.tracks) >= 2 {
			significant = append(significant, e)
		}
	}

	if len(significant) == 0 {
		return &models.InsightSet{
			Clusters: []models.InsightCluster{{
				ID:         1,
				Name:       "Various Artists",
				Tracks:     a.sample(p.Tracks),
				TrackCount: len(p.Tracks),
				Artists:    order[:min(5, len(order))],
			}},
			Method:      "simplified-artist-analysis",
			TotalTracks: len(p.Tracks),
			Note:        "No dominant artists found",
		}
	}

	sort.SliceStable(significant, func(i, j int) bool { return len(significant[i].tracks) > len(significant[j].tracks) })

	top := significant[:min(maxArtistClusters, len(significant))]
	out := make([]models.InsightCluster, len(top))
	for i, e := range top {
		out[i] = models.InsightCluster{
			ID:                i + 1,
			Name:              e.name + "'s Tracks",
			Tracks:            a.sample(e.tracks),
			TrackCount:        len(e.tracks),
			ArtistName:        e.name,
			Collaborators:     e.collaborators[:min(5, len(e.collaborators))],
			CollaboratorCount: len(e.collaborators),
		}
	}

	return &models.InsightSet{
		Clusters:      out,
		Method:        "artist-based-clustering",
		TotalTracks:   len(p.Tracks),
		UniqueArtists: len(order),
		MostProlific:  significant[0].name,
	}
}
