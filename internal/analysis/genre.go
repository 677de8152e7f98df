package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

const (
	genreMethod       = "genre-based-clustering"
	genreSimpleMethod = "simplified-genre-clustering"
)

// PrimaryArtistIDs returns the distinct primary artist ids of the playlist in order.
func (p Playlist) PrimaryArtistIDs() []string {
	order, _ := groupBy(p.Tracks, func(t TrackInput) (string, bool) {
		id := t.PrimaryArtistID()
		return id, id != ""
	})
	return order
}

func (a *Analyzer) singleGenreGroup(p Playlist, name, note string, tags []string) *models.InsightSet {
	return &models.InsightSet{
		Clusters: []models.InsightCluster{{
			ID:         1,
			Name:       name,
			Tracks:     a.sample(p.Tracks),
			TrackCount: len(p.Tracks),
			GenreTags:  tags,
		}},
		Method:      genreSimpleMethod,
		TotalTracks: len(p.Tracks),
		Note:        note,
	}
}

// Genre clusters primary artists on their genre sets and groups tracks by their artist's cluster.
//
// genres maps artist ids to genres as returned by the lookup; artists absent from it are
// unknown to the catalogue.
func (a *Analyzer) Genre(p Playlist, genres map[string][]string) *models.InsightSet {
	_, byArtist := groupBy(p.Tracks, func(t TrackInput) (string, bool) {
		id := t.PrimaryArtistID()
		return id, id != ""
	})

	var known []string
	for _, id := range p.PrimaryArtistIDs() {
		if _, ok := genres[id]; ok {
			known = append(known, id)
		}
	}
	if len(known) < 3 {
		return a.singleGenreGroup(p, "Main Genre Group", "Limited genre data available", []string{"unknown"})
	}

	vocabSet := make(map[string]bool)
	var vocab []string
	for _, id := range known {
		for _, g := range genres[id] {
			if !vocabSet[g] {
				vocabSet[g] = true
				vocab = append(vocab, g)
			}
		}
	}
	if len(vocab) == 0 {
		return a.singleGenreGroup(p, "All Tracks", "No genre data available", []string{"unknown"})
	}

	var obs clusters.Observations
	var withGenres []string
	for _, id := range known {
		if len(genres[id]) == 0 {
			continue
		}
		v := make(clusters.Coordinates, len(vocab))
		for i, g := range vocab {
			if contains(genres[id], g) {
				v[i] = 1
			}
		}
		obs = append(obs, observation{idx: len(withGenres), coords: v})
		withGenres = append(withGenres, id)
	}

	k := max(min(a.cfg.MaxGenreClusters, len(withGenres)), 2)
	result, err := kmeans.New().Partition(obs, k)
	if err != nil {
		a.logger.Warn("genre clustering failed", "playlist", p.ID, "err", err)
		return a.singleGenreGroup(p, "All Tracks", "Clustering failed, using simple grouping", vocab[:min(5, len(vocab))])
	}

	type genreGroup struct {
		tracks  []TrackInput
		artists []string
		tags    []string
	}

	var groups []genreGroup
	for _, c := range result {
		var g genreGroup
		var members []TrackInput
		for _, o := range c.Observations {
			to, ok := o.(observation)
			if !ok {
				continue
			}
			id := withGenres[to.idx]
			artistTracks := byArtist[id]
			g.tracks = append(g.tracks, artistTracks...)
			if len(artistTracks) > 0 {
				g.artists = append(g.artists, artistTracks[0].PrimaryArtist)
				members = append(members, artistTracks[0])
			}
		}
		if len(g.tracks) == 0 {
			continue
		}
		g.tags = topGenres(members, genres, 5)
		groups = append(groups, g)
	}

	sort.SliceStable(groups, func(i, j int) bool { return len(groups[i].tracks) > len(groups[j].tracks) })

	out := make([]models.InsightCluster, len(groups))
	for i, g := range groups {
		name := strings.Join(g.artists[:min(2, len(g.artists))], ", ") + " & Similar"
		if len(g.tags) > 0 {
			name = shared.TitleCase(g.tags[0]) + " Tracks"
		}

		out[i] = models.InsightCluster{
			ID:          i + 1,
			Name:        fmt.Sprintf("Cluster %d: %s", i+1, name),
			Tracks:      a.sample(g.tracks),
			TrackCount:  len(g.tracks),
			GenreTags:   g.tags,
			Artists:     g.artists[:min(5, len(g.artists))],
			ArtistCount: len(g.artists),
		}
	}

	return &models.InsightSet{
		Clusters:     out,
		Method:       genreMethod,
		TotalTracks:  len(p.Tracks),
		UniqueGenres: len(vocab),
	}
}
