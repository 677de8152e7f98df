package analysis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

// SimpleSilhouette is the fixed quality score reported for heuristic partitions.
const SimpleSilhouette = 0.7

type theme struct {
	keyword string
	name    string
	style   Style
}

// First match wins.
var themes = []theme{
	{"chill", "Relaxing Tracks", StyleChill},
	{"relax", "Relaxing Tracks", StyleChill},
	{"study", "Focus Tracks", StyleFocus},
	{"focus", "Focus Tracks", StyleFocus},
	{"party", "Party Tracks", StyleParty},
	{"dance", "Dance Tracks", StyleDance},
	{"workout", "Workout Tracks", StyleWorkout},
	{"gym", "Workout Tracks", StyleWorkout},
	{"run", "Running Tracks", StyleWorkout},
	{"sleep", "Sleep Tracks", StyleSleep},
	{"mood", "Mood Boosters", StyleMood},
	{"happy", "Upbeat Tracks", StyleUpbeat},
	{"sad", "Melancholic Tracks", StyleMelancholic},
	{"rock", "Rock Tracks", StyleRock},
	{"pop", "Pop Tracks", StylePop},
	{"hip", "Hip Hop Tracks", StyleHipHop},
	{"rap", "Rap Tracks", StyleHipHop},
	{"country", "Country Tracks", StyleCountry},
	{"folk", "Folk Tracks", StyleFolk},
	{"indie", "Indie Tracks", StyleIndie},
}

func themeFor(text string) (string, Style) {
	for _, t := range themes {
		if strings.Contains(text, t.keyword) {
			return t.name, t.style
		}
	}
	return "Diverse Selection", StyleDiverse
}

type group struct {
	name   string
	style  Style
	tracks []TrackInput
}

// pool is the set of not yet claimed tracks, in playlist order.
type pool struct {
	tracks []TrackInput
}

func (p *pool) claim(keep func(TrackInput) bool) []TrackInput {
	var claimed, rest []TrackInput
	for _, t := range p.tracks {
		if keep(t) {
			claimed = append(claimed, t)
		} else {
			rest = append(rest, t)
		}
	}
	p.tracks = rest
	return claimed
}

// take removes the tracks at the given positions and returns them in that order.
func (p *pool) take(positions []int) []TrackInput {
	taken := make([]TrackInput, len(positions))
	drop := make(map[int]bool, len(positions))
	for i, pos := range positions {
		taken[i] = p.tracks[pos]
		drop[pos] = true
	}

	var rest []TrackInput
	for i, t := range p.tracks {
		if !drop[i] {
			rest = append(rest, t)
		}
	}
	p.tracks = rest
	return taken
}

// largest returns the biggest group with at least minSize tracks; ties go to the first seen.
func largest(order []string, groups map[string][]TrackInput, minSize int) (string, bool) {
	best, bestLen := "", 0
	for _, k := range order {
		if n := len(groups[k]); n >= minSize && n > bestLen {
			best, bestLen = k, n
		}
	}
	return best, bestLen > 0
}

// Simple partitions the playlist with heuristics. Every track lands in exactly one cluster.
//
// Tracks are claimed in priority order: the top two primary artists with at least two tracks,
// the largest album with at least three, the largest release decade with at least three,
// explicit tracks when at least three, the most popular tracks up to 30% of the playlist and
// the most recently added up to 20%. Whatever remains forms a themed cluster named after the
// playlist's keywords.
func (a *Analyzer) Simple(p Playlist) (models.ClusterSet, error) {
	n := len(p.Tracks)
	if n < minSimpleTracks {
		return models.ClusterSet{}, fmt.Errorf("%w: %d tracks", shared.ErrNotEnoughTracks, n)
	}

	remaining := &pool{tracks: append([]TrackInput(nil), p.Tracks...)}
	var groups []group

	order, byArtist := groupBy(remaining.tracks, func(t TrackInput) (string, bool) {
		return t.PrimaryArtist, t.PrimaryArtist != ""
	})
	sort.SliceStable(order, func(i, j int) bool { return len(byArtist[order[i]]) > len(byArtist[order[j]]) })
	for _, artist := range order[:min(2, len(order))] {
		if len(byArtist[artist]) < 2 {
			break
		}
		claimed := remaining.claim(func(t TrackInput) bool { return t.PrimaryArtist == artist })
		groups = append(groups, group{name: artist + "'s Tracks", style: StyleArtist, tracks: claimed})
	}

	order, byAlbum := groupBy(remaining.tracks, func(t TrackInput) (string, bool) {
		return t.Album, t.Album != ""
	})
	if album, ok := largest(order, byAlbum, 3); ok {
		claimed := remaining.claim(func(t TrackInput) bool { return t.Album == album })
		groups = append(groups, group{name: album + " Album", style: StyleAlbum, tracks: claimed})
	}

	order, byDecade := groupBy(remaining.tracks, func(t TrackInput) (string, bool) {
		year, ok := t.Year()
		return strconv.Itoa(decadeOf(year)), ok
	})
	if key, ok := largest(order, byDecade, 3); ok {
		decade, _ := strconv.Atoi(key)
		claimed := remaining.claim(func(t TrackInput) bool {
			year, ok := t.Year()
			return ok && decadeOf(year) == decade
		})
		groups = append(groups, group{name: key + "s Tracks", style: DecadeStyle(decade), tracks: claimed})
	}

	explicit := 0
	for _, t := range remaining.tracks {
		if t.Explicit {
			explicit++
		}
	}
	if explicit >= 3 {
		claimed := remaining.claim(func(t TrackInput) bool { return t.Explicit })
		groups = append(groups, group{name: "Explicit Tracks", style: StyleExplicit, tracks: claimed})
	}

	if quota := n * 3 / 10; quota > 0 && len(remaining.tracks) > 0 {
		pos := make([]int, len(remaining.tracks))
		for i := range pos {
			pos[i] = i
		}
		sort.SliceStable(pos, func(i, j int) bool {
			return remaining.tracks[pos[i]].Popularity > remaining.tracks[pos[j]].Popularity
		})

		popular := remaining.take(pos[:min(quota, len(pos))])
		groups = append(groups, group{name: "Popular Hits", style: StylePopular, tracks: popular})
	}

	if quota := n * 2 / 10; quota > 0 {
		var pos []int
		for i, t := range remaining.tracks {
			if _, ok := t.Added(); ok {
				pos = append(pos, i)
			}
		}
		if len(pos) > 0 {
			sort.SliceStable(pos, func(i, j int) bool {
				ai, _ := remaining.tracks[pos[i]].Added()
				aj, _ := remaining.tracks[pos[j]].Added()
				return ai.After(aj)
			})

			recent := remaining.take(pos[:min(quota, len(pos))])
			groups = append(groups, group{name: "Recently Added", style: StyleRecent, tracks: recent})
		}
	}

	text := p.text()
	name, style := themeFor(text)
	groups = append(groups, group{name: name, style: style, tracks: remaining.tracks})

	return a.clusterSet(groups, n, text), nil
}

// clusterSet drops empty groups, numbers the rest 1..n and assigns largest-remainder percentages.
func (a *Analyzer) clusterSet(groups []group, total int, text string) models.ClusterSet {
	var kept []group
	for _, g := range groups {
		if len(g.tracks) > 0 {
			kept = append(kept, g)
		}
	}

	counts := make([]int, len(kept))
	for i, g := range kept {
		counts[i] = len(g.tracks)
	}
	pcts := Percentages(counts, total)

	clusters := make([]models.Cluster, len(kept))
	for i, g := range kept {
		id := i + 1
		clusters[i] = models.Cluster{
			ID:           id,
			Name:         fmt.Sprintf("Cluster %d: %s", id, g.name),
			Count:        len(g.tracks),
			Percentage:   pcts[i],
			AudioProfile: Profile(g.style, text, trackIDs(g.tracks)),
			Tracks:       a.sample(g.tracks),
			TotalTracks:  len(g.tracks),
		}
	}

	return models.ClusterSet{
		Clusters:        clusters,
		TotalTracks:     total,
		AnalyzedTracks:  total,
		OptimalClusters: len(clusters),
		SilhouetteScore: SimpleSilhouette,
	}
}
