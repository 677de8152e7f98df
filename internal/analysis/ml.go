package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

const (
	mlMethod      = "kmeans-feature-clustering"
	maxMLGenres   = 8
	genreWeight   = 0.8
	explicitScale = 0.5
)

// observation adapts a track's feature vector to clusters.Observation.
type observation struct {
	idx    int
	coords clusters.Coordinates
}

func (o observation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o observation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// topGenres ranks genres by how many tracks' primary artists carry them.
func topGenres(tracks []TrackInput, genres map[string][]string, limit int) []string {
	counts := make(map[string]int)
	for _, t := range tracks {
		for _, g := range genres[t.PrimaryArtistID()] {
			counts[g]++
		}
	}

	ranked := make([]string, 0, len(counts))
	for g := range counts {
		ranked = append(ranked, g)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	return ranked[:min(limit, len(ranked))]
}

// features builds one vector per track: weighted genre one-hot, release decade,
// popularity, explicit flag and the primary artist's share of the playlist.
func features(tracks []TrackInput, genres map[string][]string, vocab []string) []clusters.Coordinates {
	artistCount := make(map[string]int)
	for _, t := range tracks {
		artistCount[t.PrimaryArtist]++
	}

	n := float64(len(tracks))
	out := make([]clusters.Coordinates, len(tracks))
	for i, t := range tracks {
		v := make(clusters.Coordinates, 0, len(vocab)+4)

		own := genres[t.PrimaryArtistID()]
		for _, g := range vocab {
			if contains(own, g) {
				v = append(v, genreWeight)
			} else {
				v = append(v, 0)
			}
		}

		era := 0.5
		if year, ok := t.Year(); ok {
			era = clamp01(float64(decadeOf(year)-1950) / 70)
		}
		explicit := 0.0
		if t.Explicit {
			explicit = explicitScale
		}

		v = append(v, era, float64(t.Popularity)/100, explicit, float64(artistCount[t.PrimaryArtist])/n)
		out[i] = v
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Silhouette returns the mean silhouette coefficient of a labelling, in [-1,1].
// Points alone in their cluster score 0.
func Silhouette(points []clusters.Coordinates, labels []int) float64 {
	if len(points) < 2 {
		return 0
	}

	members := make(map[int][]int)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}
	if len(members) < 2 {
		return 0
	}

	meanDist := func(i int, idx []int) float64 {
		var sum float64
		count := 0
		for _, j := range idx {
			if j == i {
				continue
			}
			sum += points[i].Distance(points[j])
			count++
		}
		if count == 0 {
			return 0
		}
		return sum / float64(count)
	}

	var total float64
	for i := range points {
		own := members[labels[i]]
		if len(own) == 1 {
			continue
		}

		a := meanDist(i, own)
		b := math.Inf(1)
		for l, idx := range members {
			if l != labels[i] {
				b = math.Min(b, meanDist(i, idx))
			}
		}

		if m := math.Max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(len(points))
}

type partition struct {
	k      int
	labels []int
	score  float64
}

// bestPartition runs k-means for every k in [2, maxK] and keeps the highest silhouette.
func bestPartition(points []clusters.Coordinates, maxK int) (partition, error) {
	var obs clusters.Observations
	for i, p := range points {
		obs = append(obs, observation{idx: i, coords: p})
	}

	best := partition{score: math.Inf(-1)}
	var lastErr error

	for k := 2; k <= maxK; k++ {
		result, err := kmeans.New().Partition(obs, k)
		if err != nil {
			lastErr = err
			continue
		}

		labels := make([]int, len(points))
		for label, c := range result {
			for _, o := range c.Observations {
				if to, ok := o.(observation); ok {
					labels[to.idx] = label
				}
			}
		}

		if score := Silhouette(points, labels); score > best.score {
			best = partition{k: k, labels: labels, score: score}
		}
	}

	if best.labels == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("no k in [2,%d]", maxK)
		}
		return partition{}, fmt.Errorf("%w: %w", shared.ErrClusteringFailed, lastErr)
	}
	return best, nil
}

// ML clusters tracks on metadata features with k-means, choosing k by silhouette score.
func (a *Analyzer) ML(p Playlist, genres map[string][]string) (*models.InsightSet, error) {
	n := len(p.Tracks)
	if n < MinMLTracks {
		return nil, fmt.Errorf("%w: ML analysis needs %d tracks, got %d", shared.ErrNotEnoughTracks, MinMLTracks, n)
	}

	vocab := topGenres(p.Tracks, genres, maxMLGenres)
	points := features(p.Tracks, genres, vocab)

	best, err := bestPartition(points, min(a.cfg.MaxMLClusters, n/2))
	if err != nil {
		return nil, err
	}

	byLabel := make(map[int][]TrackInput)
	for i, l := range best.labels {
		byLabel[l] = append(byLabel[l], p.Tracks[i])
	}

	groups := make([][]TrackInput, 0, len(byLabel))
	for l := range best.k {
		if len(byLabel[l]) > 0 {
			groups = append(groups, byLabel[l])
		}
	}
	sort.SliceStable(groups, func(i, j int) bool { return len(groups[i]) > len(groups[j]) })

	counts := make([]int, len(groups))
	for i, g := range groups {
		counts[i] = len(g)
	}
	pcts := Percentages(counts, n)

	text := p.text()
	used := make(map[string]int)
	out := make([]models.InsightCluster, len(groups))
	for i, g := range groups {
		name, style, tags := describe(g, genres)
		if used[name]++; used[name] > 1 {
			name = fmt.Sprintf("%s (Group %d)", name, used[name])
		}

		profile := Profile(style, text, trackIDs(g))
		out[i] = models.InsightCluster{
			ID:           i + 1,
			Name:         name,
			Tracks:       a.sample(g),
			TrackCount:   len(g),
			GenreTags:    tags,
			Percentage:   pcts[i],
			AudioProfile: &profile,
		}
	}

	a.logger.Debug("ml clustering", "playlist", p.ID, "k", best.k, "silhouette", best.score)

	return &models.InsightSet{
		Clusters:        out,
		Method:          mlMethod,
		TotalTracks:     n,
		SilhouetteScore: math.Round(best.score*1000) / 1000,
	}, nil
}

// maxClusterShare is the largest fraction of tracks one ML cluster may hold before the
// result is flagged as imbalanced.
const maxClusterShare = 0.6

// Imbalanced reports whether the largest cluster of set holds more than 60% of its tracks.
func Imbalanced(set *models.InsightSet) bool {
	if set == nil || set.TotalTracks == 0 {
		return false
	}
	largest := 0
	for _, c := range set.Clusters {
		largest = max(largest, c.TrackCount)
	}
	return float64(largest)/float64(set.TotalTracks) > maxClusterShare
}

// describe names a cluster by its dominant genre, else its dominant decade.
func describe(tracks []TrackInput, genres map[string][]string) (string, Style, []string) {
	tags := topGenres(tracks, genres, 5)
	if len(tags) > 0 {
		style := genreStyle(tags[0])
		if style == "" {
			style = StyleDefault
		}
		return shared.TitleCase(tags[0]) + " Mix", style, tags
	}

	order, byDecade := groupBy(tracks, func(t TrackInput) (string, bool) {
		year, ok := t.Year()
		return strconv.Itoa(decadeOf(year)), ok
	})
	if key, ok := largest(order, byDecade, 1); ok {
		decade, _ := strconv.Atoi(key)
		return key + "s Era", DecadeStyle(decade), nil
	}

	return "Mixed Selection", StyleDiverse, nil
}

var genreStyles = []struct {
	substr string
	style  Style
}{
	{"hip hop", StyleHipHop},
	{"rap", StyleHipHop},
	{"metal", StyleRock},
	{"punk", StyleRock},
	{"rock", StyleRock},
	{"indie", StyleIndie},
	{"pop", StylePop},
	{"country", StyleCountry},
	{"folk", StyleFolk},
	{"house", StyleDance},
	{"techno", StyleDance},
	{"edm", StyleDance},
	{"dance", StyleDance},
	{"lo-fi", StyleChill},
	{"ambient", StyleChill},
	{"chill", StyleChill},
}

func genreStyle(genre string) Style {
	genre = strings.ToLower(genre)
	for _, gs := range genreStyles {
		if strings.Contains(genre, gs.substr) {
			return gs.style
		}
	}
	return ""
}
