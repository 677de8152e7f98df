package analysis

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/desertthunder/tunescope/internal/models"
)

// Style names a preset audio profile.
type Style string

const (
	StyleArtist      Style = "artist"
	StyleAlbum       Style = "album"
	StyleChill       Style = "chill"
	StyleFocus       Style = "focus"
	StyleParty       Style = "party"
	StyleDance       Style = "dance"
	StyleWorkout     Style = "workout"
	StyleSleep       Style = "sleep"
	StyleMood        Style = "mood"
	StyleUpbeat      Style = "upbeat"
	StyleMelancholic Style = "melancholic"
	StyleRock        Style = "rock"
	StylePop         Style = "pop"
	StyleHipHop      Style = "hiphop"
	StyleCountry     Style = "country"
	StyleFolk        Style = "folk"
	StyleIndie       Style = "indie"
	StylePopular     Style = "popular"
	StyleRecent      Style = "recent"
	StyleExplicit    Style = "explicit"
	StyleDiverse     Style = "diverse"
	StyleDefault     Style = "default"
)

// DecadeStyle returns the preset for a decade such as 1990.
func DecadeStyle(decade int) Style {
	return Style("decade" + strconv.Itoa(decade))
}

// ap orders its arguments: danceability, energy, acousticness, instrumentalness,
// valence, speechiness, liveness, tempo.
func ap(d, e, a, i, v, s, l, t float64) models.AudioProfile {
	return models.AudioProfile{
		Danceability: d, Energy: e, Acousticness: a, Instrumentalness: i,
		Valence: v, Speechiness: s, Liveness: l, Tempo: t,
	}
}

var presets = map[Style]models.AudioProfile{
	StyleArtist:      ap(0.65, 0.70, 0.40, 0.10, 0.60, 0.15, 0.20, 120),
	StyleAlbum:       ap(0.60, 0.65, 0.45, 0.12, 0.55, 0.18, 0.22, 118),
	StyleChill:       ap(0.45, 0.30, 0.70, 0.25, 0.50, 0.05, 0.08, 90),
	StyleFocus:       ap(0.40, 0.35, 0.60, 0.40, 0.52, 0.04, 0.05, 100),
	StyleParty:       ap(0.85, 0.90, 0.15, 0.05, 0.80, 0.12, 0.30, 125),
	StyleDance:       ap(0.90, 0.85, 0.10, 0.08, 0.75, 0.10, 0.25, 128),
	StyleWorkout:     ap(0.80, 0.95, 0.10, 0.05, 0.85, 0.15, 0.20, 135),
	StyleSleep:       ap(0.25, 0.15, 0.90, 0.60, 0.40, 0.03, 0.05, 75),
	StyleMood:        ap(0.60, 0.55, 0.50, 0.20, 0.70, 0.10, 0.15, 110),
	StyleUpbeat:      ap(0.75, 0.80, 0.30, 0.10, 0.90, 0.12, 0.20, 122),
	StyleMelancholic: ap(0.35, 0.40, 0.65, 0.20, 0.25, 0.08, 0.10, 85),
	StyleRock:        ap(0.55, 0.85, 0.30, 0.15, 0.65, 0.08, 0.30, 130),
	StylePop:         ap(0.70, 0.75, 0.25, 0.05, 0.70, 0.10, 0.15, 118),
	StyleHipHop:      ap(0.80, 0.70, 0.15, 0.05, 0.65, 0.25, 0.15, 95),
	StyleCountry:     ap(0.60, 0.65, 0.60, 0.10, 0.60, 0.07, 0.25, 115),
	StyleFolk:        ap(0.45, 0.50, 0.80, 0.20, 0.55, 0.06, 0.20, 105),
	StyleIndie:       ap(0.55, 0.60, 0.55, 0.25, 0.60, 0.05, 0.18, 112),
	StylePopular:     ap(0.75, 0.75, 0.30, 0.05, 0.70, 0.10, 0.15, 120),
	StyleRecent:      ap(0.70, 0.72, 0.35, 0.08, 0.65, 0.12, 0.18, 115),
	StyleExplicit:    ap(0.78, 0.75, 0.20, 0.06, 0.62, 0.30, 0.15, 98),
	"decade1950":     ap(0.50, 0.55, 0.70, 0.30, 0.65, 0.05, 0.25, 105),
	"decade1960":     ap(0.55, 0.60, 0.65, 0.25, 0.70, 0.06, 0.30, 110),
	"decade1970":     ap(0.65, 0.70, 0.50, 0.20, 0.65, 0.07, 0.35, 115),
	"decade1980":     ap(0.75, 0.75, 0.35, 0.15, 0.75, 0.08, 0.25, 120),
	"decade1990":     ap(0.70, 0.80, 0.30, 0.10, 0.70, 0.10, 0.20, 125),
	"decade2000":     ap(0.75, 0.75, 0.25, 0.08, 0.65, 0.12, 0.18, 118),
	"decade2010":     ap(0.78, 0.72, 0.30, 0.05, 0.60, 0.15, 0.15, 115),
	"decade2020":     ap(0.80, 0.70, 0.35, 0.04, 0.58, 0.18, 0.12, 110),
	StyleDiverse:     ap(0.60, 0.60, 0.40, 0.15, 0.55, 0.10, 0.18, 115),
	StyleDefault:     ap(0.65, 0.65, 0.45, 0.15, 0.60, 0.12, 0.20, 118),
}

// Preset returns the base profile for a style, falling back to [StyleDefault].
func Preset(style Style) models.AudioProfile {
	if p, ok := presets[style]; ok {
		return p
	}
	return presets[StyleDefault]
}

// adjustment nudges profile dimensions. Tempo deltas are fractions of the current tempo.
type adjustment struct {
	keyword string
	delta   models.AudioProfile
}

// Keyword adjustments are applied in this order for every keyword found in the playlist text.
var adjustments = []adjustment{
	{"rock", models.AudioProfile{Energy: 0.3, Acousticness: -0.3, Liveness: 0.2}},
	{"metal", models.AudioProfile{Energy: 0.4, Acousticness: -0.4, Valence: -0.1}},
	{"pop", models.AudioProfile{Danceability: 0.2, Energy: 0.1, Instrumentalness: -0.1}},
	{"hip hop", models.AudioProfile{Speechiness: 0.3, Danceability: 0.2, Acousticness: -0.2}},
	{"rap", models.AudioProfile{Speechiness: 0.4, Danceability: 0.2, Tempo: 0.1}},
	{"chill", models.AudioProfile{Energy: -0.3, Tempo: -0.2, Acousticness: 0.2}},
	{"relax", models.AudioProfile{Energy: -0.3, Tempo: -0.2, Valence: 0.1}},
	{"sleep", models.AudioProfile{Energy: -0.4, Tempo: -0.3, Acousticness: 0.3}},
	{"party", models.AudioProfile{Danceability: 0.3, Energy: 0.3, Valence: 0.2}},
	{"dance", models.AudioProfile{Danceability: 0.4, Energy: 0.3, Tempo: 0.2}},
	{"workout", models.AudioProfile{Energy: 0.4, Tempo: 0.3, Valence: 0.2}},
	{"gym", models.AudioProfile{Energy: 0.4, Tempo: 0.3, Valence: 0.2}},
	{"acoustic", models.AudioProfile{Acousticness: 0.4, Energy: -0.2, Instrumentalness: 0.1}},
	{"instrumental", models.AudioProfile{Instrumentalness: 0.4, Speechiness: -0.3}},
	{"sad", models.AudioProfile{Valence: -0.4, Energy: -0.2, Tempo: -0.2}},
	{"happy", models.AudioProfile{Valence: 0.4, Energy: 0.2, Tempo: 0.1}},
	{"folk", models.AudioProfile{Acousticness: 0.3, Instrumentalness: 0.2, Energy: -0.2}},
	{"country", models.AudioProfile{Acousticness: 0.3, Speechiness: -0.1, Liveness: 0.1}},
	{"jazz", models.AudioProfile{Instrumentalness: 0.3, Acousticness: 0.2, Speechiness: -0.2}},
	{"classical", models.AudioProfile{Instrumentalness: 0.5, Acousticness: 0.4, Speechiness: -0.4}},
	{"electronic", models.AudioProfile{Instrumentalness: 0.3, Acousticness: -0.3, Energy: 0.3}},
	{"indie", models.AudioProfile{Acousticness: 0.2, Energy: -0.1, Instrumentalness: 0.1}},
	{"soul", models.AudioProfile{Valence: 0.2, Acousticness: 0.2, Energy: -0.1}},
	{"r&b", models.AudioProfile{Valence: 0.1, Danceability: 0.2, Speechiness: 0.1}},
	{"latin", models.AudioProfile{Danceability: 0.3, Valence: 0.2, Energy: 0.2}},
}

// Profile synthesizes the audio profile of a cluster.
//
// The preset for style is adjusted by every keyword contained in text, then varied by up
// to ±5% (±5 BPM for tempo) with a generator seeded from the cluster's track ids, so the
// same cluster always yields the same profile.
func Profile(style Style, text string, ids []string) models.AudioProfile {
	p := Preset(style)
	text = strings.ToLower(text)

	for _, adj := range adjustments {
		if strings.Contains(text, adj.keyword) {
			p = applyAdjustment(p, adj.delta)
		}
	}

	return vary(p, seedFor(ids))
}

func applyAdjustment(p, d models.AudioProfile) models.AudioProfile {
	return models.AudioProfile{
		Danceability:     clamp01(p.Danceability + d.Danceability),
		Energy:           clamp01(p.Energy + d.Energy),
		Acousticness:     clamp01(p.Acousticness + d.Acousticness),
		Instrumentalness: clamp01(p.Instrumentalness + d.Instrumentalness),
		Valence:          clamp01(p.Valence + d.Valence),
		Speechiness:      clamp01(p.Speechiness + d.Speechiness),
		Liveness:         clamp01(p.Liveness + d.Liveness),
		Tempo:            p.Tempo * (1 + d.Tempo),
	}
}

func vary(p models.AudioProfile, seed uint64) models.AudioProfile {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	jitter := func(v float64) float64 {
		return clamp01(v + v*(rng.Float64()*0.1-0.05))
	}

	return models.AudioProfile{
		Danceability:     jitter(p.Danceability),
		Energy:           jitter(p.Energy),
		Acousticness:     jitter(p.Acousticness),
		Instrumentalness: jitter(p.Instrumentalness),
		Valence:          jitter(p.Valence),
		Speechiness:      jitter(p.Speechiness),
		Liveness:         jitter(p.Liveness),
		Tempo:            p.Tempo + rng.Float64()*10 - 5,
	}
}

func seedFor(ids []string) uint64 {
	h := fnv.New64a()
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(ids)))
	h.Write(n[:])
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func trackIDs(tracks []TrackInput) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
