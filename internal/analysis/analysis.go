package analysis

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

const (
	defaultSampleSize       = 10
	defaultMaxGenreClusters = 4
	defaultMaxMLClusters    = 6

	minSimpleTracks = 3
)

// MinMLTracks is the smallest playlist [Analyzer.ML] will cluster.
const MinMLTracks = 5

// TrackInput is a playlist track as seen by the engine.
// ArtistIDs is parallel to Artists; the first entry is the primary artist.
type TrackInput struct {
	models.TrackSample
	ArtistIDs []string
}

// PrimaryArtistID returns the id of the first credited artist, or "".
func (t TrackInput) PrimaryArtistID() string {
	if len(t.ArtistIDs) == 0 {
		return ""
	}
	return t.ArtistIDs[0]
}

// Year parses the release year from the release date, reporting false when absent.
func (t TrackInput) Year() (int, bool) {
	if len(t.ReleaseDate) < 4 {
		return 0, false
	}
	year, err := strconv.Atoi(t.ReleaseDate[:4])
	if err != nil || year <= 0 {
		return 0, false
	}
	return year, true
}

// Added parses added_at, reporting false when absent or malformed.
func (t TrackInput) Added() (time.Time, bool) {
	if t.AddedAt == "" {
		return time.Time{}, false
	}
	if at, err := time.Parse(time.RFC3339, t.AddedAt); err == nil {
		return at, true
	}
	if len(t.AddedAt) >= 10 {
		if at, err := time.Parse(time.DateOnly, t.AddedAt[:10]); err == nil {
			return at, true
		}
	}
	return time.Time{}, false
}

// Playlist is the unit of analysis.
type Playlist struct {
	ID          string
	Name        string
	Description string
	Tracks      []TrackInput
}

func (p Playlist) text() string {
	return strings.ToLower(p.Name + " " + p.Description)
}

// GenreLookup resolves artist ids to their genres.
type GenreLookup interface {
	ArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error)
}

// GenreLookupFunc adapts a function to [GenreLookup].
type GenreLookupFunc func(ctx context.Context, artistIDs []string) (map[string][]string, error)

func (f GenreLookupFunc) ArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	return f(ctx, artistIDs)
}

// Config tunes the engine.
type Config struct {
	SampleSize       int
	MaxGenreClusters int
	MaxMLClusters    int
}

// ConfigFrom maps the analysis section of the application config.
func ConfigFrom(c shared.AnalysisConfig) Config {
	return Config{
		SampleSize:       c.SampleSize,
		MaxGenreClusters: c.MaxGenreClusters,
		MaxMLClusters:    c.MaxMLClusters,
	}
}

// Analyzer computes playlist analyses. It is safe for concurrent use.
type Analyzer struct {
	cfg    Config
	logger *log.Logger
	now    func() time.Time
}

// NewAnalyzer creates an analyzer; zero config values take their defaults.
func NewAnalyzer(cfg Config, logger *log.Logger) *Analyzer {
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = defaultSampleSize
	}
	if cfg.MaxGenreClusters < 2 {
		cfg.MaxGenreClusters = defaultMaxGenreClusters
	}
	if cfg.MaxMLClusters < 2 {
		cfg.MaxMLClusters = defaultMaxMLClusters
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Analyzer{cfg: cfg, logger: logger, now: time.Now}
}

func (a *Analyzer) sample(tracks []TrackInput) []models.TrackSample {
	n := min(len(tracks), a.cfg.SampleSize)
	out := make([]models.TrackSample, n)
	for i := range n {
		out[i] = tracks[i].TrackSample
	}
	return out
}

func decadeOf(year int) int {
	return (year / 10) * 10
}

// groupBy buckets tracks by key, preserving first-appearance order of keys.
func groupBy(tracks []TrackInput, key func(TrackInput) (string, bool)) ([]string, map[string][]TrackInput) {
	var order []string
	groups := make(map[string][]TrackInput)
	for _, t := range tracks {
		k, ok := key(t)
		if !ok {
			continue
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}
	return order, groups
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
