// package formatter renders playlist analyses as plain text, Markdown, CSV and JSON, and writes them to files.
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
)

// Format names an output format of the analyze command.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name, case-insensitively. "md" is an alias for markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (want text, markdown, csv or json)", shared.ErrInvalidArgument, s)
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1DB954"))
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E22134"))
)

// Render renders a in the given format.
func Render(a models.Analysis, f Format) ([]byte, error) {
	switch f {
	case FormatText:
		return ExportToText(a)
	case FormatMarkdown:
		return ExportToMarkdown(a, "")
	case FormatCSV:
		return ExportToCSV(a)
	case FormatJSON:
		return ExportToJSON(a)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
}

func tierLabel(a models.Analysis) string {
	if a.IsFallback() {
		return "fallback (simple analysis)"
	}
	return "advanced"
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func trackLine(t models.TrackSample) string {
	artist := t.PrimaryArtist
	if artist == "" && len(t.Artists) > 0 {
		artist = t.Artists[0]
	}
	line := fmt.Sprintf("%s - %s", artist, t.Name)
	if t.Album != "" {
		line += fmt.Sprintf(" (%s)", t.Album)
	}
	return line
}

// insight pairs a specialized insight with its display name.
type insight struct {
	name string
	set  *models.InsightSet
}

func insights(a models.Analysis) []insight {
	s := a.Result.SpecializedInsights
	all := []insight{
		{"Musical Patterns", s.MLClusters},
		{"Genres", s.GenreClusters},
		{"Eras", s.TemporalClusters},
		{"Artists", s.ArtistClusters},
	}

	present := all[:0]
	for _, in := range all {
		if in.set != nil {
			present = append(present, in)
		}
	}
	return present
}

func insightDetail(c models.InsightCluster) string {
	switch {
	case len(c.GenreTags) > 0:
		return strings.Join(c.GenreTags, ", ")
	case c.YearRange != "":
		return c.YearRange
	case len(c.Collaborators) > 0:
		return "with " + strings.Join(c.Collaborators, ", ")
	case len(c.Artists) > 0:
		return strings.Join(c.Artists, ", ")
	}
	return ""
}

// ExportToText renders a as terminal text. Headings are styled when the output is a terminal.
func ExportToText(a models.Analysis) ([]byte, error) {
	var buf bytes.Buffer
	base := a.Result.BaseAnalysis

	title := "Playlist Analysis"
	if a.Result.PlaylistID != "" {
		title += ": " + a.Result.PlaylistID
	}
	buf.WriteString(titleStyle.Render(title) + "\n")
	buf.WriteString(mutedStyle.Render("Tier: "+tierLabel(a)) + "\n")
	buf.WriteString(fmt.Sprintf("Tracks: %d (analyzed %d)\n", base.TotalTracks, base.AnalyzedTracks))
	buf.WriteString(fmt.Sprintf("Clusters: %d\n\n", len(base.Clusters)))

	for i, c := range base.Clusters {
		buf.WriteString(headingStyle.Render(fmt.Sprintf("%d. %s", i+1, c.Name)))
		buf.WriteString(fmt.Sprintf("  %d tracks, %s%%\n", c.Count, formatFloat(c.Percentage, 1)))

		p := c.AudioProfile
		buf.WriteString(mutedStyle.Render(fmt.Sprintf("   energy %s  danceability %s  valence %s  tempo %s BPM",
			formatFloat(p.Energy, 2), formatFloat(p.Danceability, 2), formatFloat(p.Valence, 2), formatFloat(p.Tempo, 0))) + "\n")

		for _, t := range c.Tracks {
			buf.WriteString("   - " + shared.Truncate(trackLine(t), 72) + "\n")
		}
		buf.WriteString("\n")
	}

	for _, in := range insights(a) {
		if in.set.Failed() {
			buf.WriteString(headingStyle.Render(in.name) + " " + warnStyle.Render("unavailable: "+in.set.Error) + "\n")
			continue
		}
		buf.WriteString(headingStyle.Render(in.name) + "\n")
		for _, c := range in.set.Clusters {
			line := fmt.Sprintf("   %s (%d tracks)", c.Name, c.TrackCount)
			if d := insightDetail(c); d != "" {
				line += ": " + d
			}
			buf.WriteString(shared.Truncate(line, 96) + "\n")
		}
		if in.set.Note != "" {
			buf.WriteString(mutedStyle.Render("   "+in.set.Note) + "\n")
		}
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a as Markdown with an optional cover image reference.
func ExportToMarkdown(a models.Analysis, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer
	base := a.Result.BaseAnalysis

	if a.Result.PlaylistID != "" {
		buf.WriteString(fmt.Sprintf("# Playlist Analysis: %s\n\n", a.Result.PlaylistID))
	} else {
		buf.WriteString("# Playlist Analysis\n\n")
	}

	if imageFilename != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", imageFilename))
	}

	buf.WriteString(fmt.Sprintf("**Tier**: %s\n", tierLabel(a)))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d (analyzed %d)\n", base.TotalTracks, base.AnalyzedTracks))
	buf.WriteString(fmt.Sprintf("**Clusters**: %d\n", len(base.Clusters)))
	if base.SilhouetteScore > 0 {
		buf.WriteString(fmt.Sprintf("**Silhouette**: %s\n", formatFloat(base.SilhouetteScore, 3)))
	}
	if a.Result.Timestamp != "" {
		buf.WriteString(fmt.Sprintf("**Generated**: %s\n", a.Result.Timestamp))
	}
	buf.WriteString("\n## Clusters\n\n")

	for i, c := range base.Clusters {
		buf.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, c.Name))
		buf.WriteString(fmt.Sprintf("%d tracks, %s%% of the playlist\n\n", c.Count, formatFloat(c.Percentage, 1)))

		p := c.AudioProfile
		buf.WriteString("| Danceability | Energy | Valence | Acousticness | Tempo |\n")
		buf.WriteString("|---|---|---|---|---|\n")
		buf.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s BPM |\n\n",
			formatFloat(p.Danceability, 2), formatFloat(p.Energy, 2), formatFloat(p.Valence, 2),
			formatFloat(p.Acousticness, 2), formatFloat(p.Tempo, 0)))

		for _, t := range c.Tracks {
			buf.WriteString("- " + trackLine(t) + "\n")
		}
		buf.WriteString("\n")
	}

	if in := insights(a); len(in) > 0 {
		buf.WriteString("## Insights\n\n")
		for _, in := range in {
			if in.set.Failed() {
				buf.WriteString(fmt.Sprintf("### %s\n\n_unavailable: %s_\n\n", in.name, in.set.Error))
				continue
			}
			buf.WriteString(fmt.Sprintf("### %s\n\n", in.name))
			for _, c := range in.set.Clusters {
				line := fmt.Sprintf("- **%s** (%d tracks)", c.Name, c.TrackCount)
				if d := insightDetail(c); d != "" {
					line += ": " + d
				}
				buf.WriteString(line + "\n")
			}
			if in.set.Note != "" {
				buf.WriteString(fmt.Sprintf("\n> %s\n", in.set.Note))
			}
			buf.WriteString("\n")
		}
	}

	return buf.Bytes(), nil
}

// ExportToCSV renders the base clusters, one row each, with their audio profile and sample size.
func ExportToCSV(a models.Analysis) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Cluster", "Name", "Tracks", "Percentage", "Danceability", "Energy", "Valence", "Acousticness", "Tempo", "Sampled"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, c := range a.Clusters() {
		p := c.AudioProfile
		record := []string{
			strconv.Itoa(c.ID),
			c.Name,
			strconv.Itoa(c.Count),
			formatFloat(c.Percentage, 1),
			formatFloat(p.Danceability, 3),
			formatFloat(p.Energy, 3),
			formatFloat(p.Valence, 3),
			formatFloat(p.Acousticness, 3),
			formatFloat(p.Tempo, 1),
			strconv.Itoa(len(c.Tracks)),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportTracksCSV renders every sampled track with the cluster it was sampled from.
func ExportTracksCSV(a models.Analysis) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Cluster", "ID", "Name", "Artists", "Album", "Popularity", "Release Date", "Explicit"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, c := range a.Clusters() {
		for _, t := range c.Tracks {
			record := []string{
				c.Name,
				t.ID,
				t.Name,
				strings.Join(t.Artists, "; "),
				t.Album,
				strconv.Itoa(t.Popularity),
				t.ReleaseDate,
				strconv.FormatBool(t.Explicit),
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToJSON renders the normalized analysis result.
func ExportToJSON(a models.Analysis) ([]byte, error) {
	return shared.MarshalJSON(a.Result, true)
}

type metadata struct {
	PlaylistID     string `json:"playlist_id,omitempty"`
	Tier           string `json:"tier"`
	TotalTracks    int    `json:"total_tracks"`
	AnalyzedTracks int    `json:"analyzed_tracks"`
	Clusters       int    `json:"clusters"`
	Insights       int    `json:"insights"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// ToMetadataJSON summarizes a without its clusters.
func ToMetadataJSON(a models.Analysis) ([]byte, error) {
	return shared.MarshalJSON(metadata{
		PlaylistID:     a.Result.PlaylistID,
		Tier:           string(a.Tier),
		TotalTracks:    a.Result.BaseAnalysis.TotalTracks,
		AnalyzedTracks: a.Result.BaseAnalysis.AnalyzedTracks,
		Clusters:       len(a.Clusters()),
		Insights:       len(insights(a)),
		Timestamp:      a.Result.Timestamp,
	}, true)
}

// CoverImageURL returns the image of the first sampled track, or "".
func CoverImageURL(a models.Analysis) string {
	for _, c := range a.Clusters() {
		for _, t := range c.Tracks {
			if t.ImageURL != "" {
				return t.ImageURL
			}
		}
	}
	return ""
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return imageData, nil
}

func baseName(a models.Analysis, name string) string {
	switch {
	case name != "":
		return name
	case a.Result.PlaylistID != "":
		return a.Result.PlaylistID
	default:
		return "analysis"
	}
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	ClustersFile string
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport writes {base}_clusters.csv, {base}_tracks.csv and {base}_metadata.json.
//
// The base defaults to the playlist ID.
func WriteCSVExport(a models.Analysis, baseFilepath string) (*CSVExportResult, error) {
	base := baseName(a, baseFilepath)
	result := &CSVExportResult{
		ClustersFile: base + "_clusters.csv",
		TracksFile:   base + "_tracks.csv",
		MetadataFile: base + "_metadata.json",
	}

	files := []struct {
		path   string
		render func(models.Analysis) ([]byte, error)
	}{
		{result.ClustersFile, ExportToCSV},
		{result.TracksFile, ExportTracksCSV},
		{result.MetadataFile, ToMetadataJSON},
	}
	for _, f := range files {
		data, err := f.render(a)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", f.path, err)
		}
		if err := os.WriteFile(f.path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.path, err)
		}
	}

	return result, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport writes {dir}/README.md and, when imageURL downloads, {dir}/cover.jpg.
//
// The directory defaults to the playlist ID. A failed cover download is reported through warn
// and does not fail the export.
func WriteMarkdownExport(ctx context.Context, a models.Analysis, outputDir, imageURL string, warn func(error)) (*MarkdownExportResult, error) {
	outputDir = baseName(a, outputDir)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: outputDir, Files: []string{}}

	var cover string
	if imageURL != "" {
		if data, err := DownloadImage(ctx, imageURL); err != nil {
			warn(err)
		} else {
			path := filepath.Join(outputDir, "cover.jpg")
			if err := os.WriteFile(path, data, 0644); err != nil {
				warn(fmt.Errorf("failed to save cover image: %w", err))
			} else {
				cover = "cover.jpg"
				result.CoverImage = path
				result.Files = append(result.Files, path)
			}
		}
	}

	md, err := ExportToMarkdown(a, cover)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, md, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteFile renders a in format f to path, defaulting to {playlistID}_analysis.{ext}.
func WriteFile(a models.Analysis, f Format, path string) (string, error) {
	if path == "" {
		ext := map[Format]string{FormatText: "txt", FormatMarkdown: "md", FormatCSV: "csv", FormatJSON: "json"}[f]
		path = fmt.Sprintf("%s_analysis.%s", baseName(a, ""), ext)
	}

	data, err := Render(a, f)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
