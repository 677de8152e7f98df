// Package analysis groups the tracks of a playlist into clusters.
//
// # Simple Analysis
//
// [Analyzer.Simple] partitions a playlist with deterministic heuristics (artist, album, decade,
// explicit content, popularity, recency, playlist theme). Every track belongs to exactly one
// cluster and cluster percentages sum to exactly 100.
//
// # Advanced Analysis
//
// [Analyzer.Advanced] wraps the simple partition with four specialized insights computed
// concurrently:
//   - ML: k-means over metadata features, k chosen by silhouette score
//   - Genre: k-means over artist genre sets
//   - Temporal: release decades
//   - Artist: prolific artists and their collaborators
//
// # Audio Profiles
//
// Spotify no longer exposes audio features to new applications, so cluster profiles are
// synthesized by [Profile] from style presets and playlist keywords. The small variation added
// to each profile is seeded by the cluster's track ids and therefore reproducible.
package analysis
