// Package repositories implements SQLite persistence for the backend and the CLI token store.
//
// Key Implementations:
//   - [UserRepository] : Spotify accounts with their server-side refresh tokens
//   - [TrackRepository] : Tracks seen in recently played responses, keyed by Spotify id
//   - [ListeningHistoryRepository] : Per-user plays, deduplicated on (user, track, played_at)
//   - [AnalysisCacheRepository] : Serialized analysis results with a time-to-live
//   - [TokenRepository] and [MemoryTokenStore] : CLI credential storage
//
// Statements are built with squirrel. Users carry sequence numbers for stable ordering
// independent of UUIDs; the [NextSequence] function atomically increments per-table counters.
package repositories
