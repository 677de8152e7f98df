// Package models defines the entities and wire shapes shared by the tunescope backend and CLI.
//
// Persistent entities implement [Model] and are stored through a [Repository]:
//   - [User] : A Spotify account with its server-side refresh token
//   - [Track] : A track seen in a recently played response
//
// Wire shapes are plain structs with JSON tags:
//   - [UserProfile], [PlaylistSummary], [TrackSummary], [ArtistSummary] : stats and user endpoints
//   - [ClusterSet], [AnalysisResult], [Analysis] : playlist analysis at both tiers
//
// [TokenKind] names the credentials the CLI persists between runs.
package models
