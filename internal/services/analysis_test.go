package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/shared"
	tu "github.com/desertthunder/tunescope/internal/testing"
)

func simpleSet() models.ClusterSet {
	return models.ClusterSet{
		Clusters: []models.Cluster{
			{ID: 0, Name: "High Energy Hits", Count: 3, Percentage: 75, TotalTracks: 3},
			{ID: 1, Name: "Hidden Gems", Count: 1, Percentage: 25, TotalTracks: 1},
		},
		TotalTracks:     4,
		AnalyzedTracks:  4,
		OptimalClusters: 2,
	}
}

func TestAnalysisFetcher(t *testing.T) {
	const playlist = "37i9dQZF1DXcBWIGoYBM5M"

	t.Run("Advanced Success", func(t *testing.T) {
		hits := tu.NewHitCounter()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Record(r)
			tu.WriteJSON(w, http.StatusOK, models.AnalysisResult{
				BaseAnalysis: simpleSet(),
				PlaylistID:   playlist,
				EnhancedML:   true,
			})
		}))
		defer server.Close()

		analysis, err := NewAnalysisFetcher(newSessionAPI(t, server, "S1"), nil).Fetch(context.Background(), playlist)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if analysis.Tier != models.TierAdvanced || analysis.IsFallback() {
			t.Errorf("expected advanced tier, got %s", analysis.Tier)
		}
		if len(analysis.Clusters()) != 2 {
			t.Errorf("expected 2 clusters, got %d", len(analysis.Clusters()))
		}
		if hits.Hits("/stats/simple-playlist-analysis/"+playlist) != 0 {
			t.Error("expected simple analysis not to be requested")
		}
	})

	t.Run("Empty Advanced Result Is Success", func(t *testing.T) {
		hits := tu.NewHitCounter()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Record(r)
			tu.WriteJSON(w, http.StatusOK, models.AnalysisResult{PlaylistID: playlist})
		}))
		defer server.Close()

		analysis, err := NewAnalysisFetcher(newSessionAPI(t, server, "S1"), nil).Fetch(context.Background(), playlist)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if analysis.Tier != models.TierAdvanced || len(analysis.Clusters()) != 0 {
			t.Errorf("expected empty advanced analysis, got %+v", analysis)
		}
		if hits.Hits("/stats/simple-playlist-analysis/"+playlist) != 0 {
			t.Error("expected no fallback for an empty result")
		}
	})

	t.Run("Falls Back On Advanced Failure", func(t *testing.T) {
		hits := tu.NewHitCounter()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Record(r)
			if r.URL.Path == "/stats/advanced-playlist-analysis/"+playlist {
				tu.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "ml unavailable"})
				return
			}
			tu.WriteJSON(w, http.StatusOK, simpleSet())
		}))
		defer server.Close()

		analysis, err := NewAnalysisFetcher(newSessionAPI(t, server, "S1"), nil).Fetch(context.Background(), playlist)
		if err != nil {
			t.Fatalf("expected fallback to succeed, got %v", err)
		}
		if analysis.Tier != models.TierFallback {
			t.Errorf("expected fallback tier, got %s", analysis.Tier)
		}

		result := analysis.Result
		if !result.SpecializedInsights.Empty() || result.EnhancedML {
			t.Error("expected fallback to carry no specialized insights")
		}
		if result.BaseAnalysis.TotalTracks != 4 || len(result.BaseAnalysis.Clusters) != 2 {
			t.Errorf("expected simple result as base analysis, got %+v", result.BaseAnalysis)
		}
		if hits.Hits("/stats/advanced-playlist-analysis/"+playlist) != 1 {
			t.Error("expected exactly one advanced attempt")
		}
	})

	t.Run("Both Tiers Fail", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/stats/advanced-playlist-analysis/"+playlist {
				tu.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "ml unavailable"})
				return
			}
			tu.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Playlist not found"})
		}))
		defer server.Close()

		_, err := NewAnalysisFetcher(newSessionAPI(t, server, "S1"), nil).Fetch(context.Background(), playlist)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected simple tier's not found error, got %v", err)
		}
	})

	t.Run("Revoked Session Refreshes Once Across Tiers", func(t *testing.T) {
		hits := tu.NewHitCounter()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Record(r)
			if r.URL.Path == refreshPath {
				tu.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh_token_revoked"})
				return
			}
			tu.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "Token expired"})
		}))
		defer server.Close()

		api := newSessionAPI(t, server, "S1")
		hooks := 0
		api.OnLoginRequired(func(string) { hooks++ })

		_, err := NewAnalysisFetcher(api, nil).Fetch(context.Background(), playlist)
		if StatusCode(err) != http.StatusUnauthorized {
			t.Fatalf("expected the simple tier's 401, got %v", err)
		}
		if n := hits.Hits(refreshPath); n != 1 {
			t.Errorf("expected one refresh, got %d", n)
		}
		if hooks != 1 {
			t.Errorf("expected one login redirect, got %d", hooks)
		}
		if n := hits.Hits("/stats/simple-playlist-analysis/" + playlist); n != 1 {
			t.Errorf("expected one simple attempt, got %d", n)
		}
		if auths := hits.Authorizations("/stats/simple-playlist-analysis/" + playlist); len(auths) != 1 || auths[0] != "" {
			t.Errorf("expected fallback without a bearer, got %q", auths)
		}
	})

	t.Run("Fallback Is Idempotent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/stats/advanced-playlist-analysis/"+playlist {
				tu.WriteJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream"})
				return
			}
			tu.WriteJSON(w, http.StatusOK, simpleSet())
		}))
		defer server.Close()

		fetcher := NewAnalysisFetcher(newSessionAPI(t, server, "S1"), nil)
		want := models.AnalysisResult{BaseAnalysis: simpleSet(), PlaylistID: playlist}
		for i := range 3 {
			analysis, err := fetcher.Fetch(context.Background(), playlist)
			if err != nil {
				t.Fatalf("call %d: expected no error, got %v", i, err)
			}
			if analysis.Tier != models.TierFallback {
				t.Errorf("call %d: expected fallback tier, got %s", i, analysis.Tier)
			}
			if !reflect.DeepEqual(analysis.Result, want) {
				t.Errorf("call %d: expected %+v, got %+v", i, want, analysis.Result)
			}
		}
	})

	t.Run("Requests Are Not Cached", func(t *testing.T) {
		hits := tu.NewHitCounter()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Record(r)
			tu.WriteJSON(w, http.StatusOK, models.AnalysisResult{BaseAnalysis: simpleSet()})
		}))
		defer server.Close()

		fetcher := NewAnalysisFetcher(newSessionAPI(t, server, "S1"), nil)
		first, err1 := fetcher.Fetch(context.Background(), playlist)
		second, err2 := fetcher.Fetch(context.Background(), playlist)
		if err1 != nil || err2 != nil {
			t.Fatalf("unexpected errors: %v, %v", err1, err2)
		}
		if first.Tier != second.Tier || len(first.Clusters()) != len(second.Clusters()) {
			t.Error("expected identical results for identical responses")
		}
		if hits.Hits("/stats/advanced-playlist-analysis/"+playlist) != 2 {
			t.Error("expected every call to reach the network")
		}
	})

	t.Run("Missing Playlist ID", func(t *testing.T) {
		_, err := NewAnalysisFetcher(NewAPIService("", nil), nil).Fetch(context.Background(), "")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}
