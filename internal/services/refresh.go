package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/desertthunder/tunescope/internal/models"
	"github.com/desertthunder/tunescope/internal/repositories"
	"github.com/desertthunder/tunescope/internal/shared"
)

type refreshOutcome struct {
	token string
	err   error
}

// refresher coalesces concurrent refresh attempts.
//
// The flag check, the enqueue of a waiter and the final drain all happen under mu,
// so a caller that observes a refresh in flight is always queued behind it.
type refresher struct {
	mu         sync.Mutex
	refreshing bool
	queue      []chan refreshOutcome
}

// await runs refresh if none is in flight, otherwise waits for the one that is.
// onFailure runs once, after the queue has been rejected, when the leader's refresh fails.
//
// A waiter that gives up through ctx stays queued; its buffered channel absorbs the outcome.
func (r *refresher) await(ctx context.Context, refresh func() (string, error), onFailure func()) (string, error) {
	r.mu.Lock()
	if r.refreshing {
		ch := make(chan refreshOutcome, 1)
		r.queue = append(r.queue, ch)
		r.mu.Unlock()

		select {
		case out := <-ch:
			return out.token, out.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	r.refreshing = true
	r.mu.Unlock()

	token, err := refresh()

	r.mu.Lock()
	queue := r.queue
	r.queue = nil
	r.refreshing = false
	r.mu.Unlock()

	for _, ch := range queue {
		ch <- refreshOutcome{token: token, err: err}
	}

	if err != nil && onFailure != nil {
		onFailure()
	}
	return token, err
}

// pending reports how many callers are queued behind an in-flight refresh.
func (r *refresher) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	SessionToken string `json:"session_token"`
}

// refreshSession runs (or joins) the coalesced refresh and returns the bearer to replay with.
func (a *APIService) refreshSession(ctx context.Context) (string, error) {
	return a.refresh.await(ctx, func() (string, error) {
		// Detached from the leader's cancellation: queued callers share this refresh.
		return a.exchange(context.WithoutCancel(ctx))
	}, a.loginRequired)
}

// exchange calls the refresh route once and persists the result. On failure the store is cleared.
func (a *APIService) exchange(ctx context.Context) (string, error) {
	token, err := a.requestRefresh(ctx)
	if err != nil {
		if clearErr := a.store.Clear(); clearErr != nil {
			a.logger.Error("failed to clear token store", "err", clearErr)
		}
		a.logger.Warn("session refresh failed", "err", err)
		return "", err
	}
	return token, nil
}

func (a *APIService) requestRefresh(ctx context.Context) (string, error) {
	session, _ := a.store.Get(models.SessionToken)

	resp, err := a.send(ctx, &Request{Method: http.MethodPost, Path: refreshPath, retried: true}, session)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Path: refreshPath, Body: resp.Body}
		if httpErr.Message() == shared.ErrRefreshRevoked.Error() {
			return "", fmt.Errorf("%w: %w: %w", shared.ErrRefreshFailed, shared.ErrRefreshRevoked, httpErr)
		}
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, httpErr)
	}

	var body refreshResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", shared.ErrRefreshFailed, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: response carried no access token", shared.ErrRefreshFailed)
	}

	expiry := time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	if err := a.store.Set(models.AccessToken, body.AccessToken, expiry); err != nil {
		a.logger.Error("failed to persist access token", "err", err)
	}

	if body.SessionToken != "" {
		if err := a.store.Set(models.SessionToken, body.SessionToken, time.Time{}); err != nil {
			a.logger.Error("failed to persist session token", "err", err)
		}
		return body.SessionToken, nil
	}

	return body.AccessToken, nil
}

// ProviderToken returns the stored Spotify access token, refreshing first when the
// stored expiry has passed.
func (a *APIService) ProviderToken(ctx context.Context) (string, error) {
	token, ok := a.store.Get(models.AccessToken)
	if !ok {
		return "", shared.ErrNotAuthenticated
	}

	raw, _ := a.store.Get(models.AccessTokenExpiry)
	expiry, ok := repositories.ParseExpiry(raw)
	if ok && time.Now().Before(expiry) {
		return token, nil
	}

	if _, err := a.refreshSession(ctx); err != nil {
		return "", err
	}

	token, ok = a.store.Get(models.AccessToken)
	if !ok {
		return "", shared.ErrNotAuthenticated
	}
	return token, nil
}

// ExpiryFromString parses an epoch-seconds expiry as delivered on the login callback.
func ExpiryFromString(v string) (time.Time, error) {
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: expires_at %q", shared.ErrInvalidInput, v)
	}
	return time.Unix(secs, 0), nil
}
