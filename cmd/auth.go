package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunescope/internal/server"
	"github.com/desertthunder/tunescope/internal/services"
	"github.com/desertthunder/tunescope/internal/shared"
)

const loginTimeout = 2 * time.Minute

// AuthLogin runs the browser login through the backend.
//
// A local listener on api.callback_port receives the backend's redirect carrying the
// session token, which the session controller stores and verifies.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.client(); err != nil {
		return err
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = loginTimeout
	}

	callback := server.NewCallbackHandler()
	router := server.NewBasicRouter("")
	router.Handler(callback)

	addr := fmt.Sprintf("127.0.0.1:%d", r.config.API.CallbackPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for the login callback on %s: %w", addr, err)
	}

	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Debug("starting callback listener", "addr", addr)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down callback listener", "error", err)
		}
	}()

	r.noBrowser = cmd.Bool("no-browser")

	r.writePlain("→ Opening browser for Spotify login...\n")
	authURL, err := r.session.Login(ctx)
	if err != nil {
		return err
	}
	if r.noBrowser || r.browserFailed {
		if r.browserFailed {
			r.writeWarning("Could not open browser automatically.")
		}
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var params services.CallbackParams
	select {
	case params = <-callback.Result():
	case err := <-serverErrors:
		return fmt.Errorf("callback listener error: %w", err)
	case <-timer.C:
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := r.session.HandleCallback(ctx, params); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if profile := r.session.Profile(); profile != nil {
		return r.writeSuccess("Logged in as %s (%s)", profile.DisplayName, profile.ID)
	}
	return r.writeSuccess("Logged in")
}

// openURL is the session controller's navigator. It records a failed browser launch so
// the login URL can be printed instead.
func (r *Runner) openURL(url string) error {
	if r.noBrowser {
		return nil
	}
	if err := r.navigate(url); err != nil {
		r.browserFailed = true
		return err
	}
	return nil
}

// AuthStatus verifies the stored session token and prints the profile.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.client(); err != nil {
		return err
	}

	if r.session.State() == services.StateUnauthenticated {
		return r.writeWarning("Not logged in. Run 'tunescope auth login'.")
	}

	if err := r.session.Verify(ctx); err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) || errors.Is(err, shared.ErrInvalidToken) {
			return r.writeWarning("Session is no longer valid. Run 'tunescope auth login'.")
		}
		return fmt.Errorf("failed to verify session: %w", err)
	}

	r.writeSuccess("Authenticated")
	if profile := r.session.Profile(); profile != nil {
		r.writePlain("  User:    %s\n", profile.DisplayName)
		r.writePlain("  ID:      %s\n", profile.ID)
		if profile.Email != "" {
			r.writePlain("  Email:   %s\n", profile.Email)
		}
		if profile.Product != "" {
			r.writePlain("  Product: %s\n", profile.Product)
		}
	}
	return nil
}

// AuthLogout ends the backend session and clears stored tokens.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.client(); err != nil {
		return err
	}
	if err := r.session.Logout(ctx); err != nil {
		return err
	}
	return r.writeSuccess("Logged out")
}

// AuthToken prints a valid Spotify access token.
func (r *Runner) AuthToken(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireSession(); err != nil {
		return err
	}

	token, err := r.api.ProviderToken(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", token)
}
