package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunescope/internal/shared"
)

// APIGet makes an authenticated GET request to the backend.
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	api, err := r.client()
	if err != nil {
		return err
	}

	r.logger.Info("GET request", "path", path)
	resp, err := api.Get(ctx, path)
	if err != nil {
		return err
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, !cmd.Bool("compact"))
	}
	return r.writePlain("%s\n", resp.Body)
}

// APIPost makes an authenticated POST request with a JSON body to the backend.
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	data := cmd.String("data")
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("%w: data is not valid JSON", shared.ErrInvalidInput)
	}

	api, err := r.client()
	if err != nil {
		return err
	}

	r.logger.Info("POST request", "path", path)
	resp, err := api.Post(ctx, path, []byte(data))
	if err != nil {
		return err
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, true)
	}
	return r.writePlain("%s\n", resp.Body)
}
