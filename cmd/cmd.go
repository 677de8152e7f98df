// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// serveCommand runs the backend API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the backend API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides server.port)",
			},
			&cli.BoolFlag{
				Name:  "no-banner",
				Usage: "Skip the startup banner",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand handles setup operations for database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize the backend and client databases and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "status",
						Usage: "Show applied migrations instead of migrating",
					},
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a config file from the built-in template",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing config file with the current settings",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the Spotify login session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in with Spotify through the backend",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser login",
						Value: loginTimeout,
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the login URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Verify the stored session with the backend",
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Log out and clear stored tokens",
				Action: r.AuthLogout,
			},
			{
				Name:   "token",
				Usage:  "Print a valid Spotify access token, refreshing it if expired",
				Action: r.AuthToken,
			},
		},
	}
}

// profileCommand shows the Spotify profile of the logged in user.
func profileCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Show your Spotify profile",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Profile,
	}
}

// playlistsCommand lists the user's playlists.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List your Spotify playlists",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of playlists to print (0 for all)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Playlists,
	}
}

// analyzeCommand fetches a playlist analysis with advanced to simple fallback.
func analyzeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Analyze the musical patterns of a playlist",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "playlist",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, markdown, csv or json",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file (markdown and csv write a directory or file set)",
			},
		},
		Action: r.Analyze,
	}
}

// apiCommand handles direct backend API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct authenticated calls to the backend API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "GET a backend path, prints JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "compact",
						Usage: "Print compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "POST a JSON body to a backend path",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "JSON body to send",
						Value:   "{}",
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// cacheCommand manages the backend's analysis cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the backend analysis cache",
		Commands: []*cli.Command{
			{
				Name:   "purge",
				Usage:  "Delete cached analyses older than analysis.cache_ttl_hours",
				Action: r.CachePurge,
			},
		},
	}
}
