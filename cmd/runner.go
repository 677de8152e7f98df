package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunescope/internal/repositories"
	"github.com/desertthunder/tunescope/internal/services"
	"github.com/desertthunder/tunescope/internal/shared"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1DB954"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#1DB954"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5A50A"))
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Client dependencies (token store, API client, session controller, analysis fetcher) are
// built lazily from the loaded config so commands like setup and serve never open the client database.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	navigate   services.Navigator

	noBrowser     bool
	browserFailed bool

	store    services.TokenStore
	clientDB *sql.DB
	api      *services.APIService
	session  *services.SessionController
	fetcher  *services.AnalysisFetcher
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	TokenStore services.TokenStore
	Navigate   services.Navigator
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Navigate == nil {
		opts.Navigate = shared.OpenBrowser
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		navigate:   opts.Navigate,
		store:      opts.TokenStore,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, authCommand, profileCommand, playlistsCommand, analyzeCommand, apiCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads .env and the config file named by --config and applies --verbose.
// A missing config file keeps the defaults.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if err := shared.LoadDotEnv(); err != nil {
		r.logger.Warn("failed to load .env", "error", err)
	}

	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
		r.logger.Debug("loaded config", "path", r.configPath)
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}
	r.config.ApplyEnv()

	return ctx, nil
}

// client returns the backend API client, opening the client token database on first use.
func (r *Runner) client() (*services.APIService, error) {
	if r.api != nil {
		return r.api, nil
	}

	if r.store == nil {
		db, err := shared.NewDatabase(r.config.Database.ClientPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open client database: %w", err)
		}
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate client database: %w", err)
		}
		r.clientDB = db
		r.store = repositories.NewTokenRepository(db)
	}

	r.api = services.NewAPIService(r.config.API.BaseURL, r.httpClient,
		services.WithTokenStore(r.store),
		services.WithTimeout(r.config.API.Timeout()),
		services.WithLogger(shared.WithLogger(r.logger, "component", "api")),
	)
	r.session = services.NewSessionController(r.api, r.openURL, shared.WithLogger(r.logger, "component", "session"))
	r.fetcher = services.NewAnalysisFetcher(r.api, shared.WithLogger(r.logger, "component", "analysis"))
	return r.api, nil
}

// requireSession makes sure a session token is stored before calling protected routes.
func (r *Runner) requireSession() error {
	if _, err := r.client(); err != nil {
		return err
	}
	if r.session.State() == services.StateUnauthenticated {
		return fmt.Errorf("%w: run 'tunescope auth login' first", shared.ErrNotAuthenticated)
	}
	return nil
}

// Close releases the client database.
func (r *Runner) Close() error {
	if r.clientDB != nil {
		return r.clientDB.Close()
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeHeader(title string) {
	r.writePlain("%s\n\n", headerStyle.Render(title))
}

func (r *Runner) writeSuccess(format string, args ...any) error {
	return r.writePlain("%s\n", successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func (r *Runner) writeWarning(format string, args ...any) error {
	return r.writePlain("%s\n", warnStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}
