package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atlasserver/atlasai/internal/agent"
	"github.com/atlasserver/atlasai/internal/config"
	"github.com/atlasserver/atlasai/internal/credentials"
	"github.com/atlasserver/atlasai/internal/display"
	"github.com/atlasserver/atlasai/internal/history"
	"github.com/atlasserver/atlasai/internal/logging"
	"github.com/atlasserver/atlasai/internal/settings"
)

// Exit codes
const (
	exitOK        = 0
	exitError     = 1
	exitCancelled = 130
)

// App holds the application state
type App struct {
	cfg       *config.Config
	logFormat string
	plain     bool
	noHistory bool

	logger   *logging.Logger
	creds    *credentials.Store
	settings *settings.Manager
	history  history.Store

	// stdin is read for piped input and secrets; tests replace it
	stdin io.Reader
}

// NewApp creates a new App instance with default configuration
func NewApp() *App {
	return &App{
		cfg:    config.NewConfig(),
		logger: logging.Nop(),
		stdin:  os.Stdin,
	}
}

// Execute runs the root command and exits with its status
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := NewApp().run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (app *App) run(ctx context.Context, args []string) int {
	defer app.close()

	rootCmd := app.newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(display.Stdout)
	rootCmd.SetErr(display.Stderr)
	return exitCode(rootCmd.ExecuteContext(ctx))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, agent.ErrCancelled), errors.Is(err, context.Canceled):
		display.ShowInfo("aborted")
		return exitCancelled
	default:
		display.ShowError(err.Error())
		return exitError
	}
}

func (app *App) newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "atlasai [request]",
		Short: "Suggest, optimize, and debug shell and deployment commands",
		Long: `atlasai asks one or more language models (a local Ollama engine or hosted
providers) for a shell or deployment command, checks the answer, classifies
its risk, and shows the best candidate. Nothing is ever executed.

A bare request is the same as 'atlasai suggest'.

Examples:
  atlasai "find files larger than 100MB"
  atlasai suggest --project . "deploy this app"
  atlasai optimize "grep -r foo . | grep -v test | wc -l"
  kubectl logs web-1 | atlasai debug "pod keeps restarting"
  atlasai --provider local,cloud --multi "rotate nginx logs daily"
  atlasai chat`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !app.stdinPiped() {
				return cmd.Help()
			}
			return app.runKind(cmd.Context(), agent.KindSuggest, args)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.cfg.Verbose, "verbose", "v", false, "Enable debug logging to stderr")
	flags.StringVar(&app.logFormat, "log-format", "text", "Log format: text or json")
	flags.BoolVarP(&app.cfg.Render, "render", "r", false, "Render markdown with colors and formatting")
	flags.BoolVar(&app.cfg.JSON, "json", false, "Print the recommendation as JSON")
	flags.BoolVar(&app.plain, "plain", false, "Print plain text without markdown")
	flags.StringVar(&app.cfg.Provider, "provider", "", "Provider ids or kinds to use, comma-separated (default: config preference)")
	flags.StringVarP(&app.cfg.Model, "model", "m", "", "Model for the first selected provider")
	flags.BoolVar(&app.cfg.MultiProvider, "multi", false, "Ask all selected providers at once and rank every answer")
	flags.StringVar(&app.cfg.ProjectDir, "project", "", "Let the model read this project directory (read-only)")
	flags.StringVar(&app.cfg.Language, "lang", "", "Language of explanations: en or es")
	flags.BoolVarP(&app.cfg.WebSearch, "web", "w", false, "Offer the web_search tool to the model")
	flags.StringVarP(&app.cfg.WebSearchProvider, "search-provider", "p", "", "Web search provider: duckduckgo, brave, or tavily (default: auto-detect)")
	flags.StringVar(&app.cfg.ConfigPath, "config", "", "Config file (default: search .atlasai/ and ~/.config/atlasai/)")
	flags.IntVar(&app.cfg.MaxSteps, "max-steps", 0, "Planning steps per provider before the answer is forced")
	flags.BoolVar(&app.noHistory, "no-history", false, "Do not save this request to history")

	rootCmd.AddCommand(app.newKindCmd(agent.KindSuggest))
	rootCmd.AddCommand(app.newKindCmd(agent.KindOptimize))
	rootCmd.AddCommand(app.newKindCmd(agent.KindDebug))
	rootCmd.AddCommand(app.newChatCmd())
	rootCmd.AddCommand(app.newAuthCmd())
	rootCmd.AddCommand(app.newHistoryCmd())
	rootCmd.AddCommand(app.newConfigCmd())

	return rootCmd
}

// setupLogger configures logging from --verbose, ATLASAI_LOG_LEVEL, and
// --log-format. Logging is off unless one of the first two asks for it.
func (app *App) setupLogger() {
	level := logging.LevelNone
	if env := os.Getenv(config.EnvLogLevel); env != "" {
		if parsed, ok := logging.ParseLevel(env); ok {
			level = parsed
		}
	}
	if app.cfg.Verbose {
		level = logging.LevelDebug
	}
	app.logger = logging.New(logging.Options{
		Level:  level,
		Format: logging.ParseFormat(app.logFormat),
		Output: os.Stderr,
	})
}

// setup loads configuration, credentials, and safety settings. Commands
// that talk to providers call it first.
func (app *App) setup() error {
	app.setupLogger()

	if err := app.cfg.Validate(); err != nil {
		return err
	}
	if app.cfg.ConfigFile != "" {
		app.logger.Debug("config loaded", logging.Fields{"path": app.cfg.ConfigFile})
	}

	if err := app.openCredentials(); err != nil {
		return err
	}

	app.settings = settings.NewManager()
	if err := app.settings.Load(app.cfg.ProjectDir); err != nil {
		return err
	}
	app.settings.Mirror(app.cfg.FileSafety)
	app.cfg.Safety = app.settings.Merged()

	if app.cfg.Render {
		if err := display.InitRenderer(); err != nil {
			app.logger.Warn("markdown rendering disabled", logging.Fields{"error": err.Error()})
		}
	}
	return nil
}

func (app *App) openCredentials() error {
	if app.creds != nil {
		return nil
	}
	path, err := credentials.DefaultPath()
	if err != nil {
		return err
	}
	creds, err := credentials.NewStore(path)
	if err != nil {
		return err
	}
	app.creds = creds
	return nil
}

// openHistory opens the history database on first use
func (app *App) openHistory() (history.Store, error) {
	if app.history != nil {
		return app.history, nil
	}
	store, err := history.NewSQLiteStore("")
	if err != nil {
		return nil, err
	}
	app.history = store
	return store, nil
}

func (app *App) close() {
	if app.history != nil {
		if err := app.history.Close(); err != nil {
			app.logger.Warn("failed to close history", logging.Fields{"error": err.Error()})
		}
		app.history = nil
	}
}

// mode picks the output format from --json and --plain
func (app *App) mode() display.Mode {
	switch {
	case app.cfg.JSON:
		return display.ModeJSON
	case app.plain:
		return display.ModePlain
	default:
		return display.ModeMarkdown
	}
}
