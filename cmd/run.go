package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/atlasserver/atlasai/internal/agent"
	"github.com/atlasserver/atlasai/internal/display"
	"github.com/atlasserver/atlasai/internal/history"
	"github.com/atlasserver/atlasai/internal/logging"
	"github.com/atlasserver/atlasai/internal/validate"
)

// maxStdinBytes caps piped input (logs, command output)
const maxStdinBytes = 256 * 1024

var kindHelp = map[agent.Kind]struct {
	short   string
	example string
}{
	agent.KindSuggest: {
		short: "Suggest a command for a task",
		example: `  atlasai suggest "list listening ports"
  atlasai suggest --project ./webapp "run this project in production"`,
	},
	agent.KindOptimize: {
		short: "Suggest a better version of a command",
		example: `  atlasai optimize "cat access.log | grep 500 | wc -l"
  atlasai optimize --json "find . -name '*.tmp' -exec rm {} \;"`,
	},
	agent.KindDebug: {
		short: "Explain an error and suggest a fix",
		example: `  atlasai debug "permission denied (publickey)"
  docker compose up 2>&1 | atlasai debug`,
	},
}

func (app *App) newKindCmd(kind agent.Kind) *cobra.Command {
	help := kindHelp[kind]
	return &cobra.Command{
		Use:   string(kind) + " [text]",
		Short: help.short,
		Long: help.short + `.

The text can be given as arguments, piped on stdin, or both; piped input is
appended below the arguments.

Examples:
` + help.example,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runKind(cmd.Context(), kind, args)
		},
	}
}

func (app *App) runKind(ctx context.Context, kind agent.Kind, args []string) error {
	input, err := app.readInput(args)
	if err != nil {
		return err
	}
	if err := app.setup(); err != nil {
		return err
	}
	_, err = app.process(ctx, kind, input, nil)
	return err
}

// process runs one request through the orchestrator, prints the result, and
// records it in history.
func (app *App) process(ctx context.Context, kind agent.Kind, input string, hints map[string]string) (*validate.Recommendation, error) {
	agentCfg, err := app.cfg.Build()
	if err != nil {
		return nil, err
	}
	search, err := app.cfg.SearchClient(app.logger)
	if err != nil {
		return nil, err
	}

	orch := agent.New(agent.Options{
		Credentials: app.creds,
		Search:      search,
		Logger:      app.logger,
	})
	req := agent.NewRequest(kind, input,
		agent.WithLanguage(agent.Language(app.cfg.Language)),
		agent.WithProjectDir(app.cfg.ProjectDir),
		agent.WithHints(environmentHints()),
		agent.WithHints(hints),
	)

	app.logger.Debug("processing request", logging.Fields{
		"kind":      string(kind),
		"providers": agentCfg.Preference(),
		"multi":     agentCfg.MultiProvider,
	})

	var sp *display.Spinner
	// No spinner while log lines go to stderr.
	if app.mode() == display.ModeMarkdown && !app.logger.Enabled(logging.LevelWarn) {
		sp = display.NewSpinner(spinnerMessage(kind))
		sp.Start()
	}
	rec, sess, err := orch.Process(ctx, req, agentCfg)
	if sp != nil {
		sp.Stop()
	}
	if err != nil {
		return nil, err
	}

	if err := display.RenderRecommendation(rec, app.mode()); err != nil {
		return nil, fmt.Errorf("failed to print recommendation: %w", err)
	}
	app.record(req, rec, sess)
	return rec, nil
}

// record saves a finished request. History problems never fail the command.
func (app *App) record(req agent.Request, rec *validate.Recommendation, sess *agent.Session) {
	if app.noHistory {
		return
	}
	store, err := app.openHistory()
	if err != nil {
		app.logger.Warn("history disabled", logging.Fields{"error": err.Error()})
		return
	}
	entry, err := history.NewEntry(req, rec, sess)
	if err == nil {
		err = store.Save(entry)
	}
	if err != nil {
		display.ShowWarning(fmt.Sprintf("could not save history: %v", err))
	}
}

func spinnerMessage(kind agent.Kind) string {
	switch kind {
	case agent.KindOptimize:
		return "Optimizing..."
	case agent.KindDebug:
		return "Debugging..."
	default:
		return "Thinking..."
	}
}

// readInput joins args and appends piped stdin
func (app *App) readInput(args []string) (string, error) {
	input := strings.TrimSpace(strings.Join(args, " "))
	if !app.stdinPiped() {
		return input, nil
	}

	data, err := io.ReadAll(io.LimitReader(app.stdin, maxStdinBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	piped := strings.TrimSpace(string(data))
	switch {
	case piped == "":
		return input, nil
	case input == "":
		return piped, nil
	default:
		return input + "\n\n" + piped, nil
	}
}

// stdinPiped reports whether stdin carries data rather than a terminal
func (app *App) stdinPiped() bool {
	if app.stdin == nil {
		return false
	}
	f, ok := app.stdin.(*os.File)
	if !ok {
		return true
	}
	if term.IsTerminal(int(f.Fd())) {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeNamedPipe != 0 || info.Mode().IsRegular()
}

// environmentHints describes the machine the command will run on
func environmentHints() map[string]string {
	hints := map[string]string{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		hints["shell"] = filepath.Base(shell)
	}
	return hints
}
