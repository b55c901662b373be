package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/elk-language/go-prompt"
	istrings "github.com/elk-language/go-prompt/strings"
	"github.com/spf13/cobra"

	"github.com/atlasserver/atlasai/internal/agent"
	"github.com/atlasserver/atlasai/internal/display"
	"github.com/atlasserver/atlasai/internal/validate"
)

// maxPreviousRequests bounds how many past turns are summarized into hints
const maxPreviousRequests = 3

// ChatSession holds the REPL state between lines
type ChatSession struct {
	app  *App
	ctx  context.Context
	kind agent.Kind

	// previous holds one-line summaries of earlier answers, oldest first
	previous    []string
	inputBuffer []string
	exitFlag    bool
}

func newChatSession(ctx context.Context, app *App) *ChatSession {
	return &ChatSession{app: app, ctx: ctx, kind: agent.KindSuggest}
}

func (app *App) newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive mode: every line is a request",
		Long: `Start an interactive session. Each line is sent as a request of the current
kind (suggest by default); switch kinds with /suggest, /optimize, or /debug.
Earlier answers are passed to the model as context.

Examples:
  atlasai chat
  atlasai chat --project . --multi`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.setup(); err != nil {
				return err
			}
			// Ctrl+C cancels the running request, not the session
			app.runChat(context.WithoutCancel(cmd.Context()))
			return nil
		},
	}
}

func (app *App) runChat(ctx context.Context) {
	session := newChatSession(ctx, app)

	fmt.Println("atlasai - Interactive Mode")
	fmt.Printf("Providers: %s\n", strings.Join(app.providerSummary(), ", "))
	if app.cfg.ProjectDir != "" {
		fmt.Printf("Project: %s\n", app.cfg.ProjectDir)
	}
	if app.cfg.WebSearch {
		fmt.Printf("Web search: enabled (provider: %s)\n", app.cfg.WebSearchProvider)
	}
	fmt.Printf("Mode: %s (switch with /suggest, /optimize, /debug)\n", session.kind)
	fmt.Println("Type /help for commands, Ctrl+D to quit")
	fmt.Println("End a line with \\ for multiline input")
	fmt.Println()

	p := prompt.New(
		session.executor,
		prompt.WithCompleter(session.completer),
		prompt.WithPrefix("> "),
		prompt.WithTitle("atlasai"),
		prompt.WithPrefixTextColor(prompt.Green),
		prompt.WithSuggestionBGColor(prompt.DarkBlue),
		prompt.WithSuggestionTextColor(prompt.White),
		prompt.WithSelectedSuggestionBGColor(prompt.Cyan),
		prompt.WithSelectedSuggestionTextColor(prompt.Black),
		prompt.WithDescriptionBGColor(prompt.DarkBlue),
		prompt.WithDescriptionTextColor(prompt.LightGray),
		prompt.WithSelectedDescriptionBGColor(prompt.Cyan),
		prompt.WithSelectedDescriptionTextColor(prompt.Black),
		prompt.WithMaxSuggestion(15),
		prompt.WithCompletionOnDown(),
		prompt.WithExitChecker(func(in string, breakline bool) bool {
			return session.exitFlag
		}),
		prompt.WithKeyBind(prompt.KeyBind{
			Key: prompt.ControlC,
			Fn: func(p *prompt.Prompt) bool {
				fmt.Println("\nGoodbye!")
				session.exitFlag = true
				return false
			},
		}),
		prompt.WithKeyBind(prompt.KeyBind{
			Key: prompt.ControlD,
			Fn: func(p *prompt.Prompt) bool {
				if p.Buffer().Text() == "" {
					fmt.Println("Goodbye!")
					session.exitFlag = true
				}
				return false
			},
		}),
	)

	p.Run()
}

func (s *ChatSession) completer(d prompt.Document) ([]prompt.Suggest, istrings.RuneNumber, istrings.RuneNumber) {
	endIndex := d.CurrentRuneIndex()
	w := d.GetWordBeforeCursor()
	startIndex := endIndex - istrings.RuneCountInString(w)

	// Only complete slash commands at the start of the line
	if !strings.HasPrefix(w, "/") || strings.Contains(d.TextBeforeCursor(), " ") {
		return []prompt.Suggest{}, startIndex, endIndex
	}

	suggestions := make([]prompt.Suggest, 0, len(slashCommands))
	for _, c := range slashCommands {
		suggestions = append(suggestions, prompt.Suggest{Text: c.name, Description: c.description})
	}
	return prompt.FilterHasPrefix(suggestions, w, true), startIndex, endIndex
}

// executor handles one input line: multiline continuation, slash commands,
// and requests of the current kind.
func (s *ChatSession) executor(input string) {
	if s.exitFlag {
		return
	}

	if strings.HasSuffix(input, "\\") {
		s.inputBuffer = append(s.inputBuffer, strings.TrimSuffix(input, "\\"))
		fmt.Print("... ")
		return
	}
	if len(s.inputBuffer) > 0 {
		s.inputBuffer = append(s.inputBuffer, input)
		input = strings.Join(s.inputBuffer, "\n")
		s.inputBuffer = nil
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	if strings.HasPrefix(input, "/") {
		if s.handleCommand(input) {
			s.exitFlag = true
		}
		return
	}

	s.ask(s.kind, input)
}

// ask runs one request. Interrupting it returns to the prompt.
func (s *ChatSession) ask(kind agent.Kind, input string) {
	ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt)
	defer stop()

	fmt.Println()
	rec, err := s.app.process(ctx, kind, input, s.hints())
	switch {
	case errors.Is(err, agent.ErrCancelled):
		display.ShowInfo("aborted")
	case err != nil:
		display.ShowError(err.Error())
	default:
		s.remember(kind, input, rec)
	}
	fmt.Println()
}

// hints carries earlier answers so follow-ups like "now for port 8080" work
func (s *ChatSession) hints() map[string]string {
	if len(s.previous) == 0 {
		return nil
	}
	return map[string]string{"previous_request": strings.Join(s.previous, " | ")}
}

func (s *ChatSession) remember(kind agent.Kind, input string, rec *validate.Recommendation) {
	summary := fmt.Sprintf("%s %q", kind, firstLine(input))
	if rec != nil && rec.Chosen.CommandText != "" {
		summary += fmt.Sprintf(" -> %s", firstLine(rec.Chosen.CommandText))
	}
	s.previous = append(s.previous, summary)
	if len(s.previous) > maxPreviousRequests {
		s.previous = s.previous[len(s.previous)-maxPreviousRequests:]
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// providerSummary lists the providers a request would use, in order
func (app *App) providerSummary() []string {
	cfg, err := app.cfg.Build()
	if err != nil {
		return []string{"(" + err.Error() + ")"}
	}
	out := make([]string, len(cfg.Providers))
	for i, p := range cfg.Providers {
		out[i] = fmt.Sprintf("%s (%s/%s)", p.ID, p.Kind, p.Model)
	}
	if cfg.MultiProvider && len(out) > 1 {
		out[0] = "all of " + out[0]
	}
	return out
}
