package cmd

import (
	"fmt"
	"strings"

	"github.com/atlasserver/atlasai/internal/agent"
	"github.com/atlasserver/atlasai/internal/display"
)

type slashCommand struct {
	name        string
	usage       string
	description string
}

var slashCommands = []slashCommand{
	{"/suggest", "/suggest [text]", "Switch to suggest mode, or ask once"},
	{"/optimize", "/optimize [text]", "Switch to optimize mode, or ask once"},
	{"/debug", "/debug [text]", "Switch to debug mode, or ask once"},
	{"/history", "/history [n]", "Show recent requests"},
	{"/clear", "/clear, /c", "Forget earlier answers"},
	{"/help", "/help, /h", "Show this help"},
	{"/exit", "/exit, /quit, /q", "Exit interactive mode"},
}

// handleCommand runs a slash command. It returns true when the session
// should end.
func (s *ChatSession) handleCommand(input string) bool {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/exit", "/quit", "/q":
		fmt.Println("Goodbye!")
		return true

	case "/clear", "/c":
		s.previous = nil
		fmt.Println("Earlier answers forgotten.")

	case "/help", "/h":
		s.showHelp()

	case "/history":
		s.showHistory(rest)

	case "/suggest", "/optimize", "/debug":
		kind, _ := agent.ParseKind(strings.TrimPrefix(name, "/"))
		if rest == "" {
			s.kind = kind
			fmt.Printf("Mode: %s\n", kind)
			return false
		}
		s.ask(kind, rest)

	default:
		display.ShowError(fmt.Sprintf("unknown command %s, type /help", name))
	}
	return false
}

func (s *ChatSession) showHelp() {
	fmt.Println("Commands:")
	for _, c := range slashCommands {
		fmt.Printf("  %-24s %s\n", c.usage, c.description)
	}
	fmt.Println()
	fmt.Printf("Any other line is sent as a %s request.\n", s.kind)
}

func (s *ChatSession) showHistory(arg string) {
	limit := 10
	if arg != "" {
		if _, err := fmt.Sscanf(arg, "%d", &limit); err != nil || limit <= 0 {
			display.ShowError("usage: /history [n]")
			return
		}
	}
	store, err := s.app.openHistory()
	if err != nil {
		display.ShowError(err.Error())
		return
	}
	entries, err := store.List(limit, "")
	if err != nil {
		display.ShowError(err.Error())
		return
	}
	display.ShowHistory(entries)
}
