// Package display handles terminal output: Markdown rendering, risk badges,
// spinners, and status lines.
package display

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Stdout and Stderr can be swapped in tests
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr

	renderer *glamour.TermRenderer
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// InitRenderer sets up the glamour renderer used by RenderMarkdown
func InitRenderer() error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize markdown renderer: %w", err)
	}
	renderer = r
	return nil
}

// RenderMarkdown renders md for the terminal, returning it unchanged when no
// renderer is set up or rendering fails.
func RenderMarkdown(md string) string {
	if renderer == nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// ShowContent prints plain text
func ShowContent(content string) {
	fmt.Fprintln(Stdout, content)
}

// ShowContentRendered prints Markdown through glamour
func ShowContentRendered(content string) {
	fmt.Fprint(Stdout, RenderMarkdown(content))
}

// ShowError prints an error line to stderr
func ShowError(msg string) {
	fmt.Fprintln(Stderr, errorStyle.Render("Error: ")+msg)
}

// ShowWarning prints a warning line to stderr
func ShowWarning(msg string) {
	fmt.Fprintln(Stderr, warningStyle.Render("Warning: "+msg))
}

// ShowInfo prints an informational line to stderr
func ShowInfo(msg string) {
	fmt.Fprintln(Stderr, infoStyle.Render(msg))
}

// ShowSuccess prints a confirmation line
func ShowSuccess(msg string) {
	fmt.Fprintln(Stdout, successStyle.Render(msg))
}

// Spinner shows progress on stderr while a request runs
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner creates a stderr spinner with the given message
func NewSpinner(msg string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(Stderr))
	s.Suffix = " " + msg
	return &Spinner{s: s}
}

// Start starts the spinner
func (sp *Spinner) Start() {
	sp.s.Start()
}

// Stop stops the spinner and clears its line
func (sp *Spinner) Stop() {
	sp.s.Stop()
}

// UpdateMessage replaces the text next to the spinner
func (sp *Spinner) UpdateMessage(msg string) {
	sp.s.Lock()
	sp.s.Suffix = " " + msg
	sp.s.Unlock()
}
