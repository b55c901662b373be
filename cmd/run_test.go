package cmd

import (
	"io"
	"strings"
	"testing"

	"github.com/atlasserver/atlasai/internal/agent"
	"github.com/atlasserver/atlasai/internal/config"
	"github.com/atlasserver/atlasai/internal/display"
	"github.com/atlasserver/atlasai/internal/logging"
)

func TestApp_ReadInput(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin io.Reader
		want  string
	}{
		{"args only", []string{"list", "ports"}, nil, "list ports"},
		{"stdin only", nil, strings.NewReader("  panic: nil map\n"), "panic: nil map"},
		{"args and stdin", []string{"why?"}, strings.NewReader("exit status 137"), "why?\n\nexit status 137"},
		{"empty stdin", []string{"x"}, strings.NewReader(""), "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewApp()
			app.stdin = tt.stdin
			got, err := app.readInput(tt.args)
			if err != nil {
				t.Fatalf("readInput() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("readInput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApp_Mode(t *testing.T) {
	app := NewApp()
	if app.mode() != display.ModeMarkdown {
		t.Errorf("mode() = %v, want markdown", app.mode())
	}
	app.plain = true
	if app.mode() != display.ModePlain {
		t.Errorf("mode() = %v, want plain", app.mode())
	}
	app.cfg.JSON = true
	if app.mode() != display.ModeJSON {
		t.Errorf("mode() = %v, want json to win", app.mode())
	}
}

func TestEnvironmentHints(t *testing.T) {
	t.Setenv("SHELL", "/usr/bin/zsh")
	hints := environmentHints()
	if hints["shell"] != "zsh" || hints["os"] == "" {
		t.Errorf("environmentHints() = %v", hints)
	}
}

func TestSpinnerMessage(t *testing.T) {
	if got := spinnerMessage(agent.KindDebug); got != "Debugging..." {
		t.Errorf("spinnerMessage(debug) = %q", got)
	}
	if got := spinnerMessage(agent.KindSuggest); got != "Thinking..." {
		t.Errorf("spinnerMessage(suggest) = %q", got)
	}
}

func TestApp_SetupLoggerLevel(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		verbose bool
		want    logging.Level
	}{
		{"silent by default", "", false, logging.LevelNone},
		{"env level", "warn", false, logging.LevelWarn},
		{"unknown env ignored", "loud", false, logging.LevelNone},
		{"verbose wins", "error", true, logging.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(config.EnvLogLevel, tt.env)
			app := NewApp()
			app.cfg.Verbose = tt.verbose
			app.setupLogger()

			if tt.want == logging.LevelNone {
				if app.logger.Enabled(logging.LevelError) {
					t.Error("logger should be silent")
				}
				return
			}
			if !app.logger.Enabled(tt.want) {
				t.Errorf("logger should write at %v", tt.want)
			}
			if tt.want > logging.LevelDebug && app.logger.Enabled(tt.want-1) {
				t.Errorf("logger should not write below %v", tt.want)
			}
		})
	}
}
