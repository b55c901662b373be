package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/atlasserver/atlasai/internal/agent"
	"github.com/atlasserver/atlasai/internal/display"
	"github.com/atlasserver/atlasai/internal/validate"
)

func TestChatSession_HandleCommand(t *testing.T) {
	tests := []struct {
		input    string
		wantExit bool
		wantKind agent.Kind
	}{
		{"/exit", true, agent.KindSuggest},
		{"/q", true, agent.KindSuggest},
		{"/debug", false, agent.KindDebug},
		{"/OPTIMIZE", false, agent.KindOptimize},
		{"/help", false, agent.KindSuggest},
		{"/nope", false, agent.KindSuggest},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s := newChatSession(context.Background(), NewApp())
			if got := s.handleCommand(tt.input); got != tt.wantExit {
				t.Errorf("handleCommand(%q) = %v, want %v", tt.input, got, tt.wantExit)
			}
			if s.kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", s.kind, tt.wantKind)
			}
		})
	}
}

func TestChatSession_RememberKeepsRecent(t *testing.T) {
	s := newChatSession(context.Background(), NewApp())
	if s.hints() != nil {
		t.Error("hints() should be nil before any answer")
	}

	for i, cmd := range []string{"a", "b", "c", "d"} {
		rec := &validate.Recommendation{Chosen: validate.Candidate{CommandText: cmd}}
		s.remember(agent.KindSuggest, strings.Repeat("x", i+1), rec)
	}
	if len(s.previous) != maxPreviousRequests {
		t.Fatalf("previous = %d, want %d", len(s.previous), maxPreviousRequests)
	}
	got := s.hints()["previous_request"]
	if strings.Contains(got, "-> a") || !strings.Contains(got, "-> d") {
		t.Errorf("previous_request = %q, want the three most recent", got)
	}

	s.handleCommand("/clear")
	if s.hints() != nil {
		t.Error("/clear should forget earlier answers")
	}
}

func TestChatSession_Multiline(t *testing.T) {
	s := newChatSession(context.Background(), NewApp())
	s.executor(`/debug \`)
	if len(s.inputBuffer) != 1 {
		t.Fatalf("inputBuffer = %q, want the continued line", s.inputBuffer)
	}
	s.executor("")
	if s.inputBuffer != nil {
		t.Errorf("inputBuffer = %q, want it flushed", s.inputBuffer)
	}
	if s.kind != agent.KindDebug {
		t.Errorf("kind = %q, want debug from the joined input", s.kind)
	}
}

func TestChatSession_FollowUpCarriesPreviousRequest(t *testing.T) {
	isolateCLI(t)
	engine := newFakeOllama(t, jsonAnswer("sudo lsof -i :80", "caution", 0.8))
	t.Setenv("OLLAMA_HOST", engine.URL)

	oldOut, oldErr := display.Stdout, display.Stderr
	var sink strings.Builder
	display.Stdout, display.Stderr = &sink, &sink
	defer func() { display.Stdout, display.Stderr = oldOut, oldErr }()

	app := NewApp()
	app.noHistory = true
	app.plain = true
	if err := app.setup(); err != nil {
		t.Fatal(err)
	}
	s := newChatSession(context.Background(), app)

	s.executor("/debug port 80 already in use")
	s.executor("now for port 8080")

	systems := engine.systemPrompts()
	if len(systems) != 2 {
		t.Fatalf("requests = %d, want 2", len(systems))
	}
	if strings.Contains(systems[0], "previous_request") {
		t.Error("first request should carry no previous_request hint")
	}
	if !strings.Contains(systems[1], "previous_request") || !strings.Contains(systems[1], "sudo lsof -i :80") {
		t.Errorf("second system prompt lacks the earlier answer:\n%s", systems[1])
	}
	if s.kind != agent.KindSuggest {
		t.Errorf("kind = %q, a one-off /debug must not switch modes", s.kind)
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ls", "ls"},
		{"  ls -la  ", "ls -la"},
		{"line one\nline two", "line one ..."},
	}
	for _, tt := range tests {
		if got := firstLine(tt.in); got != tt.want {
			t.Errorf("firstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
