package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/atlasserver/atlasai/internal/display"
	"github.com/atlasserver/atlasai/internal/history"
	"github.com/atlasserver/atlasai/internal/validate"
)

// fakeOllama serves /api/chat and /api/version like a local engine
type fakeOllama struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	content  string
	requests []string // user messages seen, in order
	systems  []string
}

func newFakeOllama(t *testing.T, content string) *fakeOllama {
	t.Helper()
	f := &fakeOllama{status: http.StatusOK, content: content}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOllama) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/api/version":
		w.Write([]byte(`{"version":"0.9.0"}`))
	case "/api/chat":
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			switch m.Role {
			case "user":
				f.requests = append(f.requests, m.Content)
			case "system":
				f.systems = append(f.systems, m.Content)
			}
		}
		if f.status != http.StatusOK {
			w.WriteHeader(f.status)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		resp := map[string]any{
			"model":   "qwen3:8b",
			"message": map[string]any{"role": "assistant", "content": f.content},
			"done":    true,
		}
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOllama) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeOllama) systemPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.systems...)
}

func jsonAnswer(command, risk string, confidence float64) string {
	return fmt.Sprintf("```json\n{\"command\": %q, \"explanation\": \"does the job\", \"risk_level\": %q, \"confidence\": %v}\n```", command, risk, confidence)
}

// isolateCLI points every file the CLI touches at a temp dir
func isolateCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, env := range []string{
		"ATLASAI_PROVIDERS", "ATLASAI_MODEL", "OLLAMA_HOST",
		"BRAVE_API_KEYS", "TAVILY_API_KEYS", "WEB_SEARCH_PROVIDER",
		"OPENAI_API_KEY", "GEMINI_API_KEY", "AZURE_OPENAI_ENDPOINT",
	} {
		t.Setenv(env, "")
	}
	t.Chdir(dir)
	return dir
}

type cliResult struct {
	code   int
	stdout string
	stderr string
}

// runCLI runs the command line in-process. stdin may be nil for a terminal.
func runCLI(t *testing.T, ctx context.Context, stdin io.Reader, args ...string) cliResult {
	t.Helper()

	var stdout, stderr bytes.Buffer
	oldOut, oldErr := display.Stdout, display.Stderr
	display.Stdout, display.Stderr = &stdout, &stderr
	defer func() { display.Stdout, display.Stderr = oldOut, oldErr }()

	app := NewApp()
	app.stdin = stdin
	code := app.run(ctx, args)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestCLI_SuggestJSON(t *testing.T) {
	isolateCLI(t)
	engine := newFakeOllama(t, jsonAnswer("du -ah . | sort -rh | head -20", "safe", 0.9))
	t.Setenv("OLLAMA_HOST", engine.URL)

	res := runCLI(t, context.Background(), nil, "suggest", "--json", "show", "the", "biggest", "files")
	if res.code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", res.code, res.stderr)
	}

	var rec validate.Recommendation
	if err := json.Unmarshal([]byte(res.stdout), &rec); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, res.stdout)
	}
	if rec.Chosen.CommandText != "du -ah . | sort -rh | head -20" {
		t.Errorf("CommandText = %q", rec.Chosen.CommandText)
	}
	if rec.Chosen.SourceProvider != "local" {
		t.Errorf("SourceProvider = %q, want local", rec.Chosen.SourceProvider)
	}
	if seen := engine.seen(); len(seen) != 1 || !strings.Contains(seen[0], "show the biggest files") {
		t.Errorf("user messages = %q", seen)
	}

	// The request was saved with its transcript
	store, err := history.NewSQLiteStore("")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	entries, err := store.List(0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Kind != "suggest" || len(entries[0].Transcript) == 0 {
		t.Errorf("history = %+v", entries)
	}
}

func TestCLI_BareRequestIsSuggest(t *testing.T) {
	dir := isolateCLI(t)
	engine := newFakeOllama(t, jsonAnswer("ss -tlnp", "safe", 0.8))
	t.Setenv("OLLAMA_HOST", engine.URL)

	res := runCLI(t, context.Background(), nil, "--plain", "--no-history", "list listening ports")
	if res.code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "ss -tlnp") {
		t.Errorf("stdout = %q, want the command", res.stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, "data", "atlasai", history.FileName)); !os.IsNotExist(err) {
		t.Error("--no-history should not create the history database")
	}
}

func TestCLI_NoArgsShowsHelp(t *testing.T) {
	isolateCLI(t)

	res := runCLI(t, context.Background(), nil)
	if res.code != exitOK {
		t.Errorf("exit code = %d, want 0", res.code)
	}
	if !strings.Contains(res.stdout, "Usage:") {
		t.Errorf("stdout = %q, want help", res.stdout)
	}
}

func TestCLI_DebugReadsStdin(t *testing.T) {
	isolateCLI(t)
	engine := newFakeOllama(t, jsonAnswer("chmod 600 ~/.ssh/id_ed25519", "caution", 0.7))
	t.Setenv("OLLAMA_HOST", engine.URL)

	logs := strings.NewReader("Permissions 0644 for '/home/me/.ssh/id_ed25519' are too open.\n")
	res := runCLI(t, context.Background(), logs, "debug", "--json", "--no-history", "ssh refuses my key")
	if res.code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", res.code, res.stderr)
	}

	seen := engine.seen()
	if len(seen) != 1 {
		t.Fatalf("user messages = %d, want 1", len(seen))
	}
	for _, want := range []string{"ssh refuses my key", "are too open"} {
		if !strings.Contains(seen[0], want) {
			t.Errorf("user message missing %q: %s", want, seen[0])
		}
	}
}

func TestCLI_ExitCodes(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		cancel     bool
		args       []string
		wantCode   int
		wantStderr string
	}{
		{"provider rejects", http.StatusUnauthorized, false, []string{"suggest", "--no-history", "x"}, exitError, "Error"},
		{"unknown flag", http.StatusOK, false, []string{"suggest", "--bogus"}, exitError, "unknown flag"},
		{"invalid language", http.StatusOK, false, []string{"suggest", "--lang", "fr", "x"}, exitError, "invalid language"},
		{"cancelled", http.StatusOK, true, []string{"suggest", "--no-history", "x"}, exitCancelled, "aborted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateCLI(t)
			engine := newFakeOllama(t, jsonAnswer("true", "safe", 0.9))
			engine.status = tt.status
			t.Setenv("OLLAMA_HOST", engine.URL)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}

			res := runCLI(t, ctx, nil, tt.args...)
			if res.code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (stderr %q)", res.code, tt.wantCode, res.stderr)
			}
			if !strings.Contains(res.stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want %q", res.stderr, tt.wantStderr)
			}
		})
	}
}

func TestCLI_AuthLoginStatusLogout(t *testing.T) {
	dir := isolateCLI(t)
	configDir := filepath.Join(dir, ".atlasai")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	cfg := "providers:\n  - id: cloud\n    kind: openai\n    auth_ref: store:openai\n  - id: local\n    kind: ollama\n"
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	res := runCLI(t, context.Background(), nil, "auth", "status")
	if !strings.Contains(res.stdout, "store:openai: missing") {
		t.Errorf("status before login = %q", res.stdout)
	}

	res = runCLI(t, context.Background(), strings.NewReader("sk-test-1234567890\n"), "auth", "login", "openai")
	if res.code != exitOK {
		t.Fatalf("login exit code = %d, stderr = %s", res.code, res.stderr)
	}
	if strings.Contains(res.stdout, "sk-test-1234567890") {
		t.Error("login must not print the secret")
	}

	res = runCLI(t, context.Background(), nil, "auth", "status")
	for _, want := range []string{"sk-t****7890", "store:openai: ok", "no auth required"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("status after login missing %q:\n%s", want, res.stdout)
		}
	}

	res = runCLI(t, context.Background(), nil, "auth", "logout", "openai")
	if res.code != exitOK || !strings.Contains(res.stdout, "Removed openai") {
		t.Errorf("logout = %d %q", res.code, res.stdout)
	}
	res = runCLI(t, context.Background(), nil, "auth", "logout", "openai")
	if !strings.Contains(res.stdout, "No credential named openai") {
		t.Errorf("second logout = %q", res.stdout)
	}
}

func TestCLI_AuthLoginEmptySecret(t *testing.T) {
	isolateCLI(t)

	res := runCLI(t, context.Background(), strings.NewReader("\n"), "auth", "login", "openai")
	if res.code != exitError {
		t.Errorf("exit code = %d, want %d", res.code, exitError)
	}
}

func TestCLI_History(t *testing.T) {
	isolateCLI(t)
	engine := newFakeOllama(t, jsonAnswer("docker ps -a", "safe", 0.9))
	t.Setenv("OLLAMA_HOST", engine.URL)

	for _, input := range []string{"list all containers", "show docker containers"} {
		if res := runCLI(t, context.Background(), nil, "suggest", "--json", input); res.code != exitOK {
			t.Fatalf("suggest exit code = %d, stderr = %s", res.code, res.stderr)
		}
	}

	res := runCLI(t, context.Background(), nil, "history", "--json", "--search", "docker")
	var entries []history.Entry
	if err := json.Unmarshal([]byte(res.stdout), &entries); err != nil {
		t.Fatalf("history --json: %v\n%s", err, res.stdout)
	}
	if len(entries) != 2 {
		t.Fatalf("history --search docker = %d entries, want 2 (command matches)", len(entries))
	}

	res = runCLI(t, context.Background(), nil, "history", "show", entries[0].ID[:8])
	if res.code != exitOK {
		t.Fatalf("history show exit code = %d, stderr = %s", res.code, res.stderr)
	}
	for _, want := range []string{"docker ps -a", "Transcript", entries[0].Input} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("history show missing %q", want)
		}
	}

	res = runCLI(t, context.Background(), nil, "history", "show", "nope")
	if res.code != exitError || !strings.Contains(res.stderr, "no history entry") {
		t.Errorf("history show nope = %d %q", res.code, res.stderr)
	}

	if res := runCLI(t, context.Background(), nil, "history", "clear"); res.code != exitOK {
		t.Fatalf("history clear exit code = %d", res.code)
	}
	res = runCLI(t, context.Background(), nil, "history", "--json")
	if strings.TrimSpace(res.stdout) != "[]" {
		t.Errorf("history after clear = %q, want []", res.stdout)
	}
}

func TestCLI_ConfigDoctor(t *testing.T) {
	isolateCLI(t)
	engine := newFakeOllama(t, "")
	t.Setenv("OLLAMA_HOST", engine.URL)

	res := runCLI(t, context.Background(), nil, "config", "doctor")
	if res.code != exitOK {
		t.Fatalf("exit code = %d, stdout = %s, stderr = %s", res.code, res.stdout, res.stderr)
	}
	if !strings.Contains(res.stdout, "ollama 0.9.0") {
		t.Errorf("stdout = %q, want the engine version", res.stdout)
	}

	engine.Close()
	res = runCLI(t, context.Background(), nil, "config", "doctor")
	if res.code != exitError || !strings.Contains(res.stdout, "FAIL") {
		t.Errorf("doctor with engine down = %d %q", res.code, res.stdout)
	}
}

func TestCLI_ConfigShow(t *testing.T) {
	isolateCLI(t)

	res := runCLI(t, context.Background(), nil, "config", "show", "--provider", "local,gemini", "--model", "llama3.1")
	if res.code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", res.code, res.stderr)
	}
	for _, want := range []string{"id: local", "model: llama3.1", "id: gemini", "auth_ref: env:GEMINI_API_KEY", "config_file: (none)"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("config show missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestCLI_ConfigInit(t *testing.T) {
	dir := isolateCLI(t)

	res := runCLI(t, context.Background(), nil, "config", "init")
	if res.code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", res.code, res.stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "config", "atlasai", "config.yaml")); err != nil {
		t.Errorf("config file not written: %v", err)
	}
	if res := runCLI(t, context.Background(), nil, "config", "init"); res.code != exitError {
		t.Errorf("second init exit code = %d, want %d", res.code, exitError)
	}
}

func TestCLI_SafetyRuleAppliesToAnswers(t *testing.T) {
	isolateCLI(t)
	engine := newFakeOllama(t, jsonAnswer("helm uninstall web", "safe", 0.9))
	t.Setenv("OLLAMA_HOST", engine.URL)

	res := runCLI(t, context.Background(), nil, "config", "safety", "add", "helm uninstall*", "--reason", "removes a release")
	if res.code != exitOK {
		t.Fatalf("safety add exit code = %d, stderr = %s", res.code, res.stderr)
	}

	res = runCLI(t, context.Background(), nil, "config", "safety")
	if !strings.Contains(res.stdout, "helm uninstall*") {
		t.Errorf("safety list = %q", res.stdout)
	}

	res = runCLI(t, context.Background(), nil, "suggest", "--json", "--no-history", "remove the web release")
	var rec validate.Recommendation
	if err := json.Unmarshal([]byte(res.stdout), &rec); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, res.stdout)
	}
	if rec.Chosen.RiskLevel != validate.RiskDestructive {
		t.Errorf("RiskLevel = %q, want destructive from the custom rule", rec.Chosen.RiskLevel)
	}

	res = runCLI(t, context.Background(), nil, "config", "safety", "add", "x", "--level", "scary")
	if res.code != exitError {
		t.Errorf("invalid level exit code = %d, want %d", res.code, exitError)
	}
}
