package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/atlasserver/atlasai/internal/constants"
)

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"main.py":          "from fastapi import FastAPI\napp = FastAPI()\n",
		"requirements.txt": "fastapi\nuvicorn\n",
		"app/routes.py":    "# routes\n",
		".git/HEAD":        "ref: refs/heads/main\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestListDirectory(t *testing.T) {
	g, err := Setup(Options{}, nil, newProject(t))
	if err != nil {
		t.Fatal(err)
	}

	res, err := g.Invoke(context.Background(), ListDirectoryName, nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	for _, want := range []string{"app/", "main.py (", "requirements.txt ("} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("listing missing %q:\n%s", want, res.Text)
		}
	}
	if strings.Contains(res.Text, ".git") {
		t.Errorf("listing should skip .git:\n%s", res.Text)
	}

	res, err = g.Invoke(context.Background(), ListDirectoryName, map[string]any{"path": "app"})
	if err != nil {
		t.Fatalf("Invoke(app) error = %v", err)
	}
	if !strings.Contains(res.Text, "routes.py") {
		t.Errorf("listing = %q, want routes.py", res.Text)
	}
}

func TestListDirectory_Truncates(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < constants.MaxListingEntries+5; i++ {
		_ = os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%03d.txt", i)), nil, 0644)
	}
	g, _ := Setup(Options{}, nil, dir)

	res, err := g.Invoke(context.Background(), ListDirectoryName, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Truncated || !strings.Contains(res.Text, "[Truncated") {
		t.Errorf("Truncated = %v, want true", res.Truncated)
	}
	if strings.Contains(res.Text, fmt.Sprintf("f%03d.txt", constants.MaxListingEntries)) {
		t.Error("listing should stop at the entry cap")
	}
}

func TestReadFile(t *testing.T) {
	g, _ := Setup(Options{}, nil, newProject(t))

	res, err := g.Invoke(context.Background(), ReadFileName, map[string]any{"path": "main.py"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !strings.Contains(res.Text, "FastAPI()") || res.Truncated {
		t.Errorf("Result = %+v", res)
	}
}

func TestReadFile_Truncates(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("x", constants.MaxReadFileBytes+100)
	_ = os.WriteFile(filepath.Join(dir, "big.log"), []byte(big), 0644)
	g, _ := Setup(Options{}, nil, dir)

	res, err := g.Invoke(context.Background(), ReadFileName, map[string]any{"path": "big.log"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if !strings.HasPrefix(res.Text, strings.Repeat("x", constants.MaxReadFileBytes)+"\n\n[Truncated") {
		t.Error("content should be capped before the truncation note")
	}
}

func TestProjectTools_Sandbox(t *testing.T) {
	project := newProject(t)
	outside := t.TempDir()
	_ = os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s3cret"), 0644)

	g, _ := Setup(Options{}, nil, project)

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"parent traversal", ReadFileName, map[string]any{"path": "../secret.txt"}},
		{"absolute outside", ReadFileName, map[string]any{"path": filepath.Join(outside, "secret.txt")}},
		{"list parent", ListDirectoryName, map[string]any{"path": ".."}},
		{"missing path", ReadFileName, map[string]any{}},
		{"path not string", ReadFileName, map[string]any{"path": 1}},
		{"read a directory", ReadFileName, map[string]any{"path": "app"}},
		{"list a file", ListDirectoryName, map[string]any{"path": "main.py"}},
		{"missing file", ReadFileName, map[string]any{"path": "nope.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Invoke(context.Background(), tt.tool, tt.args)
			assertToolKind(t, err, ErrInvalidArguments)
		})
	}
}

func TestProjectTools_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	project := t.TempDir()
	outside := t.TempDir()
	_ = os.WriteFile(filepath.Join(outside, "id_rsa"), []byte("key"), 0600)
	if err := os.Symlink(outside, filepath.Join(project, "link")); err != nil {
		t.Fatal(err)
	}

	g, _ := Setup(Options{}, nil, project)
	_, err := g.Invoke(context.Background(), ReadFileName, map[string]any{"path": "link/id_rsa"})
	assertToolKind(t, err, ErrInvalidArguments)
}
