package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/constants"
)

// Project tool ids
const (
	ListDirectoryName = "list_directory"
	ReadFileName      = "read_file"
)

// skippedDirs are never listed; they are noise for deployment questions
var skippedDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, ".venv": true, "venv": true,
}

// Sandbox confines paths to a project root. Symlinks that escape the root
// are rejected.
type Sandbox struct {
	root string
}

// NewSandbox resolves root to an absolute, symlink-free directory.
func NewSandbox(root string) (*Sandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid project directory: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("invalid project directory: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("invalid project directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("invalid project directory: %s is not a directory", root)
	}
	return &Sandbox{root: resolved}, nil
}

// Root returns the resolved project root
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve maps a model-supplied path (relative to the root, or absolute
// inside it) to a real path inside the root.
func (s *Sandbox) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "."
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	path = filepath.Clean(path)

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	} else if !os.IsNotExist(err) {
		return "", err
	}

	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", invalidArgs("path %q is outside the project directory", path)
	}
	return path, nil
}

// display returns path relative to the root
func (s *Sandbox) display(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return rel
}

// ListDirectoryTool lists a directory inside the sandbox
type ListDirectoryTool struct {
	sandbox    *Sandbox
	maxEntries int
}

// NewListDirectoryTool creates the list_directory tool
func NewListDirectoryTool(sb *Sandbox) *ListDirectoryTool {
	return &ListDirectoryTool{sandbox: sb, maxEntries: constants.MaxListingEntries}
}

// Spec implements Tool.
func (t *ListDirectoryTool) Spec() api.ToolSpec {
	return api.ToolSpec{
		Name:        ListDirectoryName,
		Description: "List files and folders in the project. Use it to discover the project type, entry points, and config files.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Directory relative to the project root (default: the root)",
				},
			},
		},
	}
}

// Run implements Tool.
func (t *ListDirectoryTool) Run(ctx context.Context, args map[string]any) (Result, error) {
	path, _, err := stringArg(args, "path")
	if err != nil {
		return Result{}, err
	}
	dir, err := t.sandbox.Resolve(path)
	if err != nil {
		return Result{}, err
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, invalidArgs("directory not found: %s", t.sandbox.display(dir))
		}
		return Result{}, err
	}
	if !info.IsDir() {
		return Result{}, invalidArgs("%s is a file, use read_file instead", t.sandbox.display(dir))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", t.sandbox.display(dir))
	count, truncated := 0, false
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if e.IsDir() && skippedDirs[e.Name()] {
			continue
		}
		if count == t.maxEntries {
			truncated = true
			break
		}
		count++
		if e.IsDir() {
			fmt.Fprintf(&sb, "%s/\n", e.Name())
			continue
		}
		size := int64(0)
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name(), size)
	}
	if count == 0 {
		sb.WriteString("(empty)\n")
	}
	if truncated {
		fmt.Fprintf(&sb, "[Truncated: showing first %d entries]\n", t.maxEntries)
	}
	return Result{Text: strings.TrimRight(sb.String(), "\n"), Truncated: truncated}, nil
}

// ReadFileTool reads a file inside the sandbox with a size cap
type ReadFileTool struct {
	sandbox  *Sandbox
	maxBytes int64
}

// NewReadFileTool creates the read_file tool
func NewReadFileTool(sb *Sandbox) *ReadFileTool {
	return &ReadFileTool{sandbox: sb, maxBytes: constants.MaxReadFileBytes}
}

// Spec implements Tool.
func (t *ReadFileTool) Spec() api.ToolSpec {
	return api.ToolSpec{
		Name:        ReadFileName,
		Description: "Read a project file such as package.json, go.mod, Dockerfile, or main.py. Limited to 64KB.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the project root",
				},
			},
			"required": []string{"path"},
		},
	}
}

// Run implements Tool.
func (t *ReadFileTool) Run(_ context.Context, args map[string]any) (Result, error) {
	path, ok, err := stringArg(args, "path")
	if err != nil {
		return Result{}, err
	}
	if !ok || strings.TrimSpace(path) == "" {
		return Result{}, invalidArgs("path is required")
	}
	file, err := t.sandbox.Resolve(path)
	if err != nil {
		return Result{}, err
	}

	info, err := os.Stat(file)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, invalidArgs("file not found: %s", path)
		}
		return Result{}, err
	}
	if info.IsDir() {
		return Result{}, invalidArgs("%s is a directory, use list_directory instead", path)
	}

	f, err := os.Open(file)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, t.maxBytes))
	if err != nil {
		return Result{}, err
	}

	output := string(data)
	truncated := info.Size() > t.maxBytes
	if truncated {
		output += fmt.Sprintf("\n\n[Truncated: file is %d bytes, showing first %d]", info.Size(), t.maxBytes)
	}
	return Result{Text: output, Truncated: truncated}, nil
}
