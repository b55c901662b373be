// Package tools is the gateway between the agent loop and the side
// capabilities a model may call mid-conversation: web search and read-only
// project inspection.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlasserver/atlasai/internal/api"
	"github.com/atlasserver/atlasai/internal/constants"
	"github.com/atlasserver/atlasai/internal/logging"
)

// ErrorKind classifies a tool failure. All kinds are recoverable.
type ErrorKind string

const (
	ErrUnknownTool      ErrorKind = "unknown_tool"
	ErrInvalidArguments ErrorKind = "invalid_arguments"
	ErrUpstreamFailure  ErrorKind = "upstream_failure"
	ErrTimeout          ErrorKind = "timeout"
)

// ToolError reports a failed tool invocation
type ToolError struct {
	Kind ErrorKind
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tool %s: %s", e.Tool, e.Kind)
	}
	return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func invalidArgs(format string, args ...any) error {
	return &ToolError{Kind: ErrInvalidArguments, Err: fmt.Errorf(format, args...)}
}

// Result is the text handed back to the model as a tool turn
type Result struct {
	Text      string
	Truncated bool
}

// Tool is one callable capability
type Tool interface {
	Spec() api.ToolSpec
	Run(ctx context.Context, args map[string]any) (Result, error)
}

// Options configures a Gateway
type Options struct {
	// Timeout bounds each invocation; zero means constants.DefaultToolTimeout.
	Timeout time.Duration
	Logger  *logging.Logger
}

// Gateway holds the registered tools for one invocation
type Gateway struct {
	tools   map[string]Tool
	order   []string
	timeout time.Duration
	logger  *logging.Logger
}

// NewGateway creates an empty gateway
func NewGateway(opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultToolTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Gateway{
		tools:   make(map[string]Tool),
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

// Setup builds a gateway with web_search (when search is non-nil) and the
// project tools (when projectDir is set).
func Setup(opts Options, search api.SearchClient, projectDir string) (*Gateway, error) {
	g := NewGateway(opts)
	if search != nil {
		g.Register(NewWebSearchTool(search, constants.DefaultMaxSearchHits))
	}
	if projectDir != "" {
		sb, err := NewSandbox(projectDir)
		if err != nil {
			return nil, err
		}
		g.Register(NewListDirectoryTool(sb))
		g.Register(NewReadFileTool(sb))
	}
	return g, nil
}

// Register adds t, replacing any tool with the same name
func (g *Gateway) Register(t Tool) {
	name := t.Spec().Name
	if _, ok := g.tools[name]; !ok {
		g.order = append(g.order, name)
	}
	g.tools[name] = t
}

// Has reports whether id is registered
func (g *Gateway) Has(id string) bool {
	if g == nil {
		return false
	}
	_, ok := g.tools[id]
	return ok
}

// Specs returns the tool declarations in registration order
func (g *Gateway) Specs() []api.ToolSpec {
	if g == nil {
		return nil
	}
	specs := make([]api.ToolSpec, 0, len(g.order))
	for _, name := range g.order {
		specs = append(specs, g.tools[name].Spec())
	}
	return specs
}

// Invoke runs the tool registered as id. Unregistered ids fail with
// ErrUnknownTool before anything else happens. Cancellation of ctx is
// returned as-is so the caller can stop; every other failure is a *ToolError.
func (g *Gateway) Invoke(ctx context.Context, id string, args map[string]any) (Result, error) {
	if !g.Has(id) {
		return Result{}, &ToolError{Kind: ErrUnknownTool, Tool: id, Err: fmt.Errorf("no tool named %q", id)}
	}
	if args == nil {
		args = map[string]any{}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := g.tools[id].Run(callCtx, args)
	fields := logging.Fields{"tool": id, "latency_ms": time.Since(start).Milliseconds()}
	if err == nil {
		g.logger.Debug("tool call succeeded", fields)
		return res, nil
	}

	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	var te *ToolError
	switch {
	case errors.As(err, &te):
		if te.Tool == "" {
			te.Tool = id
		}
	case errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded:
		te = &ToolError{Kind: ErrTimeout, Tool: id, Err: err}
	default:
		te = &ToolError{Kind: ErrUpstreamFailure, Tool: id, Err: err}
	}
	fields["kind"] = string(te.Kind)
	fields["error"] = te.Error()
	g.logger.Warn("tool call failed", fields)
	return Result{}, te
}

func stringArg(args map[string]any, key string) (string, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", true, invalidArgs("%s must be a string, got %T", key, v)
	}
	return s, true, nil
}
